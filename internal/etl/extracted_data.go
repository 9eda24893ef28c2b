package etl

import "iter"

// PageInfo carries pagination continuation for one extracted page.
type PageInfo struct {
	HasNextPage bool
	NextPage    string
	// TotalCount is the size of the whole source when known, -1 otherwise.
	TotalCount int64
}

// ExtractedData is one immutable page of records.
type ExtractedData struct {
	records  []any
	pageInfo PageInfo
}

type PageOption func(*PageInfo)

// WithNextPage marks the page as having a continuation at cursor.
func WithNextPage(cursor string) PageOption {
	return func(p *PageInfo) {
		p.HasNextPage = true
		p.NextPage = cursor
	}
}

// WithTotalCount attaches the total number of records available at the source.
func WithTotalCount(n int64) PageOption {
	return func(p *PageInfo) {
		p.TotalCount = n
	}
}

// WithPageInfo copies pagination details produced by a source client.
func WithPageInfo(info PageInfo) PageOption {
	return func(p *PageInfo) {
		*p = info
	}
}

func NewExtractedData(records []any, opts ...PageOption) *ExtractedData {
	info := PageInfo{TotalCount: -1}
	for _, opt := range opts {
		opt(&info)
	}
	if !info.HasNextPage {
		info.NextPage = ""
	}

	copied := make([]any, len(records))
	copy(copied, records)

	return &ExtractedData{records: copied, pageInfo: info}
}

func (d *ExtractedData) HasNextPage() bool {
	return d != nil && d.pageInfo.HasNextPage
}

// NextPage returns the continuation cursor; ok is false when there is no next page.
func (d *ExtractedData) NextPage() (string, bool) {
	if !d.HasNextPage() {
		return "", false
	}
	return d.pageInfo.NextPage, true
}

// TotalCount returns the source total when the extractor reported one.
func (d *ExtractedData) TotalCount() (int64, bool) {
	if d == nil || d.pageInfo.TotalCount < 0 {
		return 0, false
	}
	return d.pageInfo.TotalCount, true
}

func (d *ExtractedData) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Records yields the page's records in extraction order. Each call starts over.
func (d *ExtractedData) Records() iter.Seq[any] {
	return func(yield func(any) bool) {
		if d == nil {
			return
		}
		for _, r := range d.records {
			if !yield(r) {
				return
			}
		}
	}
}
