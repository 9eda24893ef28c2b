package etl

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractedData_NoNextPageClearsCursor(t *testing.T) {
	d := NewExtractedData(nil, WithPageInfo(PageInfo{HasNextPage: false, NextPage: "stale", TotalCount: -1}))

	assert.False(t, d.HasNextPage())
	next, ok := d.NextPage()
	assert.False(t, ok)
	assert.Empty(t, next)
}

func TestExtractedData_NextPage(t *testing.T) {
	d := NewExtractedData([]any{1, 2}, WithNextPage("abc"))

	assert.True(t, d.HasNextPage())
	next, ok := d.NextPage()
	assert.True(t, ok)
	assert.Equal(t, "abc", next)
	assert.Equal(t, 2, d.Len())
}

func TestExtractedData_RecordsRestartable(t *testing.T) {
	src := []any{"a", "b", "c"}
	d := NewExtractedData(src)
	src[0] = "changed"

	first := slices.Collect(d.Records())
	second := slices.Collect(d.Records())

	assert.Equal(t, []any{"a", "b", "c"}, first)
	assert.Equal(t, first, second)
}

func TestExtractedData_RecordsEarlyBreak(t *testing.T) {
	d := NewExtractedData([]any{1, 2, 3})

	var seen []any
	for r := range d.Records() {
		seen = append(seen, r)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []any{1, 2}, seen)
}

func TestExtractedData_TotalCount(t *testing.T) {
	_, ok := NewExtractedData(nil).TotalCount()
	assert.False(t, ok)

	total, ok := NewExtractedData(nil, WithTotalCount(42)).TotalCount()
	assert.True(t, ok)
	assert.Equal(t, int64(42), total)
}

func TestExtractedData_NilIsEmpty(t *testing.T) {
	var d *ExtractedData

	assert.False(t, d.HasNextPage())
	assert.Zero(t, d.Len())
	assert.Empty(t, slices.Collect(d.Records()))
}
