package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

// HTTPExtractor reads pages of JSON objects from a REST endpoint that paginates with
// page/per_page query parameters and reports continuation in X-Next-Page and X-Total.
type HTTPExtractor struct {
	Client  *http.Client
	BaseURL string
	PerPage int
	Limiter *rate.Limiter
}

// NewHTTPExtractor throttles requests to rps per second; rps <= 0 disables throttling.
func NewHTTPExtractor(baseURL string, perPage int, rps float64) *HTTPExtractor {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &HTTPExtractor{
		Client:  &http.Client{Timeout: 30 * time.Second},
		BaseURL: baseURL,
		PerPage: perPage,
		Limiter: limiter,
	}
}

func (h *HTTPExtractor) Extract(ctx context.Context, pc *PipelineContext) (*ExtractedData, error) {
	page, err := pc.NextPage(ctx)
	if err != nil {
		return nil, err
	}
	if page == "" {
		page = "1"
	}

	reqURL, err := h.pageURL(page)
	if err != nil {
		return nil, err
	}

	if h.Limiter != nil {
		// Wait fails early when the deadline would pass before a token frees up.
		if err := h.Limiter.Wait(ctx); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "rate limiter"), context.DeadlineExceeded)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, &TransportError{Retriable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, NewTransportError(resp.StatusCode, resp.Header,
			fmt.Errorf("GET %s: %s %s", reqURL, resp.Status, string(body)))
	}

	var items []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, errors.Wrap(err, "decode page")
	}

	records := make([]any, len(items))
	for i, item := range items {
		records[i] = item
	}

	var opts []PageOption
	if next := resp.Header.Get("X-Next-Page"); next != "" {
		opts = append(opts, WithNextPage(next))
	}
	if total, err := strconv.ParseInt(resp.Header.Get("X-Total"), 10, 64); err == nil {
		opts = append(opts, WithTotalCount(total))
	}
	return NewExtractedData(records, opts...), nil
}

func (h *HTTPExtractor) pageURL(page string) (string, error) {
	u, err := url.Parse(h.BaseURL)
	if err != nil {
		return "", errors.Wrapf(err, "parse base url %q", h.BaseURL)
	}
	q := u.Query()
	q.Set("page", page)
	if h.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(h.PerPage))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
