// Package upstream talks to the third-party content source: it resolves the rotating address
// token from the landing page and fetches chapter and version records with it.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/scripture-service/internal/core"
)

// HTTP headers.
const (
	headerUserAgent = "User-Agent"
	headerAccept    = "Accept"
	acceptAny       = "application/json, text/html;q=0.9, */*;q=0.8"
)

// maxBodyBytes bounds how much of an upstream response is read into memory.
const maxBodyBytes = 16 << 20

// HTTPFetcher implements core.Fetcher over net/http.
type HTTPFetcher struct {
	httpClient *http.Client
	userAgent  string
}

// NewHTTPFetcher creates a fetcher that identifies itself with userAgent.
func NewHTTPFetcher(userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: &http.Client{},
		userAgent:  userAgent,
	}
}

// Get performs a GET bounded by timeout. Transport failures wrap core.ErrUpstreamUnavailable;
// status codes are left for the caller to interpret.
func (f *HTTPFetcher) Get(ctx context.Context, url string, timeout time.Duration) (*core.HTTPResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request for %s: %w", core.ErrUpstreamUnavailable, url, err)
	}

	req.Header.Set(headerAccept, acceptAny)

	if f.userAgent != "" {
		req.Header.Set(headerUserAgent, f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request to %s failed: %w", core.ErrUpstreamUnavailable, url, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if readErr != nil {
		return nil, fmt.Errorf("%w: failed to read response from %s: %w", core.ErrUpstreamUnavailable, url, readErr)
	}

	return &core.HTTPResponse{StatusCode: resp.StatusCode, Body: body}, nil
}
