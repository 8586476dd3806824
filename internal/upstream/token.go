package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/book-expert/logger"
	"golang.org/x/sync/singleflight"

	"github.com/book-expert/scripture-service/internal/core"
)

const (
	nextDataXPath  = `//script[@id='__NEXT_DATA__']`
	tokenFlightKey = "token"
)

type nextData struct {
	BuildID string `json:"buildId"`
}

// TokenResolver owns the upstream address token. The token is Unset until the first
// successful resolution and returns to Unset on Invalidate.
type TokenResolver struct {
	fetcher    core.Fetcher
	log        *logger.Logger
	landingURL string
	timeout    time.Duration

	mu    sync.Mutex
	token string

	flight singleflight.Group
}

// NewTokenResolver creates a resolver that scrapes the token from landingURL.
func NewTokenResolver(
	fetcher core.Fetcher,
	landingURL string,
	timeout time.Duration,
	log *logger.Logger,
) *TokenResolver {
	return &TokenResolver{
		fetcher:    fetcher,
		log:        log,
		landingURL: landingURL,
		timeout:    timeout,
	}
}

// Resolve returns the known token, fetching it first when Unset. Concurrent resolutions
// share one landing page fetch.
func (r *TokenResolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	token := r.token
	r.mu.Unlock()

	if token != "" {
		return token, nil
	}

	value, err, _ := r.flight.Do(tokenFlightKey, func() (any, error) {
		return r.fetch(ctx)
	})
	if err != nil {
		return "", err
	}

	resolved, _ := value.(string)

	return resolved, nil
}

// Invalidate forgets the current token so the next Resolve fetches a fresh one.
func (r *TokenResolver) Invalidate() {
	r.mu.Lock()
	r.token = ""
	r.mu.Unlock()

	r.log.Info("Upstream token invalidated.")
}

func (r *TokenResolver) fetch(ctx context.Context) (string, error) {
	resp, err := r.fetcher.Get(ctx, r.landingURL, r.timeout)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrTokenUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: landing page returned status %d", core.ErrTokenUnavailable, resp.StatusCode)
	}

	token, err := ExtractToken(resp.Body)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.token = token
	r.mu.Unlock()

	r.log.Info("Resolved upstream token %s.", token)

	return token, nil
}

// ExtractToken pulls the build id out of the landing page's embedded page data.
func ExtractToken(page []byte) (string, error) {
	root, err := htmlquery.Parse(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse landing page: %w", core.ErrTokenUnavailable, err)
	}

	script := htmlquery.FindOne(root, nextDataXPath)
	if script == nil {
		return "", fmt.Errorf("%w: page data script not found", core.ErrTokenUnavailable)
	}

	var data nextData

	err = json.Unmarshal([]byte(htmlquery.InnerText(script)), &data)
	if err != nil {
		return "", fmt.Errorf("%w: failed to decode page data: %w", core.ErrTokenUnavailable, err)
	}

	token := strings.TrimSpace(data.BuildID)
	if token == "" {
		return "", fmt.Errorf("%w: page data carries no build id", core.ErrTokenUnavailable)
	}

	return token, nil
}
