package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/scripture-service/internal/core"
)

const (
	chapterURLFormat = "%s/_next/data/%s/%s/bible/%d/%s.%s.%s.json"
	versionURLFormat = "%s/api/bible/version/%d"
)

// ChapterRequest carries everything the chapter address is built from.
type ChapterRequest struct {
	Token    string
	Language string
	BibleID  int
	Book     string
	Chapter  string
	Version  string
}

// Chapter is the validated part of an upstream chapter record.
type Chapter struct {
	Markup string
	Title  string
}

// VersionInfo is the validated part of an upstream version record.
type VersionInfo struct {
	ID            int           `json:"id"`
	Abbreviation  string        `json:"abbreviation"`
	Title         string        `json:"title"`
	Language      string        `json:"language"`
	TextDirection string        `json:"textDirection"`
	Books         []VersionBook `json:"books"`
}

// VersionBook lists one book of a version.
type VersionBook struct {
	USFM     string `json:"usfm"`
	Name     string `json:"name"`
	Chapters int    `json:"chapters"`
}

type chapterRecord struct {
	NotFound  bool `json:"notFound"`
	PageProps *struct {
		ChapterInfo *struct {
			Content   string `json:"content"`
			Reference struct {
				Human string `json:"human"`
			} `json:"reference"`
		} `json:"chapterInfo"`
	} `json:"pageProps"`
}

type versionRecord struct {
	ID           int    `json:"id"`
	Abbreviation string `json:"abbreviation"`
	LocalTitle   string `json:"local_title"`
	Title        string `json:"title"`
	Language     struct {
		ISO6393       string `json:"iso_639_3"`
		TextDirection string `json:"text_direction"`
	} `json:"language"`
	Books []struct {
		USFM     string            `json:"usfm"`
		Human    string            `json:"human"`
		Chapters []json.RawMessage `json:"chapters"`
	} `json:"books"`
}

// Client fetches upstream records through a core.Fetcher.
type Client struct {
	fetcher core.Fetcher
	baseURL string
	timeout time.Duration
}

// NewClient creates a client for the upstream rooted at baseURL.
func NewClient(fetcher core.Fetcher, baseURL string, timeout time.Duration) *Client {
	return &Client{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

// ChapterURL builds the token-scoped chapter address.
func (c *Client) ChapterURL(req ChapterRequest) string {
	return fmt.Sprintf(chapterURLFormat,
		c.baseURL, req.Token, req.Language, req.BibleID, req.Book, req.Chapter, req.Version)
}

// FetchChapter fetches one chapter record. A not-found response, by status or by the
// record's notFound flag, wraps core.ErrUpstreamStaleToken; every other failure wraps
// core.ErrUpstreamUnavailable.
func (c *Client) FetchChapter(ctx context.Context, req ChapterRequest) (*Chapter, error) {
	url := c.ChapterURL(req)

	resp, err := c.fetcher.Get(ctx, url, c.timeout)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s returned not found", core.ErrUpstreamStaleToken, url)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", core.ErrUpstreamUnavailable, url, resp.StatusCode)
	}

	var record chapterRecord

	err = parseJSON(resp.Body, &record)
	if err != nil {
		return nil, err
	}

	if record.NotFound {
		return nil, fmt.Errorf("%w: %s reported notFound", core.ErrUpstreamStaleToken, url)
	}

	if record.PageProps == nil || record.PageProps.ChapterInfo == nil ||
		strings.TrimSpace(record.PageProps.ChapterInfo.Content) == "" {
		return nil, fmt.Errorf("%w: %s has no chapter content", core.ErrUpstreamUnavailable, url)
	}

	info := record.PageProps.ChapterInfo

	return &Chapter{
		Markup: info.Content,
		Title:  strings.TrimSpace(info.Reference.Human),
	}, nil
}

// FetchVersion fetches the metadata record of one version by its bible id.
func (c *Client) FetchVersion(ctx context.Context, bibleID int) (*VersionInfo, error) {
	url := fmt.Sprintf(versionURLFormat, c.baseURL, bibleID)

	resp, err := c.fetcher.Get(ctx, url, c.timeout)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", core.ErrUpstreamUnavailable, url, resp.StatusCode)
	}

	var record versionRecord

	err = parseJSON(resp.Body, &record)
	if err != nil {
		return nil, err
	}

	if record.ID == 0 || record.Abbreviation == "" {
		return nil, fmt.Errorf("%w: %s is not a version record", core.ErrUpstreamUnavailable, url)
	}

	info := &VersionInfo{
		ID:            record.ID,
		Abbreviation:  record.Abbreviation,
		Title:         record.LocalTitle,
		Language:      record.Language.ISO6393,
		TextDirection: record.Language.TextDirection,
		Books:         make([]VersionBook, 0, len(record.Books)),
	}

	if info.Title == "" {
		info.Title = record.Title
	}

	for _, book := range record.Books {
		info.Books = append(info.Books, VersionBook{
			USFM:     book.USFM,
			Name:     book.Human,
			Chapters: len(book.Chapters),
		})
	}

	return info, nil
}

// parseJSON decodes an upstream body, treating a malformed body as an unexpected shape.
func parseJSON(data []byte, target any) error {
	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("%w: failed to unmarshal JSON: %w", core.ErrUpstreamUnavailable, err)
	}

	return nil
}
