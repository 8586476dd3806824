// Package cache fronts an object store with the deterministic key layout used for chapter
// text, version listings and narrated audio.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/scripture-service/internal/core"
)

// Content types.
const (
	ContentTypeJSON = "application/json"
	ContentTypeMP3  = "audio/mpeg"
)

// Key layouts.
const (
	textKeyFormat       = "text/%s/%s/%s.json"
	audioKeyFormat      = "audio/%s/%s/%s.mp3"
	versionsByLangFmt   = "versions/%s/index.json"
	versionKeyFormat    = "versions/%s.json"
	versionsIndexKey    = "versions/index.json"
	errFmtEncodeFailure = "%w: failed to encode %s: %w"
)

// TextKey returns the key of a chapter's structured text.
func TextKey(version, book, chapter string) string {
	return fmt.Sprintf(textKeyFormat, version, strings.ToUpper(book), chapter)
}

// AudioKey returns the key of a chapter's narration.
func AudioKey(version, book, chapter string) string {
	return fmt.Sprintf(audioKeyFormat, version, strings.ToUpper(book), chapter)
}

// VersionsByLanguageKey returns the key of the version listing for a 3-letter language code.
func VersionsByLanguageKey(language string) string {
	return fmt.Sprintf(versionsByLangFmt, language)
}

// VersionKey returns the key of one version's metadata.
func VersionKey(version string) string {
	return fmt.Sprintf(versionKeyFormat, version)
}

// VersionsIndexKey returns the key of the language index.
func VersionsIndexKey() string {
	return versionsIndexKey
}

// ContentCache stores and retrieves cached artifacts. Writes are last-write-wins.
type ContentCache struct {
	store core.ObjectStore
	log   *logger.Logger
}

// New creates a cache over store.
func New(store core.ObjectStore, log *logger.Logger) *ContentCache {
	return &ContentCache{store: store, log: log}
}

// Exists reports whether key is cached.
func (c *ContentCache) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}

	return exists, nil
}

// Get returns the cached bytes of key.
func (c *ContentCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.store.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}

	return data, nil
}

// GetJSON decodes the cached JSON document at key into target.
func (c *ContentCache) GetJSON(ctx context.Context, key string, target any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}

	err = json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("%w: cached object %s is not valid JSON: %w", core.ErrStorage, key, err)
	}

	return nil
}

// Put uploads the file at localPath under key and returns its public URL. The local file is
// removed after the upload attempt whatever its outcome.
func (c *ContentCache) Put(ctx context.Context, key, localPath, contentType string) (string, error) {
	defer c.removeLocal(localPath)

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %w", core.ErrStorage, localPath, err)
	}

	err = c.store.Upload(ctx, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrStorage, err)
	}

	c.log.Info("Cached %s (%d bytes).", key, len(data))

	return c.store.URL(key), nil
}

// PutJSON encodes value and stores it under key.
func (c *ContentCache) PutJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf(errFmtEncodeFailure, core.ErrStorage, key, err)
	}

	err = c.store.Upload(ctx, key, data, ContentTypeJSON)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorage, err)
	}

	return nil
}

// URL returns the public address of key.
func (c *ContentCache) URL(key string) string {
	return c.store.URL(key)
}

func (c *ContentCache) removeLocal(localPath string) {
	err := os.Remove(localPath)
	if err != nil && !os.IsNotExist(err) {
		c.log.Warn("Failed to remove staged file %s: %v", localPath, err)
	}
}
