// Package core defines the interfaces and error taxonomy shared by the scripture service.
package core

import (
	"context"
	"time"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	// URL returns the public address an uploaded object is served from.
	URL(key string) string
}

// Voice holds the speech parameters for one supported language.
type Voice struct {
	Name     string `toml:"name"     json:"name"`
	Engine   string `toml:"engine"   json:"engine"`
	Language string `toml:"language" json:"language"`
}

// SynthesisRequest is a single chunk submitted to the speech capability.
type SynthesisRequest struct {
	Text   string
	Format string
	Voice  Voice
}

// Synthesizer defines the interface for a text-to-speech capability.
type Synthesizer interface {
	// Synthesize returns the Base64 encoded audio payload for one chunk.
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)
}

// Concatenator joins staged audio files into one file.
// Implementations must remove every input path before returning, whatever the outcome.
type Concatenator interface {
	Concatenate(ctx context.Context, inputs []string, output string) (string, error)
}

// HTTPResponse is the minimal view of an upstream response the pipeline needs.
type HTTPResponse struct {
	StatusCode int
	Body       []byte
}

// Fetcher performs a GET against an upstream address.
type Fetcher interface {
	Get(ctx context.Context, url string, timeout time.Duration) (*HTTPResponse, error)
}
