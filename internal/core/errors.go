package core

import "errors"

var (
	// ErrClient indicates an invalid request: unknown version, book or language, or a malformed reference.
	ErrClient = errors.New("client error")
	// ErrTokenUnavailable indicates the upstream address token could not be extracted.
	ErrTokenUnavailable = errors.New("upstream token unavailable")
	// ErrUpstreamStaleToken indicates the upstream rejected the current token with a not-found response.
	ErrUpstreamStaleToken = errors.New("upstream token is stale")
	// ErrUpstreamUnavailable indicates a network failure, timeout or unexpected response shape.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrParse indicates the chapter markup lacked its root structural elements.
	ErrParse = errors.New("markup parse error")
	// ErrSynthesis indicates a chunk could not be synthesized.
	ErrSynthesis = errors.New("speech synthesis failed")
	// ErrConcatenation indicates the staged audio could not be merged.
	ErrConcatenation = errors.New("audio concatenation failed")
	// ErrStorage indicates a cache read or write failure.
	ErrStorage = errors.New("storage error")
)
