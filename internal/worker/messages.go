package worker

import (
	"errors"

	"github.com/book-expert/events"

	"github.com/book-expert/scripture-service/internal/core"
	"github.com/book-expert/scripture-service/internal/narration"
	"github.com/book-expert/scripture-service/internal/scripture"
)

// Error kinds carried in replies.
const (
	KindClient        = "client"
	KindUpstream      = "upstream_unavailable"
	KindParse         = "parse"
	KindSynthesis     = "synthesis"
	KindConcatenation = "concatenation"
	KindStorage       = "storage"
	KindShuttingDown  = "shutting_down"
	KindInternal      = "internal"
)

// ChapterRequest asks for the text or narration of one chapter. Locator, when set, is parsed
// in the "lang/VERSION/BOOK.CHAPTER" form and takes precedence over Reference.
type ChapterRequest struct {
	Header    events.EventHeader         `json:"header"`
	Reference scripture.ChapterReference `json:"reference"`
	Locator   string                     `json:"locator,omitempty"`
}

// ReplyError describes a failed request.
type ReplyError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TextReply answers a text request.
type TextReply struct {
	Header  events.EventHeader           `json:"header"`
	Chapter *scripture.StructuredChapter `json:"chapter,omitempty"`
	Error   *ReplyError                  `json:"error,omitempty"`
}

// AudioReply answers a narration request.
type AudioReply struct {
	Header   events.EventHeader  `json:"header"`
	Artifact *narration.Artifact `json:"artifact,omitempty"`
	Error    *ReplyError         `json:"error,omitempty"`
}

var errorKinds = []struct {
	sentinel error
	kind     string
}{
	{core.ErrClient, KindClient},
	{core.ErrParse, KindParse},
	{core.ErrSynthesis, KindSynthesis},
	{core.ErrConcatenation, KindConcatenation},
	{core.ErrUpstreamUnavailable, KindUpstream},
	{core.ErrUpstreamStaleToken, KindUpstream},
	{core.ErrTokenUnavailable, KindUpstream},
	{core.ErrStorage, KindStorage},
	{ErrShuttingDown, KindShuttingDown},
}

func replyError(err error) *ReplyError {
	if err == nil {
		return nil
	}

	kind := KindInternal

	for _, candidate := range errorKinds {
		if errors.Is(err, candidate.sentinel) {
			kind = candidate.kind

			break
		}
	}

	return &ReplyError{Kind: kind, Message: err.Error()}
}
