// Package worker serves chapter text and narration requests over NATS request/reply.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/scripture-service/internal/core"
	"github.com/book-expert/scripture-service/internal/narration"
	"github.com/book-expert/scripture-service/internal/scripture"
)

// Default request and shutdown deadlines.
const (
	DefaultTextTimeout  = 2 * time.Minute
	DefaultAudioTimeout = 10 * time.Minute
	DefaultDrainTimeout = 30 * time.Second

	drainPollInterval = 10 * time.Millisecond
)

var (
	// ErrSubjectEmpty indicates that a request subject is not configured.
	ErrSubjectEmpty = errors.New("subject cannot be empty")
	// ErrServiceMissing indicates that a service dependency is nil.
	ErrServiceMissing = errors.New("service dependency is required")
	// ErrShuttingDown is reported to requests that arrive after shutdown has begun.
	ErrShuttingDown = errors.New("worker is shutting down")
	// ErrDrainTimeout indicates that a subscription did not finish draining in time.
	ErrDrainTimeout = errors.New("subscription drain timed out")
)

// TextService supplies structured chapter text.
type TextService interface {
	GetChapterText(ctx context.Context, ref scripture.ChapterReference) (*scripture.StructuredChapter, error)
}

// AudioService supplies chapter narrations.
type AudioService interface {
	Narrate(ctx context.Context, ref scripture.ChapterReference) (*narration.Artifact, error)
}

// Options configures subjects, queue group and deadlines.
type Options struct {
	TextSubject     string
	AudioSubject    string
	QueueGroup      string
	DefaultLanguage string
	TextTimeout     time.Duration
	AudioTimeout    time.Duration
	DrainTimeout    time.Duration
}

// NatsWorker answers chapter requests on NATS subjects.
type NatsWorker struct {
	natsConnection *nats.Conn
	texts          TextService
	audio          AudioService
	opts           Options
	log            *logger.Logger

	// mu orders dispatches against shutdown so no request joins inFlight once Wait has begun.
	mu       sync.Mutex
	stopping bool
	inFlight sync.WaitGroup
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	texts TextService,
	audio AudioService,
	opts Options,
	log *logger.Logger,
) (*NatsWorker, error) {
	if opts.TextSubject == "" || opts.AudioSubject == "" {
		return nil, ErrSubjectEmpty
	}

	if texts == nil || audio == nil {
		return nil, ErrServiceMissing
	}

	if opts.TextTimeout <= 0 {
		opts.TextTimeout = DefaultTextTimeout
	}

	if opts.AudioTimeout <= 0 {
		opts.AudioTimeout = DefaultAudioTimeout
	}

	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		texts:          texts,
		audio:          audio,
		opts:           opts,
		log:            log,
	}, nil
}

// Run subscribes to both subjects and serves until ctx is cancelled. On shutdown, requests
// still pending on the subscriptions are answered with ErrShuttingDown; Run returns once both
// subscriptions have drained and every request already started has replied.
func (w *NatsWorker) Run(ctx context.Context) error {
	textSub, err := w.natsConnection.QueueSubscribe(w.opts.TextSubject, w.opts.QueueGroup, w.dispatch(w.handleText))
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.opts.TextSubject, err)
	}

	audioSub, err := w.natsConnection.QueueSubscribe(w.opts.AudioSubject, w.opts.QueueGroup, w.dispatch(w.handleAudio))
	if err != nil {
		_ = textSub.Unsubscribe()

		return fmt.Errorf("failed to subscribe to subject %s: %w", w.opts.AudioSubject, err)
	}

	w.log.System("Listening for requests on %s and %s.", w.opts.TextSubject, w.opts.AudioSubject)

	<-ctx.Done()

	w.mu.Lock()
	w.stopping = true
	w.mu.Unlock()

	w.log.System("Shutting down, draining %s and %s.", w.opts.TextSubject, w.opts.AudioSubject)

	drainErr := w.drain(textSub, audioSub)

	w.inFlight.Wait()

	if drainErr != nil {
		return fmt.Errorf("failed to drain subscriptions: %w", drainErr)
	}

	return nil
}

// drain starts draining every subscription and waits until the client has delivered the
// last pending message of each, or the drain timeout passes.
func (w *NatsWorker) drain(subs ...*nats.Subscription) error {
	errs := make([]error, 0, len(subs))

	for _, sub := range subs {
		errs = append(errs, sub.Drain())
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.opts.DrainTimeout)
	defer cancel()

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for _, sub := range subs {
	wait:
		for sub.IsValid() {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("%w: %s", ErrDrainTimeout, sub.Subject))

				break wait
			}
		}
	}

	return errors.Join(errs...)
}

// dispatch runs each request on its own goroutine so a long narration does not hold up
// the subscription. Once shutdown has begun the handler runs inline with ErrShuttingDown.
func (w *NatsWorker) dispatch(handler func(*nats.Msg, error)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		w.mu.Lock()

		if w.stopping {
			w.mu.Unlock()
			handler(msg, ErrShuttingDown)

			return
		}

		w.inFlight.Add(1)
		w.mu.Unlock()

		go func() {
			defer w.inFlight.Done()

			handler(msg, nil)
		}()
	}
}

func (w *NatsWorker) handleText(msg *nats.Msg, refusal error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.TextTimeout)
	defer cancel()

	request, ref, err := w.parseRequest(msg)
	reply := TextReply{Header: replyHeader(request.Header)}

	if err == nil {
		err = refusal
	}

	if err == nil {
		reply.Chapter, err = w.texts.GetChapterText(ctx, ref)
	}

	if err != nil {
		w.log.Error("Text request for workflow %s failed: %v", request.Header.WorkflowID, err)
		reply.Error = replyError(err)
	}

	w.respond(msg, reply, request.Header.WorkflowID)
}

func (w *NatsWorker) handleAudio(msg *nats.Msg, refusal error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.AudioTimeout)
	defer cancel()

	request, ref, err := w.parseRequest(msg)
	reply := AudioReply{Header: replyHeader(request.Header)}

	if err == nil {
		err = refusal
	}

	if err == nil {
		reply.Artifact, err = w.audio.Narrate(ctx, ref)
	}

	if err != nil {
		w.log.Error("Audio request for workflow %s failed: %v", request.Header.WorkflowID, err)
		reply.Error = replyError(err)
	}

	w.respond(msg, reply, request.Header.WorkflowID)
}

func (w *NatsWorker) parseRequest(msg *nats.Msg) (ChapterRequest, scripture.ChapterReference, error) {
	var request ChapterRequest

	err := json.Unmarshal(msg.Data, &request)
	if err != nil {
		return request, scripture.ChapterReference{}, fmt.Errorf("%w: failed to unmarshal request: %w", core.ErrClient, err)
	}

	if request.Locator == "" {
		return request, request.Reference, nil
	}

	ref, err := scripture.ParseReference(request.Locator, w.opts.DefaultLanguage)

	return request, ref, err
}

// respond marshals and sends the reply.
func (w *NatsWorker) respond(msg *nats.Msg, reply any, workflowID string) {
	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal reply for workflow %s: %v", workflowID, err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply for workflow %s: %v", workflowID, err)
	}
}

// replyHeader keeps the request's workflow and tenant identity and stamps a new event.
func replyHeader(request events.EventHeader) events.EventHeader {
	header := request
	header.Timestamp = time.Now()
	header.EventID = uuid.NewString()

	if header.WorkflowID == "" {
		header.WorkflowID = uuid.NewString()
	}

	return header
}
