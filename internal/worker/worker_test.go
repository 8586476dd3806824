// Package worker_test tests the NATS request/reply worker.
package worker_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/scripture-service/internal/core"
	"github.com/book-expert/scripture-service/internal/narration"
	"github.com/book-expert/scripture-service/internal/scripture"
	"github.com/book-expert/scripture-service/internal/worker"
)

const (
	textSubject  = "test.scripture.text.get"
	audioSubject = "test.scripture.audio.get"
)

// mockTextService is a mock implementation of the TextService interface.
type mockTextService struct {
	mu            sync.Mutex
	GetShouldFail error
	requested     []scripture.ChapterReference
}

func (m *mockTextService) GetChapterText(
	_ context.Context,
	ref scripture.ChapterReference,
) (*scripture.StructuredChapter, error) {
	m.mu.Lock()
	m.requested = append(m.requested, ref)
	m.mu.Unlock()

	if m.GetShouldFail != nil {
		return nil, m.GetShouldFail
	}

	number := 1

	return &scripture.StructuredChapter{
		Title: "Génesis 1",
		USFM:  ref.USFM(),
		Content: []scripture.Entry{
			{Type: scripture.EntryVerse, Text: "En el principio creó Dios los cielos y la tierra.", Number: &number, USFM: "GEN.1.1"},
		},
		Language:      ref.Language,
		TextDirection: "ltr",
	}, nil
}

func (m *mockTextService) calls() []scripture.ChapterReference {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]scripture.ChapterReference(nil), m.requested...)
}

// mockAudioService is a mock implementation of the AudioService interface.
type mockAudioService struct {
	NarrateShouldFail error
	release           chan struct{}
	delay             time.Duration
	started           atomic.Int32
	finished          atomic.Int32
}

func (m *mockAudioService) Narrate(ctx context.Context, ref scripture.ChapterReference) (*narration.Artifact, error) {
	m.started.Add(1)
	defer m.finished.Add(1)

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.NarrateShouldFail != nil {
		return nil, m.NarrateShouldFail
	}

	return &narration.Artifact{
		Reference:  ref,
		StorageKey: "audio/" + ref.Version + "/" + ref.USFM() + ".mp3",
		MimeType:   "audio/mpeg",
		URL:        "https://cdn.example.com/audio/" + ref.Version + "/" + ref.USFM() + ".mp3",
	}, nil
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	require.NoError(t, err, "Failed to connect to test NATS server")

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	return natsConnection
}

func startWorker(
	t *testing.T,
	texts worker.TextService,
	audio worker.AudioService,
) (*nats.Conn, func()) {
	t.Helper()

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	workerInstance, err := worker.NewNatsWorker(natsConnection, texts, audio, worker.Options{
		TextSubject:     textSubject,
		AudioSubject:    audioSubject,
		QueueGroup:      "scripture-test",
		DefaultLanguage: "es",
		TextTimeout:     0,
		AudioTimeout:    0,
	}, testLogger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	// Both subscriptions share the requesting connection, so once they are registered the
	// server sees them before any later request.
	require.Eventually(t, func() bool {
		return natsConnection.NumSubscriptions() == 2
	}, 5*time.Second, 10*time.Millisecond)

	stop := func() {
		cancel()

		shutdownErr := <-errChan
		assert.NoError(t, shutdownErr, "worker.Run should not error on graceful shutdown")
	}

	return natsConnection, stop
}

func newHeader() events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}
}

func request(t *testing.T, natsConnection *nats.Conn, subject string, req worker.ChapterRequest, reply any) {
	t.Helper()

	data, err := json.Marshal(req)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request(subject, data, 5*time.Second)
	require.NoError(t, err, "Request should succeed and receive a reply")

	require.NoError(t, json.Unmarshal(replyMsg.Data, reply))
}

func TestNewNatsWorker_Validation(t *testing.T) {
	t.Parallel()

	testLogger, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	_, err = worker.NewNatsWorker(nil, &mockTextService{}, &mockAudioService{}, worker.Options{
		TextSubject: "", AudioSubject: audioSubject,
	}, testLogger)
	require.ErrorIs(t, err, worker.ErrSubjectEmpty)

	_, err = worker.NewNatsWorker(nil, nil, &mockAudioService{}, worker.Options{
		TextSubject: textSubject, AudioSubject: audioSubject,
	}, testLogger)
	require.ErrorIs(t, err, worker.ErrServiceMissing)
}

func TestTextRequest_Success(t *testing.T) {
	t.Parallel()

	texts := &mockTextService{}
	natsConnection, stop := startWorker(t, texts, &mockAudioService{})
	defer stop()

	req := worker.ChapterRequest{
		Header:    newHeader(),
		Reference: scripture.ChapterReference{Language: "es", Version: "RVR1960", Book: "GEN", Chapter: "1"},
	}

	var reply worker.TextReply
	request(t, natsConnection, textSubject, req, &reply)

	require.Nil(t, reply.Error)
	require.NotNil(t, reply.Chapter)
	assert.Equal(t, "GEN.1", reply.Chapter.USFM)
	assert.Equal(t, "Génesis 1", reply.Chapter.Title)
	assert.Equal(t, req.Header.WorkflowID, reply.Header.WorkflowID)
	assert.NotEqual(t, req.Header.EventID, reply.Header.EventID)
}

func TestTextRequest_Locator(t *testing.T) {
	t.Parallel()

	texts := &mockTextService{}
	natsConnection, stop := startWorker(t, texts, &mockAudioService{})
	defer stop()

	var reply worker.TextReply
	request(t, natsConnection, textSubject, worker.ChapterRequest{
		Header:  newHeader(),
		Locator: "RVR1960/JHN.3",
	}, &reply)

	require.Nil(t, reply.Error)
	require.NotNil(t, reply.Chapter)
	assert.Equal(t, "JHN.3", reply.Chapter.USFM)
	assert.Equal(t, "es", reply.Chapter.Language)
}

func TestTextRequest_ErrorKinds(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		kind string
	}{
		{"client", fmt.Errorf("%w: unknown version", core.ErrClient), worker.KindClient},
		{"parse", fmt.Errorf("%w: no chapter", core.ErrParse), worker.KindParse},
		{
			"stale after retry",
			fmt.Errorf("%w: %w", core.ErrUpstreamUnavailable, core.ErrUpstreamStaleToken),
			worker.KindUpstream,
		},
		{"token", fmt.Errorf("%w: %w", core.ErrUpstreamUnavailable, core.ErrTokenUnavailable), worker.KindUpstream},
		{"unknown", context.DeadlineExceeded, worker.KindInternal},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			natsConnection, stop := startWorker(t, &mockTextService{GetShouldFail: testCase.err}, &mockAudioService{})
			defer stop()

			var reply worker.TextReply
			request(t, natsConnection, textSubject, worker.ChapterRequest{
				Header:    newHeader(),
				Reference: scripture.ChapterReference{Language: "es", Version: "RVR1960", Book: "GEN", Chapter: "1"},
			}, &reply)

			require.NotNil(t, reply.Error)
			assert.Nil(t, reply.Chapter)
			assert.Equal(t, testCase.kind, reply.Error.Kind)
			assert.Contains(t, reply.Error.Message, testCase.err.Error())
		})
	}
}

func TestTextRequest_MalformedPayload(t *testing.T) {
	t.Parallel()

	texts := &mockTextService{}
	natsConnection, stop := startWorker(t, texts, &mockAudioService{})
	defer stop()

	replyMsg, err := natsConnection.Request(textSubject, []byte("not json"), 5*time.Second)
	require.NoError(t, err)

	var reply worker.TextReply
	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))
	require.NotNil(t, reply.Error)
	assert.Equal(t, worker.KindClient, reply.Error.Kind)
	assert.NotEmpty(t, reply.Header.WorkflowID)
}

func TestTextRequest_InvalidLocator(t *testing.T) {
	t.Parallel()

	texts := &mockTextService{}
	natsConnection, stop := startWorker(t, texts, &mockAudioService{})
	defer stop()

	var reply worker.TextReply
	request(t, natsConnection, textSubject, worker.ChapterRequest{Header: newHeader(), Locator: "GEN"}, &reply)

	require.NotNil(t, reply.Error)
	assert.Equal(t, worker.KindClient, reply.Error.Kind)
	assert.Empty(t, texts.calls())
}

func TestAudioRequest_Success(t *testing.T) {
	t.Parallel()

	natsConnection, stop := startWorker(t, &mockTextService{}, &mockAudioService{})
	defer stop()

	req := worker.ChapterRequest{
		Header:    newHeader(),
		Reference: scripture.ChapterReference{Language: "es", Version: "RVR1960", Book: "GEN", Chapter: "1"},
	}

	var reply worker.AudioReply
	request(t, natsConnection, audioSubject, req, &reply)

	require.Nil(t, reply.Error)
	require.NotNil(t, reply.Artifact)
	assert.Equal(t, "audio/RVR1960/GEN.1.mp3", reply.Artifact.StorageKey)
	assert.Equal(t, "https://cdn.example.com/audio/RVR1960/GEN.1.mp3", reply.Artifact.URL)
	assert.Equal(t, req.Header.WorkflowID, reply.Header.WorkflowID)
}

func TestAudioRequest_SynthesisFailure(t *testing.T) {
	t.Parallel()

	audio := &mockAudioService{NarrateShouldFail: fmt.Errorf("%w: chunk 2", core.ErrSynthesis)}
	natsConnection, stop := startWorker(t, &mockTextService{}, audio)
	defer stop()

	var reply worker.AudioReply
	request(t, natsConnection, audioSubject, worker.ChapterRequest{
		Header:    newHeader(),
		Reference: scripture.ChapterReference{Language: "es", Version: "RVR1960", Book: "GEN", Chapter: "1"},
	}, &reply)

	require.NotNil(t, reply.Error)
	assert.Nil(t, reply.Artifact)
	assert.Equal(t, worker.KindSynthesis, reply.Error.Kind)
}

func TestAudioRequest_DoesNotBlockText(t *testing.T) {
	t.Parallel()

	audio := &mockAudioService{release: make(chan struct{})}
	natsConnection, stop := startWorker(t, &mockTextService{}, audio)
	defer stop()

	data, err := json.Marshal(worker.ChapterRequest{
		Header:    newHeader(),
		Reference: scripture.ChapterReference{Language: "es", Version: "RVR1960", Book: "GEN", Chapter: "1"},
	})
	require.NoError(t, err)

	audioReply := make(chan *nats.Msg, 1)

	go func() {
		msg, requestErr := natsConnection.Request(audioSubject, data, 5*time.Second)
		if requestErr == nil {
			audioReply <- msg
		}

		close(audioReply)
	}()

	var textReply worker.TextReply
	request(t, natsConnection, textSubject, worker.ChapterRequest{
		Header:    newHeader(),
		Reference: scripture.ChapterReference{Language: "es", Version: "RVR1960", Book: "EXO", Chapter: "2"},
	}, &textReply)
	require.Nil(t, textReply.Error)

	close(audio.release)

	msg, ok := <-audioReply
	require.True(t, ok, "audio request should receive a reply")

	var reply worker.AudioReply
	require.NoError(t, json.Unmarshal(msg.Data, &reply))
	require.Nil(t, reply.Error)
}

func TestRun_ShutdownWaitsForStartedRequests(t *testing.T) {
	t.Parallel()

	const burst = 20

	audio := &mockAudioService{delay: 100 * time.Millisecond}
	natsConnection, stop := startWorker(t, &mockTextService{}, audio)

	inbox := nats.NewInbox()
	replies, err := natsConnection.SubscribeSync(inbox)
	require.NoError(t, err)

	data, err := json.Marshal(worker.ChapterRequest{
		Header:    newHeader(),
		Reference: scripture.ChapterReference{Language: "es", Version: "RVR1960", Book: "GEN", Chapter: "1"},
	})
	require.NoError(t, err)

	for range burst {
		require.NoError(t, natsConnection.PublishRequest(audioSubject, inbox, data))
	}

	require.NoError(t, natsConnection.Flush())
	require.Eventually(t, func() bool { return audio.started.Load() > 0 }, 5*time.Second, 5*time.Millisecond)

	stop()

	assert.Equal(t, audio.started.Load(), audio.finished.Load(), "every started request must finish before Run returns")

	answered, refused := 0, 0

	for range burst {
		msg, err := replies.NextMsg(5 * time.Second)
		require.NoError(t, err)

		var reply worker.AudioReply
		require.NoError(t, json.Unmarshal(msg.Data, &reply))

		if reply.Error != nil {
			assert.Equal(t, worker.KindShuttingDown, reply.Error.Kind)

			refused++

			continue
		}

		require.NotNil(t, reply.Artifact)

		answered++
	}

	assert.Equal(t, int(audio.finished.Load()), answered)
	assert.Equal(t, burst, answered+refused)
}

func TestRun_WaitsForInFlightRequest(t *testing.T) {
	t.Parallel()

	audio := &mockAudioService{release: make(chan struct{})}
	natsConnection, stop := startWorker(t, &mockTextService{}, audio)

	data, err := json.Marshal(worker.ChapterRequest{
		Header:    newHeader(),
		Reference: scripture.ChapterReference{Language: "es", Version: "RVR1960", Book: "GEN", Chapter: "1"},
	})
	require.NoError(t, err)

	pending := make(chan *nats.Msg, 1)

	go func() {
		msg, requestErr := natsConnection.Request(audioSubject, data, 5*time.Second)
		if requestErr == nil {
			pending <- msg
		}

		close(pending)
	}()

	require.Eventually(t, func() bool { return audio.started.Load() == 1 }, 5*time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})

	go func() {
		stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Run returned while a request was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(audio.release)
	<-stopped

	msg, ok := <-pending
	require.True(t, ok, "in-flight request should receive a reply")

	var reply worker.AudioReply
	require.NoError(t, json.Unmarshal(msg.Data, &reply))
	require.Nil(t, reply.Error)
	assert.Equal(t, int32(1), audio.finished.Load())
}
