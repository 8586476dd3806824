package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/scripture-service/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testChunk   = "Génesis 1. La creación. En el principio creó Dios los cielos y la tierra."
	testAPIKey  = "secret-key"
	testTimeout = 5 * time.Second
)

var testVoice = core.Voice{Name: "es-US-Neural2-B", Engine: "neural", Language: "es-US"}

func TestHTTPClient_Synthesize_Success(t *testing.T) {
	t.Parallel()

	audio := base64.StdEncoding.EncodeToString([]byte("ID3 audio bytes"))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, apiSynthesize, r.URL.Path)
		assert.Equal(t, contentTypeJSON, r.Header.Get(headerContentType))
		assert.Equal(t, testAPIKey, r.Header.Get(headerAPIKey))

		var payload SynthesisPayload

		err := json.NewDecoder(r.Body).Decode(&payload)
		assert.NoError(t, err)
		assert.Equal(t, DefaultFormat, payload.Format)
		assert.Equal(t, []string{testChunk}, payload.Texts)
		assert.Equal(t, testVoice, payload.Voice)

		w.Header().Set(headerContentType, contentTypeJSON)
		_ = json.NewEncoder(w).Encode(SynthesisResponse{AudioContent: audio})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL+"/", testAPIKey, testTimeout)

	encoded, err := client.Synthesize(context.Background(), core.SynthesisRequest{Text: testChunk, Voice: testVoice})
	require.NoError(t, err)
	assert.Equal(t, audio, encoded)
}

func TestHTTPClient_Synthesize_EmptyText(t *testing.T) {
	t.Parallel()

	client := NewHTTPClient("http://localhost:8000", "", testTimeout)

	_, err := client.Synthesize(context.Background(), core.SynthesisRequest{Text: "  "})
	require.ErrorIs(t, err, core.ErrSynthesis)
	require.ErrorIs(t, err, errTextCannotBeEmpty)
}

func TestHTTPClient_Synthesize_ServiceError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Detail: "voice not found", ErrorCode: "INVALID_VOICE"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", testTimeout)

	_, err := client.Synthesize(context.Background(), core.SynthesisRequest{Text: testChunk, Voice: testVoice})
	require.ErrorIs(t, err, core.ErrSynthesis)
	assert.Contains(t, err.Error(), "voice not found")
	assert.Contains(t, err.Error(), "INVALID_VOICE")
}

func TestHTTPClient_Synthesize_PlainTextError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", testTimeout)

	_, err := client.Synthesize(context.Background(), core.SynthesisRequest{Text: testChunk})
	require.ErrorIs(t, err, core.ErrSynthesis)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestHTTPClient_Synthesize_MissingAudio(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", testTimeout)

	_, err := client.Synthesize(context.Background(), core.SynthesisRequest{Text: testChunk})
	require.ErrorIs(t, err, core.ErrSynthesis)
	require.ErrorIs(t, err, errReceivedEmptyAudio)
}

func TestHTTPClient_Synthesize_Unreachable(t *testing.T) {
	t.Parallel()

	client := NewHTTPClient("http://127.0.0.1:1", "", time.Second)

	_, err := client.Synthesize(context.Background(), core.SynthesisRequest{Text: testChunk})
	require.ErrorIs(t, err, core.ErrSynthesis)
}

func TestHTTPClient_HealthCheck(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiHealth {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, NewHTTPClient(server.URL, "", testTimeout).HealthCheck(context.Background()))
	require.Error(t, NewHTTPClient("http://127.0.0.1:1", "", time.Second).HealthCheck(context.Background()))
}
