// Package speech provides the HTTP client for the text-to-speech service.
//
// The service accepts one chunk of text per request together with the voice parameters and
// answers with the synthesized audio encoded as Base64.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/scripture-service/internal/core"
)

// API endpoints and paths.
const (
	apiSynthesize = "/v1/text:synthesize"
	apiHealth     = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerAPIKey      = "X-Api-Key"
	contentTypeJSON   = "application/json"
)

// DefaultFormat is the audio encoding requested when none is configured.
const DefaultFormat = "mp3"

// Error messages.
const (
	errFmtServiceErrorWithCode = "speech service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "speech service returned non-OK status: %s, body: %s"
)

var (
	errTextCannotBeEmpty  = errors.New("text cannot be empty")
	errReceivedEmptyAudio = errors.New("received empty audio content")
)

// HTTPClient represents a client for the speech synthesis HTTP service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// SynthesisPayload is the JSON body of a synthesis request.
type SynthesisPayload struct {
	Format string     `json:"format"`
	Texts  []string   `json:"texts"`
	Voice  core.Voice `json:"voice"`
}

// SynthesisResponse is the JSON body of a successful synthesis response.
type SynthesisResponse struct {
	AudioContent string `json:"audioContent"`
}

// ErrorResponse represents a structured error response from the speech service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPClient creates a client for the service at baseURL. The timeout applies to every
// request; apiKey may be empty for services that do not require one.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize sends one chunk for synthesis and returns the Base64 audio payload. Every failure
// wraps core.ErrSynthesis.
func (c *HTTPClient) Synthesize(ctx context.Context, req core.SynthesisRequest) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", fmt.Errorf("%w: %w", core.ErrSynthesis, errTextCannotBeEmpty)
	}

	format := req.Format
	if format == "" {
		format = DefaultFormat
	}

	requestBody, err := json.Marshal(SynthesisPayload{
		Format: format,
		Texts:  []string{req.Text},
		Voice:  req.Voice,
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal request: %w", core.ErrSynthesis, err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiSynthesize,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %w", core.ErrSynthesis, err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeJSON)

	if c.apiKey != "" {
		httpReq.Header.Set(headerAPIKey, c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: failed to send request to speech service at %s: %w",
			core.ErrSynthesis, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: %w", core.ErrSynthesis, parseErrorResponse(resp))
	}

	var synthesized SynthesisResponse

	err = json.NewDecoder(resp.Body).Decode(&synthesized)
	if err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %w", core.ErrSynthesis, err)
	}

	if synthesized.AudioContent == "" {
		return "", fmt.Errorf("%w: %w", core.ErrSynthesis, errReceivedEmptyAudio)
	}

	return synthesized.AudioContent, nil
}

// HealthCheck verifies that the speech service is running.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// parseErrorResponse decodes a structured JSON error, falling back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}
