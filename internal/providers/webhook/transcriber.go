// Package webhook sends finished recordings to a user-supplied HTTP
// endpoint and reads the transcript back from its JSON response.
package webhook

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"talkback/internal/domain"
	"talkback/internal/ports"
)

const defaultRequestTimeout = 60 * time.Second

// Transcriber posts the complete clip as a base64 data URL and expects
// the transcript in the response body.
type Transcriber struct {
	url    string
	client *http.Client
}

// NewTranscriber builds a webhook transcriber for the given endpoint.
// A nil client gets a default with a request timeout.
func NewTranscriber(url string, client *http.Client) *Transcriber {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Transcriber{url: url, client: client}
}

// Start validates the endpoint and returns a session that transcribes
// on Finalize. The webhook protocol has no live stream, so SendAudio
// and Events are inert.
func (t *Transcriber) Start(_ context.Context) (ports.TranscriptionSession, error) {
	if t.url == "" {
		return nil, errors.New("webhook URL is not configured")
	}
	return &webhookSession{url: t.url, client: t.client}, nil
}

type webhookSession struct {
	url    string
	client *http.Client
}

func (s *webhookSession) SendAudio(_ []byte) error { return nil }

func (s *webhookSession) Events() <-chan domain.TranscriptEvent { return nil }

func (s *webhookSession) Abort() {}

type webhookRequest struct {
	Data string `json:"data"`
}

type webhookResponse struct {
	SpeechInputText string `json:"speechInputText"`
}

func (s *webhookSession) Finalize(ctx context.Context, clip domain.Clip) (string, error) {
	payload, err := json.Marshal(webhookRequest{Data: dataURL(clip)})
	if err != nil {
		return "", fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode webhook response: %w", err)
	}
	return out.SpeechInputText, nil
}

func dataURL(clip domain.Clip) string {
	mime := clip.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(clip.Data)
}
