// Package elevenlabs synthesizes speech through the ElevenLabs
// text-to-speech HTTP API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"talkback/internal/domain"
)

const (
	defaultBaseURL        = "https://api.elevenlabs.io/v1"
	defaultModelID        = "eleven_multilingual_v2"
	defaultRequestTimeout = 60 * time.Second
)

// Synthesizer renders text with a single ElevenLabs voice.
type Synthesizer struct {
	apiKey  string
	voiceID string
	modelID string
	baseURL string
	client  *http.Client
}

func NewSynthesizer(apiKey, voiceID string) *Synthesizer {
	return &Synthesizer{
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: defaultModelID,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

func (s *Synthesizer) Name() string { return "elevenlabs" }

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (domain.Audio, error) {
	if s.apiKey == "" {
		return domain.Audio{}, errors.New("ELEVENLABS_API_KEY is not configured")
	}
	if s.voiceID == "" {
		return domain.Audio{}, errors.New("ELEVENLABS_VOICE_ID is not configured")
	}

	payload, err := json.Marshal(speechRequest{
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return domain.Audio{}, fmt.Errorf("encode speech request: %w", err)
	}

	url := s.baseURL + "/text-to-speech/" + s.voiceID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.Audio{}, fmt.Errorf("build speech request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Audio{}, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Audio{}, apiError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Audio{}, fmt.Errorf("read speech response: %w", err)
	}
	return domain.Audio{Data: data, Format: "mp3"}, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

	var parsed struct {
		Detail struct {
			Message string `json:"message"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Detail.Message != "" {
		return fmt.Errorf("elevenlabs returned status %d: %s", resp.StatusCode, parsed.Detail.Message)
	}
	return fmt.Errorf("elevenlabs returned status %d", resp.StatusCode)
}
