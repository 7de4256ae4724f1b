package openai

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"talkback/internal/domain"
	"talkback/internal/ports"
)

// Transcriber uploads finished clips to the audio transcription endpoint.
type Transcriber struct {
	client   *goopenai.Client
	model    string
	language string
}

// NewTranscriber builds an upload transcriber. The locale is reduced to its
// base language form ("en-US" becomes "en") as the model hint.
func NewTranscriber(client *goopenai.Client, model string, locale string) *Transcriber {
	if model == "" {
		model = goopenai.Whisper1
	}
	return &Transcriber{client: client, model: model, language: BaseLanguage(locale)}
}

func (t *Transcriber) Start(_ context.Context) (ports.TranscriptionSession, error) {
	return &uploadSession{transcriber: t}, nil
}

// uploadSession ignores live chunks; the whole clip is sent on Finalize.
type uploadSession struct {
	transcriber *Transcriber
}

func (s *uploadSession) SendAudio(_ []byte) error { return nil }

func (s *uploadSession) Events() <-chan domain.TranscriptEvent { return nil }

func (s *uploadSession) Abort() {}

func (s *uploadSession) Finalize(ctx context.Context, clip domain.Clip) (string, error) {
	request := goopenai.AudioRequest{
		Model:    s.transcriber.model,
		Reader:   bytes.NewReader(clip.Data),
		FilePath: "recording" + clipExtension(clip.MIME),
	}
	if s.transcriber.language != "" {
		request.Language = s.transcriber.language
	}

	response, err := s.transcriber.client.CreateTranscription(ctx, request)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	return response.Text, nil
}

// BaseLanguage reduces a locale code to its two-letter base form.
func BaseLanguage(locale string) string {
	trimmed := strings.TrimSpace(locale)
	if trimmed == "" {
		return ""
	}
	base := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == '-' || r == '_'
	})
	if len(base) == 0 {
		return ""
	}
	return strings.ToLower(base[0])
}

func clipExtension(mime string) string {
	switch mime {
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	default:
		return ".wav"
	}
}
