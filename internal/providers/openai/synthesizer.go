package openai

import (
	"context"
	"fmt"
	"io"

	goopenai "github.com/sashabaranov/go-openai"

	"talkback/internal/domain"
)

// Synthesizer renders speech through the TTS endpoint.
type Synthesizer struct {
	client *goopenai.Client
	model  goopenai.SpeechModel
	voice  goopenai.SpeechVoice
}

func NewSynthesizer(client *goopenai.Client, model string, voice string) *Synthesizer {
	if model == "" {
		model = string(goopenai.TTSModel1)
	}
	if voice == "" {
		voice = string(goopenai.VoiceNova)
	}
	return &Synthesizer{
		client: client,
		model:  goopenai.SpeechModel(model),
		voice:  goopenai.SpeechVoice(voice),
	}
}

func (s *Synthesizer) Name() string { return "openai" }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (domain.Audio, error) {
	response, err := s.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: goopenai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return domain.Audio{}, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer response.Close()

	data, err := io.ReadAll(response)
	if err != nil {
		return domain.Audio{}, fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	return domain.Audio{Data: data, Format: "mp3"}, nil
}
