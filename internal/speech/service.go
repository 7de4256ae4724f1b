// Package speech turns assistant text into audible playback, falling
// back through synthesizers until one of them is heard.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"talkback/internal/ports"
)

// Service speaks text through an ordered chain of synthesizers. Each
// synthesizer is tried at most once per call; the first playable result
// wins. When all of them fail, the local speaker gets the last word.
type Service struct {
	synths   []ports.SpeechSynthesizer
	player   ports.AudioPlayer
	fallback ports.LocalSpeaker
	logger   *zap.Logger
}

func NewService(synths []ports.SpeechSynthesizer, player ports.AudioPlayer, fallback ports.LocalSpeaker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{synths: synths, player: player, fallback: fallback, logger: logger}
}

// Speak blocks until playback has finished so the microphone never
// hears the assistant talking.
func (s *Service) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var failures []error
	for _, synth := range s.synths {
		audio, err := synth.Synthesize(ctx, text)
		if err != nil {
			s.logger.Warn("speech synthesis failed",
				zap.String("synthesizer", synth.Name()),
				zap.Error(err))
			failures = append(failures, fmt.Errorf("%s: %w", synth.Name(), err))
			continue
		}

		if err := s.player.Play(ctx, audio); err != nil {
			s.logger.Warn("audio playback failed",
				zap.String("synthesizer", synth.Name()),
				zap.Error(err))
			failures = append(failures, fmt.Errorf("%s playback: %w", synth.Name(), err))
			continue
		}
		return nil
	}

	if s.fallback != nil {
		if err := s.fallback.Say(ctx, text); err != nil {
			s.logger.Warn("local speech fallback failed", zap.Error(err))
			failures = append(failures, fmt.Errorf("local fallback: %w", err))
		} else {
			return nil
		}
	}

	if len(failures) == 0 {
		return errors.New("no speech synthesizers configured")
	}
	return multierr.Combine(failures...)
}
