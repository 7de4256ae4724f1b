package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// EspeakSpeaker speaks text with the espeak-ng binary. It needs no
// network and no API key, which makes it the last resort of the chain.
type EspeakSpeaker struct {
	command string
	voice   string
}

func NewEspeakSpeaker(command, voice string) *EspeakSpeaker {
	if command == "" {
		command = "espeak-ng"
	}
	if voice == "" {
		voice = "en"
	}
	return &EspeakSpeaker{command: command, voice: voice}
}

func (e *EspeakSpeaker) Say(ctx context.Context, text string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.command, "-v", e.voice, "-s", "140", text)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return fmt.Errorf("espeak failed: %w: %s", err, detail)
		}
		return fmt.Errorf("espeak failed: %w", err)
	}
	return nil
}
