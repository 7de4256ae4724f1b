package speech

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"talkback/internal/domain"
)

// FFPlayPlayer plays synthesized audio with the ffplay binary.
type FFPlayPlayer struct {
	command string
}

func NewFFPlayPlayer(command string) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlayPlayer{command: command}
}

// Play writes the audio to a temporary file and blocks until ffplay has
// played it to the end.
func (p *FFPlayPlayer) Play(ctx context.Context, audio domain.Audio) error {
	if len(audio.Data) == 0 {
		return nil
	}

	ext := audio.Format
	if ext == "" {
		ext = "mp3"
	}

	file, err := os.CreateTemp("", "talkback-*."+ext)
	if err != nil {
		return fmt.Errorf("create playback file: %w", err)
	}
	path := file.Name()
	defer os.Remove(path)

	if _, err := file.Write(audio.Data); err != nil {
		_ = file.Close()
		return fmt.Errorf("write playback file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close playback file: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.command, "-nodisp", "-autoexit", "-loglevel", "error", path)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return fmt.Errorf("playback failed: %w: %s", err, detail)
		}
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}
