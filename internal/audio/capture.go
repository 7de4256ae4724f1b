package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"talkback/internal/ports"
)

// FFmpegCapture records microphone audio through an ffmpeg subprocess.
type FFmpegCapture struct {
	command string
}

func NewFFmpegCapture(command string) *FFmpegCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegCapture{command: command}
}

func (c *FFmpegCapture) Open(ctx context.Context, cfg ports.CaptureConfig) (ports.CaptureSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.Container == "" {
		cfg.Container = "wav"
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", cfg.Container,
		"-",
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// A manual pipe instead of StdoutPipe: Wait must not close the read end
	// before the tail of the recording has been drained.
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder pipe: %w", err)
	}
	cmd.Stdout = writer

	if err := cmd.Start(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}
	_ = writer.Close()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		_ = reader.Close()
		if err != nil {
			return nil, fmt.Errorf("recorder exited before capture started: %w: %s", err, trimSpaceSafe(stderr.String()))
		}
		return nil, errors.New("recorder exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	session := &captureSession{
		reader:  reader,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
		chunks:  make(chan []byte, 32),
	}
	go session.readLoop(cfg.ChunkSize)
	return session, nil
}

type captureSession struct {
	reader *os.File
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	chunks chan []byte

	stopOnce sync.Once
	stopErr  error
}

// Chunks delivers captured audio until the recorder pipe reaches EOF.
func (s *captureSession) Chunks() <-chan []byte {
	return s.chunks
}

func (s *captureSession) readLoop(chunkSize int) {
	defer close(s.chunks)
	defer func() { _ = s.reader.Close() }()

	buf := make([]byte, chunkSize)
	for {
		n, err := s.reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.chunks <- chunk
		}
		if err != nil {
			return
		}
	}
}

// Stop interrupts the recorder and waits for it to exit. The chunk channel
// closes once the remaining output has been drained.
func (s *captureSession) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		grace := time.NewTimer(1200 * time.Millisecond)
		defer grace.Stop()

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-grace.C:
			s.stopErr = s.killAndWait()
		case <-ctx.Done():
			s.stopErr = s.killAndWait()
		}

		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

// Abort kills the recorder without waiting for a clean shutdown.
func (s *captureSession) Abort() {
	s.stopOnce.Do(func() {
		_ = s.killAndWait()
	})
}

func (s *captureSession) killAndWait() error {
	if s.process != nil {
		_ = s.process.Kill()
	}
	err, ok := <-s.waitErr
	if !ok {
		return nil
	}
	return normalizeStopErr(err)
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
