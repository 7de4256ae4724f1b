package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"talkback/internal/bootstrap"
	"talkback/internal/config"
	"talkback/internal/domain"
	"talkback/internal/ports"
	"talkback/internal/usecase"
)

const (
	eventState      = "talkback:state"
	eventPartial    = "talkback:partial"
	eventTranscript = "talkback:transcript"
	eventResponse   = "talkback:response"
	eventError      = "talkback:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.TurnController
	clipboard  ports.Clipboard
	cfg        config.Config
	missing    []string
	bootErr    error
	logger     *zap.Logger
}

func NewApp(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{clipboard: &wailsClipboard{}, logger: logger}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a.logger)
	if err != nil {
		a.bootErr = err
		a.logger.Error("startup failed", zap.Error(err))
		a.TurnError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	if len(services.Missing) > 0 {
		a.missing = services.Missing
		a.logger.Warn("configuration incomplete", zap.Strings("missing", services.Missing))
		return
	}

	a.controller = services.Controller
	a.logger.Info("talkback ready", zap.String("transport", a.cfg.Transport))
	a.TurnStateChanged(domain.TurnStateIdle, domain.StateReasonReady)
}

// BeginTurn starts capturing a user turn while the talk button is held.
func (a *App) BeginTurn() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	status, err := a.controller.BeginTurn(a.ctx)
	if err != nil {
		a.TurnError(domain.ErrorCodeDevice, err.Error())
		return domain.Status{}, err
	}
	return status, nil
}

// EndTurn commits the held recording and starts the reply pipeline.
func (a *App) EndTurn() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	return a.controller.EndTurn(a.ctx), nil
}

// CancelTurn discards an in-progress recording without transcribing it.
func (a *App) CancelTurn() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.controller.CancelTurn(); err != nil {
		if errors.Is(err, usecase.ErrNoActiveTurn) {
			return nil
		}
		return err
	}
	return nil
}

// GetStatus returns the current turn status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.TurnStateIdle, Busy: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.TurnStateIdle, Busy: false}
	}
	return a.controller.Status()
}

// GetHistory returns the conversation so far.
func (a *App) GetHistory() []domain.Turn {
	if a.controller == nil {
		return nil
	}
	return a.controller.History()
}

// GetSetupStatus lists missing required environment variables. A non-empty
// list sends the frontend to its setup screen.
func (a *App) GetSetupStatus() []string {
	return a.missing
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	voice := a.cfg.OpenAI.Voice
	if a.cfg.ElevenLabs.APIKey != "" && a.cfg.ElevenLabs.VoiceID != "" {
		voice = "elevenlabs:" + a.cfg.ElevenLabs.VoiceID
	}

	return map[string]string{
		"transport":        a.cfg.Transport,
		"chatModel":        a.cfg.OpenAI.ChatModel,
		"transcriber":      transcriberLabel(a.cfg),
		"voice":            voice,
		"locale":           a.cfg.Locale,
		"rulesFile":        a.cfg.Rules.Path,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
	}
}

// SaveLastRecording writes the most recent clip to a user-chosen path.
// It returns the chosen path, or "" when the dialog was dismissed.
func (a *App) SaveLastRecording() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}

	clip, ok := a.controller.LastClip()
	if !ok {
		return "", errors.New("no recording available to save")
	}

	path, err := runtime.SaveFileDialog(a.ctx, runtime.SaveDialogOptions{
		Title:           "Save recording",
		DefaultFilename: "recording" + clipExtension(clip.MIME),
	})
	if err != nil {
		a.TurnError(domain.ErrorCodeSave, err.Error())
		return "", err
	}
	if path == "" {
		return "", nil
	}

	if err := os.WriteFile(path, clip.Data, 0o644); err != nil {
		a.TurnError(domain.ErrorCodeSave, err.Error())
		return "", fmt.Errorf("failed to save recording: %w", err)
	}
	return path, nil
}

// CopyTranscript places the last finished transcript on the clipboard.
func (a *App) CopyTranscript() error {
	if err := a.requireReady(); err != nil {
		return err
	}

	text := a.controller.LastTranscript()
	if text == "" {
		return errors.New("no transcript available to copy")
	}
	if err := a.clipboard.SetText(a.ctx, text); err != nil {
		a.TurnError(domain.ErrorCodeClipboard, err.Error())
		return err
	}
	return nil
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		if len(a.missing) > 0 {
			return fmt.Errorf("missing required configuration: %s", strings.Join(a.missing, ", "))
		}
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// TurnStateChanged emits turn lifecycle updates to the frontend.
func (a *App) TurnStateChanged(state domain.TurnState, reason domain.StateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventState, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": stateReasonMessage(reason),
	})
}

// PartialTranscript emits live partial transcript text.
func (a *App) PartialTranscript(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPartial, map[string]string{"text": text})
}

// TranscriptReady emits the committed user transcript.
func (a *App) TranscriptReady(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, map[string]string{"text": text})
}

// ResponseReady emits the assistant reply once it is about to be spoken.
func (a *App) ResponseReady(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventResponse, map[string]string{"text": text})
}

// TurnError emits backend errors to the UI.
func (a *App) TurnError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func stateReasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.StateReasonReady:
		return "Ready"
	case domain.StateReasonRecordingStarted:
		return "Listening..."
	case domain.StateReasonRecordingRestarted:
		return "Listening again; previous take discarded"
	case domain.StateReasonTranscribing:
		return "Got it. Transcribing..."
	case domain.StateReasonThinking:
		return "Thinking..."
	case domain.StateReasonSpeaking:
		return "Speaking..."
	case domain.StateReasonApology:
		return "Something went wrong"
	case domain.StateReasonTurnComplete:
		return "Turn complete"
	case domain.StateReasonNoSpeech:
		return "Didn't catch that"
	case domain.StateReasonRecordingDiscarded:
		return "Recording discarded"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeDevice:
		return "Microphone unavailable"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeDialogue:
		return "Assistant error"
	case domain.ErrorCodeSave:
		return "Save failed"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

func clipExtension(mime string) string {
	switch mime {
	case "audio/wav":
		return ".wav"
	case "audio/L16":
		return ".pcm"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".bin"
	}
}

func transcriberLabel(cfg config.Config) string {
	switch cfg.Transport {
	case config.TransportStream:
		return "Deepgram " + cfg.Deepgram.Model
	case config.TransportWebhook:
		return "webhook"
	default:
		return "OpenAI " + cfg.OpenAI.TranscribeModel
	}
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
