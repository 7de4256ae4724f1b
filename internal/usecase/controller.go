package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"talkback/internal/domain"
	"talkback/internal/ports"
)

var ErrNoActiveTurn = errors.New("no active recording turn")

// Config controls turn-taking behavior.
type Config struct {
	Capture ports.CaptureConfig

	// MinClipBytes discards accidental taps that produced no real audio.
	MinClipBytes int

	TranscribeTimeout time.Duration
	DialogueTimeout   time.Duration
	SpeakTimeout      time.Duration
}

// TurnController drives the press-and-hold conversation loop: capture
// while held, then transcribe, complete, and speak after release.
type TurnController struct {
	capture     ports.AudioCapture
	transcriber ports.Transcriber
	dialogue    ports.DialogueProvider
	speech      ports.SpeechService
	normalizer  ports.Normalizer
	events      ports.EventSink
	logger      *zap.Logger
	cfg         Config

	mu             sync.Mutex
	state          domain.TurnState
	current        *turn
	history        []domain.Turn
	lastClip       *domain.Clip
	lastTranscript string
}

func NewTurnController(
	capture ports.AudioCapture,
	transcriber ports.Transcriber,
	dialogue ports.DialogueProvider,
	speech ports.SpeechService,
	normalizer ports.Normalizer,
	events ports.EventSink,
	logger *zap.Logger,
	cfg Config,
) *TurnController {
	if cfg.Capture.ChunkSize < 256 {
		cfg.Capture.ChunkSize = 4096
	}
	if cfg.MinClipBytes <= 0 {
		cfg.MinClipBytes = 4096
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = 60 * time.Second
	}
	if cfg.DialogueTimeout <= 0 {
		cfg.DialogueTimeout = 60 * time.Second
	}
	if cfg.SpeakTimeout <= 0 {
		cfg.SpeakTimeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TurnController{
		capture:     capture,
		transcriber: transcriber,
		dialogue:    dialogue,
		speech:      speech,
		normalizer:  normalizer,
		events:      events,
		logger:      logger,
		cfg:         cfg,
		state:       domain.TurnStateIdle,
	}
}

// BeginTurn starts capturing a new user turn. Pressing again while a
// previous recording is still transcribing discards that turn and
// starts fresh; pressing during any later stage is ignored.
func (c *TurnController) BeginTurn(ctx context.Context) (domain.Status, error) {
	var stale *turn
	restarted := false

	c.mu.Lock()
	switch c.state {
	case domain.TurnStateRecording, domain.TurnStateConversing, domain.TurnStateSpeaking:
		// Recording during playback would capture the assistant's own
		// voice, and a committed user turn cannot be taken back.
		status := c.statusLocked()
		c.mu.Unlock()
		return status, nil
	case domain.TurnStateTranscribing:
		stale = c.current
		c.current = nil
		c.state = domain.TurnStateIdle
		restarted = true
	}
	c.mu.Unlock()

	if stale != nil {
		stale.cancel()
	}

	turnCtx, cancel := context.WithCancel(ctx)
	stream, err := c.transcriber.Start(turnCtx)
	if err != nil {
		cancel()
		return c.Status(), fmt.Errorf("failed to start transcription: %w", err)
	}

	session, err := c.capture.Open(turnCtx, c.cfg.Capture)
	if err != nil {
		stream.Abort()
		cancel()
		return c.Status(), fmt.Errorf("failed to open microphone: %w", err)
	}

	active := newTurn(turnCtx, cancel, session, stream)

	c.mu.Lock()
	if c.current != nil {
		// A concurrent press won the race to install its turn.
		status := c.statusLocked()
		c.mu.Unlock()
		session.Abort()
		stream.Abort()
		cancel()
		return status, nil
	}
	c.current = active
	c.state = domain.TurnStateRecording
	status := c.statusLocked()
	c.mu.Unlock()

	go c.collectAudio(active)
	go c.consumePartials(active)

	reason := domain.StateReasonRecordingStarted
	if restarted {
		reason = domain.StateReasonRecordingRestarted
	}
	c.logger.Info("recording started", zap.String("turn", active.id), zap.Bool("restarted", restarted))
	c.events.TurnStateChanged(domain.TurnStateRecording, reason)
	return status, nil
}

// EndTurn stops capturing and runs the rest of the turn asynchronously.
// Releasing when nothing is recording is a no-op.
func (c *TurnController) EndTurn(ctx context.Context) domain.Status {
	c.mu.Lock()
	if c.state != domain.TurnStateRecording || c.current == nil {
		status := c.statusLocked()
		c.mu.Unlock()
		return status
	}
	active := c.current
	c.state = domain.TurnStateTranscribing
	status := c.statusLocked()
	c.mu.Unlock()

	c.events.TurnStateChanged(domain.TurnStateTranscribing, domain.StateReasonTranscribing)

	if err := active.session.Stop(ctx); err != nil {
		c.logger.Warn("audio capture did not stop cleanly", zap.String("turn", active.id), zap.Error(err))
		c.events.TurnError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}
	<-active.collectDone

	clip := active.takeClip(clipMIME(c.cfg.Capture.Container))
	if len(clip.Data) < c.cfg.MinClipBytes {
		c.logger.Info("recording too short, discarding",
			zap.String("turn", active.id),
			zap.Int("bytes", len(clip.Data)))
		active.stream.Abort()
		c.settleTurn(active, domain.StateReasonRecordingDiscarded)
		return c.Status()
	}

	c.setLastClip(clip)
	go c.processTurn(active, clip)
	return status
}

// CancelTurn discards the recording in progress without transcribing it.
func (c *TurnController) CancelTurn() error {
	c.mu.Lock()
	if c.state != domain.TurnStateRecording || c.current == nil {
		c.mu.Unlock()
		return ErrNoActiveTurn
	}
	active := c.current
	// Leaving the recording state now makes a concurrent release a no-op.
	c.state = domain.TurnStateIdle
	c.mu.Unlock()

	active.session.Abort()
	active.stream.Abort()
	<-active.collectDone
	c.logger.Info("recording cancelled", zap.String("turn", active.id))
	c.settleTurn(active, domain.StateReasonRecordingDiscarded)
	return nil
}

// Status reports the current turn state.
func (c *TurnController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// History returns a copy of the conversation so far.
func (c *TurnController) History() []domain.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Turn, len(c.history))
	copy(out, c.history)
	return out
}

// LastClip returns the most recent recording that entered the pipeline.
func (c *TurnController) LastClip() (domain.Clip, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastClip == nil {
		return domain.Clip{}, false
	}
	return *c.lastClip, true
}

// LastTranscript returns the most recent recognized user utterance.
func (c *TurnController) LastTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTranscript
}

func (c *TurnController) processTurn(active *turn, clip domain.Clip) {
	text, err := c.transcribe(active, clip)
	if err != nil {
		c.failTurn(active, domain.ErrorCodeTranscription, err)
		return
	}

	if text == "" {
		c.logger.Info("no speech recognized", zap.String("turn", active.id))
		c.settleTurn(active, domain.StateReasonNoSpeech)
		return
	}

	normalized, normErr := c.normalizer.Apply(text)
	if normErr != nil {
		c.logger.Warn("transcript normalization failed, keeping raw text",
			zap.String("turn", active.id),
			zap.Error(normErr))
	} else {
		text = strings.TrimSpace(normalized)
	}
	if text == "" {
		c.settleTurn(active, domain.StateReasonNoSpeech)
		return
	}

	committed := c.applyIfCurrent(active, func() {
		c.state = domain.TurnStateConversing
		c.history = append(c.history, domain.Turn{Role: domain.RoleUser, Content: text})
		c.lastTranscript = text
	})
	if !committed {
		c.logger.Debug("discarding transcript of superseded turn", zap.String("turn", active.id))
		c.settleTurn(active, domain.StateReasonRecordingDiscarded)
		return
	}
	c.events.TranscriptReady(text)
	c.events.TurnStateChanged(domain.TurnStateConversing, domain.StateReasonThinking)

	reply, err := c.converse(active)
	if err == nil {
		reply = strings.TrimSpace(reply)
		if reply == "" {
			err = errors.New("assistant returned an empty reply")
		}
	}
	if err != nil {
		// The dangling user turn comes back out so the history keeps
		// alternating strictly.
		c.applyIfCurrent(active, func() {
			if n := len(c.history); n > 0 && c.history[n-1].Role == domain.RoleUser {
				c.history = c.history[:n-1]
			}
		})
		c.failTurn(active, domain.ErrorCodeDialogue, err)
		return
	}

	c.applyIfCurrent(active, func() {
		c.state = domain.TurnStateSpeaking
		c.history = append(c.history, domain.Turn{Role: domain.RoleAssistant, Content: reply})
	})
	c.events.ResponseReady(reply)
	c.events.TurnStateChanged(domain.TurnStateSpeaking, domain.StateReasonSpeaking)

	c.speak(active, reply)
	c.settleTurn(active, domain.StateReasonTurnComplete)
}

// failTurn speaks the apology and settles. The apology is only spoken,
// never appended to the history. Superseded turns fail silently.
func (c *TurnController) failTurn(active *turn, code domain.ErrorCode, err error) {
	defer c.settleTurn(active, domain.StateReasonTurnComplete)

	applied := c.applyIfCurrent(active, func() {
		c.state = domain.TurnStateSpeaking
	})
	if !applied {
		c.logger.Debug("discarding failure of superseded turn", zap.String("turn", active.id))
		return
	}

	c.logger.Error("turn failed",
		zap.String("turn", active.id),
		zap.String("code", string(code)),
		zap.Error(err))
	c.events.TurnError(code, err.Error())
	c.events.TurnStateChanged(domain.TurnStateSpeaking, domain.StateReasonApology)
	c.speak(active, domain.ApologyText)
}

func (c *TurnController) settleTurn(active *turn, reason domain.StateReason) {
	active.cancel()
	applied := c.applyIfCurrent(active, func() {
		c.state = domain.TurnStateIdle
		c.current = nil
	})
	if applied {
		c.events.TurnStateChanged(domain.TurnStateIdle, reason)
	}
}

func (c *TurnController) transcribe(active *turn, clip domain.Clip) (string, error) {
	ctx, cancel := c.stageContext(active, c.cfg.TranscribeTimeout)
	defer cancel()

	text, err := active.stream.Finalize(ctx, clip)
	<-active.partialsDone
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *TurnController) converse(active *turn) (string, error) {
	ctx, cancel := c.stageContext(active, c.cfg.DialogueTimeout)
	defer cancel()
	return c.dialogue.Complete(ctx, c.History())
}

// speak never fails the turn: the text already reached the history and
// the UI, so losing audio output is only worth a warning.
func (c *TurnController) speak(active *turn, text string) {
	ctx, cancel := c.stageContext(active, c.cfg.SpeakTimeout)
	defer cancel()
	if err := c.speech.Speak(ctx, text); err != nil {
		c.logger.Warn("speech playback failed", zap.String("turn", active.id), zap.Error(err))
	}
}

func (c *TurnController) stageContext(active *turn, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(active.ctx)
	}
	return context.WithTimeout(active.ctx, timeout)
}

// collectAudio buffers every captured chunk into the clip and forwards
// it to the live stream. A broken stream stops forwarding but never
// stops the clip.
func (c *TurnController) collectAudio(active *turn) {
	defer close(active.collectDone)

	sendBroken := false
	for chunk := range active.session.Chunks() {
		active.appendChunk(chunk)
		if sendBroken {
			continue
		}
		if err := active.stream.SendAudio(chunk); err != nil {
			sendBroken = true
			c.logger.Warn("live transcription stream lost, clip still captured",
				zap.String("turn", active.id),
				zap.Error(err))
		}
	}
}

func (c *TurnController) consumePartials(active *turn) {
	defer close(active.partialsDone)

	events := active.stream.Events()
	if events == nil {
		return
	}
	for event := range events {
		text := strings.TrimSpace(event.Text)
		if text == "" || event.Kind != domain.TranscriptKindPartial {
			continue
		}
		if !c.isCurrent(active) {
			continue
		}
		c.events.PartialTranscript(text)
	}
}

// applyIfCurrent runs mutate under the lock only while active still is
// the controller's current turn. Events are always emitted outside it.
func (c *TurnController) applyIfCurrent(active *turn, mutate func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != active {
		return false
	}
	mutate()
	return true
}

func (c *TurnController) isCurrent(active *turn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == active
}

func (c *TurnController) statusLocked() domain.Status {
	return domain.Status{State: c.state, Busy: c.state != domain.TurnStateIdle}
}

func (c *TurnController) setLastClip(clip domain.Clip) {
	c.mu.Lock()
	c.lastClip = &clip
	c.mu.Unlock()
}

func clipMIME(container string) string {
	switch container {
	case "", "wav":
		return "audio/wav"
	case "s16le":
		return "audio/L16"
	case "ogg":
		return "audio/ogg"
	case "mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
