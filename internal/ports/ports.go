package ports

import (
	"context"

	"talkback/internal/domain"
)

// CaptureConfig describes how the microphone should be captured.
type CaptureConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
	Container   string
	ChunkSize   int
}

// CaptureSession is a live microphone session. Chunks carries encoded audio
// in emission order; the channel closes once the device is released.
type CaptureSession interface {
	Chunks() <-chan []byte
	Stop(ctx context.Context) error
	Abort()
}

// AudioCapture opens microphone capture sessions.
type AudioCapture interface {
	Open(ctx context.Context, cfg CaptureConfig) (CaptureSession, error)
}

// TranscriptionSession turns one recording into text. SendAudio forwards
// chunks as they are captured; transports that only consume the finished
// clip ignore them. Events carries interim transcripts and may be nil.
type TranscriptionSession interface {
	SendAudio(chunk []byte) error
	Events() <-chan domain.TranscriptEvent
	Finalize(ctx context.Context, clip domain.Clip) (string, error)
	Abort()
}

// Transcriber starts one transcription session per recording.
type Transcriber interface {
	Start(ctx context.Context) (TranscriptionSession, error)
}

// DialogueProvider completes the conversation with one assistant message.
type DialogueProvider interface {
	Complete(ctx context.Context, history []domain.Turn) (string, error)
}

// SpeechSynthesizer renders text into playable audio.
type SpeechSynthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (domain.Audio, error)
}

// AudioPlayer plays synthesized audio to completion.
type AudioPlayer interface {
	Play(ctx context.Context, audio domain.Audio) error
}

// LocalSpeaker speaks text on-device without remote synthesis.
type LocalSpeaker interface {
	Say(ctx context.Context, text string) error
}

// SpeechService speaks text, returning once playback has finished.
type SpeechService interface {
	Speak(ctx context.Context, text string) error
}

// Normalizer rewrites transcripts using deterministic rules.
type Normalizer interface {
	Apply(text string) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	TurnStateChanged(state domain.TurnState, reason domain.StateReason)
	PartialTranscript(text string)
	TranscriptReady(text string)
	ResponseReady(text string)
	TurnError(code domain.ErrorCode, detail string)
}
