package domain

// TurnState models the press-and-hold conversation lifecycle.
type TurnState string

const (
	TurnStateIdle         TurnState = "idle"
	TurnStateRecording    TurnState = "recording"
	TurnStateTranscribing TurnState = "transcribing"
	TurnStateConversing   TurnState = "conversing"
	TurnStateSpeaking     TurnState = "speaking"
)

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	StateReasonReady              StateReason = "ready"
	StateReasonRecordingStarted   StateReason = "recording_started"
	StateReasonRecordingRestarted StateReason = "recording_restarted"
	StateReasonTranscribing       StateReason = "transcribing"
	StateReasonThinking           StateReason = "thinking"
	StateReasonSpeaking           StateReason = "speaking"
	StateReasonApology            StateReason = "apology"
	StateReasonTurnComplete       StateReason = "turn_complete"
	StateReasonNoSpeech           StateReason = "no_speech"
	StateReasonRecordingDiscarded StateReason = "recording_discarded"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeDevice        ErrorCode = "device"
	ErrorCodeAudioStop     ErrorCode = "audio_stop"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeDialogue      ErrorCode = "dialogue"
	ErrorCodeSave          ErrorCode = "save"
	ErrorCodeClipboard     ErrorCode = "clipboard"
)

// Role attributes a conversation turn to its speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the conversation history. Immutable once appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Clip is the finalized encoded audio of one recording session.
type Clip struct {
	Data []byte `json:"-"`
	MIME string `json:"mime"`
}

// Audio is playable synthesized speech.
type Audio struct {
	Data   []byte
	Format string
}

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// Status summarizes the current runtime status.
type Status struct {
	State   TurnState `json:"state"`
	Busy    bool      `json:"busy"`
	Message string    `json:"message,omitempty"`
}

// ApologyText is spoken when a turn fails. It is only spoken, never
// appended to the conversation history.
const ApologyText = "Sorry, something went wrong. Please try again."
