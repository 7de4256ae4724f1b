package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Transport selects how finished recordings become text.
const (
	TransportUpload  = "upload"
	TransportWebhook = "webhook"
	TransportStream  = "stream"
)

// Config stores runtime configuration for the voice chat backend.
type Config struct {
	Transport string
	Locale    string

	OpenAI     OpenAIConfig
	Deepgram   DeepgramConfig
	ElevenLabs ElevenLabsConfig
	Webhook    WebhookConfig
	Audio      AudioConfig
	Speech     SpeechConfig
	Dialogue   DialogueConfig
	Rules      RulesConfig
	Turn       TurnConfig
}

type OpenAIConfig struct {
	APIKey          string
	APIBaseURL      string
	ChatModel       string
	TranscribeModel string
	TTSModel        string
	Voice           string
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool
}

type ElevenLabsConfig struct {
	APIKey  string
	VoiceID string
}

type WebhookConfig struct {
	URL string
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	Container       string
	SampleRate      int
	Channels        int
	ChunkSize       int
	MinClipBytes    int
}

type SpeechConfig struct {
	PlayerCommand string
	EspeakCommand string
}

type DialogueConfig struct {
	SystemPrompt string
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

type TurnConfig struct {
	TranscribeTimeout time.Duration
	DialogueTimeout   time.Duration
	SpeakTimeout      time.Duration
	StreamingGrace    time.Duration
}

const defaultSystemPrompt = "You are a helpful voice assistant. Keep replies short and conversational."

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	rulesPath := strings.TrimSpace(os.Getenv("TALKBACK_RULES_FILE"))
	if rulesPath == "" {
		rulesPath = firstExisting(defaultRulesCandidates(home)...)
	}

	cfg := Config{
		Transport: strings.ToLower(envOrDefault("TALKBACK_TRANSPORT", TransportUpload)),
		Locale:    envOrDefault("TALKBACK_LOCALE", "en-US"),
		OpenAI: OpenAIConfig{
			APIKey:          strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			APIBaseURL:      envOrDefault("OPENAI_API_BASE", "https://api.openai.com/v1"),
			ChatModel:       envOrDefault("TALKBACK_CHAT_MODEL", "gpt-4o-mini"),
			TranscribeModel: envOrDefault("TALKBACK_TRANSCRIBE_MODEL", "whisper-1"),
			TTSModel:        envOrDefault("TALKBACK_TTS_MODEL", "tts-1"),
			Voice:           envOrDefault("TALKBACK_TTS_VOICE", "nova"),
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
		},
		ElevenLabs: ElevenLabsConfig{
			APIKey:  strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
			VoiceID: strings.TrimSpace(os.Getenv("ELEVENLABS_VOICE_ID")),
		},
		Webhook: WebhookConfig{
			URL: strings.TrimSpace(os.Getenv("TALKBACK_WEBHOOK_URL")),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("TALKBACK_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("TALKBACK_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("TALKBACK_AUDIO_INPUT_DEVICE"),
				os.Getenv("PULSE_SOURCE"),
				"default",
			),
			Container:    strings.ToLower(envOrDefault("TALKBACK_AUDIO_CONTAINER", "wav")),
			SampleRate:   envOrDefaultInt("TALKBACK_SAMPLE_RATE", 16000),
			Channels:     envOrDefaultInt("TALKBACK_CHANNELS", 1),
			ChunkSize:    envOrDefaultInt("TALKBACK_AUDIO_CHUNK_SIZE", 4096),
			MinClipBytes: envOrDefaultInt("TALKBACK_MIN_CLIP_BYTES", 4096),
		},
		Speech: SpeechConfig{
			PlayerCommand: envOrDefault("TALKBACK_PLAYER_COMMAND", "ffplay"),
			EspeakCommand: envOrDefault("TALKBACK_ESPEAK_COMMAND", "espeak-ng"),
		},
		Dialogue: DialogueConfig{
			SystemPrompt: envOrDefault("TALKBACK_SYSTEM_PROMPT", defaultSystemPrompt),
		},
		Rules: RulesConfig{
			Path:           rulesPath,
			IterationLimit: envOrDefaultInt("TALKBACK_RULE_ITERATION_LIMIT", 30),
		},
		Turn: TurnConfig{
			TranscribeTimeout: envOrDefaultMillis("TALKBACK_TRANSCRIBE_TIMEOUT_MS", 60*time.Second),
			DialogueTimeout:   envOrDefaultMillis("TALKBACK_DIALOGUE_TIMEOUT_MS", 60*time.Second),
			SpeakTimeout:      envOrDefaultMillis("TALKBACK_SPEAK_TIMEOUT_MS", 120*time.Second),
			StreamingGrace:    envOrDefaultMillis("TALKBACK_STREAMING_GRACE_MS", time.Second),
		},
	}

	switch cfg.Transport {
	case TransportUpload, TransportWebhook, TransportStream:
	default:
		cfg.Transport = TransportUpload
	}
	switch cfg.Audio.Container {
	case "wav", "s16le":
	default:
		cfg.Audio.Container = "wav"
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if cfg.Audio.MinClipBytes < 0 {
		cfg.Audio.MinClipBytes = 4096
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}

	return cfg, nil
}

// Missing lists the environment variables the selected configuration
// cannot run without.
func (c Config) Missing() []string {
	var missing []string
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.Transport == TransportStream && c.Deepgram.APIKey == "" {
		missing = append(missing, "DEEPGRAM_API_KEY")
	}
	if c.Transport == TransportWebhook && c.Webhook.URL == "" {
		missing = append(missing, "TALKBACK_WEBHOOK_URL")
	}
	return missing
}

func defaultRulesCandidates(home string) []string {
	var candidates []string
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "talkback", "substitutions.rules"))
	}
	candidates = append(candidates, filepath.Join(home, ".config", "talkback", "substitutions.rules"))
	return candidates
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}
