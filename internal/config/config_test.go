package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// resetEnv blanks every variable Load reads so values from the host
// environment cannot leak into assertions.
func resetEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"TALKBACK_TRANSPORT", "TALKBACK_LOCALE",
		"OPENAI_API_KEY", "OPENAI_API_BASE",
		"TALKBACK_CHAT_MODEL", "TALKBACK_TRANSCRIBE_MODEL",
		"TALKBACK_TTS_MODEL", "TALKBACK_TTS_VOICE",
		"DEEPGRAM_API_KEY", "DEEPGRAM_API_BASE", "DEEPGRAM_MODEL", "DEEPGRAM_SMART_FORMAT",
		"ELEVENLABS_API_KEY", "ELEVENLABS_VOICE_ID",
		"TALKBACK_WEBHOOK_URL",
		"TALKBACK_FFMPEG_COMMAND", "TALKBACK_AUDIO_INPUT_FORMAT", "TALKBACK_AUDIO_INPUT_DEVICE",
		"PULSE_SOURCE", "TALKBACK_AUDIO_CONTAINER",
		"TALKBACK_SAMPLE_RATE", "TALKBACK_CHANNELS",
		"TALKBACK_AUDIO_CHUNK_SIZE", "TALKBACK_MIN_CLIP_BYTES",
		"TALKBACK_PLAYER_COMMAND", "TALKBACK_ESPEAK_COMMAND",
		"TALKBACK_SYSTEM_PROMPT",
		"TALKBACK_RULES_FILE", "TALKBACK_RULE_ITERATION_LIMIT",
		"TALKBACK_TRANSCRIBE_TIMEOUT_MS", "TALKBACK_DIALOGUE_TIMEOUT_MS",
		"TALKBACK_SPEAK_TIMEOUT_MS", "TALKBACK_STREAMING_GRACE_MS",
		"XDG_CONFIG_HOME",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
	t.Setenv("HOME", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	resetEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Transport != TransportUpload {
		t.Fatalf("expected upload transport, got %q", cfg.Transport)
	}
	if cfg.Locale != "en-US" {
		t.Fatalf("expected en-US locale, got %q", cfg.Locale)
	}
	if cfg.OpenAI.APIBaseURL != "https://api.openai.com/v1" {
		t.Fatalf("unexpected openai base: %q", cfg.OpenAI.APIBaseURL)
	}
	if cfg.OpenAI.ChatModel != "gpt-4o-mini" || cfg.OpenAI.TranscribeModel != "whisper-1" {
		t.Fatalf("unexpected openai models: %+v", cfg.OpenAI)
	}
	if cfg.OpenAI.TTSModel != "tts-1" || cfg.OpenAI.Voice != "nova" {
		t.Fatalf("unexpected speech model/voice: %+v", cfg.OpenAI)
	}
	if cfg.Deepgram.Model != "nova-2" || !cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
	if cfg.Audio.RecorderCommand != "ffmpeg" || cfg.Audio.InputFormat != "pulse" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.InputDevice != "default" {
		t.Fatalf("expected default input device, got %q", cfg.Audio.InputDevice)
	}
	if cfg.Audio.Container != "wav" {
		t.Fatalf("expected wav container, got %q", cfg.Audio.Container)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected sample/channels: %+v", cfg.Audio)
	}
	if cfg.Audio.ChunkSize != 4096 || cfg.Audio.MinClipBytes != 4096 {
		t.Fatalf("unexpected chunk/min clip: %+v", cfg.Audio)
	}
	if cfg.Speech.PlayerCommand != "ffplay" || cfg.Speech.EspeakCommand != "espeak-ng" {
		t.Fatalf("unexpected speech config: %+v", cfg.Speech)
	}
	if cfg.Dialogue.SystemPrompt == "" {
		t.Fatal("expected a default system prompt")
	}
	wantRules := filepath.Join(os.Getenv("HOME"), ".config", "talkback", "substitutions.rules")
	if cfg.Rules.Path != wantRules {
		t.Fatalf("expected default rules path %q, got %q", wantRules, cfg.Rules.Path)
	}
	if cfg.Rules.IterationLimit != 30 {
		t.Fatalf("expected default iteration limit, got %d", cfg.Rules.IterationLimit)
	}
	if cfg.Turn.TranscribeTimeout != 60*time.Second || cfg.Turn.DialogueTimeout != 60*time.Second {
		t.Fatalf("unexpected turn timeouts: %+v", cfg.Turn)
	}
	if cfg.Turn.SpeakTimeout != 120*time.Second || cfg.Turn.StreamingGrace != time.Second {
		t.Fatalf("unexpected turn timeouts: %+v", cfg.Turn)
	}
}

func TestLoadUsesRulesFallbackOrder(t *testing.T) {
	resetEnv(t)

	home := os.Getenv("HOME")
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	homeRules := filepath.Join(home, ".config", "talkback", "substitutions.rules")
	xdgRules := filepath.Join(xdg, "talkback", "substitutions.rules")

	if err := os.MkdirAll(filepath.Dir(homeRules), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(homeRules, []byte("a => b\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Rules.Path != homeRules {
		t.Fatalf("expected home fallback, got %q", cfg.Rules.Path)
	}

	if err := os.MkdirAll(filepath.Dir(xdgRules), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(xdgRules, []byte("a => c\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg2, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg2.Rules.Path != xdgRules {
		t.Fatalf("expected xdg rules priority, got %q", cfg2.Rules.Path)
	}
}

func TestLoadRespectsOverridesAndFallbacks(t *testing.T) {
	resetEnv(t)

	rules := filepath.Join(t.TempDir(), "my.rules")
	if err := os.WriteFile(rules, []byte("x => y\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("TALKBACK_TRANSPORT", "STREAM")
	t.Setenv("TALKBACK_LOCALE", "de-DE")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_API_BASE", "http://127.0.0.1:9000/v1")
	t.Setenv("TALKBACK_CHAT_MODEL", "gpt-4o")
	t.Setenv("TALKBACK_TRANSCRIBE_MODEL", "whisper-large")
	t.Setenv("TALKBACK_TTS_MODEL", "tts-1-hd")
	t.Setenv("TALKBACK_TTS_VOICE", "alloy")
	t.Setenv("DEEPGRAM_API_KEY", "dg-test")
	t.Setenv("DEEPGRAM_API_BASE", "https://example.com/v1")
	t.Setenv("DEEPGRAM_MODEL", "nova-3")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "false")
	t.Setenv("ELEVENLABS_API_KEY", "el-test")
	t.Setenv("ELEVENLABS_VOICE_ID", "voice-123")
	t.Setenv("TALKBACK_WEBHOOK_URL", "http://127.0.0.1:9100/hook")
	t.Setenv("TALKBACK_FFMPEG_COMMAND", "my-ffmpeg")
	t.Setenv("TALKBACK_AUDIO_INPUT_FORMAT", "alsa")
	t.Setenv("TALKBACK_AUDIO_INPUT_DEVICE", "mic0")
	t.Setenv("TALKBACK_AUDIO_CONTAINER", "s16le")
	t.Setenv("TALKBACK_SAMPLE_RATE", "22050")
	t.Setenv("TALKBACK_CHANNELS", "2")
	t.Setenv("TALKBACK_AUDIO_CHUNK_SIZE", "512")
	t.Setenv("TALKBACK_MIN_CLIP_BYTES", "1024")
	t.Setenv("TALKBACK_PLAYER_COMMAND", "mpv")
	t.Setenv("TALKBACK_ESPEAK_COMMAND", "espeak")
	t.Setenv("TALKBACK_SYSTEM_PROMPT", "Answer in rhyme.")
	t.Setenv("TALKBACK_RULES_FILE", rules)
	t.Setenv("TALKBACK_RULE_ITERATION_LIMIT", "42")
	t.Setenv("TALKBACK_TRANSCRIBE_TIMEOUT_MS", "15000")
	t.Setenv("TALKBACK_DIALOGUE_TIMEOUT_MS", "20000")
	t.Setenv("TALKBACK_SPEAK_TIMEOUT_MS", "30000")
	t.Setenv("TALKBACK_STREAMING_GRACE_MS", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Transport != TransportStream {
		t.Fatalf("expected stream transport, got %q", cfg.Transport)
	}
	if cfg.Locale != "de-DE" {
		t.Fatalf("unexpected locale: %q", cfg.Locale)
	}
	if cfg.OpenAI.APIKey != "sk-test" || cfg.OpenAI.APIBaseURL != "http://127.0.0.1:9000/v1" {
		t.Fatalf("unexpected openai config: %+v", cfg.OpenAI)
	}
	if cfg.OpenAI.ChatModel != "gpt-4o" || cfg.OpenAI.TranscribeModel != "whisper-large" {
		t.Fatalf("unexpected openai models: %+v", cfg.OpenAI)
	}
	if cfg.OpenAI.TTSModel != "tts-1-hd" || cfg.OpenAI.Voice != "alloy" {
		t.Fatalf("unexpected speech model/voice: %+v", cfg.OpenAI)
	}
	if cfg.Deepgram.APIKey != "dg-test" || cfg.Deepgram.APIBaseURL != "https://example.com/v1" {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
	if cfg.Deepgram.Model != "nova-3" || cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram model/smart format: %+v", cfg.Deepgram)
	}
	if cfg.ElevenLabs.APIKey != "el-test" || cfg.ElevenLabs.VoiceID != "voice-123" {
		t.Fatalf("unexpected elevenlabs config: %+v", cfg.ElevenLabs)
	}
	if cfg.Webhook.URL != "http://127.0.0.1:9100/hook" {
		t.Fatalf("unexpected webhook config: %+v", cfg.Webhook)
	}
	if cfg.Audio.RecorderCommand != "my-ffmpeg" || cfg.Audio.InputFormat != "alsa" || cfg.Audio.InputDevice != "mic0" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.Container != "s16le" {
		t.Fatalf("unexpected container: %q", cfg.Audio.Container)
	}
	if cfg.Audio.SampleRate != 22050 || cfg.Audio.Channels != 2 {
		t.Fatalf("unexpected sample/channels: %+v", cfg.Audio)
	}
	if cfg.Audio.ChunkSize != 512 || cfg.Audio.MinClipBytes != 1024 {
		t.Fatalf("unexpected chunk/min clip: %+v", cfg.Audio)
	}
	if cfg.Speech.PlayerCommand != "mpv" || cfg.Speech.EspeakCommand != "espeak" {
		t.Fatalf("unexpected speech config: %+v", cfg.Speech)
	}
	if cfg.Dialogue.SystemPrompt != "Answer in rhyme." {
		t.Fatalf("unexpected system prompt: %q", cfg.Dialogue.SystemPrompt)
	}
	if cfg.Rules.Path != rules || cfg.Rules.IterationLimit != 42 {
		t.Fatalf("unexpected rules config: %+v", cfg.Rules)
	}
	if cfg.Turn.TranscribeTimeout != 15*time.Second || cfg.Turn.DialogueTimeout != 20*time.Second {
		t.Fatalf("unexpected turn timeouts: %+v", cfg.Turn)
	}
	if cfg.Turn.SpeakTimeout != 30*time.Second || cfg.Turn.StreamingGrace != 25*time.Millisecond {
		t.Fatalf("unexpected turn timeouts: %+v", cfg.Turn)
	}
}

func TestLoadInvalidValuesFallback(t *testing.T) {
	resetEnv(t)

	t.Setenv("TALKBACK_TRANSPORT", "smoke-signals")
	t.Setenv("TALKBACK_AUDIO_CONTAINER", "flac")
	t.Setenv("TALKBACK_SAMPLE_RATE", "bad")
	t.Setenv("TALKBACK_CHANNELS", "-1")
	t.Setenv("TALKBACK_AUDIO_CHUNK_SIZE", "5")
	t.Setenv("TALKBACK_MIN_CLIP_BYTES", "abc")
	t.Setenv("TALKBACK_RULE_ITERATION_LIMIT", "0")
	t.Setenv("TALKBACK_TRANSCRIBE_TIMEOUT_MS", "-100")
	t.Setenv("TALKBACK_STREAMING_GRACE_MS", "bad")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "not-bool")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Transport != TransportUpload {
		t.Fatalf("expected upload fallback, got %q", cfg.Transport)
	}
	if cfg.Audio.Container != "wav" {
		t.Fatalf("expected wav fallback, got %q", cfg.Audio.Container)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected default sample rate, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 {
		t.Fatalf("expected default channels, got %d", cfg.Audio.Channels)
	}
	if cfg.Audio.ChunkSize != 4096 {
		t.Fatalf("expected chunk size fallback, got %d", cfg.Audio.ChunkSize)
	}
	if cfg.Audio.MinClipBytes != 4096 {
		t.Fatalf("expected min clip fallback, got %d", cfg.Audio.MinClipBytes)
	}
	if cfg.Rules.IterationLimit != 30 {
		t.Fatalf("expected default iteration limit, got %d", cfg.Rules.IterationLimit)
	}
	if cfg.Turn.TranscribeTimeout != 60*time.Second {
		t.Fatalf("expected default transcribe timeout, got %s", cfg.Turn.TranscribeTimeout)
	}
	if cfg.Turn.StreamingGrace != time.Second {
		t.Fatalf("expected default grace, got %s", cfg.Turn.StreamingGrace)
	}
	if !cfg.Deepgram.SmartFormat {
		t.Fatalf("expected default smart format true")
	}
}

func TestLoadInputDeviceFallsBackToPulseSource(t *testing.T) {
	resetEnv(t)
	t.Setenv("PULSE_SOURCE", "alsa_input.usb-mic")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Audio.InputDevice != "alsa_input.usb-mic" {
		t.Fatalf("expected PULSE_SOURCE fallback, got %q", cfg.Audio.InputDevice)
	}
}

func TestMissing(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   []string
	}{
		"upload without openai key": {
			mutate: func(c *Config) {},
			want:   []string{"OPENAI_API_KEY"},
		},
		"upload fully configured": {
			mutate: func(c *Config) { c.OpenAI.APIKey = "sk-test" },
			want:   nil,
		},
		"stream without deepgram key": {
			mutate: func(c *Config) {
				c.OpenAI.APIKey = "sk-test"
				c.Transport = TransportStream
			},
			want: []string{"DEEPGRAM_API_KEY"},
		},
		"stream fully configured": {
			mutate: func(c *Config) {
				c.OpenAI.APIKey = "sk-test"
				c.Transport = TransportStream
				c.Deepgram.APIKey = "dg-test"
			},
			want: nil,
		},
		"webhook without url": {
			mutate: func(c *Config) {
				c.OpenAI.APIKey = "sk-test"
				c.Transport = TransportWebhook
			},
			want: []string{"TALKBACK_WEBHOOK_URL"},
		},
		"nothing configured on stream": {
			mutate: func(c *Config) { c.Transport = TransportStream },
			want:   []string{"OPENAI_API_KEY", "DEEPGRAM_API_KEY"},
		},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			cfg := Config{Transport: TransportUpload}
			tc.mutate(&cfg)
			if got := cfg.Missing(); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Missing() = %v, want %v", got, tc.want)
			}
		})
	}
}
