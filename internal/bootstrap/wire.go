package bootstrap

import (
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"talkback/internal/audio"
	"talkback/internal/config"
	"talkback/internal/normalize"
	"talkback/internal/ports"
	"talkback/internal/providers/deepgram"
	"talkback/internal/providers/elevenlabs"
	openaiprov "talkback/internal/providers/openai"
	"talkback/internal/providers/webhook"
	"talkback/internal/speech"
	"talkback/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.TurnController
	Config     config.Config

	// Missing names the environment variables required by the selected
	// transport. When non-empty the controller is nil and the frontend
	// shows its setup screen instead of the talk button.
	Missing []string
}

// Build wires all backend dependencies for the current runtime.
func Build(events ports.EventSink, logger *zap.Logger) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	if missing := cfg.Missing(); len(missing) > 0 {
		return Services{Config: cfg, Missing: missing}, nil
	}

	normalizer, err := normalize.NewEngine(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	client := openaiprov.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.APIBaseURL)

	// ElevenLabs is opt-in; when configured it speaks first and the
	// OpenAI voice becomes the fallback synthesizer.
	var synths []ports.SpeechSynthesizer
	if cfg.ElevenLabs.APIKey != "" && cfg.ElevenLabs.VoiceID != "" {
		synths = append(synths, elevenlabs.NewSynthesizer(cfg.ElevenLabs.APIKey, cfg.ElevenLabs.VoiceID))
	}
	synths = append(synths, openaiprov.NewSynthesizer(client, cfg.OpenAI.TTSModel, cfg.OpenAI.Voice))

	speechService := speech.NewService(
		synths,
		speech.NewFFPlayPlayer(cfg.Speech.PlayerCommand),
		speech.NewEspeakSpeaker(cfg.Speech.EspeakCommand, openaiprov.BaseLanguage(cfg.Locale)),
		logger,
	)

	controller := usecase.NewTurnController(
		audio.NewFFmpegCapture(cfg.Audio.RecorderCommand),
		buildTranscriber(cfg, client),
		openaiprov.NewDialogue(client, cfg.OpenAI.ChatModel, cfg.Dialogue.SystemPrompt),
		speechService,
		normalizer,
		events,
		logger,
		usecase.Config{
			Capture: ports.CaptureConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
				Container:   cfg.Audio.Container,
				ChunkSize:   cfg.Audio.ChunkSize,
			},
			MinClipBytes:      cfg.Audio.MinClipBytes,
			TranscribeTimeout: cfg.Turn.TranscribeTimeout,
			DialogueTimeout:   cfg.Turn.DialogueTimeout,
			SpeakTimeout:      cfg.Turn.SpeakTimeout,
		},
	)

	return Services{Controller: controller, Config: cfg}, nil
}

// buildTranscriber selects the transport that turns finished recordings
// into text.
func buildTranscriber(cfg config.Config, client *goopenai.Client) ports.Transcriber {
	switch cfg.Transport {
	case config.TransportWebhook:
		return webhook.NewTranscriber(cfg.Webhook.URL, nil)
	case config.TransportStream:
		dg := deepgram.Config{
			APIKey:         cfg.Deepgram.APIKey,
			APIBaseURL:     cfg.Deepgram.APIBaseURL,
			Model:          cfg.Deepgram.Model,
			Language:       cfg.Locale,
			SmartFormat:    cfg.Deepgram.SmartFormat,
			InterimResults: true,
			Grace:          cfg.Turn.StreamingGrace,
		}
		// Raw PCM needs explicit stream parameters; containerized audio
		// carries its own header.
		if cfg.Audio.Container == "s16le" {
			dg.Encoding = "linear16"
			dg.SampleRate = cfg.Audio.SampleRate
			dg.Channels = cfg.Audio.Channels
		}
		return deepgram.NewProvider(dg)
	default:
		return openaiprov.NewTranscriber(client, cfg.OpenAI.TranscribeModel, cfg.Locale)
	}
}
