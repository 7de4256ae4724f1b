package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"talkback/internal/domain"
)

func TestTranscriberFinalizeUploadsClip(t *testing.T) {
	t.Parallel()

	clip := domain.Clip{Data: []byte("RIFFwav-bytes"), MIME: "audio/wav"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart failed: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("unexpected model: %q", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("unexpected language: %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			defer file.Close()
			if header.Filename != "recording.wav" {
				t.Errorf("unexpected filename: %q", header.Filename)
			}
			data, _ := io.ReadAll(file)
			if string(data) != string(clip.Data) {
				t.Errorf("uploaded clip does not match recording")
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello world"}`))
	}))
	defer srv.Close()

	transcriber := NewTranscriber(NewClient("test-key", srv.URL+"/v1"), "", "en-US")
	session, err := transcriber.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if session.Events() != nil {
		t.Fatalf("upload transport should not emit interim events")
	}
	if err := session.SendAudio([]byte("ignored")); err != nil {
		t.Fatalf("send audio should be a no-op, got %v", err)
	}

	text, err := session.Finalize(context.Background(), clip)
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("unexpected transcript: %q", text)
	}
}

func TestTranscriberFinalizeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream down"}}`))
	}))
	defer srv.Close()

	transcriber := NewTranscriber(NewClient("test-key", srv.URL+"/v1"), "", "")
	session, err := transcriber.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	_, err = session.Finalize(context.Background(), domain.Clip{Data: []byte("x"), MIME: "audio/wav"})
	if err == nil {
		t.Fatalf("expected transcription error")
	}
}

func TestBaseLanguage(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"en-US":  "en",
		"pt_BR":  "pt",
		"DE":     "de",
		" fr ":   "fr",
		"":       "",
		"  ":     "",
		"zh-Hans": "zh",
	}
	for locale, want := range cases {
		if got := BaseLanguage(locale); got != want {
			t.Fatalf("BaseLanguage(%q) = %q, want %q", locale, got, want)
		}
	}
}
