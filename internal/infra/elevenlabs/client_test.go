package elevenlabs_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"agora/internal/domain"
	"agora/internal/infra/elevenlabs"
)

func TestClient_Synthesize(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	client := elevenlabs.NewClientWithURL("test-key", "voice-1", "model-1", server.URL)

	audio, err := client.Synthesize(context.Background(), domain.SynthesisRequest{
		Text: "The council approves this proposal.",
	})
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}

	if !strings.HasSuffix(gotPath, "/text-to-speech/voice-1") {
		t.Errorf("path: got %q", gotPath)
	}
	if gotBody["text"] != "The council approves this proposal." {
		t.Errorf("text: got %v", gotBody["text"])
	}
	if gotBody["model_id"] != "model-1" {
		t.Errorf("model_id: got %v", gotBody["model_id"])
	}
	if string(audio.Data) != "mp3-bytes" {
		t.Errorf("audio: got %q", audio.Data)
	}
	if audio.MIMEType != "audio/mpeg" {
		t.Errorf("mime: got %q", audio.MIMEType)
	}
}

func TestClient_RequestOverridesDefaults(t *testing.T) {
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("x"))
	}))
	defer server.Close()

	client := elevenlabs.NewClientWithURL("test-key", "default-voice", "", server.URL)

	_, err := client.Synthesize(context.Background(), domain.SynthesisRequest{
		Text:    "hello",
		VoiceID: "custom-voice",
	})
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/text-to-speech/custom-voice") {
		t.Errorf("path: got %q", gotPath)
	}
}

func TestClient_DisabledWithoutKey(t *testing.T) {
	client := elevenlabs.NewClient("", "", "")

	if client.Enabled() {
		t.Fatal("client should be disabled without a key")
	}

	_, err := client.Synthesize(context.Background(), domain.SynthesisRequest{Text: "hello"})
	if !errors.Is(err, elevenlabs.ErrDisabled) {
		t.Fatalf("want ErrDisabled, got %v", err)
	}
}

func TestClient_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad voice", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := elevenlabs.NewClientWithURL("test-key", "", "", server.URL)

	_, err := client.Synthesize(context.Background(), domain.SynthesisRequest{Text: "hello"})
	if !domain.IsNetworkKind(err, domain.NetworkServerError) {
		t.Fatalf("want network error, got %v", err)
	}
}
