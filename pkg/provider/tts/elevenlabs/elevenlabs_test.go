package elevenlabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/readalong/pkg/provider/tts"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("k", WithOutputFormat("mp3_44100_128")); err == nil {
		t.Error("expected error for non-PCM output format")
	}
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	var got speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != "pcm_24000" {
			t.Errorf("output_format = %q", r.URL.Query().Get("output_format"))
		}
		if r.Header.Get("xi-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write(make([]byte, 4800))
	}))
	defer srv.Close()

	p, err := New("secret", WithBaseURL(srv.URL), WithVoice("voice-1"), WithOutputFormat("pcm_24000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	audio, err := p.Synthesize(context.Background(), "Great!", tts.Options{Language: "en-US", Rate: 0.5})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if audio.SampleRate != 24000 || len(audio.PCM) != 4800 {
		t.Errorf("audio = %d Hz, %d bytes", audio.SampleRate, len(audio.PCM))
	}
	if got.Text != "Great!" || got.LanguageCode != "en" || got.ModelID != defaultModel {
		t.Errorf("request = %+v", got)
	}
	if got.VoiceSettings == nil || got.VoiceSettings.Speed != 0.7 {
		t.Errorf("speed should clamp to 0.7, got %+v", got.VoiceSettings)
	}
}

func TestSynthesize_NoVoice(t *testing.T) {
	t.Parallel()

	p, _ := New("k")
	if _, err := p.Synthesize(context.Background(), "hi", tts.Options{}); err == nil {
		t.Fatal("expected error without voice id")
	}
}

func TestListVoices_FiltersLanguage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"voices":[
			{"voice_id":"a","name":"Alice","labels":{"language":"en"}},
			{"voice_id":"b","name":"Bruno","labels":{"language":"fr"}},
			{"voice_id":"c","name":"Any"}
		]}`))
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	voices, err := p.ListVoices(context.Background(), "fr-FR")
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 || voices[0].ID != "b" || voices[1].ID != "c" {
		t.Fatalf("voices = %+v", voices)
	}
}
