package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/readalong/internal/resilience"
	"github.com/MrWong99/readalong/pkg/provider/llm"
	llmmock "github.com/MrWong99/readalong/pkg/provider/llm/mock"
	"github.com/MrWong99/readalong/pkg/provider/stt"
	sttmock "github.com/MrWong99/readalong/pkg/provider/stt/mock"
	"github.com/MrWong99/readalong/pkg/provider/tts"
	ttsmock "github.com/MrWong99/readalong/pkg/provider/tts/mock"
)

var errDown = errors.New("backend down")

var cfg = resilience.FallbackConfig{
	CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
}

func TestLLMFallback_Complete(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errDown, ModelName: "llama3"}
	backup := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Super!"}, ModelName: "phi3"}
	f := resilience.NewLLMFallback(primary, "ollama", cfg)
	f.AddFallback("openai", backup)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{SystemPrompt: "be kind"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Super!" {
		t.Errorf("content = %q", resp.Content)
	}
	if f.Model() != "llama3" {
		t.Errorf("model = %q, want primary's", f.Model())
	}

	// The primary's breaker is open now, so it is not called again.
	_, _ = f.Complete(context.Background(), llm.CompletionRequest{})
	if n := len(primary.Calls()); n != 1 {
		t.Errorf("primary calls = %d, want 1", n)
	}
	if s := f.States(); s[0].State != resilience.StateOpen || s[1].State != resilience.StateClosed {
		t.Errorf("states = %+v", s)
	}
	if !f.Healthy() {
		t.Error("fallback with a working backup should be healthy")
	}
}

func TestTTSFallback(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{SynthesizeErr: errDown, ListVoicesErr: errDown}
	backup := &ttsmock.Provider{
		SynthesizeResult: tts.Audio{PCM: make([]byte, 320), SampleRate: 16000, Channels: 1},
		ListVoicesResult: []tts.Voice{{ID: "fr-1", Language: "fr"}},
	}
	f := resilience.NewTTSFallback(primary, "elevenlabs", resilience.FallbackConfig{})
	f.AddFallback("coqui", backup)

	audio, err := f.Synthesize(context.Background(), "Bravo !", tts.Options{Language: "fr-FR", VoiceID: "v"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(audio.PCM) != 320 {
		t.Errorf("pcm = %d bytes", len(audio.PCM))
	}
	calls := backup.Calls()
	if len(calls) != 1 || calls[0].Text != "Bravo !" || calls[0].Options.VoiceID != "v" {
		t.Errorf("backup calls = %+v", calls)
	}

	voices, err := f.ListVoices(context.Background(), "fr")
	if err != nil || len(voices) != 1 {
		t.Fatalf("ListVoices = %v, %v", voices, err)
	}
}

func TestTTSFallback_AllFail(t *testing.T) {
	t.Parallel()

	f := resilience.NewTTSFallback(&ttsmock.Provider{SynthesizeErr: errDown}, "a", resilience.FallbackConfig{})
	_, err := f.Synthesize(context.Background(), "hi", tts.Options{})
	if !errors.Is(err, resilience.ErrAllFailed) || !errors.Is(err, errDown) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping errDown", err)
	}
}

func TestSTTFallback_StartStream(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{StartStreamErr: errDown}
	sess := sttmock.NewSession()
	backup := &sttmock.Provider{Session: sess}
	f := resilience.NewSTTFallback(primary, "vosk-a", cfg)
	f.AddFallback("vosk-b", backup)

	sc := stt.StreamConfig{SampleRate: 16000, Language: "en", Grammar: []string{"c", "a", "t"}}
	h, err := f.StartStream(context.Background(), sc)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if h != stt.SessionHandle(sess) {
		t.Error("handle should be the backup's session")
	}
	if got := backup.Calls(); len(got) != 1 || got[0].Language != "en" {
		t.Errorf("backup calls = %+v", got)
	}

	_, _ = f.StartStream(context.Background(), sc)
	if !f.Healthy() {
		t.Error("expected healthy group")
	}
	if n := len(primary.Calls()); n != 1 {
		t.Errorf("primary calls = %d, want 1 (breaker open)", n)
	}
}
