package vosk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/readalong/pkg/provider/stt"
)

func TestParseResult(t *testing.T) {
	tests := []struct {
		in   string
		want stt.Transcript
		ok   bool
	}{
		{`{"text":" B "}`, stt.Transcript{Text: "b", IsFinal: true}, true},
		{`{"partial":"ca"}`, stt.Transcript{Text: "ca"}, true},
		{`{"phoneme":"b iy"}`, stt.Transcript{Text: "b iy", IsFinal: true, Phonemes: true}, true},
		{`{"text":""}`, stt.Transcript{}, false},
		{`{"partial":""}`, stt.Transcript{}, false},
		{`{"text":"[unk]"}`, stt.Transcript{}, false},
		{`{"result":[]}`, stt.Transcript{}, false},
		{`not json`, stt.Transcript{}, false},
	}
	for _, tt := range tests {
		got, ok := parseResult([]byte(tt.in))
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseResult(%s) = %+v, %v; want %+v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestGrammarMessage(t *testing.T) {
	var msg struct {
		Grammar []string `json:"grammar"`
	}
	if err := json.Unmarshal(grammarMessage([]string{"C", "a", " ", "c", "[unk]"}), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"c", "a", "[unk]"}
	if strings.Join(msg.Grammar, ",") != strings.Join(want, ",") {
		t.Errorf("grammar = %v, want %v", msg.Grammar, want)
	}
}

func TestServerFor(t *testing.T) {
	p, _ := New("ws://en:2700", WithLanguageURL("fr", "ws://fr:2700"))
	if got := p.serverFor("fr-FR"); got != "ws://fr:2700" {
		t.Errorf("fr server = %q", got)
	}
	if got := p.serverFor("en-US"); got != "ws://en:2700" {
		t.Errorf("en server = %q", got)
	}
}

func TestNew_EmptyURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestStartStream_RoundTrip(t *testing.T) {
	type seen struct {
		control []string
		audio   int
	}
	got := make(chan seen, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer c.CloseNow()
		ctx := r.Context()

		var s seen
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				got <- s
				return
			}
			if typ == websocket.MessageBinary {
				s.audio += len(data)
				_ = c.Write(ctx, websocket.MessageText, []byte(`{"partial":"b"}`))
				_ = c.Write(ctx, websocket.MessageText, []byte(`{"text":"B"}`))
				continue
			}
			s.control = append(s.control, string(data))
			if string(data) == `{"eof":1}` {
				got <- s
				return
			}
		}
	}))
	defer srv.Close()

	p, err := New("ws" + strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := p.StartStream(ctx, stt.StreamConfig{Language: "en", Grammar: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := h.SendAudio(make([]byte, 640)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case tr := <-h.Partials():
		if tr.Text != "b" || tr.IsFinal {
			t.Errorf("partial = %+v", tr)
		}
	case <-ctx.Done():
		t.Fatal("no partial received")
	}
	select {
	case tr := <-h.Finals():
		if tr.Text != "b" || !tr.IsFinal {
			t.Errorf("final = %+v", tr)
		}
	case <-ctx.Done():
		t.Fatal("no final received")
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.SendAudio([]byte{0}); err == nil {
		t.Error("SendAudio after Close should fail")
	}

	s := <-got
	if s.audio != 640 {
		t.Errorf("server received %d audio bytes, want 640", s.audio)
	}
	if len(s.control) < 3 {
		t.Fatalf("control messages = %q", s.control)
	}
	if s.control[0] != `{"config":{"sample_rate":16000,"phoneme_mode":false}}` {
		t.Errorf("config = %s", s.control[0])
	}
	if s.control[1] != `{"grammar":["a","b","[unk]"]}` {
		t.Errorf("grammar = %s", s.control[1])
	}
	if s.control[len(s.control)-1] != `{"eof":1}` {
		t.Errorf("last control = %s", s.control[len(s.control)-1])
	}
}
