package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/readalong/pkg/provider/stt"
)

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	if u.Host != "api.deepgram.com" {
		t.Errorf("host = %q", u.Host)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "punctuate", "false", q.Get("punctuate"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	if q.Has("keyterm") {
		t.Errorf("no grammar should send no key terms, got %v", q["keyterm"])
	}
}

func TestBuildURL_StreamConfigWins(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("en"), WithSampleRate(48000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{Language: "fr-FR", SampleRate: 8000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "fr-FR", q.Get("language"))
	assertEqual(t, "sample_rate", "8000", q.Get("sample_rate"))
}

func TestBuildURL_GrammarBecomesKeyTerms(t *testing.T) {
	p, _ := New("key")
	rawURL, err := p.buildURL(stt.StreamConfig{Grammar: []string{"C", "a", " ", "c", stt.UnknownToken}})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	if got := u.Query()["keyterm"]; !slices.Equal(got, []string{"c", "a"}) {
		t.Errorf("keyterm = %v, want [c a]", got)
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want stt.Transcript
		ok   bool
	}{
		{
			name: "final letter with punctuation",
			in:   `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" B. ","confidence":0.9}]}}`,
			want: stt.Transcript{Text: "b", IsFinal: true},
			ok:   true,
		},
		{
			name: "partial",
			in:   `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"ca"}]}}`,
			want: stt.Transcript{Text: "ca"},
			ok:   true,
		},
		{
			name: "empty transcript",
			in:   `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`,
		},
		{
			name: "no alternatives",
			in:   `{"type":"Results","channel":{"alternatives":[]}}`,
		},
		{
			name: "metadata event",
			in:   `{"type":"Metadata","request_id":"x"}`,
		},
		{
			name: "not json",
			in:   `{{`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseResponse([]byte(tt.in))
			if ok != tt.ok || got != tt.want {
				t.Errorf("parseResponse = %+v, %v; want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestStartStream_RoundTrip(t *testing.T) {
	type seen struct {
		auth   string
		audio  int
		closed bool
	}
	got := make(chan seen, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := seen{auth: r.Header.Get("Authorization")}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer c.CloseNow()
		ctx := r.Context()

		_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"b"}]}}`))
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"B."}]}}`))

		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				break
			}
			if typ == websocket.MessageBinary {
				s.audio += len(data)
				continue
			}
			if strings.Contains(string(data), "CloseStream") {
				s.closed = true
				break
			}
		}
		got <- s
	}))
	defer srv.Close()

	p, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartStream(ctx, stt.StreamConfig{Grammar: []string{"b"}})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	select {
	case tr := <-sess.Partials():
		if tr.Text != "b" || tr.IsFinal {
			t.Errorf("partial = %+v", tr)
		}
	case <-ctx.Done():
		t.Fatal("no partial")
	}
	select {
	case tr := <-sess.Finals():
		if tr.Text != "b" || !tr.IsFinal {
			t.Errorf("final = %+v", tr)
		}
	case <-ctx.Done():
		t.Fatal("no final")
	}

	if err := sess.SetGrammar([]string{"c"}); !errors.Is(err, stt.ErrNotSupported) {
		t.Errorf("SetGrammar err = %v, want ErrNotSupported", err)
	}
	if err := sess.SendAudio(make([]byte, 320)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.SendAudio([]byte{0}); err == nil {
		t.Error("SendAudio after Close should fail")
	}

	select {
	case s := <-got:
		if s.auth != "Token secret" {
			t.Errorf("auth header = %q", s.auth)
		}
		if s.audio != 320 || !s.closed {
			t.Errorf("server saw %+v", s)
		}
	case <-ctx.Done():
		t.Fatal("server did not finish")
	}
}

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
