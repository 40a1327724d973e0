package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/readalong/internal/app"
	"github.com/MrWong99/readalong/internal/session"
	"github.com/MrWong99/readalong/internal/web"
	"github.com/MrWong99/readalong/pkg/provider/tts"
	"github.com/MrWong99/readalong/pkg/speech"
)

// fakeTarget records what the hub routes to the controller.
type fakeTarget struct {
	mu     sync.Mutex
	inputs []string
	modes  []bool
}

func (f *fakeTarget) HandleInput(raw string) session.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, raw)
	if raw == "a" {
		return session.Correct
	}
	return session.Incorrect
}

func (f *fakeTarget) Activate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, true)
}

func (f *fakeTarget) Deactivate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, false)
}

func (f *fakeTarget) snapshot() ([]string, []bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inputs...), append([]bool(nil), f.modes...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// connect starts a test server for hub and dials it. It returns once the
// hub has registered the client.
func connect(t *testing.T, hub *web.Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return dial(t, hub, "ws"+strings.TrimPrefix(srv.URL, "http"))
}

func dial(t *testing.T, hub *web.Hub, url string) *websocket.Conn {
	t.Helper()
	before := hub.Clients()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	waitFor(t, "client registered", func() bool { return hub.Clients() > before })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) web.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("frame type = %v, want text", typ)
	}
	var m web.Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

func writeMessage(t *testing.T, conn *websocket.Conn, m web.Message) {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHub_SayWithoutClientsReturnsAtOnce(t *testing.T) {
	t.Parallel()
	hub := web.NewHub()

	start := time.Now()
	if err := hub.Say(context.Background(), speech.Utterance{Text: "Hello"}); err != nil {
		t.Fatalf("Say: %v", err)
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Errorf("Say took %v with nobody listening", d)
	}
}

func TestHub_SayWaitsForAck(t *testing.T) {
	t.Parallel()
	hub := web.NewHub()
	conn := connect(t, hub)

	done := make(chan error, 1)
	go func() {
		done <- hub.Say(context.Background(), speech.Utterance{Text: "Press C!", Language: "en-US", Rate: 0.9, Pitch: 1.1})
	}()

	m := readMessage(t, conn)
	if m.Type != web.TypeSpeak || m.Text != "Press C!" || m.Lang != "en-US" || m.Rate != 0.9 || m.ID == "" {
		t.Fatalf("speak message = %+v", m)
	}
	select {
	case err := <-done:
		t.Fatalf("Say returned before the ack: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	writeMessage(t, conn, web.Message{Type: web.TypeSpoken, ID: m.ID})
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Say: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Say did not return after the ack")
	}
}

func TestHub_SayTimesOutWithoutAck(t *testing.T) {
	t.Parallel()
	hub := web.NewHub()
	connect(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := hub.Say(ctx, speech.Utterance{Text: "Hello"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Say = %v, want DeadlineExceeded", err)
	}
}

func TestHub_StopReleasesSay(t *testing.T) {
	t.Parallel()
	hub := web.NewHub()
	conn := connect(t, hub)

	done := make(chan error, 1)
	go func() { done <- hub.Say(context.Background(), speech.Utterance{Text: "Hello"}) }()
	if m := readMessage(t, conn); m.Type != web.TypeSpeak {
		t.Fatalf("first message = %+v", m)
	}

	hub.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Say not released by Stop")
	}
	if m := readMessage(t, conn); m.Type != web.TypeStop {
		t.Errorf("message after Stop = %+v", m)
	}
}

func TestHub_DisconnectReleasesSay(t *testing.T) {
	t.Parallel()
	hub := web.NewHub()
	conn := connect(t, hub)

	done := make(chan error, 1)
	go func() { done <- hub.Say(context.Background(), speech.Utterance{Text: "Hello"}) }()
	readMessage(t, conn)

	conn.Close(websocket.StatusNormalClosure, "bye")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Say not released when the last client left")
	}
	waitFor(t, "client removed", func() bool { return hub.Clients() == 0 })
}

func TestHub_PlayStreamsPCM(t *testing.T) {
	t.Parallel()
	hub := web.NewHub()
	conn := connect(t, hub)

	pcm := []byte{1, 2, 3, 4}
	if err := hub.Play(context.Background(), tts.Audio{PCM: pcm, SampleRate: 22050, Channels: 1}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	m := readMessage(t, conn)
	if m.Type != web.TypeAudio || m.SampleRate != 22050 || m.Channels != 1 || m.Bytes != len(pcm) {
		t.Errorf("audio header = %+v", m)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	if err != nil || typ != websocket.MessageBinary || string(data) != string(pcm) {
		t.Errorf("pcm frame = %v %v %v", typ, data, err)
	}
}

func TestHub_BroadcastsAndReplaysState(t *testing.T) {
	t.Parallel()
	hub := web.NewHub()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	first := dial(t, hub, url)
	hub.SetLanguage("fr")
	hub.Progress(1, 5)
	hub.Expect("c", true)

	for _, want := range []string{web.TypeLanguage, web.TypeProgress, web.TypeExpect} {
		if m := readMessage(t, first); m.Type != want {
			t.Errorf("broadcast = %+v, want %s", m, want)
		}
	}

	// A late client catches up on the running lesson.
	late := dial(t, hub, url)
	lang := readMessage(t, late)
	prog := readMessage(t, late)
	exp := readMessage(t, late)
	if lang.Lang != "fr" || prog.Index != 1 || prog.Total != 5 || exp.Expected != "c" || !exp.Waiting {
		t.Errorf("replay = %+v %+v %+v", lang, prog, exp)
	}

	hub.Completed(app.Completion{LessonID: "lesson-cat-en", Accuracy: 100})
	m := readMessage(t, late)
	if m.Type != web.TypeCompleted || m.Completion == nil || m.Completion.LessonID != "lesson-cat-en" {
		t.Errorf("completion = %+v", m)
	}
}

func TestHub_RoutesInputAndMode(t *testing.T) {
	t.Parallel()
	hub := web.NewHub()
	target := &fakeTarget{}
	hub.Attach(target)
	conn := connect(t, hub)

	writeMessage(t, conn, web.Message{Type: web.TypeInput, Key: "a"})
	if m := readMessage(t, conn); m.Type != web.TypeResult || m.Key != "a" || m.Outcome != "correct" {
		t.Errorf("result = %+v", m)
	}

	off := false
	writeMessage(t, conn, web.Message{Type: web.TypeMode, Active: &off})
	waitFor(t, "mode change", func() bool {
		_, modes := target.snapshot()
		return len(modes) == 1 && !modes[0]
	})

	writeMessage(t, conn, web.Message{Type: "dance"})
	if m := readMessage(t, conn); m.Type != web.TypeError {
		t.Errorf("unknown type reply = %+v", m)
	}
	if inputs, _ := target.snapshot(); len(inputs) != 1 {
		t.Errorf("inputs = %v", inputs)
	}
}

func TestHub_FeedsMicrophoneAudio(t *testing.T) {
	t.Parallel()
	hub := web.NewHub()
	var (
		mu     sync.Mutex
		chunks [][]byte
	)
	hub.AttachAudio(func(chunk []byte) error {
		mu.Lock()
		defer mu.Unlock()
		chunks = append(chunks, chunk)
		return nil
	})
	conn := connect(t, hub)

	if err := conn.Write(context.Background(), websocket.MessageBinary, []byte{0, 1, 0, 1}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "audio chunk", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(chunks) == 1 && len(chunks[0]) == 4
	})
}
