package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/readalong/internal/app"
	"github.com/MrWong99/readalong/internal/observe"
	"github.com/MrWong99/readalong/internal/session"
	"github.com/MrWong99/readalong/pkg/provider/tts"
	"github.com/MrWong99/readalong/pkg/speech"
)

// Compile-time interface assertions.
var (
	_ speech.Backend = (*Hub)(nil)
	_ speech.Sink    = (*Hub)(nil)
	_ app.Observer   = (*Hub)(nil)
)

const (
	// sendBuffer is the number of frames queued per client before new
	// frames are dropped.
	sendBuffer = 64

	// writeTimeout bounds a single frame write.
	writeTimeout = 5 * time.Second

	// readLimit allows microphone chunks of a few seconds.
	readLimit = 1 << 20
)

// Message types exchanged over /ws.
const (
	TypeSpeak     = "speak"
	TypeSpoken    = "spoken"
	TypeStop      = "stop"
	TypeAudio     = "audio"
	TypeProgress  = "progress"
	TypeExpect    = "expect"
	TypeCompleted = "completed"
	TypeLanguage  = "language"
	TypeInput     = "input"
	TypeResult    = "result"
	TypeMode      = "mode"
	TypeError     = "error"
)

// Message is the JSON envelope of every text frame. Only the fields relevant
// to Type are set.
type Message struct {
	Type string `json:"type"`

	// speak, spoken
	ID    string  `json:"id,omitempty"`
	Text  string  `json:"text,omitempty"`
	Lang  string  `json:"lang,omitempty"`
	Rate  float64 `json:"rate,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`

	// progress
	Index int `json:"index,omitempty"`
	Total int `json:"total,omitempty"`

	// expect
	Expected string `json:"expected,omitempty"`
	Waiting  bool   `json:"waiting,omitempty"`

	// input, result
	Key     string `json:"key,omitempty"`
	Outcome string `json:"outcome,omitempty"`

	// mode
	Active *bool `json:"active,omitempty"`

	// audio: the PCM follows in the next binary frame.
	SampleRate int `json:"sample_rate,omitempty"`
	Channels   int `json:"channels,omitempty"`
	Bytes      int `json:"bytes,omitempty"`

	Completion *app.Completion `json:"completion,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Target receives input and mode changes from browser clients.
// *app.Controller implements it.
type Target interface {
	HandleInput(raw string) session.Outcome
	Activate()
	Deactivate()
}

type frame struct {
	typ  websocket.MessageType
	data []byte
}

type client struct {
	conn *websocket.Conn
	send chan frame
}

// Hub fans tutor state out to connected browsers and speaks through them.
//
// As a [speech.Backend], Say sends a speak message and blocks until any
// client acknowledges it with a spoken message, ctx ends, Stop is called or
// the last client disconnects. With no client connected Say returns at once
// so lessons are never held up by an empty room. As a [speech.Sink] it
// streams synthesised PCM to the clients. As an [app.Observer] it broadcasts
// progress, expected keys and completions.
//
// Incoming binary frames are 16-bit PCM from the microphone and are passed
// to the audio func set with [Hub.AttachAudio].
type Hub struct {
	metrics *observe.Metrics
	origins []string

	mu      sync.Mutex
	clients map[*client]struct{}
	pending map[string]chan struct{}
	target  Target
	audio   func(chunk []byte) error

	// Replayed to clients that connect mid-lesson.
	lang     string
	progress *Message
	expect   *Message
}

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithMetrics sets the metric instruments for the connected client gauge.
func WithMetrics(m *observe.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithOriginPatterns allows cross-origin WebSocket connections from hosts
// matching the given patterns.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.origins = append(h.origins, patterns...) }
}

// NewHub returns a hub with no clients.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		pending: make(map[string]chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Attach sets where client input and mode changes go.
func (h *Hub) Attach(t Target) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.target = t
}

// AttachAudio sets the receiver of microphone chunks, typically
// voice.Listener.Feed.
func (h *Hub) AttachAudio(fn func(chunk []byte) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.audio = fn
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ─── speech.Backend / speech.Sink ───────────────────────────────────────────

// Say implements [speech.Backend].
func (h *Hub) Say(ctx context.Context, u speech.Utterance) error {
	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return ctx.Err()
	}
	id := uuid.NewString()
	ack := make(chan struct{})
	h.pending[id] = ack
	h.mu.Unlock()

	h.broadcast(Message{Type: TypeSpeak, ID: id, Text: u.Text, Lang: u.Language, Rate: u.Rate, Pitch: u.Pitch})

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
		return ctx.Err()
	}
}

// Play implements [speech.Sink]. The header message carries the format and
// the PCM follows as one binary frame.
func (h *Hub) Play(_ context.Context, a tts.Audio) error {
	data, err := json.Marshal(Message{Type: TypeAudio, SampleRate: a.SampleRate, Channels: a.Channels, Bytes: len(a.PCM)})
	if err != nil {
		return err
	}
	h.send(frame{typ: websocket.MessageText, data: data}, frame{typ: websocket.MessageBinary, data: a.PCM})
	return nil
}

// Stop implements [speech.Backend] and [speech.Sink]. Clients silence
// their output and every waiting Say returns.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.releaseLocked()
	h.mu.Unlock()
	h.broadcast(Message{Type: TypeStop})
}

func (h *Hub) releaseLocked() {
	for id, ack := range h.pending {
		close(ack)
		delete(h.pending, id)
	}
}

func (h *Hub) acknowledge(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ack, ok := h.pending[id]; ok {
		close(ack)
		delete(h.pending, id)
	}
}

// ─── app.Observer ───────────────────────────────────────────────────────────

// Progress implements [session.Observer].
func (h *Hub) Progress(index, total int) {
	m := Message{Type: TypeProgress, Index: index, Total: total}
	h.mu.Lock()
	h.progress = &m
	h.mu.Unlock()
	h.broadcast(m)
}

// Expect implements [session.Observer].
func (h *Hub) Expect(answer string, ok bool) {
	m := Message{Type: TypeExpect, Expected: answer, Waiting: ok}
	h.mu.Lock()
	h.expect = &m
	h.mu.Unlock()
	h.broadcast(m)
}

// Completed implements [app.Observer].
func (h *Hub) Completed(c app.Completion) {
	h.mu.Lock()
	h.progress = nil
	h.mu.Unlock()
	h.broadcast(Message{Type: TypeCompleted, Completion: &c})
}

// SetLanguage tells clients the tutor switched language.
func (h *Hub) SetLanguage(lang string) {
	h.mu.Lock()
	h.lang = lang
	h.mu.Unlock()
	h.broadcast(Message{Type: TypeLanguage, Lang: lang})
}

// ─── transport ──────────────────────────────────────────────────────────────

func (h *Hub) broadcast(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		slog.Warn("web: encode message", "type", m.Type, "err", err)
		return
	}
	h.send(frame{typ: websocket.MessageText, data: data})
}

// send queues frames on every client. Frames of one call stay adjacent on
// each client.
func (h *Hub) send(frames ...frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if cap(c.send)-len(c.send) < len(frames) {
			slog.Warn("web: client too slow, dropping frames", "frames", len(frames))
			continue
		}
		for _, f := range frames {
			c.send <- f
		}
	}
}

func (h *Hub) snapshotLocked() []Message {
	var out []Message
	if h.lang != "" {
		out = append(out, Message{Type: TypeLanguage, Lang: h.lang})
	}
	if h.progress != nil {
		out = append(out, *h.progress)
	}
	if h.expect != nil {
		out = append(out, *h.expect)
	}
	return out
}

// ServeHTTP upgrades the request to a WebSocket and serves the client
// until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("web: websocket accept", "err", err)
		return
	}
	conn.SetReadLimit(readLimit)

	c := &client{conn: conn, send: make(chan frame, sendBuffer)}
	h.mu.Lock()
	for _, m := range h.snapshotLocked() {
		if data, err := json.Marshal(m); err == nil {
			c.send <- frame{typ: websocket.MessageText, data: data}
		}
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	h.metrics.ClientConnected(ctx, 1)
	slog.Info("web: client connected", "remote", r.RemoteAddr, "clients", n)

	go h.writeLoop(ctx, cancel, c)
	err = h.readLoop(ctx, c)

	h.mu.Lock()
	delete(h.clients, c)
	n = len(h.clients)
	if n == 0 {
		// Nobody is left to acknowledge speech.
		h.releaseLocked()
	}
	h.mu.Unlock()
	h.metrics.ClientConnected(context.Background(), -1)

	status := websocket.CloseStatus(err)
	if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
		slog.Debug("web: client read ended", "err", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("web: client disconnected", "remote", r.RemoteAddr, "clients", n)
}

func (h *Hub) writeLoop(ctx context.Context, cancel context.CancelFunc, c *client) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-c.send:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, f.typ, f.data)
			wcancel()
			if err != nil {
				slog.Debug("web: client write", "err", err)
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, c *client) error {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ == websocket.MessageBinary {
			h.feed(data)
			continue
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			h.reply(c, Message{Type: TypeError, Error: "invalid message"})
			continue
		}
		h.handle(c, m)
	}
}

func (h *Hub) handle(c *client, m Message) {
	h.mu.Lock()
	target := h.target
	h.mu.Unlock()

	switch m.Type {
	case TypeSpoken:
		h.acknowledge(m.ID)
	case TypeInput:
		if target == nil {
			h.reply(c, Message{Type: TypeError, Error: "no controller attached"})
			return
		}
		out := target.HandleInput(m.Key)
		h.reply(c, Message{Type: TypeResult, Key: m.Key, Outcome: out.String()})
	case TypeMode:
		if target == nil || m.Active == nil {
			return
		}
		if *m.Active {
			target.Activate()
		} else {
			target.Deactivate()
		}
	default:
		h.reply(c, Message{Type: TypeError, Error: "unknown message type " + m.Type})
	}
}

func (h *Hub) feed(chunk []byte) {
	h.mu.Lock()
	fn := h.audio
	h.mu.Unlock()
	if fn == nil {
		return
	}
	if err := fn(chunk); err != nil {
		slog.Debug("web: microphone chunk dropped", "err", err)
	}
}

func (h *Hub) reply(c *client, m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	select {
	case c.send <- frame{typ: websocket.MessageText, data: data}:
	default:
	}
}
