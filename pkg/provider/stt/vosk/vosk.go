// Package vosk provides an STT provider backed by a Vosk WebSocket server
// (alphacep/kaldi-en or kaldi-fr images, or any server speaking the same
// protocol). It implements the stt.Provider interface.
//
// The protocol is JSON control messages plus binary 16-bit PCM frames:
//
//	-> {"config":{"sample_rate":16000,"phoneme_mode":false}}
//	-> {"grammar":["a","b","c","[unk]"]}
//	-> <binary PCM>...
//	<- {"partial":"b"}
//	<- {"text":"b"}
//	<- {"phoneme":"b iy"}
//	-> {"eof":1}
package vosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/readalong/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

const defaultSampleRate = 16000

// Option is a functional option for configuring the Vosk Provider.
type Option func(*Provider)

// WithSampleRate sets the default audio sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// WithLanguageURL routes sessions for language (base tag, e.g. "fr") to a
// separate server. Vosk loads one model per server, so bilingual setups run
// one server per language.
func WithLanguageURL(language, url string) Option {
	return func(p *Provider) {
		p.byLanguage[baseLanguage(language)] = url
	}
}

// Provider implements stt.Provider against Vosk WebSocket servers.
type Provider struct {
	url        string
	byLanguage map[string]string
	sampleRate int
}

// New creates a Provider whose default server is at url
// (e.g. "ws://localhost:2700").
func New(url string, opts ...Option) (*Provider, error) {
	if url == "" {
		return nil, errors.New("vosk: url must not be empty")
	}
	p := &Provider{
		url:        url,
		byLanguage: make(map[string]string),
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// serverFor returns the server URL for language.
func (p *Provider) serverFor(language string) string {
	if u, ok := p.byLanguage[baseLanguage(language)]; ok {
		return u
	}
	return p.url
}

// StartStream opens a session and sends the configuration and grammar.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	conn, _, err := websocket.Dial(ctx, p.serverFor(cfg.Language), nil)
	if err != nil {
		return nil, fmt.Errorf("vosk: dial: %w", err)
	}

	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	sess := &session{
		conn:     conn,
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		out:      make(chan frame, 256),
		done:     make(chan struct{}),
		phonemes: cfg.PhonemeMode,
	}

	hello, _ := json.Marshal(configMessage{Config: configBody{SampleRate: sr, PhonemeMode: cfg.PhonemeMode}})
	if err := conn.Write(ctx, websocket.MessageText, hello); err != nil {
		conn.Close(websocket.StatusInternalError, "config failed")
		return nil, fmt.Errorf("vosk: send config: %w", err)
	}
	if len(cfg.Grammar) > 0 {
		if err := conn.Write(ctx, websocket.MessageText, grammarMessage(cfg.Grammar)); err != nil {
			conn.Close(websocket.StatusInternalError, "grammar failed")
			return nil, fmt.Errorf("vosk: send grammar: %w", err)
		}
	}

	// The session outlives the dial context.
	runCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	sess.wg.Add(2)
	go sess.readLoop(runCtx)
	go sess.writeLoop(runCtx)
	return sess, nil
}

type configMessage struct {
	Config configBody `json:"config"`
}

type configBody struct {
	SampleRate  int  `json:"sample_rate"`
	PhonemeMode bool `json:"phoneme_mode"`
}

// grammarMessage builds the grammar control message. The unknown token is
// always appended so that off-grammar speech is not forced onto a letter.
func grammarMessage(words []string) []byte {
	g := make([]string, 0, len(words)+1)
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && w != stt.UnknownToken && !slices.Contains(g, w) {
			g = append(g, w)
		}
	}
	g = append(g, stt.UnknownToken)
	data, _ := json.Marshal(map[string][]string{"grammar": g})
	return data
}

// frame is one outbound websocket message.
type frame struct {
	typ  websocket.MessageType
	data []byte
}

// session is a live Vosk session. It implements stt.SessionHandle.
type session struct {
	conn     *websocket.Conn
	partials chan stt.Transcript
	finals   chan stt.Transcript
	out      chan frame
	phonemes bool

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

var errClosed = errors.New("vosk: session is closed")

func (s *session) send(f frame) error {
	select {
	case <-s.done:
		return errClosed
	default:
	}
	select {
	case s.out <- f:
		return nil
	case <-s.done:
		return errClosed
	}
}

// SendAudio queues a PCM chunk.
func (s *session) SendAudio(chunk []byte) error {
	return s.send(frame{typ: websocket.MessageBinary, data: chunk})
}

// SetGrammar sends a new grammar. It applies from the next utterance on.
func (s *session) SetGrammar(words []string) error {
	return s.send(frame{typ: websocket.MessageText, data: grammarMessage(words)})
}

// Partials returns the channel of interim transcripts.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the channel of final transcripts.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close flushes queued audio, signals end of stream and closes the socket.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop sends queued frames in order. On close it drains the queue and
// sends the end-of-stream marker.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case f := <-s.out:
			if err := s.conn.Write(ctx, f.typ, f.data); err != nil {
				s.cancel()
				return
			}
		case <-s.done:
			for {
				select {
				case f := <-s.out:
					_ = s.conn.Write(ctx, f.typ, f.data)
				default:
					_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"eof":1}`))
					s.cancel()
					return
				}
			}
		}
	}
}

// readLoop receives results and dispatches them to partials and finals.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		t, ok := parseResult(msg)
		if !ok {
			continue
		}
		ch := s.partials
		if t.IsFinal {
			ch = s.finals
		}
		select {
		case ch <- t:
		case <-ctx.Done():
			return
		}
	}
}

// result is a server message. Exactly one field is usually set.
type result struct {
	Text    *string `json:"text"`
	Partial *string `json:"partial"`
	Phoneme *string `json:"phoneme"`
}

// parseResult converts a server message into a Transcript. Empty results and
// results consisting of the unknown token are dropped.
func parseResult(data []byte) (stt.Transcript, bool) {
	var r result
	if err := json.Unmarshal(data, &r); err != nil {
		return stt.Transcript{}, false
	}
	var t stt.Transcript
	switch {
	case r.Phoneme != nil:
		t = stt.Transcript{Text: *r.Phoneme, IsFinal: true, Phonemes: true}
	case r.Text != nil:
		t = stt.Transcript{Text: *r.Text, IsFinal: true}
	case r.Partial != nil:
		t = stt.Transcript{Text: *r.Partial}
	default:
		return stt.Transcript{}, false
	}
	t.Text = strings.ToLower(strings.TrimSpace(t.Text))
	if t.Text == "" || t.Text == stt.UnknownToken {
		return stt.Transcript{}, false
	}
	return t, true
}

func baseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}
