package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to the event kind to form the subject,
// e.g. "readalong.events.lesson.completed".
const DefaultSubjectPrefix = "readalong.events"

// NATSConfig configures a [NATSPublisher].
type NATSConfig struct {
	// URL of the server. Default: nats://localhost:4222.
	URL string

	// SubjectPrefix defaults to [DefaultSubjectPrefix].
	SubjectPrefix string

	// Timeout for the initial connection. Default: 5s.
	Timeout time.Duration

	// Name identifies the connection in server monitoring.
	Name string
}

// NATSPublisher publishes events as JSON on core NATS subjects. Messages
// published while disconnected are buffered by the client and flushed on
// reconnect.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATS connects to the server.
func NewNATS(cfg NATSConfig) (*NATSPublisher, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "readalong"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("events: nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("events: nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect to nats: %w", err)
	}
	slog.Info("events: connected to nats", "url", cfg.URL, "subject_prefix", cfg.SubjectPrefix)
	return &NATSPublisher{conn: nc, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject an event of kind k is published on.
func (p *NATSPublisher) Subject(k Kind) string { return p.prefix + "." + string(k) }

// Publish implements [Publisher].
func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	if err := p.conn.Publish(p.Subject(e.Kind), data); err != nil {
		return fmt.Errorf("events: publish %s: %w", e.Kind, err)
	}
	return nil
}

// Subscribe calls fn for every event under the prefix until ctx is done.
// Messages that do not decode are skipped.
func (p *NATSPublisher) Subscribe(ctx context.Context, fn func(Event)) error {
	sub, err := p.conn.Subscribe(p.prefix+".>", func(m *nats.Msg) {
		var e Event
		if err := json.Unmarshal(m.Data, &e); err != nil {
			slog.Debug("events: skip undecodable message", "subject", m.Subject, "err", err)
			return
		}
		fn(e)
	})
	if err != nil {
		return fmt.Errorf("events: subscribe: %w", err)
	}
	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("events: unsubscribe: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	err := p.conn.Drain()
	if errors.Is(err, nats.ErrConnectionClosed) {
		return nil
	}
	return err
}
