// Package app wires the tutor's subsystems into a running application and
// holds the instruction mode [Controller].
//
// The App struct owns the full lifecycle: New opens storage and connects the
// optional backends, Run drives the background loops (speech recognition,
// lesson directory watching), and Shutdown tears everything down in order.
//
// For testing, inject implementations via functional options (WithStore,
// WithSpeechBackend, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/readalong/internal/coach"
	"github.com/MrWong99/readalong/internal/config"
	"github.com/MrWong99/readalong/internal/events"
	"github.com/MrWong99/readalong/internal/health"
	"github.com/MrWong99/readalong/internal/letterstats"
	statsmemory "github.com/MrWong99/readalong/internal/letterstats/memory"
	statsredis "github.com/MrWong99/readalong/internal/letterstats/redis"
	"github.com/MrWong99/readalong/internal/library"
	"github.com/MrWong99/readalong/internal/observe"
	"github.com/MrWong99/readalong/internal/progress"
	"github.com/MrWong99/readalong/internal/resilience"
	"github.com/MrWong99/readalong/internal/session"
	"github.com/MrWong99/readalong/internal/store"
	"github.com/MrWong99/readalong/internal/store/file"
	"github.com/MrWong99/readalong/internal/store/memory"
	"github.com/MrWong99/readalong/internal/store/postgres"
	"github.com/MrWong99/readalong/internal/store/sqlite"
	"github.com/MrWong99/readalong/internal/vision"
	"github.com/MrWong99/readalong/internal/voice"
	pcoach "github.com/MrWong99/readalong/pkg/coach"
	"github.com/MrWong99/readalong/pkg/lesson"
	"github.com/MrWong99/readalong/pkg/provider/llm"
	"github.com/MrWong99/readalong/pkg/provider/stt"
	"github.com/MrWong99/readalong/pkg/provider/tts"
	"github.com/MrWong99/readalong/pkg/speech"
)

// Providers holds one interface value per optional AI backend. Nil means the
// provider is not configured. Populated by main via the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Injected or built in New.
	store    store.Store
	stats    letterstats.Store
	events   events.Publisher
	backend  speech.Backend
	sink     speech.Sink
	observer []session.Observer
	metrics  *observe.Metrics
	clock    func() time.Time

	// Built in New.
	library    *library.Library
	coach      *pcoach.Guarded
	speech     *speech.Queue
	tracker    *progress.Tracker
	practice   *progress.Repetition
	controller *Controller
	listener   *voice.Listener
	detector   *vision.Detector
	health     *health.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects the progress and custom lesson store.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLetterStats injects the per-letter statistics store.
func WithLetterStats(s letterstats.Store) Option {
	return func(a *App) { a.stats = s }
}

// WithPublisher injects the lesson event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(a *App) { a.events = p }
}

// WithSpeechBackend injects the backend used when speech.backend is
// "browser". The web hub implements it.
func WithSpeechBackend(b speech.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithAudioSink injects where synthesised audio is played when
// speech.backend is "tts".
func WithAudioSink(s speech.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithObserver adds a session observer. Observers that also implement
// [Observer] receive lesson completions.
func WithObserver(o session.Observer) Option {
	return func(a *App) { a.observer = append(a.observer, o) }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithClock overrides time.Now for sessions and progress.
func WithClock(fn func() time.Time) Option {
	return func(a *App) { a.clock = fn }
}

// inputFunc adapts a function to [voice.Target].
type inputFunc func(raw string) session.Outcome

func (f inputFunc) HandleInput(raw string) session.Outcome { return f(raw) }

// New creates a fully wired App. Every subsystem is initialised in order:
//
//  1. Storage (progress and custom lessons)
//  2. Letter statistics
//  3. Event publisher
//  4. Lesson library
//  5. Coach
//  6. Speech queue
//  7. Progress and practice
//  8. Speech recognition listener
//  9. Controller
//  10. Object detection
//  11. Readiness checks
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.clock == nil {
		a.clock = time.Now
	}

	if err := a.init(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	a.health = health.New()

	// ── 1. Storage ────────────────────────────────────────────────────────
	if a.store == nil {
		s, err := openStore(ctx, a.cfg.Storage)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, s.Close)
	}
	if p, ok := a.store.(pinger); ok {
		a.health.Add(health.Ping("store", p.Ping))
	}

	// ── 2. Letter statistics ──────────────────────────────────────────────
	if a.stats == nil {
		switch a.cfg.LetterStats.Backend {
		case config.StatsRedis:
			rs, err := statsredis.Dial(ctx, a.cfg.LetterStats.Addr, a.cfg.LetterStats.Password, a.cfg.LetterStats.Prefix)
			if err != nil {
				return fmt.Errorf("app: %w", err)
			}
			a.stats = rs
			a.closers = append(a.closers, rs.Close)
			a.health.Add(health.Ping("letter_stats", rs.Ping))
		default:
			a.stats = statsmemory.New()
		}
	}

	// ── 3. Events ─────────────────────────────────────────────────────────
	if a.events == nil {
		if a.cfg.Events.URL == "" {
			a.events = events.Nop{}
		} else {
			p, err := events.NewNATS(events.NATSConfig{
				URL:           a.cfg.Events.URL,
				SubjectPrefix: a.cfg.Events.SubjectPrefix,
			})
			if err != nil {
				return fmt.Errorf("app: %w", err)
			}
			a.events = p
		}
		a.closers = append(a.closers, a.events.Close)
	}

	// ── 4. Library ────────────────────────────────────────────────────────
	builtin, err := lesson.Builtin()
	if err != nil {
		return fmt.Errorf("app: built-in lessons: %w", err)
	}
	a.library = library.New(builtin, a.store)
	if dir := a.cfg.Lessons.Dir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("app: lesson dir: %w", err)
		}
		if _, err := a.library.LoadDir(dir); err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}

	// ── 5. Coach ──────────────────────────────────────────────────────────
	if a.cfg.Coach.Enabled && a.providers.LLM != nil {
		provider := resilience.NewLLMFallback(a.providers.LLM, a.cfg.Providers.LLM.Name, a.fallbackConfig())
		llmCoach, err := coach.New(coach.Config{
			Provider: provider,
			Breaker:  resilience.NewCircuitBreaker(a.breakerConfig("coach", 3)),
		})
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.coach = pcoach.Guard(llmCoach,
			pcoach.WithTimeout(a.cfg.Coach.Timeout),
			pcoach.WithObserver(func(op string, d time.Duration, ok bool) {
				a.metrics.RecordCoach(context.Background(), op, d, ok)
			}),
		)
		a.health.Add(health.Breaker("coach", llmCoach.Breaker()), health.Breakers("llm", provider))
		slog.Info("coach enabled", "provider", a.cfg.Providers.LLM.Name, "model", provider.Model())
	}

	// ── 6. Speech ─────────────────────────────────────────────────────────
	backend, err := a.speechBackend()
	if err != nil {
		return err
	}
	a.speech = speech.NewQueue(backend,
		speech.WithRate(a.cfg.Speech.Rate),
		speech.WithPitch(a.cfg.Speech.Pitch),
		speech.WithUtteranceTimeout(a.cfg.Speech.UtteranceTimeout),
		speech.WithEncourager(a.coach),
		speech.WithObserver(func(_ speech.Utterance, d time.Duration, err error) {
			a.metrics.RecordSpeech(context.Background(), d, err)
		}),
	)
	a.closers = append(a.closers, a.speech.Close)

	// ── 7. Progress ───────────────────────────────────────────────────────
	a.tracker = progress.NewTracker(a.store, progress.WithClock(a.clock))
	a.practice = progress.NewRepetition(a.stats, progress.WithClock(a.clock))

	// ── 8. Listener ───────────────────────────────────────────────────────
	observers := append(Fanout(nil), a.observer...)
	if a.providers.STT != nil {
		sttProvider := resilience.NewSTTFallback(a.providers.STT, a.cfg.Providers.STT.Name, a.fallbackConfig())
		l, err := voice.NewListener(voice.Config{
			Provider:    sttProvider,
			Target:      inputFunc(func(raw string) session.Outcome { return a.controller.HandleInput(raw) }),
			Language:    a.cfg.Lessons.DefaultLanguage,
			SampleRate:  a.cfg.Voice.SampleRate,
			PhonemeMode: a.cfg.Voice.PhonemeMode,
		})
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.listener = l
		observers = append(observers, l)
		a.health.Add(health.Breakers("stt", sttProvider))
	}

	// ── 9. Controller ─────────────────────────────────────────────────────
	a.controller, err = NewController(ControllerConfig{
		Speech:    a.speech,
		Lessons:   a.library,
		Coach:     a.coach,
		Progress:  a.tracker,
		Practice:  a.practice,
		Events:    a.events,
		Observer:  observers,
		Metrics:   a.metrics,
		Language:  a.cfg.Lessons.DefaultLanguage,
		ChildName: a.cfg.Coach.ChildName,
		Clock:     a.clock,
	})
	if err != nil {
		return err
	}
	a.closers = append([]func() error{a.controller.Close}, a.closers...)

	// ── 10. Vision ────────────────────────────────────────────────────────
	if ep := a.cfg.Vision.Endpoint; ep != "" {
		d, err := vision.New(ep, vision.WithTimeout(a.cfg.Vision.Timeout))
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.detector = d
		a.health.Add(health.Checker{
			Name:     "vision",
			Optional: true,
			Check: func(ctx context.Context) error {
				if !d.Available(ctx) {
					return errors.New("detection server unreachable")
				}
				return nil
			},
		})
	}

	slog.Info("app initialised",
		"storage", a.cfg.Storage.Backend,
		"letter_stats", a.cfg.LetterStats.Backend,
		"speech", a.cfg.Speech.Backend,
		"coach", a.coach != nil,
		"voice_input", a.listener != nil,
		"vision", a.detector != nil,
	)
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// openStore creates the configured store backend.
func openStore(ctx context.Context, cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.StorageFile:
		s, err := file.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return s, nil
	case config.StorageSQLite:
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return s, nil
	case config.StoragePostgres:
		s, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return s, nil
	default:
		return memory.New(), nil
	}
}

func (a *App) speechBackend() (speech.Backend, error) {
	switch a.cfg.Speech.Backend {
	case config.SpeechTTS:
		if a.providers.TTS == nil {
			return nil, errors.New("app: speech backend \"tts\" needs a TTS provider")
		}
		if a.sink == nil {
			return nil, errors.New("app: speech backend \"tts\" needs an audio sink")
		}
		p := resilience.NewTTSFallback(a.providers.TTS, a.cfg.Providers.TTS.Name, a.fallbackConfig())
		a.health.Add(health.Breakers("tts", p))
		return speech.NewTTSBackend(p, a.sink, a.cfg.Speech.Voice), nil
	case config.SpeechNone:
		return speech.Silent{}, nil
	default:
		if a.backend == nil {
			slog.Warn("no browser speech backend attached; utterances are discarded")
			return speech.Silent{}, nil
		}
		return a.backend, nil
	}
}

func (a *App) breakerConfig(name string, maxFailures int) resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		Name:        name,
		MaxFailures: maxFailures,
		OnStateChange: func(name string, from, to resilience.State) {
			a.metrics.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
		},
	}
}

func (a *App) fallbackConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{CircuitBreaker: a.breakerConfig("", 5)}
}

// Run drives the background loops until ctx is cancelled: the speech
// recognition stream when voice input is configured, and the lesson
// directory watcher when a directory is set.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.listener != nil {
		g.Go(func() error {
			for {
				err := a.listener.Run(ctx)
				if ctx.Err() != nil {
					return nil
				}
				if err != nil {
					slog.Warn("speech recognition stopped", "err", err)
				}
				// Reconnect after the recogniser went away.
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(2 * time.Second):
				}
			}
		})
	}

	if dir := a.cfg.Lessons.Dir; dir != "" {
		g.Go(func() error {
			return a.library.Watch(ctx, dir, library.DefaultDebounce, nil)
		})
	}

	slog.Info("app running", "language", a.controller.Language())
	<-ctx.Done()
	return g.Wait()
}

// Reconfigure applies the hot-reloadable parts of a config change.
func (a *App) Reconfigure(d config.ConfigDiff) {
	if d.LanguageChanged {
		if err := a.controller.SetLanguage(d.NewLanguage); err != nil {
			slog.Warn("config reload: language", "err", err)
		}
	}
	if d.ChildNameChanged {
		a.controller.SetChildName(d.NewChildName)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config reload: restart needed to apply", "sections", d.RestartRequired)
	}
}

// Shutdown gracefully tears down all subsystems in order: the running lesson
// first, then speech, events and storage. It respects the context deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Config returns the config the app was built with.
func (a *App) Config() *config.Config { return a.cfg }

// Controller returns the instruction mode controller.
func (a *App) Controller() *Controller { return a.controller }

// Library returns the lesson library.
func (a *App) Library() *library.Library { return a.library }

// Speech returns the speech queue.
func (a *App) Speech() *speech.Queue { return a.speech }

// Tracker returns the progress tracker.
func (a *App) Tracker() *progress.Tracker { return a.tracker }

// Practice returns the spaced repetition scheduler.
func (a *App) Practice() *progress.Repetition { return a.practice }

// Listener returns the speech recognition listener, or nil when voice input
// is not configured.
func (a *App) Listener() *voice.Listener { return a.listener }

// Detector returns the object detector, or nil when vision is not
// configured.
func (a *App) Detector() *vision.Detector { return a.detector }

// Coach returns the guarded coach. It may be nil; its methods are nil-safe.
func (a *App) Coach() *pcoach.Guarded { return a.coach }

// Health returns the readiness handler.
func (a *App) Health() *health.Handler { return a.health }

// Metrics returns the metric instruments.
func (a *App) Metrics() *observe.Metrics { return a.metrics }
