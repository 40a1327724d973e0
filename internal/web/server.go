// Package web serves the tutor's HTTP API and the WebSocket the browser UI
// talks to.
//
// Routes:
//
//	GET    /api/lessons?lang=     list lessons
//	POST   /api/lessons           build a word lesson or upload YAML
//	GET    /api/lessons/{id}      lesson definition
//	DELETE /api/lessons/{id}      delete a custom lesson
//	POST   /api/mode              activate or deactivate instruction mode
//	GET    /api/session           controller status
//	POST   /api/session           start a lesson, word or practice session
//	DELETE /api/session           stop the running lesson
//	POST   /api/input             submit a key press
//	PUT    /api/language          switch the tutor's language
//	GET    /api/progress          stars, streak and recent lessons
//	DELETE /api/progress          reset progress and letter statistics
//	GET    /api/practice/letters  letters that need practice
//	POST   /api/vision            detect objects in an uploaded picture
//	GET    /ws                    WebSocket, see [Hub]
//	GET    /healthz, /readyz      probes
//	GET    /metrics               Prometheus scrape endpoint
//	       /mcp                   MCP tool server, when configured
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/readalong/internal/app"
	"github.com/MrWong99/readalong/internal/config"
	"github.com/MrWong99/readalong/internal/library"
	"github.com/MrWong99/readalong/internal/observe"
	"github.com/MrWong99/readalong/internal/progress"
	"github.com/MrWong99/readalong/internal/store"
	"github.com/MrWong99/readalong/internal/vision"
	"github.com/MrWong99/readalong/pkg/lesson"
)

const (
	// maxBodyBytes limits JSON and YAML request bodies.
	maxBodyBytes = 1 << 20

	// maxImageBytes limits uploaded pictures.
	maxImageBytes = 10 << 20

	// defaultPracticeLetters is the letter count when ?n= is absent.
	defaultPracticeLetters = 5
)

// Server routes HTTP requests to the app.
type Server struct {
	app     *app.App
	hub     *Hub
	mcp     http.Handler
	now     func() time.Time
	handler http.Handler
}

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithHub serves h on /ws.
func WithHub(h *Hub) ServerOption {
	return func(s *Server) { s.hub = h }
}

// WithMCP mounts an MCP handler on /mcp.
func WithMCP(h http.Handler) ServerOption {
	return func(s *Server) { s.mcp = h }
}

// WithNow overrides time.Now for progress summaries.
func WithNow(fn func() time.Time) ServerOption {
	return func(s *Server) { s.now = fn }
}

// NewServer builds the route table for a.
func NewServer(a *app.App, opts ...ServerOption) *Server {
	s := &Server{app: a, now: time.Now}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/lessons", s.listLessons)
	mux.HandleFunc("POST /api/lessons", s.createLesson)
	mux.HandleFunc("GET /api/lessons/{id}", s.getLesson)
	mux.HandleFunc("DELETE /api/lessons/{id}", s.deleteLesson)
	mux.HandleFunc("POST /api/mode", s.setMode)
	mux.HandleFunc("GET /api/session", s.sessionStatus)
	mux.HandleFunc("POST /api/session", s.startSession)
	mux.HandleFunc("DELETE /api/session", s.stopSession)
	mux.HandleFunc("POST /api/input", s.input)
	mux.HandleFunc("PUT /api/language", s.setLanguage)
	mux.HandleFunc("GET /api/progress", s.progressSummary)
	mux.HandleFunc("DELETE /api/progress", s.clearProgress)
	mux.HandleFunc("GET /api/practice/letters", s.practiceLetters)
	mux.HandleFunc("POST /api/vision", s.detect)
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}
	if s.mcp != nil {
		mux.Handle("/mcp", s.mcp)
	}
	a.Health().Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handler = observe.Middleware(a.Metrics())(mux)
	return s
}

// Handler returns the instrumented route table.
func (s *Server) Handler() http.Handler { return s.handler }

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
// tls may be nil to serve plain HTTP.
func (s *Server) Serve(ctx context.Context, addr string, tls *config.TLSConfig) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln, tls)
}

// ServeListener is [Server.Serve] on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener, tls *config.TLSConfig) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web: listening", "addr", ln.Addr().String(), "tls", tls != nil)
		if tls != nil {
			errCh <- srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			errCh <- srv.Serve(ln)
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	return nil
}

// ─── lessons ────────────────────────────────────────────────────────────────

func (s *Server) listLessons(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = s.app.Controller().Language()
	}
	entries, err := s.app.Library().List(r.Context(), lang)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"language": lang, "lessons": entries})
}

type buildRequest struct {
	Word     string `json:"word"`
	Language string `json:"language"`
	Intro    string `json:"intro"`
}

// createLesson saves a lesson built from a word (JSON body) or uploaded as
// YAML (Content-Type application/yaml).
func (s *Server) createLesson(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var lessons []*lesson.Lesson
	if isYAML(r.Header.Get("Content-Type")) {
		decoded, err := lesson.Decode(body)
		if err != nil {
			writeError(w, fmt.Errorf("%w: %w", lesson.ErrMalformedLesson, err))
			return
		}
		lessons = decoded
	} else {
		var req buildRequest
		if !decodeJSON(w, body, &req) {
			return
		}
		lang := req.Language
		if lang == "" {
			lang = s.app.Controller().Language()
		}
		l, err := lesson.Build(req.Word, lang, req.Intro)
		if err != nil {
			writeError(w, err)
			return
		}
		lessons = []*lesson.Lesson{l}
	}
	if len(lessons) == 0 {
		writeError(w, fmt.Errorf("%w: no lesson in body", lesson.ErrInvalidInput))
		return
	}

	defs := make([]lesson.Definition, 0, len(lessons))
	for _, l := range lessons {
		if err := s.app.Library().Save(r.Context(), l); err != nil {
			writeError(w, err)
			return
		}
		defs = append(defs, l.Definition())
	}
	writeJSON(w, http.StatusCreated, map[string]any{"lessons": defs})
}

func isYAML(contentType string) bool {
	return strings.Contains(contentType, "yaml")
}

func (s *Server) getLesson(w http.ResponseWriter, r *http.Request) {
	l, err := s.app.Library().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l.Definition())
}

func (s *Server) deleteLesson(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Library().Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── mode and session ───────────────────────────────────────────────────────

type modeRequest struct {
	Active bool `json:"active"`
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !decodeJSON(w, http.MaxBytesReader(w, r.Body, maxBodyBytes), &req) {
		return
	}
	ctrl := s.app.Controller()
	if req.Active {
		ctrl.Activate()
	} else {
		ctrl.Deactivate()
	}
	writeJSON(w, http.StatusOK, ctrl.Status())
}

func (s *Server) sessionStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Controller().Status())
}

type startRequest struct {
	LessonID string `json:"lesson_id"`
	Word     string `json:"word"`
	Practice bool   `json:"practice"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeJSON(w, http.MaxBytesReader(w, r.Body, maxBodyBytes), &req) {
		return
	}
	ctrl := s.app.Controller()

	var (
		l   *lesson.Lesson
		err error
	)
	switch {
	case req.Practice:
		l, err = ctrl.StartPracticeLesson(r.Context())
	case req.LessonID != "":
		l, err = ctrl.StartLesson(r.Context(), req.LessonID)
	default:
		l, err = ctrl.StartWordLesson(r.Context(), req.Word)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"lesson": l.Definition(),
		"status": ctrl.Status(),
	})
}

// stopSession drops the running lesson but leaves instruction mode on.
func (s *Server) stopSession(w http.ResponseWriter, _ *http.Request) {
	if err := s.app.Controller().Stop(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inputRequest struct {
	Key string `json:"key"`
}

func (s *Server) input(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if !decodeJSON(w, http.MaxBytesReader(w, r.Body, maxBodyBytes), &req) {
		return
	}
	ctrl := s.app.Controller()
	if !ctrl.IsActive() {
		writeError(w, app.ErrInactive)
		return
	}
	out := ctrl.HandleInput(req.Key)
	writeJSON(w, http.StatusOK, map[string]string{"key": req.Key, "outcome": out.String()})
}

type languageRequest struct {
	Language string `json:"language"`
}

func (s *Server) setLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if !decodeJSON(w, http.MaxBytesReader(w, r.Body, maxBodyBytes), &req) {
		return
	}
	if err := s.app.Controller().SetLanguage(req.Language); err != nil {
		writeError(w, fmt.Errorf("%w: %w", lesson.ErrInvalidInput, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"language": s.app.Controller().Language()})
}

// ─── progress ───────────────────────────────────────────────────────────────

func (s *Server) progressSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.app.Tracker().Summary(r.Context(), s.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) clearProgress(w http.ResponseWriter, r *http.Request) {
	if err := errors.Join(
		s.app.Tracker().Clear(r.Context()),
		s.app.Practice().Clear(r.Context()),
	); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) practiceLetters(w http.ResponseWriter, r *http.Request) {
	n := defaultPracticeLetters
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, fmt.Errorf("%w: n must be a positive integer", lesson.ErrInvalidInput))
			return
		}
		n = parsed
	}
	stats, err := s.app.Practice().Struggling(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"letters": stats})
}

// ─── vision ─────────────────────────────────────────────────────────────────

// detect runs object detection on the uploaded "file" part and speaks the
// result. With ?start=true a word lesson for the top label is started.
func (s *Server) detect(w http.ResponseWriter, r *http.Request) {
	d := s.app.Detector()
	if d == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "object detection is not configured"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("%w: missing image: %w", lesson.ErrInvalidInput, err))
		return
	}
	defer file.Close()

	lang := s.app.Controller().Language()
	start := time.Now()
	dets, err := d.Detect(r.Context(), file, header.Filename)
	s.app.Metrics().RecordDetect(r.Context(), time.Since(start), err)
	switch {
	case errors.Is(err, vision.ErrNoDetections):
		msg := vision.NoDetectionMessage(lang)
		s.app.Speech().Speak(msg, nil)
		writeJSON(w, http.StatusOK, map[string]any{"detections": []vision.Detection{}, "narration": msg})
		return
	case err != nil:
		observe.Logger(r.Context()).Warn("web: detection failed", "err", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "detection failed"})
		return
	}

	resp := map[string]any{"detections": dets}
	if r.URL.Query().Get("start") == "true" {
		l, err := s.app.Controller().StartWordLesson(r.Context(), dets[0].Label)
		if err != nil {
			writeError(w, err)
			return
		}
		resp["lesson"] = l.Definition()
	} else {
		msg := vision.Narration(dets, lang)
		s.app.Speech().Speak(msg, nil)
		resp["narration"] = msg
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── helpers ────────────────────────────────────────────────────────────────

type errorBody struct {
	Error string `json:"error"`
}

func decodeJSON(w http.ResponseWriter, r io.Reader, v any) bool {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lesson.ErrInvalidInput), errors.Is(err, lesson.ErrMalformedLesson):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, app.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, library.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, app.ErrInactive), errors.Is(err, progress.ErrNothingToPractice):
		return http.StatusConflict
	case errors.Is(err, app.ErrPracticeUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("web: request failed", "err", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("web: encode response", "err", err)
	}
}
