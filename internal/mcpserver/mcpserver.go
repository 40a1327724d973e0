// Package mcpserver exposes the tutor to MCP clients such as a parent's
// assistant: listing and generating lessons, starting one, and reading the
// child's progress.
//
// Tools:
//
//	list_lessons          lessons available in a language
//	generate_word_lesson  build (and optionally save) a spelling lesson
//	start_lesson          start a lesson by id or by word
//	session_status        what the tutor is doing right now
//	progress_summary      stars, streak and recent lessons
//
// Mount [Server.Handler] on /mcp for the streamable HTTP transport.
package mcpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/readalong/internal/app"
	"github.com/MrWong99/readalong/internal/library"
	"github.com/MrWong99/readalong/pkg/lesson"
)

// Server holds the MCP server and the app it drives.
type Server struct {
	app    *app.App
	server *mcpsdk.Server
	now    func() time.Time
}

// New registers the tutor's tools on a new MCP server.
func New(a *app.App, version string) *Server {
	s := &Server{
		app: a,
		server: mcpsdk.NewServer(
			&mcpsdk.Implementation{Name: "readalong", Version: version},
			nil,
		),
		now: time.Now,
	}

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "list_lessons",
		Description: "List the lessons available in a language (en or fr). Defaults to the tutor's current language.",
	}, s.listLessons)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "generate_word_lesson",
		Description: "Generate a spelling lesson for a word: an introduction, one prompt per letter, and a celebration. Set save to keep it in the lesson library.",
	}, s.generateWordLesson)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "start_lesson",
		Description: "Start a lesson on the tutor, either a stored lesson by id or a new spelling lesson for a word. Replaces any running lesson.",
	}, s.startLesson)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "session_status",
		Description: "Report whether instruction mode is on and which step of which lesson is running.",
	}, s.sessionStatus)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "progress_summary",
		Description: "Summarise the child's progress: stars earned, daily streak and the most recent lessons.",
	}, s.progressSummary)

	return s
}

// MCP returns the underlying SDK server, for connecting custom transports.
func (s *Server) MCP() *mcpsdk.Server { return s.server }

// Handler returns a streamable HTTP handler serving the tools.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.server }, nil)
}

// ─── list_lessons ───────────────────────────────────────────────────────────

type listInput struct {
	Language string `json:"language,omitempty" jsonschema:"base language tag such as en or fr"`
}

type listOutput struct {
	Language string          `json:"language"`
	Lessons  []library.Entry `json:"lessons"`
}

func (s *Server) listLessons(ctx context.Context, _ *mcpsdk.CallToolRequest, in listInput) (*mcpsdk.CallToolResult, listOutput, error) {
	lang := in.Language
	if lang == "" {
		lang = s.app.Controller().Language()
	}
	entries, err := s.app.Library().List(ctx, lang)
	if err != nil {
		return nil, listOutput{}, err
	}
	if entries == nil {
		entries = []library.Entry{}
	}
	return nil, listOutput{Language: lang, Lessons: entries}, nil
}

// ─── generate_word_lesson ───────────────────────────────────────────────────

type generateInput struct {
	Word     string `json:"word" jsonschema:"the word to spell"`
	Language string `json:"language,omitempty" jsonschema:"base language tag such as en or fr"`
	Intro    string `json:"intro,omitempty" jsonschema:"custom introduction sentence"`
	Save     bool   `json:"save,omitempty" jsonschema:"keep the lesson in the library"`
}

type stepInfo struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Text     string `json:"text"`
	Expected string `json:"expected,omitempty"`
}

type lessonOutput struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Language string     `json:"language"`
	Saved    bool       `json:"saved"`
	Steps    []stepInfo `json:"steps"`
}

func describe(l *lesson.Lesson) lessonOutput {
	out := lessonOutput{ID: l.ID, Title: l.Title, Language: l.Language}
	for _, st := range l.Steps() {
		out.Steps = append(out.Steps, stepInfo{ID: st.ID, Type: st.Kind.String(), Text: st.Text, Expected: st.Expected})
	}
	return out
}

func (s *Server) generateWordLesson(ctx context.Context, _ *mcpsdk.CallToolRequest, in generateInput) (*mcpsdk.CallToolResult, lessonOutput, error) {
	lang := in.Language
	if lang == "" {
		lang = s.app.Controller().Language()
	}

	var (
		l   *lesson.Lesson
		err error
	)
	if in.Save || in.Intro != "" {
		l, err = lesson.Build(in.Word, lang, in.Intro)
	} else {
		l, err = lesson.FromWord(in.Word, lang)
	}
	if err != nil {
		return nil, lessonOutput{}, err
	}

	out := describe(l)
	if in.Save {
		if err := s.app.Library().Save(ctx, l); err != nil {
			return nil, lessonOutput{}, err
		}
		out.Saved = true
	}
	return nil, out, nil
}

// ─── start_lesson ───────────────────────────────────────────────────────────

type startInput struct {
	LessonID string `json:"lesson_id,omitempty" jsonschema:"id of a lesson from list_lessons"`
	Word     string `json:"word,omitempty" jsonschema:"word to spell when no lesson_id is given"`
}

func (s *Server) startLesson(ctx context.Context, _ *mcpsdk.CallToolRequest, in startInput) (*mcpsdk.CallToolResult, app.Status, error) {
	ctrl := s.app.Controller()
	var err error
	switch {
	case in.LessonID != "":
		_, err = ctrl.StartLesson(ctx, in.LessonID)
	case in.Word != "":
		_, err = ctrl.StartWordLesson(ctx, in.Word)
	default:
		err = errors.New("either lesson_id or word is required")
	}
	if err != nil {
		return nil, app.Status{}, err
	}
	return nil, ctrl.Status(), nil
}

// ─── session_status ─────────────────────────────────────────────────────────

type statusInput struct{}

func (s *Server) sessionStatus(context.Context, *mcpsdk.CallToolRequest, statusInput) (*mcpsdk.CallToolResult, app.Status, error) {
	return nil, s.app.Controller().Status(), nil
}

// ─── progress_summary ───────────────────────────────────────────────────────

type recentLesson struct {
	LessonID  string `json:"lesson_id"`
	Title     string `json:"title"`
	Language  string `json:"language"`
	Completed string `json:"completed"`
	Accuracy  int    `json:"accuracy"`
}

type progressOutput struct {
	Stars     int            `json:"stars"`
	Streak    int            `json:"streak"`
	Completed int            `json:"completed"`
	Recent    []recentLesson `json:"recent"`
}

func (s *Server) progressSummary(ctx context.Context, _ *mcpsdk.CallToolRequest, _ statusInput) (*mcpsdk.CallToolResult, progressOutput, error) {
	sum, err := s.app.Tracker().Summary(ctx, s.now())
	if err != nil {
		return nil, progressOutput{}, err
	}
	out := progressOutput{Stars: sum.Stars, Streak: sum.Streak, Completed: sum.Completed, Recent: []recentLesson{}}
	for _, r := range sum.Recent {
		acc := 100
		if r.TotalAttempts > 0 {
			acc = r.CorrectAttempts * 100 / r.TotalAttempts
		}
		out.Recent = append(out.Recent, recentLesson{
			LessonID:  r.LessonID,
			Title:     r.LessonTitle,
			Language:  r.Language,
			Completed: r.Completed.Format(time.RFC3339),
			Accuracy:  acc,
		})
	}
	return nil, out, nil
}
