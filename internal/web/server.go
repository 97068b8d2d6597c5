package web

import (
	"bufio"
	"context"
	"embed"
	"errors"
	"html/template"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gemini-qa/internal/session"
	"gemini-qa/internal/stream"
)

const (
	sessionCookie = "qa_session"

	answerPath = "/ws/answer"
	imagePath  = "/api/image"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Dispatcher is the subset of the usecase layer the page calls.
type Dispatcher interface {
	AnswerText(ctx context.Context, sess *session.Session, question string) (*stream.Stream, error)
	AnswerImage(ctx context.Context, question string, image []byte) (string, error)
}

type pageData struct {
	Title              string
	BackgroundImageURL string
	AnswerPath         string
	ImagePath          string
}

// Server is the browser-facing shell: one HTML page plus the JSON and
// WebSocket endpoints it talks to.
type Server struct {
	dispatcher     Dispatcher
	sessions       *session.Store
	log            *zap.SugaredLogger
	title          string
	background     string
	maxUploadBytes int64
}

type Option func(*Server)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

func WithSessions(store *session.Store) Option {
	return func(s *Server) {
		if store != nil {
			s.sessions = store
		}
	}
}

func WithTitle(title string) Option {
	return func(s *Server) {
		if title != "" {
			s.title = title
		}
	}
}

func WithBackgroundImage(url string) Option {
	return func(s *Server) {
		s.background = url
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

func NewServer(d Dispatcher, opts ...Option) (*Server, error) {
	if d == nil {
		return nil, errors.New("web: dispatcher must not be nil")
	}
	s := &Server{
		dispatcher:     d,
		sessions:       session.NewStore(),
		log:            zap.NewNop().Sugar(),
		title:          "Gemini Q&A Demo",
		maxUploadBytes: 10 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET "+answerPath, s.handleAnswerSocket)
	mux.HandleFunc("POST /api/answer", s.handleAnswer)
	mux.HandleFunc("POST "+imagePath, s.handleImage)
	mux.HandleFunc("GET /api/transcript", s.handleTranscript)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s.logRequests(mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.session(w, r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := pageTemplate.Execute(w, pageData{
		Title:              s.title,
		BackgroundImageURL: s.background,
		AnswerPath:         answerPath,
		ImagePath:          imagePath,
	})
	if err != nil {
		s.log.Errorw("render page", "err", err)
	}
}

// session returns the caller's session, issuing the cookie when a new one
// is created.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	sess, cookie := s.resolveSession(r)
	if cookie != nil {
		http.SetCookie(w, cookie)
	}
	return sess
}

func (s *Server) resolveSession(r *http.Request) (*session.Session, *http.Cookie) {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}
	sess, created := s.sessions.GetOrCreate(id)
	if !created {
		return sess, nil
	}
	s.log.Debugw("session created", "session", sess.ID())
	return sess, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes the connection through for the WebSocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("web: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				s.log.Errorw("panic serving request", "path", r.URL.Path, "panic", p)
				http.Error(rec, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			s.log.Infow("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		}()
		next.ServeHTTP(rec, r)
	})
}
