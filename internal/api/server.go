// Package api exposes sessions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ppiankov/decisio/internal/logging"
	"github.com/ppiankov/decisio/internal/model"
	"github.com/ppiankov/decisio/internal/pipeline"
	"github.com/ppiankov/decisio/internal/report"
	"github.com/ppiankov/decisio/internal/store"
)

const maxBodyBytes = 1 << 20

var (
	errRunning      = errors.New("session is running")
	errShuttingDown = errors.New("server is shutting down")
)

// Engine is the session surface the server drives. *pipeline.Engine
// implements it.
type Engine interface {
	Create(ctx context.Context, question string) (*model.Session, error)
	Run(ctx context.Context, sess *model.Session) (*model.Session, error)
	Resume(ctx context.Context, id string, answers []model.Answer, skip bool) (*model.Session, error)
	Cancel(ctx context.Context, id string) (*model.Session, error)
	Get(ctx context.Context, id string) (*model.Session, error)
	List(ctx context.Context, limit int) ([]store.Summary, error)
}

// run is one in-flight pipeline run owned by the server
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Server serves the session API. Runs started over HTTP outlive their
// request; the server owns their cancel functions.
type Server struct {
	engine     Engine
	renderer   *report.Renderer
	log        *logging.Logger
	runTimeout time.Duration

	base     context.Context
	stopRuns context.CancelFunc

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

// NewServer creates a server. A zero runTimeout leaves runs unbounded.
func NewServer(engine Engine, renderer *report.Renderer, log *logging.Logger, runTimeout time.Duration) *Server {
	base, stop := context.WithCancel(context.Background())
	if renderer == nil {
		renderer = report.NewRenderer(false)
	}
	return &Server{
		engine:     engine,
		renderer:   renderer,
		log:        log,
		runTimeout: runTimeout,
		base:       base,
		stopRuns:   stop,
		runs:       make(map[string]*run),
	}
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/sessions", s.createSession)
	r.Get("/sessions", s.listSessions)
	r.Get("/sessions/{id}", s.getSession)
	r.Post("/sessions/{id}/answers", s.answerSession)
	r.Post("/sessions/{id}/cancel", s.cancelSession)
	r.Get("/health", s.health)

	return r
}

// Shutdown cancels every in-flight run and waits for them to record
// their FAILED state, or for ctx to end
func (s *Server) Shutdown(ctx context.Context) error {
	// Under mu, so no register can Add to wg once Wait may have started
	s.mu.Lock()
	s.stopRuns()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debugf("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type createRequest struct {
	Question string `json:"question"`
}

// createSession persists a new session and runs it in the background
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if s.base.Err() != nil {
		writeError(w, errShuttingDown)
		return
	}

	sess, err := s.engine.Create(r.Context(), req.Question)
	if err != nil {
		writeError(w, err)
		return
	}

	created := sess.Clone()
	if err := s.start(sess.ID, func(ctx context.Context) (*model.Session, error) {
		return s.engine.Run(ctx, sess)
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, created, http.StatusAccepted)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONStatus(w, errorResponse{Error: "limit must be a non-negative integer"}, http.StatusBadRequest)
			return
		}
		limit = n
	}

	summaries, err := s.engine.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []store.Summary{}
	}
	writeJSON(w, summaries)
}

// getSession returns the session as JSON, or as the Markdown report with
// ?format=md
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		data, err := s.renderer.JSON(sess)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	case "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = io.WriteString(w, s.renderer.Markdown(sess))
	default:
		writeJSONStatus(w, errorResponse{Error: "format must be json or md"}, http.StatusBadRequest)
	}
}

type answerRequest struct {
	Answers []model.Answer `json:"answers"`
	Skip    bool           `json:"skip"`
}

// answerSession resumes a paused session and returns it once it settles.
// The resume is registered as a run so it can be canceled and is not
// aborted by the client going away.
func (s *Server) answerSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req answerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, rn, err := s.register(id)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.engine.Resume(ctx, id, req.Answers, req.Skip)
	s.finish(id, rn)

	var failed *pipeline.FailedError
	if err != nil && !(errors.As(err, &failed) && sess != nil) {
		writeError(w, err)
		return
	}
	writeJSON(w, sess)
}

// cancelSession stops the in-flight run of the session, or fails a
// session that is paused
func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	rn := s.runs[id]
	s.mu.Unlock()

	if rn != nil {
		rn.cancel()
		select {
		case <-rn.done:
		case <-r.Context().Done():
			return
		}
	}

	sess, err := s.engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rn != nil && sess.Stage == model.StageFailed {
		writeJSON(w, sess)
		return
	}

	sess, err = s.engine.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, sess)
}

// start runs fn in the background under the server's context
func (s *Server) start(id string, fn func(ctx context.Context) (*model.Session, error)) error {
	ctx, rn, err := s.register(id)
	if err != nil {
		return err
	}
	go func() {
		defer s.finish(id, rn)
		sess, err := fn(ctx)
		if err != nil {
			s.log.Warnf("session %s: %v", id, err)
			return
		}
		s.log.Printf("session %s settled at %s", id, sess.Stage)
	}()
	return nil
}

// register claims id for one run. It fails when a run of id is in flight
// or the server is shutting down.
func (s *Server) register(id string) (context.Context, *run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base.Err() != nil {
		return nil, nil, errShuttingDown
	}
	if _, busy := s.runs[id]; busy {
		return nil, nil, errRunning
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if s.runTimeout > 0 {
		ctx, cancel = context.WithTimeout(s.base, s.runTimeout)
	} else {
		ctx, cancel = context.WithCancel(s.base)
	}
	rn := &run{cancel: cancel, done: make(chan struct{})}
	s.runs[id] = rn
	s.wg.Add(1)
	return ctx, rn, nil
}

func (s *Server) finish(id string, rn *run) {
	s.mu.Lock()
	if s.runs[id] == rn {
		delete(s.runs, id)
	}
	s.mu.Unlock()
	rn.cancel()
	close(rn.done)
	s.wg.Done()
}

type errorResponse struct {
	Error string `json:"error"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSONStatus(w, errorResponse{Error: "invalid request body: " + err.Error()}, http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps domain errors onto status codes
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case pipeline.IsInputError(err):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrNotAwaiting), errors.Is(err, store.ErrConflict), errors.Is(err, errRunning):
		status = http.StatusConflict
	case errors.Is(err, errShuttingDown):
		status = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, errorResponse{Error: err.Error()}, status)
}

func writeJSON(w http.ResponseWriter, value any) {
	writeJSONStatus(w, value, http.StatusOK)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}
