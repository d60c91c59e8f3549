package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/decisio/internal/model"
	"github.com/ppiankov/decisio/internal/pipeline"
	"github.com/ppiankov/decisio/internal/report"
	"github.com/ppiankov/decisio/internal/store"
)

// fakeEngine keeps sessions in a map; run decides what a background run does
type fakeEngine struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	nextID   int
	run      func(ctx context.Context, sess *model.Session) (*model.Session, error)
	ran      chan string
	canceled []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{sessions: make(map[string]*model.Session), ran: make(chan string, 8)}
}

func (f *fakeEngine) put(sess *model.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sess.ID] = sess.Clone()
}

func (f *fakeEngine) Create(ctx context.Context, question string) (*model.Session, error) {
	q, err := pipeline.ValidateQuestion(question)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.nextID++
	sess := &model.Session{ID: fmt.Sprintf("run_%d", f.nextID), Question: q, Stage: model.StageCreated}
	f.mu.Unlock()
	f.put(sess)
	return sess, nil
}

func (f *fakeEngine) Run(ctx context.Context, sess *model.Session) (*model.Session, error) {
	defer func() { f.ran <- sess.ID }()
	if f.run == nil {
		sess.Stage = model.StageAwaitingClarification
		f.put(sess)
		return sess, nil
	}
	return f.run(ctx, sess)
}

func (f *fakeEngine) Resume(ctx context.Context, id string, answers []model.Answer, skip bool) (*model.Session, error) {
	sess, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Stage != model.StageAwaitingClarification {
		return sess, fmt.Errorf("%w: %s", pipeline.ErrNotAwaiting, id)
	}
	if len(answers) == 0 && !skip {
		return sess, &pipeline.InputValidationError{Field: "answers", Message: "provide at least one answer or skip clarification"}
	}
	if strings.Contains(sess.Question, "fail") {
		sess.Stage = model.StageFailed
		sess.Error = &model.StageError{Stage: model.StageDone, Kind: "reasoner", Message: "rate limited"}
		f.put(sess)
		return sess, &pipeline.FailedError{SessionID: id, Stage: model.StageDone, Kind: "reasoner", Err: errors.New("rate limited")}
	}
	sess.Answers = answers
	sess.ClarificationSkipped = skip
	sess.Stage = model.StageDone
	sess.Recommendation = &model.Recommendation{Decision: "Adopt X", Confidence: model.ConfidenceMedium}
	f.put(sess)
	return sess, nil
}

func (f *fakeEngine) Cancel(ctx context.Context, id string) (*model.Session, error) {
	sess, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Stage.IsTerminal() {
		return sess, store.ErrConflict
	}
	f.mu.Lock()
	f.canceled = append(f.canceled, id)
	f.mu.Unlock()
	sess.Error = &model.StageError{Stage: sess.Stage, Kind: "canceled", Message: "context canceled"}
	sess.Stage = model.StageFailed
	f.put(sess)
	return sess, nil
}

func (f *fakeEngine) Get(ctx context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return sess.Clone(), nil
}

func (f *fakeEngine) List(ctx context.Context, limit int) ([]store.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Summary
	for i := f.nextID; i >= 1; i-- {
		sess, ok := f.sessions[fmt.Sprintf("run_%d", i)]
		if !ok {
			continue
		}
		out = append(out, store.Summary{ID: sess.ID, Question: sess.Question, Stage: sess.Stage})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, engine Engine) (*Server, *httptest.Server) {
	t.Helper()
	server := NewServer(engine, report.NewRenderer(false), nil, time.Minute)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})
	return server, ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func waitRan(t *testing.T, engine *fakeEngine) string {
	t.Helper()
	select {
	case id := <-engine.ran:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("background run did not finish")
		return ""
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, newFakeEngine())

	resp := get(t, ts.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload map[string]string
	decode(t, resp, &payload)
	if payload["status"] != "ok" {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestCreateSession(t *testing.T) {
	engine := newFakeEngine()
	_, ts := newTestServer(t, engine)

	resp := post(t, ts.URL+"/sessions", `{"question":"Should we adopt technology X?"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var created model.Session
	decode(t, resp, &created)
	if created.ID == "" || created.Stage != model.StageCreated {
		t.Errorf("unexpected created session %+v", created)
	}

	if id := waitRan(t, engine); id != created.ID {
		t.Errorf("ran %s, want %s", id, created.ID)
	}

	var fetched model.Session
	decode(t, get(t, ts.URL+"/sessions/"+created.ID), &fetched)
	if fetched.Stage != model.StageAwaitingClarification {
		t.Errorf("background run not persisted: %s", fetched.Stage)
	}
}

func TestCreateSession_BadInput(t *testing.T) {
	_, ts := newTestServer(t, newFakeEngine())

	tests := []struct {
		name string
		body string
	}{
		{"short question", `{"question":"hi"}`},
		{"malformed body", `{"question":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts.URL+"/sessions", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
			var payload errorResponse
			decode(t, resp, &payload)
			if payload.Error == "" {
				t.Error("missing error message")
			}
		})
	}
}

func TestGetSession(t *testing.T) {
	engine := newFakeEngine()
	text := "page body"
	engine.nextID = 1
	engine.put(&model.Session{
		ID:             "run_1",
		Question:       "Should we adopt technology X?",
		Stage:          model.StageDone,
		Sources:        []model.Source{{ID: "src_1", URL: "https://a.example", Text: &text, Status: model.ExtractionOK}},
		Recommendation: &model.Recommendation{Decision: "Adopt X", Confidence: model.ConfidenceHigh},
	})
	_, ts := newTestServer(t, engine)

	t.Run("json", func(t *testing.T) {
		resp := get(t, ts.URL+"/sessions/run_1")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var sess model.Session
		decode(t, resp, &sess)
		if sess.Recommendation == nil || sess.Recommendation.Decision != "Adopt X" {
			t.Errorf("unexpected session %+v", sess)
		}
		if sess.Sources[0].Text != nil {
			t.Error("page text served")
		}
	})

	t.Run("markdown", func(t *testing.T) {
		resp := get(t, ts.URL+"/sessions/run_1?format=md")
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
			t.Errorf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "## Recommendation") {
			t.Errorf("unexpected markdown %q", body)
		}
	})

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown session", "/sessions/run_404", http.StatusNotFound},
		{"unknown format", "/sessions/run_1?format=pdf", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := get(t, ts.URL+tt.path); resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestListSessions(t *testing.T) {
	engine := newFakeEngine()
	_, ts := newTestServer(t, engine)

	for _, q := range []string{"Should we adopt technology X?", "Should we rewrite billing?", "Should we move to Postgres?"} {
		post(t, ts.URL+"/sessions", fmt.Sprintf(`{"question":%q}`, q))
		waitRan(t, engine)
	}

	var all []store.Summary
	decode(t, get(t, ts.URL+"/sessions"), &all)
	if len(all) != 3 || all[0].Question != "Should we move to Postgres?" {
		t.Errorf("unexpected listing %+v", all)
	}

	var limited []store.Summary
	decode(t, get(t, ts.URL+"/sessions?limit=2"), &limited)
	if len(limited) != 2 {
		t.Errorf("expected 2 summaries, got %d", len(limited))
	}

	if resp := get(t, ts.URL+"/sessions?limit=-1"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for a negative limit, got %d", resp.StatusCode)
	}
}

func TestListSessions_Empty(t *testing.T) {
	_, ts := newTestServer(t, newFakeEngine())

	body, _ := io.ReadAll(get(t, ts.URL+"/sessions").Body)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("expected an empty array, got %q", body)
	}
}

func TestAnswerSession(t *testing.T) {
	engine := newFakeEngine()
	engine.nextID = 3
	engine.put(&model.Session{ID: "run_1", Question: "Should we adopt X?", Stage: model.StageAwaitingClarification})
	engine.put(&model.Session{ID: "run_2", Question: "Should we adopt Y?", Stage: model.StageDone})
	engine.put(&model.Session{ID: "run_3", Question: "Should this fail?", Stage: model.StageAwaitingClarification})
	_, ts := newTestServer(t, engine)

	tests := []struct {
		name      string
		id        string
		body      string
		wantCode  int
		wantStage model.Stage
	}{
		{"answer", "run_1", `{"answers":[{"text":"2000 EUR"}]}`, http.StatusOK, model.StageDone},
		{"not awaiting", "run_2", `{"skip":true}`, http.StatusConflict, ""},
		{"unknown", "run_9", `{"skip":true}`, http.StatusNotFound, ""},
		{"no answers", "run_3", `{}`, http.StatusBadRequest, ""},
		{"failed synthesis returns the session", "run_3", `{"skip":true}`, http.StatusOK, model.StageFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts.URL+"/sessions/"+tt.id+"/answers", tt.body)
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, resp.StatusCode)
			}
			if tt.wantStage == "" {
				return
			}
			var sess model.Session
			decode(t, resp, &sess)
			if sess.Stage != tt.wantStage {
				t.Errorf("expected %s, got %s", tt.wantStage, sess.Stage)
			}
		})
	}
}

func TestCancelSession_InFlight(t *testing.T) {
	engine := newFakeEngine()
	started := make(chan struct{})
	engine.run = func(ctx context.Context, sess *model.Session) (*model.Session, error) {
		close(started)
		<-ctx.Done()
		sess.Stage = model.StageFailed
		sess.Error = &model.StageError{Stage: model.StageDiscovering, Kind: "canceled", Message: ctx.Err().Error()}
		engine.put(sess)
		return sess, &pipeline.FailedError{SessionID: sess.ID, Stage: model.StageDiscovering, Kind: "canceled", Err: ctx.Err()}
	}
	_, ts := newTestServer(t, engine)

	var created model.Session
	decode(t, post(t, ts.URL+"/sessions", `{"question":"Should we adopt technology X?"}`), &created)
	<-started

	resp := post(t, ts.URL+"/sessions/"+created.ID+"/cancel", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var sess model.Session
	decode(t, resp, &sess)
	if sess.Stage != model.StageFailed || sess.Error.Kind != "canceled" {
		t.Errorf("run not canceled: %s %+v", sess.Stage, sess.Error)
	}
	if len(engine.canceled) != 0 {
		t.Error("canceled through the engine although the run recorded the failure")
	}
}

func TestCancelSession_Paused(t *testing.T) {
	engine := newFakeEngine()
	engine.nextID = 2
	engine.put(&model.Session{ID: "run_1", Question: "Should we adopt X?", Stage: model.StageAwaitingClarification})
	engine.put(&model.Session{ID: "run_2", Question: "Should we adopt Y?", Stage: model.StageDone})
	_, ts := newTestServer(t, engine)

	resp := post(t, ts.URL+"/sessions/run_1/cancel", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(engine.canceled) != 1 || engine.canceled[0] != "run_1" {
		t.Errorf("expected the engine to cancel run_1, got %v", engine.canceled)
	}

	if resp := post(t, ts.URL+"/sessions/run_2/cancel", ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for a terminal session, got %d", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/sessions/run_9/cancel", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestShutdown_CancelsRuns(t *testing.T) {
	engine := newFakeEngine()
	started := make(chan struct{})
	engine.run = func(ctx context.Context, sess *model.Session) (*model.Session, error) {
		close(started)
		<-ctx.Done()
		return sess, ctx.Err()
	}
	server, ts := newTestServer(t, engine)

	post(t, ts.URL+"/sessions", `{"question":"Should we adopt technology X?"}`)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	waitRan(t, engine)
}

func TestShutdown_RefusesNewRuns(t *testing.T) {
	engine := newFakeEngine()
	engine.put(&model.Session{ID: "run_paused", Question: "Should we adopt technology X?", Stage: model.StageAwaitingClarification})
	server, ts := newTestServer(t, engine)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	resp := post(t, ts.URL+"/sessions", `{"question":"Should we adopt technology X?"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("create after shutdown: status %d, want 503", resp.StatusCode)
	}
	engine.mu.Lock()
	created := engine.nextID
	engine.mu.Unlock()
	if created != 0 {
		t.Errorf("no session should be created after shutdown, got %d", created)
	}

	resp = post(t, ts.URL+"/sessions/run_paused/answers", `{"skip":true}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("answer after shutdown: status %d, want 503", resp.StatusCode)
	}
}

func TestRecoverer(t *testing.T) {
	server := NewServer(panicEngine{newFakeEngine()}, nil, nil, 0)
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp := get(t, ts.URL+"/sessions")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500 after a panic, got %d", resp.StatusCode)
	}
}

type panicEngine struct {
	*fakeEngine
}

func (panicEngine) List(ctx context.Context, limit int) ([]store.Summary, error) {
	panic("store exploded")
}
