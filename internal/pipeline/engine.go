package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/decisio/internal/discovery"
	"github.com/ppiankov/decisio/internal/extract"
	"github.com/ppiankov/decisio/internal/gaps"
	"github.com/ppiankov/decisio/internal/logging"
	"github.com/ppiankov/decisio/internal/model"
	"github.com/ppiankov/decisio/internal/rank"
	"github.com/ppiankov/decisio/internal/store"
	"github.com/ppiankov/decisio/internal/worker"
)

var timeNow = time.Now

const (
	minQuestionChars = 5
	maxQuestionChars = 10000
)

// Planner splits the session question into sub-question texts
type Planner interface {
	Decompose(ctx context.Context, question string) ([]string, error)
}

// Discoverer finds candidate sources for one sub-question
type Discoverer interface {
	Discover(ctx context.Context, subQuestion string) ([]discovery.Result, error)
}

// PageExtractor fetches and cleans one page
type PageExtractor interface {
	Extract(ctx context.Context, url string) (*extract.Page, error)
}

// ClaimExtractor turns the text of one source into claims
type ClaimExtractor interface {
	Extract(ctx context.Context, question string, src *model.Source) ([]model.Claim, error)
}

// Clarifier writes questions about high-severity gaps
type Clarifier interface {
	NeedsClarification(gaps []model.Gap) bool
	Clarify(ctx context.Context, question string, gaps []model.Gap) ([]model.Clarification, error)
}

// Synthesizer drafts the recommendation of a clarified session
type Synthesizer interface {
	Synthesize(ctx context.Context, sess *model.Session) (*model.Recommendation, error)
}

// Dependencies are the collaborators of an Engine
type Dependencies struct {
	Planner     Planner
	Discovery   Discoverer
	Extractor   PageExtractor
	Claims      ClaimExtractor
	Ranker      *rank.Ranker
	Gaps        *gaps.Analyzer
	Clarifier   Clarifier
	Synthesizer Synthesizer
	Store       store.SessionStore
	Logger      *logging.Logger

	// OnTransition, if set, is called after every persisted stage change
	OnTransition func(sess *model.Session)
}

// Engine starts and resumes sessions. It holds only read-only
// configuration and collaborators; every run gets its own orchestrator,
// so one Engine serves concurrent sessions.
type Engine struct {
	deps   Dependencies
	config *model.Config
	pool   *worker.Pool
}

// NewEngine checks the collaborators and creates an engine
func NewEngine(deps Dependencies, config *model.Config) (*Engine, error) {
	var missing []string
	if deps.Planner == nil {
		missing = append(missing, "planner")
	}
	if deps.Discovery == nil {
		missing = append(missing, "discovery")
	}
	if deps.Extractor == nil {
		missing = append(missing, "extractor")
	}
	if deps.Claims == nil {
		missing = append(missing, "claim extractor")
	}
	if deps.Ranker == nil {
		missing = append(missing, "ranker")
	}
	if deps.Gaps == nil {
		missing = append(missing, "gap analyzer")
	}
	if deps.Clarifier == nil {
		missing = append(missing, "clarifier")
	}
	if deps.Synthesizer == nil {
		missing = append(missing, "synthesizer")
	}
	if deps.Store == nil {
		missing = append(missing, "store")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing collaborators: %s", strings.Join(missing, ", "))
	}
	if config == nil {
		config = model.DefaultConfig()
	}

	return &Engine{
		deps:   deps,
		config: config,
		pool:   worker.NewPool(config.Concurrency.MaxFanout),
	}, nil
}

// ValidateQuestion trims question and checks its length
func ValidateQuestion(question string) (string, error) {
	q := strings.TrimSpace(question)
	n := utf8.RuneCountInString(q)
	if n < minQuestionChars {
		return "", &InputValidationError{Field: "question", Message: fmt.Sprintf("must be at least %d characters", minQuestionChars)}
	}
	if n > maxQuestionChars {
		return "", &InputValidationError{Field: "question", Message: fmt.Sprintf("must be at most %d characters, got %d", maxQuestionChars, n)}
	}
	return q, nil
}

// Create validates question and persists a new CREATED session without
// running it
func (e *Engine) Create(ctx context.Context, question string) (*model.Session, error) {
	q, err := ValidateQuestion(question)
	if err != nil {
		return nil, err
	}

	sess := model.NewSession(q, timeNow())
	if err := e.deps.Store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	e.deps.Logger.Printf("session %s created: %q", sess.ID, q)
	e.notify(sess)
	return sess, nil
}

// Ask creates a session for question and runs it to DONE, to the
// clarification pause or to FAILED. A FAILED run returns the session
// together with a *FailedError.
func (e *Engine) Ask(ctx context.Context, question string) (*model.Session, error) {
	sess, err := e.Create(ctx, question)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, sess)
}

// Run drives a CREATED session as far as it can go
func (e *Engine) Run(ctx context.Context, sess *model.Session) (*model.Session, error) {
	if sess.Stage != model.StageCreated {
		return sess, fmt.Errorf("run: session %s is %s, not %s", sess.ID, sess.Stage, model.StageCreated)
	}
	o := e.orchestrate(sess)
	err := o.research(ctx)
	return o.sess, err
}

// Resume continues a paused session with answers, or skips clarification
// when skip is set. Answers without a clarification id are matched to the
// clarifications in order. The stored snapshot is only replaced through
// versioned writes, so a second resume of the same snapshot gets
// store.ErrConflict or ErrNotAwaiting and leaves the first result intact.
func (e *Engine) Resume(ctx context.Context, id string, answers []model.Answer, skip bool) (*model.Session, error) {
	sess, err := e.deps.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Stage != model.StageAwaitingClarification {
		return sess, fmt.Errorf("%w: %s is %s", ErrNotAwaiting, id, sess.Stage)
	}

	matched, err := matchAnswers(sess.Clarifications, answers)
	if err != nil {
		return sess, err
	}
	if len(matched) == 0 && !skip {
		return sess, &InputValidationError{Field: "answers", Message: "provide at least one answer or skip clarification"}
	}

	sess.Answers = matched
	sess.ClarificationSkipped = skip

	o := e.orchestrate(sess)
	err = o.conclude(ctx)
	return o.sess, err
}

// Cancel fails a session that is not running, such as one paused for
// clarification. In-flight runs are canceled through their context.
func (e *Engine) Cancel(ctx context.Context, id string) (*model.Session, error) {
	sess, err := e.deps.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Stage.IsTerminal() {
		return sess, fmt.Errorf("%w: %s is already %s", store.ErrConflict, id, sess.Stage)
	}

	o := e.orchestrate(sess)
	if err := o.markFailed(ctx, sess.Stage, kindCanceled, context.Canceled); err != nil {
		return o.sess, err
	}
	return o.sess, nil
}

// Get loads one session
func (e *Engine) Get(ctx context.Context, id string) (*model.Session, error) {
	return e.deps.Store.Load(ctx, id)
}

// List returns stored session summaries, newest first
func (e *Engine) List(ctx context.Context, limit int) ([]store.Summary, error) {
	return e.deps.Store.List(ctx, limit)
}

func (e *Engine) orchestrate(sess *model.Session) *orchestrator {
	return &orchestrator{engine: e, sess: sess, log: e.deps.Logger}
}

func (e *Engine) notify(sess *model.Session) {
	if e.deps.OnTransition != nil {
		e.deps.OnTransition(sess.Clone())
	}
}

// matchAnswers assigns id-less answers to clarifications in order and
// rejects references to unknown clarifications. Blank answers are dropped.
func matchAnswers(clarifications []model.Clarification, answers []model.Answer) ([]model.Answer, error) {
	known := make(map[string]bool, len(clarifications))
	for _, c := range clarifications {
		known[c.ID] = true
	}

	taken := make(map[string]bool)
	for _, a := range answers {
		if a.ClarificationID != "" {
			if !known[a.ClarificationID] {
				return nil, &InputValidationError{Field: "answers", Message: fmt.Sprintf("unknown clarification %q", a.ClarificationID)}
			}
			taken[a.ClarificationID] = true
		}
	}

	next := 0
	out := make([]model.Answer, 0, len(answers))
	for _, a := range answers {
		a.Text = strings.TrimSpace(a.Text)
		if a.Text == "" {
			continue
		}
		if a.ClarificationID == "" {
			for next < len(clarifications) && taken[clarifications[next].ID] {
				next++
			}
			if next < len(clarifications) {
				a.ClarificationID = clarifications[next].ID
				taken[a.ClarificationID] = true
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// IsInputError reports whether err was caused by caller input
func IsInputError(err error) bool {
	var inputErr *InputValidationError
	return errors.As(err, &inputErr)
}
