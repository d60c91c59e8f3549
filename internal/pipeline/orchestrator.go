package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/decisio/internal/logging"
	"github.com/ppiankov/decisio/internal/model"
	"github.com/ppiankov/decisio/internal/plan"
	"github.com/ppiankov/decisio/internal/store"
)

// orchestrator owns one session for the duration of one run
type orchestrator struct {
	engine *Engine
	sess   *model.Session
	log    *logging.Logger
}

// research runs a CREATED session up to the clarification pause or DONE
func (o *orchestrator) research(ctx context.Context) error {
	steps := []struct {
		next model.Stage
		kind string
		run  func(context.Context) error
	}{
		{model.StageDecomposed, kindDecomposition, o.decompose},
		{model.StageDiscovering, kindInternal, nil},
		{model.StageExtracting, kindInternal, o.discover},
		{model.StageClaimsExtracted, kindInternal, o.extract},
		{model.StageRanked, kindInternal, o.rank},
		{model.StageGapAnalyzed, kindInternal, o.analyze},
	}
	for _, s := range steps {
		if err := o.step(ctx, s.next, s.kind, s.run); err != nil {
			return err
		}
	}

	if o.engine.deps.Clarifier.NeedsClarification(o.sess.Gaps) {
		return o.step(ctx, model.StageAwaitingClarification, kindReasoner, o.clarify)
	}
	return o.conclude(ctx)
}

// conclude moves a session to CLARIFIED and synthesizes the recommendation
func (o *orchestrator) conclude(ctx context.Context) error {
	if err := o.step(ctx, model.StageClarified, kindInternal, nil); err != nil {
		return err
	}
	return o.step(ctx, model.StageDone, kindReasoner, o.synthesize)
}

// step runs fn and then moves the session to next. A failing fn fails the
// session; a rejected write is returned as is and leaves the store alone.
func (o *orchestrator) step(ctx context.Context, next model.Stage, kind string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return o.fail(ctx, next, kindCanceled, err)
	}
	if !o.sess.Stage.CanTransition(next) {
		return o.fail(ctx, next, kindInternal, fmt.Errorf("illegal transition %s -> %s", o.sess.Stage, next))
	}

	if fn != nil {
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				kind = kindCanceled
			}
			return o.fail(ctx, next, kind, err)
		}
	}

	if err := o.advance(ctx, next); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return err
		}
		return o.fail(ctx, next, kindStore, err)
	}
	return nil
}

// advance records the transition and persists the session
func (o *orchestrator) advance(ctx context.Context, to model.Stage) error {
	from := o.sess.Stage
	now := timeNow().UTC()
	o.sess.History = append(o.sess.History, model.Transition{From: from, To: to, At: now})
	o.sess.Stage = to
	o.sess.LastCompletedStage = to
	o.sess.UpdatedAt = now

	if err := o.save(ctx); err != nil {
		return err
	}
	o.log.Printf("session %s: %s -> %s", o.sess.ID, from, to)
	o.engine.notify(o.sess)
	return nil
}

// fail moves the session to FAILED with the error of the attempted stage
// and returns a *FailedError. Sources still pending are failed with it.
func (o *orchestrator) fail(ctx context.Context, attempting model.Stage, kind string, cause error) error {
	ferr := &FailedError{SessionID: o.sess.ID, Stage: attempting, Kind: kind, Err: cause}
	if err := o.markFailed(ctx, attempting, kind, cause); err != nil {
		ferr.Err = errors.Join(cause, err)
	}
	return ferr
}

func (o *orchestrator) markFailed(ctx context.Context, attempting model.Stage, kind string, cause error) error {
	if o.sess.Stage.IsTerminal() {
		return fmt.Errorf("session %s is already %s", o.sess.ID, o.sess.Stage)
	}

	for i := range o.sess.Sources {
		src := &o.sess.Sources[i]
		if src.Status == model.ExtractionPending {
			markSourceFailed(src, cause)
		}
	}

	now := timeNow().UTC()
	o.sess.History = append(o.sess.History, model.Transition{From: o.sess.Stage, To: model.StageFailed, At: now})
	o.sess.Stage = model.StageFailed
	o.sess.UpdatedAt = now
	o.sess.Error = &model.StageError{Stage: attempting, Kind: kind, Message: cause.Error()}

	o.log.Warnf("session %s failed during %s (%s): %v", o.sess.ID, attempting, kind, cause)
	if err := o.save(ctx); err != nil {
		return err
	}
	o.engine.notify(o.sess)
	return nil
}

// save persists the session. Writes are not aborted by cancellation, so a
// canceled run still records how far it got.
func (o *orchestrator) save(ctx context.Context) error {
	if err := o.engine.deps.Store.Save(context.WithoutCancel(ctx), o.sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (o *orchestrator) decompose(ctx context.Context) error {
	texts, err := o.engine.deps.Planner.Decompose(ctx, o.sess.Question)
	if err != nil {
		return err
	}
	o.sess.SubQuestions = plan.SubQuestions(o.sess.ID, texts)
	o.log.Debugf("session %s: %d sub-questions", o.sess.ID, len(texts))
	return nil
}

// rank scores a frozen snapshot and publishes the result onto the sources
func (o *orchestrator) rank(ctx context.Context) error {
	snapshot := o.sess.Clone()
	result := o.engine.deps.Ranker.Rank(snapshot.Sources, snapshot.Claims)

	for _, scored := range result.Ranked {
		src, ok := o.sess.Source(scored.SourceID)
		if !ok {
			return fmt.Errorf("ranker returned unknown source %s", scored.SourceID)
		}
		if src.RankScore != nil {
			return fmt.Errorf("source %s is already ranked", src.ID)
		}
		score := scored.Score
		cred := scored.Credibility
		src.RankScore = &score
		src.Rank = scored.Rank
		src.RankSignals = scored.Signals
		src.Credibility = &cred
	}

	rankedAt := result.RankedAt.UTC()
	o.sess.Unranked = result.Unranked
	o.sess.RankedAt = &rankedAt
	o.log.Debugf("session %s: ranked %d sources, %d unranked", o.sess.ID, len(result.Ranked), len(result.Unranked))
	return nil
}

func (o *orchestrator) analyze(ctx context.Context) error {
	o.sess.Gaps = o.engine.deps.Gaps.Analyze(o.sess.Clone())
	o.log.Debugf("session %s: %d gaps", o.sess.ID, len(o.sess.Gaps))
	return nil
}

func (o *orchestrator) clarify(ctx context.Context) error {
	clarifications, err := o.engine.deps.Clarifier.Clarify(ctx, o.sess.Question, o.sess.Gaps)
	if err != nil {
		return err
	}
	o.sess.Clarifications = clarifications
	return nil
}

func (o *orchestrator) synthesize(ctx context.Context) error {
	rec, err := o.engine.deps.Synthesizer.Synthesize(ctx, o.sess.Clone())
	if err != nil {
		return err
	}
	o.sess.Recommendation = rec
	return nil
}

func markSourceFailed(src *model.Source, err error) {
	src.Status = model.ExtractionFailed
	src.Error = err.Error()
	src.Text = nil
	src.UsedSnippet = false
}
