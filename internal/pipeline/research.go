package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/decisio/internal/discovery"
	"github.com/ppiankov/decisio/internal/model"
	"github.com/ppiankov/decisio/internal/worker"
)

// discoveryJob searches for one sub-question
type discoveryJob struct {
	discoverer Discoverer
	text       string
}

type discoveryResult struct {
	results []discovery.Result
	err     error
}

func (r *discoveryResult) GetError() error { return r.err }

func (j *discoveryJob) Execute(ctx context.Context) worker.Result {
	results, err := j.discoverer.Discover(ctx, j.text)
	return &discoveryResult{results: results, err: err}
}

// extractionJob fetches one source and extracts its claims. It works on a
// copy of the source; the orchestrator merges the result.
type extractionJob struct {
	source          model.Source
	question        string
	pages           PageExtractor
	claims          ClaimExtractor
	snippetFallback bool
	useLastModified bool
}

type extractionResult struct {
	source model.Source
	claims []model.Claim
}

func (r *extractionResult) GetError() error {
	if r.source.Status == model.ExtractionFailed {
		return errors.New(r.source.Error)
	}
	return nil
}

func (j *extractionJob) Execute(ctx context.Context) worker.Result {
	src := j.source

	page, err := j.pages.Extract(ctx, src.URL)
	switch {
	case err == nil:
		text := page.Text
		src.Text = &text
		src.Adapter = page.Adapter
		if src.PublishedAt == nil && j.useLastModified && page.LastModified != nil {
			published := *page.LastModified
			src.PublishedAt = &published
		}
	case j.snippetFallback && strings.TrimSpace(src.Snippet) != "" && ctx.Err() == nil:
		text := strings.TrimSpace(src.Snippet)
		src.Text = &text
		src.UsedSnippet = true
	default:
		markSourceFailed(&src, err)
		return &extractionResult{source: src}
	}

	claims, err := j.claims.Extract(ctx, j.question, &src)
	if err != nil {
		markSourceFailed(&src, fmt.Errorf("claim extraction: %w", err))
		return &extractionResult{source: src}
	}

	src.Status = model.ExtractionOK
	src.Error = ""
	return &extractionResult{source: src, claims: claims}
}

// discover searches every sub-question concurrently and merges the hits
// in sub-question order, deduplicating by normalized url and capping the
// session at MaxTotalSources. A failed search is recorded on its
// sub-question, which then keeps an empty evidence set.
func (o *orchestrator) discover(ctx context.Context) error {
	jobs := make([]worker.Job, len(o.sess.SubQuestions))
	for i, sq := range o.sess.SubQuestions {
		jobs[i] = &discoveryJob{discoverer: o.engine.deps.Discovery, text: sq.Text}
	}
	results := o.engine.pool.Run(ctx, jobs)

	limit := o.engine.config.Search.MaxTotalSources
	known := make(map[string]string, len(o.sess.Sources))
	for _, src := range o.sess.Sources {
		known[discovery.NormalizeURL(src.URL)] = src.ID
	}

	for i, res := range results {
		sq := &o.sess.SubQuestions[i]
		if res == nil {
			sq.SearchError = fmt.Sprintf("not searched: %v", ctx.Err())
			continue
		}
		r := res.(*discoveryResult)
		if r.err != nil {
			sq.SearchError = r.err.Error()
			o.log.Warnf("session %s: search for %s failed: %v", o.sess.ID, sq.ID, r.err)
			continue
		}

		for _, hit := range r.results {
			key := discovery.NormalizeURL(hit.URL)
			id, ok := known[key]
			if !ok {
				if limit > 0 && len(o.sess.Sources) >= limit {
					continue
				}
				seq := len(o.sess.Sources) + 1
				id = fmt.Sprintf("src_%d", seq)
				o.sess.Sources = append(o.sess.Sources, model.Source{
					ID:          id,
					URL:         hit.URL,
					Title:       hit.Title,
					Snippet:     hit.Snippet,
					PublishedAt: hit.PublishedAt,
					Provider:    hit.Provider,
					Sequence:    seq,
					Status:      model.ExtractionPending,
				})
				known[key] = id
			}
			if !containsID(sq.SourceIDs, id) {
				sq.SourceIDs = append(sq.SourceIDs, id)
			}
		}
	}

	o.log.Debugf("session %s: discovered %d sources", o.sess.ID, len(o.sess.Sources))
	return ctx.Err()
}

// extract processes every pending source concurrently. Results are merged
// in discovery order. On cancellation, sources that finished keep their
// claims and the rest are failed with the cancel error.
func (o *orchestrator) extract(ctx context.Context) error {
	cfg := o.engine.config.Extract
	var indexes []int
	var jobs []worker.Job
	for i, src := range o.sess.Sources {
		if src.Status != model.ExtractionPending {
			continue
		}
		indexes = append(indexes, i)
		jobs = append(jobs, &extractionJob{
			source:          src,
			question:        o.sess.Question,
			pages:           o.engine.deps.Extractor,
			claims:          o.engine.deps.Claims,
			snippetFallback: cfg.SnippetFallback,
			useLastModified: cfg.UseLastModified,
		})
	}

	results := o.engine.pool.Run(ctx, jobs)

	canceled := ctx.Err()
	for n, res := range results {
		src := &o.sess.Sources[indexes[n]]
		if res == nil {
			markSourceFailed(src, fmt.Errorf("not extracted: %w", canceled))
			continue
		}
		r := res.(*extractionResult)
		*src = r.source
		if canceled != nil && src.Status != model.ExtractionOK {
			markSourceFailed(src, fmt.Errorf("%s: %w", src.Error, canceled))
		}
		if src.Status == model.ExtractionOK {
			o.sess.Claims = append(o.sess.Claims, r.claims...)
		} else {
			o.log.Warnf("session %s: %s failed: %s", o.sess.ID, src.ID, src.Error)
		}
	}

	ok := 0
	for _, src := range o.sess.Sources {
		if src.Status == model.ExtractionOK {
			ok++
		}
	}
	o.log.Debugf("session %s: %d/%d sources extracted, %d claims", o.sess.ID, ok, len(o.sess.Sources), len(o.sess.Claims))
	return canceled
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
