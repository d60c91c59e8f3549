package pipeline

import (
	"fmt"

	"github.com/ppiankov/decisio/internal/cache"
	"github.com/ppiankov/decisio/internal/clarify"
	"github.com/ppiankov/decisio/internal/credibility"
	"github.com/ppiankov/decisio/internal/decide"
	"github.com/ppiankov/decisio/internal/discovery"
	"github.com/ppiankov/decisio/internal/extract"
	"github.com/ppiankov/decisio/internal/gaps"
	"github.com/ppiankov/decisio/internal/llm"
	"github.com/ppiankov/decisio/internal/logging"
	"github.com/ppiankov/decisio/internal/model"
	"github.com/ppiankov/decisio/internal/plan"
	"github.com/ppiankov/decisio/internal/rank"
	"github.com/ppiankov/decisio/internal/store"
	"github.com/ppiankov/decisio/internal/util"
	"github.com/ppiankov/decisio/internal/worker"
)

// Build wires the production collaborators described by cfg. The rate
// limiter and caches it creates are shared by every session of the engine.
func Build(cfg *model.Config, st store.SessionStore, log *logging.Logger, onTransition func(*model.Session)) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reasoner, err := llm.NewReasoner(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
	if err != nil {
		return nil, fmt.Errorf("reasoner: %w", err)
	}

	searcher, err := discovery.NewSearcher(cfg.Search, cfg.HTTP)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	disc, err := discovery.New(searcher, cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	fetcher := extract.NewFetcher(cfg.HTTP.Timeout, cfg.HTTP.UserAgent, cfg.HTTP.MaxBodyBytes,
		cfg.HTTP.InsecureTLS, cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)
	fetcher.WithLimiter(worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize))
	if cfg.HTTP.RespectRobots {
		fetcher.WithRobots(util.NewRobotsChecker(fetcher.HTTPClient(), cfg.HTTP.UserAgent))
	}
	extractor := extract.NewExtractor(fetcher, nil, cfg.Extract)

	if c := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTL); c != nil {
		disc.WithCache(c, cfg.Cache.TTL)
		extractor.WithCache(c, cfg.Cache.TTL)
	}

	classifier, err := credibility.NewClassifier(cfg.Credibility)
	if err != nil {
		return nil, fmt.Errorf("credibility: %w", err)
	}

	log.Debugf("reasoner %s, search %s, fan-out %d", reasoner.ProviderName(), searcher.Name(), cfg.Concurrency.MaxFanout)

	return NewEngine(Dependencies{
		Planner:      plan.NewPlanner(reasoner, cfg.Plan),
		Discovery:    disc,
		Extractor:    extractor,
		Claims:       extract.NewClaimExtractor(reasoner, cfg.Claims),
		Ranker:       rank.NewRanker(cfg.Ranking, classifier),
		Gaps:         gaps.NewAnalyzer(cfg.Gaps),
		Clarifier:    clarify.NewClarifier(reasoner, cfg.Gaps.ClarifyThreshold),
		Synthesizer:  decide.NewSynthesizer(reasoner),
		Store:        st,
		Logger:       log,
		OnTransition: onTransition,
	}, cfg)
}
