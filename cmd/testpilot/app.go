package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/entrhq/testpilot/pkg/config"
	"github.com/entrhq/testpilot/pkg/fixloop"
	"github.com/entrhq/testpilot/pkg/generate"
	"github.com/entrhq/testpilot/pkg/llm/openai"
	"github.com/entrhq/testpilot/pkg/llm/tokenizer"
	"github.com/entrhq/testpilot/pkg/logging"
	"github.com/entrhq/testpilot/pkg/metrics"
	"github.com/entrhq/testpilot/pkg/orchestrator"
	"github.com/entrhq/testpilot/pkg/resolver"
	"github.com/entrhq/testpilot/pkg/retrieval"
	"github.com/entrhq/testpilot/pkg/security/targets"
	"github.com/entrhq/testpilot/pkg/session"
	"github.com/entrhq/testpilot/pkg/testexec"
)

var logger = logging.MustLogger("testpilot")

// app is the wired object graph shared by chat, run and serve.
type app struct {
	orch     *orchestrator.Orchestrator
	registry *prometheus.Registry
	closers  []func() error
}

// newApp builds every collaborator from cfg. Retrieval is optional: when
// Weaviate cannot be reached the app runs without page context.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	provider, err := openai.NewProvider(cfg.LLM.APIKey,
		openai.WithModel(cfg.LLM.Model),
		openai.WithBaseURL(cfg.LLM.BaseURL),
		openai.WithTimeout(cfg.LLM.Timeout),
		openai.WithRateLimit(cfg.LLM.RequestsPerMinute),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	tok, err := tokenizer.New(cfg.LLM.Model)
	if err != nil {
		logger.Warnf("token counting falls back to estimates: %v", err)
	}

	guard, err := targets.NewGuard(cfg.Targets.AllowedHosts, cfg.Targets.DeniedHosts)
	if err != nil {
		return nil, fmt.Errorf("failed to create target guard: %w", err)
	}

	a := &app{registry: prometheus.NewRegistry()}
	m := metrics.New(a.registry)

	gen := generate.New(provider,
		generate.WithTemperature(cfg.LLM.Temperature),
		generate.WithFixTemperature(cfg.LLM.FixTemperature),
		generate.WithMaxTokens(cfg.LLM.MaxTokens),
		generate.WithTokenizer(tok),
		generate.WithContextBudget(cfg.LLM.ContextTokenBudget),
	)

	runner := testexec.NewPytestRunner(
		testexec.WithPython(cfg.Executor.PythonBin),
		testexec.WithTimeout(cfg.Executor.Timeout),
	)
	engine := testexec.NewEngine(runner,
		testexec.WithTempDir(cfg.Executor.TempDir),
		testexec.WithMetrics(m),
	)

	loopOpts := []fixloop.Option{
		fixloop.WithMaxRetries(cfg.FixLoop.MaxRetries),
		fixloop.WithMetrics(m),
	}

	var retriever retrieval.Retriever
	if cfg.Retrieval.Enabled {
		svc, closeFn, err := newRetrieval(ctx, cfg)
		if err != nil {
			logger.Warnf("running without page context: %v", err)
		} else {
			retriever = svc
			loopOpts = append(loopOpts, fixloop.WithContextSource(svc))
			a.closers = append(a.closers, closeFn)
		}
	}

	res := resolver.New(provider,
		resolver.WithTokenizer(tok),
		resolver.WithTimeout(cfg.LLM.Timeout),
		resolver.WithTemperature(cfg.LLM.Temperature),
		resolver.WithContextBudget(cfg.LLM.ContextTokenBudget),
	)

	a.orch, err = orchestrator.New(orchestrator.Deps{
		Store:       session.NewStore(),
		Resolver:    res,
		Retriever:   retriever,
		Cases:       gen,
		Code:        gen,
		Analyzer:    gen,
		Loop:        fixloop.New(engine, gen, loopOpts...),
		Guard:       guard,
		Metrics:     m,
		MaxDistance: cfg.Retrieval.MaxDistance,
		MaxResults:  cfg.Retrieval.MaxResults,
	})
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	return a, nil
}

func newRetrieval(ctx context.Context, cfg *config.Config) (*retrieval.Service, func() error, error) {
	store, err := retrieval.NewWeaviateStore(retrieval.WeaviateConfig{
		URL:       cfg.Retrieval.WeaviateURL,
		APIKey:    cfg.Retrieval.APIKey,
		ClassName: cfg.Retrieval.ClassName,
		Headers:   map[string]string{"X-OpenAI-Api-Key": cfg.LLM.APIKey},
	})
	if err != nil {
		return nil, nil, err
	}

	schemaCtx, cancel := context.WithTimeout(ctx, cfg.Retrieval.Timeout)
	defer cancel()
	if err := store.EnsureSchema(schemaCtx); err != nil {
		return nil, nil, err
	}

	browser := retrieval.NewBrowser(
		retrieval.WithHeadless(cfg.Browser.Headless),
		retrieval.WithInstall(cfg.Browser.Install),
		retrieval.WithNavigationTimeout(cfg.Browser.Timeout),
	)
	svc := retrieval.NewService(store, browser,
		retrieval.WithTimeout(cfg.Retrieval.Timeout),
		retrieval.WithChunkSize(cfg.Retrieval.ChunkSize),
	)
	return svc, browser.Close, nil
}

// Close releases the browser and anything else the app started.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
