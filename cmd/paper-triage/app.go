// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/pdiddy/paper-triage/internal/acquire"
	"github.com/pdiddy/paper-triage/internal/archive"
	"github.com/pdiddy/paper-triage/internal/embedding"
	"github.com/pdiddy/paper-triage/internal/fetch"
	"github.com/pdiddy/paper-triage/internal/llm"
	"github.com/pdiddy/paper-triage/internal/notify"
	"github.com/pdiddy/paper-triage/internal/pipeline"
	"github.com/pdiddy/paper-triage/internal/report"
	"github.com/pdiddy/paper-triage/internal/scorer"
	"github.com/pdiddy/paper-triage/internal/similarity"
	"github.com/pdiddy/paper-triage/pkg/types"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg   types.Config
	store *archive.Store
	files *report.Files
	sim   *similarity.Engine
	orch  *pipeline.Orchestrator
}

// openStore opens the archive for commands that only read or edit it.
func openStore(cfg types.Config) (*archive.Store, error) {
	store, err := archive.NewStore(cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return store, nil
}

// newSimilarity builds the similarity engine. An embedding provider that
// cannot be built leaves the engine working on stored embeddings only.
func newSimilarity(cfg types.Config, store *archive.Store, log io.Writer) *similarity.Engine {
	embedder, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		fmt.Fprintf(log, "warning: embeddings disabled: %v\n", err)
		embedder = nil
	}
	return similarity.NewEngine(store, embedder,
		similarity.WithMinSimilarity(cfg.Pipeline.RelatedMinSimilarity),
		similarity.WithLog(log),
	)
}

// newApp wires the full pipeline. The caller closes the app.
func newApp(cfg types.Config, log io.Writer) (*app, error) {
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	agg, err := scorer.NewAggregator(cfg.Pipeline.Aggregate)
	if err != nil {
		return nil, err
	}
	fetcher, err := fetch.New(cfg.Fetch, log)
	if err != nil {
		return nil, err
	}
	opts, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:   cfg,
		store: store,
		files: report.NewFiles(cfg.Archive.ReportsDir),
		sim:   newSimilarity(cfg, store, log),
	}

	deps := pipeline.Deps{
		Store:   store,
		Fetcher: fetcher,
		NewScorer: func(s types.Settings) scorer.Scorer {
			return scorer.WithRetry(scorer.NewLLMScorer(client, agg, s.Fields), cfg.LLM.MaxRetries)
		},
		NewGenerator: func(language string) report.Generator {
			return report.NewLLMGenerator(client, language)
		},
		Similarity: a.sim,
		Files:      a.files,
		Log:        log,
	}
	if cfg.Acquire.Enabled {
		deps.FullText = acquire.New(cfg.Acquire, cfg.Fetch.OpenAlexEmail)
	}
	hook, err := notify.NewWebhook(cfg.Notify)
	switch {
	case err == nil:
		deps.Notifier = hook
	case !errors.Is(err, notify.ErrNoWebhook):
		store.Close()
		return nil, err
	}

	a.orch = pipeline.New(deps, opts)
	return a, nil
}

func (a *app) Close() error {
	a.orch.Wait()
	return a.store.Close()
}
