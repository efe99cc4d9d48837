package main

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/seenimoa/form13f/internal/config"
	"github.com/seenimoa/form13f/internal/emit"
	"github.com/seenimoa/form13f/internal/feed"
	"github.com/seenimoa/form13f/internal/index"
	"github.com/seenimoa/form13f/internal/infra"
	"github.com/seenimoa/form13f/internal/pipeline"
	"github.com/seenimoa/form13f/internal/sec"
)

// app wires the pipeline stages from a validated config.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *infra.Client
	fetcher *sec.Fetcher
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	if logger == nil {
		logger = slog.Default()
	}
	client := infra.NewClient(infra.ClientOptions{
		UserAgent: cfg.SEC.UserAgent,
		RateLimit: cfg.SEC.RateLimit,
		Timeout:   cfg.SEC.RequestTimeout,
	})
	return &app{
		cfg:    cfg,
		logger: logger,
		client: client,
		fetcher: sec.NewFetcher(client, sec.FetcherOptions{
			BaseURL:        cfg.SEC.BaseURL,
			AttemptTimeout: cfg.Index.AttemptTimeout,
			RetryDelay:     cfg.Index.RetryDelay,
			Logger:         logger,
		}),
	}
}

func (a *app) cache() *index.Cache {
	return index.NewCache(a.cfg.Index.CacheDir, a.fetcher, a.logger)
}

// selected returns the filing references chosen from the quarterly index.
func (a *app) selected(ctx context.Context) (iter.Seq[sec.Filing], error) {
	raw, err := a.cache().Get(ctx, a.cfg.Year, a.cfg.QuarterToken())
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	refs := index.Parse(raw, a.cfg.FormType)
	return index.Select(refs, index.NewAllowList(a.cfg.CIKs), a.cfg.Limit()), nil
}

func (a *app) holdings(ctx context.Context, w io.Writer) (pipeline.Stats, error) {
	refs, err := a.selected(ctx)
	if err != nil {
		return pipeline.Stats{}, err
	}
	return a.run(ctx, refs, w)
}

func (a *app) latest(ctx context.Context, w io.Writer) (pipeline.Stats, error) {
	refs, err := feed.New(a.client, a.cfg.SEC.FeedURL).Filings(ctx, a.cfg.FormType)
	if err != nil {
		return pipeline.Stats{}, fmt.Errorf("feed: %w", err)
	}
	refs = index.Select(refs, index.NewAllowList(a.cfg.CIKs), a.cfg.Limit())
	return a.run(ctx, refs, w)
}

func (a *app) run(ctx context.Context, refs iter.Seq[sec.Filing], w io.Writer) (pipeline.Stats, error) {
	out := emit.NewCSV(w, emit.RecordColumns)
	if err := out.Header(); err != nil {
		return pipeline.Stats{}, fmt.Errorf("emit: %w", err)
	}
	if err := out.Flush(); err != nil {
		return pipeline.Stats{}, fmt.Errorf("emit: %w", err)
	}

	runner := pipeline.NewRunner(a.fetcher, out, pipeline.Options{
		Concurrency: a.cfg.Concurrency,
		Logger:      a.logger,
	})
	stats, err := runner.Run(ctx, refs)
	a.logger.Info("run complete",
		"filings", stats.Filings,
		"skipped", stats.Skipped,
		"records", stats.Records,
		"malformed", stats.Malformed,
	)
	return stats, err
}

func (a *app) index(ctx context.Context, w io.Writer) error {
	refs, err := a.selected(ctx)
	if err != nil {
		return err
	}
	out := emit.NewCSV(w, emit.FilingColumns)
	if err := out.Header(); err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	for f := range refs {
		if err := out.EmitFiling(f); err != nil {
			return fmt.Errorf("emit: %w", err)
		}
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	return nil
}
