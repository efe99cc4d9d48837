// Package pipeline drives selected filing references through fetch,
// holdings extraction and emission.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/form13f/internal/holdings"
	"github.com/seenimoa/form13f/internal/sec"
)

// Source retrieves a filing document by its index path.
type Source interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Sink receives records. Flush is called after every filing.
type Sink interface {
	Emit(r sec.Record) error
	Flush() error
}

// Options configures a Runner.
type Options struct {
	// Concurrency bounds simultaneous filing fetches; values < 1 mean 1.
	Concurrency int
	Logger      *slog.Logger
}

// Stats summarizes a run.
type Stats struct {
	Filings   int // filings whose holdings were emitted
	Skipped   int // filings dropped after a fetch or parse failure
	Records   int
	Malformed int // individual holdings dropped
}

// Runner processes filings and writes their records to a Sink.
type Runner struct {
	src         Source
	sink        Sink
	concurrency int
	logger      *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(src Source, sink Sink, opts Options) *Runner {
	r := &Runner{
		src:         src,
		sink:        sink,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
	}
	if r.concurrency < 1 {
		r.concurrency = 1
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "pipeline")
	return r
}

// Run consumes refs completely before the first fetch starts, then
// processes each filing. Rows of one filing are emitted together; a
// filing that cannot be fetched or parsed is skipped. Only cancellation
// and sink failures abort the run.
func (r *Runner) Run(ctx context.Context, refs iter.Seq[sec.Filing]) (Stats, error) {
	filings := slices.Collect(refs)
	r.logger.Info("selected filings", "count", len(filings), "concurrency", r.concurrency)

	var (
		mu    sync.Mutex
		stats Stats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, f := range filings {
		g.Go(func() error {
			recs, malformed, err := r.process(gctx, f)

			mu.Lock()
			defer mu.Unlock()
			stats.Malformed += malformed
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				stats.Skipped++
				r.logger.Warn("skipping filing", "cik", f.CIK, "name", f.Name, "path", f.Path, "error", err)
				return nil
			}
			for _, rec := range recs {
				if err := r.sink.Emit(rec); err != nil {
					return fmt.Errorf("emit: %w", err)
				}
			}
			if err := r.sink.Flush(); err != nil {
				return fmt.Errorf("emit: %w", err)
			}
			stats.Filings++
			stats.Records += len(recs)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return stats, err
}

func (r *Runner) process(ctx context.Context, f sec.Filing) ([]sec.Record, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	raw, err := r.src.Fetch(ctx, f.Path)
	if err != nil {
		return nil, 0, err
	}

	doc, err := holdings.Load(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("parse %s: %w", f.Path, err)
	}

	if filer, ok := doc.Filer(); ok && sec.TrimCIK(filer.CIK) != sec.TrimCIK(f.CIK) {
		r.logger.Warn("filer identity differs from index; keeping index values",
			"index_cik", f.CIK, "index_name", f.Name, "doc_cik", filer.CIK, "doc_name", filer.Name, "path", f.Path)
	}

	var (
		recs      []sec.Record
		malformed int
	)
	for h, err := range doc.Holdings() {
		if err != nil {
			if !errors.Is(err, sec.ErrMalformedRecord) {
				return nil, malformed, err
			}
			malformed++
			r.logger.Warn("skipping holding", "cik", f.CIK, "path", f.Path, "error", err)
			continue
		}
		recs = append(recs, h.Record(f))
	}
	return recs, malformed, nil
}
