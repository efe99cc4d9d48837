package sec

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/seenimoa/form13f/internal/infra"
)

// MaxIndexAttempts caps the number of index transfer attempts.
const MaxIndexAttempts = 5

// Default index transfer timings.
const (
	DefaultAttemptTimeout = 60 * time.Second
	DefaultRetryDelay     = time.Second
)

// Transport retrieves raw bytes. Download must make dest appear only once
// the file is complete; it may finish writing after ctx has expired.
type Transport interface {
	Get(ctx context.Context, url string) ([]byte, error)
	Download(ctx context.Context, url, dest string) error
}

// FetcherOptions configures a Fetcher. Zero values select the defaults.
type FetcherOptions struct {
	BaseURL        string
	AttemptTimeout time.Duration
	RetryDelay     time.Duration
	Logger         *slog.Logger
}

// Fetcher resolves document paths against the archive root and retrieves them.
type Fetcher struct {
	transport      Transport
	baseURL        string
	attemptTimeout time.Duration
	retryDelay     time.Duration
	logger         *slog.Logger
}

// NewFetcher creates a Fetcher over t.
func NewFetcher(t Transport, opts FetcherOptions) *Fetcher {
	f := &Fetcher{
		transport:      t,
		baseURL:        opts.BaseURL,
		attemptTimeout: opts.AttemptTimeout,
		retryDelay:     opts.RetryDelay,
		logger:         opts.Logger,
	}
	if f.baseURL == "" {
		f.baseURL = DefaultBaseURL
	}
	if f.attemptTimeout <= 0 {
		f.attemptTimeout = DefaultAttemptTimeout
	}
	if f.retryDelay < 0 {
		f.retryDelay = 0
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.logger = f.logger.With("component", "fetcher")
	return f
}

// BaseURL returns the archive root.
func (f *Fetcher) BaseURL() string { return f.baseURL }

// Fetch retrieves one filing document in a single attempt.
// Failures are returned as *FetchFailedError.
func (f *Fetcher) Fetch(ctx context.Context, pathOrURL string) ([]byte, error) {
	u := DocumentURL(f.baseURL, pathOrURL)
	f.logger.Debug("fetching filing", "url", u)
	data, err := f.transport.Get(ctx, u)
	if err != nil {
		return nil, &FetchFailedError{URL: u, Err: err}
	}
	return data, nil
}

// FetchIndex downloads the quarterly index into dest. Each attempt runs
// under its own deadline. When an attempt fails but dest turns out to be
// complete anyway, the attempt counts as a success. After MaxIndexAttempts
// failures it returns a *SourceUnavailableError.
func (f *Fetcher) FetchIndex(ctx context.Context, url, dest string) error {
	attempts := 0
	var last error

	op := func() error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
		err := f.transport.Download(actx, url, dest)
		cancel()
		if err == nil {
			return nil
		}
		if fileComplete(dest) {
			f.logger.Info("index attempt reported failure but file is complete",
				"url", url, "attempt", attempts, "error", err)
			return nil
		}
		last = err
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var httpErr *infra.ErrHTTP
		if errors.As(err, &httpErr) && !httpErr.Temporary() {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(f.retryDelay), MaxIndexAttempts-1),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		f.logger.Info("index attempt failed, retrying",
			"url", url, "attempt", attempts, "max_attempts", MaxIndexAttempts, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if last == nil {
			last = err
		}
		return &SourceUnavailableError{URL: url, Attempts: attempts, Err: last}
	}
	return nil
}

func fileComplete(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
