// Package fetcher retrieves raw HTML for a single URL and extracts the
// readable article content. It enforces the fetch deadline and response
// size cap itself; retry policy belongs to the ingestion pipeline.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/briefly-ai/briefly/engine/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Opts configures a Fetcher.
type Opts struct {
	// Timeout bounds one fetch including body read.
	Timeout time.Duration
	// MaxBodyBytes caps the response body; larger pages fail with
	// content_too_large instead of exhausting memory.
	MaxBodyBytes int64
	// RatePerSec throttles outbound requests across all URLs.
	RatePerSec float64
	// UserAgent is sent on every request.
	UserAgent string
}

// DefaultOpts provides sensible fetch bounds.
var DefaultOpts = Opts{
	Timeout:      20 * time.Second,
	MaxBodyBytes: 5 << 20,
	RatePerSec:   2,
	UserAgent:    "briefly/1.0",
}

// Fetcher fetches and normalizes article pages.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    Opts
	logger  *slog.Logger
	now     func() time.Time // for testing
}

// New creates a Fetcher. A nil client gets a default with OTel-instrumented
// transport.
func New(client *http.Client, opts Opts, logger *slog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOpts.Timeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultOpts.MaxBodyBytes
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = DefaultOpts.RatePerSec
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultOpts.UserAgent
	}
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), int(opts.RatePerSec)+1),
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Fetch retrieves rawURL and returns the extracted document. The URL is
// validated before any network traffic.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*domain.Document, error) {
	const op = "fetcher.Fetch"

	u, err := domain.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, domain.E(domain.KindCanceled, op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.E(domain.KindInvalidInput, op, err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.Ef(domain.KindFetchTimeout, op, "fetch %s: deadline exceeded after %s", u, f.opts.Timeout)
		}
		if errors.Is(err, context.Canceled) {
			return nil, domain.E(domain.KindCanceled, op, err)
		}
		return nil, domain.E(domain.KindFetchFailed, op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.Ef(domain.KindFetchFailed, op, "fetch %s: status %s", u, resp.Status)
	case resp.StatusCode >= 400:
		return nil, domain.Ef(domain.KindFetchRejected, op, "fetch %s: status %s", u, resp.Status)
	}

	if resp.ContentLength > f.opts.MaxBodyBytes {
		return nil, domain.Ef(domain.KindContentTooLarge, op, "fetch %s: declared %d bytes exceeds cap %d", u, resp.ContentLength, f.opts.MaxBodyBytes)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.Ef(domain.KindFetchTimeout, op, "fetch %s: body read deadline exceeded", u)
		}
		return nil, domain.E(domain.KindFetchFailed, op, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > f.opts.MaxBodyBytes {
		return nil, domain.Ef(domain.KindContentTooLarge, op, "fetch %s: body exceeds cap %d bytes", u, f.opts.MaxBodyBytes)
	}

	title, text, err := Extract(body)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("fetched", "url", u, "title", title, "body_len", len(text))
	return &domain.Document{
		URL:       u,
		Title:     title,
		Body:      text,
		FetchedAt: f.now().UTC(),
	}, nil
}
