// Package embedder produces article and query embeddings through Ollama's
// HTTP API.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/briefly-ai/briefly/engine/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Opts configures a Client.
type Opts struct {
	BaseURL string
	Model   string
	// Dims is the expected vector width; any other width fails with
	// dimension_mismatch so a silently swapped model cannot corrupt search.
	Dims int
	// Timeout bounds one embedding call.
	Timeout time.Duration
	// MaxInputChars truncates input before embedding so the same prefix is
	// always embedded for a given text.
	MaxInputChars int
}

// DefaultOpts targets a local Ollama with nomic-embed-text.
var DefaultOpts = Opts{
	BaseURL:       "http://localhost:11434",
	Model:         "nomic-embed-text",
	Dims:          768,
	Timeout:       30 * time.Second,
	MaxInputChars: 20_000,
}

// Client embeds text using Ollama.
type Client struct {
	opts   Opts
	client *http.Client
}

// New creates an embedding client. A nil http client gets a default with an
// OTel-instrumented transport.
func New(client *http.Client, opts Opts) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOpts.BaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultOpts.Model
	}
	if opts.Dims <= 0 {
		opts.Dims = DefaultOpts.Dims
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOpts.Timeout
	}
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultOpts.MaxInputChars
	}
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Client{opts: opts, client: client}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.opts.Model }

// Dims returns the expected vector width.
func (c *Client) Dims() int { return c.opts.Dims }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the vector for text. Input longer than MaxInputChars is cut
// to that prefix so repeated embeddings of the same text stay identical.
func (c *Client) Embed(ctx context.Context, text string) (domain.Vector, error) {
	const op = "embedder.Embed"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.Ef(domain.KindInvalidInput, op, "text is empty")
	}
	if runes := []rune(text); len(runes) > c.opts.MaxInputChars {
		text = string(runes[:c.opts.MaxInputChars])
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	body, _ := json.Marshal(embedRequest{Model: c.opts.Model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.Ef(domain.KindGenerationTimeout, op, "embedding deadline exceeded after %s", c.opts.Timeout)
		}
		if errors.Is(err, context.Canceled) {
			return nil, domain.E(domain.KindCanceled, op, err)
		}
		return nil, domain.E(domain.KindGenerationUnavailable, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, domain.E(domain.KindGenerationUnavailable, op,
			fmt.Errorf("ollama embed %s: %s", resp.Status, strings.TrimSpace(string(detail))))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.E(domain.KindGenerationMalformed, op, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Embedding) != c.opts.Dims {
		return nil, domain.Ef(domain.KindDimensionMismatch, op, "model %s returned %d dims, want %d", c.opts.Model, len(out.Embedding), c.opts.Dims)
	}

	vec := make(domain.Vector, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
