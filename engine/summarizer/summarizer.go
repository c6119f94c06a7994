// Package summarizer generates article summaries and key points through an
// OpenAI-compatible chat completion API.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/briefly-ai/briefly/engine/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Opts configures a Summarizer.
type Opts struct {
	Endpoint string
	APIKey   string
	Model    string
	// Timeout bounds one generation call.
	Timeout time.Duration
	// MaxInputChars truncates the article body before prompting. The cut is
	// recorded on the output so readers know the summary covers a prefix.
	MaxInputChars int
}

// DefaultOpts targets the public OpenAI endpoint.
var DefaultOpts = Opts{
	Endpoint:      "https://api.openai.com/v1/chat/completions",
	Model:         "gpt-4o-mini",
	Timeout:       60 * time.Second,
	MaxInputChars: 100_000,
}

// Output is one generated summary before it is attached to an article.
type Output struct {
	Type      domain.SummaryType
	Text      string
	KeyPoints []string
	Truncated bool
}

// Summarizer produces summaries at a requested granularity.
type Summarizer struct {
	opts   Opts
	client *http.Client
	logger *slog.Logger
}

// New creates a Summarizer. A nil client gets a default with an
// OTel-instrumented transport.
func New(client *http.Client, opts Opts, logger *slog.Logger) *Summarizer {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultOpts.Endpoint
	}
	if opts.Model == "" {
		opts.Model = DefaultOpts.Model
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
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{opts: opts, client: client, logger: logger}
}

// Model returns the configured model identifier.
func (s *Summarizer) Model() string { return s.opts.Model }

// Summarize generates the summary text and key points for doc at the given
// granularity. Both generations share one deadline.
func (s *Summarizer) Summarize(ctx context.Context, doc *domain.Document, st domain.SummaryType) (*Output, error) {
	const op = "summarizer.Summarize"

	if !domain.ValidSummaryTypes[st] {
		return nil, domain.Ef(domain.KindInvalidInput, op, "unknown summary type %q", st)
	}
	body, truncated := truncate(doc.Body, s.opts.MaxInputChars)

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	text, err := s.complete(ctx, summaryPrompt(st), userPrompt(doc.Title, body))
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.Ef(domain.KindGenerationMalformed, op, "model returned an empty summary")
	}

	raw, err := s.complete(ctx, keyPointsSystemPrompt, keyPointsUserPrompt(doc.Title, body))
	if err != nil {
		return nil, err
	}
	points := parseKeyPoints(raw)

	s.logger.Debug("summarized", "type", st, "summary_len", len(text), "key_points", len(points), "truncated", truncated)
	return &Output{Type: st, Text: text, KeyPoints: points, Truncated: truncated}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// complete issues one chat completion and returns the first choice's content.
func (s *Summarizer) complete(ctx context.Context, system, user string) (string, error) {
	const op = "summarizer.complete"

	payload, err := json.Marshal(chatRequest{
		Model: s.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", domain.E(domain.KindInternal, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", domain.E(domain.KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.opts.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", domain.Ef(domain.KindGenerationTimeout, op, "generation deadline exceeded after %s", s.opts.Timeout)
		}
		if errors.Is(err, context.Canceled) {
			return "", domain.E(domain.KindCanceled, op, err)
		}
		return "", domain.E(domain.KindGenerationUnavailable, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", domain.E(domain.KindGenerationUnavailable, op,
			fmt.Errorf("chat completion %s: %s", resp.Status, strings.TrimSpace(string(detail))))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.E(domain.KindGenerationMalformed, op, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return "", domain.Ef(domain.KindGenerationMalformed, op, "response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// truncate cuts body to at most max runes, reporting whether a cut happened.
func truncate(body string, max int) (string, bool) {
	runes := []rune(body)
	if len(runes) <= max {
		return body, false
	}
	return string(runes[:max]), true
}
