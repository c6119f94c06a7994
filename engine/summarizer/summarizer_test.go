package summarizer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/briefly-ai/briefly/engine/domain"
)

func chatServer(t *testing.T, reply func(system, user string) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.Messages) != 2 {
			t.Errorf("got %d messages, want 2", len(req.Messages))
		}
		resp := chatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message chatMessage `json:"message"`
		}{Message: chatMessage{Role: "assistant", Content: reply(req.Messages[0].Content, req.Messages[1].Content)}})
		json.NewEncoder(w).Encode(resp)
	}))
}

var testDoc = &domain.Document{
	Title: "Test Article",
	Body:  strings.Repeat("Something happened and it matters. ", 20),
}

func TestSummarizeHappyPath(t *testing.T) {
	srv := chatServer(t, func(system, user string) string {
		if strings.Contains(system, "JSON array") {
			return `["first point", "second point", "third point"]`
		}
		if !strings.Contains(user, "Title: Test Article") {
			t.Errorf("user prompt missing title: %q", user)
		}
		return "A concise summary."
	})
	defer srv.Close()

	s := New(srv.Client(), Opts{Endpoint: srv.URL, Model: "test-model"}, nil)
	out, err := s.Summarize(context.Background(), testDoc, domain.SummaryBrief)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out.Text != "A concise summary." {
		t.Errorf("text = %q", out.Text)
	}
	if want := []string{"first point", "second point", "third point"}; !reflect.DeepEqual(out.KeyPoints, want) {
		t.Errorf("key points = %v, want %v", out.KeyPoints, want)
	}
	if out.Truncated {
		t.Error("short body must not be marked truncated")
	}
}

func TestSummarizeTruncatesLongInput(t *testing.T) {
	var gotUser string
	srv := chatServer(t, func(system, user string) string {
		if !strings.Contains(system, "JSON array") {
			gotUser = user
		}
		return "ok summary"
	})
	defer srv.Close()

	s := New(srv.Client(), Opts{Endpoint: srv.URL, MaxInputChars: 500}, nil)
	long := &domain.Document{Title: "T", Body: strings.Repeat("x", 2000)}
	out, err := s.Summarize(context.Background(), long, domain.SummaryComprehensive)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !out.Truncated {
		t.Error("expected truncated flag")
	}
	if strings.Count(gotUser, "x") != 500 {
		t.Errorf("prompt carries %d body chars, want 500", strings.Count(gotUser, "x"))
	}
}

func TestSummarizeRejectsUnknownType(t *testing.T) {
	s := New(nil, Opts{Endpoint: "http://unused"}, nil)
	_, err := s.Summarize(context.Background(), testDoc, "tweet")
	if domain.KindOf(err) != domain.KindInvalidInput {
		t.Fatalf("kind = %v, want invalid_input", domain.KindOf(err))
	}
}

func TestSummarizeServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := New(srv.Client(), Opts{Endpoint: srv.URL}, nil)
	_, err := s.Summarize(context.Background(), testDoc, domain.SummaryBrief)
	if got := domain.KindOf(err); got != domain.KindGenerationUnavailable {
		t.Fatalf("kind = %v, want generation_unavailable", got)
	}
	if domain.RetryableGeneration(domain.KindOf(err)) {
		t.Error("unavailable backend must not be retried by the pipeline")
	}
}

func TestSummarizeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server watches the connection and cancels
		// r.Context() when the client gives up; otherwise Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	s := New(srv.Client(), Opts{Endpoint: srv.URL, Timeout: 50 * time.Millisecond}, nil)
	_, err := s.Summarize(context.Background(), testDoc, domain.SummaryBrief)
	if got := domain.KindOf(err); got != domain.KindGenerationTimeout {
		t.Fatalf("kind = %v, want generation_timeout", got)
	}
	if !domain.RetryableGeneration(domain.KindOf(err)) {
		t.Error("generation timeout should be retryable")
	}
}

func TestSummarizeEmptyChoicesIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	s := New(srv.Client(), Opts{Endpoint: srv.URL}, nil)
	_, err := s.Summarize(context.Background(), testDoc, domain.SummaryBrief)
	if got := domain.KindOf(err); got != domain.KindGenerationMalformed {
		t.Fatalf("kind = %v, want generation_malformed", got)
	}
}

func TestParseKeyPoints(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"json array", `["a", "b", "c"]`, []string{"a", "b", "c"}},
		{"fenced json", "```json\n[\"a\", \"b\"]\n```", []string{"a", "b"}},
		{"bulleted lines", "- first\n- second\n* third", []string{"first", "second", "third"}},
		{"numbered lines", "1. one\n2. two", []string{"one", "two"}},
		{"caps at seven", `["1","2","3","4","5","6","7","8","9"]`, []string{"1", "2", "3", "4", "5", "6", "7"}},
		{"blank lines dropped", "alpha\n\n   \nbeta", []string{"alpha", "beta"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseKeyPoints(tc.raw); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("parseKeyPoints(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}
