package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateURL_Normalizes(t *testing.T) {
	got, err := ValidateURL("HTTPS://Example.COM/Article#section-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://example.com/Article" {
		t.Errorf("normalized = %q", got)
	}
}

func TestValidateURL_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"relative", "/just/a/path"},
		{"ftp", "ftp://example.com/file"},
		{"no host", "http://"},
		{"too long", "https://example.com/" + strings.Repeat("x", maxURLLength)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateURL(tc.raw)
			if err == nil {
				t.Fatalf("expected error for %q", tc.raw)
			}
			if KindOf(err) != KindInvalidInput {
				t.Errorf("kind = %s, want %s", KindOf(err), KindInvalidInput)
			}
		})
	}
}

func TestValidateSummaryType(t *testing.T) {
	st, err := ValidateSummaryType("")
	if err != nil || st != SummaryComprehensive {
		t.Fatalf("empty type: got %q, %v", st, err)
	}
	st, err = ValidateSummaryType(" Brief ")
	if err != nil || st != SummaryBrief {
		t.Fatalf("brief: got %q, %v", st, err)
	}
	if _, err := ValidateSummaryType("terse"); KindOf(err) != KindInvalidInput {
		t.Fatalf("unknown type: got %v", err)
	}
}

func TestValidateQuery(t *testing.T) {
	if _, err := ValidateQuery("  \t\n"); KindOf(err) != KindInvalidInput {
		t.Fatalf("blank query: got %v", err)
	}
	q, err := ValidateQuery("  ai trends  ")
	if err != nil || q != "ai trends" {
		t.Fatalf("got %q, %v", q, err)
	}
}

func TestKindOf(t *testing.T) {
	err := Ef(KindFetchTimeout, "fetcher.Fetch", "deadline exceeded")
	wrapped := errors.Join(errors.New("outer"), err)
	if KindOf(wrapped) != KindFetchTimeout {
		t.Errorf("kind through chain = %s", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Errorf("plain error should map to internal")
	}
	if KindOf(nil) != "" {
		t.Errorf("nil error should have empty kind")
	}
}

func TestRetryPredicates(t *testing.T) {
	if !RetryableFetch(KindFetchTimeout) || !RetryableFetch(KindFetchFailed) {
		t.Error("timeouts and transport failures should be retryable")
	}
	for _, k := range []Kind{KindInvalidInput, KindFetchRejected, KindContentTooLarge, KindUnextractableContent} {
		if RetryableFetch(k) {
			t.Errorf("%s should be permanent", k)
		}
	}
	if !RetryableGeneration(KindGenerationTimeout) {
		t.Error("generation timeout gets one more attempt")
	}
	if RetryableGeneration(KindGenerationMalformed) || RetryableGeneration(KindGenerationUnavailable) {
		t.Error("malformed/unavailable generation is not retried")
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []ArticleStatus{StatusPending, StatusFetching, StatusSummarizing, StatusEmbedding} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if !StatusReady.Terminal() || !StatusFailed.Terminal() {
		t.Error("ready and failed are terminal")
	}
}
