package domain

import (
	"net/url"
	"strings"
)

const maxURLLength = 2048

// ValidateURL checks that raw is a well-formed absolute HTTP(S) URL and
// returns its normalized form (lowercased scheme/host, fragment stripped).
// Normalization keeps the URL-uniqueness constraint meaningful across
// trivially different spellings of the same address.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", Ef(KindInvalidInput, "domain.ValidateURL", "url is empty")
	}
	if len(raw) > maxURLLength {
		return "", Ef(KindInvalidInput, "domain.ValidateURL", "url exceeds %d characters", maxURLLength)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", E(KindInvalidInput, "domain.ValidateURL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", Ef(KindInvalidInput, "domain.ValidateURL", "unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", Ef(KindInvalidInput, "domain.ValidateURL", "url has no host")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), nil
}

// ValidateSummaryType checks raw against the closed enumeration, defaulting
// empty input to comprehensive as the API has always done.
func ValidateSummaryType(raw string) (SummaryType, error) {
	if raw == "" {
		return SummaryComprehensive, nil
	}
	st := SummaryType(strings.ToLower(strings.TrimSpace(raw)))
	if !ValidSummaryTypes[st] {
		return "", Ef(KindInvalidInput, "domain.ValidateSummaryType", "unknown summary type %q", raw)
	}
	return st, nil
}

// ValidateQuery rejects empty or whitespace-only search queries.
func ValidateQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", Ef(KindInvalidInput, "domain.ValidateQuery", "query is empty")
	}
	return q, nil
}
