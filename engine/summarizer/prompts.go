package summarizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/briefly-ai/briefly/engine/domain"
)

const (
	maxKeyPoints = 7

	keyPointsSystemPrompt = "You extract the most important takeaways from articles. " +
		"Respond with a JSON array of 3 to 7 short strings and nothing else."
)

// summaryPrompts maps each granularity to its system instruction.
var summaryPrompts = map[domain.SummaryType]string{
	domain.SummaryBrief: "You are an expert summarizer. Summarize the article in 2-3 " +
		"sentences capturing only the central point. Respond with the summary text only.",
	domain.SummaryComprehensive: "You are an expert summarizer. Summarize the article in " +
		"1-2 paragraphs covering the main argument and supporting points. Respond with the " +
		"summary text only.",
	domain.SummaryDetailed: "You are an expert summarizer. Write a detailed multi-paragraph " +
		"summary preserving the article's structure, arguments, and notable details. Respond " +
		"with the summary text only.",
}

func summaryPrompt(st domain.SummaryType) string {
	return summaryPrompts[st]
}

func userPrompt(title, body string) string {
	if title == "" {
		return body
	}
	return fmt.Sprintf("Title: %s\n\n%s", title, body)
}

func keyPointsUserPrompt(title, body string) string {
	return "List the key points of this article.\n\n" + userPrompt(title, body)
}

// parseKeyPoints decodes the model's key point list. It first tries a strict
// JSON array, accepting code-fenced output, then falls back to splitting
// lines and stripping bullet markers. Anything beyond maxKeyPoints is cut.
func parseKeyPoints(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var points []string
	if err := json.Unmarshal([]byte(raw), &points); err == nil {
		return cleanPoints(points)
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		line = strings.Trim(line, `"',`)
		if line != "" && line != "[" && line != "]" {
			points = append(points, line)
		}
	}
	return cleanPoints(points)
}

func cleanPoints(points []string) []string {
	out := points[:0]
	for _, p := range points {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > maxKeyPoints {
		out = out[:maxKeyPoints]
	}
	return out
}
