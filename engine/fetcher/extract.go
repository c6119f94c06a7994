package fetcher

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/briefly-ai/briefly/engine/domain"
)

// minBodyRunes is the floor below which a page is considered boilerplate-only
// and rejected as unextractable.
const minBodyRunes = 100

// contentSelectors are tried in order; the first match with usable text wins.
var contentSelectors = []string{
	"article",
	"main",
	".content",
	".post-content",
	".entry-content",
	".article-body",
}

// chromeSelectors are stripped from the document before text extraction.
var chromeSelectors = []string{
	"script", "style", "noscript", "iframe",
	"nav", "header", "footer", "aside", "form",
}

// Extract pulls the title and readable body text out of an HTML page.
// Selection prefers semantic article containers, then joined paragraphs,
// then the whole body text as a last resort.
func Extract(html []byte) (title, body string, err error) {
	const op = "fetcher.Extract"

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", "", domain.E(domain.KindUnextractableContent, op, err)
	}

	title = extractTitle(doc)

	for _, sel := range chromeSelectors {
		doc.Find(sel).Remove()
	}

	body = extractBody(doc)
	if utf8.RuneCountInString(body) < minBodyRunes {
		return "", "", domain.Ef(domain.KindUnextractableContent, op, "extracted body is %d runes, need %d", utf8.RuneCountInString(body), minBodyRunes)
	}
	return title, body, nil
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if t := strings.TrimSpace(og); t != "" {
			return t
		}
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func extractBody(doc *goquery.Document) string {
	for _, sel := range contentSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if text := collapseWhitespace(node.Text()); utf8.RuneCountInString(text) >= minBodyRunes {
			return text
		}
	}

	// No recognisable container: join paragraph text.
	var parts []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := collapseWhitespace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if joined := strings.Join(parts, "\n\n"); utf8.RuneCountInString(joined) >= minBodyRunes {
		return joined
	}

	return collapseWhitespace(doc.Find("body").Text())
}

// collapseWhitespace squeezes runs of whitespace into single spaces while
// keeping paragraph breaks.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if f := strings.Fields(line); len(f) > 0 {
			out = append(out, strings.Join(f, " "))
		}
	}
	return strings.Join(out, "\n")
}
