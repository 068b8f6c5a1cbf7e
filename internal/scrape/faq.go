// Package scrape extracts FAQ content from client websites.
package scrape

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/pointguardu/pgu-ai/internal/directory"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

const (
	minQuestionLen = 5
	minAnswerLen   = 10
)

// Scraper fetches a page and pulls question/answer pairs out of its
// paragraph structure. A question is a bold paragraph ending in "?";
// its answer is the next paragraph with enough text.
type Scraper struct {
	httpClient *http.Client
	logger     *logging.Logger
}

func NewScraper(logger *logging.Logger) *Scraper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scraper{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     logger,
	}
}

// FetchFAQ downloads the page at websiteURL and extracts its FAQ entries.
func (s *Scraper) FetchFAQ(ctx context.Context, websiteURL string) ([]directory.FAQEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, websiteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("scrape: bad url %q: %w", websiteURL, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape: fetch %s: %w", websiteURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape: fetch %s: status %d", websiteURL, resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("scrape: parse %s: %w", websiteURL, err)
	}

	faqs := ExtractFAQ(doc)
	s.logger.Info("faq scrape finished", "url", websiteURL, "entries", len(faqs))
	return faqs, nil
}

// ExtractFAQ walks a parsed document and pairs bold question paragraphs
// with the next substantial paragraph as the answer.
func ExtractFAQ(doc *html.Node) []directory.FAQEntry {
	paragraphs := collectParagraphs(doc)

	var faqs []directory.FAQEntry
	for i, p := range paragraphs {
		question := strings.TrimSpace(nodeText(p))
		if !isBold(p) || len(question) <= minQuestionLen || !strings.HasSuffix(question, "?") {
			continue
		}

		// The answer is the next paragraph with enough text.
		for _, next := range paragraphs[i+1:] {
			answer := strings.TrimSpace(nodeText(next))
			if len(answer) > minAnswerLen {
				faqs = append(faqs, directory.FAQEntry{Question: question, Answer: answer})
				break
			}
		}
	}
	return faqs
}

func collectParagraphs(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// isBold reports whether a paragraph contains a <strong> element or a
// span styled with bold font weight.
func isBold(p *html.Node) bool {
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "strong", "b":
				return true
			case "span":
				for _, attr := range n.Attr {
					if attr.Key == "style" && strings.Contains(strings.ReplaceAll(attr.Val, " ", ""), "font-weight:bold") {
						return true
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		if walk(c) {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
