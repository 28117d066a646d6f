package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TopicNewsletter/internal/domain"
	"TopicNewsletter/internal/search"
)

const (
	arxivBaseURL   = "https://arxiv.org"
	arxivUserAgent = "TopicNewsletter/1.0"
)

// arXiv only accepts these page sizes.
var arxivPageSizes = []int{25, 50, 100, 200}

var submittedExpr = regexp.MustCompile(`(\d{1,2}) ([A-Za-z]+),? (\d{4})`)

// ArxivProvider scrapes the arXiv full-text search results page.
type ArxivProvider struct {
	client    *http.Client
	baseURL   string
	userAgent string
	now       func() time.Time
}

var _ search.Provider = (*ArxivProvider)(nil)

// NewArxivProvider wires an HTTP client; baseURL defaults to arxiv.org.
func NewArxivProvider(client *http.Client, baseURL, userAgent string) *ArxivProvider {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = arxivBaseURL
	}
	if userAgent == "" {
		userAgent = arxivUserAgent
	}
	return &ArxivProvider{
		client:    client,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: userAgent,
		now:       time.Now,
	}
}

// Name identifies the provider inside the registry.
func (a *ArxivProvider) Name() string {
	return "arxiv"
}

// Search returns the newest papers matching query submitted within recencyDays.
func (a *ArxivProvider) Search(ctx context.Context, query string, maxResults, recencyDays int) ([]domain.RawArticle, error) {
	pageURL, err := buildSearchURL(a.baseURL, query, maxResults)
	if err != nil {
		return nil, err
	}

	doc, err := a.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("arxiv search %q: %w", query, err)
	}

	var cutoff time.Time
	if recencyDays > 0 {
		cutoff = a.now().UTC().AddDate(0, 0, -recencyDays).Truncate(24 * time.Hour)
	}

	results := make([]domain.RawArticle, 0)
	seen := map[string]struct{}{}
	doc.Find("li.arxiv-result").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		article, ok := parseResult(li, a.baseURL)
		if !ok {
			return true
		}
		if !cutoff.IsZero() && !article.PublishedAt.IsZero() && article.PublishedAt.Before(cutoff) {
			// Results are ordered newest first.
			return false
		}
		if _, dup := seen[article.URL]; dup {
			return true
		}
		seen[article.URL] = struct{}{}
		results = append(results, article)
		return maxResults <= 0 || len(results) < maxResults
	})

	return results, nil
}

func (a *ArxivProvider) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func parseResult(li *goquery.Selection, baseURL string) (domain.RawArticle, bool) {
	link := li.Find("p.list-title a[href*=\"/abs/\"]").First()
	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return domain.RawArticle{}, false
	}
	href = strings.TrimSpace(href)
	if !strings.HasPrefix(href, "http") {
		href = baseURL + href
	}

	title := collapseSpace(li.Find("p.title").First().Text())
	if title == "" {
		return domain.RawArticle{}, false
	}

	abstract := li.Find("span.abstract-full").First()
	abstract.Find("a").Remove()
	snippet := collapseSpace(abstract.Text())
	if snippet == "" {
		snippet = collapseSpace(li.Find("span.abstract-short").First().Text())
	}
	snippet = strings.TrimSpace(strings.TrimSuffix(snippet, "△ Less"))

	var publishedAt time.Time
	if match := submittedExpr.FindStringSubmatch(li.Find("p.is-size-7").First().Text()); match != nil {
		if parsed, err := time.Parse("2 January 2006", match[1]+" "+match[2]+" "+match[3]); err == nil {
			publishedAt = parsed
		}
	}

	return domain.RawArticle{
		Title:       title,
		URL:         href,
		Source:      "arXiv",
		Snippet:     snippet,
		PublishedAt: publishedAt,
	}, true
}

func buildSearchURL(base, query string, maxResults int) (string, error) {
	parsed, err := url.Parse(base + "/search/")
	if err != nil {
		return "", fmt.Errorf("invalid arxiv url %s: %w", base, err)
	}

	size := arxivPageSizes[len(arxivPageSizes)-1]
	for _, s := range arxivPageSizes {
		if s >= maxResults {
			size = s
			break
		}
	}

	q := parsed.Query()
	q.Set("query", query)
	q.Set("searchtype", "all")
	q.Set("order", "-announced_date_first")
	q.Set("size", strconv.Itoa(size))
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
