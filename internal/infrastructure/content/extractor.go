package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"TopicNewsletter/internal/domain"
	"TopicNewsletter/internal/ports"
)

const maxPageBytes = 2 << 20

// Extractor downloads an article page and returns its main text.
type Extractor struct {
	client    *http.Client
	userAgent string
}

var _ ports.ContentExtractor = (*Extractor)(nil)

// NewExtractor wires an HTTP client.
func NewExtractor(client *http.Client, userAgent string) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Extractor{client: client, userAgent: userAgent}
}

// Extract fetches article.URL and runs readability over the page.
func (e *Extractor) Extract(ctx context.Context, article domain.RawArticle) (string, error) {
	pageURL, err := url.Parse(article.URL)
	if err != nil || pageURL.Host == "" {
		return "", fmt.Errorf("invalid article url %q", article.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", article.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %s", article.URL, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", fmt.Errorf("fetch %s: unsupported content type %s", article.URL, ct)
	}

	parsed, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBytes), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability %s: %w", article.URL, err)
	}
	return strings.Join(strings.Fields(parsed.TextContent), " "), nil
}
