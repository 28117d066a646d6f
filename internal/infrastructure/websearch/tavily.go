package websearch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"TopicNewsletter/internal/config"
	"TopicNewsletter/internal/domain"
	"TopicNewsletter/internal/search"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// TavilyProvider queries the Tavily search API in news mode.
type TavilyProvider struct {
	endpoint string
	apiKey   string
	client   jsonClient
	now      func() time.Time
}

var _ search.Provider = (*TavilyProvider)(nil)

// NewTavilyProvider builds a provider from configuration.
func NewTavilyProvider(cfg config.TavilyConfig, client *http.Client) *TavilyProvider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tavilyEndpoint
	}
	return &TavilyProvider{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		client:   newJSONClient(client, map[string]string{"Authorization": "Bearer " + cfg.APIKey}),
		now:      time.Now,
	}
}

// Name identifies the provider inside the registry.
func (t *TavilyProvider) Name() string {
	return "tavily"
}

type tavilyResponse struct {
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		PublishedDate string  `json:"published_date"`
		Score         float64 `json:"score"`
	} `json:"results"`
}

// Search returns news results for query.
func (t *TavilyProvider) Search(ctx context.Context, query string, maxResults, recencyDays int) ([]domain.RawArticle, error) {
	payload := map[string]any{
		"api_key":      t.apiKey,
		"query":        query,
		"topic":        "news",
		"search_depth": "basic",
		"max_results":  maxResults,
	}
	if recencyDays > 0 {
		payload["days"] = recencyDays
	}

	var resp tavilyResponse
	if err := t.client.post(ctx, t.endpoint, payload, &resp); err != nil {
		return nil, fmt.Errorf("tavily search %q: %w", query, err)
	}

	now := t.now()
	out := make([]domain.RawArticle, 0, len(resp.Results))
	for _, item := range resp.Results {
		if strings.TrimSpace(item.URL) == "" {
			continue
		}
		out = append(out, domain.RawArticle{
			Title:       strings.TrimSpace(item.Title),
			URL:         strings.TrimSpace(item.URL),
			Source:      hostOf(item.URL),
			Snippet:     strings.TrimSpace(item.Content),
			PublishedAt: parseDate(item.PublishedDate, now),
		})
	}
	return out, nil
}

func hostOf(raw string) string {
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimPrefix(raw, "www.")
}
