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

const serperEndpoint = "https://google.serper.dev/news"

// SerperProvider queries the Serper Google News API.
type SerperProvider struct {
	endpoint string
	client   jsonClient
	now      func() time.Time
}

var _ search.Provider = (*SerperProvider)(nil)

// NewSerperProvider builds a provider from configuration.
func NewSerperProvider(cfg config.SerperConfig, client *http.Client) *SerperProvider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = serperEndpoint
	}
	return &SerperProvider{
		endpoint: endpoint,
		client:   newJSONClient(client, map[string]string{"X-API-KEY": cfg.APIKey}),
		now:      time.Now,
	}
}

// Name identifies the provider inside the registry.
func (s *SerperProvider) Name() string {
	return "serper"
}

type serperResponse struct {
	News []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
		Source  string `json:"source"`
	} `json:"news"`
}

// Search returns news results for query.
func (s *SerperProvider) Search(ctx context.Context, query string, maxResults, recencyDays int) ([]domain.RawArticle, error) {
	payload := map[string]any{
		"q":   query,
		"num": maxResults,
	}
	if tbs := recencyFilter(recencyDays); tbs != "" {
		payload["tbs"] = tbs
	}

	var resp serperResponse
	if err := s.client.post(ctx, s.endpoint, payload, &resp); err != nil {
		return nil, fmt.Errorf("serper search %q: %w", query, err)
	}

	now := s.now()
	out := make([]domain.RawArticle, 0, len(resp.News))
	for _, item := range resp.News {
		if strings.TrimSpace(item.Link) == "" {
			continue
		}
		out = append(out, domain.RawArticle{
			Title:       strings.TrimSpace(item.Title),
			URL:         strings.TrimSpace(item.Link),
			Source:      item.Source,
			Snippet:     strings.TrimSpace(item.Snippet),
			PublishedAt: parseDate(item.Date, now),
		})
	}
	return out, nil
}

// recencyFilter maps a day window onto Google's qdr time filter.
func recencyFilter(days int) string {
	switch {
	case days <= 0:
		return ""
	case days <= 1:
		return "qdr:d"
	case days <= 7:
		return "qdr:w"
	case days <= 31:
		return "qdr:m"
	default:
		return "qdr:y"
	}
}
