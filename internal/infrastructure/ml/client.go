package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"TopicNewsletter/internal/domain"
	"TopicNewsletter/internal/ports"
)

// Client talks to an external ML inference service for relevance scoring and
// summary review.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.RelevanceScorer = (*Client)(nil)
var _ ports.QualityReviewer = (*Client)(nil)

// NewClient creates a reusable HTTP client. A nil httpClient gets a 15 second
// timeout.
func NewClient(endpoint, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     httpClient,
	}
}

// Score sends the article text for relevance scoring against the topic.
func (c *Client) Score(ctx context.Context, article domain.RawArticle, topicContext string) (float64, error) {
	payload := map[string]any{
		"title":   article.Title,
		"snippet": article.Snippet,
		"source":  article.Source,
		"topic":   topicContext,
	}

	var resp struct {
		Score *float64 `json:"score"`
	}
	if err := c.post(ctx, "/score", payload, &resp); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrScoring, err)
	}
	if resp.Score == nil || math.IsNaN(*resp.Score) {
		return 0, fmt.Errorf("%w: response has no score", domain.ErrScoring)
	}
	return *resp.Score, nil
}

// Review requests a quality grade for a finished topic summary.
func (c *Client) Review(ctx context.Context, summary domain.TopicSummary) (domain.Review, error) {
	payload := map[string]any{
		"topic":          summary.TopicName,
		"overview":       summary.Overview,
		"key_findings":   summary.KeyFindings,
		"notable_trends": summary.NotableTrends,
		"article_count":  len(summary.TopArticles),
	}

	var resp struct {
		QualityScore *float64 `json:"quality_score"`
		Feedback     string   `json:"feedback"`
	}
	if err := c.post(ctx, "/review", payload, &resp); err != nil {
		return domain.Review{}, err
	}
	if resp.QualityScore == nil {
		return domain.Review{}, fmt.Errorf("review response has no quality_score")
	}

	review := domain.Review{QualityScore: *resp.QualityScore}
	if fb := strings.TrimSpace(resp.Feedback); fb != "" {
		review.Feedback = &fb
	}
	return review, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
