package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 20 * time.Second

type jsonClient struct {
	http    *http.Client
	headers map[string]string
}

func newJSONClient(client *http.Client, headers map[string]string) jsonClient {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return jsonClient{http: client, headers: headers}
}

func (c jsonClient) post(ctx context.Context, endpoint string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, val := range c.headers {
		req.Header.Set(k, val)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseDate accepts the date shapes the news APIs return. Relative dates
// ("3 hours ago") resolve against now; unknown shapes yield the zero time.
func parseDate(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, time.RFC1123, time.RFC1123Z, "2006-01-02 15:04:05", "2006-01-02", "Jan 2, 2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}

	fields := strings.Fields(strings.ToLower(raw))
	if len(fields) == 3 && fields[2] == "ago" {
		var n int
		if _, err := fmt.Sscanf(fields[0], "%d", &n); err == nil {
			unit := strings.TrimSuffix(fields[1], "s")
			switch unit {
			case "minute":
				return now.Add(-time.Duration(n) * time.Minute).UTC()
			case "hour":
				return now.Add(-time.Duration(n) * time.Hour).UTC()
			case "day":
				return now.AddDate(0, 0, -n).UTC()
			case "week":
				return now.AddDate(0, 0, -7*n).UTC()
			}
		}
	}
	return time.Time{}
}
