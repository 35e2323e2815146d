package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/g0da-s/vettd/pkg/retry"
)

// Tavily calls the Tavily search API.
type Tavily struct {
	APIKey string
	Retry  retry.Policy
	client *http.Client
}

func NewTavily(apiKey string) *Tavily {
	return &Tavily{
		APIKey: apiKey,
		Retry:  retry.DefaultPolicy(),
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, fmt.Errorf("tavily: API key is missing")
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	payload, err := json.Marshal(map[string]any{
		"query":       query,
		"api_key":     t.APIKey,
		"max_results": maxResults,
	})
	if err != nil {
		return nil, err
	}

	var results []Result
	err = t.Retry.Do(ctx, "tavily search", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.tavily.com/search", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &retry.HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		var response struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Content string `json:"content"`
			} `json:"results"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
			return err
		}

		results = results[:0]
		for _, r := range response.Results {
			results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
			if len(results) >= maxResults {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
