package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/apura-ai/apura/internal/model"
)

const defaultNewsAPIBaseURL = "https://newsapi.org/v2"

// NewsAPIClient searches the NewsAPI everything index.
type NewsAPIClient struct {
	baseURL    string
	apiKey     string
	language   string
	pageSize   int
	httpClient *http.Client
}

// NewsAPIOption configures the client.
type NewsAPIOption func(*NewsAPIClient)

// WithNewsAPIBaseURL overrides the API base URL.
func WithNewsAPIBaseURL(u string) NewsAPIOption {
	return func(c *NewsAPIClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithNewsAPIPageSize caps the number of returned articles.
func WithNewsAPIPageSize(n int) NewsAPIOption {
	return func(c *NewsAPIClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithNewsAPIHTTPClient overrides the HTTP client.
func WithNewsAPIHTTPClient(hc *http.Client) NewsAPIOption {
	return func(c *NewsAPIClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewNewsAPIClient creates a NewsAPI client with the given key.
func NewNewsAPIClient(apiKey string, opts ...NewsAPIOption) *NewsAPIClient {
	c := &NewsAPIClient{
		baseURL:  defaultNewsAPIBaseURL,
		apiKey:   apiKey,
		language: "pt",
		pageSize: 20,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
	} `json:"articles"`
}

// Search queries GET /everything sorted by relevancy.
func (c *NewsAPIClient) Search(ctx context.Context, query string) ([]model.NewsArticle, error) {
	params := url.Values{
		"q":        {query},
		"language": {c.language},
		"pageSize": {strconv.Itoa(c.pageSize)},
		"sortBy":   {"relevancy"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("news: create newsapi request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news: newsapi request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result newsAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&result); err != nil {
		return nil, fmt.Errorf("news: decode newsapi response: %w", err)
	}
	if result.Status != "ok" {
		return nil, fmt.Errorf("news: newsapi returned %s: %s", result.Code, result.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news: newsapi returned status %d", resp.StatusCode)
	}

	articles := make([]model.NewsArticle, 0, len(result.Articles))
	for _, a := range result.Articles {
		articles = append(articles, model.NewsArticle{
			Source:      "NewsAPI",
			Title:       a.Title,
			URL:         a.URL,
			Description: a.Description,
		})
	}
	return articles, nil
}
