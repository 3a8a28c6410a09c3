package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apura-ai/apura/internal/model"
)

const defaultGNewsBaseURL = "https://news.google.com"

// GNewsClient searches the Google News RSS index.
type GNewsClient struct {
	baseURL    string
	language   string
	country    string
	maxResults int
	period     string
	httpClient *http.Client
}

// GNewsOption configures the client.
type GNewsOption func(*GNewsClient)

// WithGNewsBaseURL overrides the feed base URL.
func WithGNewsBaseURL(u string) GNewsOption {
	return func(c *GNewsClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithGNewsMaxResults caps the number of returned articles.
func WithGNewsMaxResults(n int) GNewsOption {
	return func(c *GNewsClient) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithGNewsPeriod restricts results to a recency window, e.g. "7d".
func WithGNewsPeriod(period string) GNewsOption {
	return func(c *GNewsClient) { c.period = period }
}

// WithGNewsHTTPClient overrides the HTTP client.
func WithGNewsHTTPClient(hc *http.Client) GNewsOption {
	return func(c *GNewsClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewGNewsClient creates a Google News client for Brazilian Portuguese.
func NewGNewsClient(opts ...GNewsOption) *GNewsClient {
	c := &GNewsClient{
		baseURL:    defaultGNewsBaseURL,
		language:   "pt-BR",
		country:    "BR",
		maxResults: 20,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rssFeed struct {
	XMLName xml.Name  `xml:"rss"`
	Items   []rssItem `xml:"channel>item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Source      string `xml:"source"`
}

// Search queries the RSS search feed and returns up to maxResults articles.
func (c *GNewsClient) Search(ctx context.Context, query string) ([]model.NewsArticle, error) {
	q := query
	if c.period != "" {
		q += " when:" + c.period
	}
	params := url.Values{
		"q":    {q},
		"hl":   {c.language},
		"gl":   {c.country},
		"ceid": {c.country + ":" + c.language},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rss/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("news: create gnews request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news: gnews request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news: gnews returned status %d", resp.StatusCode)
	}

	var feed rssFeed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("news: decode gnews feed: %w", err)
	}

	items := feed.Items
	if len(items) > c.maxResults {
		items = items[:c.maxResults]
	}
	articles := make([]model.NewsArticle, 0, len(items))
	for _, item := range items {
		articles = append(articles, model.NewsArticle{
			Source:      "GNews",
			Title:       item.Title,
			URL:         item.Link,
			Description: item.Description,
		})
	}
	return articles, nil
}
