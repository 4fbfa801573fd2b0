package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dyike/PolyCortex/internal/errs"
	"github.com/dyike/PolyCortex/models"
	"github.com/go-resty/resty/v2"
)

const maxContentChars = 2000

// TavilyClient calls the Tavily search API.
type TavilyClient struct {
	client *resty.Client
	apiKey string
	retry  *RetryPolicy
	cache  *ResponseCache
}

func NewTavilyClient(baseURL, apiKey string, opts ...Option) *TavilyClient {
	o := buildOptions(opts)
	return &TavilyClient{
		client: newRestClient(baseURL, o),
		apiKey: apiKey,
		retry:  o.retry,
		cache:  o.cache,
	}
}

func (c *TavilyClient) Name() string { return "tavily" }

type tavilyRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
	Topic       string `json:"topic"`
}

type tavilyResponse struct {
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"published_date"`
	} `json:"results"`
}

func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	if c.apiKey == "" {
		return nil, errs.Validation("MISSING_KEY", "tavily api key is not configured")
	}
	if err := checkQuery(query); err != nil {
		return nil, err
	}
	req := tavilyRequest{Query: query, MaxResults: maxResults, SearchDepth: "basic", Topic: "general"}

	var cached []models.SearchResult
	if c.cache.Load("tavily", "search", req, &cached) {
		return cached, nil
	}

	var raw tavilyResponse
	err := retryCall(ctx, c.retry, func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetAuthToken(c.apiKey).
			SetHeader("Content-Type", "application/json").
			SetBody(req).
			Post("/search")
		if err := classify("tavily", resp, err); err != nil {
			return err
		}
		if err := json.Unmarshal(resp.Body(), &raw); err != nil {
			return decodeError("tavily", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}

	out := make([]models.SearchResult, 0, len(raw.Results))
	for _, r := range raw.Results {
		out = append(out, models.SearchResult{
			Title:         r.Title,
			URL:           r.URL,
			Content:       clip(r.Content, maxContentChars),
			Score:         r.Score,
			PublishedDate: r.PublishedDate,
			Source:        "tavily",
		})
	}
	out = limitResults(out, maxResults)
	_ = c.cache.Store("tavily", "search", req, out)
	return out, nil
}

// ExaClient calls the Exa search API.
type ExaClient struct {
	client *resty.Client
	apiKey string
	retry  *RetryPolicy
	cache  *ResponseCache
}

func NewExaClient(baseURL, apiKey string, opts ...Option) *ExaClient {
	o := buildOptions(opts)
	return &ExaClient{
		client: newRestClient(baseURL, o),
		apiKey: apiKey,
		retry:  o.retry,
		cache:  o.cache,
	}
}

func (c *ExaClient) Name() string { return "exa" }

type exaRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults"`
	Type       string `json:"type"`
	Contents   struct {
		Text struct {
			MaxCharacters int `json:"maxCharacters"`
		} `json:"text"`
	} `json:"contents"`
}

type exaResponse struct {
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		PublishedDate string  `json:"publishedDate"`
		Author        string  `json:"author"`
		Score         float64 `json:"score"`
		Text          string  `json:"text"`
	} `json:"results"`
}

func (c *ExaClient) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	if c.apiKey == "" {
		return nil, errs.Validation("MISSING_KEY", "exa api key is not configured")
	}
	if err := checkQuery(query); err != nil {
		return nil, err
	}
	req := exaRequest{Query: query, NumResults: maxResults, Type: "auto"}
	req.Contents.Text.MaxCharacters = maxContentChars

	var cached []models.SearchResult
	if c.cache.Load("exa", "search", req, &cached) {
		return cached, nil
	}

	var raw exaResponse
	err := retryCall(ctx, c.retry, func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetHeader("x-api-key", c.apiKey).
			SetHeader("Content-Type", "application/json").
			SetBody(req).
			Post("/search")
		if err := classify("exa", resp, err); err != nil {
			return err
		}
		if err := json.Unmarshal(resp.Body(), &raw); err != nil {
			return decodeError("exa", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exa search: %w", err)
	}

	out := make([]models.SearchResult, 0, len(raw.Results))
	for _, r := range raw.Results {
		out = append(out, models.SearchResult{
			Title:         r.Title,
			URL:           r.URL,
			Content:       clip(r.Text, maxContentChars),
			Score:         r.Score,
			PublishedDate: r.PublishedDate,
			Source:        "exa",
		})
	}
	out = limitResults(out, maxResults)
	_ = c.cache.Store("exa", "search", req, out)
	return out, nil
}

func checkQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return errs.Validation("EMPTY_QUERY", "search query cannot be empty")
	}
	return nil
}

func limitResults[T any](in []T, n int) []T {
	if n > 0 && len(in) > n {
		return in[:n]
	}
	return in
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
