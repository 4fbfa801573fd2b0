package dataflows

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyike/PolyCortex/models"
	"github.com/go-resty/resty/v2"
)

// RSS 结构体定义
type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	PubDate     string    `xml:"pubDate"`
	Source      rssSource `xml:"source"`
}

type rssSource struct {
	URL  string `xml:"url,attr"`
	Text string `xml:",chardata"`
}

// NewsClient searches the Google News RSS feed.
type NewsClient struct {
	client *resty.Client
	retry  *RetryPolicy
	cache  *ResponseCache
}

func NewNewsClient(baseURL string, opts ...Option) *NewsClient {
	o := buildOptions(opts)
	client := newRestClient(baseURL, o).
		SetHeader("Accept", "application/rss+xml, application/xml, text/xml")
	return &NewsClient{client: client, retry: o.retry, cache: o.cache}
}

func (c *NewsClient) News(ctx context.Context, query string, maxResults int) ([]models.NewsArticle, error) {
	if err := checkQuery(query); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s|%d", query, maxResults)
	var cached []models.NewsArticle
	if c.cache.Load("google_news", "rss", key, &cached) {
		return cached, nil
	}

	var feed rssFeed
	err := retryCall(ctx, c.retry, func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"q":    query,
				"hl":   "en-US",
				"gl":   "US",
				"ceid": "US:en",
			}).
			Get("/rss/search")
		if err := classify("google-news", resp, err); err != nil {
			return err
		}
		if err := xml.Unmarshal(resp.Body(), &feed); err != nil {
			return decodeError("google-news", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("news search: %w", err)
	}

	out := make([]models.NewsArticle, 0, len(feed.Channel.Items))
	for _, it := range feed.Channel.Items {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			continue
		}
		out = append(out, models.NewsArticle{
			Title:       title,
			URL:         strings.TrimSpace(it.Link),
			Source:      strings.TrimSpace(it.Source.Text),
			PublishedAt: strings.TrimSpace(it.PubDate),
			Summary:     htmlText(it.Description),
		})
	}
	out = limitResults(out, maxResults)
	_ = c.cache.Store("google_news", "rss", key, out)
	return out, nil
}

// htmlText flattens the HTML snippet Google puts in item descriptions.
func htmlText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return clip(fragment, 500)
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	return clip(text, 500)
}
