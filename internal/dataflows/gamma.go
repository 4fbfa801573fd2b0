package dataflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dyike/PolyCortex/internal/errs"
	"github.com/dyike/PolyCortex/models"
	"github.com/go-resty/resty/v2"
)

// GammaClient reads market metadata from the Polymarket Gamma API.
type GammaClient struct {
	client *resty.Client
	retry  *RetryPolicy
	cache  *ResponseCache
}

func NewGammaClient(baseURL string, opts ...Option) *GammaClient {
	o := buildOptions(opts)
	return &GammaClient{
		client: newRestClient(baseURL, o),
		retry:  o.retry,
		cache:  o.cache,
	}
}

// FetchMarket accepts a numeric Gamma id or a 0x-prefixed condition id.
func (c *GammaClient) FetchMarket(ctx context.Context, marketID string) (*models.MarketSnapshot, error) {
	marketID = strings.TrimSpace(marketID)
	if marketID == "" {
		return nil, errs.Validation("MARKET_ID", "market id is empty")
	}

	var cached models.MarketSnapshot
	if c.cache.Load("gamma", "market", marketID, &cached) {
		return &cached, nil
	}

	var raw gammaMarket
	err := retryCall(ctx, c.retry, func() error {
		var err error
		raw, err = c.get(ctx, marketID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch market %s: %w", marketID, err)
	}

	snap := raw.snapshot()
	_ = c.cache.Store("gamma", "market", marketID, snap)
	return snap, nil
}

func (c *GammaClient) get(ctx context.Context, marketID string) (gammaMarket, error) {
	if strings.HasPrefix(marketID, "0x") {
		var list []gammaMarket
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParam("condition_ids", marketID).
			Get("/markets")
		if err := classify("gamma", resp, err); err != nil {
			return gammaMarket{}, err
		}
		if err := json.Unmarshal(resp.Body(), &list); err != nil {
			return gammaMarket{}, decodeError("gamma", err)
		}
		if len(list) == 0 {
			return gammaMarket{}, errs.NotFound("MARKET_NOT_FOUND", "no market with condition id "+marketID)
		}
		return list[0], nil
	}

	var m gammaMarket
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", marketID).
		Get("/markets/{id}")
	if err := classify("gamma", resp, err); err != nil {
		return gammaMarket{}, err
	}
	if err := json.Unmarshal(resp.Body(), &m); err != nil {
		return gammaMarket{}, decodeError("gamma", err)
	}
	return m, nil
}

type gammaMarket struct {
	ID              string     `json:"id"`
	Question        string     `json:"question"`
	ConditionID     string     `json:"conditionId"`
	Slug            string     `json:"slug"`
	Description     string     `json:"description"`
	Outcomes        stringList `json:"outcomes"`
	OutcomePrices   stringList `json:"outcomePrices"`
	ClobTokenIDs    stringList `json:"clobTokenIds"`
	Active          bool       `json:"active"`
	Closed          bool       `json:"closed"`
	Archived        bool       `json:"archived"`
	AcceptingOrders bool       `json:"acceptingOrders"`
	Volume          flexFloat  `json:"volume"`
	VolumeNum       flexFloat  `json:"volumeNum"`
	Liquidity       flexFloat  `json:"liquidity"`
	LiquidityNum    flexFloat  `json:"liquidityNum"`
	EndDate         string     `json:"endDate"`
}

func (g gammaMarket) snapshot() *models.MarketSnapshot {
	prices := make([]float64, 0, len(g.OutcomePrices))
	for _, p := range g.OutcomePrices {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			v = 0
		}
		prices = append(prices, v)
	}
	volume := float64(g.VolumeNum)
	if volume == 0 {
		volume = float64(g.Volume)
	}
	liquidity := float64(g.LiquidityNum)
	if liquidity == 0 {
		liquidity = float64(g.Liquidity)
	}
	return &models.MarketSnapshot{
		ID:            g.ID,
		Question:      g.Question,
		ConditionID:   g.ConditionID,
		Slug:          g.Slug,
		Description:   g.Description,
		Outcomes:      []string(g.Outcomes),
		OutcomePrices: prices,
		TokenIDs:      []string(g.ClobTokenIDs),
		Active:        g.Active,
		Closed:        g.Closed,
		Archived:      g.Archived,
		AcceptingBids: g.AcceptingOrders,
		Volume:        volume,
		Liquidity:     liquidity,
		EndDate:       g.EndDate,
	}
}

// stringList decodes both a JSON array and a string holding a JSON array,
// which is how Gamma encodes outcomes, prices and token ids.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*s = nil
		return nil
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		if strings.TrimSpace(inner) == "" {
			*s = nil
			return nil
		}
		data = []byte(inner)
	}
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	*s = out
	return nil
}

// flexFloat decodes numbers that may arrive quoted.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
