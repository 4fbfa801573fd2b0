package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dyike/PolyCortex/internal/errs"
	"github.com/dyike/PolyCortex/models"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// ClobClient reads books and prices from the Polymarket CLOB API.
type ClobClient struct {
	client *resty.Client
	retry  *RetryPolicy
}

func NewClobClient(baseURL string, opts ...Option) *ClobClient {
	o := buildOptions(opts)
	return &ClobClient{
		client: newRestClient(baseURL, o),
		retry:  o.retry,
	}
}

type clobLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

type clobBook struct {
	Market    string      `json:"market"`
	AssetID   string      `json:"asset_id"`
	Timestamp string      `json:"timestamp"`
	Bids      []clobLevel `json:"bids"`
	Asks      []clobLevel `json:"asks"`
}

// Orderbook returns up to depth levels per side, best price first.
func (c *ClobClient) Orderbook(ctx context.Context, tokenID string, depth int) (*models.Orderbook, error) {
	if strings.TrimSpace(tokenID) == "" {
		return nil, errs.Validation("TOKEN_ID", "token id is empty")
	}

	var raw clobBook
	err := retryCall(ctx, c.retry, func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParam("token_id", tokenID).
			Get("/book")
		if err := classify("clob", resp, err); err != nil {
			return err
		}
		if err := json.Unmarshal(resp.Body(), &raw); err != nil {
			return decodeError("clob", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("orderbook %s: %w", tokenID, err)
	}

	bids := toLevels(raw.Bids)
	asks := toLevels(raw.Asks)
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })
	if depth > 0 {
		bids = bids[:min(depth, len(bids))]
		asks = asks[:min(depth, len(asks))]
	}

	return &models.Orderbook{
		TokenID:   tokenID,
		Market:    raw.Market,
		Bids:      bids,
		Asks:      asks,
		Timestamp: raw.Timestamp,
	}, nil
}

func toLevels(in []clobLevel) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(in))
	for _, l := range in {
		out = append(out, models.PriceLevel{Price: l.Price, Size: l.Size})
	}
	return out
}

func (c *ClobClient) LastTradePrice(ctx context.Context, tokenID string) (decimal.NullDecimal, error) {
	var raw struct {
		Price string `json:"price"`
		Side  string `json:"side"`
	}
	err := retryCall(ctx, c.retry, func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParam("token_id", tokenID).
			Get("/last-trade-price")
		if err := classify("clob", resp, err); err != nil {
			return err
		}
		if err := json.Unmarshal(resp.Body(), &raw); err != nil {
			return decodeError("clob", err)
		}
		return nil
	})
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("last trade price %s: %w", tokenID, err)
	}

	if strings.TrimSpace(raw.Price) == "" {
		return decimal.NullDecimal{}, nil
	}
	price, err := decimal.NewFromString(raw.Price)
	if err != nil {
		return decimal.NullDecimal{}, decodeError("clob", err)
	}
	if price.IsZero() {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(price), nil
}
