package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/dyike/PolyCortex/internal/errs"
	"github.com/dyike/PolyCortex/models"
	"github.com/go-resty/resty/v2"
)

// DataClient reads trade history from the Polymarket Data API.
type DataClient struct {
	client *resty.Client
	retry  *RetryPolicy
}

func NewDataClient(baseURL string, opts ...Option) *DataClient {
	o := buildOptions(opts)
	return &DataClient{
		client: newRestClient(baseURL, o),
		retry:  o.retry,
	}
}

type dataTrade struct {
	ProxyWallet     string    `json:"proxyWallet"`
	Side            string    `json:"side"`
	Asset           string    `json:"asset"`
	ConditionID     string    `json:"conditionId"`
	Size            flexFloat `json:"size"`
	Price           flexFloat `json:"price"`
	Timestamp       flexFloat `json:"timestamp"`
	Outcome         string    `json:"outcome"`
	TransactionHash string    `json:"transactionHash"`
}

// MarketTrades returns the most recent fills, newest first.
func (c *DataClient) MarketTrades(ctx context.Context, conditionID string, limit int) ([]models.TradeEvent, error) {
	if conditionID == "" {
		return nil, errs.Validation("CONDITION_ID", "condition id is empty")
	}
	if limit <= 0 {
		limit = 50
	}

	var raw []dataTrade
	err := retryCall(ctx, c.retry, func() error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"market": conditionID,
				"limit":  strconv.Itoa(limit),
			}).
			Get("/trades")
		if err := classify("data-api", resp, err); err != nil {
			return err
		}
		if err := json.Unmarshal(resp.Body(), &raw); err != nil {
			return decodeError("data-api", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("trades for %s: %w", conditionID, err)
	}

	out := make([]models.TradeEvent, 0, len(raw))
	for _, t := range raw {
		out = append(out, models.TradeEvent{
			ProxyWallet:     t.ProxyWallet,
			Side:            t.Side,
			Asset:           t.Asset,
			ConditionID:     t.ConditionID,
			Size:            float64(t.Size),
			Price:           float64(t.Price),
			Timestamp:       int64(t.Timestamp),
			Outcome:         t.Outcome,
			TransactionHash: t.TransactionHash,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
