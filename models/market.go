package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MarketSnapshot is the normalized view of a Polymarket market returned by the
// snapshot provider.
type MarketSnapshot struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	ConditionID   string    `json:"condition_id"`
	Slug          string    `json:"slug,omitempty"`
	Description   string    `json:"description,omitempty"`
	Outcomes      []string  `json:"outcomes"`
	OutcomePrices []float64 `json:"outcome_prices"`
	TokenIDs      []string  `json:"token_ids"`
	Active        bool      `json:"active"`
	Closed        bool      `json:"closed"`
	Archived      bool      `json:"archived"`
	AcceptingBids bool      `json:"accepting_orders"`
	Volume        float64   `json:"volume"`
	Liquidity     float64   `json:"liquidity"`
	EndDate       string    `json:"end_date,omitempty"`
}

// Identifiable reports whether the snapshot carries enough to run a workflow on.
func (m *MarketSnapshot) Identifiable() bool {
	return m != nil && strings.TrimSpace(m.Question) != "" && len(m.TokenIDs) > 0
}

func (m *MarketSnapshot) HasToken(tokenID string) bool {
	for _, id := range m.TokenIDs {
		if id == tokenID {
			return true
		}
	}
	return false
}

// OutcomeFor returns the outcome label paired with tokenID.
func (m *MarketSnapshot) OutcomeFor(tokenID string) string {
	for i, id := range m.TokenIDs {
		if id == tokenID && i < len(m.Outcomes) {
			return m.Outcomes[i]
		}
	}
	return ""
}

// EnrichedDescription appends the market flags and size figures to the
// description so prompts see them next to the resolution text.
func (m *MarketSnapshot) EnrichedDescription() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(m.Description))
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	flags := []struct {
		name string
		on   bool
	}{
		{"active", m.Active},
		{"closed", m.Closed},
		{"archived", m.Archived},
		{"accepting orders", m.AcceptingBids},
	}
	for _, f := range flags {
		if f.on {
			fmt.Fprintf(&b, "This market is %s.\n", f.name)
		} else {
			fmt.Fprintf(&b, "This market is not %s.\n", f.name)
		}
	}
	fmt.Fprintf(&b, "Volume: %.2f\nLiquidity: %.2f", m.Volume, m.Liquidity)
	return b.String()
}

// PriceLevel is one aggregated level of an orderbook side.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Orderbook holds bids sorted best-first (descending) and asks best-first
// (ascending), trimmed to the requested depth.
type Orderbook struct {
	TokenID   string       `json:"token_id"`
	Market    string       `json:"market,omitempty"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp string       `json:"timestamp,omitempty"`
}

// OrderbookSummary carries the derived microstructure metrics for one token.
type OrderbookSummary struct {
	TokenID        string              `json:"token_id"`
	Outcome        string              `json:"outcome,omitempty"`
	BestBid        decimal.NullDecimal `json:"best_bid"`
	BestAsk        decimal.NullDecimal `json:"best_ask"`
	MidPrice       decimal.NullDecimal `json:"mid_price"`
	Spread         decimal.NullDecimal `json:"spread"`
	SpreadBps      decimal.NullDecimal `json:"spread_bps"`
	BidDepth       decimal.Decimal     `json:"bid_depth"`
	AskDepth       decimal.Decimal     `json:"ask_depth"`
	Imbalance      decimal.NullDecimal `json:"imbalance"`
	LastTradePrice decimal.NullDecimal `json:"last_trade_price"`
	Levels         int                 `json:"levels"`
}

// Summary computes top-of-book metrics over the levels held by the book.
func (o *Orderbook) Summary() OrderbookSummary {
	s := OrderbookSummary{
		TokenID:  o.TokenID,
		BidDepth: decimal.Zero,
		AskDepth: decimal.Zero,
		Levels:   max(len(o.Bids), len(o.Asks)),
	}
	for _, l := range o.Bids {
		s.BidDepth = s.BidDepth.Add(l.Size)
	}
	for _, l := range o.Asks {
		s.AskDepth = s.AskDepth.Add(l.Size)
	}
	if len(o.Bids) > 0 {
		s.BestBid = decimal.NewNullDecimal(o.Bids[0].Price)
	}
	if len(o.Asks) > 0 {
		s.BestAsk = decimal.NewNullDecimal(o.Asks[0].Price)
	}
	if s.BestBid.Valid && s.BestAsk.Valid {
		two := decimal.NewFromInt(2)
		mid := s.BestBid.Decimal.Add(s.BestAsk.Decimal).Div(two)
		spread := s.BestAsk.Decimal.Sub(s.BestBid.Decimal)
		s.MidPrice = decimal.NewNullDecimal(mid)
		s.Spread = decimal.NewNullDecimal(spread)
		if mid.IsPositive() {
			s.SpreadBps = decimal.NewNullDecimal(spread.Div(mid).Mul(decimal.NewFromInt(10000)).Round(2))
		}
	}
	total := s.BidDepth.Add(s.AskDepth)
	if total.IsPositive() {
		s.Imbalance = decimal.NewNullDecimal(s.BidDepth.Sub(s.AskDepth).Div(total).Round(4))
	}
	return s
}

// TradeEvent is one fill reported by the trade-events provider.
type TradeEvent struct {
	ProxyWallet     string  `json:"proxy_wallet,omitempty"`
	Side            string  `json:"side"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"condition_id"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"`
	Outcome         string  `json:"outcome,omitempty"`
	TransactionHash string  `json:"transaction_hash,omitempty"`
}

// OutcomeQuote pairs an outcome with its token and current prices.
type OutcomeQuote struct {
	Outcome        string              `json:"outcome"`
	TokenID        string              `json:"token_id"`
	Price          float64             `json:"price"`
	BestBid        decimal.NullDecimal `json:"best_bid"`
	BestAsk        decimal.NullDecimal `json:"best_ask"`
	Spread         decimal.NullDecimal `json:"spread"`
	LastTradePrice decimal.NullDecimal `json:"last_trade_price"`
}

// MarketDetails is the result of get_market_details.
type MarketDetails struct {
	MarketID    string         `json:"market_id"`
	Question    string         `json:"question"`
	ConditionID string         `json:"condition_id"`
	Active      bool           `json:"active"`
	Closed      bool           `json:"closed"`
	Volume      float64        `json:"volume"`
	Liquidity   float64        `json:"liquidity"`
	EndDate     string         `json:"end_date,omitempty"`
	Outcomes    []OutcomeQuote `json:"outcomes"`
}

// HistoricalTrends summarises recent price and volume movement for a market.
type HistoricalTrends struct {
	Query       string         `json:"query"`
	TradeCount  int            `json:"trade_count"`
	FirstPrice  float64        `json:"first_price"`
	LastPrice   float64        `json:"last_price"`
	PriceChange float64        `json:"price_change"`
	HighPrice   float64        `json:"high_price"`
	LowPrice    float64        `json:"low_price"`
	TotalVolume float64        `json:"total_volume"`
	BuyVolume   float64        `json:"buy_volume"`
	SellVolume  float64        `json:"sell_volume"`
	VWAP        float64        `json:"vwap"`
	WindowStart int64          `json:"window_start,omitempty"`
	WindowEnd   int64          `json:"window_end,omitempty"`
	Context     []SearchResult `json:"context,omitempty"`
}

// SearchResult is a normalized web search hit.
type SearchResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score,omitempty"`
	PublishedDate string  `json:"published_date,omitempty"`
	Source        string  `json:"source"`
}

type NewsArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Source      string `json:"source,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	Summary     string `json:"summary,omitempty"`
}
