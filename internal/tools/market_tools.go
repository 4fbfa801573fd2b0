package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/consts"
	"github.com/dyike/PolyCortex/internal/dataflows"
	"github.com/dyike/PolyCortex/internal/logging"
	"github.com/dyike/PolyCortex/models"
	"github.com/shopspring/decimal"
)

type MarketDetailsInput struct{}

func newMarketDetailsTool(k *Toolkit, st *models.WorkflowState) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name:        consts.ToolMarketDetails,
			Desc:        "Get the market's outcomes with current prices, best bid/ask, spread and last trade price per outcome token.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(ctx context.Context, _ MarketDetailsInput) (*models.MarketDetails, error) {
			if d := st.CachedDetails(); d != nil {
				return d, nil
			}
			d := buildDetails(ctx, k, st.MarketData)
			st.StoreDetails(d)
			return d, nil
		},
	)
}

// buildDetails tolerates per-token failures: a token whose book or last
// price cannot be read keeps null quote fields.
func buildDetails(ctx context.Context, k *Toolkit, m *models.MarketSnapshot) *models.MarketDetails {
	logger := logging.FromContext(ctx)
	d := &models.MarketDetails{
		MarketID:    m.ID,
		Question:    m.Question,
		ConditionID: m.ConditionID,
		Active:      m.Active,
		Closed:      m.Closed,
		Volume:      m.Volume,
		Liquidity:   m.Liquidity,
		EndDate:     m.EndDate,
	}
	for i, token := range m.TokenIDs {
		q := models.OutcomeQuote{TokenID: token, Outcome: m.OutcomeFor(token)}
		if i < len(m.OutcomePrices) {
			q.Price = m.OutcomePrices[i]
		}
		if book, err := k.Books.Orderbook(ctx, token, 1); err == nil {
			s := book.Summary()
			q.BestBid, q.BestAsk, q.Spread = s.BestBid, s.BestAsk, s.Spread
		} else {
			logger.Warn("market details: orderbook unavailable", "token_id", token, "error", err)
		}
		if last, err := k.Books.LastTradePrice(ctx, token); err == nil {
			q.LastTradePrice = last
		} else {
			logger.Warn("market details: last trade price unavailable", "token_id", token, "error", err)
		}
		d.Outcomes = append(d.Outcomes, q)
	}
	return d
}

type OrderbookInput struct {
	TokenID string `json:"token_id,omitempty"`
	Depth   int    `json:"depth,omitempty"`
}

type OrderbookOutput struct {
	Books []*models.OrderbookReport `json:"books"`
}

func newOrderbookTool(k *Toolkit, st *models.WorkflowState) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: consts.ToolMultiLevelBook,
			Desc: "Get the multi-level orderbook with mid price, spread, depth and bid/ask imbalance. Omit token_id to get every outcome.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"token_id": {Type: schema.String, Desc: "Outcome token id; empty for all outcomes", Enum: st.MarketData.TokenIDs},
				"depth":    {Type: schema.Integer, Desc: "Levels per side"},
			}),
		},
		func(ctx context.Context, input OrderbookInput) (*OrderbookOutput, error) {
			tokens := st.MarketData.TokenIDs
			if input.TokenID != "" {
				if !st.MarketData.HasToken(input.TokenID) {
					return nil, fmt.Errorf("token %s does not belong to market %s", input.TokenID, st.MarketID)
				}
				tokens = []string{input.TokenID}
			}
			depth := k.OrderbookDepth
			if input.Depth > 0 && (depth <= 0 || input.Depth < depth) {
				depth = input.Depth
			}

			out := &OrderbookOutput{}
			for _, token := range tokens {
				if cached := st.CachedOrderbook(token); cached != nil {
					out.Books = append(out.Books, cached)
					continue
				}
				book, err := k.Books.Orderbook(ctx, token, depth)
				if err != nil {
					return nil, err
				}
				summary := book.Summary()
				summary.Outcome = st.MarketData.OutcomeFor(token)
				if last, err := k.Books.LastTradePrice(ctx, token); err == nil {
					summary.LastTradePrice = last
				}
				report := &models.OrderbookReport{Summary: summary, Bids: book.Bids, Asks: book.Asks}
				st.StoreOrderbook(token, report)
				out.Books = append(out.Books, report)
			}
			return out, nil
		},
	)
}

type TradesInput struct {
	Limit int `json:"limit,omitempty"`
}

type TradesOutput struct {
	Count  int                 `json:"count"`
	Trades []models.TradeEvent `json:"trades"`
}

func newMarketTradesTool(k *Toolkit, st *models.WorkflowState) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: consts.ToolMarketTrades,
			Desc: "Get the most recent trades of this market, newest first.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"limit": {Type: schema.Integer, Desc: "Maximum number of trades"},
			}),
		},
		func(ctx context.Context, input TradesInput) (*TradesOutput, error) {
			trades, err := k.tradesFor(ctx, st)
			if err != nil {
				return nil, err
			}
			if input.Limit > 0 && input.Limit < len(trades) {
				trades = trades[:input.Limit]
			}
			return &TradesOutput{Count: len(trades), Trades: trades}, nil
		},
	)
}

func (k *Toolkit) tradesFor(ctx context.Context, st *models.WorkflowState) ([]models.TradeEvent, error) {
	if trades, ok := st.CachedTrades(); ok {
		return trades, nil
	}
	if st.MarketData.ConditionID == "" {
		return nil, fmt.Errorf("market %s has no condition id", st.MarketID)
	}
	trades, err := k.Trades.MarketTrades(ctx, st.MarketData.ConditionID, k.TradesLimit)
	if err != nil {
		return nil, err
	}
	st.StoreTrades(trades)
	return trades, nil
}

type TrendsInput struct {
	Query string `json:"query,omitempty"`
}

func newHistoricalTrendsTool(k *Toolkit, st *models.WorkflowState) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: consts.ToolHistoricalTrends,
			Desc: "Summarise recent price and volume movement of this market from its trade history, with web context for the query.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "Topic to search for context; defaults to the market question"},
			}),
		},
		func(ctx context.Context, input TrendsInput) (*models.HistoricalTrends, error) {
			if cached := st.CachedTrends(); cached != nil {
				return cached, nil
			}
			trades, err := k.tradesFor(ctx, st)
			if err != nil {
				return nil, err
			}
			query := strings.TrimSpace(input.Query)
			if query == "" {
				query = st.MarketData.Question
			}
			trends := ComputeTrends(trades)
			trends.Query = query
			trends.Context = k.trendContext(ctx, query)
			st.StoreTrends(trends)
			return trends, nil
		},
	)
}

// trendContext asks the first configured search provider for background.
// Search failures only drop the context.
func (k *Toolkit) trendContext(ctx context.Context, query string) []models.SearchResult {
	for _, p := range []dataflows.SearchProvider{k.Tavily, k.Exa} {
		if p == nil {
			continue
		}
		res, err := p.Search(ctx, query+" price history", k.searchLimit(3))
		if err == nil {
			return res
		}
		logging.FromContext(ctx).Warn("historical trends: search failed", "provider", p.Name(), "error", err)
	}
	return nil
}

// ComputeTrends derives price and volume statistics from fills.
func ComputeTrends(trades []models.TradeEvent) *models.HistoricalTrends {
	t := &models.HistoricalTrends{TradeCount: len(trades)}
	if len(trades) == 0 {
		return t
	}
	sorted := append([]models.TradeEvent(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	notional := decimal.Zero
	volume := decimal.Zero
	t.HighPrice = sorted[0].Price
	t.LowPrice = sorted[0].Price
	for _, tr := range sorted {
		size := decimal.NewFromFloat(tr.Size)
		volume = volume.Add(size)
		notional = notional.Add(size.Mul(decimal.NewFromFloat(tr.Price)))
		switch strings.ToUpper(tr.Side) {
		case "BUY":
			t.BuyVolume += tr.Size
		case "SELL":
			t.SellVolume += tr.Size
		}
		t.HighPrice = max(t.HighPrice, tr.Price)
		t.LowPrice = min(t.LowPrice, tr.Price)
	}
	t.FirstPrice = sorted[0].Price
	t.LastPrice = sorted[len(sorted)-1].Price
	t.PriceChange, _ = decimal.NewFromFloat(t.LastPrice).Sub(decimal.NewFromFloat(t.FirstPrice)).Round(6).Float64()
	t.TotalVolume, _ = volume.Float64()
	if volume.IsPositive() {
		t.VWAP, _ = notional.Div(volume).Round(6).Float64()
	}
	t.WindowStart = sorted[0].Timestamp
	t.WindowEnd = sorted[len(sorted)-1].Timestamp
	return t
}
