package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/config"
	"github.com/dyike/PolyCortex/consts"
	"github.com/dyike/PolyCortex/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBooks struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (f *fakeBooks) Orderbook(_ context.Context, tokenID string, depth int) (*models.Orderbook, error) {
	f.calls.Add(1)
	if f.fail[tokenID] {
		return nil, errors.New("clob down")
	}
	book := &models.Orderbook{
		TokenID: tokenID,
		Bids: []models.PriceLevel{
			{Price: decimal.RequireFromString("0.48"), Size: decimal.NewFromInt(100)},
			{Price: decimal.RequireFromString("0.47"), Size: decimal.NewFromInt(50)},
		},
		Asks: []models.PriceLevel{
			{Price: decimal.RequireFromString("0.52"), Size: decimal.NewFromInt(50)},
		},
	}
	if depth > 0 && len(book.Bids) > depth {
		book.Bids = book.Bids[:depth]
	}
	return book, nil
}

func (f *fakeBooks) LastTradePrice(_ context.Context, tokenID string) (decimal.NullDecimal, error) {
	if f.fail[tokenID] {
		return decimal.NullDecimal{}, errors.New("clob down")
	}
	return decimal.NewNullDecimal(decimal.RequireFromString("0.5")), nil
}

type fakeTrades struct {
	calls  atomic.Int32
	trades []models.TradeEvent
}

func (f *fakeTrades) MarketTrades(context.Context, string, int) ([]models.TradeEvent, error) {
	f.calls.Add(1)
	return f.trades, nil
}

type fakeSearch struct {
	name string
	err  error
}

func (f *fakeSearch) Name() string { return f.name }

func (f *fakeSearch) Search(_ context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.SearchResult, 0, maxResults)
	for i := 0; i < maxResults && i < 3; i++ {
		out = append(out, models.SearchResult{Title: query, URL: "https://example.com", Source: f.name})
	}
	return out, nil
}

type fakeNews struct {
	calls atomic.Int32
}

func (f *fakeNews) News(_ context.Context, query string, maxResults int) ([]models.NewsArticle, error) {
	f.calls.Add(1)
	return []models.NewsArticle{{Title: query + " 1"}, {Title: query + " 2"}, {Title: query + " 3"}}, nil
}

func testState(t *testing.T) *models.WorkflowState {
	t.Helper()
	st, err := models.NewWorkflowState(&models.InputState{MarketID: "123"})
	require.NoError(t, err)
	st.MarketData = &models.MarketSnapshot{
		ID:            "123",
		Question:      "Will it rain tomorrow?",
		ConditionID:   "0xabc",
		Outcomes:      []string{"Yes", "No"},
		OutcomePrices: []float64{0.5, 0.5},
		TokenIDs:      []string{"tok-yes", "tok-no"},
	}
	return st
}

func call(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Function: schema.FunctionCall{Name: name, Arguments: args}}
}

func echoTool(name string, fail bool) tool.InvokableTool {
	type in struct {
		Text string `json:"text"`
	}
	return t_utils.NewTool(&schema.ToolInfo{Name: name, Desc: "echo"}, func(_ context.Context, i in) (string, error) {
		if fail {
			return "", errors.New("boom")
		}
		return name + ":" + i.Text, nil
	})
}

func TestNewRegistryRejectsBadNames(t *testing.T) {
	ctx := context.Background()

	_, err := NewRegistry(ctx, echoTool("a", false), echoTool("a", false))
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewRegistry(ctx, echoTool(consts.ToolSubmitTrade, false))
	assert.ErrorContains(t, err, "terminal")

	_, err = NewRegistry(ctx, echoTool("", false))
	assert.Error(t, err)

	r, err := NewRegistry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestDispatchKeepsRequestOrder(t *testing.T) {
	ctx := context.Background()
	r, err := NewRegistry(ctx, echoTool("a", false), echoTool("b", true), echoTool("c", false))
	require.NoError(t, err)

	calls := []schema.ToolCall{
		call("1", "c", `{"text":"x"}`),
		call("2", "b", `{}`),
		call("3", "missing", `{}`),
		call("4", "a", ``),
	}
	for _, parallel := range []bool{false, true} {
		out := r.Dispatch(ctx, calls, parallel)
		require.Len(t, out, 4)
		for i, m := range out {
			assert.Equal(t, calls[i].ID, m.ToolCallID)
			assert.Equal(t, schema.Tool, m.Role)
		}
		assert.Equal(t, consts.ToolStatusSuccess, out[0].Extra[consts.ExtraStatus])
		assert.Contains(t, out[0].Content, "c:x")
		assert.Equal(t, consts.ToolStatusError, out[1].Extra[consts.ExtraStatus])
		assert.Contains(t, out[1].Content, "boom")
		assert.Equal(t, consts.ToolStatusError, out[2].Extra[consts.ExtraStatus])
		assert.Contains(t, out[2].Content, "unknown tool")
		assert.Equal(t, consts.ToolStatusSuccess, out[3].Extra[consts.ExtraStatus])
	}
}

func TestTerminalLookup(t *testing.T) {
	assert.True(t, IsTerminal(consts.ToolSubmitResearch))
	assert.False(t, IsTerminal(consts.ToolSearchTavily))
	assert.Equal(t, consts.ToolSubmitAnalysis, TerminalFor(models.PhaseAnalysis))
	assert.Equal(t, "", TerminalFor(models.PhaseDone))
}

func TestTradeToolSideEnum(t *testing.T) {
	info := TradeTool([]models.Side{models.SideBuy, models.SideNoTrade}, []string{"tok"})
	assert.Equal(t, consts.ToolSubmitTrade, info.Name)
	assert.Equal(t, []string{"BUY", "NO_TRADE"}, sideEnum([]models.Side{models.SideBuy, models.SideNoTrade}))
}

func TestResearchRegistry(t *testing.T) {
	ctx := context.Background()
	k := &Toolkit{Tavily: &fakeSearch{name: "tavily"}, Exa: &fakeSearch{name: "exa"}, MaxSearchResults: 2}
	r, err := k.ResearchRegistry(ctx, testState(t))
	require.NoError(t, err)
	assert.True(t, r.Has(consts.ToolSearchTavily))
	assert.True(t, r.Has(consts.ToolSearchExa))

	out := r.Dispatch(ctx, []schema.ToolCall{call("1", consts.ToolSearchExa, `{"query":"rain","max_results":10}`)}, false)
	var res SearchOutput
	require.NoError(t, json.Unmarshal([]byte(out[0].Content), &res))
	assert.Equal(t, "exa", res.Provider)
	assert.Len(t, res.Results, 2)

	out = r.Dispatch(ctx, []schema.ToolCall{call("2", consts.ToolSearchTavily, `{"query":"  "}`)}, false)
	assert.Equal(t, consts.ToolStatusError, out[0].Extra[consts.ExtraStatus])
}

func TestAnalysisToolsCacheIntoState(t *testing.T) {
	ctx := context.Background()
	books := &fakeBooks{}
	trades := &fakeTrades{trades: []models.TradeEvent{
		{Side: "BUY", Size: 10, Price: 0.40, Timestamp: 1},
		{Side: "SELL", Size: 30, Price: 0.50, Timestamp: 2},
	}}
	news := &fakeNews{}
	k := &Toolkit{Books: books, Trades: trades, News: news, Tavily: &fakeSearch{name: "tavily"}, OrderbookDepth: 10, TradesLimit: 50}
	st := testState(t)

	r, err := k.AnalysisRegistry(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 5, r.Len())

	calls := []schema.ToolCall{
		call("1", consts.ToolMarketDetails, `{}`),
		call("2", consts.ToolMultiLevelBook, `{"token_id":"tok-yes"}`),
		call("3", consts.ToolHistoricalTrends, `{}`),
		call("4", consts.ToolMarketTrades, `{"limit":1}`),
		call("5", consts.ToolExternalNews, `{"max_results":2}`),
	}
	out := r.Dispatch(ctx, calls, true)
	for _, m := range out {
		assert.Equal(t, consts.ToolStatusSuccess, m.Extra[consts.ExtraStatus], m.Content)
	}

	avail := st.DataAvailability()
	for name, ok := range avail {
		assert.True(t, ok, name)
	}
	require.NotNil(t, st.MarketDetails)
	assert.Len(t, st.MarketDetails.Outcomes, 2)
	assert.NotNil(t, st.CachedOrderbook("tok-yes"))
	assert.Equal(t, "Will it rain tomorrow?", st.HistoricalTrends.Query)
	assert.NotEmpty(t, st.HistoricalTrends.Context)

	var tr TradesOutput
	require.NoError(t, json.Unmarshal([]byte(out[3].Content), &tr))
	assert.Equal(t, 1, tr.Count)

	var nw NewsOutput
	require.NoError(t, json.Unmarshal([]byte(out[4].Content), &nw))
	assert.Equal(t, 2, nw.Count)

	// second round is served from the state cache
	tradeCalls, newsCalls := trades.calls.Load(), news.calls.Load()
	r.Dispatch(ctx, calls[2:], false)
	assert.Equal(t, tradeCalls, trades.calls.Load())
	assert.Equal(t, newsCalls, news.calls.Load())
}

func TestOrderbookToolRejectsForeignToken(t *testing.T) {
	ctx := context.Background()
	k := &Toolkit{Books: &fakeBooks{}}
	r, err := k.AnalysisRegistry(ctx, testState(t))
	require.NoError(t, err)
	out := r.Dispatch(ctx, []schema.ToolCall{call("1", consts.ToolMultiLevelBook, `{"token_id":"other"}`)}, false)
	assert.Equal(t, consts.ToolStatusError, out[0].Extra[consts.ExtraStatus])
}

func TestMarketDetailsSoftFailsPerToken(t *testing.T) {
	ctx := context.Background()
	k := &Toolkit{Books: &fakeBooks{fail: map[string]bool{"tok-no": true}}}
	d := buildDetails(ctx, k, testState(t).MarketData)
	require.Len(t, d.Outcomes, 2)
	assert.True(t, d.Outcomes[0].BestBid.Valid)
	assert.False(t, d.Outcomes[1].BestBid.Valid)
	assert.Equal(t, "No", d.Outcomes[1].Outcome)
}

func TestComputeTrends(t *testing.T) {
	tr := ComputeTrends([]models.TradeEvent{
		{Side: "SELL", Size: 30, Price: 0.50, Timestamp: 2},
		{Side: "BUY", Size: 10, Price: 0.40, Timestamp: 1},
	})
	assert.Equal(t, 2, tr.TradeCount)
	assert.Equal(t, 0.40, tr.FirstPrice)
	assert.Equal(t, 0.50, tr.LastPrice)
	assert.InDelta(t, 0.10, tr.PriceChange, 1e-9)
	assert.Equal(t, 40.0, tr.TotalVolume)
	assert.Equal(t, 10.0, tr.BuyVolume)
	assert.Equal(t, 30.0, tr.SellVolume)
	assert.InDelta(t, 0.475, tr.VWAP, 1e-9)
	assert.Equal(t, 0.50, tr.HighPrice)
	assert.Equal(t, 0.40, tr.LowPrice)

	empty := ComputeTrends(nil)
	assert.Equal(t, 0, empty.TradeCount)
}

func TestNewToolkitSkipsSearchWithoutKeys(t *testing.T) {
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.TavilyAPIKey = ""
	cfg.ExaAPIKey = "exa-key"

	k := NewToolkit(cfg)
	assert.NotNil(t, k.Markets)
	assert.NotNil(t, k.Books)
	assert.Nil(t, k.Tavily)
	assert.NotNil(t, k.Exa)
	assert.Equal(t, cfg.OrderbookDepth, k.OrderbookDepth)

	r, err := k.ResearchRegistry(context.Background(), testState(t))
	require.NoError(t, err)
	assert.False(t, r.Has(consts.ToolSearchTavily))
	assert.True(t, r.Has(consts.ToolSearchExa))
}
