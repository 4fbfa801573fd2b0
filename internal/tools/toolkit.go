package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/dyike/PolyCortex/config"
	"github.com/dyike/PolyCortex/internal/dataflows"
	"github.com/dyike/PolyCortex/models"
)

// Toolkit holds the capability providers and builds the per-phase registries.
// Tools close over the run state so fetched data lands in its cache.
// They run while the graph node holds the state lock: reach the state through
// its Cached*/Store* methods, never through compose.ProcessState.
type Toolkit struct {
	Markets dataflows.MarketProvider
	Books   dataflows.OrderbookProvider
	Trades  dataflows.TradeProvider
	Tavily  dataflows.SearchProvider
	Exa     dataflows.SearchProvider
	News    dataflows.NewsProvider

	MaxSearchResults int
	OrderbookDepth   int
	TradesLimit      int
}

// NewToolkit wires the HTTP providers from cfg. Search providers without an
// API key are left out, which removes their tools.
func NewToolkit(cfg *config.Config) *Toolkit {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cache := dataflows.NewResponseCache(cfg.CacheDir, cfg.CacheTTLDuration(), cfg.CacheEnabled)
	opts := []dataflows.Option{
		dataflows.WithTimeout(cfg.CallTimeoutDuration()),
		dataflows.WithCache(cache),
	}

	k := &Toolkit{
		Markets:          dataflows.NewGammaClient(cfg.GammaBaseURL, opts...),
		Books:            dataflows.NewClobClient(cfg.ClobBaseURL, opts...),
		Trades:           dataflows.NewDataClient(cfg.DataBaseURL, opts...),
		News:             dataflows.NewNewsClient(cfg.NewsBaseURL, opts...),
		MaxSearchResults: cfg.MaxSearchResults,
		OrderbookDepth:   cfg.OrderbookDepth,
		TradesLimit:      cfg.TradesLimit,
	}
	if cfg.TavilyAPIKey != "" {
		k.Tavily = dataflows.NewTavilyClient(cfg.TavilyURL, cfg.TavilyAPIKey, opts...)
	}
	if cfg.ExaAPIKey != "" {
		k.Exa = dataflows.NewExaClient(cfg.ExaURL, cfg.ExaAPIKey, opts...)
	}
	return k
}

// ResearchRegistry exposes the two web search providers.
func (k *Toolkit) ResearchRegistry(ctx context.Context, st *models.WorkflowState) (*Registry, error) {
	var list []tool.InvokableTool
	if k.Tavily != nil {
		list = append(list, newTavilyTool(k))
	}
	if k.Exa != nil {
		list = append(list, newExaTool(k))
	}
	return NewRegistry(ctx, list...)
}

// AnalysisRegistry exposes the market microstructure and news tools.
func (k *Toolkit) AnalysisRegistry(ctx context.Context, st *models.WorkflowState) (*Registry, error) {
	if st.MarketData == nil {
		return nil, fmt.Errorf("analysis tools need a market snapshot")
	}
	var list []tool.InvokableTool
	if k.Books != nil {
		list = append(list, newMarketDetailsTool(k, st), newOrderbookTool(k, st))
	}
	if k.Trades != nil {
		list = append(list, newHistoricalTrendsTool(k, st), newMarketTradesTool(k, st))
	}
	if k.News != nil {
		list = append(list, newExternalNewsTool(k, st))
	}
	return NewRegistry(ctx, list...)
}

// TradeRegistry is empty: the trade phase only has its terminal tool.
func (k *Toolkit) TradeRegistry(ctx context.Context, st *models.WorkflowState) (*Registry, error) {
	return NewRegistry(ctx)
}

func (k *Toolkit) searchLimit(requested int) int {
	limit := k.MaxSearchResults
	if limit <= 0 {
		limit = 10
	}
	if requested > 0 && requested < limit {
		return requested
	}
	return limit
}
