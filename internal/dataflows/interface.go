package dataflows

import (
	"context"

	"github.com/dyike/PolyCortex/models"
	"github.com/shopspring/decimal"
)

// MarketProvider resolves a market identifier to its snapshot.
type MarketProvider interface {
	FetchMarket(ctx context.Context, marketID string) (*models.MarketSnapshot, error)
}

// OrderbookProvider reads the CLOB for one outcome token.
type OrderbookProvider interface {
	Orderbook(ctx context.Context, tokenID string, depth int) (*models.Orderbook, error)
	// LastTradePrice returns an invalid NullDecimal when the token never traded.
	LastTradePrice(ctx context.Context, tokenID string) (decimal.NullDecimal, error)
}

// TradeProvider lists recent fills of a market.
type TradeProvider interface {
	MarketTrades(ctx context.Context, conditionID string, limit int) ([]models.TradeEvent, error)
}

// SearchProvider is a web search backend. Tavily and Exa both implement it.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error)
}

// NewsProvider returns recent headlines for a query.
type NewsProvider interface {
	News(ctx context.Context, query string, maxResults int) ([]models.NewsArticle, error)
}

var (
	_ MarketProvider    = (*GammaClient)(nil)
	_ OrderbookProvider = (*ClobClient)(nil)
	_ TradeProvider     = (*DataClient)(nil)
	_ SearchProvider    = (*TavilyClient)(nil)
	_ SearchProvider    = (*ExaClient)(nil)
	_ NewsProvider      = (*NewsClient)(nil)
)
