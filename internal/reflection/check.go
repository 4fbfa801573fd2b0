package reflection

import (
	"fmt"
	"strings"

	"github.com/dyike/PolyCortex/models"
	"github.com/shopspring/decimal"
)

// CheckTrade runs the deterministic field-level rules on a trade candidate
// and returns every violated constraint. An empty result means the trade is
// structurally legal for the current positions and funds.
func CheckTrade(st *models.WorkflowState, t *models.TradeInfo) []string {
	if t == nil {
		return []string{"trade decision is missing"}
	}
	var v []string

	side, err := models.ParseSide(t.Side)
	if err != nil {
		v = append(v, fmt.Sprintf("side must be one of BUY, SELL, NO_TRADE, got %q", t.Side))
	}
	if strings.TrimSpace(t.TokenID) == "" {
		v = append(v, "token_id is required")
	} else if st.MarketData != nil && !st.MarketData.HasToken(t.TokenID) {
		v = append(v, fmt.Sprintf("token_id %s is not an outcome token of market %s", t.TokenID, st.MarketID))
	}
	if t.MarketID != "" && t.MarketID != st.MarketID {
		v = append(v, fmt.Sprintf("market_id %s does not match market %s", t.MarketID, st.MarketID))
	}
	if strings.TrimSpace(t.Reason) == "" {
		v = append(v, "reason is required")
	}
	if t.Confidence == nil {
		v = append(v, "confidence is required")
	} else if c := *t.Confidence; c < 0 || c > 1 {
		v = append(v, fmt.Sprintf("confidence must be between 0 and 1, got %v", c))
	}
	if t.Price < 0 || t.Price > 1 {
		v = append(v, fmt.Sprintf("price must be between 0 and 1, got %v", t.Price))
	}
	if t.Size == nil {
		return append(v, "size is required")
	}

	size := decimal.NewFromFloat(*t.Size)
	if size.IsNegative() {
		v = append(v, fmt.Sprintf("size must not be negative, got %v", *t.Size))
	}
	switch side {
	case models.SideNoTrade:
		if !size.IsZero() {
			v = append(v, fmt.Sprintf("NO_TRADE requires size 0, got %v", *t.Size))
		}
	case models.SideBuy:
		funds := decimal.NewFromFloat(st.AvailableFunds)
		if !size.IsPositive() {
			v = append(v, "BUY requires a size greater than 0")
		}
		if size.GreaterThan(funds) {
			v = append(v, fmt.Sprintf("BUY size %v exceeds available funds %v", *t.Size, st.AvailableFunds))
		}
	case models.SideSell:
		held := st.Positions[t.TokenID]
		if held <= 0 {
			v = append(v, fmt.Sprintf("SELL requires a position in token %s, none is held", t.TokenID))
			break
		}
		if !size.IsPositive() {
			v = append(v, "SELL requires a size greater than 0")
		}
		if size.GreaterThan(decimal.NewFromFloat(held)) {
			v = append(v, fmt.Sprintf("SELL size %v exceeds held position %v", *t.Size, held))
		}
	}
	return v
}
