// Package execution turns an accepted trade decision into an order plan and
// hands it to a sink. Only a dry-run sink exists; nothing is sent to the
// exchange.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/PolyCortex/internal/logging"
	"github.com/dyike/PolyCortex/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNothingToExecute is returned for runs that did not end in BUY or SELL.
var ErrNothingToExecute = errors.New("no executable trade decision")

// OrderPlan is a fully-specified order instruction.
type OrderPlan struct {
	MarketID   string
	TokenID    string
	Side       models.Side
	Size       decimal.Decimal
	LimitPrice decimal.Decimal
	Notional   decimal.Decimal
	Confidence float64
	Reason     string
}

func (p *OrderPlan) String() string {
	price := "market"
	if p.LimitPrice.IsPositive() {
		price = p.LimitPrice.StringFixed(4)
	}
	return fmt.Sprintf("%s %s of %s @ %s (notional %s)",
		p.Side, p.Size.StringFixed(2), p.TokenID, price, p.Notional.StringFixed(2))
}

type Receipt struct {
	OrderID     string
	Status      string
	Plan        *OrderPlan
	SubmittedAt time.Time
}

type Sink interface {
	Submit(ctx context.Context, plan *OrderPlan) (*Receipt, error)
}

// PlanFor builds the order plan of an accepted run. Aborted runs and
// NO_TRADE decisions yield ErrNothingToExecute.
func PlanFor(out *models.OutputState) (*OrderPlan, error) {
	if !out.Accepted() || out.TradeInfo == nil {
		return nil, ErrNothingToExecute
	}
	side, err := models.ParseSide(out.TradeInfo.Side)
	if err != nil {
		return nil, err
	}
	if side == models.SideNoTrade {
		return nil, ErrNothingToExecute
	}

	t := out.TradeInfo
	size := decimal.NewFromFloat(t.SizeValue())
	if !size.IsPositive() {
		return nil, fmt.Errorf("trade size must be positive, got %s", size)
	}
	plan := &OrderPlan{
		MarketID:   firstNonEmpty(t.MarketID, out.MarketID),
		TokenID:    t.TokenID,
		Side:       side,
		Size:       size,
		LimitPrice: decimal.NewFromFloat(t.Price),
		Confidence: t.ConfidenceValue(),
		Reason:     strings.TrimSpace(t.Reason),
	}
	// BUY size is quoted in funds, SELL size in shares
	if side == models.SideBuy || plan.LimitPrice.IsZero() {
		plan.Notional = size
	} else {
		plan.Notional = size.Mul(plan.LimitPrice)
	}
	return plan, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// DryRunSink logs the plan and returns a simulated receipt.
type DryRunSink struct {
	now func() time.Time
}

func NewDryRunSink() *DryRunSink {
	return &DryRunSink{now: time.Now}
}

func (s *DryRunSink) Submit(ctx context.Context, plan *OrderPlan) (*Receipt, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := &Receipt{
		OrderID:     "dry-" + uuid.NewString(),
		Status:      "simulated",
		Plan:        plan,
		SubmittedAt: s.now().UTC(),
	}
	logging.FromContext(ctx).WithComponent("execution").Info("dry-run order",
		"order_id", r.OrderID,
		"market_id", plan.MarketID,
		"token_id", plan.TokenID,
		"side", plan.Side,
		"size", plan.Size.String(),
		"limit_price", plan.LimitPrice.String(),
		"notional", plan.Notional.String())
	return r, nil
}
