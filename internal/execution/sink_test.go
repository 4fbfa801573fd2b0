package execution

import (
	"context"
	"strings"
	"testing"

	"github.com/dyike/PolyCortex/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func accepted(t *models.TradeInfo) *models.OutputState {
	return &models.OutputState{
		MarketID:      "123",
		Phase:         models.PhaseDone,
		TradeDecision: models.Side(strings.ToUpper(t.Side)),
		TradeInfo:     t,
	}
}

func TestPlanForBuy(t *testing.T) {
	plan, err := PlanFor(accepted(&models.TradeInfo{Side: "BUY", TokenID: "tok", Size: f(4), Price: 0.5, Reason: "edge", Confidence: f(0.7)}))
	require.NoError(t, err)
	assert.Equal(t, "123", plan.MarketID)
	assert.Equal(t, models.SideBuy, plan.Side)
	assert.Equal(t, "4", plan.Size.String())
	assert.Equal(t, "4", plan.Notional.String())
	assert.InDelta(t, 0.7, plan.Confidence, 1e-9)
}

func TestPlanForSellUsesPrice(t *testing.T) {
	plan, err := PlanFor(accepted(&models.TradeInfo{Side: "SELL", TokenID: "tok", Size: f(10), Price: 0.25, Reason: "exit"}))
	require.NoError(t, err)
	assert.Equal(t, "2.5", plan.Notional.String())
	assert.Contains(t, plan.String(), "SELL 10.00 of tok @ 0.2500")
}

func TestPlanForNothingToExecute(t *testing.T) {
	_, err := PlanFor(accepted(&models.TradeInfo{Side: "NO_TRADE", Size: f(0)}))
	assert.ErrorIs(t, err, ErrNothingToExecute)

	out := accepted(&models.TradeInfo{Side: "BUY", TokenID: "tok", Size: f(1)})
	out.Aborted = true
	_, err = PlanFor(out)
	assert.ErrorIs(t, err, ErrNothingToExecute)

	_, err = PlanFor(&models.OutputState{Phase: models.PhaseTrade})
	assert.ErrorIs(t, err, ErrNothingToExecute)
}

func TestDryRunSink(t *testing.T) {
	plan, err := PlanFor(accepted(&models.TradeInfo{Side: "BUY", TokenID: "tok", Size: f(1)}))
	require.NoError(t, err)

	r, err := NewDryRunSink().Submit(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(r.OrderID, "dry-"))
	assert.Equal(t, "simulated", r.Status)
	assert.Same(t, plan, r.Plan)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewDryRunSink().Submit(ctx, plan)
	assert.ErrorIs(t, err, context.Canceled)
}
