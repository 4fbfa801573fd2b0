package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/config"
	"github.com/dyike/PolyCortex/consts"
	"github.com/dyike/PolyCortex/internal/storage/sqlite"
	"github.com/dyike/PolyCortex/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRecorderPersistsEventsAndOutcome(t *testing.T) {
	ctx := context.Background()
	st := tempStore(t)

	rec, err := NewRunRecorder(ctx, st, models.RunRecord{ID: "run-1", MarketID: "123", Question: "Q?"})
	require.NoError(t, err)

	rec.Events() <- models.RunEvent{Kind: "start", Node: "init_run"}
	rec.Events() <- models.RunEvent{Kind: "end", Node: "init_run"}

	call := schema.ToolCall{ID: "c1", Function: schema.FunctionCall{Name: consts.ToolSubmitResearch, Arguments: "{}"}}
	out := &models.OutputState{
		MarketID:      "123",
		Phase:         models.PhaseDone,
		TradeDecision: models.SideNoTrade,
		Confidence:    0.4,
		Transcript: []*schema.Message{
			schema.UserMessage("Analyze"),
			schema.AssistantMessage("", []schema.ToolCall{call}),
			{Role: schema.Tool, ToolCallID: "c1", Content: "fine", Extra: map[string]any{
				consts.ExtraStatus:   consts.ToolStatusSuccess,
				consts.ExtraToolName: consts.ToolSubmitResearch,
				consts.ExtraPhase:    "research",
			}},
		},
	}
	require.NoError(t, rec.Finish(ctx, out, nil))
	rec.Close()

	run, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, sqlite.StatusDone, run.Status)
	assert.Equal(t, "NO_TRADE", run.TradeDecision)

	var stored models.OutputState
	require.NoError(t, json.Unmarshal([]byte(run.Output), &stored))
	assert.Empty(t, stored.Transcript)

	events, err := st.RunEvents(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, events, 2)

	msgs, err := st.RunMessages(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, consts.ToolSubmitResearch, msgs[1].ToolName)
	assert.Contains(t, msgs[1].ToolCalls, "c1")
	assert.Equal(t, "research", msgs[2].Phase)
	assert.Equal(t, consts.ToolStatusSuccess, msgs[2].Status)
}

func TestRunRecordForStatuses(t *testing.T) {
	base := models.RunRecord{ID: "r"}

	rec := RunRecordFor(base, nil, errors.New("judge broke"))
	assert.Equal(t, sqlite.StatusError, rec.Status)
	assert.Equal(t, "judge broke", rec.AbortReason)

	rec = RunRecordFor(base, &models.OutputState{Aborted: true, AbortReason: "budget", Phase: models.PhaseAnalysis}, nil)
	assert.Equal(t, sqlite.StatusAborted, rec.Status)
	assert.Equal(t, "budget", rec.AbortReason)
	assert.Equal(t, "analysis", rec.Phase)

	rec = RunRecordFor(base, &models.OutputState{Phase: models.PhaseDone, TradeDecision: models.SideBuy}, nil)
	assert.Equal(t, sqlite.StatusDone, rec.Status)
}

func TestSharedReopensOnPathChange(t *testing.T) {
	t.Cleanup(func() { _ = CloseShared() })
	dir := t.TempDir()

	cfg := &config.Config{DBPath: filepath.Join(dir, "a.db")}
	a1, err := Shared(cfg)
	require.NoError(t, err)
	a2, err := Shared(cfg)
	require.NoError(t, err)
	assert.Same(t, a1, a2)

	cfg.DBPath = filepath.Join(dir, "b.db")
	b, err := Shared(cfg)
	require.NoError(t, err)
	assert.NotSame(t, a1, b)

	_, err = Shared(&config.Config{})
	assert.ErrorIs(t, err, ErrDBPathNotConfigured)
}
