package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dyike/PolyCortex/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)

	require.NoError(t, st.CreateRun(ctx, models.RunRecord{ID: "r1", MarketID: "123", Question: "Will it rain?"}))

	got, err := st.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, "Will it rain?", got.Question)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, st.FinishRun(ctx, models.RunRecord{
		ID:            "r1",
		Status:        StatusDone,
		Phase:         "done",
		TradeDecision: "BUY",
		Confidence:    0.7,
		Output:        `{"market_id":"123"}`,
	}))

	got, err = st.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
	assert.Equal(t, "BUY", got.TradeDecision)
	assert.InDelta(t, 0.7, got.Confidence, 1e-9)
	assert.Equal(t, "Will it rain?", got.Question, "empty question must not overwrite")

	missing, err := st.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, st.FinishRun(ctx, models.RunRecord{ID: "nope", Status: StatusDone}))
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, st.CreateRun(ctx, models.RunRecord{ID: id, MarketID: "m"}))
	}

	runs, err := st.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
}

func TestSaveMessagesReplaces(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)
	require.NoError(t, st.CreateRun(ctx, models.RunRecord{ID: "r", MarketID: "m"}))

	require.NoError(t, st.SaveMessages(ctx, "r", []models.MessageRecord{
		{Seq: 1, Role: "user", Content: "first"},
	}))
	require.NoError(t, st.SaveMessages(ctx, "r", []models.MessageRecord{
		{Seq: 1, Role: "user", Content: "hello"},
		{Seq: 2, Role: "tool", ToolName: "submit_research", Phase: "research", Status: "success", Content: "ok"},
	}))

	msgs, err := st.RunMessages(ctx, "r")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "submit_research", msgs[1].ToolName)
	assert.Equal(t, "research", msgs[1].Phase)

	assert.Error(t, st.SaveMessages(ctx, "r", []models.MessageRecord{{Seq: 1}}))
}

func TestEventsAreOrdered(t *testing.T) {
	ctx := context.Background()
	st := openTemp(t)
	require.NoError(t, st.CreateRun(ctx, models.RunRecord{ID: "r", MarketID: "m"}))
	require.NoError(t, st.InsertEvent(ctx, models.RunEvent{RunID: "r", Kind: "start", Node: "init_run"}))
	require.NoError(t, st.InsertEvent(ctx, models.RunEvent{RunID: "r", Kind: "end", Node: "init_run"}))

	events, err := st.RunEvents(ctx, "r")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "start", events[0].Kind)
	assert.Equal(t, "end", events[1].Kind)

	// foreign key to runs
	assert.Error(t, st.InsertEvent(ctx, models.RunEvent{RunID: "ghost", Kind: "start"}))
}
