package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/consts"
	"github.com/dyike/PolyCortex/internal/logging"
	"github.com/dyike/PolyCortex/internal/storage/sqlite"
	"github.com/dyike/PolyCortex/models"
)

// RunRecorder persists one workflow run: the node events streamed while it
// executes and, once it ends, the outcome and (optionally) the transcript.
type RunRecorder struct {
	store  *sqlite.Store
	run    models.RunRecord
	logger *logging.Logger

	events chan models.RunEvent
	once   sync.Once
	wg     sync.WaitGroup
}

func NewRunRecorder(ctx context.Context, store *sqlite.Store, run models.RunRecord) (*RunRecorder, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	run.Status = sqlite.StatusRunning
	if err := store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	r := &RunRecorder{
		store:  store,
		run:    run,
		logger: logging.FromContext(ctx).WithComponent("recorder").WithRun(run.ID),
		events: make(chan models.RunEvent, 256),
	}
	r.wg.Add(1)
	go r.loop()
	return r, nil
}

// Events is the channel to hand to the graph's logger callback.
func (r *RunRecorder) Events() chan<- models.RunEvent {
	return r.events
}

func (r *RunRecorder) loop() {
	defer r.wg.Done()
	ctx := context.Background()
	for ev := range r.events {
		if ev.RunID == "" {
			ev.RunID = r.run.ID
		}
		if err := r.store.InsertEvent(ctx, ev); err != nil {
			r.logger.Warn("record event", "kind", ev.Kind, "node", ev.Node, "error", err)
		}
	}
}

// Finish drains pending events and records how the run ended. out may be nil
// when runErr is set.
func (r *RunRecorder) Finish(ctx context.Context, out *models.OutputState, runErr error) error {
	r.Close()

	rec := RunRecordFor(r.run, out, runErr)
	if err := r.store.FinishRun(ctx, rec); err != nil {
		return err
	}
	if out != nil && len(out.Transcript) > 0 {
		if err := r.store.SaveMessages(ctx, r.run.ID, MessageRecords(r.run.ID, out.Transcript)); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting events. Safe to call more than once.
func (r *RunRecorder) Close() {
	r.once.Do(func() {
		close(r.events)
		r.wg.Wait()
	})
}

// RunRecordFor folds a run outcome into its persisted form.
func RunRecordFor(run models.RunRecord, out *models.OutputState, runErr error) models.RunRecord {
	rec := run
	switch {
	case runErr != nil:
		rec.Status = sqlite.StatusError
		rec.AbortReason = runErr.Error()
	case out == nil:
		rec.Status = sqlite.StatusError
	case out.Aborted:
		rec.Status = sqlite.StatusAborted
	default:
		rec.Status = sqlite.StatusDone
	}
	if out == nil {
		return rec
	}
	if out.Question != "" {
		rec.Question = out.Question
	}
	rec.Phase = string(out.Phase)
	rec.TradeDecision = string(out.TradeDecision)
	rec.Confidence = out.Confidence
	if out.AbortReason != "" {
		rec.AbortReason = out.AbortReason
	}
	// the transcript is stored row by row
	slim := *out
	slim.Transcript = nil
	if raw, err := json.Marshal(slim); err == nil {
		rec.Output = string(raw)
	}
	return rec
}

// MessageRecords flattens a transcript. Tool messages carry their status and
// reflection phase from Extra; assistant tool calls are kept as JSON.
func MessageRecords(runID string, msgs []*schema.Message) []models.MessageRecord {
	out := make([]models.MessageRecord, 0, len(msgs))
	for i, m := range msgs {
		if m == nil {
			continue
		}
		rec := models.MessageRecord{
			RunID:      runID,
			Seq:        i + 1,
			Role:       string(m.Role),
			ToolCallID: m.ToolCallID,
			Content:    m.Content,
		}
		if m.Extra != nil {
			rec.Status, _ = m.Extra[consts.ExtraStatus].(string)
			rec.Phase, _ = m.Extra[consts.ExtraPhase].(string)
			rec.ToolName, _ = m.Extra[consts.ExtraToolName].(string)
		}
		if len(m.ToolCalls) > 0 {
			if raw, err := json.Marshal(m.ToolCalls); err == nil {
				rec.ToolCalls = string(raw)
			}
			if rec.ToolName == "" && len(m.ToolCalls) == 1 {
				rec.ToolName = m.ToolCalls[0].Function.Name
			}
		}
		out = append(out, rec)
	}
	return out
}
