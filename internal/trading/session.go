package trading

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cloudwego/eino/compose"
	"github.com/dyike/PolyCortex/internal/display"
	"github.com/dyike/PolyCortex/internal/errs"
	"github.com/dyike/PolyCortex/internal/execution"
	"github.com/dyike/PolyCortex/internal/graph"
	"github.com/dyike/PolyCortex/internal/logging"
	"github.com/dyike/PolyCortex/internal/storage"
	"github.com/dyike/PolyCortex/internal/storage/sqlite"
	"github.com/dyike/PolyCortex/models"
	"github.com/google/uuid"
)

// Runner is the compiled workflow; *graph.TradingGraph implements it.
type Runner interface {
	Propagate(ctx context.Context, in *models.InputState, opts ...compose.Option) (*models.OutputState, error)
}

// Result is what one session run produced.
type Result struct {
	RunID   string
	Output  *models.OutputState
	Receipt *execution.Receipt
}

type Option func(*Session)

// WithStore persists runs, events and (when kept) transcripts.
func WithStore(st *sqlite.Store) Option {
	return func(s *Session) { s.store = st }
}

// WithSink hands accepted BUY/SELL decisions to sink.
func WithSink(sink execution.Sink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithOutput renders the result to w when the run ends.
func WithOutput(w io.Writer) Option {
	return func(s *Session) { s.out = w }
}

// WithProgress is called for every node event while the run executes.
func WithProgress(fn func(models.RunEvent)) Option {
	return func(s *Session) { s.progress = fn }
}

// Session runs one market through the workflow and takes care of everything
// around it: run id, event streaming, persistence, display and execution.
type Session struct {
	runner   Runner
	store    *sqlite.Store
	sink     execution.Sink
	out      io.Writer
	progress func(models.RunEvent)
}

func NewSession(runner Runner, opts ...Option) (*Session, error) {
	if runner == nil {
		return nil, fmt.Errorf("session needs a workflow runner")
	}
	s := &Session{runner: runner}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Execute runs the workflow for in. Aborted runs are not errors; the error
// return is reserved for invalid input and fatal workflow failures.
func (s *Session) Execute(ctx context.Context, in *models.InputState) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	runID := uuid.NewString()
	logger := logging.FromContext(ctx).WithRun(runID)
	ctx = logging.IntoContext(ctx, logger)

	var recorder *storage.RunRecorder
	if s.store != nil {
		r, err := storage.NewRunRecorder(ctx, s.store, models.RunRecord{ID: runID, MarketID: in.MarketID})
		if err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
		recorder = r
		defer recorder.Close()
	}

	events := make(chan models.RunEvent, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			if s.progress != nil {
				s.progress(ev)
			}
			if recorder != nil {
				recorder.Events() <- ev
			}
		}
	}()

	cb := graph.NewLoggerCallback(runID, logger, events)
	out, runErr := s.runner.Propagate(ctx, in, compose.WithCallbacks(cb))
	close(events)
	wg.Wait()

	if recorder != nil {
		// persist even if the caller's context is already cancelled
		if err := recorder.Finish(context.WithoutCancel(ctx), out, runErr); err != nil {
			logger.Warn("persist run failed", "error", err)
		}
	}
	if runErr != nil {
		logger.Error("run failed", "category", errs.CategoryOf(runErr), "error", runErr)
		return nil, runErr
	}

	res := &Result{RunID: runID, Output: out}
	if s.sink != nil {
		plan, err := execution.PlanFor(out)
		switch {
		case errors.Is(err, execution.ErrNothingToExecute):
		case err != nil:
			logger.Warn("cannot build order plan", "error", err)
		default:
			receipt, err := s.sink.Submit(ctx, plan)
			if err != nil {
				logger.Warn("order submission failed", "error", err)
			}
			res.Receipt = receipt
		}
	}

	if s.out != nil {
		display.Result(s.out, runID, out, res.Receipt)
	}
	return res, nil
}
