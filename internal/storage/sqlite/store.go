package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dyike/PolyCortex/consts"
	"github.com/dyike/PolyCortex/models"
	_ "modernc.org/sqlite"
)

const (
	StatusRunning = consts.State_Running
	StatusDone    = consts.State_Done
	StatusAborted = consts.State_Aborted
	StatusError   = consts.State_Error
)

// fixed width so created_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the run history database at dbPath.
// ":memory:" is accepted for tests.
func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// pragmas ride on the DSN so every pooled connection gets them
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(3000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps ":memory:" databases alive and serialises writes
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    market_id TEXT NOT NULL,
    question TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    phase TEXT NOT NULL DEFAULT '',
    trade_decision TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    abort_reason TEXT NOT NULL DEFAULT '',
    output TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    role TEXT NOT NULL,
    phase TEXT NOT NULL DEFAULT '',
    tool_name TEXT NOT NULL DEFAULT '',
    tool_call_id TEXT NOT NULL DEFAULT '',
    tool_calls TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    UNIQUE(run_id, seq)
);

CREATE TABLE IF NOT EXISTS run_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    node TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_run_seq ON messages(run_id, seq);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, id);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) CreateRun(ctx context.Context, run models.RunRecord) error {
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is required")
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	now := s.Now().Format(timeLayout)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, market_id, question, status, phase, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    market_id=excluded.market_id,
    status=excluded.status,
    updated_at=excluded.updated_at
`, run.ID, run.MarketID, run.Question, run.Status, run.Phase, now, now)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the final outcome of a run.
func (s *Store) FinishRun(ctx context.Context, run models.RunRecord) error {
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is required")
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE runs
SET question = CASE WHEN ? <> '' THEN ? ELSE question END,
    status = ?, phase = ?, trade_decision = ?, confidence = ?,
    abort_reason = ?, output = ?, updated_at = ?
WHERE id = ?
`, run.Question, run.Question, run.Status, run.Phase, run.TradeDecision, run.Confidence,
		run.AbortReason, run.Output, s.Now().Format(timeLayout), run.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("finish run: run %s not found", run.ID)
	}
	return nil
}

// SaveMessages replaces the stored conversation of a run.
func (s *Store) SaveMessages(ctx context.Context, runID string, msgs []models.MessageRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO messages (run_id, seq, role, phase, tool_name, tool_call_id, tool_calls, content, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare insert message: %w", err)
	}
	defer stmt.Close()

	now := s.Now().Format(timeLayout)
	for _, m := range msgs {
		if strings.TrimSpace(m.Role) == "" {
			return fmt.Errorf("message %d: role is required", m.Seq)
		}
		if _, err := stmt.ExecContext(ctx, runID, m.Seq, m.Role, m.Phase, m.ToolName, m.ToolCallID, m.ToolCalls, m.Content, m.Status, now); err != nil {
			return fmt.Errorf("insert message %d: %w", m.Seq, err)
		}
	}
	return tx.Commit()
}

func (s *Store) InsertEvent(ctx context.Context, ev models.RunEvent) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO run_events (run_id, kind, node, message, created_at)
VALUES (?, ?, ?, ?, ?)
`, ev.RunID, ev.Kind, ev.Node, ev.Message, s.Now().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

const runColumns = `id, market_id, question, status, phase, trade_decision, confidence, abort_reason, output, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (models.RunRecord, error) {
	var (
		rec                  models.RunRecord
		createdAt, updatedAt string
	)
	err := row.Scan(&rec.ID, &rec.MarketID, &rec.Question, &rec.Status, &rec.Phase, &rec.TradeDecision,
		&rec.Confidence, &rec.AbortReason, &rec.Output, &createdAt, &updatedAt)
	if err != nil {
		return rec, err
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	rec.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return rec, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs rows: %w", err)
	}
	return runs, nil
}

// GetRun returns nil without error when the run does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	rec, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ? LIMIT 1`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &rec, nil
}

func (s *Store) RunMessages(ctx context.Context, runID string) ([]models.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, run_id, seq, role, phase, tool_name, tool_call_id, tool_calls, content, status, created_at
FROM messages
WHERE run_id = ?
ORDER BY seq ASC
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.MessageRecord
	for rows.Next() {
		var (
			rec       models.MessageRecord
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Seq, &rec.Role, &rec.Phase, &rec.ToolName, &rec.ToolCallID,
			&rec.ToolCalls, &rec.Content, &rec.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		msgs = append(msgs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages rows: %w", err)
	}
	return msgs, nil
}

func (s *Store) RunEvents(ctx context.Context, runID string) ([]models.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, kind, node, message FROM run_events WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.RunEvent
	for rows.Next() {
		var ev models.RunEvent
		if err := rows.Scan(&ev.RunID, &ev.Kind, &ev.Node, &ev.Message); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
