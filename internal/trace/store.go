package trace

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/strata/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store provides durable storage for dispatch traces. SQLite with WAL mode
// so a run can be inspected while it is still being written.
type Store struct {
	db *sql.DB
}

// Open creates or opens the trace database at path. Idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trace store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect trace store: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent step appends.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun registers a run. Duplicate IDs are silently ignored so a
// crashed run can be resumed.
func (s *Store) BeginRun(ctx context.Context, runID, machine string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, machine) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, runID, machine)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// WriteStep appends one step. Idempotent on (run_id, seq): a replayed
// write of an identical step is a no-op.
func (s *Store) WriteStep(ctx context.Context, runID string, step Step) error {
	payload, err := json.Marshal(orEmpty(step.Payload))
	if err != nil {
		return fmt.Errorf("write step: marshal payload: %w", err)
	}
	firings, err := json.Marshal(step.Firings)
	if err != nil {
		return fmt.Errorf("write step: marshal firings: %w", err)
	}
	active, err := json.Marshal(orEmpty(step.Active))
	if err != nil {
		return fmt.Errorf("write step: marshal active: %w", err)
	}
	preActive, err := json.Marshal(orEmptyIDs(step.PreActive))
	if err != nil {
		return fmt.Errorf("write step: marshal pre_active: %w", err)
	}
	activeIDs, err := json.Marshal(orEmptyIDs(step.ActiveIDs))
	if err != nil {
		return fmt.Errorf("write step: marshal active_ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO steps (run_id, seq, event_id, event, payload, disposition, firings, pre_active, active_ids, active, queue_len, fault)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		step.Seq,
		int64(step.EventID),
		step.Event,
		string(payload),
		string(step.Disposition),
		string(firings),
		string(preActive),
		string(activeIDs),
		string(active),
		step.QueueLen,
		step.Fault,
	)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}
	return nil
}

// ReadRun loads every step of a run in seq order.
func (s *Store) ReadRun(ctx context.Context, runID string) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, event_id, event, payload, disposition, firings, pre_active, active_ids, active, queue_len, fault
		FROM steps WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read run: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var (
			step                     Step
			eventID                  int64
			payload, firings, active string
			preActive, activeIDs     string
			disposition              string
		)
		if err := rows.Scan(&step.Seq, &eventID, &step.Event, &payload, &disposition,
			&firings, &preActive, &activeIDs, &active, &step.QueueLen, &step.Fault); err != nil {
			return nil, fmt.Errorf("read run: scan: %w", err)
		}
		step.EventID = model.EventID(eventID)
		step.Disposition = Disposition(disposition)
		if err := json.Unmarshal([]byte(payload), &step.Payload); err != nil {
			return nil, fmt.Errorf("read run: payload: %w", err)
		}
		if err := json.Unmarshal([]byte(firings), &step.Firings); err != nil {
			return nil, fmt.Errorf("read run: firings: %w", err)
		}
		if err := json.Unmarshal([]byte(preActive), &step.PreActive); err != nil {
			return nil, fmt.Errorf("read run: pre_active: %w", err)
		}
		if err := json.Unmarshal([]byte(activeIDs), &step.ActiveIDs); err != nil {
			return nil, fmt.Errorf("read run: active_ids: %w", err)
		}
		if err := json.Unmarshal([]byte(active), &step.Active); err != nil {
			return nil, fmt.Errorf("read run: active: %w", err)
		}
		if len(step.Payload) == 0 {
			step.Payload = nil
		}
		if len(step.PreActive) == 0 {
			step.PreActive = nil
		}
		if len(step.ActiveIDs) == 0 {
			step.ActiveIDs = nil
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read run: %w", err)
	}
	return steps, nil
}

// RunInfo is one stored run listing.
type RunInfo struct {
	ID      string
	Machine string
}

// ListRuns returns stored runs newest first. The created_at timestamp has
// second resolution; ties fall back to reverse insertion order.
func (s *Store) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, machine FROM runs ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		if err := rows.Scan(&info.ID, &info.Machine); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// StoreSink adapts a Store into a Sink for one run. Errors are collected
// rather than interrupting dispatch; callers check Err after the run.
type StoreSink struct {
	store *Store
	runID string
	err   error
}

// NewStoreSink binds a store to a run ID.
func NewStoreSink(store *Store, runID string) *StoreSink {
	return &StoreSink{store: store, runID: runID}
}

func (s *StoreSink) Record(step Step) {
	if s.err != nil {
		return
	}
	s.err = s.store.WriteStep(context.Background(), s.runID, step)
}

// Err returns the first write failure, if any.
func (s *StoreSink) Err() error {
	return s.err
}

// orEmpty and orEmptyIDs keep stored JSON arrays non-null.
func orEmpty(vals []string) []string {
	if vals == nil {
		return []string{}
	}
	return vals
}

func orEmptyIDs(ids []model.StateID) []model.StateID {
	if ids == nil {
		return []model.StateID{}
	}
	return ids
}
