// Package storage persists simulation runs: a SQLite journal written
// WAL-first once per round, and JSON snapshots for inspection and recovery.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/itrapnauskas/market-simulator/internal/domain"
	"github.com/itrapnauskas/market-simulator/internal/event"

	_ "github.com/glebarez/go-sqlite"
)

// ErrRunNotFound is returned when a run id has no journal rows.
var ErrRunNotFound = errors.New("run not found")

// RunInfo is one row of the runs table.
type RunInfo struct {
	ID          string
	Seed        uint64
	Fingerprint string
	StartedAt   int64
	FinishedAt  int64
	Days        int
}

// RunStore handles persistent storage of runs and their events in SQLite.
type RunStore struct {
	db *sql.DB
}

// NewRunStore opens (or creates) the journal with WAL mode enabled.
func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection keeps pragmas and WAL ordering deterministic.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			seed TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0,
			days INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL REFERENCES runs(id),
			seq INTEGER NOT NULL,
			type INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			payload BLOB NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (run_id, seq)
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &RunStore{db: db}, nil
}

// BeginRun registers the run and journals its start event in one transaction.
func (s *RunStore) BeginRun(ctx context.Context, ev *event.RunStartedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin run: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO runs (id, seed, fingerprint, started_at) VALUES (?, ?, ?, ?)",
		ev.RunID, strconv.FormatUint(ev.Seed, 10), ev.Fingerprint, int64(ev.Ts),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO events (run_id, seq, type, ts, payload) VALUES (?, ?, ?, ?, ?)",
		ev.RunID, ev.Seq, ev.GetType(), int64(ev.Ts), payload,
	); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return tx.Commit()
}

// SaveEvent stores an event in the database.
func (s *RunStore) SaveEvent(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO events (run_id, seq, type, ts, payload) VALUES (?, ?, ?, ?, ?)",
		ev.GetRunID(), ev.GetSeq(), ev.GetType(), int64(ev.GetTs()), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// FinishRun journals the closing event and stamps the runs row.
func (s *RunStore) FinishRun(ctx context.Context, ev *event.RunFinishedEvent) error {
	if err := s.SaveEvent(ctx, ev); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, days = ? WHERE id = ?",
		int64(ev.Ts), ev.Days, ev.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// UpsertMetadata saves a key-value pair to the metadata table.
func (s *RunStore) UpsertMetadata(ctx context.Context, key, value string, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, ts,
	)
	return err
}

// GetMetadata retrieves a value from the metadata table.
func (s *RunStore) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// GetLastSeq returns the highest event sequence number of a run.
// Returns 0 if the run has no events.
func (s *RunStore) GetLastSeq(ctx context.Context, runID string) (uint64, error) {
	var lastSeq sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(seq) FROM events WHERE run_id = ?", runID).Scan(&lastSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to get last seq: %w", err)
	}
	if !lastSeq.Valid {
		return 0, nil
	}
	return uint64(lastSeq.Int64), nil
}

// Run returns one row of the runs table.
func (s *RunStore) Run(ctx context.Context, runID string) (RunInfo, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, seed, fingerprint, started_at, finished_at, days FROM runs WHERE id = ?", runID)
	info, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return info, err
}

// ListRuns returns all runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, seed, fingerprint, started_at, finished_at, days FROM runs ORDER BY started_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		info, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunInfo, error) {
	var info RunInfo
	var seed string
	if err := sc.Scan(&info.ID, &seed, &info.Fingerprint, &info.StartedAt, &info.FinishedAt, &info.Days); err != nil {
		return RunInfo{}, err
	}
	v, err := strconv.ParseUint(seed, 10, 64)
	if err != nil {
		return RunInfo{}, fmt.Errorf("failed to parse seed of run %s: %w", info.ID, err)
	}
	info.Seed = v
	return info, nil
}

// LoadStates rebuilds a run's MarketState series from its round events, in day order.
func (s *RunStore) LoadStates(ctx context.Context, runID string) ([]domain.MarketState, error) {
	var states []domain.MarketState
	err := s.scanEvents(ctx, runID, event.EvRoundCleared, func(payload []byte) error {
		var ev event.RoundClearedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return err
		}
		states = append(states, ev.State)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		if _, err := s.Run(ctx, runID); err != nil {
			return nil, err
		}
	}
	return states, nil
}

// LoadPhaseChanges returns the manipulator transitions of a run.
func (s *RunStore) LoadPhaseChanges(ctx context.Context, runID string) ([]event.PhaseChangedEvent, error) {
	var out []event.PhaseChangedEvent
	err := s.scanEvents(ctx, runID, event.EvPhaseChanged, func(payload []byte) error {
		var ev event.PhaseChangedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return err
		}
		out = append(out, ev)
		return nil
	})
	return out, err
}

// LoadRunStarted returns the start record of a run, including its config.
func (s *RunStore) LoadRunStarted(ctx context.Context, runID string) (*event.RunStartedEvent, error) {
	var found *event.RunStartedEvent
	err := s.scanEvents(ctx, runID, event.EvRunStarted, func(payload []byte) error {
		var ev event.RunStartedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return err
		}
		found = &ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return found, nil
}

func (s *RunStore) scanEvents(ctx context.Context, runID string, typ event.Type, fn func([]byte) error) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, payload FROM events WHERE run_id = ? AND type = ? ORDER BY seq ASC",
		runID, typ,
	)
	if err != nil {
		return fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var payload []byte
		if err := rows.Scan(&seq, &payload); err != nil {
			return fmt.Errorf("failed to scan event: %w", err)
		}
		if err := fn(payload); err != nil {
			return fmt.Errorf("failed to unmarshal event %d: %w", seq, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration error: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}
