// Package sqlite provides a SQLite implementation of the checkpoint and event stores.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/infrastructure/config"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// Repository implements ports.CheckpointStore, ports.EventLog and ports.RunCatalog using SQLite.
type Repository struct {
	db   *sql.DB
	path string
}

// NewRepository creates a new SQLite repository.
func NewRepository(cfg config.SQLiteConfig) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Every connection to :memory: opens a fresh database
	if cfg.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable foreign keys for referential integrity
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &Repository{
		db:   db,
		path: cfg.Path,
	}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// EnsureSchema creates the database schema if it doesn't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	-- Simulation runs
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		nodes INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Network snapshots (one per run and step)
	CREATE TABLE IF NOT EXISTS checkpoints (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		step INTEGER NOT NULL,
		time REAL NOT NULL,
		individuals INTEGER NOT NULL,
		relationships INTEGER NOT NULL,
		data TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(run_id, step)
	);

	-- Relationship event log
	CREATE TABLE IF NOT EXISTS relationship_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		step INTEGER NOT NULL,
		time REAL NOT NULL,
		node_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		relationship_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		male_id INTEGER NOT NULL,
		female_id INTEGER NOT NULL,
		reason TEXT,
		details TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_events_run_kind ON relationship_events(run_id, kind);
	CREATE INDEX IF NOT EXISTS idx_events_relationship ON relationship_events(run_id, relationship_id);
	`

	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// SaveRun saves or updates a run.
func (r *Repository) SaveRun(ctx context.Context, run *entities.Run) error {
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = timeNow()
	}
	query := `
		INSERT INTO runs (id, seed, steps, nodes, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			seed = excluded.seed,
			steps = excluded.steps,
			nodes = excluded.nodes
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		int64(run.Seed),
		run.Steps,
		run.Nodes,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// FindRun finds a run by its ID. Returns nil if the run does not exist.
func (r *Repository) FindRun(ctx context.Context, runID string) (*entities.Run, error) {
	query := `
		SELECT id, seed, steps, nodes, created_at
		FROM runs
		WHERE id = ?
	`
	row := r.db.QueryRowContext(ctx, query, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs, most recent first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]entities.Run, error) {
	query := `
		SELECT id, seed, steps, nodes, created_at
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []entities.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*entities.Run, error) {
	var run entities.Run
	var seed int64
	if err := s.Scan(&run.ID, &seed, &run.Steps, &run.Nodes, &run.CreatedAt); err != nil {
		return nil, err
	}
	run.Seed = uint64(seed)
	return &run, nil
}

// SaveCheckpoint stores a snapshot, replacing any snapshot of the same run and step.
func (r *Repository) SaveCheckpoint(ctx context.Context, cp *entities.SimulationCheckpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	query := `
		INSERT INTO checkpoints (run_id, step, time, individuals, relationships, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET
			time = excluded.time,
			individuals = excluded.individuals,
			relationships = excluded.relationships,
			data = excluded.data
	`
	_, err = r.db.ExecContext(ctx, query,
		cp.RunID,
		cp.Step,
		cp.Time,
		len(cp.Individuals),
		len(cp.Relationships),
		string(data),
		timeNow(),
	)
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the snapshot of a step, or the latest one when step is negative.
// Returns nil if no snapshot matches.
func (r *Repository) LoadCheckpoint(ctx context.Context, runID string, step int64) (*entities.SimulationCheckpoint, error) {
	var row *sql.Row
	if step < 0 {
		row = r.db.QueryRowContext(ctx,
			`SELECT data FROM checkpoints WHERE run_id = ? ORDER BY step DESC LIMIT 1`, runID)
	} else {
		row = r.db.QueryRowContext(ctx,
			`SELECT data FROM checkpoints WHERE run_id = ? AND step = ?`, runID, step)
	}

	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning checkpoint: %w", err)
	}

	var cp entities.SimulationCheckpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, fmt.Errorf("unmarshaling checkpoint: %w", err)
	}
	return &cp, nil
}

// ListCheckpointSteps returns the checkpointed steps of a run in ascending order.
func (r *Repository) ListCheckpointSteps(ctx context.Context, runID string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT step FROM checkpoints WHERE run_id = ? ORDER BY step ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	var steps []int64
	for rows.Next() {
		var step int64
		if err := rows.Scan(&step); err != nil {
			return nil, fmt.Errorf("scanning checkpoint step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// RecordEvents appends events to the log in a single transaction.
func (r *Repository) RecordEvents(ctx context.Context, events []entities.RelationshipEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relationship_events
			(run_id, step, time, node_id, kind, relationship_id, type, male_id, female_id, reason, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing event insert: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		ev := &events[i]

		var reason sql.NullString
		if ev.Kind == entities.EventRelationshipTerminated {
			reason = sql.NullString{String: ev.Reason.String(), Valid: true}
		}

		var details sql.NullString
		if len(ev.Details) > 0 {
			data, err := json.Marshal(ev.Details)
			if err != nil {
				return fmt.Errorf("marshaling event details: %w", err)
			}
			details = sql.NullString{String: string(data), Valid: true}
		}

		createdAt := ev.CreatedAt
		if createdAt.IsZero() {
			createdAt = timeNow()
		}

		if _, err := stmt.ExecContext(ctx,
			ev.RunID,
			ev.Step,
			ev.Time,
			int64(ev.NodeID),
			string(ev.Kind),
			int64(ev.RelationshipID),
			ev.Type.String(),
			int64(ev.MaleID),
			int64(ev.FemaleID),
			reason,
			details,
			createdAt,
		); err != nil {
			return fmt.Errorf("recording %s event: %w", ev.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing events: %w", err)
	}
	return nil
}

// ListEvents returns the most recent events of a run, newest first.
func (r *Repository) ListEvents(ctx context.Context, runID string, limit int) ([]entities.RelationshipEvent, error) {
	query := `
		SELECT id, run_id, step, time, node_id, kind, relationship_id, type, male_id, female_id, reason, details, created_at
		FROM relationship_events
		WHERE run_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}
	return r.queryEvents(ctx, query, runID, limit)
}

// ListRelationshipEvents returns the events of one relationship in the order they were recorded.
func (r *Repository) ListRelationshipEvents(ctx context.Context, runID string, relID entities.Suid) ([]entities.RelationshipEvent, error) {
	query := `
		SELECT id, run_id, step, time, node_id, kind, relationship_id, type, male_id, female_id, reason, details, created_at
		FROM relationship_events
		WHERE run_id = ? AND relationship_id = ?
		ORDER BY id ASC
	`
	return r.queryEvents(ctx, query, runID, int64(relID))
}

// queryEvents is a helper to execute event log queries.
func (r *Repository) queryEvents(ctx context.Context, query string, args ...any) ([]entities.RelationshipEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []entities.RelationshipEvent
	for rows.Next() {
		var ev entities.RelationshipEvent
		var nodeID, relID, maleID, femaleID int64
		var kind, relType string
		var reason, details sql.NullString

		if err := rows.Scan(
			&ev.ID,
			&ev.RunID,
			&ev.Step,
			&ev.Time,
			&nodeID,
			&kind,
			&relID,
			&relType,
			&maleID,
			&femaleID,
			&reason,
			&details,
			&ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		ev.NodeID = entities.Suid(nodeID)
		ev.Kind = entities.EventKind(kind)
		ev.RelationshipID = entities.Suid(relID)
		ev.MaleID = entities.Suid(maleID)
		ev.FemaleID = entities.Suid(femaleID)
		if err := ev.Type.UnmarshalText([]byte(relType)); err != nil {
			return nil, fmt.Errorf("scanning event type: %w", err)
		}
		if reason.Valid {
			if err := ev.Reason.UnmarshalText([]byte(reason.String)); err != nil {
				return nil, fmt.Errorf("scanning event reason: %w", err)
			}
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &ev.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling details: %w", err)
			}
		}

		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountEventsByKind returns event totals for a run.
func (r *Repository) CountEventsByKind(ctx context.Context, runID string) (map[entities.EventKind]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM relationship_events WHERE run_id = ? GROUP BY kind`, runID)
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	defer rows.Close()

	counts := make(map[entities.EventKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scanning event count: %w", err)
		}
		counts[entities.EventKind(kind)] = n
	}
	return counts, rows.Err()
}

// DeleteRun deletes a run with its checkpoints and events.
func (r *Repository) DeleteRun(ctx context.Context, runID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}
