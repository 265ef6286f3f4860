// Package local is a single-file SQLite run store for running without a
// database server.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"alttext/internal/models"
	"alttext/internal/store"
)

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database '%s': %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS batch_runs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		pipeline TEXT NOT NULL,
		step TEXT NOT NULL,
		tasks TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_batch_runs_pipeline_step ON batch_runs(pipeline, step, seq);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create batch_runs schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts a new run record holding list as the output of pipeline/step.
func (s *Store) SaveRun(ctx context.Context, pipeline, step string, list models.TaskList) (*models.RunRecord, error) {
	for i := range list.Tasks {
		if err := list.Tasks[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrInvalidTaskSet, err)
		}
	}
	payload, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task list: %w", err)
	}

	rec := &models.RunRecord{
		ID:        uuid.New(),
		Pipeline:  pipeline,
		Step:      step,
		Tasks:     list.Clone(),
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batch_runs (id, pipeline, step, tasks, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID.String(), pipeline, step, string(payload), rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save run for %s/%s: %w", pipeline, step, err)
	}
	log.WithFields(log.Fields{"run_id": rec.ID, "pipeline": pipeline, "step": step, "tasks": len(list.Tasks)}).Debug("Saved run")
	return rec, nil
}

// LatestRun returns the most recently saved run of pipeline/step.
func (s *Store) LatestRun(ctx context.Context, pipeline, step string) (*models.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pipeline, step, tasks, created_at FROM batch_runs
		WHERE pipeline = ? AND step = ? ORDER BY seq DESC LIMIT 1`,
		pipeline, step,
	)
	rec, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no run for %s/%s: %w", pipeline, step, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load latest run for %s/%s: %w", pipeline, step, err)
	}
	return rec, nil
}

// ListRuns returns stored runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]*models.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pipeline, step, tasks, created_at FROM batch_runs ORDER BY seq DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return runs, err
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return runs, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.RunRecord, error) {
	var (
		rec       models.RunRecord
		id        string
		payload   string
		createdAt string
	)
	if err := row.Scan(&id, &rec.Pipeline, &rec.Step, &payload, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at of run %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(payload), &rec.Tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks of run %s: %w", id, err)
	}
	return &rec, nil
}

var _ store.RunStore = (*Store)(nil)
