package primary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"alttext/internal/models"
	"alttext/internal/store"
)

// --- Run Store Implementation ---

// SaveRun inserts a new run record holding list as the output of pipeline/step.
func (s *StoreImpl) SaveRun(ctx context.Context, pipeline, step string, list models.TaskList) (*models.RunRecord, error) {
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
	query := `INSERT INTO batch_runs (id, pipeline, step, tasks, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.Exec(ctx, query, rec.ID, pipeline, step, payload, rec.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to save run for %s/%s: %w", pipeline, step, err)
	}
	log.WithFields(log.Fields{"run_id": rec.ID, "pipeline": pipeline, "step": step, "tasks": len(list.Tasks)}).Debug("Saved run")
	return rec, nil
}

// LatestRun returns the most recently saved run of pipeline/step.
func (s *StoreImpl) LatestRun(ctx context.Context, pipeline, step string) (*models.RunRecord, error) {
	query := `SELECT id, pipeline, step, tasks, created_at FROM batch_runs
		WHERE pipeline = $1 AND step = $2 ORDER BY seq DESC LIMIT 1`
	rec, err := scanRun(s.db.QueryRow(ctx, query, pipeline, step))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no run for %s/%s: %w", pipeline, step, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load latest run for %s/%s: %w", pipeline, step, err)
	}
	return rec, nil
}

// ListRuns returns stored runs, newest first.
func (s *StoreImpl) ListRuns(ctx context.Context, limit, offset int) ([]*models.RunRecord, error) {
	query := `SELECT id, pipeline, step, tasks, created_at FROM batch_runs
		ORDER BY seq DESC LIMIT $1 OFFSET $2`
	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return runs, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return runs, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*models.RunRecord, error) {
	rec := &models.RunRecord{}
	var payload []byte
	if err := row.Scan(&rec.ID, &rec.Pipeline, &rec.Step, &payload, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &rec.Tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks of run %s: %w", rec.ID, err)
	}
	return rec, nil
}

// Ensure StoreImpl satisfies the RunStore interface
var _ store.RunStore = (*StoreImpl)(nil)
