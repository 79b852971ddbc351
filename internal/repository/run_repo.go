package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zetxtech/websole/internal/model"
)

// RunRepository provides data access for the program run history.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// RunStarted inserts a new run.
func (r *RunRepository) RunStarted(ctx context.Context, run *model.Run) error {
	query := `
		INSERT INTO runs (id, pid, command, started_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, run.ID, run.PID, run.Command, run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// RunEnded records how a run ended.
func (r *RunRepository) RunEnded(ctx context.Context, id string, endedAt time.Time, exitCode int, reason model.EndReason) error {
	query := `
		UPDATE runs
		SET ended_at = ?, exit_code = ?, end_reason = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, endedAt.UTC(), exitCode, reason, id)
	if err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrRunNotFound
	}

	return nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*model.Run, error) {
	query := `
		SELECT id, pid, command, started_at, ended_at, exit_code, end_reason
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, model.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRecent returns up to limit runs, newest first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]*model.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, pid, command, started_at, ended_at, exit_code, end_reason
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*model.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*model.Run, error) {
	run := &model.Run{}
	var endedAt sql.NullTime
	var exitCode sql.NullInt64
	var reason sql.NullString

	err := s.Scan(
		&run.ID,
		&run.PID,
		&run.Command,
		&run.StartedAt,
		&endedAt,
		&exitCode,
		&reason,
	)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		t := endedAt.Time
		run.EndedAt = &t
	}

	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}

	if reason.Valid {
		run.EndReason = model.EndReason(reason.String)
	}

	return run, nil
}
