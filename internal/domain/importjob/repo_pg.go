package importjob

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// jobRepoPG always talks to the pool, never to a transaction carried on the
// context.
type jobRepoPG struct{ pool *pgxpool.Pool }

func NewJobRepoPG(pool *pgxpool.Pool) Repository {
	return &jobRepoPG{pool: pool}
}

const runCols = `id, started_at, finished_at, status, new_count, updated_count, skipped_count,
	error_count, new_persons, updated_persons, skipped_persons`

func scanRun(row pgx.Row) (*JobRun, error) {
	var r JobRun
	err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status,
		&r.NewCount, &r.UpdatedCount, &r.SkippedCount, &r.ErrorCount,
		&r.NewPersons, &r.UpdatedPersons, &r.SkippedPersons)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (r *jobRepoPG) CreateRun(ctx context.Context, run *JobRun) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO import_job_run (started_at, status) VALUES ($1, $2)
		RETURNING id`, run.StartedAt, run.Status).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("insert job run: %w", err)
	}
	return nil
}

func (r *jobRepoPG) UpdateRun(ctx context.Context, run *JobRun) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE import_job_run SET finished_at=$2, status=$3,
			new_count=$4, updated_count=$5, skipped_count=$6, error_count=$7,
			new_persons=$8, updated_persons=$9, skipped_persons=$10
		WHERE id = $1`,
		run.ID, run.FinishedAt, run.Status,
		run.NewCount, run.UpdatedCount, run.SkippedCount, run.ErrorCount,
		run.NewPersons, run.UpdatedPersons, run.SkippedPersons)
	if err != nil {
		return fmt.Errorf("update job run %d: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *jobRepoPG) GetRun(ctx context.Context, id int64) (*JobRun, error) {
	return scanRun(r.pool.QueryRow(ctx, `SELECT `+runCols+` FROM import_job_run WHERE id = $1`, id))
}

func (r *jobRepoPG) ListRuns(ctx context.Context, limit, offset int) ([]*JobRun, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM import_job_run`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+runCols+` FROM import_job_run
		ORDER BY started_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*JobRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, run)
	}
	return items, total, rows.Err()
}

func (r *jobRepoPG) AddError(ctx context.Context, rec *ErrorRecord) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO import_error (job_run_id, error_time, note_guid, person_id, client_guid, message, stacktrace)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		rec.JobRunID, rec.ErrorTime, rec.NoteGUID, rec.PersonID, rec.ClientGUID, rec.Message, rec.Detail,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert import error: %w", err)
	}
	return nil
}

func (r *jobRepoPG) ListErrors(ctx context.Context, runID int64, limit, offset int) ([]*ErrorRecord, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM import_error WHERE job_run_id = $1`, runID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_run_id, error_time, note_guid, person_id, client_guid, message, stacktrace
		FROM import_error WHERE job_run_id = $1
		ORDER BY id LIMIT $2 OFFSET $3`, runID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ErrorRecord
	for rows.Next() {
		var e ErrorRecord
		if err := rows.Scan(&e.ID, &e.JobRunID, &e.ErrorTime, &e.NoteGUID, &e.PersonID,
			&e.ClientGUID, &e.Message, &e.Detail); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, rows.Err()
}
