package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

// Ensure pgJobRepo implements repository.JobRepository.
var _ repository.JobRepository = (*pgJobRepo)(nil)

const jobColumns = `
	j.id, j.file_name, j.file_size, j.file_type, j.callback_url, j.status,
	j.progress, j.priority, j.locked_at, j.created_at, j.updated_at,
	(r.job_id IS NOT NULL), r.processed_at, r.output_format, r.duration, r.metadata`

const jobFrom = `FROM jobs j LEFT JOIN job_results r ON r.job_id = j.id`

type pgJobRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresJobRepository creates a new PostgreSQL-backed job repository.
func NewPostgresJobRepository(pool *pgxpool.Pool) repository.JobRepository {
	return &pgJobRepo{pool: pool}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return storeErr("migrate", err)
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("postgres: %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func (r *pgJobRepo) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, file_name, file_size, file_type, callback_url, status,
		                  progress, priority, locked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, query,
		job.ID, job.FileName, job.FileSize, job.FileType, job.CallbackURL, job.Status,
		job.Progress, job.Priority, job.LockedAt, now, now,
	)
	if err != nil {
		return storeErr("create job", err)
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

func (r *pgJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` ` + jobFrom + ` WHERE j.id = $1`

	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, storeErr("get job by id", err)
	}
	return job, nil
}

func (r *pgJobRepo) Update(ctx context.Context, job *domain.Job, expected domain.JobStatus) error {
	query := `
		UPDATE jobs
		SET status = $1, progress = $2, locked_at = $3, updated_at = $4
		WHERE id = $5 AND status = $6`

	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, query, job.Status, job.Progress, job.LockedAt, now, job.ID, expected)
	if err != nil {
		return storeErr("update job", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrStale(ctx, r.pool, job.ID)
	}
	job.UpdatedAt = now
	return nil
}

func (r *pgJobRepo) Complete(ctx context.Context, job *domain.Job, result *domain.JobResult) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeErr("begin complete", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = $1, progress = $2, locked_at = NULL, updated_at = $3
		WHERE id = $4 AND status = $5`,
		job.Status, job.Progress, now, job.ID, domain.StatusProcessing,
	)
	if err != nil {
		return storeErr("complete job", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrStale(ctx, tx, job.ID)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO job_results (job_id, processed_at, output_format, duration, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		job.ID, result.ProcessedAt, result.OutputFormat, result.Duration, result.Metadata,
	)
	if err != nil {
		return storeErr("insert job result", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit complete", err)
	}
	job.UpdatedAt = now
	job.Result = result
	return nil
}

func (r *pgJobRepo) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Job, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("j.status = $%d", len(args)))
	}
	if filter.FileType != "" {
		args = append(args, filter.FileType)
		conds = append(conds, fmt.Sprintf("j.file_type = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs j`+where, args...).Scan(&total); err != nil {
		return nil, 0, storeErr("count jobs", err)
	}

	query := fmt.Sprintf(`SELECT %s %s%s ORDER BY j.created_at DESC, j.id DESC LIMIT $%d OFFSET $%d`,
		jobColumns, jobFrom, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, filter.Limit, filter.Offset())...)
	if err != nil {
		return nil, 0, storeErr("list jobs", err)
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, 0, storeErr("list jobs", err)
	}
	return jobs, total, nil
}

func (r *pgJobRepo) ListStale(ctx context.Context, status domain.JobStatus, before time.Time, limit int) ([]*domain.Job, error) {
	column := "j.updated_at"
	if status == domain.StatusProcessing {
		column = "j.locked_at"
	}
	query := fmt.Sprintf(`SELECT %s %s WHERE j.status = $1 AND %s < $2 ORDER BY %s ASC LIMIT $3`,
		jobColumns, jobFrom, column, column)

	rows, err := r.pool.Query(ctx, query, status, before, limit)
	if err != nil {
		return nil, storeErr("list stale jobs", err)
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, storeErr("list stale jobs", err)
	}
	return jobs, nil
}

func (r *pgJobRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// missOrStale resolves a conditional write that touched no rows.
func (r *pgJobRepo) missOrStale(ctx context.Context, q querier, id uuid.UUID) error {
	var status domain.JobStatus
	err := q.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrJobNotFound
	}
	if err != nil {
		return storeErr("check job status", err)
	}
	return fmt.Errorf("%w: now %s", domain.ErrStaleState, status)
}

func collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job       domain.Job
		hasResult bool
		result    domain.JobResult
		metadata  []byte
	)
	err := row.Scan(
		&job.ID, &job.FileName, &job.FileSize, &job.FileType, &job.CallbackURL, &job.Status,
		&job.Progress, &job.Priority, &job.LockedAt, &job.CreatedAt, &job.UpdatedAt,
		&hasResult, &result.ProcessedAt, &result.OutputFormat, &result.Duration, &metadata,
	)
	if err != nil {
		return nil, err
	}
	if hasResult {
		result.JobID = job.ID
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &result.Metadata); err != nil {
				return nil, fmt.Errorf("decode result metadata: %w", err)
			}
		}
		job.Result = &result
	}
	return &job, nil
}
