package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Journal appends one row per run to PostgreSQL. Passwords are never stored.
type Journal struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.RunObserver = (*Journal)(nil)

// RunRecord is one journal row.
type RunRecord struct {
	RunID            string
	TaskID           string
	Account          string
	StartedAt        time.Time
	FinishedAt       time.Time
	Entered          bool
	Success          bool
	PasswordChanged  bool
	TwoFactor        bool
	Reason           string
	Warnings         []string
	NextDelayMinutes int
}

const (
	sqlCreateRuns = `
        CREATE TABLE IF NOT EXISTS warden_runs (
            run_id             UUID PRIMARY KEY,
            task_id            TEXT NOT NULL,
            account            TEXT NOT NULL,
            started_at         TIMESTAMPTZ NOT NULL,
            finished_at        TIMESTAMPTZ NOT NULL,
            entered            BOOLEAN NOT NULL,
            success            BOOLEAN NOT NULL,
            password_changed   BOOLEAN NOT NULL,
            two_factor         BOOLEAN NOT NULL,
            reason             TEXT NOT NULL,
            warnings           TEXT[] NOT NULL DEFAULT '{}',
            next_delay_minutes INTEGER NOT NULL
        );
    `
	sqlInsertRun = `
        INSERT INTO warden_runs (run_id, task_id, account, started_at, finished_at, entered, success,
            password_changed, two_factor, reason, warnings, next_delay_minutes)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (run_id) DO NOTHING;
    `
	sqlRecentRuns = `
        SELECT run_id, task_id, account, started_at, finished_at, entered, success,
            password_changed, two_factor, reason, warnings, next_delay_minutes
        FROM warden_runs
        WHERE task_id = $1
        ORDER BY started_at DESC
        LIMIT $2;
    `
)

// New creates a journal and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Journal, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{pool: pool, log: logger.Named("journal")}, nil
}

// Connect opens a pgx pool for url, creates the schema when missing and
// returns the journal with a close function for the pool.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Journal, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	j, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := j.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return j, pool.Close, nil
}

// EnsureSchema creates the runs table if it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, sqlCreateRuns); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// Record converts a run report into its journal row.
func Record(report schemas.RunReport) RunRecord {
	warnings := make([]string, 0, len(report.Outcome.Warnings))
	for _, w := range report.Outcome.Warnings {
		warnings = append(warnings, w.String())
	}
	reason := ""
	if report.Entered && !report.Outcome.Success {
		reason = report.Outcome.Reason.String()
	}
	return RunRecord{
		RunID:            report.RunID,
		TaskID:           report.TaskID,
		Account:          report.Account,
		StartedAt:        report.StartedAt.UTC(),
		FinishedAt:       report.FinishedAt.UTC(),
		Entered:          report.Entered,
		Success:          report.Outcome.Success,
		PasswordChanged:  report.Outcome.PasswordChanged,
		TwoFactor:        report.Outcome.TwoFactor,
		Reason:           reason,
		Warnings:         warnings,
		NextDelayMinutes: report.Schedule.NextDelayMinutes,
	}
}

// RecordRun appends report to the journal.
func (j *Journal) RecordRun(ctx context.Context, report schemas.RunReport) error {
	r := Record(report)
	_, err := j.pool.Exec(ctx, sqlInsertRun,
		r.RunID, r.TaskID, r.Account, r.StartedAt, r.FinishedAt, r.Entered, r.Success,
		r.PasswordChanged, r.TwoFactor, r.Reason, r.Warnings, r.NextDelayMinutes,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.RunID, err)
	}
	return nil
}

// RunCompleted records the report, logging instead of failing the scheduler.
func (j *Journal) RunCompleted(ctx context.Context, report schemas.RunReport) {
	if err := j.RecordRun(ctx, report); err != nil {
		j.log.Error("Failed to journal run.", zap.String("run_id", report.RunID), zap.Error(err))
	}
}

// RecentRuns returns the latest runs of taskID, newest first.
func (j *Journal) RecentRuns(ctx context.Context, taskID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.pool.Query(ctx, sqlRecentRuns, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(
			&r.RunID, &r.TaskID, &r.Account, &r.StartedAt, &r.FinishedAt, &r.Entered, &r.Success,
			&r.PasswordChanged, &r.TwoFactor, &r.Reason, &r.Warnings, &r.NextDelayMinutes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
