package jobs

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

const (
	postgresJobsTableName    = "priority_jobs"
	postgresOperationTimeout = 10 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

type PostgresStore struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresStore{dsn: dsn, openDB: sql.Open}, nil
}

func (s *PostgresStore) ensureReady() error {
	if s == nil {
		return ErrInvalidInput
	}
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := `
			CREATE TABLE IF NOT EXISTS ` + postgresJobsTableName + ` (
				id TEXT PRIMARY KEY,
				suggestion_id TEXT NOT NULL UNIQUE,
				action TEXT NOT NULL,
				platform TEXT NOT NULL,
				new_priority DOUBLE PRECISION NOT NULL DEFAULT 0,
				reason TEXT,
				actor TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'queued',
				attempts INT NOT NULL DEFAULT 0,
				last_error TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = errors.Wrap(err, "create jobs table")
			return
		}
		indexQuery := `CREATE INDEX IF NOT EXISTS ` + postgresJobsTableName + `_status_created_idx
			ON ` + postgresJobsTableName + ` (status, created_at)`
		if _, err := db.ExecContext(ctx, indexQuery); err != nil {
			_ = db.Close()
			s.initErr = errors.Wrap(err, "create jobs index")
			return
		}
		s.db = db
	})
	return s.initErr
}

func (s *PostgresStore) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	if err := s.ensureReady(); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	// Duplicate deliveries must resolve to the existing job. The no-op
	// DO UPDATE makes the RETURNING clause yield a row either way.
	query := `
		INSERT INTO ` + postgresJobsTableName + `
			(id, suggestion_id, action, platform, new_priority, reason, actor, status, attempts)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, 'queued', 0)
		ON CONFLICT (suggestion_id) DO UPDATE SET suggestion_id = EXCLUDED.suggestion_id
		RETURNING id`
	var id string
	err := s.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		strings.TrimSpace(req.SuggestionID),
		string(req.Action),
		req.Platform,
		req.NewPriority,
		req.Reason,
		req.Actor,
	).Scan(&id)
	if err != nil {
		return "", errors.Wrap(err, "enqueue job")
	}
	return id, nil
}

func (s *PostgresStore) ListQueued(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 10
	}
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := `
		SELECT id, suggestion_id, action, platform, new_priority,
		       COALESCE(reason, ''), actor, status, attempts,
		       COALESCE(last_error, ''), created_at, updated_at
		FROM ` + postgresJobsTableName + `
		WHERE status = 'queued'
		ORDER BY created_at ASC
		LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list queued jobs")
	}
	defer rows.Close()

	out := make([]Job, 0, limit)
	for rows.Next() {
		var job Job
		if err := rows.Scan(
			&job.ID, &job.SuggestionID, &job.Action, &job.Platform, &job.NewPriority,
			&job.Reason, &job.Actor, &job.Status, &job.Attempts,
			&job.LastError, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan job row")
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Transition(ctx context.Context, id string, from, to Status, patch TransitionPatch) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, ErrInvalidInput
	}
	if err := s.ensureReady(); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := `
		UPDATE ` + postgresJobsTableName + `
		SET status = $3,
		    attempts = COALESCE($4, attempts),
		    last_error = COALESCE($5, last_error),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2`
	var attempts sql.NullInt64
	if patch.Attempts != nil {
		attempts = sql.NullInt64{Int64: int64(*patch.Attempts), Valid: true}
	}
	var lastError sql.NullString
	if patch.LastError != nil {
		lastError = sql.NullString{String: *patch.LastError, Valid: true}
	}
	result, err := s.db.ExecContext(ctx, query, id, string(from), string(to), attempts, lastError)
	if err != nil {
		return false, errors.Wrap(err, "transition job")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "transition rows affected")
	}
	return affected > 0, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Job, error) {
	if err := s.ensureReady(); err != nil {
		return Job{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := `
		SELECT id, suggestion_id, action, platform, new_priority,
		       COALESCE(reason, ''), actor, status, attempts,
		       COALESCE(last_error, ''), created_at, updated_at
		FROM ` + postgresJobsTableName + `
		WHERE id = $1`
	var job Job
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.SuggestionID, &job.Action, &job.Platform, &job.NewPriority,
		&job.Reason, &job.Actor, &job.Status, &job.Attempts,
		&job.LastError, &job.CreatedAt, &job.UpdatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, errors.Wrap(err, "get job")
	}
	return job, nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
