package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/strandlabs/hairstyle-gateway/internal/history"
)

// Store implements history.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed generation history store using the provided
// DSN and connection pool settings.
func New(dsn string, maxOpen, maxIdle, lifetimeMinutes, idleTimeMinutes int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if lifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(lifetimeMinutes) * time.Minute)
	}
	if idleTimeMinutes > 0 {
		db.SetConnMaxIdleTime(time.Duration(idleTimeMinutes) * time.Minute)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS generation_history (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	prompt TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('processing','completed','failed')),
	provider TEXT,
	credit_cost BIGINT NOT NULL,
	processing_time_ms BIGINT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_generation_history_user_created ON generation_history(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_generation_history_status ON generation_history(status, created_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a record at status processing and returns its id.
func (s *Store) Create(ctx context.Context, userID, prompt string, cost int64) (string, error) {
	if userID == "" {
		return "", errors.New("user id required")
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO generation_history(id, user_id, prompt, status, credit_cost)
VALUES($1, $2, $3, $4, $5)`,
		id, userID, strings.TrimSpace(prompt), string(history.StatusProcessing), cost)
	if err != nil {
		return "", err
	}
	return id, nil
}

// MarkCompleted writes the terminal completed state. Only records still in
// processing transition; a second terminal write is a no-op.
func (s *Store) MarkCompleted(ctx context.Context, id, provider string, elapsedMs int64) error {
	if id == "" {
		return errors.New("record id required")
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE generation_history
SET status = $1, provider = $2, processing_time_ms = $3, completed_at = NOW()
WHERE id = $4 AND status = $5`,
		string(history.StatusCompleted), provider, elapsedMs, id, string(history.StatusProcessing))
	return err
}

// MarkFailed writes the terminal failed state with a truncated reason.
func (s *Store) MarkFailed(ctx context.Context, id, errorMessage string) error {
	if id == "" {
		return errors.New("record id required")
	}
	if len(errorMessage) > history.ErrorMessageMaxLen {
		errorMessage = errorMessage[:history.ErrorMessageMaxLen]
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE generation_history
SET status = $1, error_message = $2, completed_at = NOW()
WHERE id = $3 AND status = $4`,
		string(history.StatusFailed), errorMessage, id, string(history.StatusProcessing))
	return err
}

// ListRecent returns a user's records newest first.
func (s *Store) ListRecent(ctx context.Context, userID string, limit int) ([]history.Record, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, prompt, status, provider, credit_cost, processing_time_ms, error_message, created_at, completed_at
FROM generation_history
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListStaleProcessing returns records still processing created before the cutoff.
func (s *Store) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]history.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, prompt, status, provider, credit_cost, processing_time_ms, error_message, created_at, completed_at
FROM generation_history
WHERE status = $1 AND created_at < $2
ORDER BY created_at`, string(history.StatusProcessing), olderThan.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]history.Record, error) {
	var records []history.Record
	for rows.Next() {
		var r history.Record
		var status string
		var provider, errMsg sql.NullString
		var elapsed sql.NullInt64
		var completedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.UserID, &r.Prompt, &status, &provider, &r.CreditCost, &elapsed, &errMsg, &r.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		r.Status = history.Status(status)
		r.Provider = provider.String
		r.ProcessingTimeMs = elapsed.Int64
		r.ErrorMessage = errMsg.String
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
