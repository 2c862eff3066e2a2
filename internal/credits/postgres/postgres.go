package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/strandlabs/hairstyle-gateway/internal/credits"
)

// Store implements credits.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed credit ledger using the provided DSN and
// connection pool settings.
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
CREATE TABLE IF NOT EXISTS credit_balance (
	user_id TEXT PRIMARY KEY,
	balance BIGINT NOT NULL DEFAULT 0 CHECK(balance >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS credit_transaction (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	amount BIGINT NOT NULL,
	type TEXT NOT NULL CHECK(type IN ('generation','refund','purchase','signup_bonus','admin_adjustment')),
	description TEXT,
	reference_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_credit_transaction_user_created ON credit_transaction(user_id, created_at DESC, id DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_transaction_refund_ref ON credit_transaction(reference_id) WHERE type = 'refund';
CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_transaction_signup ON credit_transaction(user_id) WHERE type = 'signup_bonus';
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

// Balance returns the current balance for the user, 0 when no row exists.
func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, errors.New("user id required")
	}
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM credit_balance WHERE user_id = $1`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Debit atomically subtracts amount where the balance covers it and appends the
// matching negative transaction.
func (s *Store) Debit(ctx context.Context, userID string, amount int64, description, referenceID string) (int64, error) {
	if userID == "" {
		return 0, errors.New("user id required")
	}
	if amount <= 0 {
		return 0, fmt.Errorf("invalid debit amount %d", amount)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	err = tx.QueryRowContext(ctx, `
UPDATE credit_balance
SET balance = balance - $1, updated_at = NOW()
WHERE user_id = $2 AND balance >= $1
RETURNING balance`, amount, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, credits.ErrInsufficientFunds
	}
	if err != nil {
		return 0, err
	}

	if err := insertTransaction(ctx, tx, userID, -amount, credits.TypeGeneration, description, referenceID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return balance, nil
}

// Credit adds amount unconditionally, creating the balance row when absent.
func (s *Store) Credit(ctx context.Context, userID string, amount int64, typ credits.TransactionType, description, referenceID string) (int64, error) {
	if userID == "" {
		return 0, errors.New("user id required")
	}
	if amount <= 0 {
		return 0, fmt.Errorf("invalid credit amount %d", amount)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	balance, err := upsertBalance(ctx, tx, userID, amount)
	if err != nil {
		return 0, err
	}
	if err := insertTransaction(ctx, tx, userID, amount, typ, description, referenceID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return balance, nil
}

// Refund credits amount back for a generation record, at most once per record.
func (s *Store) Refund(ctx context.Context, userID string, amount int64, description, referenceID string) (int64, bool, error) {
	if userID == "" {
		return 0, false, errors.New("user id required")
	}
	if referenceID == "" {
		return 0, false, errors.New("refund requires a reference id")
	}
	if amount <= 0 {
		return 0, false, fmt.Errorf("invalid refund amount %d", amount)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertTransaction(ctx, tx, userID, amount, credits.TypeRefund, description, referenceID); err != nil {
		if isUniqueViolation(err) {
			_ = tx.Rollback()
			balance, berr := s.Balance(ctx, userID)
			return balance, false, berr
		}
		return 0, false, err
	}
	balance, err := upsertBalance(ctx, tx, userID, amount)
	if err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

// GrantSignupBonus credits the signup bonus at most once per user.
func (s *Store) GrantSignupBonus(ctx context.Context, userID string, amount int64) (int64, bool, error) {
	if userID == "" {
		return 0, false, errors.New("user id required")
	}
	if amount <= 0 {
		return 0, false, fmt.Errorf("invalid bonus amount %d", amount)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertTransaction(ctx, tx, userID, amount, credits.TypeSignupBonus, "Signup bonus", ""); err != nil {
		if isUniqueViolation(err) {
			_ = tx.Rollback()
			balance, berr := s.Balance(ctx, userID)
			return balance, false, berr
		}
		return 0, false, err
	}
	balance, err := upsertBalance(ctx, tx, userID, amount)
	if err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

// ListTransactions returns entries newest first.
func (s *Store) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]credits.Transaction, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, amount, type, description, reference_id, created_at
FROM credit_transaction
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []credits.Transaction
	for rows.Next() {
		var t credits.Transaction
		var typ string
		var description, reference sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &typ, &description, &reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = credits.TransactionType(typ)
		t.Description = description.String
		t.ReferenceID = reference.String
		entries = append(entries, t)
	}
	return entries, rows.Err()
}

func upsertBalance(ctx context.Context, tx *sql.Tx, userID string, amount int64) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `
INSERT INTO credit_balance(user_id, balance) VALUES($1, $2)
ON CONFLICT(user_id) DO UPDATE SET balance = credit_balance.balance + EXCLUDED.balance, updated_at = NOW()
RETURNING balance`, userID, amount).Scan(&balance)
	return balance, err
}

func insertTransaction(ctx context.Context, tx *sql.Tx, userID string, amount int64, typ credits.TransactionType, description, referenceID string) error {
	var reference interface{}
	if referenceID != "" {
		reference = referenceID
	}
	_, err := tx.ExecContext(ctx, `
INSERT INTO credit_transaction(user_id, amount, type, description, reference_id)
VALUES($1, $2, $3, $4, $5)`,
		userID,
		amount,
		string(typ),
		credits.Truncate(description, credits.DescriptionMaxLen),
		reference,
	)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
