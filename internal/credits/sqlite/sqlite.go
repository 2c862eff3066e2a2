package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/strandlabs/hairstyle-gateway/internal/credits"
)

// Store implements credits.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite credit ledger at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	// SQLite permits one writer at a time; serialising connections avoids
	// SQLITE_BUSY on the conditional debit under concurrent requests.
	db.SetMaxOpenConns(1)

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
	balance INTEGER NOT NULL DEFAULT 0 CHECK(balance >= 0),
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS credit_transaction (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	amount INTEGER NOT NULL,
	type TEXT NOT NULL CHECK(type IN ('generation','refund','purchase','signup_bonus','admin_adjustment')),
	description TEXT,
	reference_id TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM credit_balance WHERE user_id = ?`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Debit atomically subtracts amount where the balance covers it and appends the
// matching negative transaction. The conditional UPDATE is the concurrency
// primitive: of two simultaneous debits against one remaining credit, exactly
// one row update applies.
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
SET balance = balance - ?, updated_at = CURRENT_TIMESTAMP
WHERE user_id = ? AND balance >= ?
RETURNING balance`, amount, userID, amount).Scan(&balance)
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
// The partial unique index on refund reference ids makes retries harmless.
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
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`, userID, limit, offset)
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
INSERT INTO credit_balance(user_id, balance) VALUES(?, ?)
ON CONFLICT(user_id) DO UPDATE SET balance = balance + excluded.balance, updated_at = CURRENT_TIMESTAMP
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
VALUES(?, ?, ?, ?, ?)`,
		userID,
		amount,
		string(typ),
		credits.Truncate(description, credits.DescriptionMaxLen),
		reference,
	)
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
