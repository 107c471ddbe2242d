package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 5 * time.Second

const uniqueViolation = "23505"

type Repository interface {
	FindTransaction(ctx context.Context, provider, externalTransID string) (*Transaction, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	CommitPostback(ctx context.Context, c *Commit) (*CommitResult, error)
	RecordFailure(ctx context.Context, f *PostbackFailure) error
	ListFailures(ctx context.Context, filters FailureFilters) ([]PostbackFailure, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	ListEarnings(ctx context.Context, userID uuid.UUID, pagination Pagination) ([]Earning, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, pagination Pagination) ([]Transaction, error)
}

// LedgerRepository stores postback transactions, balances and earnings.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) FindTransaction(ctx context.Context, provider, externalTransID string) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var t Transaction
	err := r.db.GetContext(ctx2, &t, `
		SELECT id, user_id, provider, external_trans_id, amount, status, task_type, metadata, created_at
		FROM transactions
		WHERE provider = $1 AND external_trans_id = $2
	`, provider, externalTransID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &t, nil
}

func (r *LedgerRepository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u User
	err := r.db.GetContext(ctx2, &u, `
		SELECT id, email, role, balance, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// CommitPostback writes the transaction, balance delta, earning and impression
// atomically. A unique violation on (provider, external_trans_id) is reported
// as ErrDuplicateTransaction and nothing is written.
func (r *LedgerRepository) CommitPostback(ctx context.Context, c *Commit) (*CommitResult, error) {
	if c == nil || c.Transaction == nil {
		return nil, ErrInvalidCommit
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	t := c.Transaction
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	if err := r.insertTransaction(ctx2, tx, t); err != nil {
		return nil, err
	}

	var balance int64
	err = tx.GetContext(ctx2, &balance, `
		UPDATE users
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING balance
	`, t.UserID, c.BalanceDelta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user balance: %w", err)
	}

	if c.Earning != nil {
		if err := r.insertEarning(ctx2, tx, c.Earning); err != nil {
			return nil, err
		}
	}

	if c.Impression != nil {
		if err := r.upsertImpression(ctx2, tx, c.Impression); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CommitResult{TransactionID: t.ID, Balance: balance}, nil
}

func (r *LedgerRepository) insertTransaction(ctx context.Context, tx *sqlx.Tx, t *Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, user_id, provider, external_trans_id, amount, status, task_type, metadata, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.UserID, t.Provider, t.ExternalTransID, t.Amount, t.Status, t.TaskType, t.Metadata, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *LedgerRepository) insertEarning(ctx context.Context, tx *sqlx.Tx, e *Earning) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO earnings (id, user_id, amount, source, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.UserID, e.Amount, e.Source, e.Description, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert earning: %w", err)
	}
	return nil
}

// upsertImpression settles the newest pending impression of the same ad type
// on a completed task, or inserts a new row when the client never tracked one.
// Chargebacks always get their own row so they never claim a task still in
// progress.
func (r *LedgerRepository) upsertImpression(ctx context.Context, tx *sqlx.Tx, imp *AdImpression) error {
	if imp.Status != ImpressionCompleted {
		return r.insertImpression(ctx, tx, imp)
	}

	var id uuid.UUID
	err := tx.GetContext(ctx, &id, `
		UPDATE ad_impressions
		SET status = $3, revenue = $4, metadata = COALESCE($5, metadata), updated_at = NOW()
		WHERE id = (
			SELECT id FROM ad_impressions
			WHERE user_id = $1 AND ad_type = $2 AND status = 'pending'
			ORDER BY created_at DESC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id
	`, imp.UserID, imp.AdType, imp.Status, imp.Revenue, imp.Metadata)
	if err == nil {
		imp.ID = id
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update impression: %w", err)
	}
	return r.insertImpression(ctx, tx, imp)
}

func (r *LedgerRepository) insertImpression(ctx context.Context, tx *sqlx.Tx, imp *AdImpression) error {
	if imp.ID == uuid.Nil {
		imp.ID = uuid.New()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ad_impressions (id, user_id, ad_type, ad_format, revenue, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, imp.ID, imp.UserID, imp.AdType, imp.AdFormat, imp.Revenue, imp.Status, imp.Metadata)
	if err != nil {
		return fmt.Errorf("insert impression: %w", err)
	}
	return nil
}

func (r *LedgerRepository) RecordFailure(ctx context.Context, f *PostbackFailure) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx2, `
		INSERT INTO postback_failures (
			id, provider, external_trans_id, user_ref, reason, detail, client_ip, payload, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, f.ID, f.Provider, f.ExternalTransID, f.UserRef, f.Reason, f.Detail, f.ClientIP, f.Payload, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert postback failure: %w", err)
	}
	return nil
}

func (r *LedgerRepository) ListFailures(ctx context.Context, filters FailureFilters) ([]PostbackFailure, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	base := `
		SELECT id, provider, external_trans_id, user_ref, reason, detail, client_ip, payload, created_at
		FROM postback_failures
		WHERE 1=1`
	args := make([]interface{}, 0, 6)
	idx := 1

	if filters.Provider != "" {
		base += fmt.Sprintf(" AND provider = $%d", idx)
		args = append(args, filters.Provider)
		idx++
	}
	if filters.Reason != "" {
		base += fmt.Sprintf(" AND reason = $%d", idx)
		args = append(args, filters.Reason)
		idx++
	}
	if filters.DateFrom != nil {
		base += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *filters.DateFrom)
		idx++
	}
	if filters.DateTo != nil {
		base += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, *filters.DateTo)
		idx++
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	base = strings.TrimSpace(base) + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, filters.Offset)

	failures := make([]PostbackFailure, 0)
	if err := r.db.SelectContext(ctx2, &failures, base, args...); err != nil {
		return nil, fmt.Errorf("list postback failures: %w", err)
	}
	return failures, nil
}

func (r *LedgerRepository) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var balance int64
	err := r.db.GetContext(ctx2, &balance, `SELECT balance FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func (r *LedgerRepository) ListEarnings(ctx context.Context, userID uuid.UUID, pagination Pagination) ([]Earning, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	earnings := make([]Earning, 0)
	err := r.db.SelectContext(ctx2, &earnings, `
		SELECT id, user_id, amount, source, description, created_at
		FROM earnings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, pagination.Limit, pagination.Offset)
	if err != nil {
		return nil, fmt.Errorf("list earnings: %w", err)
	}
	return earnings, nil
}

func (r *LedgerRepository) ListTransactions(ctx context.Context, userID uuid.UUID, pagination Pagination) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	transactions := make([]Transaction, 0)
	err := r.db.SelectContext(ctx2, &transactions, `
		SELECT id, user_id, provider, external_trans_id, amount, status, task_type, metadata, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, pagination.Limit, pagination.Offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return transactions, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
