package repository

import (
	"context"
	"errors"
	"fmt"

	"sparks/database"
	"sparks/models"

	"github.com/jackc/pgx/v5"
)

const balanceColumns = `user_id, available, escrow, lifetime_earned, lifetime_spent, created_at, updated_at`

// BalanceRepository implements service.BalanceRepository on Postgres
type BalanceRepository struct {
	q queryable
}

// NewBalanceRepository creates a balance repository on the pool
func NewBalanceRepository(db *database.DB) *BalanceRepository {
	return &BalanceRepository{q: db.Pool}
}

func newBalanceRepository(tx queryable) *BalanceRepository {
	return &BalanceRepository{q: tx}
}

// GetOrCreate inserts the default balance if missing and returns the row locked
func (r *BalanceRepository) GetOrCreate(ctx context.Context, userID int64) (*models.Balance, error) {
	insert := `
		INSERT INTO balances (user_id, available, escrow)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.q.Exec(ctx, insert, userID, models.InitialGrant); err != nil {
		return nil, fmt.Errorf("failed to create balance for user %d: %w", userID, err)
	}

	query := `SELECT ` + balanceColumns + ` FROM balances WHERE user_id = $1 FOR UPDATE`
	balance, err := scanBalance(r.q.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance for user %d: %w", userID, err)
	}
	if balance == nil {
		return nil, fmt.Errorf("balance for user %d vanished after insert", userID)
	}
	return balance, nil
}

// Get returns the balance or nil when the user has none
func (r *BalanceRepository) Get(ctx context.Context, userID int64) (*models.Balance, error) {
	query := `SELECT ` + balanceColumns + ` FROM balances WHERE user_id = $1`
	balance, err := scanBalance(r.q.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for user %d: %w", userID, err)
	}
	return balance, nil
}

// Credit adds to available and lifetime earned
func (r *BalanceRepository) Credit(ctx context.Context, userID int64, amount int64) (*models.Balance, error) {
	query := `
		UPDATE balances
		SET available = available + $2,
		    lifetime_earned = lifetime_earned + $2,
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + balanceColumns
	return r.update(ctx, "credit", query, userID, amount)
}

// Debit removes from available when enough is there
func (r *BalanceRepository) Debit(ctx context.Context, userID int64, amount int64) (*models.Balance, error) {
	query := `
		UPDATE balances
		SET available = available - $2,
		    lifetime_spent = lifetime_spent + $2,
		    updated_at = NOW()
		WHERE user_id = $1 AND available >= $2
		RETURNING ` + balanceColumns
	return r.update(ctx, "debit", query, userID, amount)
}

// MoveToEscrow moves amount from available into escrow
func (r *BalanceRepository) MoveToEscrow(ctx context.Context, userID int64, amount int64) (*models.Balance, error) {
	query := `
		UPDATE balances
		SET available = available - $2,
		    escrow = escrow + $2,
		    updated_at = NOW()
		WHERE user_id = $1 AND available >= $2
		RETURNING ` + balanceColumns
	return r.update(ctx, "move to escrow", query, userID, amount)
}

// ReleaseFromEscrow moves amount from escrow back to available
func (r *BalanceRepository) ReleaseFromEscrow(ctx context.Context, userID int64, amount int64) (*models.Balance, error) {
	query := `
		UPDATE balances
		SET escrow = escrow - $2,
		    available = available + $2,
		    updated_at = NOW()
		WHERE user_id = $1 AND escrow >= $2
		RETURNING ` + balanceColumns
	return r.update(ctx, "release escrow", query, userID, amount)
}

// ForfeitEscrow removes amount from escrow for good
func (r *BalanceRepository) ForfeitEscrow(ctx context.Context, userID int64, amount int64) (*models.Balance, error) {
	query := `
		UPDATE balances
		SET escrow = escrow - $2,
		    lifetime_spent = lifetime_spent + $2,
		    updated_at = NOW()
		WHERE user_id = $1 AND escrow >= $2
		RETURNING ` + balanceColumns
	return r.update(ctx, "forfeit escrow", query, userID, amount)
}

func (r *BalanceRepository) update(ctx context.Context, action, query string, userID, amount int64) (*models.Balance, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("failed to %s for user %d: amount %d must be positive", action, userID, amount)
	}
	balance, err := scanBalance(r.q.QueryRow(ctx, query, userID, amount))
	if err != nil {
		return nil, fmt.Errorf("failed to %s for user %d: %w", action, userID, err)
	}
	return balance, nil
}

func scanBalance(row pgx.Row) (*models.Balance, error) {
	var b models.Balance
	err := row.Scan(
		&b.UserID,
		&b.Available,
		&b.Escrow,
		&b.LifetimeEarned,
		&b.LifetimeSpent,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
