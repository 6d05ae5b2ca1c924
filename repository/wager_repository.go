package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sparks/database"
	"sparks/models"

	"github.com/jackc/pgx/v5"
)

const wagerColumns = `id, opener_id, statement, odds_for, odds_against, status, outcome,
	total_for, total_against, opens_at, closes_at, settled_at, settled_by`

// WagerRepository implements service.WagerRepository, covering wagers
// and their participants.
type WagerRepository struct {
	q queryable
}

// NewWagerRepository creates a wager repository on the pool
func NewWagerRepository(db *database.DB) *WagerRepository {
	return &WagerRepository{q: db.Pool}
}

func newWagerRepository(tx queryable) *WagerRepository {
	return &WagerRepository{q: tx}
}

// Insert stores a new wager. A taken id yields false and no error.
func (r *WagerRepository) Insert(ctx context.Context, wager *models.Wager) (bool, error) {
	query := `
		INSERT INTO wagers (id, opener_id, statement, odds_for, odds_against, status, total_for, total_against, opens_at, closes_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.q.Exec(ctx, query,
		wager.ID,
		wager.OpenerID,
		wager.Statement,
		wager.OddsFor,
		wager.OddsAgainst,
		string(wager.Status),
		wager.TotalFor,
		wager.TotalAgainst,
		wager.OpensAt,
		wager.ClosesAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert wager %s: %w", wager.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByID returns the wager or nil
func (r *WagerRepository) GetByID(ctx context.Context, id string) (*models.Wager, error) {
	query := `SELECT ` + wagerColumns + ` FROM wagers WHERE id = $1`
	wager, err := scanWager(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get wager %s: %w", id, err)
	}
	return wager, nil
}

// GetByIDForUpdate returns the wager with its row locked
func (r *WagerRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Wager, error) {
	query := `SELECT ` + wagerColumns + ` FROM wagers WHERE id = $1 FOR UPDATE`
	wager, err := scanWager(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock wager %s: %w", id, err)
	}
	return wager, nil
}

// ListOpen returns open wagers closing soonest first
func (r *WagerRepository) ListOpen(ctx context.Context, limit int) ([]*models.Wager, error) {
	query := `
		SELECT ` + wagerColumns + `
		FROM wagers
		WHERE status = 'open'
		ORDER BY closes_at, id
		LIMIT $1
	`
	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open wagers: %w", err)
	}
	return collectWagers(rows)
}

// ListExpiredOpen returns open wagers whose closes_at is before now
func (r *WagerRepository) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]*models.Wager, error) {
	query := `
		SELECT ` + wagerColumns + `
		FROM wagers
		WHERE status = 'open' AND closes_at < $1
		ORDER BY closes_at, id
		LIMIT $2
	`
	rows, err := r.q.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired wagers: %w", err)
	}
	return collectWagers(rows)
}

// AddToTotal increments one side's running total
func (r *WagerRepository) AddToTotal(ctx context.Context, id string, side models.Side, amount int64) (*models.Wager, error) {
	var query string
	switch side {
	case models.SideFor:
		query = `UPDATE wagers SET total_for = total_for + $2 WHERE id = $1 RETURNING ` + wagerColumns
	case models.SideAgainst:
		query = `UPDATE wagers SET total_against = total_against + $2 WHERE id = $1 RETURNING ` + wagerColumns
	default:
		return nil, fmt.Errorf("invalid side %q", side)
	}

	wager, err := scanWager(r.q.QueryRow(ctx, query, id, amount))
	if err != nil {
		return nil, fmt.Errorf("failed to add %d to %s total of wager %s: %w", amount, side, id, err)
	}
	if wager == nil {
		return nil, fmt.Errorf("wager %s not found", id)
	}
	return wager, nil
}

// MarkSettled flips an open wager to settled. Nil means it was not open.
func (r *WagerRepository) MarkSettled(ctx context.Context, id string, outcome models.Outcome, settledAt time.Time, settledBy *int64) (*models.Wager, error) {
	query := `
		UPDATE wagers
		SET status = 'settled', outcome = $2, settled_at = $3, settled_by = $4
		WHERE id = $1 AND status = 'open'
		RETURNING ` + wagerColumns
	wager, err := scanWager(r.q.QueryRow(ctx, query, id, string(outcome), settledAt, settledBy))
	if err != nil {
		return nil, fmt.Errorf("failed to settle wager %s: %w", id, err)
	}
	return wager, nil
}

// AddParticipant stores a stake
func (r *WagerRepository) AddParticipant(ctx context.Context, p *models.Participant) error {
	query := `
		INSERT INTO wager_participants (wager_id, user_id, side, amount, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.q.Exec(ctx, query, p.WagerID, p.UserID, string(p.Side), p.Amount, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to add participant %d to wager %s: %w", p.UserID, p.WagerID, err)
	}
	return nil
}

// GetParticipant returns the user's stake on a wager or nil
func (r *WagerRepository) GetParticipant(ctx context.Context, wagerID string, userID int64) (*models.Participant, error) {
	query := `
		SELECT wager_id, user_id, side, amount, joined_at
		FROM wager_participants
		WHERE wager_id = $1 AND user_id = $2
	`
	var (
		p    models.Participant
		side string
	)
	err := r.q.QueryRow(ctx, query, wagerID, userID).Scan(&p.WagerID, &p.UserID, &side, &p.Amount, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant %d of wager %s: %w", userID, wagerID, err)
	}
	p.Side = models.Side(side)
	return &p, nil
}

// ListParticipants returns a wager's stakes ordered by user id
func (r *WagerRepository) ListParticipants(ctx context.Context, wagerID string) ([]*models.Participant, error) {
	query := `
		SELECT wager_id, user_id, side, amount, joined_at
		FROM wager_participants
		WHERE wager_id = $1
		ORDER BY user_id
	`
	rows, err := r.q.Query(ctx, query, wagerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants of wager %s: %w", wagerID, err)
	}
	defer rows.Close()

	var participants []*models.Participant
	for rows.Next() {
		var (
			p    models.Participant
			side string
		)
		if err := rows.Scan(&p.WagerID, &p.UserID, &side, &p.Amount, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.Side = models.Side(side)
		participants = append(participants, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return participants, nil
}

func scanWager(row pgx.Row) (*models.Wager, error) {
	var (
		w       models.Wager
		status  string
		outcome *string
	)
	err := row.Scan(
		&w.ID,
		&w.OpenerID,
		&w.Statement,
		&w.OddsFor,
		&w.OddsAgainst,
		&status,
		&outcome,
		&w.TotalFor,
		&w.TotalAgainst,
		&w.OpensAt,
		&w.ClosesAt,
		&w.SettledAt,
		&w.SettledBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	w.Status = models.WagerStatus(status)
	if outcome != nil {
		o := models.Outcome(*outcome)
		w.Outcome = &o
	}
	return &w, nil
}

func collectWagers(rows pgx.Rows) ([]*models.Wager, error) {
	defer rows.Close()

	var wagers []*models.Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wager: %w", err)
		}
		wagers = append(wagers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wagers: %w", err)
	}
	return wagers, nil
}
