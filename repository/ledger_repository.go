package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"sparks/database"
	"sparks/models"

	"github.com/jackc/pgx/v5"
)

const ledgerColumns = `id, user_id, entry_type::text, amount, available_delta, escrow_delta, ref_type, ref_id, metadata, created_at`

// LedgerRepository implements service.LedgerRepository. Entries are
// only ever inserted.
type LedgerRepository struct {
	q queryable
}

// NewLedgerRepository creates a ledger repository on the pool
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{q: db.Pool}
}

func newLedgerRepository(tx queryable) *LedgerRepository {
	return &LedgerRepository{q: tx}
}

// Append inserts an entry and sets its ID and CreatedAt
func (r *LedgerRepository) Append(ctx context.Context, entry *models.LedgerEntry) error {
	var metadataJSON []byte
	if len(entry.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal ledger metadata: %w", err)
		}
	}

	query := `
		INSERT INTO ledger_entries
		(user_id, entry_type, amount, available_delta, escrow_delta, ref_type, ref_id, metadata)
		VALUES ($1, $2::ledger_entry_type, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.q.QueryRow(ctx, query,
		entry.UserID,
		string(entry.Type),
		entry.Amount,
		entry.AvailableDelta,
		entry.EscrowDelta,
		string(entry.RefType),
		entry.RefID,
		metadataJSON,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append %s ledger entry for user %d: %w", entry.Type, entry.UserID, err)
	}
	return nil
}

// ListByUser returns a user's entries newest first
func (r *LedgerRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries for user %d: %w", userID, err)
	}
	return collectLedgerEntries(rows)
}

// ListByRef returns the entries for one referenced record, oldest first
func (r *LedgerRepository) ListByRef(ctx context.Context, refType models.RefType, refID string) ([]*models.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE ref_type = $1 AND ref_id = $2
		ORDER BY id
	`
	rows, err := r.q.Query(ctx, query, string(refType), refID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries for %s %s: %w", refType, refID, err)
	}
	return collectLedgerEntries(rows)
}

// SumByUser aggregates a user's entries
func (r *LedgerRepository) SumByUser(ctx context.Context, userID int64) (*models.LedgerSums, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0),
		       COALESCE(SUM(available_delta), 0),
		       COALESCE(SUM(escrow_delta), 0),
		       COUNT(*)
		FROM ledger_entries
		WHERE user_id = $1
	`
	var sums models.LedgerSums
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&sums.Amount,
		&sums.AvailableDelta,
		&sums.EscrowDelta,
		&sums.Entries,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger entries for user %d: %w", userID, err)
	}
	return &sums, nil
}

func collectLedgerEntries(rows pgx.Rows) ([]*models.LedgerEntry, error) {
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		var (
			entry        models.LedgerEntry
			entryType    string
			refType      string
			metadataJSON []byte
		)
		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entryType,
			&entry.Amount,
			&entry.AvailableDelta,
			&entry.EscrowDelta,
			&refType,
			&entry.RefID,
			&metadataJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entry.Type = models.EntryType(entryType)
		entry.RefType = models.RefType(refType)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal ledger metadata: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}
