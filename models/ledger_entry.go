package models

import "time"

// EntryType classifies a ledger entry
type EntryType string

const (
	EntryTypeEscrowIn    EntryType = "escrow_in"
	EntryTypeEscrowOut   EntryType = "escrow_out"
	EntryTypePayout      EntryType = "payout"
	EntryTypeRefund      EntryType = "refund"
	EntryTypeVoid        EntryType = "void"
	EntryTypeAdminCredit EntryType = "admin_credit"
	EntryTypeAdminDebit  EntryType = "admin_debit"
)

// RefType names the kind of record a ledger entry points at
type RefType string

const (
	RefTypeWager RefType = "wager"
	RefTypeAdmin RefType = "admin"
)

// LedgerEntry is an immutable record of one balance movement.
//
// Amount is the magnitude the entry type describes (the stake for
// escrow_in, escrow_out and refund, the winnings for payout).
// AvailableDelta and EscrowDelta are the signed changes applied to the
// two balance columns, so summing them over a user's entries reproduces
// the balance minus the initial grant.
type LedgerEntry struct {
	ID             int64          `db:"id"`
	UserID         int64          `db:"user_id"`
	Type           EntryType      `db:"entry_type"`
	Amount         int64          `db:"amount"`
	AvailableDelta int64          `db:"available_delta"`
	EscrowDelta    int64          `db:"escrow_delta"`
	RefType        RefType        `db:"ref_type"`
	RefID          string         `db:"ref_id"`
	Metadata       map[string]any `db:"metadata"`
	CreatedAt      time.Time      `db:"created_at"`
}

// LedgerSums aggregates a user's ledger entries
type LedgerSums struct {
	Amount         int64
	AvailableDelta int64
	EscrowDelta    int64
	Entries        int64
}
