package service

import (
	"context"
	"time"

	"sparks/events"
	"sparks/models"
)

// BalanceRepository stores per-user Spark balances. Every mutation is a
// single guarded UPDATE; methods that would drive a column negative
// change nothing and return a nil balance.
type BalanceRepository interface {
	// GetOrCreate returns the user's balance, creating it with the
	// initial grant if needed, and locks the row for the transaction.
	GetOrCreate(ctx context.Context, userID int64) (*models.Balance, error)

	// Get returns the balance or nil if the user has never been seen
	Get(ctx context.Context, userID int64) (*models.Balance, error)

	// Credit adds amount to available and lifetime earned
	Credit(ctx context.Context, userID int64, amount int64) (*models.Balance, error)

	// Debit removes amount from available. Nil when available < amount.
	Debit(ctx context.Context, userID int64, amount int64) (*models.Balance, error)

	// MoveToEscrow moves amount from available to escrow. Nil when available < amount.
	MoveToEscrow(ctx context.Context, userID int64, amount int64) (*models.Balance, error)

	// ReleaseFromEscrow moves amount from escrow back to available. Nil when escrow < amount.
	ReleaseFromEscrow(ctx context.Context, userID int64, amount int64) (*models.Balance, error)

	// ForfeitEscrow removes amount from escrow. Nil when escrow < amount.
	ForfeitEscrow(ctx context.Context, userID int64, amount int64) (*models.Balance, error)
}

// LedgerRepository is the append-only record of balance movements
type LedgerRepository interface {
	// Append inserts the entry and fills in its ID and CreatedAt
	Append(ctx context.Context, entry *models.LedgerEntry) error

	// ListByUser returns a user's entries newest first
	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error)

	// ListByRef returns the entries pointing at one record, oldest first
	ListByRef(ctx context.Context, refType models.RefType, refID string) ([]*models.LedgerEntry, error)

	// SumByUser aggregates a user's entries
	SumByUser(ctx context.Context, userID int64) (*models.LedgerSums, error)
}

// WagerRepository stores wagers and their participants
type WagerRepository interface {
	// Insert stores a new wager. It returns false without error when the
	// id is already taken.
	Insert(ctx context.Context, wager *models.Wager) (bool, error)

	GetByID(ctx context.Context, id string) (*models.Wager, error)

	// GetByIDForUpdate reads the wager and locks its row
	GetByIDForUpdate(ctx context.Context, id string) (*models.Wager, error)

	ListOpen(ctx context.Context, limit int) ([]*models.Wager, error)

	// ListExpiredOpen returns open wagers with closes_at before now, oldest first
	ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]*models.Wager, error)

	// AddToTotal increments the total of one side
	AddToTotal(ctx context.Context, id string, side models.Side, amount int64) (*models.Wager, error)

	// MarkSettled moves an open wager to settled. It returns nil when the
	// wager was no longer open.
	MarkSettled(ctx context.Context, id string, outcome models.Outcome, settledAt time.Time, settledBy *int64) (*models.Wager, error)

	AddParticipant(ctx context.Context, participant *models.Participant) error
	GetParticipant(ctx context.Context, wagerID string, userID int64) (*models.Participant, error)

	// ListParticipants returns participants ordered by user id
	ListParticipants(ctx context.Context, wagerID string) ([]*models.Participant, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork groups repository calls into one database transaction
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and flushes queued events
	Commit() error

	// Rollback aborts the transaction and discards queued events. It is
	// safe to call after Commit.
	Rollback() error

	BalanceRepository() BalanceRepository
	LedgerRepository() LedgerRepository
	WagerRepository() WagerRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// MetricsRecorder receives engine measurements
type MetricsRecorder interface {
	RecordWagerOpened()
	RecordWagerJoined(side models.Side, amount int64)
	RecordWagerSettled(outcome models.Outcome, system bool, result *models.SettlementResult)
	RecordLedgerEntry(entryType models.EntryType)
	RecordOperationError(operation string, kind ErrorKind)
}

type noopMetrics struct{}

func (noopMetrics) RecordWagerOpened() {}
func (noopMetrics) RecordWagerJoined(models.Side, int64) {}
func (noopMetrics) RecordWagerSettled(models.Outcome, bool, *models.SettlementResult) {}
func (noopMetrics) RecordLedgerEntry(models.EntryType) {}
func (noopMetrics) RecordOperationError(string, ErrorKind) {}
