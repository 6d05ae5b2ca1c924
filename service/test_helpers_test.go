package service

import (
	"testing"
	"time"

	"sparks/models"

	"github.com/stretchr/testify/mock"
)

const (
	testOpenerID = int64(1001)
	testUser1ID  = int64(2002)
	testUser2ID  = int64(3003)
	testUser3ID  = int64(4004)
	testWagerID  = "ABC234"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// TestMocks aggregates the mocks behind one engine
type TestMocks struct {
	Balances  *MockBalanceRepository
	Ledger    *MockLedgerRepository
	Wagers    *MockWagerRepository
	Publisher *MockEventPublisher
	Aliases   *MockAliasGenerator
	UoW       *mockUnitOfWork
	Clock     *fixedClock
}

func NewTestMocks() *TestMocks {
	m := &TestMocks{
		Balances:  &MockBalanceRepository{},
		Ledger:    &MockLedgerRepository{},
		Wagers:    &MockWagerRepository{},
		Publisher: &MockEventPublisher{},
		Aliases:   &MockAliasGenerator{},
		Clock:     &fixedClock{now: testNow},
	}
	m.UoW = &mockUnitOfWork{
		balances:  m.Balances,
		ledger:    m.Ledger,
		wagers:    m.Wagers,
		publisher: m.Publisher,
	}
	return m
}

func (m *TestMocks) Service() *EscrowService {
	return NewEscrowService(&mockUnitOfWorkFactory{uow: m.UoW}, m.Clock, m.Aliases, nil)
}

func (m *TestMocks) AssertAllExpectations(t *testing.T) {
	m.Balances.AssertExpectations(t)
	m.Ledger.AssertExpectations(t)
	m.Wagers.AssertExpectations(t)
	m.Publisher.AssertExpectations(t)
	m.Aliases.AssertExpectations(t)
	m.UoW.AssertExpectations(t)
}

// ExpectCommitted sets up a transaction that begins and commits
func (m *TestMocks) ExpectCommitted() {
	m.UoW.On("Begin", mock.Anything).Return(nil).Once()
	m.UoW.On("Commit").Return(nil).Once()
	m.UoW.On("Rollback").Return(nil).Once()
}

// ExpectRolledBack sets up a transaction that begins and is abandoned
func (m *TestMocks) ExpectRolledBack() {
	m.UoW.On("Begin", mock.Anything).Return(nil).Once()
	m.UoW.On("Rollback").Return(nil).Once()
}

func (m *TestMocks) ExpectAnyPublish() {
	m.Publisher.On("Publish", mock.Anything).Return()
}

func (m *TestMocks) ExpectAnyLedgerAppend() {
	m.Ledger.On("Append", mock.Anything, mock.Anything).Return(nil)
}

func (m *TestMocks) ExpectLockedWager(wager *models.Wager) {
	m.Wagers.On("GetByIDForUpdate", mock.Anything, wager.ID).Return(wager, nil).Once()
}

func openWager() *models.Wager {
	return &models.Wager{
		ID:          testWagerID,
		OpenerID:    testOpenerID,
		Statement:   "It will rain tomorrow",
		OddsFor:     2,
		OddsAgainst: 1,
		Status:      models.WagerStatusOpen,
		OpensAt:     testNow.Add(-time.Hour),
		ClosesAt:    testNow.Add(time.Hour),
	}
}

func settledWager(outcome models.Outcome) *models.Wager {
	w := openWager()
	w.Status = models.WagerStatusSettled
	w.Outcome = &outcome
	settledAt := testNow
	w.SettledAt = &settledAt
	return w
}

func balance(userID, available, escrow int64) *models.Balance {
	return &models.Balance{UserID: userID, Available: available, Escrow: escrow}
}

func ledgerEntry(entryType models.EntryType, userID int64) any {
	return mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.Type == entryType && e.UserID == userID
	})
}
