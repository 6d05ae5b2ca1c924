package service

import (
	"context"
	"time"

	"sparks/events"
	"sparks/models"

	"github.com/stretchr/testify/mock"
)

type MockBalanceRepository struct {
	mock.Mock
}

func (m *MockBalanceRepository) balanceResult(args mock.Arguments) (*models.Balance, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Balance), args.Error(1)
}

func (m *MockBalanceRepository) GetOrCreate(ctx context.Context, userID int64) (*models.Balance, error) {
	return m.balanceResult(m.Called(ctx, userID))
}

func (m *MockBalanceRepository) Get(ctx context.Context, userID int64) (*models.Balance, error) {
	return m.balanceResult(m.Called(ctx, userID))
}

func (m *MockBalanceRepository) Credit(ctx context.Context, userID int64, amount int64) (*models.Balance, error) {
	return m.balanceResult(m.Called(ctx, userID, amount))
}

func (m *MockBalanceRepository) Debit(ctx context.Context, userID int64, amount int64) (*models.Balance, error) {
	return m.balanceResult(m.Called(ctx, userID, amount))
}

func (m *MockBalanceRepository) MoveToEscrow(ctx context.Context, userID int64, amount int64) (*models.Balance, error) {
	return m.balanceResult(m.Called(ctx, userID, amount))
}

func (m *MockBalanceRepository) ReleaseFromEscrow(ctx context.Context, userID int64, amount int64) (*models.Balance, error) {
	return m.balanceResult(m.Called(ctx, userID, amount))
}

func (m *MockBalanceRepository) ForfeitEscrow(ctx context.Context, userID int64, amount int64) (*models.Balance, error) {
	return m.balanceResult(m.Called(ctx, userID, amount))
}

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) Append(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepository) ListByRef(ctx context.Context, refType models.RefType, refID string) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, refType, refID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepository) SumByUser(ctx context.Context, userID int64) (*models.LedgerSums, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerSums), args.Error(1)
}

type MockWagerRepository struct {
	mock.Mock
}

func (m *MockWagerRepository) wagerResult(args mock.Arguments) (*models.Wager, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wager), args.Error(1)
}

func (m *MockWagerRepository) wagersResult(args mock.Arguments) ([]*models.Wager, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Wager), args.Error(1)
}

func (m *MockWagerRepository) Insert(ctx context.Context, wager *models.Wager) (bool, error) {
	args := m.Called(ctx, wager)
	return args.Bool(0), args.Error(1)
}

func (m *MockWagerRepository) GetByID(ctx context.Context, id string) (*models.Wager, error) {
	return m.wagerResult(m.Called(ctx, id))
}

func (m *MockWagerRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Wager, error) {
	return m.wagerResult(m.Called(ctx, id))
}

func (m *MockWagerRepository) ListOpen(ctx context.Context, limit int) ([]*models.Wager, error) {
	return m.wagersResult(m.Called(ctx, limit))
}

func (m *MockWagerRepository) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]*models.Wager, error) {
	return m.wagersResult(m.Called(ctx, now, limit))
}

func (m *MockWagerRepository) AddToTotal(ctx context.Context, id string, side models.Side, amount int64) (*models.Wager, error) {
	return m.wagerResult(m.Called(ctx, id, side, amount))
}

func (m *MockWagerRepository) MarkSettled(ctx context.Context, id string, outcome models.Outcome, settledAt time.Time, settledBy *int64) (*models.Wager, error) {
	return m.wagerResult(m.Called(ctx, id, outcome, settledAt, settledBy))
}

func (m *MockWagerRepository) AddParticipant(ctx context.Context, participant *models.Participant) error {
	args := m.Called(ctx, participant)
	return args.Error(0)
}

func (m *MockWagerRepository) GetParticipant(ctx context.Context, wagerID string, userID int64) (*models.Participant, error) {
	args := m.Called(ctx, wagerID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Participant), args.Error(1)
}

func (m *MockWagerRepository) ListParticipants(ctx context.Context, wagerID string) ([]*models.Participant, error) {
	args := m.Called(ctx, wagerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Participant), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

type MockAliasGenerator struct {
	mock.Mock
}

func (m *MockAliasGenerator) NewAlias() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

// mockUnitOfWork hands out the mocks and records how the transaction ended
type mockUnitOfWork struct {
	mock.Mock
	balances  *MockBalanceRepository
	ledger    *MockLedgerRepository
	wagers    *MockWagerRepository
	publisher *MockEventPublisher
}

func (u *mockUnitOfWork) Begin(ctx context.Context) error {
	return u.Called(ctx).Error(0)
}

func (u *mockUnitOfWork) Commit() error {
	return u.Called().Error(0)
}

func (u *mockUnitOfWork) Rollback() error {
	return u.Called().Error(0)
}

func (u *mockUnitOfWork) BalanceRepository() BalanceRepository { return u.balances }
func (u *mockUnitOfWork) LedgerRepository() LedgerRepository { return u.ledger }
func (u *mockUnitOfWork) WagerRepository() WagerRepository { return u.wagers }
func (u *mockUnitOfWork) EventBus() EventPublisher { return u.publisher }

type mockUnitOfWorkFactory struct {
	uow *mockUnitOfWork
}

func (f *mockUnitOfWorkFactory) Create() UnitOfWork {
	return f.uow
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}
