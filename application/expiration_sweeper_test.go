package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sparks/models"
	"sparks/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWagerSettler struct {
	mock.Mock
}

func (m *mockWagerSettler) ExpiredOpenWagers(ctx context.Context, limit int) ([]*models.Wager, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Wager), args.Error(1)
}

func (m *mockWagerSettler) Settle(ctx context.Context, actor service.Actor, wagerID string, outcome models.Outcome) (*models.SettlementResult, error) {
	args := m.Called(ctx, actor, wagerID, outcome)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SettlementResult), args.Error(1)
}

type mockSweepRecorder struct {
	mu      sync.Mutex
	reports []models.SweepReport
}

func (r *mockSweepRecorder) RecordSweep(report models.SweepReport, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop() { close(t.stopped) }

func expiredWager(id string) *models.Wager {
	closesAt := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	return &models.Wager{
		ID:          id,
		OpenerID:    1001,
		Statement:   "It will rain tomorrow",
		OddsFor:     2,
		OddsAgainst: 1,
		Status:      models.WagerStatusOpen,
		OpensAt:     closesAt.Add(-time.Hour),
		ClosesAt:    closesAt,
	}
}

func TestExpirationSweeper_Sweep(t *testing.T) {
	t.Parallel()

	t.Run("voids every expired wager", func(t *testing.T) {
		settler := new(mockWagerSettler)
		recorder := &mockSweepRecorder{}
		sweeper := NewExpirationSweeper(settler, time.Minute, 50, nil, recorder)
		ctx := context.Background()

		settler.On("ExpiredOpenWagers", ctx, 50).Return([]*models.Wager{expiredWager("AAA222"), expiredWager("BBB333")}, nil)
		settler.On("Settle", ctx, service.SystemActor(), "AAA222", models.OutcomeVoid).Return(&models.SettlementResult{}, nil)
		settler.On("Settle", ctx, service.SystemActor(), "BBB333", models.OutcomeVoid).Return(&models.SettlementResult{}, nil)

		report, err := sweeper.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SweepReport{Found: 2, Voided: 2}, report)
		assert.Equal(t, []models.SweepReport{report}, recorder.reports)
		settler.AssertExpectations(t)
	})

	t.Run("already settled wager does not abort the batch", func(t *testing.T) {
		settler := new(mockWagerSettler)
		sweeper := NewExpirationSweeper(settler, time.Minute, 50, nil, nil)
		ctx := context.Background()

		wagers := []*models.Wager{expiredWager("AAA222"), expiredWager("BBB333"), expiredWager("CCC444")}
		settler.On("ExpiredOpenWagers", ctx, 50).Return(wagers, nil)
		settler.On("Settle", ctx, service.SystemActor(), "AAA222", models.OutcomeVoid).
			Return(nil, &service.Error{Kind: service.KindInvalidState, Op: "Settle", Reason: service.ReasonAlreadySettled})
		settler.On("Settle", ctx, service.SystemActor(), "BBB333", models.OutcomeVoid).Return(&models.SettlementResult{}, nil)
		settler.On("Settle", ctx, service.SystemActor(), "CCC444", models.OutcomeVoid).Return(&models.SettlementResult{}, nil)

		report, err := sweeper.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SweepReport{Found: 3, Voided: 2, Skipped: 1}, report)
		settler.AssertExpectations(t)
	})

	t.Run("unexpected failure is counted and the batch continues", func(t *testing.T) {
		settler := new(mockWagerSettler)
		sweeper := NewExpirationSweeper(settler, time.Minute, 50, nil, nil)
		ctx := context.Background()

		settler.On("ExpiredOpenWagers", ctx, 50).Return([]*models.Wager{expiredWager("AAA222"), expiredWager("BBB333")}, nil)
		settler.On("Settle", ctx, service.SystemActor(), "AAA222", models.OutcomeVoid).
			Return(nil, &service.Error{Kind: service.KindTransient, Op: "Settle", Err: errors.New("connection reset")})
		settler.On("Settle", ctx, service.SystemActor(), "BBB333", models.OutcomeVoid).Return(&models.SettlementResult{}, nil)

		report, err := sweeper.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SweepReport{Found: 2, Voided: 1, Failed: 1}, report)
	})

	t.Run("failing wagers filling a page do not hide later ones", func(t *testing.T) {
		settler := new(mockWagerSettler)
		sweeper := NewExpirationSweeper(settler, time.Minute, 2, nil, nil)
		ctx := context.Background()

		stuck := []*models.Wager{expiredWager("FFF111"), expiredWager("FFF222")}
		settler.On("ExpiredOpenWagers", ctx, 2).Return(stuck, nil).Once()
		settler.On("ExpiredOpenWagers", ctx, 4).
			Return(append(stuck[:2:2], expiredWager("WWW333"), expiredWager("WWW444")), nil).Once()
		settler.On("ExpiredOpenWagers", ctx, 4).Return(stuck, nil).Once()

		transient := &service.Error{Kind: service.KindTransient, Op: "Settle", Err: errors.New("lock timeout")}
		settler.On("Settle", ctx, service.SystemActor(), "FFF111", models.OutcomeVoid).Return(nil, transient)
		settler.On("Settle", ctx, service.SystemActor(), "FFF222", models.OutcomeVoid).Return(nil, transient)
		settler.On("Settle", ctx, service.SystemActor(), "WWW333", models.OutcomeVoid).Return(&models.SettlementResult{}, nil)
		settler.On("Settle", ctx, service.SystemActor(), "WWW444", models.OutcomeVoid).Return(&models.SettlementResult{}, nil)

		report, err := sweeper.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SweepReport{Found: 4, Voided: 2, Failed: 2}, report)
		settler.AssertNumberOfCalls(t, "ExpiredOpenWagers", 3)
		settler.AssertNumberOfCalls(t, "Settle", 4)
		settler.AssertExpectations(t)
	})

	t.Run("listing failure", func(t *testing.T) {
		settler := new(mockWagerSettler)
		recorder := &mockSweepRecorder{}
		sweeper := NewExpirationSweeper(settler, time.Minute, 50, nil, recorder)
		ctx := context.Background()

		settler.On("ExpiredOpenWagers", ctx, 50).Return(nil, errors.New("database unavailable"))

		report, err := sweeper.Sweep(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database unavailable")
		assert.Equal(t, models.SweepReport{Failed: 1}, report)
		require.Len(t, recorder.reports, 1)
		settler.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("nothing expired", func(t *testing.T) {
		settler := new(mockWagerSettler)
		sweeper := NewExpirationSweeper(settler, time.Minute, 0, nil, nil)
		ctx := context.Background()

		settler.On("ExpiredOpenWagers", ctx, 100).Return([]*models.Wager{}, nil)

		report, err := sweeper.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SweepReport{}, report)
	})
}

func TestExpirationSweeper_Start(t *testing.T) {
	t.Parallel()

	settler := new(mockWagerSettler)
	ticker := newManualTicker()
	var gotInterval time.Duration
	factory := func(d time.Duration) Ticker {
		gotInterval = d
		return ticker
	}

	cycles := make(chan struct{}, 10)
	settler.On("ExpiredOpenWagers", mock.Anything, 10).
		Return([]*models.Wager{}, nil).
		Run(func(mock.Arguments) { cycles <- struct{}{} })

	sweeper := NewExpirationSweeper(settler, 30*time.Second, 10, factory, nil)
	stop := sweeper.Start(context.Background())

	waitForCycle(t, cycles)
	ticker.ch <- time.Now()
	waitForCycle(t, cycles)
	ticker.ch <- time.Now()
	waitForCycle(t, cycles)

	stop()
	stop()

	assert.Equal(t, 30*time.Second, gotInterval)
	select {
	case <-ticker.stopped:
	default:
		t.Fatal("ticker was not stopped")
	}
	settler.AssertNumberOfCalls(t, "ExpiredOpenWagers", 3)
}

func TestExpirationSweeper_StartStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	settler := new(mockWagerSettler)
	ticker := newManualTicker()
	settler.On("ExpiredOpenWagers", mock.Anything, 10).Return([]*models.Wager{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sweeper := NewExpirationSweeper(settler, time.Minute, 10, func(time.Duration) Ticker { return ticker }, nil)
	stop := sweeper.Start(ctx)

	cancel()
	select {
	case <-ticker.stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not exit after cancel")
	}
	stop()
}

func waitForCycle(t *testing.T, cycles <-chan struct{}) {
	t.Helper()
	select {
	case <-cycles:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sweep cycle")
	}
}
