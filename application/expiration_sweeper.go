package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sparks/models"
	"sparks/service"

	log "github.com/sirupsen/logrus"
)

// WagerSettler is the part of the escrow engine the sweeper drives
type WagerSettler interface {
	ExpiredOpenWagers(ctx context.Context, limit int) ([]*models.Wager, error)
	Settle(ctx context.Context, actor service.Actor, wagerID string, outcome models.Outcome) (*models.SettlementResult, error)
}

// SweepRecorder receives per-cycle sweeper measurements
type SweepRecorder interface {
	RecordSweep(report models.SweepReport, duration time.Duration)
}

// Ticker is the subset of time.Ticker the sweeper needs
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop() { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// ExpirationSweeper voids open wagers whose close time has passed. Each
// wager is settled in its own transaction so one failure never blocks
// the rest of the batch.
type ExpirationSweeper struct {
	settler   WagerSettler
	interval  time.Duration
	batchSize int
	newTicker TickerFactory
	recorder  SweepRecorder
}

// NewExpirationSweeper creates a sweeper. A nil ticker factory uses
// time.NewTicker and a nil recorder records nothing.
func NewExpirationSweeper(settler WagerSettler, interval time.Duration, batchSize int, newTicker TickerFactory, recorder SweepRecorder) *ExpirationSweeper {
	if newTicker == nil {
		newTicker = NewTimeTicker
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ExpirationSweeper{
		settler:   settler,
		interval:  interval,
		batchSize: batchSize,
		newTicker: newTicker,
		recorder:  recorder,
	}
}

// Start sweeps once immediately and then on every tick until ctx is
// done or the returned stop function is called. Stop waits for an
// in-flight sweep to finish.
func (s *ExpirationSweeper) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := s.newTicker(s.interval)
		defer ticker.Stop()

		log.WithField("interval", s.interval).Info("Expiration sweeper started")
		s.runCycle(ctx)

		for {
			select {
			case <-ctx.Done():
				log.Info("Expiration sweeper shutting down (context cancelled)")
				return
			case <-stopChan:
				log.Info("Expiration sweeper shutting down (stop requested)")
				return
			case <-ticker.C():
				s.runCycle(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopChan) })
		wg.Wait()
	}
}

func (s *ExpirationSweeper) runCycle(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		log.WithError(err).Error("Expiration sweep failed")
	}
}

// Sweep voids every currently expired wager, listing them in pages of
// the batch size. Wagers that fail stay expired and are listed again, so
// each later page is widened by the failures seen so far and they are
// not retried within the same sweep.
func (s *ExpirationSweeper) Sweep(ctx context.Context) (models.SweepReport, error) {
	start := time.Now()
	var report models.SweepReport
	failed := make(map[string]bool)

	for ctx.Err() == nil {
		limit := s.batchSize + len(failed)
		expired, err := s.settler.ExpiredOpenWagers(ctx, limit)
		if err != nil {
			report.Failed++
			s.record(report, start)
			return report, fmt.Errorf("failed to list expired wagers: %w", err)
		}

		var fresh []*models.Wager
		for _, wager := range expired {
			if !failed[wager.ID] {
				fresh = append(fresh, wager)
			}
		}
		if len(fresh) == 0 {
			break
		}
		report.Found += len(fresh)

		for _, wager := range fresh {
			if ctx.Err() != nil {
				break
			}
			if !s.void(ctx, wager, &report) {
				failed[wager.ID] = true
			}
		}

		if len(expired) < limit {
			break
		}
	}

	if len(failed) > 0 {
		log.WithField("failedWagers", len(failed)).Warn("Expired wagers left open after sweep")
	}
	if report.Found > 0 || report.Failed > 0 {
		log.WithFields(log.Fields{
			"found":   report.Found,
			"voided":  report.Voided,
			"skipped": report.Skipped,
			"failed":  report.Failed,
		}).Info("Completed expiration sweep")
	}

	s.record(report, start)
	return report, nil
}

// void settles one expired wager as void. It returns false when the
// wager is still open afterwards.
func (s *ExpirationSweeper) void(ctx context.Context, wager *models.Wager, report *models.SweepReport) bool {
	fields := log.Fields{
		"wagerID":  wager.ID,
		"closesAt": wager.ClosesAt,
	}

	_, err := s.settler.Settle(ctx, service.SystemActor(), wager.ID, models.OutcomeVoid)
	switch {
	case err == nil:
		report.Voided++
		log.WithFields(fields).Info("Voided expired wager")
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrNotFound):
		// settled by someone else after the listing
		report.Skipped++
		log.WithFields(fields).WithError(err).Warn("Skipped expired wager")
	default:
		report.Failed++
		log.WithFields(fields).WithError(err).Error("Failed to void expired wager")
		return false
	}
	return true
}

func (s *ExpirationSweeper) record(report models.SweepReport, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordSweep(report, time.Since(start))
	}
}
