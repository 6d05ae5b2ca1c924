package service

import (
	"context"
	"sort"

	"sparks/events"
	"sparks/models"

	log "github.com/sirupsen/logrus"
)

const (
	defaultLedgerLimit = 25
	maxLedgerLimit     = 100
	defaultListLimit   = 50
)

// EscrowService owns balance accounting, the wager lifecycle and
// settlement payouts. Every mutating call runs in its own unit of work.
type EscrowService struct {
	uowFactory UnitOfWorkFactory
	clock      Clock
	registry   *WagerRegistry
	metrics    MetricsRecorder
}

// NewEscrowService creates the engine. A nil clock, alias generator or
// metrics recorder falls back to the system clock, crypto/rand aliases
// and no metrics.
func NewEscrowService(uowFactory UnitOfWorkFactory, clock Clock, aliases AliasGenerator, metrics MetricsRecorder) *EscrowService {
	if clock == nil {
		clock = SystemClock{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &EscrowService{
		uowFactory: uowFactory,
		clock:      clock,
		registry:   NewWagerRegistry(aliases),
		metrics:    metrics,
	}
}

// Open creates a wager. The opener is not asked for a stake.
func (s *EscrowService) Open(ctx context.Context, openerID int64, statement string, oddsFor, oddsAgainst, durationMinutes int) (*models.Wager, error) {
	const op = "open wager"

	terms := WagerTerms{
		Statement:       statement,
		OddsFor:         oddsFor,
		OddsAgainst:     oddsAgainst,
		DurationMinutes: durationMinutes,
	}
	if _, err := terms.Validate(); err != nil {
		return nil, s.fail(op, err)
	}

	var wager *models.Wager
	err := s.inTransaction(ctx, op, func(uow UnitOfWork) error {
		if _, err := uow.BalanceRepository().GetOrCreate(ctx, openerID); err != nil {
			return storageError(op, err)
		}

		var err error
		wager, err = s.registry.Create(ctx, uow.WagerRepository(), openerID, terms, s.clock.Now())
		if err != nil {
			return err
		}

		uow.EventBus().Publish(events.WagerOpenedEvent{
			WagerID:     wager.ID,
			OpenerID:    wager.OpenerID,
			Statement:   wager.Statement,
			OddsFor:     wager.OddsFor,
			OddsAgainst: wager.OddsAgainst,
			ClosesAt:    wager.ClosesAt.Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordWagerOpened()
	log.WithFields(log.Fields{
		"wagerID":  wager.ID,
		"openerID": openerID,
		"closesAt": wager.ClosesAt,
	}).Info("Wager opened")

	return wager, nil
}

// Join escrows amount from the user's available balance on one side of
// an open wager.
func (s *EscrowService) Join(ctx context.Context, userID int64, wagerID string, side models.Side, amount int64) (*models.JoinResult, error) {
	const op = "join wager"

	if amount < 1 {
		return nil, s.fail(op, newError(KindValidation, op, "amount must be at least 1"))
	}
	if amount > models.MaxStake {
		return nil, s.fail(op, newError(KindValidation, op, "amount cannot exceed %d", int64(models.MaxStake)))
	}
	if !side.Valid() {
		return nil, s.fail(op, newError(KindValidation, op, "invalid side %q", side))
	}

	var result *models.JoinResult
	err := s.inTransaction(ctx, op, func(uow UnitOfWork) error {
		wagers := uow.WagerRepository()

		wager, err := s.lockWager(ctx, op, wagers, wagerID)
		if err != nil {
			return err
		}
		if !wager.IsOpen() {
			return invalidState(op, ReasonAlreadySettled)
		}
		if !wager.AcceptsStakes(s.clock.Now()) {
			return invalidState(op, ReasonClosed)
		}

		existing, err := wagers.GetParticipant(ctx, wager.ID, userID)
		if err != nil {
			return storageError(op, err)
		}
		if existing != nil {
			return newError(KindAlreadyJoined, op, "user %d already joined wager %s", userID, wager.ID)
		}

		balances := uow.BalanceRepository()
		balance, err := balances.GetOrCreate(ctx, userID)
		if err != nil {
			return storageError(op, err)
		}
		if balance.Available < amount {
			return newError(KindInsufficientFunds, op, "available %d is less than %d", balance.Available, amount)
		}

		balance, err = balances.MoveToEscrow(ctx, userID, amount)
		if err != nil {
			return storageError(op, err)
		}
		if balance == nil {
			return newError(KindInsufficientFunds, op, "available is less than %d", amount)
		}

		entry := &models.LedgerEntry{
			UserID:         userID,
			Type:           models.EntryTypeEscrowIn,
			Amount:         amount,
			AvailableDelta: -amount,
			EscrowDelta:    amount,
			RefType:        models.RefTypeWager,
			RefID:          wager.ID,
			Metadata:       map[string]any{"side": string(side)},
		}
		if err := s.record(ctx, op, uow, balance, entry); err != nil {
			return err
		}

		participant := &models.Participant{
			WagerID:  wager.ID,
			UserID:   userID,
			Side:     side,
			Amount:   amount,
			JoinedAt: s.clock.Now(),
		}
		if err := wagers.AddParticipant(ctx, participant); err != nil {
			return storageError(op, err)
		}

		wager, err = wagers.AddToTotal(ctx, wager.ID, side, amount)
		if err != nil {
			return storageError(op, err)
		}

		uow.EventBus().Publish(events.WagerJoinedEvent{
			WagerID:      wager.ID,
			UserID:       userID,
			Side:         side,
			Amount:       amount,
			TotalFor:     wager.TotalFor,
			TotalAgainst: wager.TotalAgainst,
		})

		result = &models.JoinResult{
			Wager:       wager,
			Participant: participant,
			Balance:     balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordWagerJoined(side, amount)
	log.WithFields(log.Fields{
		"wagerID": result.Wager.ID,
		"userID":  userID,
		"side":    side,
		"amount":  amount,
	}).Info("Stake escrowed")

	return result, nil
}

// Settle closes an open wager with outcome and pays out, refunds or
// forfeits every stake. Only the opener or the system actor may settle.
func (s *EscrowService) Settle(ctx context.Context, actor Actor, wagerID string, outcome models.Outcome) (*models.SettlementResult, error) {
	const op = "settle wager"

	if !outcome.Valid() {
		return nil, s.fail(op, newError(KindValidation, op, "invalid outcome %q", outcome))
	}

	var result *models.SettlementResult
	err := s.inTransaction(ctx, op, func(uow UnitOfWork) error {
		wagers := uow.WagerRepository()

		wager, err := s.lockWager(ctx, op, wagers, wagerID)
		if err != nil {
			return err
		}
		if !wager.IsOpen() {
			return invalidState(op, ReasonAlreadySettled)
		}
		if !actor.System && actor.UserID != wager.OpenerID {
			return newError(KindUnauthorized, op, "only the opener can settle wager %s", wager.ID)
		}

		participants, err := wagers.ListParticipants(ctx, wager.ID)
		if err != nil {
			return storageError(op, err)
		}
		// Balance rows are locked in ascending user id order
		sort.Slice(participants, func(i, j int) bool {
			return participants[i].UserID < participants[j].UserID
		})

		result = &models.SettlementResult{Payouts: make([]models.ParticipantPayout, 0, len(participants))}
		for _, p := range participants {
			payout, err := s.settleParticipant(ctx, op, uow, wager, outcome, p)
			if err != nil {
				return err
			}
			result.Payouts = append(result.Payouts, payout)
			result.TotalRefunded += payout.Refunded
			result.TotalMinted += payout.Winnings
			result.TotalForfeited += payout.Forfeit
		}

		settled, err := wagers.MarkSettled(ctx, wager.ID, outcome, s.clock.Now(), actor.settledBy())
		if err != nil {
			return storageError(op, err)
		}
		if settled == nil {
			return invalidState(op, ReasonAlreadySettled)
		}
		result.Wager = settled

		uow.EventBus().Publish(events.WagerSettledEvent{
			WagerID:        settled.ID,
			Outcome:        outcome,
			SettledBy:      settled.SettledBy,
			Participants:   len(participants),
			TotalRefunded:  result.TotalRefunded,
			TotalMinted:    result.TotalMinted,
			TotalForfeited: result.TotalForfeited,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordWagerSettled(outcome, actor.System, result)
	log.WithFields(log.Fields{
		"wagerID":        result.Wager.ID,
		"outcome":        outcome,
		"actor":          actor.label(),
		"participants":   len(result.Payouts),
		"totalMinted":    result.TotalMinted,
		"totalForfeited": result.TotalForfeited,
	}).Info("Wager settled")

	return result, nil
}

func (s *EscrowService) settleParticipant(ctx context.Context, op string, uow UnitOfWork, wager *models.Wager, outcome models.Outcome, p *models.Participant) (models.ParticipantPayout, error) {
	balances := uow.BalanceRepository()
	payout := models.ParticipantPayout{
		UserID: p.UserID,
		Side:   p.Side,
		Stake:  p.Amount,
	}

	winningSide, decided := outcome.WinningSide()

	if !decided || p.Side == winningSide {
		balance, err := balances.ReleaseFromEscrow(ctx, p.UserID, p.Amount)
		if err != nil {
			return payout, storageError(op, err)
		}
		if balance == nil {
			return payout, newError(KindInternal, op, "escrow of user %d is below stake %d", p.UserID, p.Amount)
		}
		payout.Refunded = p.Amount

		entryType := models.EntryTypeRefund
		if decided {
			entryType = models.EntryTypeEscrowOut
		}
		entry := &models.LedgerEntry{
			UserID:         p.UserID,
			Type:           entryType,
			Amount:         p.Amount,
			AvailableDelta: p.Amount,
			EscrowDelta:    -p.Amount,
			RefType:        models.RefTypeWager,
			RefID:          wager.ID,
			Metadata:       map[string]any{"side": string(p.Side), "outcome": string(outcome)},
		}
		if err := s.record(ctx, op, uow, balance, entry); err != nil {
			return payout, err
		}

		if !decided {
			return payout, nil
		}

		winnings := Winnings(p.Amount, wager.Odds(winningSide))
		payout.Won = true
		payout.Winnings = winnings
		if winnings == 0 {
			return payout, nil
		}

		balance, err = balances.Credit(ctx, p.UserID, winnings)
		if err != nil {
			return payout, storageError(op, err)
		}
		if balance == nil {
			return payout, newError(KindInternal, op, "failed to credit winnings %d to user %d", winnings, p.UserID)
		}
		entry = &models.LedgerEntry{
			UserID:         p.UserID,
			Type:           models.EntryTypePayout,
			Amount:         winnings,
			AvailableDelta: winnings,
			RefType:        models.RefTypeWager,
			RefID:          wager.ID,
			Metadata:       map[string]any{"stake": p.Amount, "odds": wager.Odds(winningSide)},
		}
		return payout, s.record(ctx, op, uow, balance, entry)
	}

	balance, err := balances.ForfeitEscrow(ctx, p.UserID, p.Amount)
	if err != nil {
		return payout, storageError(op, err)
	}
	if balance == nil {
		return payout, newError(KindInternal, op, "escrow of user %d is below stake %d", p.UserID, p.Amount)
	}
	payout.Forfeit = p.Amount

	entry := &models.LedgerEntry{
		UserID:      p.UserID,
		Type:        models.EntryTypeEscrowOut,
		Amount:      p.Amount,
		EscrowDelta: -p.Amount,
		RefType:     models.RefTypeWager,
		RefID:       wager.ID,
		Metadata:    map[string]any{"side": string(p.Side), "outcome": string(outcome), "forfeited": true},
	}
	return payout, s.record(ctx, op, uow, balance, entry)
}

// Winnings is the amount credited to a winner on top of their returned
// stake: floor(stake * odds). Odds are whole numbers so the product is
// exact.
func Winnings(stake int64, odds int) int64 {
	if stake <= 0 || odds <= 0 {
		return 0
	}
	return stake * int64(odds)
}

// AdminAdjust credits (positive amount) or debits (negative amount) a
// user's available balance outside of any wager.
func (s *EscrowService) AdminAdjust(ctx context.Context, userID int64, amount int64, reason string) (*models.Balance, error) {
	const op = "admin adjust"

	if amount == 0 {
		return nil, s.fail(op, newError(KindValidation, op, "amount cannot be zero"))
	}

	var balance *models.Balance
	err := s.inTransaction(ctx, op, func(uow UnitOfWork) error {
		balances := uow.BalanceRepository()

		current, err := balances.GetOrCreate(ctx, userID)
		if err != nil {
			return storageError(op, err)
		}

		entry := &models.LedgerEntry{
			UserID:   userID,
			RefType:  models.RefTypeAdmin,
			RefID:    "admin",
			Metadata: map[string]any{"reason": reason},
		}
		if amount > 0 {
			balance, err = balances.Credit(ctx, userID, amount)
			entry.Type = models.EntryTypeAdminCredit
			entry.Amount = amount
			entry.AvailableDelta = amount
		} else {
			if current.Available < -amount {
				return newError(KindInsufficientFunds, op, "available %d is less than %d", current.Available, -amount)
			}
			balance, err = balances.Debit(ctx, userID, -amount)
			entry.Type = models.EntryTypeAdminDebit
			entry.Amount = amount
			entry.AvailableDelta = amount
		}
		if err != nil {
			return storageError(op, err)
		}
		if balance == nil {
			return newError(KindInsufficientFunds, op, "available is less than %d", -amount)
		}
		return s.record(ctx, op, uow, balance, entry)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"userID": userID,
		"amount": amount,
		"reason": reason,
	}).Info("Balance adjusted by admin")

	return balance, nil
}

// GetWager returns a wager in any state
func (s *EscrowService) GetWager(ctx context.Context, wagerID string) (*models.Wager, error) {
	const op = "get wager"

	var wager *models.Wager
	err := s.inTransaction(ctx, op, func(uow UnitOfWork) error {
		id := NormalizeAlias(wagerID)
		w, err := uow.WagerRepository().GetByID(ctx, id)
		if err != nil {
			return storageError(op, err)
		}
		if w == nil {
			return newError(KindNotFound, op, "wager %s not found", id)
		}
		wager = w
		return nil
	})
	return wager, err
}

// FindOpenWager resolves an alias to an open wager
func (s *EscrowService) FindOpenWager(ctx context.Context, alias string) (*models.Wager, error) {
	var wager *models.Wager
	err := s.inTransaction(ctx, "find wager", func(uow UnitOfWork) error {
		var err error
		wager, err = s.registry.FindOpenByAlias(ctx, uow.WagerRepository(), alias)
		return err
	})
	return wager, err
}

// ListOpenWagers returns open wagers closing soonest first
func (s *EscrowService) ListOpenWagers(ctx context.Context, limit int) ([]*models.Wager, error) {
	const op = "list open wagers"

	if limit <= 0 {
		limit = defaultListLimit
	}

	var wagers []*models.Wager
	err := s.inTransaction(ctx, op, func(uow UnitOfWork) error {
		var err error
		wagers, err = uow.WagerRepository().ListOpen(ctx, limit)
		return storageError(op, err)
	})
	return wagers, err
}

// ExpiredOpenWagers returns open wagers whose close time has passed
func (s *EscrowService) ExpiredOpenWagers(ctx context.Context, limit int) ([]*models.Wager, error) {
	const op = "list expired wagers"

	if limit <= 0 {
		limit = defaultListLimit
	}

	var wagers []*models.Wager
	err := s.inTransaction(ctx, op, func(uow UnitOfWork) error {
		var err error
		wagers, err = uow.WagerRepository().ListExpiredOpen(ctx, s.clock.Now(), limit)
		return storageError(op, err)
	})
	return wagers, err
}

// GetParticipants returns the stakes on a wager ordered by user id
func (s *EscrowService) GetParticipants(ctx context.Context, wagerID string) ([]*models.Participant, error) {
	const op = "get participants"

	var participants []*models.Participant
	err := s.inTransaction(ctx, op, func(uow UnitOfWork) error {
		id := NormalizeAlias(wagerID)
		wager, err := uow.WagerRepository().GetByID(ctx, id)
		if err != nil {
			return storageError(op, err)
		}
		if wager == nil {
			return newError(KindNotFound, op, "wager %s not found", id)
		}
		participants, err = uow.WagerRepository().ListParticipants(ctx, id)
		return storageError(op, err)
	})
	return participants, err
}

// GetBalance returns the user's balance, creating it on first use
func (s *EscrowService) GetBalance(ctx context.Context, userID int64) (*models.Balance, error) {
	const op = "get balance"

	var balance *models.Balance
	err := s.inTransaction(ctx, op, func(uow UnitOfWork) error {
		var err error
		balance, err = uow.BalanceRepository().GetOrCreate(ctx, userID)
		return storageError(op, err)
	})
	return balance, err
}

// GetLedger returns a user's most recent ledger entries
func (s *EscrowService) GetLedger(ctx context.Context, userID int64, limit int) ([]*models.LedgerEntry, error) {
	const op = "get ledger"

	switch {
	case limit <= 0:
		limit = defaultLedgerLimit
	case limit > maxLedgerLimit:
		limit = maxLedgerLimit
	}

	var entries []*models.LedgerEntry
	err := s.inTransaction(ctx, op, func(uow UnitOfWork) error {
		var err error
		entries, err = uow.LedgerRepository().ListByUser(ctx, userID, limit)
		return storageError(op, err)
	})
	return entries, err
}

func (s *EscrowService) lockWager(ctx context.Context, op string, wagers WagerRepository, wagerID string) (*models.Wager, error) {
	id := NormalizeAlias(wagerID)
	wager, err := wagers.GetByIDForUpdate(ctx, id)
	if err != nil {
		return nil, storageError(op, err)
	}
	if wager == nil {
		return nil, newError(KindNotFound, op, "wager %s not found", id)
	}
	return wager, nil
}

// record appends a ledger entry for a balance change that already
// happened in the same transaction and queues the matching event.
func (s *EscrowService) record(ctx context.Context, op string, uow UnitOfWork, balance *models.Balance, entry *models.LedgerEntry) error {
	if err := uow.LedgerRepository().Append(ctx, entry); err != nil {
		return storageError(op, err)
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:         entry.UserID,
		EntryType:      entry.Type,
		Amount:         entry.Amount,
		AvailableDelta: entry.AvailableDelta,
		EscrowDelta:    entry.EscrowDelta,
		Available:      balance.Available,
		Escrow:         balance.Escrow,
		RefType:        entry.RefType,
		RefID:          entry.RefID,
	})
	s.metrics.RecordLedgerEntry(entry.Type)
	return nil
}

// inTransaction runs fn in a fresh unit of work, committing on success
// and rolling back on any error.
func (s *EscrowService) inTransaction(ctx context.Context, op string, fn func(uow UnitOfWork) error) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return s.fail(op, storageError(op, err))
	}
	defer func() {
		if rbErr := uow.Rollback(); rbErr != nil {
			log.WithFields(log.Fields{
				"operation": op,
				"error":     rbErr,
			}).Warn("Failed to roll back unit of work")
		}
	}()

	if err := fn(uow); err != nil {
		return s.fail(op, err)
	}

	if err := uow.Commit(); err != nil {
		return s.fail(op, storageError(op, err))
	}
	return nil
}

func (s *EscrowService) fail(op string, err error) error {
	kind := KindOf(err)
	s.metrics.RecordOperationError(op, kind)

	fields := log.Fields{
		"operation": op,
		"kind":      kind,
		"error":     err,
	}
	switch kind {
	case KindTransient, KindInternal:
		log.WithFields(fields).Error("Escrow operation failed")
	default:
		log.WithFields(fields).Debug("Escrow operation rejected")
	}
	return err
}
