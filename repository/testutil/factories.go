package testutil

import (
	"time"

	"sparks/models"
)

// FixedTime is a UTC instant with microsecond precision so values
// survive a round trip through timestamptz unchanged.
var FixedTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// CreateTestBalance returns a fresh balance with the initial grant
func CreateTestBalance(userID int64) *models.Balance {
	return &models.Balance{
		UserID:    userID,
		Available: models.InitialGrant,
		CreatedAt: FixedTime,
		UpdatedAt: FixedTime,
	}
}

// CreateTestBalanceWith returns a balance with the given buckets
func CreateTestBalanceWith(userID, available, escrow int64) *models.Balance {
	b := CreateTestBalance(userID)
	b.Available = available
	b.Escrow = escrow
	return b
}

// CreateTestWager returns an open wager closing an hour after FixedTime
func CreateTestWager(id string, openerID int64) *models.Wager {
	return &models.Wager{
		ID:          id,
		OpenerID:    openerID,
		Statement:   "It will rain tomorrow",
		OddsFor:     2,
		OddsAgainst: 1,
		Status:      models.WagerStatusOpen,
		OpensAt:     FixedTime,
		ClosesAt:    FixedTime.Add(time.Hour),
	}
}

// CreateTestParticipant returns a stake joined at FixedTime
func CreateTestParticipant(wagerID string, userID int64, side models.Side, amount int64) *models.Participant {
	return &models.Participant{
		WagerID:  wagerID,
		UserID:   userID,
		Side:     side,
		Amount:   amount,
		JoinedAt: FixedTime,
	}
}

// CreateTestLedgerEntry returns an escrow_in entry for a wager stake
func CreateTestLedgerEntry(userID int64, wagerID string, amount int64) *models.LedgerEntry {
	return &models.LedgerEntry{
		UserID:         userID,
		Type:           models.EntryTypeEscrowIn,
		Amount:         amount,
		AvailableDelta: -amount,
		EscrowDelta:    amount,
		RefType:        models.RefTypeWager,
		RefID:          wagerID,
		Metadata:       map[string]any{"side": "for"},
	}
}
