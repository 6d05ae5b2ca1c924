package models

import (
	"math"
	"time"
)

// WagerStatus is the lifecycle state of a wager
type WagerStatus string

const (
	WagerStatusOpen    WagerStatus = "open"
	WagerStatusSettled WagerStatus = "settled"
)

// Outcome is how a wager was settled
type Outcome string

const (
	OutcomeFor     Outcome = "for"
	OutcomeAgainst Outcome = "against"
	OutcomeVoid    Outcome = "void"
)

// Valid reports whether o is a known outcome
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeFor, OutcomeAgainst, OutcomeVoid:
		return true
	}
	return false
}

// Side is the position a participant stakes on
type Side string

const (
	SideFor     Side = "for"
	SideAgainst Side = "against"
)

// Valid reports whether s is a known side
func (s Side) Valid() bool {
	return s == SideFor || s == SideAgainst
}

// Wager limits
const (
	MaxStatementLength = 200
	MinOdds            = 1
	MaxOdds            = 10
	MinDurationMinutes = 5
	MaxDurationMinutes = 10080

	// MaxStake keeps stake plus winnings at the highest odds within int64
	MaxStake = math.MaxInt64 / (MaxOdds + 1)
)

// Wager is a yes/no proposition users stake Sparks on
type Wager struct {
	ID           string      `db:"id"`
	OpenerID     int64       `db:"opener_id"`
	Statement    string      `db:"statement"`
	OddsFor      int         `db:"odds_for"`
	OddsAgainst  int         `db:"odds_against"`
	Status       WagerStatus `db:"status"`
	Outcome      *Outcome    `db:"outcome"`
	TotalFor     int64       `db:"total_for"`
	TotalAgainst int64       `db:"total_against"`
	OpensAt      time.Time   `db:"opens_at"`
	ClosesAt     time.Time   `db:"closes_at"`
	SettledAt    *time.Time  `db:"settled_at"`
	SettledBy    *int64      `db:"settled_by"`
}

// IsOpen checks if the wager still accepts settlement
func (w *Wager) IsOpen() bool {
	return w.Status == WagerStatusOpen
}

// AcceptsStakes checks if a join at now is inside the wager window
func (w *Wager) AcceptsStakes(now time.Time) bool {
	return w.IsOpen() && now.Before(w.ClosesAt)
}

// Odds returns the payout multiplier for the given side
func (w *Wager) Odds(side Side) int {
	if side == SideFor {
		return w.OddsFor
	}
	return w.OddsAgainst
}

// WinningSide maps a non-void outcome to the side that wins it
func (o Outcome) WinningSide() (Side, bool) {
	switch o {
	case OutcomeFor:
		return SideFor, true
	case OutcomeAgainst:
		return SideAgainst, true
	}
	return "", false
}
