package models

import "time"

// Participant is a user's stake on one side of a wager
type Participant struct {
	WagerID  string    `db:"wager_id"`
	UserID   int64     `db:"user_id"`
	Side     Side      `db:"side"`
	Amount   int64     `db:"amount"`
	JoinedAt time.Time `db:"joined_at"`
}
