package models

import "time"

// InitialGrant is the available balance a user receives the first time
// they are referenced.
const InitialGrant int64 = 100

// Balance is a user's Spark holdings. Available can be staked; Escrow is
// locked in open wagers.
type Balance struct {
	UserID         int64     `db:"user_id"`
	Available      int64     `db:"available"`
	Escrow         int64     `db:"escrow"`
	LifetimeEarned int64     `db:"lifetime_earned"`
	LifetimeSpent  int64     `db:"lifetime_spent"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Total returns available plus escrow
func (b *Balance) Total() int64 {
	return b.Available + b.Escrow
}
