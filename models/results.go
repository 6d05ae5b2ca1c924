package models

// JoinResult is returned by a successful join
type JoinResult struct {
	Wager       *Wager
	Participant *Participant
	Balance     *Balance
}

// ParticipantPayout describes how one participant was settled
type ParticipantPayout struct {
	UserID   int64
	Side     Side
	Stake    int64
	Refunded int64
	Winnings int64
	Forfeit  int64
	Won      bool
}

// SettlementResult summarises a settlement
type SettlementResult struct {
	Wager   *Wager
	Payouts []ParticipantPayout
	// TotalRefunded is escrow returned to stakers, by void refunds and
	// by winners getting their own stake back.
	TotalRefunded int64
	// TotalMinted is winnings credited on top of returned stakes.
	TotalMinted int64
	// TotalForfeited is loser escrow removed from circulation.
	TotalForfeited int64
}

// SweepReport counts what one expiration sweep did
type SweepReport struct {
	Found   int
	Voided  int
	Skipped int
	Failed  int
}
