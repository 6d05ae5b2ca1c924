package observability

// Metric name prefixes
const (
	MetricPrefix = "sparks"
)

// Metric names
const (
	// Wager metrics
	WagersOpenedTotal  = MetricPrefix + ".wagers.opened_total"
	WagersOpen         = MetricPrefix + ".wagers.open"
	StakesTotal        = MetricPrefix + ".stakes.total"
	StakedSparksTotal  = MetricPrefix + ".stakes.sparks_total"
	WagersSettledTotal = MetricPrefix + ".wagers.settled_total"

	// Sparks supply metrics
	SparksMintedTotal    = MetricPrefix + ".sparks.minted_total"
	SparksForfeitedTotal = MetricPrefix + ".sparks.forfeited_total"
	SparksRefundedTotal  = MetricPrefix + ".sparks.refunded_total"

	// Ledger metrics
	LedgerEntriesTotal = MetricPrefix + ".ledger.entries_total"

	// Error metrics
	OperationErrorsTotal = MetricPrefix + ".operations.errors_total"

	// Sweeper metrics
	SweepCyclesTotal = MetricPrefix + ".sweeper.cycles_total"
	SweepWagersTotal = MetricPrefix + ".sweeper.wagers_total"
	SweepDuration    = MetricPrefix + ".sweeper.duration"

	// NATS metrics
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"
)

// Label keys
const (
	LabelSide      = "side"
	LabelOutcome   = "outcome"
	LabelActor     = "actor"
	LabelEntryType = "entry_type"
	LabelOperation = "operation"
	LabelErrorKind = "error_kind"
	LabelResult    = "result"
	LabelEventType = "event_type"
)

// Actor label values
const (
	ActorUser   = "user"
	ActorSystem = "system"
)

// Sweep result label values
const (
	SweepResultVoided  = "voided"
	SweepResultSkipped = "skipped"
	SweepResultFailed  = "failed"
)
