package events

import (
	"context"
	"sync"

	"sparks/models"

	log "github.com/sirupsen/logrus"
)

// EventType identifies a domain event
type EventType string

const (
	EventTypeWagerOpened   EventType = "wager_opened"
	EventTypeWagerJoined   EventType = "wager_joined"
	EventTypeWagerSettled  EventType = "wager_settled"
	EventTypeBalanceChange EventType = "balance_change"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// WagerOpenedEvent is emitted after a wager is created
type WagerOpenedEvent struct {
	WagerID     string `json:"wager_id"`
	OpenerID    int64  `json:"opener_id"`
	Statement   string `json:"statement"`
	OddsFor     int    `json:"odds_for"`
	OddsAgainst int    `json:"odds_against"`
	ClosesAt    int64  `json:"closes_at"`
}

func (e WagerOpenedEvent) Type() EventType {
	return EventTypeWagerOpened
}

// WagerJoinedEvent is emitted after a stake is escrowed
type WagerJoinedEvent struct {
	WagerID      string      `json:"wager_id"`
	UserID       int64       `json:"user_id"`
	Side         models.Side `json:"side"`
	Amount       int64       `json:"amount"`
	TotalFor     int64       `json:"total_for"`
	TotalAgainst int64       `json:"total_against"`
}

func (e WagerJoinedEvent) Type() EventType {
	return EventTypeWagerJoined
}

// WagerSettledEvent is emitted once per wager when it leaves the open state
type WagerSettledEvent struct {
	WagerID        string         `json:"wager_id"`
	Outcome        models.Outcome `json:"outcome"`
	SettledBy      *int64         `json:"settled_by"`
	Participants   int            `json:"participants"`
	TotalRefunded  int64          `json:"total_refunded"`
	TotalMinted    int64          `json:"total_minted"`
	TotalForfeited int64          `json:"total_forfeited"`
}

func (e WagerSettledEvent) Type() EventType {
	return EventTypeWagerSettled
}

// BalanceChangeEvent mirrors one ledger entry
type BalanceChangeEvent struct {
	UserID         int64            `json:"user_id"`
	EntryType      models.EntryType `json:"entry_type"`
	Amount         int64            `json:"amount"`
	AvailableDelta int64            `json:"available_delta"`
	EscrowDelta    int64            `json:"escrow_delta"`
	Available      int64            `json:"available"`
	Escrow         int64            `json:"escrow"`
	RefType        models.RefType   `json:"ref_type"`
	RefID          string           `json:"ref_id"`
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// SubscribeAll adds a handler for every known event type
func (b *Bus) SubscribeAll(handler Handler) {
	for _, eventType := range []EventType{
		EventTypeWagerOpened,
		EventTypeWagerJoined,
		EventTypeWagerSettled,
		EventTypeBalanceChange,
	} {
		b.Subscribe(eventType, handler)
	}
}

// Emit dispatches an event to all registered handlers. Handlers run on
// their own goroutines and a panicking handler is logged and dropped.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds events raised inside a unit of work until the
// transaction commits.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Pending returns the events queued so far
func (b *TransactionalBus) Pending() []Event {
	return b.pending
}

// Flush is called after a successful commit. Events are emitted on a
// background context since the transaction's context may already be done.
func (b *TransactionalBus) Flush(_ context.Context) {
	log.WithField("pendingEventCount", len(b.pending)).Debug("Flushing transactional bus")

	eventCtx := context.Background()
	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// Discard drops pending events after a rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
