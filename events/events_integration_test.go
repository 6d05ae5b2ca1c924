package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"sparks/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionalBus_FlushDeliversToMainBus(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	received := make(chan BalanceChangeEvent, 1)
	mainBus.Subscribe(EventTypeBalanceChange, func(ctx context.Context, event Event) {
		if balanceEvent, ok := event.(BalanceChangeEvent); ok {
			received <- balanceEvent
		}
	})

	testEvent := BalanceChangeEvent{
		UserID:         1001,
		EntryType:      models.EntryTypeEscrowIn,
		Amount:         15,
		AvailableDelta: -15,
		EscrowDelta:    15,
		Available:      85,
		Escrow:         15,
		RefType:        models.RefTypeWager,
		RefID:          "ABC234",
	}

	transactionalBus.Publish(testEvent)
	assert.Len(t, transactionalBus.Pending(), 1)

	transactionalBus.Flush(context.Background())
	assert.Empty(t, transactionalBus.Pending())

	select {
	case got := <-received:
		assert.Equal(t, testEvent, got)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not received within timeout")
	}
}

func TestTransactionalBus_DiscardDropsEvents(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	var mu sync.Mutex
	count := 0
	mainBus.Subscribe(EventTypeWagerSettled, func(ctx context.Context, event Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})

	transactionalBus.Publish(WagerSettledEvent{WagerID: "ABC234", Outcome: models.OutcomeVoid})
	transactionalBus.Discard()
	transactionalBus.Flush(context.Background())

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count)
}

func TestBus_SubscribeAllReceivesEveryType(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[EventType]int{}
	bus.SubscribeAll(func(ctx context.Context, event Event) {
		defer wg.Done()
		mu.Lock()
		defer mu.Unlock()
		seen[event.Type()]++
	})

	all := []Event{
		WagerOpenedEvent{WagerID: "ABC234"},
		WagerJoinedEvent{WagerID: "ABC234", Side: models.SideFor, Amount: 10},
		WagerSettledEvent{WagerID: "ABC234", Outcome: models.OutcomeFor},
		BalanceChangeEvent{UserID: 1},
	}
	wg.Add(len(all))
	for _, e := range all {
		bus.Emit(context.Background(), e)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handlers did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 4)
	for _, e := range all {
		assert.Equal(t, 1, seen[e.Type()])
	}
}

func TestBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewBus()

	done := make(chan struct{})
	bus.Subscribe(EventTypeWagerOpened, func(ctx context.Context, event Event) {
		panic("boom")
	})
	bus.Subscribe(EventTypeWagerOpened, func(ctx context.Context, event Event) {
		close(done)
	})

	bus.Emit(context.Background(), WagerOpenedEvent{WagerID: "ABC234"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second handler did not run")
	}
}
