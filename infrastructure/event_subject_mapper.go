package infrastructure

import (
	"fmt"

	"sparks/events"
)

// Subjects published by the engine
const (
	SubjectWagerOpened    = "sparks.wager.opened"
	SubjectWagerJoined    = "sparks.wager.joined"
	SubjectWagerSettled   = "sparks.wager.settled"
	SubjectBalanceChanged = "sparks.balance.changed"

	// StreamName is the JetStream stream holding every subject above
	StreamName = "sparks_events"
)

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its corresponding NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypeWagerOpened:
		return SubjectWagerOpened
	case events.EventTypeWagerJoined:
		return SubjectWagerJoined
	case events.EventTypeWagerSettled:
		return SubjectWagerSettled
	case events.EventTypeBalanceChange:
		return SubjectBalanceChanged
	default:
		return fmt.Sprintf("sparks.unknown.%s", event.Type())
	}
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	switch subject {
	case SubjectWagerOpened:
		return events.EventTypeWagerOpened
	case SubjectWagerJoined:
		return events.EventTypeWagerJoined
	case SubjectWagerSettled:
		return events.EventTypeWagerSettled
	case SubjectBalanceChanged:
		return events.EventTypeBalanceChange
	default:
		return events.EventType(subject)
	}
}

// GetAllSubjects returns all subjects that this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		SubjectWagerOpened,
		SubjectWagerJoined,
		SubjectWagerSettled,
		SubjectBalanceChanged,
	}
}
