package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sparks/events"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SourceService is stamped on every envelope this process publishes
const SourceService = "sparks"

// EventEnvelope wraps a domain event on the wire
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

// PublishRecorder counts forwarded events
type PublishRecorder interface {
	RecordNATSMessagePublished(eventType string)
}

// NATSEventPublisher forwards committed domain events to NATS
type NATSEventPublisher struct {
	publisher     MessagePublisher
	subjectMapper *EventSubjectMapper
	recorder      PublishRecorder
	now           func() time.Time
}

// NewNATSEventPublisher creates a new NATS event publisher. recorder may be nil.
func NewNATSEventPublisher(publisher MessagePublisher, subjectMapper *EventSubjectMapper, recorder PublishRecorder) *NATSEventPublisher {
	return &NATSEventPublisher{
		publisher:     publisher,
		subjectMapper: subjectMapper,
		recorder:      recorder,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Attach subscribes the publisher to every event type on bus
func (p *NATSEventPublisher) Attach(bus *events.Bus) {
	bus.SubscribeAll(p.Handle)
	log.Info("NATS event forwarding attached to event bus")
}

// Handle is an events.Handler that logs publish failures. Events reach
// it only after their transaction committed.
func (p *NATSEventPublisher) Handle(ctx context.Context, event events.Event) {
	if err := p.Publish(ctx, event); err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"error":     err,
		}).Error("Failed to forward event to NATS")
	}
}

// Publish publishes an event to NATS using the appropriate subject
func (p *NATSEventPublisher) Publish(ctx context.Context, event events.Event) error {
	subject := p.subjectMapper.MapEventToSubject(event)

	envelope, err := p.envelope(event)
	if err != nil {
		return err
	}

	envelopeData, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := p.publisher.Publish(ctx, subject, envelopeData); err != nil {
		// No stream bound to the subject; nobody is listening
		if strings.Contains(err.Error(), "no response from stream") {
			log.WithField("subject", subject).Debug("No JetStream stream for subject")
			return nil
		}
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	if p.recorder != nil {
		p.recorder.RecordNATSMessagePublished(string(event.Type()))
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Successfully published event to NATS")
	return nil
}

func (p *NATSEventPublisher) envelope(event events.Event) (*EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     p.now(),
		SourceService: SourceService,
		Payload:       payload,
	}, nil
}
