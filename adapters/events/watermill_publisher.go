package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/learnchain/gatehouse/core"
	"github.com/learnchain/gatehouse/ports"
)

const (
	// EventsTopic carries every tracked event.
	EventsTopic = "gatehouse.events"
	// AuditTopic carries gate admission decisions, including rejections and
	// fail-open admissions.
	AuditTopic = "gatehouse.audit"
)

// WatermillPublisher implements ports.EventPublisher on top of a watermill
// publisher (redis streams in production).
type WatermillPublisher struct {
	publisher message.Publisher
}

func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) PublishEvent(ctx context.Context, event *core.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.publisher.Publish(EventsTopic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *WatermillPublisher) PublishAudit(ctx context.Context, audit ports.AdmissionAudit) error {
	payload, err := json.Marshal(audit)
	if err != nil {
		return fmt.Errorf("failed to marshal audit: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.publisher.Publish(AuditTopic, msg); err != nil {
		return fmt.Errorf("failed to publish audit: %w", err)
	}
	return nil
}

// NopPublisher drops everything. Used in tests and when no broker is
// configured.
type NopPublisher struct{}

func (NopPublisher) PublishEvent(ctx context.Context, event *core.Event) error { return nil }

func (NopPublisher) PublishAudit(ctx context.Context, audit ports.AdmissionAudit) error { return nil }
