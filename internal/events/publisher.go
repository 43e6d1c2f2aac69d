package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Audit actions emitted by this service.
const (
	ActionCodeIssued        = "code.issued"
	ActionCodeRedeemed      = "code.redeemed"
	ActionCodeDeactivated   = "code.deactivated"
	ActionAccountRegistered = "account.registered"
)

// EntityTypeInvitationCode identifies the audited entity kind.
const EntityTypeInvitationCode = "invitation_code"

// AuditEvent is the immutable record handed to the external audit sink. The
// sink owns storage; this service only publishes.
type AuditEvent struct {
	ID         string                 `json:"id"`
	Actor      string                 `json:"actor"`
	ActorName  string                 `json:"actor_name,omitempty"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Publisher publishes audit events to NATS JetStream
type Publisher struct {
	client *Client
	logger *logrus.Logger
}

// NewPublisher creates a new audit event publisher
func NewPublisher(client *Client, logger *logrus.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger,
	}
}

// PublishCodeEvent publishes an invitation-code audit event. Unavailability
// of the sink is logged, never propagated into the request path.
func (p *Publisher) PublishCodeEvent(ctx context.Context, actorID, actorName, action, code string, details map[string]interface{}) error {
	if p.client == nil || !p.client.IsConnected() {
		p.logger.Warn("NATS not connected, skipping audit event publish")
		return nil
	}

	event := AuditEvent{
		ID:         uuid.New().String(),
		Actor:      actorID,
		ActorName:  actorName,
		Action:     action,
		EntityType: EntityTypeInvitationCode,
		EntityID:   code,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	// Subject per action: partner.code.issued, partner.code.redeemed, ...
	subject := "partner." + action

	ack, err := p.client.JetStream().Publish(subject, data, nats.Context(ctx))
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"action":  action,
			"code":    code,
			"subject": subject,
		}).WithError(err).Error("Failed to publish audit event")
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"action":   action,
		"code":     code,
		"sequence": ack.Sequence,
		"stream":   ack.Stream,
	}).Debug("Published audit event")

	return nil
}

// IsConnected returns true if connected to NATS
func (p *Publisher) IsConnected() bool {
	return p.client != nil && p.client.IsConnected()
}
