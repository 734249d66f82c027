package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/openclave/walletauth/ports"
)

// Event kinds published on the security topic.
const (
	KindLogout          = "logout"
	KindReplaySuspected = "replay_suspected"
)

// SecurityEvent notifies other instances about session-level changes.
type SecurityEvent struct {
	Kind      string `json:"kind"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// WatermillPublisher implements the EventPublisher interface using
// Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     "walletauth.security",
	}
}

// PublishLogout publishes a logout event.
func (p *WatermillPublisher) PublishLogout(ctx context.Context, userID, sessionID string) error {
	return p.publish(KindLogout, userID, sessionID)
}

// PublishReplaySuspected publishes a refresh-token reuse event.
func (p *WatermillPublisher) PublishReplaySuspected(ctx context.Context, userID, sessionID string) error {
	return p.publish(KindReplaySuspected, userID, sessionID)
}

func (p *WatermillPublisher) publish(kind, userID, sessionID string) error {
	payload, err := json.Marshal(SecurityEvent{
		Kind:      kind,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishLogout(ctx context.Context, userID, sessionID string) error {
	return nil
}

func (NopPublisher) PublishReplaySuspected(ctx context.Context, userID, sessionID string) error {
	return nil
}
