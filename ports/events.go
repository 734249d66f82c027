package ports

import "context"

// EventPublisher notifies other instances about security-relevant events.
type EventPublisher interface {
	// PublishLogout announces that a session's refresh token was
	// voluntarily invalidated.
	PublishLogout(ctx context.Context, userID, sessionID string) error

	// PublishReplaySuspected announces a refresh-token reuse, so other
	// instances can drop cached state for the session.
	PublishReplaySuspected(ctx context.Context, userID, sessionID string) error
}
