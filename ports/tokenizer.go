package ports

import (
	"time"

	"github.com/google/uuid"
)

// AccessClaims is what an access token carries so downstream authorization
// can cross-check session validity, not just signature validity.
type AccessClaims struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	DeviceID  string
	ExpiresAt time.Time
}

// RefreshClaims identifies the persisted refresh-token row behind a refresh
// token string.
type RefreshClaims struct {
	TokenID   uuid.UUID
	UserID    uuid.UUID
	SessionID uuid.UUID
	ExpiresAt time.Time
}

// Tokenizer converts between credential claims and signed token strings.
type Tokenizer interface {
	SignAccess(claims AccessClaims) (string, error)
	ParseAccess(token string) (*AccessClaims, error)

	SignRefresh(claims RefreshClaims) (string, error)
	ParseRefresh(token string) (*RefreshClaims, error)
}
