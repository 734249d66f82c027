package tokenizer

import "github.com/golang-jwt/jwt/v5"

// accessClaims combines standard claims with session/device binding so
// downstream authorization can cross-check session validity.
type accessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	DeviceID  string `json:"did"`
}

// refreshClaims are standard claims; the JWT ID is the persisted
// refresh-token row ID.
type refreshClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}
