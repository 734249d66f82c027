package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openclave/walletauth/core"
	"github.com/openclave/walletauth/service"
	"go.uber.org/zap"
)

// Optional request headers feeding device resolution and network
// normalization. Never trusted as authentication evidence on their own.
const (
	HeaderFingerprint  = "X-Device-Fingerprint"
	HeaderChainID      = "X-Chain-Id"
	HeaderChainNetwork = "X-Chain-Network"
)

// AuthHandlers contains HTTP handlers for auth endpoints.
type AuthHandlers struct {
	auth   *service.AuthService
	tokens *service.TokenService
	log    *zap.Logger
}

// NewAuthHandlers creates new auth handlers.
func NewAuthHandlers(auth *service.AuthService, tokens *service.TokenService, log *zap.Logger) *AuthHandlers {
	return &AuthHandlers{auth: auth, tokens: tokens, log: log}
}

type recoveryBody struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

type authResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	IsNewUser    bool   `json:"is_new_user"`
}

// Challenge handles challenge issuance.
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "reason": "bad_request"})
		return
	}

	result, err := h.auth.Challenge(c.Request.Context(), req.Address)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":          result.Challenge.Address,
		"challenge":        result.Challenge.Message,
		"timestamp":        result.Challenge.IssuedAt.UTC(),
		"is_existing_user": result.IsExistingUser,
	})
}

// Authenticate handles signed-challenge submission.
func (h *AuthHandlers) Authenticate(c *gin.Context) {
	var req struct {
		Address   string  `json:"address" binding:"required"`
		Message   string  `json:"message" binding:"required"`
		Signature string  `json:"signature" binding:"required"`
		Email     *string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "reason": "bad_request"})
		return
	}

	result, offer, err := h.auth.Authenticate(c.Request.Context(), h.authInput(c, req.Address, req.Message, req.Signature, req.Email))
	if err != nil {
		if offer != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":    "authentication failed",
				"reason":   reasonOf(err),
				"recovery": recoveryBody{Message: offer.Message, ExpiresAt: offer.ExpiresAt},
			})
			return
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, authResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		UserID:       result.User.ID.String(),
		IsNewUser:    result.IsNewUser,
	})
}

// Recover handles recovery-challenge redemption.
func (h *AuthHandlers) Recover(c *gin.Context) {
	var req struct {
		Address   string `json:"address" binding:"required"`
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "reason": "bad_request"})
		return
	}

	result, err := h.auth.RedeemRecovery(c.Request.Context(), h.authInput(c, req.Address, req.Message, req.Signature, nil))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, authResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		UserID:       result.User.ID.String(),
		IsNewUser:    result.IsNewUser,
	})
}

// Refresh handles refresh-token rotation.
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "reason": "bad_request"})
		return
	}

	pair, err := h.tokens.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

// Logout invalidates the presented refresh token and ends its session.
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "reason": "bad_request"})
		return
	}

	if err := h.tokens.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		// An expired token still means the session is gone; treat it as a
		// successful logout.
		if errors.Is(err, core.ErrTokenExpired) {
			c.Status(http.StatusNoContent)
			return
		}
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Me returns the authenticated identity set by the middleware.
func (h *AuthHandlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"user_id":    c.GetString(ctxUserID),
		"session_id": c.GetString(ctxSessionID),
		"device_id":  c.GetString(ctxDeviceID),
	})
}

func (h *AuthHandlers) authInput(c *gin.Context, address, message, signature string, email *string) service.AuthInput {
	chainID, _ := strconv.ParseUint(c.GetHeader(HeaderChainID), 10, 64)
	return service.AuthInput{
		Address:         address,
		Message:         message,
		Signature:       signature,
		Email:           email,
		Fingerprint:     c.GetHeader(HeaderFingerprint),
		IP:              c.ClientIP(),
		UserAgent:       c.Request.UserAgent(),
		ChainID:         chainID,
		ReportedNetwork: c.GetHeader(HeaderChainNetwork),
	}
}

// writeError maps a service error to a status code and a constant-shape
// body. Authentication failures never reveal whether the address has a
// prior account.
func (h *AuthHandlers) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, core.ErrInvalidAddress):
		status, msg = http.StatusBadRequest, "invalid request"
	case errors.Is(err, core.ErrChallengeNotFound),
		errors.Is(err, core.ErrChallengeMismatch),
		errors.Is(err, core.ErrSignatureVerificationFailed),
		errors.Is(err, core.ErrInvalidToken),
		errors.Is(err, core.ErrTokenExpired),
		errors.Is(err, core.ErrReplaySuspected),
		errors.Is(err, core.ErrSessionInvalid),
		errors.Is(err, core.ErrRecoveryUnavailable):
		status, msg = http.StatusUnauthorized, "authentication failed"
	case errors.Is(err, core.ErrDeviceWalletConflict):
		status, msg = http.StatusConflict, core.ErrDeviceWalletConflict.Error()
	default:
		h.log.Error("unhandled auth error", zap.Error(err))
	}

	c.JSON(status, gin.H{"error": msg, "reason": reasonOf(err)})
}

// reasonOf maps sentinels to the wire taxonomy.
func reasonOf(err error) string {
	switch {
	case errors.Is(err, core.ErrChallengeNotFound):
		return "challenge_not_found"
	case errors.Is(err, core.ErrChallengeMismatch):
		return "challenge_mismatch"
	case errors.Is(err, core.ErrSignatureVerificationFailed):
		return "signature_verification_failed"
	case errors.Is(err, core.ErrDeviceWalletConflict):
		return "device_wallet_conflict"
	case errors.Is(err, core.ErrReplaySuspected):
		return "replay_suspected"
	case errors.Is(err, core.ErrTokenExpired):
		return "expired"
	case errors.Is(err, core.ErrSessionInvalid):
		return "session_invalid"
	case errors.Is(err, core.ErrRecoveryUnavailable):
		return "recovery_unavailable"
	case errors.Is(err, core.ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, core.ErrInvalidToken):
		return "invalid_token"
	default:
		return "internal"
	}
}
