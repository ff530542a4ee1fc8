package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/learnchain/gatehouse/core"
	"github.com/learnchain/gatehouse/service"
)

// Handlers contains the HTTP handlers for the identity, session and tracking
// endpoints.
type Handlers struct {
	nonces   *service.NonceService
	gate     *service.GateService
	sessions *service.SessionService
	tracker  *service.TrackerService
	log      *logrus.Logger
}

func NewHandlers(
	nonces *service.NonceService,
	gate *service.GateService,
	sessions *service.SessionService,
	tracker *service.TrackerService,
	log *logrus.Logger,
) *Handlers {
	return &Handlers{
		nonces:   nonces,
		gate:     gate,
		sessions: sessions,
		tracker:  tracker,
		log:      log,
	}
}

// Nonce handles GET /auth/nonce?wallet=<addr>.
func (h *Handlers) Nonce(c *gin.Context) {
	wallet := c.Query("wallet")
	if wallet == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet query parameter is required"})
		return
	}

	nonce, message, err := h.nonces.Issue(c.Request.Context(), wallet)
	if err != nil {
		if err == core.ErrInvalidAddress {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
			return
		}
		h.log.WithError(err).Error("failed to issue nonce")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue nonce"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"nonce":            nonce.Value,
		"expiresAt":        nonce.ExpiresAt.UTC().Format(time.RFC3339),
		"challengeMessage": message,
		"walletAddress":    nonce.WalletAddress,
	})
}

// VerifyNonce handles POST /auth/nonce/verify.
func (h *Handlers) VerifyNonce(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress" binding:"required"`
		Nonce         string `json:"nonce" binding:"required"`
		Signature     string `json:"signature"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "walletAddress and nonce are required"})
		return
	}

	result, err := h.gate.VerifyChallenge(c.Request.Context(), req.WalletAddress, req.Nonce, req.Signature)
	if err != nil {
		if err == core.ErrInvalidAddress {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
			return
		}
		// Ambiguous consume outcome: fail closed, never report success.
		h.log.WithError(err).Error("nonce verification failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "verification temporarily unavailable, retry later"})
		return
	}

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"valid": result.Valid, "reason": result.Reason})
}

// VerifyWallet handles POST /wallet/verify. A backend outage answers 200
// valid:true (fail-open) rather than an error status.
func (h *Handlers) VerifyWallet(c *gin.Context) {
	var req struct {
		Wallet string `json:"wallet" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet is required"})
		return
	}

	result := h.gate.Verify(c.Request.Context(), req.Wallet)
	c.JSON(http.StatusOK, gin.H{
		"valid":   result.Valid,
		"isAdmin": result.IsAdmin,
		"reason":  result.Reason,
	})
}

// Connect handles POST /wallet/connect.
func (h *Handlers) Connect(c *gin.Context) {
	var req struct {
		Wallet   string         `json:"wallet" binding:"required"`
		Provider string         `json:"provider"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet is required"})
		return
	}

	result, err := h.gate.Connect(c.Request.Context(), req.Wallet, req.Provider, req.Metadata)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}

	if result.Banned {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "banned": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"connectionId": result.ConnectionID,
		"isNewUser":    result.IsNewUser,
		"isAdmin":      result.IsAdmin,
		"accessToken":  result.AccessToken,
	})
}

// StartSession handles POST /session. The route sits behind the auth
// middleware; the wallet binding falls back to the token subject.
func (h *Handlers) StartSession(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress"`
	}
	// Body is optional for anonymous-wallet sessions.
	_ = c.ShouldBindJSON(&req)

	wallet := req.WalletAddress
	if wallet == "" {
		if addr, ok := c.Get("walletAddress"); ok {
			wallet, _ = addr.(string)
		}
	}

	sessionID, err := h.sessions.Start(c.Request.Context(), wallet, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		h.log.WithError(err).Error("failed to start session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID})
}

// EndSession handles PATCH /session. Ending twice is a success; a heartbeat
// race is the caller's problem to not have.
func (h *Handlers) EndSession(c *gin.Context) {
	var req struct {
		SessionID string `json:"sessionId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}

	if err := h.sessions.End(c.Request.Context(), req.SessionID); err != nil {
		h.log.WithError(err).Error("failed to end session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Heartbeat handles PUT /session/heartbeat. A heartbeat against an ended
// session is a tolerated no-op, not an error.
func (h *Handlers) Heartbeat(c *gin.Context) {
	var req struct {
		SessionID string `json:"sessionId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}

	err := h.sessions.Heartbeat(c.Request.Context(), req.SessionID)
	if err != nil && err != core.ErrSessionEnded {
		h.log.WithError(err).Error("heartbeat failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "heartbeat failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Track handles POST /track.
func (h *Handlers) Track(c *gin.Context) {
	var req struct {
		Kind          string         `json:"kind" binding:"required"`
		SessionID     string         `json:"sessionId"`
		WalletAddress string         `json:"walletAddress"`
		Path          string         `json:"path"`
		Payload       map[string]any `json:"payload"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind is required"})
		return
	}

	err := h.tracker.Record(c.Request.Context(), core.EventKind(req.Kind), req.SessionID, req.WalletAddress, req.Path, req.Payload)
	if err != nil {
		switch err {
		case core.ErrInvalidEventKind:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event kind"})
		case core.ErrMissingCourseID:
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload.courseId is required for course and lesson events"})
		default:
			h.log.WithError(err).Error("failed to record event")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Healthz handles GET /healthz.
func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
