package httpapi

import (
	"errors"
	"net/http"
	"time"

	"dialdesk/internal/agents"
	"dialdesk/internal/auth"
	"dialdesk/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

// VoiceTokenIssuer mints the platform token the browser voice SDK registers
// with.
type VoiceTokenIssuer interface {
	Issue(identity string) (string, error)
}

type Handlers struct {
	Auth   *auth.Manager
	Agents agents.Repository
	Voice  VoiceTokenIssuer
}

// --- Auth ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type agentProfile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	DirectNumber string `json:"direct_number,omitempty"`
}

func profileOf(a agents.Agent) agentProfile {
	return agentProfile{ID: a.ID, Name: a.Name, Email: a.Email, DirectNumber: a.DirectNumber}
}

// Login verifies agent credentials and issues a token pair. Unknown email,
// wrong password and deactivated agent all produce the same response.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Email == "" || req.Password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "email and password required"})
		return
	}

	ag, err := h.Agents.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, agents.ErrNotFound) {
			logger.FromGin(c).Error("agent lookup failed", "err", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !ag.Active || bcrypt.CompareHashAndPassword([]byte(ag.PasswordHash), []byte(req.Password)) != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	pair, err := h.Auth.IssuePair(time.Now(), ag.ID, ag.Name, ag.Email)
	if err != nil {
		logger.FromGin(c).Error("token issuance failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agent":         profileOf(ag),
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a valid refresh token for a new access token.
func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}

	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	// The agent may have been deactivated since the pair was issued.
	ag, err := h.Agents.GetByID(c.Request.Context(), claims.AgentID)
	if err != nil || !ag.Active {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	access, err := h.Auth.IssueAccess(time.Now(), ag.ID, ag.Name, ag.Email)
	if err != nil {
		logger.FromGin(c).Error("token issuance failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": access})
}

// Me returns the authenticated agent's profile.
func (h Handlers) Me(c *gin.Context) {
	agentID, err := auth.AgentID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ag, err := h.Agents.GetByID(c.Request.Context(), agentID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": profileOf(ag)})
}

// VoiceToken issues the voice SDK registration token for the authenticated
// agent's client identity.
func (h Handlers) VoiceToken(c *gin.Context) {
	agentID, err := auth.AgentID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	identity := agents.ClientIdentity(agentID)
	token, err := h.Voice.Issue(identity)
	if err != nil {
		logger.FromGin(c).Error("voice token issuance failed", "agent_id", agentID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "identity": identity})
}
