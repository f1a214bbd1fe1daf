package calls

import (
	"context"
	"errors"
	"io"
	"net/http"

	"dialdesk/internal/auth"
	"dialdesk/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Notifier pushes server-originated events to one agent's live connection.
// Implemented by the gateway hub; a nil Notifier drops pushes silently.
type Notifier interface {
	PushToAgent(agentID, event string, payload any)
}

// RecordingFetcher streams platform-stored call audio for the proxy endpoint.
type RecordingFetcher interface {
	FetchRecording(ctx context.Context, recordingRef string) (io.ReadCloser, string, error)
}

// Handlers serves the agent-facing call record REST API.
// Keep these thin: parse/validate input, call the store, return JSON.
type Handlers struct {
	Store      Store
	Notify     Notifier
	Recordings RecordingFetcher
}

type createRequest struct {
	CallID      string `json:"callSid" binding:"required"`
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	Direction   string `json:"direction"`
}

// Create logs a new call attempt for the authenticated agent.
func (h Handlers) Create(c *gin.Context) {
	agentID, err := auth.AgentID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "callSid and phoneNumber are required"})
		return
	}
	direction := Direction(req.Direction)
	if direction == "" {
		direction = DirectionOutbound
	}
	if !direction.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "direction must be outbound or inbound"})
		return
	}

	rec, err := h.Store.Create(c.Request.Context(), CallRecord{
		CallID:       req.CallID,
		AgentID:      agentID,
		Counterparty: req.PhoneNumber,
		Direction:    direction,
	})
	if errors.Is(err, ErrDuplicate) {
		// The client may retry logging on repeated ringing/accept events;
		// treat the replay as success and return the stored record. A
		// duplicate owned by another agent is not a replay.
		rec, err = h.Store.GetByCallID(c.Request.Context(), req.CallID)
		if err == nil && rec.AgentID != agentID {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already logged"})
			return
		}
	}
	if err != nil {
		logger.FromGin(c).Error("call create failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to log call"})
		return
	}

	h.push(rec.AgentID, "call:logged", rec)
	c.JSON(http.StatusOK, rec)
}

type updateRequest struct {
	Status   *string `json:"status"`
	Duration *int    `json:"duration"`
}

// Update patches status/duration on an owned record.
func (h Handlers) Update(c *gin.Context) {
	agentID, err := auth.AgentID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	p := Patch{Duration: req.Duration}
	if req.Status != nil {
		s := CallStatus(*req.Status)
		p.Status = &s
	}

	rec, err := h.Store.Update(c.Request.Context(), c.Param("callId"), agentID, p)
	if errors.Is(err, ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("call update failed", "call_id", c.Param("callId"), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to update call"})
		return
	}

	h.push(rec.AgentID, "call:updated", rec)
	c.JSON(http.StatusOK, rec)
}

// Delete removes an owned record.
func (h Handlers) Delete(c *gin.Context) {
	agentID, err := auth.AgentID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	err = h.Store.Delete(c.Request.Context(), c.Param("callId"), agentID)
	if errors.Is(err, ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("call delete failed", "call_id", c.Param("callId"), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to delete call"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// History returns the newest 50 records, both directions.
func (h Handlers) History(c *gin.Context) {
	h.list(c, "")
}

// InboundHistory returns the newest 50 inbound records.
func (h Handlers) InboundHistory(c *gin.Context) {
	h.list(c, DirectionInbound)
}

func (h Handlers) list(c *gin.Context, direction Direction) {
	agentID, err := auth.AgentID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	recs, err := h.Store.ListForAgent(c.Request.Context(), agentID, direction, 50)
	if err != nil {
		logger.FromGin(c).Error("call history failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch history"})
		return
	}
	if recs == nil {
		recs = []CallRecord{}
	}
	c.JSON(http.StatusOK, recs)
}

// Recording proxies platform-stored audio for an owned record. The auth
// middleware accepts ?token= so this URL works as a direct download link.
func (h Handlers) Recording(c *gin.Context) {
	agentID, err := auth.AgentID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	rec, err := h.Store.GetByCallID(c.Request.Context(), c.Param("callId"))
	if errors.Is(err, ErrNotFound) || (err == nil && rec.AgentID != agentID) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("recording lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch recording"})
		return
	}
	if rec.RecordingRef == "" {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no recording for this call"})
		return
	}
	if h.Recordings == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "recording proxy not configured"})
		return
	}

	body, contentType, err := h.Recordings.FetchRecording(c.Request.Context(), rec.RecordingRef)
	if err != nil {
		logger.FromGin(c).Error("recording fetch failed", "recording_ref", rec.RecordingRef, "err", err)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "recording unavailable"})
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
}

func (h Handlers) push(agentID, event string, payload any) {
	if h.Notify == nil {
		return
	}
	h.Notify.PushToAgent(agentID, event, payload)
}
