package telephony

import (
	"context"
	"net/http"

	"dialdesk/internal/agents"
	"dialdesk/internal/billing"
	"dialdesk/internal/calls"
	"dialdesk/pkg/logger"
	"dialdesk/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Notifier pushes server-originated events to one agent's live connection.
type Notifier interface {
	PushToAgent(agentID, event string, payload any)
}

// Biller recomputes the monthly snapshot pushed on terminal status updates.
type Biller interface {
	ForAgent(ctx context.Context, agentID string) (billing.Snapshot, error)
}

// RouterConfig carries the static routing inputs.
type RouterConfig struct {
	// DefaultCallerID is presented when the agent has no direct number.
	DefaultCallerID string

	// LegStatusCallbackURL and AMDCallbackURL are the absolute URLs the
	// platform reports child-leg events to.
	LegStatusCallbackURL string
	AMDCallbackURL       string

	// MachineDetection toggles AMD on outbound child legs.
	MachineDetection bool
}

// WebhookHandlers translates platform callbacks into routing decisions and
// record mutations.
//
// Every handler acknowledges success regardless of internal outcome: the
// platform retries aggressively on non-success responses and delivery is
// at-least-once, so the underlying writes are conditional and idempotent
// rather than the acknowledgment being conditional.
//
// NOTE: These endpoints should be protected by platform signature validation
// in production.
type WebhookHandlers struct {
	Agents   agents.Repository
	Store    calls.Store
	Legs     LegMap
	Provider Provider
	Notify   Notifier
	Billing  Biller

	Config RouterConfig
}

// HandleVoice serves the routing request fired when a call leg needs dial
// instructions.
func (h WebhookHandlers) HandleVoice(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseVoiceForm(c.Request)
	if err != nil {
		log.Warn("voice webhook parse failed", "err", err)
		metrics.WebhookCallbacksTotal.WithLabelValues("voice", "error").Inc()
		h.respondTwiML(c, NewVoiceResponse().Say("An application error occurred.").Hangup())
		return
	}

	resp := NewVoiceResponse()
	switch {
	case form.To == "":
		resp.Say("No destination number provided.")

	case agents.AgentIDFromIdentity(form.From) != "":
		h.routeOutbound(c.Request.Context(), log, form, resp)

	default:
		h.routeInbound(c.Request.Context(), log, form, resp)
	}

	metrics.WebhookCallbacksTotal.WithLabelValues("voice", "ok").Inc()
	h.respondTwiML(c, resp)
}

// routeOutbound instructs the platform to dial the requested destination,
// tagging the child leg with status and AMD callbacks.
func (h WebhookHandlers) routeOutbound(ctx context.Context, log loggerIface, form VoiceForm, resp *VoiceResponse) {
	agentID := agents.AgentIDFromIdentity(form.From)

	callerID := h.Config.DefaultCallerID
	if ag, err := h.Agents.GetByID(ctx, agentID); err == nil && ag.DirectNumber != "" {
		callerID = ag.DirectNumber
	} else if err != nil {
		log.Warn("caller id resolution failed", "agent_id", agentID, "err", err)
	}

	resp.DialNumber(
		DialOptions{CallerID: callerID, AnswerOnBridge: true},
		NumberTarget{
			Number:               form.To,
			StatusCallback:       h.Config.LegStatusCallbackURL,
			StatusCallbackEvents: []string{"initiated", "ringing", "answered", "completed"},
			MachineDetection:     h.Config.MachineDetection,
			AMDCallback:          h.Config.AMDCallbackURL,
		},
	)
}

// routeInbound rings the owning agent's browser session, or every active
// agent when the number is unowned. The platform bridges the first to accept.
func (h WebhookHandlers) routeInbound(ctx context.Context, log loggerIface, form VoiceForm, resp *VoiceResponse) {
	if owner, err := h.Agents.GetByDirectNumber(ctx, form.To); err == nil && owner.Active {
		resp.DialClients(owner.ClientIdentity())
		return
	}

	active, err := h.Agents.ListActive(ctx)
	if err != nil {
		log.Error("active agent lookup failed", "err", err)
		active = nil
	}
	if len(active) == 0 {
		// RoutingError: the caller hears an unavailability message and no
		// record is created.
		resp.Say("All agents are currently unavailable. Please try again later.").Hangup()
		return
	}

	identities := make([]string, 0, len(active))
	for _, a := range active {
		identities = append(identities, a.ClientIdentity())
	}
	resp.DialClients(identities...)
}

// HandleLegStatus serves child-leg status callbacks. The child leg's terminal
// duration is the sole authoritative talk time and is written onto the parent
// record.
func (h WebhookHandlers) HandleLegStatus(c *gin.Context) {
	log := logger.FromGin(c)
	defer c.Status(http.StatusOK)

	form, err := ParseLegStatusForm(c.Request)
	if err != nil || form.CallSid == "" || form.ParentCallSid == "" {
		log.Warn("leg status callback malformed", "err", err)
		metrics.WebhookCallbacksTotal.WithLabelValues("leg-status", "error").Inc()
		return
	}

	ctx := c.Request.Context()
	if err := h.Legs.Put(ctx, form.CallSid, form.ParentCallSid); err != nil {
		log.Error("leg mapping store failed", "child", form.CallSid, "err", err)
	}

	switch {
	case form.CallStatus == "in-progress":
		// The far end picked up. This push, not the client-local accept, is
		// what starts billable-duration timing on the client.
		rec, err := h.Store.GetByCallID(ctx, form.ParentCallSid)
		if err != nil {
			log.Warn("parent record lookup failed", "parent", form.ParentCallSid, "err", err)
			break
		}
		h.push(rec.AgentID, "call:answered", gin.H{"callSid": form.ParentCallSid})

	case calls.CallStatus(form.CallStatus).IsTerminal():
		if _, err := h.Store.SetDuration(ctx, form.ParentCallSid, form.CallDuration); err != nil {
			log.Error("duration write failed", "parent", form.ParentCallSid, "err", err)
		}
		if err := h.Legs.Delete(ctx, form.CallSid); err != nil {
			log.Error("leg mapping evict failed", "child", form.CallSid, "err", err)
		}
	}

	metrics.WebhookCallbacksTotal.WithLabelValues("leg-status", "ok").Inc()
}

// HandleAMD serves answering-machine-detection results for child legs.
func (h WebhookHandlers) HandleAMD(c *gin.Context) {
	log := logger.FromGin(c)
	defer c.Status(http.StatusOK)

	form, err := ParseAMDForm(c.Request)
	if err != nil || form.CallSid == "" {
		log.Warn("amd callback malformed", "err", err)
		metrics.WebhookCallbacksTotal.WithLabelValues("amd", "error").Inc()
		return
	}
	if !form.IsMachine() {
		metrics.WebhookCallbacksTotal.WithLabelValues("amd", "ok").Inc()
		return
	}

	ctx := c.Request.Context()
	parent, ok, err := h.Legs.Get(ctx, form.CallSid)
	if err != nil || !ok {
		log.Warn("amd for unmapped child leg", "child", form.CallSid, "err", err)
		metrics.WebhookCallbacksTotal.WithLabelValues("amd", "error").Inc()
		return
	}

	// Cut the machine off immediately: the leg is non-billable.
	if err := h.Provider.CompleteCall(ctx, form.CallSid); err != nil {
		log.Error("child leg termination failed", "child", form.CallSid, "err", err)
	}

	rec, err := h.Store.MarkVoicemail(ctx, parent)
	if err != nil {
		log.Error("voicemail mark failed", "parent", parent, "err", err)
	} else {
		h.push(rec.AgentID, "call:voicemail", gin.H{"callSid": parent})
	}

	if err := h.Legs.Delete(ctx, form.CallSid); err != nil {
		log.Error("leg mapping evict failed", "child", form.CallSid, "err", err)
	}

	metrics.VoicemailDetectionsTotal.Inc()
	metrics.WebhookCallbacksTotal.WithLabelValues("amd", "ok").Inc()
}

// HandleStatus serves top-level (parent leg) status callbacks.
func (h WebhookHandlers) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)
	defer c.Status(http.StatusOK)

	form, err := ParseStatusForm(c.Request)
	if err != nil || form.CallSid == "" || form.CallStatus == "" {
		log.Warn("status callback malformed", "err", err)
		metrics.WebhookCallbacksTotal.WithLabelValues("status", "error").Inc()
		return
	}

	ctx := c.Request.Context()
	status := calls.CallStatus(form.CallStatus)

	// Voicemail precedence and ended_at set-once live inside the store
	// update, so a replayed or late callback cannot regress the record.
	// The top-level callback's duration is deliberately ignored: only the
	// child leg's terminal status writes duration.
	rec, err := h.Store.UpdateByProvider(ctx, form.CallSid, calls.Patch{Status: &status})
	if err != nil {
		log.Warn("status update skipped", "call_id", form.CallSid, "status", form.CallStatus, "err", err)
		metrics.WebhookCallbacksTotal.WithLabelValues("status", "error").Inc()
		return
	}

	h.push(rec.AgentID, "call:status", gin.H{
		"callSid":  rec.CallID,
		"status":   rec.Status,
		"duration": rec.DurationSeconds,
	})

	if status.IsTerminal() && h.Billing != nil {
		snap, err := h.Billing.ForAgent(ctx, rec.AgentID)
		if err != nil {
			log.Error("billing recompute failed", "agent_id", rec.AgentID, "err", err)
		} else {
			h.push(rec.AgentID, "billing:updated", snap)
		}
	}

	metrics.WebhookCallbacksTotal.WithLabelValues("status", "ok").Inc()
}

func (h WebhookHandlers) push(agentID, event string, payload any) {
	if h.Notify == nil {
		return
	}
	h.Notify.PushToAgent(agentID, event, payload)
}

func (h WebhookHandlers) respondTwiML(c *gin.Context, resp *VoiceResponse) {
	xml, err := resp.Render()
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.Header("Content-Type", "application/xml")
		c.String(http.StatusOK, `<?xml version="1.0" encoding="UTF-8"?>`+"\n<Response></Response>")
		return
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, xml)
}

// loggerIface keeps the routing helpers testable without a gin context.
type loggerIface interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
