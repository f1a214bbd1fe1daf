package main

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"dialdesk/internal/agents"
	"dialdesk/internal/auth"
	"dialdesk/internal/billing"
	"dialdesk/internal/calls"
	"dialdesk/internal/config"
	"dialdesk/internal/gateway"
	"dialdesk/internal/httpapi"
	"dialdesk/internal/telephony"
	"dialdesk/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// app bundles the wired services for route registration.
// Keep this file free of business logic. Handlers should delegate to internal modules.
type app struct {
	cfg config.Config
	log *slog.Logger

	db       *sql.DB
	auth     *auth.Manager
	agents   agents.Repository
	store    calls.Store
	legs     telephony.LegMap
	hub      *gateway.Hub
	provider telephony.Provider
	voice    *telephony.AccessTokenIssuer
	billing  *billing.Service
}

func (a *app) registerRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), a.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Platform webhooks (public).
	// NOTE: These endpoints should be protected by platform signature validation in production.
	{
		h := telephony.WebhookHandlers{
			Agents:   a.agents,
			Store:    a.store,
			Legs:     a.legs,
			Provider: a.provider,
			Notify:   a.hub,
			Billing:  a.billing,
			Config: telephony.RouterConfig{
				DefaultCallerID:      a.cfg.Twilio.PhoneNumber,
				LegStatusCallbackURL: a.cfg.WebhookURL("/webhooks/twilio/leg-status"),
				AMDCallbackURL:       a.cfg.WebhookURL("/webhooks/twilio/amd"),
				MachineDetection:     true,
			},
		}
		tw := r.Group("/webhooks/twilio")
		tw.POST("/voice", h.HandleVoice)
		tw.POST("/leg-status", h.HandleLegStatus)
		tw.POST("/amd", h.HandleAMD)
		tw.POST("/status", h.HandleStatus)
	}

	api := httpapi.Handlers{Auth: a.auth, Agents: a.agents, Voice: a.voice}
	r.POST("/auth/login", api.Login)
	r.POST("/auth/refresh", api.Refresh)

	// The websocket handshake carries the credential itself (header or
	// ?token=), validated before the upgrade.
	ws := gateway.Handler{Hub: a.hub, Auth: a.auth}
	r.GET("/ws", ws.Serve)

	protected := r.Group("/", auth.RequireAccessToken(a.auth))
	{
		protected.GET("/auth/me", api.Me)
		protected.GET("/token/voice", api.VoiceToken)

		ch := calls.Handlers{Store: a.store, Notify: a.hub, Recordings: a.provider}
		bh := billing.Handler{Service: a.billing}

		cg := protected.Group("/calls")
		cg.POST("", ch.Create)
		cg.PATCH("/:callId", ch.Update)
		cg.DELETE("/:callId", ch.Delete)
		cg.GET("/history", ch.History)
		cg.GET("/inbound-history", ch.InboundHistory)
		cg.GET("/billing", bh.Snapshot)
		cg.GET("/:callId/recording", ch.Recording)
	}
}
