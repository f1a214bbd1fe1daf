package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectedAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dialer_connected_agents",
		Help: "Number of agents with a live gateway connection",
	})

	WebhookCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialer_webhook_callbacks_total",
		Help: "Telephony platform callbacks processed, by kind and outcome",
	}, []string{"kind", "outcome"})

	PushedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialer_pushed_events_total",
		Help: "Events pushed to agents over the gateway, by event name",
	}, []string{"event"})

	DroppedPushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialer_dropped_pushes_total",
		Help: "Targeted pushes dropped because the agent send buffer was full",
	})

	VoicemailDetectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialer_voicemail_detections_total",
		Help: "Outbound legs classified as machine or fax by AMD",
	})
)
