package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the relay's prometheus registry for scraping.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

var (
	roomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "racer_relay_rooms_active",
		Help: "Number of rooms created and not yet Closed.",
	})
	messagesForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "racer_relay_messages_forwarded_total",
		Help: "Total inbound messages forwarded to their recipient.",
	})
	messagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "racer_relay_messages_dropped_total",
		Help: "Total inbound messages dropped, labeled by reason.",
	}, []string{"reason"})
	usersRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "racer_relay_users_registered_total",
		Help: "Total users registered.",
	})
)

const (
	dropReasonUnknownRecipient = "unknown_recipient"
	dropReasonFaultInjection   = "fault_injection"
	dropReasonBackpressure     = "backpressure"
)
