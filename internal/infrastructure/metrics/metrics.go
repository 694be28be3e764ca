package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the realtime collectors. A nil *Metrics records nothing,
// so components can be built without a registry.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	m.EventPublished("ORDER_ADD", "user", metrics.ResultSuccess)
type Metrics struct {
	// EventsPublished counts transport writes.
	// Labels: event_type, channel_kind, result (success|error)
	EventsPublished *prometheus.CounterVec

	// PushNotifications counts push side channel calls.
	// Labels: result (success|error|panic)
	PushNotifications *prometheus.CounterVec

	// Subscriptions counts subscribe requests.
	// Labels: channel_kind, result (accepted|denied|invalid|unavailable)
	Subscriptions *prometheus.CounterVec

	// Deliveries counts envelopes handed to local websocket clients.
	// Labels: result (delivered|dropped)
	Deliveries *prometheus.CounterVec

	// ConnectedUsers is the global connected-user count last observed.
	ConnectedUsers prometheus.Gauge

	// LocalClients is the number of websocket connections on this instance.
	LocalClients prometheus.Gauge
}

const (
	ResultSuccess     = "success"
	ResultError       = "error"
	ResultPanic       = "panic"
	ResultAccepted    = "accepted"
	ResultDenied      = "denied"
	ResultInvalid     = "invalid"
	ResultUnavailable = "unavailable"
	ResultDelivered   = "delivered"
	ResultDropped     = "dropped"
)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_events_published_total",
				Help: "Total number of envelopes written to the transport by event type, channel kind and result",
			},
			[]string{"event_type", "channel_kind", "result"},
		),

		PushNotifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_push_notifications_total",
				Help: "Total number of push side channel calls by result",
			},
			[]string{"result"},
		),

		Subscriptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_subscriptions_total",
				Help: "Total number of subscribe requests by channel kind and result",
			},
			[]string{"channel_kind", "result"},
		),

		Deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_deliveries_total",
				Help: "Total number of envelopes handed to local clients by result",
			},
			[]string{"result"},
		),

		ConnectedUsers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "realtime_connected_users",
				Help: "Connected realtime users across all instances",
			},
		),

		LocalClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "realtime_local_clients",
				Help: "Websocket connections held by this instance",
			},
		),
	}
}

// EventPublished records one transport write.
func (m *Metrics) EventPublished(eventType, channelKind, result string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType, channelKind, result).Inc()
}

// PushSent records one push side channel call.
func (m *Metrics) PushSent(result string) {
	if m == nil {
		return
	}
	m.PushNotifications.WithLabelValues(result).Inc()
}

// SubscriptionHandled records one subscribe request.
func (m *Metrics) SubscriptionHandled(channelKind, result string) {
	if m == nil {
		return
	}
	m.Subscriptions.WithLabelValues(channelKind, result).Inc()
}

// Delivery records the fate of n envelope copies.
func (m *Metrics) Delivery(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Deliveries.WithLabelValues(result).Add(float64(n))
}

// SetConnectedUsers records the global connected-user count.
func (m *Metrics) SetConnectedUsers(n int64) {
	if m == nil {
		return
	}
	m.ConnectedUsers.Set(float64(n))
}

// SetLocalClients records the local websocket connection count.
func (m *Metrics) SetLocalClients(n int) {
	if m == nil {
		return
	}
	m.LocalClients.Set(float64(n))
}
