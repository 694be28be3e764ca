package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.EventPublished("ORDER_ADD", "user", ResultSuccess)
	m.EventPublished("ORDER_ADD", "user", ResultSuccess)
	m.EventPublished("POS_ADD", "staff", ResultError)
	m.PushSent(ResultPanic)
	m.SubscriptionHandled("admin", ResultDenied)
	m.Delivery(ResultDelivered, 3)
	m.Delivery(ResultDropped, 0)
	m.SetConnectedUsers(7)
	m.SetLocalClients(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("ORDER_ADD", "user", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("POS_ADD", "staff", ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PushNotifications.WithLabelValues(ResultPanic)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Subscriptions.WithLabelValues("admin", ResultDenied)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(ResultDelivered)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ConnectedUsers))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LocalClients))

	assert.Equal(t, 1, testutil.CollectAndCount(m.Deliveries), "zero-sized deliveries create no series")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.EventPublished("ORDER_ADD", "user", ResultSuccess)
		m.PushSent(ResultError)
		m.SubscriptionHandled("public", ResultAccepted)
		m.Delivery(ResultDropped, 1)
		m.SetConnectedUsers(1)
		m.SetLocalClients(1)
	})
}
