package network

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ConnectionLifecycle(t *testing.T) {
	t.Parallel()

	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordConnection("accepted")
	m.RecordConnection("dialed")
	m.RecordConnection("closed")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionsActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionsTotal.WithLabelValues("accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionsTotal.WithLabelValues("closed")))
}

func TestStreamStats_Counters(t *testing.T) {
	t.Parallel()

	m := NewMetricsWith(prometheus.NewRegistry())
	stats := NewStreamStats(m)

	stats.MessageSent("gzip", 128)
	stats.MessageReceived("identity", 64)
	stats.MessageDelivered()
	stats.CreditGranted(5)
	stats.PendingDepth(3)
	stats.StreamClosed(nil)
	stats.StreamClosed(errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesTotal.WithLabelValues("gzip", "sent")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesTotal.WithLabelValues("identity", "received")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesDelivered))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.CreditGrantedTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.PendingMessages))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StreamClosuresTotal.WithLabelValues("clean")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StreamClosuresTotal.WithLabelValues("error")))
}
