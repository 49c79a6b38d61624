package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInteractionsCounter(t *testing.T) {
	before := testutil.ToFloat64(Interactions.WithLabelValues("send-gift", OutcomeRateLimited))
	Interactions.WithLabelValues("send-gift", OutcomeRateLimited).Inc()
	after := testutil.ToFloat64(Interactions.WithLabelValues("send-gift", OutcomeRateLimited))
	assert.Equal(t, before+1, after)
}

func TestGauges(t *testing.T) {
	ConnectedSockets.Set(0)
	ConnectedSockets.Inc()
	ConnectedSockets.Inc()
	ConnectedSockets.Dec()
	assert.Equal(t, float64(1), testutil.ToFloat64(ConnectedSockets))
	ConnectedSockets.Set(0)
}

func TestCollectorsRegistered(t *testing.T) {
	BatchFlushes.WithLabelValues("gift-sent", TriggerSize).Inc()
	BatchSize.WithLabelValues("gift-sent").Observe(5)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(BatchFlushes), 1)
	assert.Equal(t, 1, testutil.CollectAndCount(BatchSize))
}
