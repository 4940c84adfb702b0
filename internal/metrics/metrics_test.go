package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrialsTotalLabels(t *testing.T) {
	before := testutil.ToFloat64(TrialsTotal.WithLabelValues("metrics-test", "PASS"))
	TrialsTotal.WithLabelValues("metrics-test", "PASS").Inc()
	after := testutil.ToFloat64(TrialsTotal.WithLabelValues("metrics-test", "PASS"))
	assert.Equal(t, before+1, after)
}

func TestHistogramsAcceptObservations(t *testing.T) {
	assert.NotPanics(t, func() {
		ConvergenceSeconds.WithLabelValues("metrics-test").Observe(0.2)
		PollAttempts.WithLabelValues("metrics-test").Observe(3)
		TransportLatency.WithLabelValues("GET", "sjc").Observe(0.01)
	})
	assert.Equal(t, 1, testutil.CollectAndCount(PollTransientErrors.WithLabelValues("metrics-test")))
}
