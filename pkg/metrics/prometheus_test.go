package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordCost("stage1", 0.002)
	r.RecordCost("stage1", 0.001)
	r.RecordCost("stage2", 0)
	r.RecordTokens("stage3", 1200, 0)
	r.RecordSynthesis("repair")
	r.RecordSynthesis("repair")
	r.RecordAnalysis("news", "NO_TRADE")
	r.RecordError("llm_unavailable")
	r.RecordStage("stage1", 1.5)

	assert.InDelta(t, 0.003, testutil.ToFloat64(r.costUSD.WithLabelValues("stage1")), 1e-12)
	assert.Equal(t, 1200.0, testutil.ToFloat64(r.tokens.WithLabelValues("stage3", "input")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.synthesis.WithLabelValues("repair")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.analyses.WithLabelValues("news", "NO_TRADE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("llm_unavailable")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.stageDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(r.costUSD), "zero cost must not create a series")
}
