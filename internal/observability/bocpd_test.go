package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/config"
)

func testConfig() config.ObservabilityConfig {
	return config.ObservabilityConfig{
		HazardRate:        1.0 / 250.0,
		MaxRunLength:      500,
		ChangePointThresh: 0.6,
		ConformalWindow:   500,
		ConformalCoverage: 0.90,
		LedgerCapacity:    10000,
	}
}

func TestBOCPDStableLatenciesNeverFlagChangePoint(t *testing.T) {
	b := NewBOCPD(testConfig())
	for i := 0; i < 50; i++ {
		_, flagged := b.Observe(10.0)
		assert.False(t, flagged, "a constant latency stream should never look like a change point")
	}
}

func TestBOCPDDetectsAbruptLevelShift(t *testing.T) {
	b := NewBOCPD(testConfig())
	for i := 0; i < 40; i++ {
		b.Observe(10.0)
	}

	var sawChangePoint bool
	var event *ChangePointEvent
	for i := 0; i < 10; i++ {
		ev, flagged := b.Observe(200.0)
		if flagged {
			sawChangePoint = true
			event = ev
			break
		}
	}
	require.True(t, sawChangePoint, "an abrupt 20x latency jump should eventually cross the change-point threshold")
	assert.Less(t, event.PreMean, event.PostMean)
	assert.Greater(t, event.Probability, 0.0)
	assert.Greater(t, event.SampleIndex, 0)
}

func TestBOCPDBoundsRunLengthHistory(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRunLength = 5
	b := NewBOCPD(cfg)
	for i := 0; i < 100; i++ {
		b.Observe(10.0 + float64(i%3))
	}
	assert.LessOrEqual(t, len(b.runLengthProbs), cfg.MaxRunLength)
}

func TestBOCPDRunLengthProbsAlwaysSumToOne(t *testing.T) {
	b := NewBOCPD(testConfig())
	var sum float64
	for i := 0; i < 20; i++ {
		b.Observe(float64(i))
	}
	for _, p := range b.runLengthProbs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}
