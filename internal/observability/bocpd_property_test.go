package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/config"
)

// TestBOCPDNoRegimeChangeNeverFlags is spec.md's first BOCPD property:
// a latency stream with no regime change — any fixed level, any
// length — must never cross the change-point threshold.
func TestBOCPDNoRegimeChangeNeverFlags(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		level := rapid.Float64Range(1, 1000).Draw(rt, "level")
		n := rapid.IntRange(10, 300).Draw(rt, "n")

		b := NewBOCPD(testConfig())
		for i := 0; i < n; i++ {
			_, flagged := b.Observe(level)
			assert.False(rt, flagged, "a constant latency level must never look like a change point")
		}
	})
}

// TestBOCPDLargeSustainedShiftEventuallyFlags is spec.md's second
// BOCPD property: when the mean shifts by at least 10x and holds for
// at least 200 samples, at least one change-point event must fire
// before the window closes.
func TestBOCPDLargeSustainedShiftEventuallyFlags(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		baseline := rapid.Float64Range(1, 100).Draw(rt, "baseline")
		multiplier := rapid.Float64Range(10, 50).Draw(rt, "multiplier")

		b := NewBOCPD(testConfig())
		for i := 0; i < 40; i++ {
			b.Observe(baseline)
		}

		var sawChangePoint bool
		for i := 0; i < 200; i++ {
			if _, flagged := b.Observe(baseline * multiplier); flagged {
				sawChangePoint = true
				break
			}
		}
		assert.True(rt, sawChangePoint, "a sustained >=10x mean shift over 200 samples must emit a change point")
	})
}

// TestBOCPDChangePointProbabilityAboveThreshold checks that whenever
// Observe reports a change point, its probability is never below the
// configured threshold — the emitted event is internally consistent
// with the detector's own trigger condition.
func TestBOCPDChangePointProbabilityAboveThreshold(t *testing.T) {
	cfg := testConfig()
	b := NewBOCPD(cfg)
	for i := 0; i < 40; i++ {
		b.Observe(10.0)
	}
	var event *ChangePointEvent
	for i := 0; i < 10; i++ {
		if ev, flagged := b.Observe(500.0); flagged {
			event = ev
			break
		}
	}
	require.NotNil(t, event)
	assert.GreaterOrEqual(t, event.Probability, cfg.ChangePointThresh)
}
