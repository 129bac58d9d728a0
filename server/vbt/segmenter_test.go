package vbt

import (
	"testing"

	"github.com/prometheus-fit/neiro/server/calibration"
	"github.com/prometheus-fit/neiro/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const frameInterval = 1.0 / 30.0

func calibratedManager(t *testing.T) *calibration.Manager {
	t.Helper()
	m := calibration.NewManager(zap.NewNop())
	// 450px plate at 0.45m diameter: exactly 1000 px/m.
	require.True(t, m.CalibrateFromBarbell(450, calibration.PlateDiameter45lb))
	return m
}

func newTestSegmenter(cal *calibration.Manager) *Segmenter {
	return NewSegmenter(cal, DefaultConfig(), zap.NewNop())
}

// feedSquat streams a symmetric descent/ascent trajectory: down
// descentPx over downFrames, back up over upFrames.
func feedSquat(s *Segmenter, startT, startY, descentPx float64, downFrames, upFrames int) float64 {
	t := startT
	y := startY
	downStep := descentPx / float64(downFrames)
	upStep := descentPx / float64(upFrames)

	s.AddSample(t, y, 0.9)
	for i := 0; i < downFrames; i++ {
		t += frameInterval
		y += downStep
		s.AddSample(t, y, 0.9)
	}
	for i := 0; i < upFrames; i++ {
		t += frameInterval
		y -= upStep
		s.AddSample(t, y, 0.9)
	}
	return t
}

func TestSingleRepEndToEnd(t *testing.T) {
	s := newTestSegmenter(calibratedManager(t))

	// 200px descent and ascent over 15 frames each at 30fps.
	feedSquat(s, 0, 100, 200, 15, 15)

	summary := s.Summary()
	require.Equal(t, models.SummaryStatusOK, summary.Status)
	require.Len(t, summary.Reps, 1)

	rep := summary.Reps[0]
	assert.Equal(t, 1, rep.RepNumber)

	// Phase durations must cover the whole rep within one frame interval.
	total := rep.EndTs - rep.StartTs
	assert.InDelta(t, total, rep.ConcentricDuration+rep.EccentricDuration, frameInterval)

	// 200px at 1000 px/m is 0.20m of ROM.
	assert.InDelta(t, 0.20, rep.ROM, 0.01)

	// Constant ascent rate: 200px over 0.5s = 400 px/s = 0.4 m/s.
	assert.InDelta(t, 0.4, rep.PeakVelocity, 0.02)
	assert.InDelta(t, 0.4, rep.AvgVelocity, 0.02)
	assert.Equal(t, models.UnitMetersPerSecond, summary.Unit)
}

func TestMultipleRepsAreOrderedAndNonOverlapping(t *testing.T) {
	s := newTestSegmenter(calibratedManager(t))

	end := feedSquat(s, 0, 100, 200, 15, 15)
	end = feedSquat(s, end+frameInterval, 100, 220, 15, 15)
	feedSquat(s, end+frameInterval, 100, 180, 15, 15)

	summary := s.Summary()
	require.Equal(t, 3, summary.RepsDetected)

	for i, rep := range summary.Reps {
		assert.Equal(t, i+1, rep.RepNumber)
		assert.Less(t, rep.StartTs, rep.EndTs)
		if i > 0 {
			assert.GreaterOrEqual(t, rep.StartTs, summary.Reps[i-1].EndTs)
		}
	}
}

func TestMicroJitterProducesNoReps(t *testing.T) {
	s := newTestSegmenter(calibratedManager(t))

	// 10px oscillations: below the 0.05m displacement floor.
	y := 100.0
	for i := 0; i < 120; i++ {
		t0 := float64(i) * frameInterval
		if i%6 < 3 {
			y += 10
		} else {
			y -= 10
		}
		s.AddSample(t0, y, 0.9)
	}

	summary := s.Summary()
	assert.Equal(t, models.SummaryStatusNoReps, summary.Status)
	assert.Zero(t, summary.RepsDetected)
	assert.Empty(t, summary.Reps)
}

func TestNoiseSpikeRejectedByDuration(t *testing.T) {
	s := newTestSegmenter(calibratedManager(t))

	// Full-depth movement crammed into 4 frames (~0.13s): a detector
	// glitch, not a rep.
	feedSquat(s, 0, 100, 200, 2, 2)

	summary := s.Summary()
	assert.Equal(t, models.SummaryStatusNoReps, summary.Status)
}

func TestUncalibratedUsesSpeedIndex(t *testing.T) {
	cal := calibration.NewManager(zap.NewNop())
	s := newTestSegmenter(cal)

	feedSquat(s, 0, 100, 200, 15, 15)

	summary := s.Summary()
	require.Equal(t, models.SummaryStatusOK, summary.Status)
	require.Len(t, summary.Reps, 1)

	assert.Equal(t, models.UnitSpeedIndex, summary.Unit)

	rep := summary.Reps[0]
	// The constant-rate ascent matches the session max rate.
	assert.InDelta(t, 100, rep.PeakVelocity, 1)
	assert.LessOrEqual(t, rep.PeakVelocity, 100.0)
	// First rep defines the ROM scale.
	assert.InDelta(t, 100, rep.ROM, 1e-9)
}

func TestLowConfidenceRepExcludedFromAggregates(t *testing.T) {
	s := newTestSegmenter(calibratedManager(t))

	// First rep at solid confidence.
	end := feedSquat(s, 0, 100, 200, 15, 15)

	// Second rep with conf 0.2 samples: flagged, kept, excluded.
	t0 := end + frameInterval
	y := 100.0
	s.AddSample(t0, y, 0.2)
	for i := 0; i < 15; i++ {
		t0 += frameInterval
		y += 200.0 / 15
		s.AddSample(t0, y, 0.2)
	}
	for i := 0; i < 15; i++ {
		t0 += frameInterval
		y -= 200.0 / 15
		s.AddSample(t0, y, 0.2)
	}

	summary := s.Summary()
	require.Equal(t, 2, summary.RepsDetected)
	require.Len(t, summary.Reps, 2)

	assert.False(t, summary.Reps[0].LowConfidence)
	assert.True(t, summary.Reps[1].LowConfidence)

	// Aggregates come from rep 1 alone.
	assert.InDelta(t, summary.Reps[0].PeakVelocity, summary.AvgPeakVelocity, 1e-9)
	assert.InDelta(t, summary.Reps[0].ROM, summary.AvgROM, 1e-9)
	assert.Zero(t, summary.VelocityDropPercent)
}

func TestVelocityDropAcrossSet(t *testing.T) {
	s := newTestSegmenter(calibratedManager(t))

	// Same depth, slower ascent every rep: classic fatigue pattern.
	end := feedSquat(s, 0, 100, 200, 15, 15)
	end = feedSquat(s, end+frameInterval, 100, 200, 15, 20)
	feedSquat(s, end+frameInterval, 100, 200, 15, 30)

	summary := s.Summary()
	require.Equal(t, 3, summary.RepsDetected)

	first := summary.Reps[0].PeakVelocity
	last := summary.Reps[2].PeakVelocity
	assert.Greater(t, first, last)
	assert.InDelta(t, (first-last)/first*100, summary.VelocityDropPercent, 1e-6)
	assert.Equal(t, summary.MaxPeakVelocity, first)
}

func TestEmptySessionSummary(t *testing.T) {
	s := newTestSegmenter(calibratedManager(t))

	summary := s.Summary()
	assert.Equal(t, models.SummaryStatusNoReps, summary.Status)
	assert.Zero(t, summary.AvgPeakVelocity)
	assert.Equal(t, models.UnitMetersPerSecond, summary.Unit)
}

func TestPerFrameVelocityUnit(t *testing.T) {
	cal := calibration.NewManager(zap.NewNop())
	s := newTestSegmenter(cal)

	s.AddSample(0, 100, 0.9)
	s.AddSample(frameInterval, 110, 0.9)

	_, unit := s.Velocity()
	assert.Equal(t, models.UnitSpeedIndex, unit)

	require.True(t, cal.CalibrateFromBarbell(450, calibration.PlateDiameter45lb))
	s.AddSample(2*frameInterval, 120, 0.9)

	v, unit := s.Velocity()
	assert.Equal(t, models.UnitMetersPerSecond, unit)
	// 10px over one frame at 1000 px/m: 0.3 m/s downward.
	assert.InDelta(t, 0.3, v, 0.01)
}
