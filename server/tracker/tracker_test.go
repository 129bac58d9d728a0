package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus-fit/neiro/server/detector"
	"github.com/prometheus-fit/neiro/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTracker(det detector.Detector) *Tracker {
	return New(det, DefaultLockRadius, DefaultEMAAlpha, zap.NewNop())
}

func TestDetectEMASmoothing(t *testing.T) {
	mock := detector.NewMock(
		[]models.Detection{{X: 10, Y: 10, Width: 40, Height: 40, Confidence: 0.9}},
		[]models.Detection{{X: 20, Y: 20, Width: 40, Height: 40, Confidence: 0.9}},
	)
	tr := newTestTracker(mock)

	first, err := tr.Detect(context.Background(), []byte("frame-1"))
	require.NoError(t, err)
	assert.InDelta(t, 10, first.X, 1e-9)
	assert.InDelta(t, 10, first.Y, 1e-9)

	// alpha=0.4: 0.4*20 + 0.6*10 = 14
	second, err := tr.Detect(context.Background(), []byte("frame-2"))
	require.NoError(t, err)
	assert.InDelta(t, 14, second.X, 1e-9)
	assert.InDelta(t, 14, second.Y, 1e-9)
}

func TestDetectLockFiltersDistantCandidates(t *testing.T) {
	// A very confident detection outside the lock radius must never win
	// over a weaker one inside it.
	mock := detector.NewMock([]models.Detection{
		{X: 900, Y: 900, Width: 50, Height: 50, Confidence: 0.99},
		{X: 120, Y: 110, Width: 50, Height: 50, Confidence: 0.4},
	})
	tr := newTestTracker(mock)
	tr.LockToPosition(100, 100)

	result, err := tr.Detect(context.Background(), []byte("frame"))
	require.NoError(t, err)

	assert.InDelta(t, 0.4, result.Conf, 1e-9)
	// Smoothed from the lock seed (100,100) toward (120,110).
	assert.InDelta(t, 108, result.X, 1e-9)
	assert.InDelta(t, 104, result.Y, 1e-9)
}

func TestDetectLockDiscardsAllWhenNothingInRadius(t *testing.T) {
	mock := detector.NewMock([]models.Detection{
		{X: 900, Y: 900, Width: 50, Height: 50, Confidence: 0.99},
	})
	tr := newTestTracker(mock)
	tr.LockToPosition(100, 100)

	result, err := tr.Detect(context.Background(), []byte("frame"))
	require.NoError(t, err)

	assert.Zero(t, result.Conf)
	assert.Zero(t, result.W)

	stats := tr.Stats()
	assert.EqualValues(t, 1, stats.FrameCount)
	assert.EqualValues(t, 0, stats.DetectionCount)
}

func TestDetectLockFollowsSmoothedPosition(t *testing.T) {
	mock := detector.NewMock([]models.Detection{
		{X: 150, Y: 250, Width: 50, Height: 50, Confidence: 0.8},
	})
	tr := newTestTracker(mock)
	tr.LockToPosition(150, 250)

	// Detecting exactly at the lock point leaves the smoothed position
	// unchanged and keeps the lock glued to it.
	result, err := tr.Detect(context.Background(), []byte("frame"))
	require.NoError(t, err)
	assert.InDelta(t, 150, result.X, 1e-9)
	assert.InDelta(t, 250, result.Y, 1e-9)

	lx, ly, locked := tr.LockPosition()
	require.True(t, locked)
	assert.InDelta(t, 150, lx, 1e-9)
	assert.InDelta(t, 250, ly, 1e-9)
}

func TestDetectWithoutLockPicksHighestConfidence(t *testing.T) {
	mock := detector.NewMock([]models.Detection{
		{X: 10, Y: 10, Width: 20, Height: 20, Confidence: 0.3},
		{X: 500, Y: 500, Width: 60, Height: 60, Confidence: 0.7},
	})
	tr := newTestTracker(mock)

	result, err := tr.Detect(context.Background(), []byte("frame"))
	require.NoError(t, err)

	assert.InDelta(t, 500, result.X, 1e-9)
	assert.InDelta(t, 0.7, result.Conf, 1e-9)
	assert.InDelta(t, 60, result.W, 1e-9)
}

func TestDetectDetectorFailure(t *testing.T) {
	mock := detector.NewMock()
	mock.Fail(errors.New("model crashed"))
	tr := newTestTracker(mock)

	_, err := tr.Detect(context.Background(), []byte("frame"))
	require.Error(t, err)

	// Frame is still counted, but no detection happened.
	stats := tr.Stats()
	assert.EqualValues(t, 1, stats.FrameCount)
	assert.EqualValues(t, 0, stats.DetectionCount)
}

func TestResetIsIdempotent(t *testing.T) {
	mock := detector.NewMock([]models.Detection{
		{X: 100, Y: 100, Width: 40, Height: 40, Confidence: 0.9},
	})
	tr := newTestTracker(mock)
	tr.LockToPosition(100, 100)

	_, err := tr.Detect(context.Background(), []byte("frame"))
	require.NoError(t, err)

	tr.Reset()
	tr.Reset()

	stats := tr.Stats()
	assert.EqualValues(t, 0, stats.FrameCount)
	assert.EqualValues(t, 0, stats.DetectionCount)
	assert.False(t, stats.Locked)

	_, _, hasSmoothed := tr.SmoothedPosition()
	assert.False(t, hasSmoothed)
}

func TestUnlockKeepsSmoothedPosition(t *testing.T) {
	mock := detector.NewMock([]models.Detection{
		{X: 100, Y: 100, Width: 40, Height: 40, Confidence: 0.9},
	})
	tr := newTestTracker(mock)
	tr.LockToPosition(100, 100)

	_, err := tr.Detect(context.Background(), []byte("frame"))
	require.NoError(t, err)

	tr.Unlock()

	_, _, locked := tr.LockPosition()
	assert.False(t, locked)
	_, _, hasSmoothed := tr.SmoothedPosition()
	assert.True(t, hasSmoothed)
}
