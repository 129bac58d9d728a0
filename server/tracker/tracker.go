package tracker

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/prometheus-fit/neiro/server/detector"
	"github.com/prometheus-fit/neiro/server/models"
	"go.uber.org/zap"
)

// Defaults match the tuned values from the mobile tracking sessions.
const (
	DefaultLockRadius = 200
	DefaultEMAAlpha   = 0.4
)

// Tracker follows a single barbell through a frame stream. Tap-to-lock
// restricts candidate selection to a radius around the lock position;
// the reported position is EMA-smoothed and the lock follows it.
//
// A mutex guards all state: Detect runs on the session worker while
// the introspection endpoints read counters from HTTP goroutines.
type Tracker struct {
	detector detector.Detector
	logger   *zap.Logger

	mu              sync.Mutex
	lockX, lockY    float64
	locked          bool
	smoothedX       float64
	smoothedY       float64
	hasSmoothed     bool
	lockRadius      float64
	emaAlpha        float64
	frameCount      int64
	detectionCount  int64
	lastInferenceMs float64
}

func New(det detector.Detector, lockRadius, emaAlpha float64, logger *zap.Logger) *Tracker {
	if lockRadius <= 0 {
		lockRadius = DefaultLockRadius
	}
	if emaAlpha <= 0 || emaAlpha > 1 {
		emaAlpha = DefaultEMAAlpha
	}

	return &Tracker{
		detector:   det,
		logger:     logger,
		lockRadius: lockRadius,
		emaAlpha:   emaAlpha,
	}
}

// LockToPosition locks candidate selection to a screen point and seeds
// the smoothed position there.
func (t *Tracker) LockToPosition(x, y float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lockX, t.lockY = x, y
	t.locked = true
	t.smoothedX, t.smoothedY = x, y
	t.hasSmoothed = true

	t.logger.Info("Locked to position",
		zap.Float64("x", x),
		zap.Float64("y", y))
}

// Unlock clears the lock; detection considers the whole frame again.
func (t *Tracker) Unlock() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.locked = false
	t.logger.Info("Position unlocked")
}

// Reset returns the tracker to its initial state. Idempotent.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.locked = false
	t.hasSmoothed = false
	t.smoothedX, t.smoothedY = 0, 0
	t.frameCount = 0
	t.detectionCount = 0
	t.lastInferenceMs = 0

	t.logger.Info("Tracker reset")
}

// Detect runs the detector on a frame and returns the smoothed
// position of the best-scoring candidate. When no candidate survives
// scoring (or the lock filter) the result carries zeros with conf 0.
func (t *Tracker) Detect(ctx context.Context, frame []byte) (*models.TrackResult, error) {
	t.mu.Lock()
	t.frameCount++
	t.mu.Unlock()

	start := time.Now()
	detections, err := t.detector.Detect(ctx, frame)
	inferenceMs := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		t.logger.Error("Detection error", zap.Error(err))
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastInferenceMs = inferenceMs

	best, found := t.selectBest(detections)
	if !found {
		return &models.TrackResult{InferenceMs: inferenceMs}, nil
	}

	t.detectionCount++

	// First detection seeds the filter; later ones blend in.
	if !t.hasSmoothed {
		t.smoothedX = best.X
		t.smoothedY = best.Y
		t.hasSmoothed = true
	} else {
		t.smoothedX = t.emaAlpha*best.X + (1-t.emaAlpha)*t.smoothedX
		t.smoothedY = t.emaAlpha*best.Y + (1-t.emaAlpha)*t.smoothedY
	}

	// The lock follows the smoothed target.
	if t.locked {
		t.lockX = t.smoothedX
		t.lockY = t.smoothedY
	}

	return &models.TrackResult{
		X:           t.smoothedX,
		Y:           t.smoothedY,
		W:           best.Width,
		H:           best.Height,
		Conf:        best.Confidence,
		InferenceMs: inferenceMs,
	}, nil
}

// selectBest scores every candidate and returns the winner. While
// locked, candidates outside the lock radius are discarded and the
// rest are scored by confidence weighted by proximity to the lock.
// Caller must hold t.mu.
func (t *Tracker) selectBest(detections []models.Detection) (models.Detection, bool) {
	var best models.Detection
	bestScore := 0.0
	found := false

	for _, det := range detections {
		score := det.Confidence

		if t.locked {
			dist := math.Hypot(det.X-t.lockX, det.Y-t.lockY)
			if dist > t.lockRadius {
				continue
			}
			score = det.Confidence * (1 - dist/t.lockRadius)
		}

		if score > bestScore {
			bestScore = score
			best = det
			found = true
		}
	}

	return best, found
}

// Stats returns a snapshot for the introspection endpoints.
func (t *Tracker) Stats() models.TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return models.TrackerStats{
		FrameCount:     t.frameCount,
		DetectionCount: t.detectionCount,
		Locked:         t.locked,
	}
}

// SmoothedPosition returns the current filtered position; ok is false
// before the first successful detection or lock.
func (t *Tracker) SmoothedPosition() (x, y float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.smoothedX, t.smoothedY, t.hasSmoothed
}

// LockPosition returns the current lock point; ok is false while
// unlocked.
func (t *Tracker) LockPosition() (x, y float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lockX, t.lockY, t.locked
}

// LastInferenceMs reports the latency of the most recent inference.
func (t *Tracker) LastInferenceMs() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastInferenceMs
}
