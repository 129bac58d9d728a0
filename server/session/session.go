package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus-fit/neiro/server/calibration"
	"github.com/prometheus-fit/neiro/server/metrics"
	"github.com/prometheus-fit/neiro/server/models"
	"github.com/prometheus-fit/neiro/server/tracker"
	"github.com/prometheus-fit/neiro/server/vbt"
	"go.uber.org/zap"
)

// Session is the per-connection tracking state: one tracker, one
// calibration manager, one rep segmenter and the inbound message
// queue. All processing happens on the single session worker, so the
// tracking pipeline needs no further locking.
type Session struct {
	ID         string
	ClientAddr string

	Tracker     *tracker.Tracker
	Calibration *calibration.Manager
	Segmenter   *vbt.Segmenter
	Queue       *InboundQueue

	logger       *zap.Logger
	metrics      *metrics.Manager
	frameTimeout time.Duration
	started      time.Time
	now          func() time.Time
}

type Options struct {
	ClientAddr   string
	Tracker      *tracker.Tracker
	Calibration  *calibration.Manager
	Segmenter    *vbt.Segmenter
	QueueSize    int
	FrameTimeout time.Duration
	Metrics      *metrics.Manager
	Logger       *zap.Logger
}

func New(opts Options) *Session {
	if opts.FrameTimeout <= 0 {
		opts.FrameTimeout = 5 * time.Second
	}

	return &Session{
		ID:           uuid.NewString(),
		ClientAddr:   opts.ClientAddr,
		Tracker:      opts.Tracker,
		Calibration:  opts.Calibration,
		Segmenter:    opts.Segmenter,
		Queue:        NewInboundQueue(opts.QueueSize),
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		frameTimeout: opts.FrameTimeout,
		started:      time.Now(),
		now:          time.Now,
	}
}

// Handle processes one inbound message and returns the response
// payload to write back. Per-message errors are reported in-band; the
// session always continues.
func (s *Session) Handle(ctx context.Context, msg Message) map[string]any {
	switch msg.Kind {
	case KindFrame:
		return s.processFrame(ctx, msg.Data)
	default:
		return s.handleCommand(msg.Data)
	}
}

func (s *Session) processFrame(ctx context.Context, frame []byte) map[string]any {
	if _, err := jpeg.DecodeConfig(bytes.NewReader(frame)); err != nil {
		s.logger.Warn("Frame decode failed", zap.Error(err))
		return map[string]any{"error": "Invalid image data"}
	}

	s.metrics.FrameReceived()

	detectCtx, cancel := context.WithTimeout(ctx, s.frameTimeout)
	defer cancel()

	result, err := s.Tracker.Detect(detectCtx, frame)
	if err != nil {
		s.logger.Error("Frame processing error", zap.Error(err))
		return map[string]any{"error": err.Error(), "inference_ms": 0}
	}

	s.metrics.ObserveInference(result.InferenceMs)

	// Only real detections feed the trajectory; a zero-confidence
	// result means the barbell was not seen this frame.
	if result.Conf > 0 {
		s.metrics.DetectionMade()
		before := len(s.Segmenter.Reps())
		s.Segmenter.AddSample(s.elapsed(), result.Y, result.Conf)
		if completed := len(s.Segmenter.Reps()) - before; completed > 0 {
			s.metrics.RepsCompleted(completed)
		}
	}

	return map[string]any{
		"x":            result.X,
		"y":            result.Y,
		"w":            result.W,
		"h":            result.H,
		"conf":         result.Conf,
		"inference_ms": result.InferenceMs,
	}
}

func (s *Session) handleCommand(raw []byte) map[string]any {
	var cmd models.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return map[string]any{"error": "Invalid JSON"}
	}

	switch cmd.Action {
	case "lock":
		s.Tracker.LockToPosition(cmd.X, cmd.Y)
		return map[string]any{"status": "locked", "x": cmd.X, "y": cmd.Y}

	case "unlock":
		s.Tracker.Unlock()
		return map[string]any{"status": "unlocked"}

	case "ping":
		stats := s.Tracker.Stats()
		return map[string]any{
			"status":          "pong",
			"frame_count":     stats.FrameCount,
			"detection_count": stats.DetectionCount,
		}

	case "reset":
		s.Tracker.Reset()
		s.resetTrajectory()
		return map[string]any{"status": "reset"}

	case "calibrate":
		tier := s.Calibration.CalibrateAuto(calibration.AutoOptions{
			Depth:            cmd.Depth,
			BarbellBoxHeight: cmd.BarbellBoxHeight,
			UserHeightCm:     cmd.UserHeightCm,
			ShoulderToHipPx:  cmd.ShoulderToHipPx,
		})
		s.logger.Info("Calibration updated", zap.String("tier", string(tier)))
		return map[string]any{"status": "calibrated", "calibration": s.Calibration.Info()}

	case "summary":
		summary := s.Segmenter.Summary()
		return map[string]any{
			"status":      "summary",
			"metrics":     summary,
			"calibration": s.Calibration.Info(),
		}

	default:
		return map[string]any{"error": fmt.Sprintf("Unknown action: %s", cmd.Action)}
	}
}

// resetTrajectory starts a fresh set. Calibration survives: it belongs
// to the camera setup, not to the set.
func (s *Session) resetTrajectory() {
	s.Segmenter = vbt.NewSegmenter(s.Calibration, s.Segmenter.Config(), s.logger)
}

func (s *Session) elapsed() float64 {
	return s.now().Sub(s.started).Seconds()
}

// Stats is the introspection view used by the connections listing.
func (s *Session) Stats() models.TrackerStats {
	return s.Tracker.Stats()
}
