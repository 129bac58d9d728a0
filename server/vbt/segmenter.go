// Package vbt segments a barbell trajectory into repetitions and
// computes Velocity Based Training metrics. Velocity is reported in
// m/s when a calibration is active, otherwise as a relative speed
// index (0-100) normalized against the session's running maximum
// displacement rate.
package vbt

import (
	"time"

	"github.com/prometheus-fit/neiro/server/calibration"
	"github.com/prometheus-fit/neiro/server/models"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Config sets the rep-boundary thresholds. Displacement thresholds
// reject micro-jitter; the duration threshold rejects noise spikes.
type Config struct {
	MinDisplacementM  float64
	MinDisplacementPx float64
	MinDuration       time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinDisplacementM:  0.05,
		MinDisplacementPx: 30,
		MinDuration:       300 * time.Millisecond,
	}
}

// Velocities slower than this (px/s) count as zero when classifying
// movement direction.
const directionEpsPxPerSec = 5.0

// A top extremum held this many consecutive near-zero samples closes
// the rep even without a reversal into the next descent.
const dwellFramesToComplete = 3

// Reps with fewer samples than this, or with mean detection confidence
// below lowConfidenceMean, are flagged and excluded from aggregates.
const (
	minRepSamples     = 4
	lowConfidenceMean = 0.5
)

type phase int

const (
	phaseIdle phase = iota
	phaseEccentric
	phaseConcentric
)

// Segmenter consumes an ordered stream of (timestamp, vertical
// position) samples and appends completed reps incrementally. It is
// owned by the session worker and not safe for concurrent use.
//
// The rep model assumes lockout at the top of the movement (squat,
// bench, press): eccentric is the descent, concentric the ascent, and
// a rep completes at the top extremum where velocity crosses zero.
type Segmenter struct {
	cal    *calibration.Manager
	logger *zap.Logger
	config Config

	started    bool
	prevT      float64
	prevY      float64
	phase      phase
	dwellCount int

	startTs  float64
	startY   float64
	bottomTs float64
	bottomY  float64
	topTs    float64
	topY     float64

	repConfSum     float64
	repSamples     int
	peakAscentRate float64 // px/s within the current concentric phase

	lastVelocity float64 // per-frame velocity in the active unit

	maxRatePx float64 // session running max |dy/dt| in px/s
	maxROMPx  float64 // session running max rep ROM in px

	reps []models.Rep
}

func NewSegmenter(cal *calibration.Manager, config Config, logger *zap.Logger) *Segmenter {
	if config.MinDuration <= 0 {
		config = DefaultConfig()
	}

	return &Segmenter{
		cal:    cal,
		logger: logger,
		config: config,
	}
}

// AddSample feeds one smoothed tracker position. t is seconds since
// session start, y the vertical screen position in pixels (growing
// downward), conf the detection confidence of the frame.
func (s *Segmenter) AddSample(t, y, conf float64) {
	if !s.started {
		s.started = true
		s.prevT, s.prevY = t, y
		return
	}

	dt := t - s.prevT
	if dt <= 0 {
		return
	}

	rate := (y - s.prevY) / dt // px/s, positive = moving down
	if abs(rate) > s.maxRatePx {
		s.maxRatePx = abs(rate)
	}
	s.lastVelocity = s.frameVelocity(rate)

	dir := 0
	switch {
	case rate > directionEpsPxPerSec:
		dir = 1
	case rate < -directionEpsPxPerSec:
		dir = -1
	}

	switch s.phase {
	case phaseIdle:
		if dir == 1 {
			s.beginRep(s.prevT, s.prevY)
			s.observe(t, y, conf)
			if y > s.bottomY {
				s.bottomY, s.bottomTs = y, t
			}
		}

	case phaseEccentric:
		s.observe(t, y, conf)
		if y > s.bottomY {
			s.bottomY, s.bottomTs = y, t
		}
		if dir == -1 {
			s.phase = phaseConcentric
			s.topY, s.topTs = y, t
			s.dwellCount = 0
		}

	case phaseConcentric:
		s.observe(t, y, conf)
		if y < s.topY {
			s.topY, s.topTs = y, t
		}
		if dir == -1 && -rate > s.peakAscentRate {
			s.peakAscentRate = -rate
		}

		switch dir {
		case 1:
			// Reversal into the next descent: the rep ended at the top
			// extremum, and the new descent starts there.
			s.completeRep(s.topTs, s.topY)
			s.beginRep(s.topTs, s.topY)
			s.observe(t, y, conf)
			if y > s.bottomY {
				s.bottomY, s.bottomTs = y, t
			}
		case 0:
			s.dwellCount++
			if s.dwellCount >= dwellFramesToComplete {
				s.completeRep(s.topTs, s.topY)
				s.phase = phaseIdle
			}
		default:
			s.dwellCount = 0
		}
	}

	s.prevT, s.prevY = t, y
}

func (s *Segmenter) beginRep(t, y float64) {
	s.phase = phaseEccentric
	s.startTs, s.startY = t, y
	s.bottomTs, s.bottomY = t, y
	s.topTs, s.topY = t, y
	s.repConfSum = 0
	s.repSamples = 0
	s.peakAscentRate = 0
	s.dwellCount = 0
}

func (s *Segmenter) observe(t, y, conf float64) {
	s.repConfSum += conf
	s.repSamples++
}

// completeRep validates the candidate rep ending at (endTs, endY) and
// appends it if it clears the jitter and duration thresholds.
func (s *Segmenter) completeRep(endTs, endY float64) {
	duration := endTs - s.startTs
	romPx := s.bottomY - endY
	descentPx := s.bottomY - s.startY

	if duration < s.config.MinDuration.Seconds() {
		s.logger.Debug("Rep rejected: too short",
			zap.Float64("duration_s", duration))
		return
	}

	if !s.clearsDisplacement(romPx) || !s.clearsDisplacement(descentPx) {
		s.logger.Debug("Rep rejected: displacement below jitter floor",
			zap.Float64("rom_px", romPx))
		return
	}

	eccentric := s.bottomTs - s.startTs
	concentric := endTs - s.bottomTs
	if concentric <= 0 {
		return
	}

	avgAscentRate := romPx / concentric

	if romPx > s.maxROMPx {
		s.maxROMPx = romPx
	}

	rep := models.Rep{
		RepNumber:          len(s.reps) + 1,
		StartTs:            s.startTs,
		EndTs:              endTs,
		ConcentricDuration: concentric,
		EccentricDuration:  eccentric,
	}

	if s.cal.IsCalibrated() {
		rep.PeakVelocity = s.cal.ConvertPixelsToMeters(s.peakAscentRate)
		rep.AvgVelocity = s.cal.ConvertPixelsToMeters(avgAscentRate)
		rep.ROM = s.cal.ConvertPixelsToMeters(romPx)
	} else {
		rep.PeakVelocity = s.speedIndex(s.peakAscentRate)
		rep.AvgVelocity = s.speedIndex(avgAscentRate)
		rep.ROM = 100 * romPx / s.maxROMPx
	}

	meanConf := 0.0
	if s.repSamples > 0 {
		meanConf = s.repConfSum / float64(s.repSamples)
	}
	if s.repSamples < minRepSamples || meanConf < lowConfidenceMean {
		rep.LowConfidence = true
	}

	s.reps = append(s.reps, rep)

	s.logger.Info("Rep completed",
		zap.Int("rep_number", rep.RepNumber),
		zap.Float64("peak_velocity", rep.PeakVelocity),
		zap.String("unit", s.cal.Unit()),
		zap.Bool("low_confidence", rep.LowConfidence))
}

func (s *Segmenter) clearsDisplacement(px float64) bool {
	if s.cal.IsCalibrated() {
		return s.cal.ConvertPixelsToMeters(px) >= s.config.MinDisplacementM
	}
	return px >= s.config.MinDisplacementPx
}

// frameVelocity converts a raw pixel rate into the active unit.
func (s *Segmenter) frameVelocity(ratePx float64) float64 {
	if s.cal.IsCalibrated() {
		return s.cal.ConvertPixelsToMeters(ratePx)
	}
	return s.speedIndex(abs(ratePx))
}

// speedIndex scales a pixel rate to 0-100 against the session's
// running maximum. Honest by construction: it never claims a unit.
func (s *Segmenter) speedIndex(ratePx float64) float64 {
	if s.maxRatePx <= 0 {
		return 0
	}
	return 100 * ratePx / s.maxRatePx
}

// Velocity returns the most recent per-frame velocity in the unit the
// calibration tier is allowed to claim.
func (s *Segmenter) Velocity() (value float64, unit string) {
	return s.lastVelocity, s.cal.Unit()
}

// Reps returns the completed reps so far.
func (s *Segmenter) Reps() []models.Rep {
	return s.reps
}

// Config returns the thresholds this segmenter was built with.
func (s *Segmenter) Config() Config {
	return s.config
}

// Summary closes any in-flight concentric rep and aggregates the set.
// Low-confidence reps stay in the rep list but are excluded from the
// aggregates. A set with no reps returns an explicit empty-metrics
// status rather than an error. Streaming may continue afterwards; the
// next descent starts a fresh rep.
func (s *Segmenter) Summary() models.SetSummary {
	if s.phase == phaseConcentric {
		s.completeRep(s.topTs, s.topY)
	}
	s.phase = phaseIdle

	summary := models.SetSummary{
		Unit:         s.cal.Unit(),
		RepsDetected: len(s.reps),
		Reps:         append([]models.Rep(nil), s.reps...),
	}

	if len(s.reps) == 0 {
		summary.Status = models.SummaryStatusNoReps
		return summary
	}
	summary.Status = models.SummaryStatusOK

	var peaks, roms []float64
	for _, rep := range s.reps {
		if rep.LowConfidence {
			continue
		}
		peaks = append(peaks, rep.PeakVelocity)
		roms = append(roms, rep.ROM)
	}

	if len(peaks) > 0 {
		summary.AvgPeakVelocity = stat.Mean(peaks, nil)
		summary.MaxPeakVelocity = floats.Max(peaks)
		summary.MinPeakVelocity = floats.Min(peaks)
		summary.AvgROM = stat.Mean(roms, nil)

		// Fatigue indicator: how much the last rep slowed down
		// relative to the first.
		first, last := peaks[0], peaks[len(peaks)-1]
		if first > 0 {
			summary.VelocityDropPercent = (first - last) / first * 100
		}
	}

	return summary
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
