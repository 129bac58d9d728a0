// Package calibration converts pixel displacement into meters under an
// honest three-tier scheme:
//
//	TIER 1: depth sensor (exact m/s)
//	TIER 2: reference object or body proportions (calibrated m/s)
//	TIER 3: relative speed index (no absolute unit, never fabricated)
package calibration

import (
	"github.com/prometheus-fit/neiro/server/models"
	"go.uber.org/zap"
)

type Tier string

const (
	TierLiDAR     Tier = "tier1_lidar"
	TierReference Tier = "tier2_reference"
	TierRelative  Tier = "tier3_relative"
)

// Known reference object sizes in meters.
const (
	PlateDiameter45lb = 0.45 // 45lb/20kg Olympic plate
	PlateDiameter35lb = 0.37 // 35lb/15kg plate
	PlateDiameter25lb = 0.28 // 25lb/10kg plate
)

// Anthropometric body proportions as a fraction of total height.
var bodyProportions = map[string]float64{
	"shoulder_to_hip": 0.288,
	"hip_to_knee":     0.245,
	"shoulder_width":  0.259,
	"arm_length":      0.440,
}

// Boxes smaller than this are too noisy to calibrate from.
const minReferencePx = 20

// Manager holds the calibration state for one session. It is owned by
// the session worker and must not be shared across goroutines.
type Manager struct {
	logger *zap.Logger

	tier            Tier
	method          string
	pixelsPerMeter  float64 // 0 while uncalibrated
	confidence      float64
	referenceObject string
	userHeightM     float64
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger:     logger,
		tier:       TierRelative,
		method:     "relative",
		confidence: 0.50,
	}
}

// CalibrateFromDepth uses depth-sensor data for exact calibration.
// Always succeeds when depth data is present.
func (m *Manager) CalibrateFromDepth(avgDepthM, focalLengthPx float64) {
	if avgDepthM <= 0 {
		avgDepthM = 2.0
	}
	if focalLengthPx <= 0 {
		focalLengthPx = 1000
	}

	// ppm = focal_length / distance
	m.pixelsPerMeter = focalLengthPx / avgDepthM
	m.tier = TierLiDAR
	m.method = "lidar"
	m.confidence = 0.95
	m.referenceObject = ""

	m.logger.Info("Tier 1 calibration active",
		zap.Float64("pixels_per_meter", m.pixelsPerMeter))
}

// CalibrateFromBarbell calibrates against a detected plate of known
// diameter. Returns false (state unchanged) when the detection box is
// too small to trust.
func (m *Manager) CalibrateFromBarbell(boxHeightPx, plateDiameterM float64) bool {
	if plateDiameterM <= 0 {
		plateDiameterM = PlateDiameter45lb
	}

	if boxHeightPx <= minReferencePx {
		m.logger.Warn("Box height too small for calibration",
			zap.Float64("box_height_px", boxHeightPx))
		return false
	}

	m.pixelsPerMeter = boxHeightPx / plateDiameterM
	m.tier = TierReference
	m.method = "barbell"
	m.confidence = 0.85
	m.referenceObject = "barbell_plate"

	m.logger.Info("Tier 2 calibration active",
		zap.String("method", "barbell"),
		zap.Float64("pixels_per_meter", m.pixelsPerMeter))

	return true
}

// CalibrateFromUserHeight calibrates from the user's profile height and
// the measured shoulder-to-hip pixel distance. Lower confidence than a
// barbell reference since body proportions vary.
func (m *Manager) CalibrateFromUserHeight(userHeightCm, shoulderToHipPx float64) bool {
	if shoulderToHipPx <= minReferencePx {
		m.logger.Warn("Shoulder-to-hip distance too small for calibration",
			zap.Float64("shoulder_to_hip_px", shoulderToHipPx))
		return false
	}

	if userHeightCm <= 0 {
		m.logger.Warn("Invalid user height",
			zap.Float64("user_height_cm", userHeightCm))
		return false
	}

	m.userHeightM = userHeightCm / 100.0
	expectedShoulderToHipM := m.userHeightM * bodyProportions["shoulder_to_hip"]

	m.pixelsPerMeter = shoulderToHipPx / expectedShoulderToHipM
	m.tier = TierReference
	m.method = "user_height"
	m.confidence = 0.70
	m.referenceObject = "body_proportion"

	m.logger.Info("Tier 2 calibration active",
		zap.String("method", "user_height"),
		zap.Float64("pixels_per_meter", m.pixelsPerMeter))

	return true
}

// AutoOptions carries whatever calibration inputs the client has.
type AutoOptions struct {
	Depth            *models.DepthData
	BarbellBoxHeight float64
	UserHeightCm     float64
	ShoulderToHipPx  float64
}

// CalibrateAuto picks the best available method in priority order:
// depth data, then barbell reference, then user height, then relative.
func (m *Manager) CalibrateAuto(opts AutoOptions) Tier {
	if opts.Depth != nil {
		m.CalibrateFromDepth(opts.Depth.AverageDepthM, opts.Depth.FocalLengthPx)
		return m.tier
	}

	if opts.BarbellBoxHeight > minReferencePx {
		if m.CalibrateFromBarbell(opts.BarbellBoxHeight, PlateDiameter45lb) {
			return m.tier
		}
	}

	if opts.UserHeightCm > 0 && opts.ShoulderToHipPx > 0 {
		if m.CalibrateFromUserHeight(opts.UserHeightCm, opts.ShoulderToHipPx) {
			return m.tier
		}
	}

	m.useRelative()
	return m.tier
}

// useRelative falls back to the speed-index mode. No absolute unit is
// ever reported from this state.
func (m *Manager) useRelative() {
	m.pixelsPerMeter = 0
	m.tier = TierRelative
	m.method = "relative"
	m.confidence = 0.50
	m.referenceObject = ""

	m.logger.Info("Tier 3 active: relative speed mode, no absolute m/s")
}

// ConvertPixelsToMeters returns 0 when uncalibrated; callers switch to
// the relative speed index instead of guessing.
func (m *Manager) ConvertPixelsToMeters(px float64) float64 {
	if m.pixelsPerMeter <= 0 {
		return 0
	}
	return px / m.pixelsPerMeter
}

func (m *Manager) IsCalibrated() bool {
	return m.pixelsPerMeter > 0
}

func (m *Manager) Tier() Tier {
	return m.tier
}

func (m *Manager) PixelsPerMeter() float64 {
	return m.pixelsPerMeter
}

// Unit returns the velocity unit the current tier is allowed to claim.
func (m *Manager) Unit() string {
	if m.IsCalibrated() {
		return models.UnitMetersPerSecond
	}
	return models.UnitSpeedIndex
}

// Info builds the API view of the calibration state. The tier, unit
// and confidence always travel together with any velocity number.
func (m *Manager) Info() models.CalibrationInfo {
	info := models.CalibrationInfo{
		Tier:            string(m.tier),
		Method:          m.method,
		Confidence:      m.confidence,
		Unit:            m.Unit(),
		PixelsPerMeter:  m.pixelsPerMeter,
		ReferenceObject: m.referenceObject,
	}

	switch m.tier {
	case TierLiDAR:
		info.Badge = models.Badge{Icon: "⚡", Text: "Pro Mode - LiDAR Active", Color: "#00FF88"}
		info.Note = "Accurate velocity measurements using depth sensor"
	case TierReference:
		info.Badge = models.Badge{Icon: "📏", Text: "Calibrated Mode", Color: "#FFAA5E"}
		info.Note = "Velocity calibrated using reference object"
	default:
		info.Badge = models.Badge{Icon: "📊", Text: "Relative Speed Mode", Color: "#FF9D50"}
		info.Note = "Values are relative for consistency tracking, not absolute m/s"
	}

	return info
}
