package models

// Unit labels for velocity values. A speed index is a relative 0-100
// scale used when no absolute calibration is available; it must never
// be presented as m/s.
const (
	UnitMetersPerSecond = "m/s"
	UnitSpeedIndex      = "speed_index"
)

// Rep is one completed repetition. Reps are immutable once appended.
type Rep struct {
	RepNumber          int     `json:"rep_number"`
	StartTs            float64 `json:"start_ts"`
	EndTs              float64 `json:"end_ts"`
	PeakVelocity       float64 `json:"peak_velocity"`
	AvgVelocity        float64 `json:"avg_velocity"`
	ROM                float64 `json:"rom"`
	ConcentricDuration float64 `json:"concentric_duration"`
	EccentricDuration  float64 `json:"eccentric_duration"`

	// LowConfidence marks reps built from sparse or low-confidence
	// detections. They are kept for display but excluded from the
	// set summary aggregates.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// SetSummary aggregates a finished set. Unit tells the reader whether
// velocity fields are m/s or relative speed index values.
type SetSummary struct {
	Status              string  `json:"status"`
	Unit                string  `json:"unit"`
	RepsDetected        int     `json:"reps_detected"`
	AvgPeakVelocity     float64 `json:"avg_peak_velocity"`
	MaxPeakVelocity     float64 `json:"max_peak_velocity"`
	MinPeakVelocity     float64 `json:"min_peak_velocity"`
	VelocityDropPercent float64 `json:"velocity_drop_percent"`
	AvgROM              float64 `json:"avg_rom"`
	Reps                []Rep   `json:"reps"`
}

// Set summary status values.
const (
	SummaryStatusOK     = "ok"
	SummaryStatusNoReps = "no_reps"
)

// CalibrationInfo describes the active calibration tier for API
// responses. Unit always accompanies any numeric velocity output.
type CalibrationInfo struct {
	Tier            string  `json:"tier"`
	Method          string  `json:"method"`
	Confidence      float64 `json:"confidence"`
	Unit            string  `json:"unit"`
	PixelsPerMeter  float64 `json:"pixels_per_meter,omitempty"`
	ReferenceObject string  `json:"reference_object,omitempty"`
	Badge           Badge   `json:"badge"`
	Note            string  `json:"note"`
}

// Badge is the UI hint rendered next to velocity values.
type Badge struct {
	Icon  string `json:"icon"`
	Text  string `json:"text"`
	Color string `json:"color"`
}
