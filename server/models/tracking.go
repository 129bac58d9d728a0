package models

// Detection is a single candidate returned by the detector backend.
// X and Y are the bounding box center in pixels.
type Detection struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

// TrackResult is the per-frame response sent back over the websocket.
// X and Y are the EMA-smoothed barbell position; width, height and
// confidence are taken from the raw winning detection.
type TrackResult struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	W           float64 `json:"w"`
	H           float64 `json:"h"`
	Conf        float64 `json:"conf"`
	InferenceMs float64 `json:"inference_ms"`
}

// TrackerStats is the introspection view of a live tracker.
type TrackerStats struct {
	FrameCount     int64 `json:"frame_count"`
	DetectionCount int64 `json:"detection_count"`
	Locked         bool  `json:"locked"`
}

// Command is a JSON text message received on the track socket.
type Command struct {
	Action string `json:"action"`

	// lock
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// calibrate
	BarbellBoxHeight float64    `json:"barbell_box_height"`
	UserHeightCm     float64    `json:"user_height_cm"`
	ShoulderToHipPx  float64    `json:"shoulder_to_hip_px"`
	Depth            *DepthData `json:"depth"`
}

// DepthData is the optional depth-sensor payload for tier 1 calibration.
type DepthData struct {
	AverageDepthM float64 `json:"average_depth_m"`
	FocalLengthPx float64 `json:"focal_length_px"`
}
