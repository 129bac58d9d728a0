package detector

import (
	"context"

	"github.com/prometheus-fit/neiro/server/models"
)

// Detector is the external object-detection capability. The tracking
// core depends only on this interface; the concrete backend can be the
// YOLO sidecar, a pose estimator, or a test mock.
type Detector interface {
	// Detect runs inference on a JPEG-encoded frame and returns all
	// candidate detections. An empty slice means the model saw nothing.
	Detect(ctx context.Context, frame []byte) ([]models.Detection, error)

	// Available reports whether the backend model is loaded and
	// reachable. Connections are refused while this is false.
	Available() bool

	// GetModelInfo fetches backend model metadata for the status
	// surface.
	GetModelInfo() (map[string]interface{}, error)
}
