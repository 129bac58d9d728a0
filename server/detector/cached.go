package detector

import (
	"context"
	"errors"

	"github.com/prometheus-fit/neiro/server/cache"
	"github.com/prometheus-fit/neiro/server/models"
	"go.uber.org/zap"
)

// CachedDetector wraps a Detector with a frame-hash result cache.
// Detection is a pure function of the frame bytes, so identical frames
// can reuse the previous result instead of re-running inference.
type CachedDetector struct {
	inner  Detector
	cache  cache.Cache
	logger *zap.Logger
}

func NewCachedDetector(inner Detector, c cache.Cache, logger *zap.Logger) *CachedDetector {
	return &CachedDetector{
		inner:  inner,
		cache:  c,
		logger: logger,
	}
}

func (d *CachedDetector) Detect(ctx context.Context, frame []byte) ([]models.Detection, error) {
	key := cache.FrameKey(frame)

	if detections, err := d.cache.Get(key); err == nil {
		return detections, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		d.logger.Warn("Cache lookup failed", zap.Error(err))
	}

	detections, err := d.inner.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}

	if err := d.cache.Set(key, detections); err != nil {
		d.logger.Warn("Failed to cache detections", zap.Error(err))
	}

	return detections, nil
}

func (d *CachedDetector) Available() bool {
	return d.inner.Available()
}

func (d *CachedDetector) GetModelInfo() (map[string]interface{}, error) {
	return d.inner.GetModelInfo()
}
