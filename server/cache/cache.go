package cache

import (
	"crypto/md5"
	"errors"
	"fmt"

	"github.com/prometheus-fit/neiro/server/models"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache stores detector results keyed by frame hash so identical
// frames (e.g. a paused camera) skip re-inference.
type Cache interface {
	Get(key string) ([]models.Detection, error)

	Set(key string, detections []models.Detection) error

	Stats() Stats

	Close() error
}

type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	MaxSize int   `json:"max_size"`
}

// FrameKey hashes raw frame bytes into a cache key.
func FrameKey(frame []byte) string {
	return fmt.Sprintf("%x", md5.Sum(frame))
}
