package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus-fit/neiro/server/cache"
	"github.com/prometheus-fit/neiro/server/detector"
	"github.com/prometheus-fit/neiro/server/session"
)

// StatusHandler serves the introspection endpoints next to the stream.
type StatusHandler struct {
	detector detector.Detector
	registry *session.Registry
	cache    cache.Cache
}

func NewStatusHandler(det detector.Detector, registry *session.Registry, c cache.Cache) *StatusHandler {
	return &StatusHandler{
		detector: det,
		registry: registry,
		cache:    c,
	}
}

func (h *StatusHandler) HandleStatus(c *gin.Context) {
	available := h.detector.Available()

	status := "running"
	if !available {
		status = "degraded"
	}

	resp := gin.H{
		"service":            "Neiro Live Tracking",
		"status":             status,
		"model_available":    available,
		"active_connections": h.registry.Count(),
		"websocket_endpoint": "/neiro/track",
	}

	if available {
		if info, err := h.detector.GetModelInfo(); err == nil {
			resp["model_info"] = info
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *StatusHandler) HandleConnections(c *gin.Context) {
	connections := h.registry.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"count":       len(connections),
		"connections": connections,
	})
}

func (h *StatusHandler) HandleHealth(c *gin.Context) {
	stats := h.cache.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "neiro-tracking-backend",
		"cache": gin.H{
			"entries": stats.Entries,
			"hits":    stats.Hits,
			"misses":  stats.Misses,
		},
	})
}
