package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	require.NoError(t, cfg.ValidateConfig(zap.NewNop()))
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 200.0, cfg.Tracking.LockRadius)
	assert.Equal(t, 0.4, cfg.Tracking.EMAAlpha)
	assert.Equal(t, 0.25, cfg.Detector.ConfidenceThreshold)
}

func TestValidateConfigClampsConfidenceThreshold(t *testing.T) {
	t.Setenv("DETECTOR_CONFIDENCE_THRESHOLD", "1.7")
	cfg := LoadConfig()

	require.NoError(t, cfg.ValidateConfig(zap.NewNop()))
	assert.Equal(t, 1.0, cfg.Detector.ConfidenceThreshold)

	t.Setenv("DETECTOR_CONFIDENCE_THRESHOLD", "-0.3")
	cfg = LoadConfig()

	require.NoError(t, cfg.ValidateConfig(zap.NewNop()))
	assert.Equal(t, 0.0, cfg.Detector.ConfidenceThreshold)
}

func TestValidateConfigRejectsBadPort(t *testing.T) {
	t.Setenv("SERVER_PORT", "70000")
	cfg := LoadConfig()

	err := cfg.ValidateConfig(zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server port")
}

func TestValidateConfigRejectsBadEMAAlpha(t *testing.T) {
	t.Setenv("TRACKING_EMA_ALPHA", "1.5")
	cfg := LoadConfig()

	err := cfg.ValidateConfig(zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMA alpha")
}
