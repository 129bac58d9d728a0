package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Detector DetectorConfig `json:"detector"`
	Tracking TrackingConfig `json:"tracking"`
	Cache    CacheConfig    `json:"cache"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
}

type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Environment  string        `json:"environment"`
}

type DetectorConfig struct {
	BaseURL             string        `json:"base_url"`
	Timeout             time.Duration `json:"timeout"`
	MaxRetries          int           `json:"max_retries"`
	RetryDelay          time.Duration `json:"retry_delay"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	FrameTimeout        time.Duration `json:"frame_timeout"`
	ConfidenceThreshold float64       `json:"confidence_threshold"`
}

type TrackingConfig struct {
	LockRadius     float64       `json:"lock_radius"`
	EMAAlpha       float64       `json:"ema_alpha"`
	FrameQueueSize int           `json:"frame_queue_size"`
	MinRepDuration time.Duration `json:"min_rep_duration"`
	MinRepDispM    float64       `json:"min_rep_displacement_m"`
	MinRepDispPx   float64       `json:"min_rep_displacement_px"`
}

type CacheConfig struct {
	MaxEntries int           `json:"max_entries"`
	TTL        time.Duration `json:"ttl"`
}

type SecurityConfig struct {
	AllowedOrigins []string      `json:"allowed_origins"`
	RateLimitRPS   int           `json:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst"`
	MaxFrameBytes  int64         `json:"max_frame_bytes"`
	ReadDeadline   time.Duration `json:"read_deadline"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

func LoadConfig() *Config {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Detector: DetectorConfig{
			BaseURL:             getEnv("DETECTOR_BASE_URL", "http://localhost:5000"),
			Timeout:             getEnvAsDuration("DETECTOR_TIMEOUT", 30*time.Second),
			MaxRetries:          getEnvAsInt("DETECTOR_MAX_RETRIES", 2),
			RetryDelay:          getEnvAsDuration("DETECTOR_RETRY_DELAY", 200*time.Millisecond),
			HealthCheckInterval: getEnvAsDuration("DETECTOR_HEALTH_CHECK_INTERVAL", 30*time.Second),
			FrameTimeout:        getEnvAsDuration("DETECTOR_FRAME_TIMEOUT", 5*time.Second),
			ConfidenceThreshold: getEnvAsFloat("DETECTOR_CONFIDENCE_THRESHOLD", 0.25),
		},
		Tracking: TrackingConfig{
			LockRadius:     getEnvAsFloat("TRACKING_LOCK_RADIUS", 200),
			EMAAlpha:       getEnvAsFloat("TRACKING_EMA_ALPHA", 0.4),
			FrameQueueSize: getEnvAsInt("TRACKING_FRAME_QUEUE_SIZE", 4),
			MinRepDuration: getEnvAsDuration("TRACKING_MIN_REP_DURATION", 300*time.Millisecond),
			MinRepDispM:    getEnvAsFloat("TRACKING_MIN_REP_DISPLACEMENT_M", 0.05),
			MinRepDispPx:   getEnvAsFloat("TRACKING_MIN_REP_DISPLACEMENT_PX", 30),
		},
		Cache: CacheConfig{
			MaxEntries: getEnvAsInt("CACHE_MAX_ENTRIES", 1000),
			TTL:        getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		},
		Security: SecurityConfig{
			AllowedOrigins: getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
			RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", 100),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 200),
			MaxFrameBytes:  getEnvAsInt64("MAX_FRAME_BYTES", 10*1024*1024), // 10MB
			ReadDeadline:   getEnvAsDuration("WS_READ_DEADLINE", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config
}

func (c *Config) ValidateConfig(logger *zap.Logger) error {
	var errors []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "server port must be between 1 and 65535")
	}

	if c.Detector.BaseURL == "" {
		errors = append(errors, "detector base URL is required")
	}

	if c.Tracking.EMAAlpha <= 0 || c.Tracking.EMAAlpha > 1 {
		errors = append(errors, "EMA alpha must be in (0, 1]")
	}

	if c.Tracking.LockRadius <= 0 {
		errors = append(errors, "lock radius must be positive")
	}

	if c.Tracking.FrameQueueSize < 1 {
		errors = append(errors, "frame queue size must be at least 1")
	}

	if c.Security.MaxFrameBytes <= 0 {
		errors = append(errors, "max frame size must be positive")
	}

	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		logger.Warn("Detector confidence threshold outside [0,1], clamping",
			zap.Float64("threshold", c.Detector.ConfidenceThreshold))
		if c.Detector.ConfidenceThreshold < 0 {
			c.Detector.ConfidenceThreshold = 0
		} else {
			c.Detector.ConfidenceThreshold = 1
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, ", "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
