package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus-fit/neiro/server/config"
	"github.com/prometheus-fit/neiro/server/models"
	"go.uber.org/zap"
)

// Client talks to the YOLO inference sidecar over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	config     *config.DetectorConfig
	available  atomic.Bool
	stopCh     chan struct{}

	logVersionOnce sync.Once
}

type detectRequest struct {
	ImageData           []byte  `json:"image_data"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

type detectResponse struct {
	Detections   []boxDetection `json:"detections"`
	ModelVersion string         `json:"model_version"`
}

// The sidecar reports corner coordinates; Detect converts them to the
// center/size form the tracker scores on.
type boxDetection struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
}

func NewClient(cfg *config.DetectorConfig, logger *zap.Logger) *Client {
	client := &Client{
		baseURL: cfg.BaseURL,
		logger:  logger,
		config:  cfg,
		stopCh:  make(chan struct{}),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: true,
			},
		},
	}

	if err := client.HealthCheck(); err != nil {
		logger.Warn("Detector service not available at startup", zap.Error(err))
	} else {
		client.available.Store(true)
	}

	go client.startHealthChecker()

	return client
}

func (c *Client) Detect(ctx context.Context, frame []byte) ([]models.Detection, error) {
	request := &detectRequest{
		ImageData:           frame,
		ConfidenceThreshold: c.config.ConfidenceThreshold,
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying detection request",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		detections, err := c.executeDetectRequest(ctx, request)
		if err == nil {
			return detections, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("detection failed after %d attempts: %w",
		c.config.MaxRetries+1, lastErr)
}

func (c *Client) executeDetectRequest(ctx context.Context, request *detectRequest) ([]models.Detection, error) {
	requestData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/detect", c.baseURL)
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("User-Agent", "neiro-tracking-engine/1.0")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(response.Body)
		return nil, fmt.Errorf("detector service error (status %d): %s",
			response.StatusCode, string(bodyBytes))
	}

	var detectResp detectResponse
	if err := json.NewDecoder(response.Body).Decode(&detectResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if detectResp.ModelVersion != "" {
		c.logVersionOnce.Do(func() {
			c.logger.Info("Detector model version",
				zap.String("model_version", detectResp.ModelVersion))
		})
	}

	detections := make([]models.Detection, 0, len(detectResp.Detections))
	for _, box := range detectResp.Detections {
		detections = append(detections, models.Detection{
			X:          (box.X1 + box.X2) / 2,
			Y:          (box.Y1 + box.Y2) / 2,
			Width:      box.X2 - box.X1,
			Height:     box.Y2 - box.Y1,
			Confidence: box.Confidence,
		})
	}

	return detections, nil
}

func (c *Client) Available() bool {
	return c.available.Load()
}

func (c *Client) HealthCheck() error {
	url := fmt.Sprintf("%s/health", c.baseURL)

	response, err := c.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("detector service unhealthy (status %d)", response.StatusCode)
	}

	return nil
}

func (c *Client) startHealthChecker() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.HealthCheck(); err != nil {
				if c.available.Swap(false) {
					c.logger.Error("Detector service became unavailable", zap.Error(err))
				}
			} else {
				if !c.available.Swap(true) {
					c.logger.Info("Detector service is available")
				}
			}
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) GetModelInfo() (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/models/info", c.baseURL)

	response, err := c.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to get model info: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model info request failed (status %d)", response.StatusCode)
	}

	var modelInfo map[string]interface{}
	if err := json.NewDecoder(response.Body).Decode(&modelInfo); err != nil {
		return nil, fmt.Errorf("failed to decode model info: %w", err)
	}

	return modelInfo, nil
}

func (c *Client) Close() {
	close(c.stopCh)
}
