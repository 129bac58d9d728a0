package detector

import (
	"context"
	"sync"

	"github.com/prometheus-fit/neiro/server/models"
)

// Mock is an in-memory Detector for tests. Each call to Detect pops
// the next queued response; when the queue is empty the last response
// is repeated.
type Mock struct {
	mu        sync.Mutex
	responses [][]models.Detection
	err       error
	calls     int
	down      bool
}

func NewMock(responses ...[]models.Detection) *Mock {
	return &Mock{responses: responses}
}

func (m *Mock) Enqueue(detections []models.Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, detections)
}

// Fail makes every subsequent Detect call return err.
func (m *Mock) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetAvailable toggles the Available report.
func (m *Mock) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = !available
}

func (m *Mock) Detect(ctx context.Context, frame []byte) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, nil
	}
	if len(m.responses) == 1 {
		return m.responses[0], nil
	}

	next := m.responses[0]
	m.responses = m.responses[1:]
	return next, nil
}

func (m *Mock) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.down
}

func (m *Mock) GetModelInfo() (map[string]interface{}, error) {
	return map[string]interface{}{
		"model_version": "mock",
		"status":        "loaded",
	}, nil
}

func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
