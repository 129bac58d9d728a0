package session

import (
	"sync"

	"go.uber.org/zap"
)

// ConnectionInfo is the introspection view of one live session.
type ConnectionInfo struct {
	ClientID       string `json:"client_id"`
	FrameCount     int64  `json:"frame_count"`
	DetectionCount int64  `json:"detection_count"`
	Locked         bool   `json:"locked"`
}

// Registry tracks live sessions for introspection endpoints and
// shutdown. All methods are safe for concurrent use.
type Registry struct {
	mutex    sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

func (r *Registry) Add(s *Session) {
	r.mutex.Lock()
	r.sessions[s.ID] = s
	count := len(r.sessions)
	r.mutex.Unlock()

	r.logger.Info("Session registered",
		zap.String("session_id", s.ID),
		zap.String("client", s.ClientAddr),
		zap.Int("active_sessions", count))
}

func (r *Registry) Remove(id string) {
	r.mutex.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mutex.Unlock()

	if !ok {
		return
	}

	stats := s.Stats()
	r.logger.Info("Session closed",
		zap.String("session_id", id),
		zap.Int64("frames_processed", stats.FrameCount),
		zap.Int64("detections", stats.DetectionCount),
		zap.Int64("frames_dropped", s.Queue.DroppedFrames()),
		zap.Int("active_sessions", count))
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.sessions)
}

// Snapshot copies the per-session stats under the lock so callers can
// marshal them without racing the workers.
func (r *Registry) Snapshot() []ConnectionInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	infos := make([]ConnectionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		stats := s.Stats()
		infos = append(infos, ConnectionInfo{
			ClientID:       s.ID,
			FrameCount:     stats.FrameCount,
			DetectionCount: stats.DetectionCount,
			Locked:         stats.Locked,
		})
	}
	return infos
}
