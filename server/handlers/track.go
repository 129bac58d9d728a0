package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus-fit/neiro/server/calibration"
	"github.com/prometheus-fit/neiro/server/config"
	"github.com/prometheus-fit/neiro/server/detector"
	"github.com/prometheus-fit/neiro/server/metrics"
	"github.com/prometheus-fit/neiro/server/middleware"
	"github.com/prometheus-fit/neiro/server/session"
	"github.com/prometheus-fit/neiro/server/tracker"
	"github.com/prometheus-fit/neiro/server/vbt"
	"go.uber.org/zap"
)

const writeDeadline = 10 * time.Second

// TrackHandler runs the live tracking websocket. Each connection gets
// its own session: the socket reader feeds the inbound queue and a
// single worker goroutine processes messages in arrival order and is
// the only writer on the socket.
type TrackHandler struct {
	detector detector.Detector
	registry *session.Registry
	metrics  *metrics.Manager
	config   *config.Config
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewTrackHandler(det detector.Detector, registry *session.Registry, m *metrics.Manager, cfg *config.Config, logger *zap.Logger) *TrackHandler {
	return &TrackHandler{
		detector: det,
		registry: registry,
		metrics:  m,
		config:   cfg,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(cfg.Security.AllowedOrigins, r.Header.Get("Origin"))
			},
		},
	}
}

func (h *TrackHandler) HandleTrack(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	clientAddr := conn.RemoteAddr().String()

	if !h.detector.Available() {
		h.logger.Warn("Rejecting connection: model unavailable",
			zap.String("client", clientAddr))
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		conn.WriteJSON(map[string]any{"error": "Failed to initialize model"})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "model unavailable"))
		return
	}

	sess := h.newSession(clientAddr)
	h.registry.Add(sess)
	h.metrics.SessionStarted()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		sess.Queue.Close()
		h.registry.Remove(sess.ID)
		h.metrics.SessionEnded()
		h.metrics.FramesDropped(sess.Queue.DroppedFrames())
	}()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		h.runWorker(ctx, sess, conn)
	}()

	h.readLoop(sess, conn)

	// Unblock the worker before waiting for it.
	cancel()
	sess.Queue.Close()
	<-workerDone
}

func (h *TrackHandler) newSession(clientAddr string) *session.Session {
	cal := calibration.NewManager(h.logger)
	seg := vbt.NewSegmenter(cal, vbt.Config{
		MinDisplacementM:  h.config.Tracking.MinRepDispM,
		MinDisplacementPx: h.config.Tracking.MinRepDispPx,
		MinDuration:       h.config.Tracking.MinRepDuration,
	}, h.logger)

	return session.New(session.Options{
		ClientAddr:   clientAddr,
		Tracker:      tracker.New(h.detector, h.config.Tracking.LockRadius, h.config.Tracking.EMAAlpha, h.logger),
		Calibration:  cal,
		Segmenter:    seg,
		QueueSize:    h.config.Tracking.FrameQueueSize,
		FrameTimeout: h.config.Detector.FrameTimeout,
		Metrics:      h.metrics,
		Logger:       h.logger.With(zap.String("client", clientAddr)),
	})
}

// readLoop pulls messages off the socket into the session queue until
// the connection drops. Binary messages are frames, text messages are
// commands.
func (h *TrackHandler) readLoop(sess *session.Session, conn *websocket.Conn) {
	deadline := h.config.Security.ReadDeadline

	conn.SetReadLimit(h.config.Security.MaxFrameBytes)
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("WebSocket read error",
					zap.String("client", sess.ClientAddr), zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(deadline))

		switch msgType {
		case websocket.BinaryMessage:
			sess.Queue.Push(session.Message{Kind: session.KindFrame, Data: data})
		case websocket.TextMessage:
			sess.Queue.Push(session.Message{Kind: session.KindCommand, Data: data})
		}
	}
}

// runWorker drains the queue in order and writes every response. It is
// the sole writer on conn.
func (h *TrackHandler) runWorker(ctx context.Context, sess *session.Session, conn *websocket.Conn) {
	for {
		msg, ok := sess.Queue.Pop(ctx)
		if !ok {
			return
		}

		resp := sess.Handle(ctx, msg)

		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := conn.WriteJSON(resp); err != nil {
			h.logger.Warn("WebSocket write failed",
				zap.String("client", sess.ClientAddr), zap.Error(err))
			conn.Close()
			return
		}
	}
}
