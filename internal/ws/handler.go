// Package ws exposes the streaming endpoint: one inbound message per
// frame, one outbound JSON report per processed frame. Sessions are
// client-paced; if frames arrive faster than the pipeline runs, older
// pending frames are coalesced away so at most one frame is in flight
// and one is pending per session.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/metrics"
	"github.com/example/face-attendance/internal/session"
)

// FrameProcessor is the per-session pipeline behind the socket.
type FrameProcessor interface {
	ProcessFrame(ctx context.Context, data []byte) (*session.Report, error)
	Close()
}

// SessionFactory builds a processor for a freshly accepted connection,
// loading the gallery snapshot it will hold for its lifetime.
type SessionFactory func(ctx context.Context, sessionID string) (FrameProcessor, error)

// Handler upgrades HTTP requests to streaming sessions.
type Handler struct {
	factory  SessionFactory
	metrics  *metrics.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler wires a session factory into a websocket handler.
func NewHandler(factory SessionFactory, m *metrics.Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		factory: factory,
		metrics: m,
		logger:  logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 16,
			WriteBufferSize: 1 << 16,
			// The capture UI is served from arbitrary origins; operator
			// auth happens before the upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve handles one streaming connection until the client disconnects.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	logger := h.logger.With(zap.String("session_id", sessionID))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	proc, err := h.factory(ctx, sessionID)
	if err != nil {
		logger.Error("failed to start session", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session start failed"),
			closeDeadline())
		return
	}
	defer proc.Close()

	h.metrics.SessionOpened()
	defer h.metrics.SessionClosed()
	logger.Info("session opened")

	// Single-slot mailbox: the reader overwrites any pending frame so
	// the pipeline never falls behind the camera.
	frames := make(chan []byte, 1)
	done := make(chan struct{})

	go h.processLoop(ctx, cancel, conn, proc, frames, done, logger)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Client went away or the socket broke: the one fatal
			// condition for a session.
			break
		}
		h.metrics.IncFramesReceived()

		select {
		case frames <- data:
		default:
			// The reader is the only producer, so after draining the
			// slot the send below cannot block.
			select {
			case <-frames:
				h.metrics.IncFramesDropped()
			default:
			}
			frames <- data
		}
	}

	cancel()
	proc.Close()
	<-done
	logger.Info("session connection closed")
}

func (h *Handler) processLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, proc FrameProcessor, frames <-chan []byte, done chan<- struct{}, logger *zap.Logger) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-frames:
			report, err := proc.ProcessFrame(ctx, data)
			if err != nil {
				if !errors.Is(err, session.ErrSessionClosed) {
					logger.Warn("frame processing aborted", zap.Error(err))
				}
				return
			}
			if err := conn.WriteJSON(report); err != nil {
				logger.Debug("write failed, closing session", zap.Error(err))
				cancel()
				return
			}
		}
	}
}

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}
