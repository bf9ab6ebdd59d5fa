package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/session"
)

type stubProcessor struct {
	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	delay   time.Duration
	release chan struct{}
}

func (s *stubProcessor) ProcessFrame(ctx context.Context, data []byte) (*session.Report, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, session.ErrSessionClosed
	}
	s.frames = append(s.frames, data)
	s.mu.Unlock()

	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, session.ErrSessionClosed
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return &session.Report{Detected: []session.FaceStatus{{Name: string(data)}}}, nil
}

func (s *stubProcessor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *stubProcessor) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func newTestServer(t *testing.T, proc FrameProcessor, factoryErr error) (*httptest.Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()

	factory := func(ctx context.Context, sessionID string) (FrameProcessor, error) {
		if factoryErr != nil {
			return nil, factoryErr
		}
		return proc, nil
	}
	handler := NewHandler(factory, nil, zap.NewNop())
	router.GET("/ws", handler.Serve)

	srv := httptest.NewServer(router)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, url
}

func TestStreamRoundTrip(t *testing.T) {
	proc := &stubProcessor{}
	srv, url := newTestServer(t, proc, nil)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("frame-1")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var report session.Report
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&report); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(report.Detected) != 1 || report.Detected[0].Name != "frame-1" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestPendingFramesAreCoalesced(t *testing.T) {
	proc := &stubProcessor{release: make(chan struct{})}
	srv, url := newTestServer(t, proc, nil)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// First frame occupies the pipeline; the next three pile up while it
	// is blocked, and only the newest of them may survive.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("frame-1")); err != nil {
		t.Fatalf("write 1: %v", err)
	}
	waitFor(t, func() bool { return proc.frameCount() == 1 })
	for i := 2; i <= 4; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("frame-"+string(rune('0'+i)))); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	// Give the reader time to drain the socket before releasing.
	time.Sleep(100 * time.Millisecond)
	close(proc.release)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reports []session.Report
	for i := 0; i < 2; i++ {
		var r session.Report
		if err := conn.ReadJSON(&r); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		reports = append(reports, r)
	}

	if reports[0].Detected[0].Name != "frame-1" {
		t.Fatalf("first report should be the in-flight frame: %+v", reports[0])
	}
	if reports[1].Detected[0].Name != "frame-4" {
		t.Fatalf("second report should be the newest pending frame: %+v", reports[1])
	}
	if got := proc.frameCount(); got != 2 {
		t.Fatalf("expected 2 processed frames after coalescing, got %d", got)
	}
}

func TestClientDisconnectClosesSession(t *testing.T) {
	proc := &stubProcessor{}
	srv, url := newTestServer(t, proc, nil)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		proc.mu.Lock()
		closed := proc.closed
		proc.mu.Unlock()
		if closed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("processor not closed after client disconnect")
}

func TestFactoryFailureRejectsConnection(t *testing.T) {
	srv, url := newTestServer(t, nil, errors.New("gallery load failed"))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		// Some dialers surface the close before the handshake returns.
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close after factory failure")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
