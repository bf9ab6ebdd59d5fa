// Package session drives the per-frame identification pipeline for one
// streaming connection: decode, detect, match, liveness, confirmation,
// and at-most-once attendance marking.
package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/frame"
	"github.com/example/face-attendance/internal/gallery"
	"github.com/example/face-attendance/internal/liveness"
	"github.com/example/face-attendance/internal/logging"
	"github.com/example/face-attendance/internal/metrics"
	"github.com/example/face-attendance/internal/track"
	"github.com/example/face-attendance/internal/vision"
)

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("session: closed")

// livenessCropSize is the fixed edge of the grayscale crop fed to the
// liveness gate.
const livenessCropSize = 64

// LivenessScorer derives a per-frame liveness score from a grayscale
// crop and the track's recent centroid trail.
type LivenessScorer interface {
	Score(crop *image.Gray, trail []frame.Point) float64
}

// Recorder persists one attendance mark. It is idempotent by day:
// alreadyMarked is true when a record for the identity already exists
// for the current date.
type Recorder interface {
	MarkAttendance(ctx context.Context, identityID int64, ts time.Time) (alreadyMarked bool, err error)
}

// BBox is the reply-schema bounding box.
type BBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// FaceStatus is the per-track slice of a frame report.
type FaceStatus struct {
	Name            string  `json:"name"`
	Confidence      float64 `json:"confidence"`
	Marked          bool    `json:"marked"`
	Confirmed       bool    `json:"confirmed"`
	BBox            BBox    `json:"bbox"`
	FramesConfirmed int     `json:"frames_confirmed"`
	FramesRequired  int     `json:"frames_required"`
}

// Report is the outbound message for one processed frame.
type Report struct {
	Detected []FaceStatus `json:"detected"`
}

// Config carries the pipeline tunables for one session.
type Config struct {
	MatchThreshold        float64
	RejectionDistance     float64
	FramesRequired        int
	CropMargin            float64
	LivenessPassThreshold float64
	LivenessMaxFails      int
	RejectedCooldown      int
	EvictAfter            int
	RingSize              int
	AssociationRadius     float64
}

// Controller owns one session's gallery snapshot, track table and
// lifecycle. It is safe for concurrent ProcessFrame/Close calls, but
// frames are processed strictly one at a time.
type Controller struct {
	id       string
	cfg      Config
	matcher  *gallery.Matcher
	gate     LivenessScorer
	table    *track.Table
	fsm      *track.FSM
	vision   vision.Client
	recorder Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu         sync.Mutex
	marked     map[int64]bool
	frameIndex int
	closed     bool
	startedAt  time.Time
}

// NewController builds a session around an immutable gallery snapshot.
func NewController(id string, cfg Config, snapshot *gallery.Snapshot, visionClient vision.Client, recorder Recorder, m *metrics.Metrics, logger *zap.Logger) *Controller {
	return &Controller{
		id:      id,
		cfg:     cfg,
		matcher: gallery.NewMatcher(snapshot, cfg.RejectionDistance),
		gate:    liveness.NewGate(),
		table: track.NewTable(track.Config{
			AssociationRadius: cfg.AssociationRadius,
			EvictAfter:        cfg.EvictAfter,
			RingSize:          cfg.RingSize,
		}),
		fsm: track.NewFSM(track.FSMConfig{
			MatchThreshold:   cfg.MatchThreshold,
			FramesRequired:   cfg.FramesRequired,
			LivenessMaxFails: cfg.LivenessMaxFails,
			CooldownFrames:   cfg.RejectedCooldown,
		}),
		vision:    visionClient,
		recorder:  recorder,
		metrics:   m,
		logger:    logging.WithSession(logger, "session", id),
		marked:    make(map[int64]bool),
		startedAt: time.Now().UTC(),
	}
}

// ID returns the session identifier.
func (c *Controller) ID() string {
	return c.id
}

// Close discards the session. Idempotent; after close no further mark
// events are possible.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.logger.Info("session closed",
		zap.Int("frames_processed", c.frameIndex),
		zap.Int("identities_marked", len(c.marked)))
}

// ProcessFrame runs the full pipeline for one inbound encoded frame.
// A malformed frame or a failed detection call yields an empty report
// and no state change; per-face problems are isolated to that face.
func (c *Controller) ProcessFrame(ctx context.Context, data []byte) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrSessionClosed
	}

	started := time.Now()
	defer func() {
		c.metrics.ObserveFrameSeconds(time.Since(started).Seconds())
	}()

	raw, err := frame.Normalize(data)
	if err != nil {
		c.metrics.IncDecodeFailures()
		c.logger.Debug("skipping undecodable frame", zap.Error(err))
		return &Report{Detected: []FaceStatus{}}, nil
	}
	raster, err := frame.Decode(raw)
	if err != nil {
		c.metrics.IncDecodeFailures()
		c.logger.Debug("skipping undecodable frame", zap.Error(err))
		return &Report{Detected: []FaceStatus{}}, nil
	}

	detections, err := c.vision.DetectFaces(ctx, raw)
	if err != nil {
		c.metrics.IncDetectionErrors()
		c.logger.Warn("face detection failed, skipping frame", zap.Error(err))
		return &Report{Detected: []FaceStatus{}}, nil
	}

	c.frameIndex++
	idx := c.frameIndex

	boxes := make([]frame.Box, len(detections))
	for i, d := range detections {
		boxes[i] = d.Box
	}
	tracks := c.table.Assign(boxes, idx, raster.Width, raster.Height)

	statuses := make([]FaceStatus, 0, len(detections))
	for i, det := range detections {
		statuses = append(statuses, c.processFace(ctx, raster, det, tracks[i], idx))
	}

	c.table.Evict(idx)
	c.metrics.IncFramesProcessed()

	return &Report{Detected: statuses}, nil
}

func (c *Controller) processFace(ctx context.Context, raster *frame.Raster, det vision.Detection, tr *track.TrackedFace, idx int) FaceStatus {
	crop := frame.Crop(raster, det.Box, c.cfg.CropMargin)
	gray := frame.GrayScaled(crop, livenessCropSize, livenessCropSize)

	score := c.gate.Score(gray, tr.Trail())
	match := c.matcher.Match(det.Embedding, tr.IdentityID)

	confirmedNow := c.fsm.Advance(tr, track.Observation{
		Match:         match,
		LivenessScore: score,
		LivenessPass:  score >= c.cfg.LivenessPassThreshold,
	}, idx)

	markedNow := false
	if confirmedNow {
		markedNow = c.emitMark(ctx, tr)
	}

	return FaceStatus{
		Name:            tr.Name,
		Confidence:      match.Confidence,
		Marked:          markedNow,
		Confirmed:       tr.State == track.StateConfirmed,
		BBox:            BBox{X: det.Box.X, Y: det.Box.Y, W: det.Box.W, H: det.Box.H},
		FramesConfirmed: tr.FramesConfirmed,
		FramesRequired:  c.fsm.FramesRequired(),
	}
}

// emitMark records attendance for a freshly confirmed track. At most
// one mark event fires per (session, identity); a duplicate
// confirmation (e.g. two simultaneous tracks resolving to the same
// person) is suppressed but still reported as confirmed.
func (c *Controller) emitMark(ctx context.Context, tr *track.TrackedFace) bool {
	if tr.IdentityID == 0 || c.marked[tr.IdentityID] {
		return false
	}

	now := time.Now().UTC()
	already, err := c.recorder.MarkAttendance(ctx, tr.IdentityID, now)
	if err != nil {
		// One synchronous retry; the recorder is idempotent by day.
		already, err = c.recorder.MarkAttendance(ctx, tr.IdentityID, now)
	}
	if err != nil {
		// The identity stays unmarked so a later confirmation may retry;
		// the track keeps its confirmed state for the client.
		c.metrics.IncRecorderFailures()
		c.logger.Error("failed to record attendance",
			zap.Int64("identity_id", tr.IdentityID),
			zap.String("name", tr.Name),
			zap.Error(logging.NewOperationError("session.mark_attendance", c.id, err)))
		return false
	}

	c.marked[tr.IdentityID] = true
	if already {
		c.logger.Info("attendance already recorded today",
			zap.Int64("identity_id", tr.IdentityID), zap.String("name", tr.Name))
		return false
	}

	c.metrics.IncMarksEmitted()
	c.logger.Info("attendance marked",
		zap.Int64("identity_id", tr.IdentityID), zap.String("name", tr.Name))
	return true
}
