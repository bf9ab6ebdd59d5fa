// Package track links per-frame face detections into continuous
// session-scoped tracks and decides, per track, when the evidence is
// strong enough to confirm an identity. Detections are memoryless; only
// a persistent track makes consecutive-evidence counting meaningful.
package track

import (
	"math"

	"github.com/google/uuid"

	"github.com/example/face-attendance/internal/frame"
)

// State is a track's position in the confirmation lifecycle.
type State int

const (
	StateDetected State = iota
	StateVerifying
	StateConfirmed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateDetected:
		return "detected"
	case StateVerifying:
		return "verifying"
	case StateConfirmed:
		return "confirmed"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

const trailCapacity = 30

// TrackedFace is the ephemeral per-session state of one physical face.
type TrackedFace struct {
	Key string

	Box       frame.Box
	Embedding []float32

	// IdentityID is the current best match; 0 means Unknown.
	IdentityID int64
	Name       string

	Confidences     *Ring[float64]
	FramesConfirmed int

	LivenessScore float64
	LivenessFails int

	State      State
	RejectedAt int
	LastSeen   int

	trail *Ring[frame.Point]
}

// Trail returns the track's recent normalized centroids, oldest first.
func (t *TrackedFace) Trail() []frame.Point {
	return t.trail.Values()
}

// Config tunes association, eviction and history bounds.
type Config struct {
	// AssociationRadius is the minimum centroid distance (pixels) within
	// which a detection can attach to an existing track. Larger faces
	// widen their own radius to half the box diagonal.
	AssociationRadius float64
	// EvictAfter removes tracks unseen for this many frames.
	EvictAfter int
	// RingSize bounds the per-track confidence history.
	RingSize int
}

// Table is the arena of live tracks for one session.
type Table struct {
	cfg    Config
	tracks map[string]*TrackedFace
}

// NewTable builds an empty track table.
func NewTable(cfg Config) *Table {
	if cfg.AssociationRadius <= 0 {
		cfg.AssociationRadius = 60
	}
	if cfg.EvictAfter < 1 {
		cfg.EvictAfter = 15
	}
	if cfg.RingSize < 1 {
		cfg.RingSize = 16
	}
	return &Table{cfg: cfg, tracks: make(map[string]*TrackedFace)}
}

// Len reports the number of live tracks.
func (tb *Table) Len() int {
	return len(tb.tracks)
}

// Assign attaches each detection box to the nearest existing track
// within range, or allocates a new track in state Detected. The result
// is parallel to boxes. frameW/frameH normalize the centroid trail.
func (tb *Table) Assign(boxes []frame.Box, frameIndex, frameW, frameH int) []*TrackedFace {
	assigned := make([]*TrackedFace, len(boxes))
	claimed := make(map[string]bool, len(boxes))

	for i, box := range boxes {
		center := box.Center()
		radius := tb.cfg.AssociationRadius
		if diag := math.Hypot(float64(box.W), float64(box.H)) / 2; diag > radius {
			radius = diag
		}

		var best *TrackedFace
		bestDist := radius
		for _, tr := range tb.tracks {
			if claimed[tr.Key] {
				continue
			}
			c := tr.Box.Center()
			d := math.Hypot(center.X-c.X, center.Y-c.Y)
			if d <= bestDist {
				best = tr
				bestDist = d
			}
		}

		if best == nil {
			best = &TrackedFace{
				Key:         uuid.NewString(),
				Name:        "Unknown",
				State:       StateDetected,
				Confidences: NewRing[float64](tb.cfg.RingSize),
				trail:       NewRing[frame.Point](trailCapacity),
			}
			tb.tracks[best.Key] = best
		}

		claimed[best.Key] = true
		best.Box = box
		best.LastSeen = frameIndex
		if frameW > 0 && frameH > 0 {
			best.trail.Push(frame.Point{X: center.X / float64(frameW), Y: center.Y / float64(frameH)})
		}
		assigned[i] = best
	}
	return assigned
}

// Evict drops tracks with no detection for more than EvictAfter frames.
func (tb *Table) Evict(frameIndex int) {
	for key, tr := range tb.tracks {
		if frameIndex-tr.LastSeen > tb.cfg.EvictAfter {
			delete(tb.tracks, key)
		}
	}
}
