package track

import (
	"testing"

	"github.com/example/face-attendance/internal/frame"
)

func TestRingStaysBounded(t *testing.T) {
	r := NewRing[float64](4)
	for i := 0; i < 100; i++ {
		r.Push(float64(i))
	}
	if r.Len() != 4 || r.Cap() != 4 {
		t.Fatalf("ring not bounded: len=%d cap=%d", r.Len(), r.Cap())
	}
	want := []float64{96, 97, 98, 99}
	got := r.Values()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected ring contents: %v", got)
		}
	}
}

func TestAssignReusesNearbyTrack(t *testing.T) {
	tb := NewTable(Config{AssociationRadius: 60, EvictAfter: 15, RingSize: 8})

	first := tb.Assign([]frame.Box{{X: 100, Y: 100, W: 50, H: 50}}, 1, 640, 480)
	second := tb.Assign([]frame.Box{{X: 108, Y: 104, W: 50, H: 50}}, 2, 640, 480)

	if first[0].Key != second[0].Key {
		t.Fatal("nearby detection should attach to the existing track")
	}
	if tb.Len() != 1 {
		t.Fatalf("expected 1 track, got %d", tb.Len())
	}
	if second[0].LastSeen != 2 {
		t.Fatalf("last seen not updated: %d", second[0].LastSeen)
	}
}

func TestAssignAllocatesDistantTrack(t *testing.T) {
	tb := NewTable(Config{AssociationRadius: 60, EvictAfter: 15, RingSize: 8})

	a := tb.Assign([]frame.Box{{X: 0, Y: 0, W: 40, H: 40}}, 1, 640, 480)
	b := tb.Assign([]frame.Box{{X: 500, Y: 400, W: 40, H: 40}}, 2, 640, 480)

	if a[0].Key == b[0].Key {
		t.Fatal("distant detection must allocate a new track")
	}
	if tb.Len() != 2 {
		t.Fatalf("expected 2 tracks, got %d", tb.Len())
	}
}

func TestAssignTwoFacesSameFrameClaimDistinctTracks(t *testing.T) {
	tb := NewTable(Config{AssociationRadius: 200, EvictAfter: 15, RingSize: 8})

	tracks := tb.Assign([]frame.Box{
		{X: 100, Y: 100, W: 50, H: 50},
		{X: 140, Y: 110, W: 50, H: 50},
	}, 1, 640, 480)

	if tracks[0].Key == tracks[1].Key {
		t.Fatal("two detections in one frame must not share a track")
	}
}

func TestEvictAfterMissedFrames(t *testing.T) {
	tb := NewTable(Config{AssociationRadius: 60, EvictAfter: 3, RingSize: 8})

	tb.Assign([]frame.Box{{X: 100, Y: 100, W: 40, H: 40}}, 1, 640, 480)

	tb.Evict(4) // gap of 3: still within budget
	if tb.Len() != 1 {
		t.Fatal("track evicted too early")
	}
	tb.Evict(5) // gap of 4: evicted
	if tb.Len() != 0 {
		t.Fatal("stale track not evicted")
	}
}

func TestTrailIsBoundedAndNormalized(t *testing.T) {
	tb := NewTable(Config{AssociationRadius: 600, EvictAfter: 1000, RingSize: 8})

	var tr *TrackedFace
	for i := 1; i <= trailCapacity+20; i++ {
		got := tb.Assign([]frame.Box{{X: 300, Y: 220, W: 40, H: 40}}, i, 640, 480)
		tr = got[0]
	}

	trail := tr.Trail()
	if len(trail) != trailCapacity {
		t.Fatalf("trail not bounded: %d", len(trail))
	}
	p := trail[0]
	if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
		t.Fatalf("trail not normalized: %+v", p)
	}
}
