// Package liveness scores whether recent evidence for a track looks
// like a live subject rather than a photo or replayed video. The gate
// is stateless; per-track history and failure counters live on the
// track itself. The score blends two signals: crop texture (flat
// surfaces such as phone screens and prints smooth out high-frequency
// detail) and micro-motion of the track centroid (a propped-up photo
// barely moves).
package liveness

import (
	"image"

	"github.com/example/face-attendance/internal/frame"
)

// Gate derives a continuous liveness score in [0,1] per frame.
type Gate struct {
	// textureNorm scales the Laplacian variance into [0,1]. Live faces
	// typically land well above flat reproductions.
	textureNorm float64
	// motionThreshold is the normalized centroid range treated as full
	// micro-motion evidence.
	motionThreshold float64
	// minTrail is how many centroid samples are needed before motion is
	// scored at all; younger tracks are judged on texture alone.
	minTrail int
}

// NewGate returns a gate with calibrated defaults.
func NewGate() *Gate {
	return &Gate{
		textureNorm:     500,
		motionThreshold: 0.02,
		minTrail:        4,
	}
}

// Score evaluates one frame's evidence: the grayscale face crop and the
// track's recent centroid trail, oldest first, normalized to [0,1].
func (g *Gate) Score(crop *image.Gray, trail []frame.Point) float64 {
	texture := g.textureScore(crop)
	if len(trail) < g.minTrail {
		return texture
	}
	motion := g.motionScore(trail)
	return 0.6*texture + 0.4*motion
}

func (g *Gate) textureScore(crop *image.Gray) float64 {
	if crop == nil {
		return 0
	}
	v := laplacianVariance(crop)
	score := v / g.textureNorm
	if score > 1 {
		score = 1
	}
	return score
}

func (g *Gate) motionScore(trail []frame.Point) float64 {
	minX, maxX := trail[0].X, trail[0].X
	minY, maxY := trail[0].Y, trail[0].Y
	for _, p := range trail[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	spread := maxX - minX
	if dy := maxY - minY; dy > spread {
		spread = dy
	}
	score := spread / g.motionThreshold
	if score > 1 {
		score = 1
	}
	return score
}

// laplacianVariance measures high-frequency detail with a 4-neighbor
// Laplacian over the interior pixels.
func laplacianVariance(g *image.Gray) float64 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	var sum, sumSq float64
	n := 0
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			c := int(g.GrayAt(x, y).Y)
			lap := 4*c -
				int(g.GrayAt(x, y-1).Y) -
				int(g.GrayAt(x, y+1).Y) -
				int(g.GrayAt(x-1, y).Y) -
				int(g.GrayAt(x+1, y).Y)
			f := float64(lap)
			sum += f
			sumSq += f * f
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}
