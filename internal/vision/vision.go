// Package vision talks to the face model server. One call detects every
// face in a frame and returns a deterministic embedding per face.
package vision

import (
	"context"

	"github.com/example/face-attendance/internal/frame"
)

// Detection is one detected face with its descriptor.
type Detection struct {
	Box       frame.Box
	Score     float64
	Embedding []float32
}

// Client exposes the subset of model server functionality used by the
// attendance pipeline.
type Client interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]Detection, error)
}
