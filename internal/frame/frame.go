// Package frame turns inbound encoded stills into raster buffers and
// face crops. A malformed frame yields ErrDecode and nothing else; the
// next frame is independent.
package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrDecode reports a frame that could not be decoded into an image.
var ErrDecode = errors.New("frame: undecodable image data")

// Box is a face bounding box in pixel coordinates.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Center returns the box centroid.
func (b Box) Center() Point {
	return Point{X: float64(b.X) + float64(b.W)/2, Y: float64(b.Y) + float64(b.H)/2}
}

// Point is a 2D coordinate, pixel or normalized depending on context.
type Point struct {
	X float64
	Y float64
}

// Raster is a decoded frame or crop.
type Raster struct {
	Img    image.Image
	Width  int
	Height int
}

// Normalize strips any data-URL wrapper and base64 encoding, returning
// raw encoded image bytes. Browser clients send frames as
// "data:image/jpeg;base64,..." payloads.
func Normalize(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	if bytes.HasPrefix(data, []byte("data:")) {
		idx := bytes.IndexByte(data, ',')
		if idx < 0 {
			return nil, fmt.Errorf("%w: malformed data URL", ErrDecode)
		}
		data = data[idx+1:]
	}

	if hasImageMagic(data) {
		return data, nil
	}

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(decoded, data)
	if err != nil {
		if n, err = base64.RawStdEncoding.Decode(decoded, data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}
	return decoded[:n], nil
}

// Decode parses raw encoded bytes (JPEG, PNG, GIF or WebP) into a Raster.
func Decode(raw []byte) (*Raster, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrDecode)
	}
	return &Raster{Img: img, Width: b.Dx(), Height: b.Dy()}, nil
}

// Crop extracts the boxed region with a proportional margin, clamped to
// the frame bounds.
func Crop(r *Raster, box Box, margin float64) *Raster {
	mx := int(float64(box.W) * margin)
	my := int(float64(box.H) * margin)

	b := r.Img.Bounds()
	x1 := clamp(box.X-mx, b.Min.X, b.Max.X)
	y1 := clamp(box.Y-my, b.Min.Y, b.Max.Y)
	x2 := clamp(box.X+box.W+mx, b.Min.X, b.Max.X)
	y2 := clamp(box.Y+box.H+my, b.Min.Y, b.Max.Y)
	if x2 <= x1 || y2 <= y1 {
		// Degenerate box; fall back to a single pixel inside bounds.
		x1, y1 = b.Min.X, b.Min.Y
		x2, y2 = min(b.Min.X+1, b.Max.X), min(b.Min.Y+1, b.Max.Y)
	}

	rect := image.Rect(x1, y1, x2, y2)
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	xdraw.Draw(out, out.Bounds(), r.Img, rect.Min, xdraw.Src)
	return &Raster{Img: out, Width: rect.Dx(), Height: rect.Dy()}
}

// GrayScaled converts a raster to a fixed-size grayscale image for
// texture analysis.
func GrayScaled(r *Raster, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), r.Img, r.Img.Bounds(), xdraw.Src, nil)
	return dst
}

func hasImageMagic(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return true
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return true
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return true
	}
	// WebP: RIFF....WEBP
	if data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return true
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
