package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeAndDecodeDataURL(t *testing.T) {
	raw := encodePNG(t, 32, 24)
	payload := []byte("data:image/png;base64," + base64.StdEncoding.EncodeToString(raw))

	normalized, err := Normalize(payload)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	r, err := Decode(normalized)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if r.Width != 32 || r.Height != 24 {
		t.Fatalf("unexpected dimensions: %dx%d", r.Width, r.Height)
	}
}

func TestNormalizePassesThroughRawBytes(t *testing.T) {
	raw := encodePNG(t, 8, 8)
	normalized, err := Normalize(raw)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if !bytes.Equal(normalized, raw) {
		t.Fatal("raw image bytes should pass through unchanged")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("definitely not an image")); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if _, err := Normalize([]byte("   ")); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for empty payload, got %v", err)
	}
}

func TestCropClampsToBounds(t *testing.T) {
	raw := encodePNG(t, 100, 80)
	r, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	// Box with margin spilling past the right/bottom edge.
	crop := Crop(r, Box{X: 80, Y: 60, W: 40, H: 40}, 0.35)
	if crop.Width <= 0 || crop.Height <= 0 {
		t.Fatalf("degenerate crop: %dx%d", crop.Width, crop.Height)
	}
	if crop.Width > 100 || crop.Height > 80 {
		t.Fatalf("crop exceeds frame: %dx%d", crop.Width, crop.Height)
	}
}

func TestGrayScaledDimensions(t *testing.T) {
	raw := encodePNG(t, 50, 70)
	r, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	g := GrayScaled(r, 64, 64)
	if got := g.Bounds(); got.Dx() != 64 || got.Dy() != 64 {
		t.Fatalf("unexpected gray dimensions: %v", got)
	}
}

func TestBoxCenter(t *testing.T) {
	c := Box{X: 10, Y: 20, W: 30, H: 40}.Center()
	if c.X != 25 || c.Y != 40 {
		t.Fatalf("unexpected center: %+v", c)
	}
}
