package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/frame"
)

const defaultRequestTimeout = 10 * time.Second

// HTTPClient reaches the model server's face endpoint over multipart HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient builds a client for the given model server base URL.
func NewHTTPClient(baseURL string, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultRequestTimeout},
		logger:  logger.Named("vision"),
	}
}

type faceResponse struct {
	FacesCount int            `json:"faces_count"`
	Faces      []faceDetected `json:"faces"`
	Model      string         `json:"model"`
}

type faceDetected struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// DetectFaces posts the encoded frame and returns every usable face.
// Faces with a malformed bbox or empty embedding are skipped so one bad
// candidate never hides the rest.
func (c *HTTPClient) DetectFaces(ctx context.Context, imageData []byte) ([]Detection, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse face response: %w", err)
	}

	detections := make([]Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		box, ok := cornerBBoxToBox(f.BBox)
		if !ok || len(f.Embedding) == 0 {
			c.logger.Debug("skipping unusable face candidate",
				zap.Int("face_index", f.FaceIndex),
				zap.Int("embedding_len", len(f.Embedding)))
			continue
		}
		detections = append(detections, Detection{
			Box:       box,
			Score:     f.DetScore,
			Embedding: f.Embedding,
		})
	}
	return detections, nil
}

func (c *HTTPClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model server request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model server error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// cornerBBoxToBox converts a [x1, y1, x2, y2] float bbox to pixel Box.
func cornerBBoxToBox(bbox []float64) (frame.Box, bool) {
	if len(bbox) != 4 {
		return frame.Box{}, false
	}
	x1, y1 := bbox[0], bbox[1]
	x2, y2 := bbox[2], bbox[3]
	if x2 <= x1 || y2 <= y1 {
		return frame.Box{}, false
	}
	return frame.Box{
		X: int(math.Round(x1)),
		Y: int(math.Round(y1)),
		W: int(math.Round(x2 - x1)),
		H: int(math.Round(y2 - y1)),
	}, true
}

func detectMIMEType(data []byte) string {
	if len(data) < 12 {
		return "application/octet-stream"
	}
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	if data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
