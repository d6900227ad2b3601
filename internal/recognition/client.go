package recognition

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"vms-service/internal/config"
	"vms-service/internal/domain/vms"
)

var ErrUnavailable = errors.New("recognition unavailable")

type Recognizer interface {
	Recognize(ctx context.Context, frame vms.Frame) ([]vms.DetectedFace, error)
}

type recognizeRequest struct {
	CameraID    string    `json:"camera_id"`
	Timestamp   time.Time `json:"timestamp"`
	ImageBase64 string    `json:"image_base64"`
}

type faceResult struct {
	VisitorID  *string         `json:"visitor_id"`
	Name       string          `json:"name"`
	Confidence float64         `json:"confidence"`
	BBox       vms.BoundingBox `json:"bbox"`
}

type recognizeResponse struct {
	Faces []faceResult `json:"faces"`
}

// Client calls the external detection and matching service over HTTP.
type Client struct {
	endpoint string
	http     *resty.Client
}

func NewClient(cfg config.RecognitionConfig) *Client {
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		http: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *Client) Recognize(ctx context.Context, frame vms.Frame) ([]vms.DetectedFace, error) {
	var out recognizeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(recognizeRequest{
			CameraID:    frame.CameraID,
			Timestamp:   frame.Timestamp,
			ImageBase64: base64.StdEncoding.EncodeToString(frame.Data),
		}).
		SetResult(&out).
		Post(c.endpoint + "/recognize")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}

	faces := make([]vms.DetectedFace, 0, len(out.Faces))
	for _, f := range out.Faces {
		face := vms.DetectedFace{
			VisitorID:   vms.UnknownVisitor,
			Name:        f.Name,
			Confidence:  clamp01(f.Confidence),
			BoundingBox: f.BBox,
		}
		if f.VisitorID != nil && *f.VisitorID != "" {
			face.VisitorID = *f.VisitorID
		}
		faces = append(faces, face)
	}
	return faces, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
