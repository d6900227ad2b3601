package capture

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"vms-service/internal/config"
	"vms-service/internal/domain/vms"
)

// Source yields encoded frames from one camera.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Opener opens a Source for a camera. It is called again after read
// failures.
type Opener interface {
	Open(ctx context.Context, cam vms.CameraConfig) (Source, error)
}

// DefaultOpener picks a source by descriptor: http(s) URLs are polled as
// snapshots, everything else is streamed through a long-running ffmpeg.
// Both kinds deliver a first frame before Open returns.
type DefaultOpener struct {
	FFmpegPath string
	Timeout    time.Duration
}

func NewOpener(cfg config.IngestConfig) *DefaultOpener {
	return &DefaultOpener{FFmpegPath: cfg.FFmpegPath, Timeout: cfg.CaptureTimeout}
}

func (o *DefaultOpener) Open(ctx context.Context, cam vms.CameraConfig) (Source, error) {
	desc := strings.TrimSpace(cam.SourceDescriptor)
	switch {
	case desc == "":
		return nil, fmt.Errorf("%w: camera %s has no source", vms.ErrInvalidInput, cam.CameraID)
	case isHTTP(desc):
		return newSnapshotSource(ctx, desc, o.Timeout)
	case isRTSP(desc):
		return newFFmpegSource(ctx, o.FFmpegPath, desc, "", cam.TargetFPS, o.Timeout)
	default:
		if _, err := os.Stat(desc); err != nil {
			return nil, fmt.Errorf("source %s not accessible: %w", desc, err)
		}
		format := ""
		if strings.HasPrefix(desc, "/dev/video") {
			format = "v4l2"
		}
		return newFFmpegSource(ctx, o.FFmpegPath, desc, format, cam.TargetFPS, o.Timeout)
	}
}

func isHTTP(desc string) bool {
	return strings.HasPrefix(desc, "http://") || strings.HasPrefix(desc, "https://")
}

func isRTSP(desc string) bool {
	return strings.HasPrefix(desc, "rtsp://") || strings.HasPrefix(desc, "rtsps://")
}
