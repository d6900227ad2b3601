package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"vms-service/internal/capture"
	"vms-service/internal/domain/vms"
	"vms-service/internal/retry"
)

func (i *Ingestor) run(ctx context.Context, cam vms.CameraConfig, done chan struct{}) {
	defer close(done)

	log := i.log.With().Str("camera_id", cam.CameraID).Logger()
	limiter := rate.NewLimiter(rate.Limit(cam.TargetFPS), 1)

	src, err := i.open(ctx, cam, log)
	if err != nil {
		if ctx.Err() == nil {
			i.fault(cam.CameraID, done, err)
		}
		return
	}
	defer func() {
		if src != nil {
			_ = src.Close()
		}
	}()

	var seq uint64
	failures := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		data, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			i.metrics.FrameFailed(cam.CameraID, "capture")
			_ = src.Close()
			src = nil

			if failures >= i.readBudget() {
				i.fault(cam.CameraID, done, fmt.Errorf("%d consecutive frame reads failed: %w", failures, err))
				return
			}
			delay := i.cfg.Reconnect.Delay(failures)
			log.Warn().
				Err(err).
				Int("failures", failures).
				Dur("retry_in", delay).
				Msg("frame read failed, reconnecting")
			if !sleepCtx(ctx, delay) {
				return
			}

			if src, err = i.open(ctx, cam, log); err != nil {
				if ctx.Err() == nil {
					i.fault(cam.CameraID, done, err)
				}
				return
			}
			continue
		}
		failures = 0

		seq++
		frame := vms.Frame{CameraID: cam.CameraID, Seq: seq, Data: data, Timestamp: i.now()}
		if err := i.proc.ProcessFrame(ctx, cam, frame); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Uint64("seq", seq).Msg("frame skipped")
		}
	}
}

// open connects to the camera source, backing off exponentially between
// attempts.
func (i *Ingestor) open(ctx context.Context, cam vms.CameraConfig, log zerolog.Logger) (capture.Source, error) {
	var src capture.Source
	err := retry.Do(ctx, i.cfg.Reconnect, func(ctx context.Context) error {
		s, err := i.opener.Open(ctx, cam)
		if err != nil {
			return err
		}
		src = s
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", i.cfg.Reconnect.MaxAttempts).
			Dur("retry_in", delay).
			Msg("failed to open camera source")
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// readBudget is the number of consecutive failed reads tolerated before the
// camera is faulted.
func (i *Ingestor) readBudget() int {
	if i.cfg.Reconnect.MaxAttempts < 1 {
		return 1
	}
	return i.cfg.Reconnect.MaxAttempts
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
