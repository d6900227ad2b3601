package recognition

import (
	"context"

	"golang.org/x/sync/semaphore"

	"vms-service/internal/domain/vms"
)

// Pool bounds the number of recognition calls in flight across all cameras.
type Pool struct {
	rec Recognizer
	sem *semaphore.Weighted
}

func NewPool(rec Recognizer, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{rec: rec, sem: semaphore.NewWeighted(int64(workers))}
}

func (p *Pool) Recognize(ctx context.Context, frame vms.Frame) ([]vms.DetectedFace, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return p.rec.Recognize(ctx, frame)
}
