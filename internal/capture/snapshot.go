package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type snapshotSource struct {
	url    string
	client *resty.Client
}

func newSnapshotSource(ctx context.Context, url string, timeout time.Duration) (*snapshotSource, error) {
	s := &snapshotSource{
		url:    url,
		client: resty.New().SetTimeout(timeout),
	}
	// Fetch one frame so that unreachable cameras fail at open time.
	if _, err := s.Read(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *snapshotSource) Read(ctx context.Context) ([]byte, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("snapshot returned status %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, errors.New("snapshot returned empty body")
	}
	return body, nil
}

func (s *snapshotSource) Close() error { return nil }
