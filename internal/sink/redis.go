package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"vms-service/internal/config"
	"vms-service/internal/domain/vms"
)

// RedisStreamForwarder appends alerts to a Redis stream with "data" and
// "timestamp" fields.
type RedisStreamForwarder struct {
	client *redis.Client
	stream string
	maxLen int64
	log    zerolog.Logger
}

func NewRedisStreamForwarder(cfg config.RedisConfig, log zerolog.Logger) *RedisStreamForwarder {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = -1
	}
	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     cfg.Timeout,
		ReadTimeout:     cfg.Timeout,
		WriteTimeout:    cfg.Timeout,
		MaxRetries:      maxRetries,
		MinRetryBackoff: 500 * time.Millisecond,
		MaxRetryBackoff: 2 * time.Second,
	})
	return &RedisStreamForwarder{
		client: client,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
		log:    log.With().Str("forwarder", "redis").Logger(),
	}
}

func (r *RedisStreamForwarder) Name() string { return "redis" }

func (r *RedisStreamForwarder) Forward(ctx context.Context, event vms.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"data":      string(data),
			"timestamp": event.Timestamp.Unix(),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		r.log.Debug().Err(err).Str("stream", r.stream).Msg("xadd retries exhausted")
		return fmt.Errorf("xadd %s failed: %w", r.stream, err)
	}
	return nil
}

func (r *RedisStreamForwarder) Close() error {
	return r.client.Close()
}
