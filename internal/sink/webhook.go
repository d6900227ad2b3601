package sink

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"vms-service/internal/config"
	"vms-service/internal/domain/vms"
)

// WebhookForwarder POSTs each alert as JSON to a backend URL.
type WebhookForwarder struct {
	url    string
	client *resty.Client
	log    zerolog.Logger
}

func NewWebhookForwarder(cfg config.WebhookConfig, log zerolog.Logger) *WebhookForwarder {
	log = log.With().Str("forwarder", "webhook").Logger()

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryDelay).
		SetRetryMaxWaitTime(cfg.RetryDelay).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || (resp != nil && resp.IsError())
		}).
		AddRetryHook(func(resp *resty.Response, err error) {
			ev := log.Debug().Err(err)
			if resp != nil && resp.Request != nil {
				ev = ev.Int("status", resp.StatusCode()).Int("attempt", resp.Request.Attempt)
			}
			ev.Msg("webhook retry")
		})

	return &WebhookForwarder{
		url:    cfg.URL,
		client: client,
		log:    log,
	}
}

func (w *WebhookForwarder) Name() string { return "webhook" }

func (w *WebhookForwarder) Forward(ctx context.Context, event vms.Event) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(event).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

func (w *WebhookForwarder) Close() error { return nil }
