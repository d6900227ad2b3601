package sink

import (
	"github.com/rs/zerolog"

	"vms-service/internal/config"
)

// BuildForwarders returns a forwarder for every configured target. A target
// that cannot be reached at startup is skipped with an error log.
func BuildForwarders(cfg config.ForwardConfig, log zerolog.Logger) []Forwarder {
	var out []Forwarder

	if cfg.Webhook.URL != "" {
		out = append(out, NewWebhookForwarder(cfg.Webhook, log))
		log.Info().Str("url", cfg.Webhook.URL).Msg("webhook forwarding enabled")
	}
	if cfg.MQTT.Broker != "" {
		fw, err := NewMQTTForwarder(cfg.MQTT, log)
		if err != nil {
			log.Error().Err(err).Str("broker", cfg.MQTT.Broker).Msg("mqtt forwarding disabled")
		} else {
			out = append(out, fw)
			log.Info().Str("broker", cfg.MQTT.Broker).Msg("mqtt forwarding enabled")
		}
	}
	if cfg.Redis.Addr != "" {
		out = append(out, NewRedisStreamForwarder(cfg.Redis, log))
		log.Info().Str("addr", cfg.Redis.Addr).Str("stream", cfg.Redis.Stream).Msg("redis stream forwarding enabled")
	}
	return out
}
