package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"vms-service/internal/domain/vms"
)

type Config struct {
	HTTP        HTTPConfig        `mapstructure:"http"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Log         LogConfig         `mapstructure:"log"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Tracker     TrackerConfig     `mapstructure:"tracker"`
	Behavior    BehaviorConfig    `mapstructure:"behavior"`
	Gate        GateConfig        `mapstructure:"gate"`
	Sink        SinkConfig        `mapstructure:"sink"`
	Forward     ForwardConfig     `mapstructure:"forward"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Cameras     []CameraSeed      `mapstructure:"cameras"`
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RecognitionConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Workers  int           `mapstructure:"workers"`
}

type IngestConfig struct {
	DefaultFPS            float64       `mapstructure:"default_fps"`
	ReconnectInitialDelay time.Duration `mapstructure:"reconnect_initial_delay"`
	ReconnectMaxDelay     time.Duration `mapstructure:"reconnect_max_delay"`
	MaxReconnectAttempts  int           `mapstructure:"max_reconnect_attempts"`
	CaptureTimeout        time.Duration `mapstructure:"capture_timeout"`
	FFmpegPath            string        `mapstructure:"ffmpeg_path"`
}

type TrackerConfig struct {
	// PresenceTimeout overrides the timeout derived from MissedFrames.
	PresenceTimeout time.Duration `mapstructure:"presence_timeout"`
	MissedFrames    int           `mapstructure:"missed_frames"`
}

type BehaviorConfig struct {
	UnknownAlertAfter      time.Duration `mapstructure:"unknown_alert_after"`
	GeofenceViolationAfter time.Duration `mapstructure:"geofence_violation_after"`
	GeofenceRearm          time.Duration `mapstructure:"geofence_rearm"`
	LoiteringAfter         time.Duration `mapstructure:"loitering_after"`
}

type GateConfig struct {
	DupSuppressWindow time.Duration `mapstructure:"dup_suppress_window"`
	Retention         time.Duration `mapstructure:"retention"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type SinkConfig struct {
	QueueSize             int           `mapstructure:"queue_size"`
	PersistAttempts       int           `mapstructure:"persist_attempts"`
	PersistInitialDelay   time.Duration `mapstructure:"persist_initial_delay"`
	PersistMaxDelay       time.Duration `mapstructure:"persist_max_delay"`
	PersistTimeout        time.Duration `mapstructure:"persist_timeout"`
	PersistEnqueueTimeout time.Duration `mapstructure:"persist_enqueue_timeout"`
	ForwardQueueSize      int           `mapstructure:"forward_queue_size"`
	ForwardEnqueueTimeout time.Duration `mapstructure:"forward_enqueue_timeout"`
}

type ForwardConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type WebhookConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type MQTTConfig struct {
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"client_id"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         byte          `mapstructure:"qos"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	Stream     string        `mapstructure:"stream"`
	MaxLen     int64         `mapstructure:"max_len"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CameraSeed is a camera declared in the configuration file.
type CameraSeed struct {
	CameraID  string      `mapstructure:"camera_id"`
	Source    string      `mapstructure:"source"`
	Location  string      `mapstructure:"location"`
	ZoneType  string      `mapstructure:"zone_type"`
	TargetFPS float64     `mapstructure:"target_fps"`
	Boundary  [][]float64 `mapstructure:"boundary"`
	Autostart bool        `mapstructure:"autostart"`
}

// CameraConfig converts the seed into a registry configuration.
func (s CameraSeed) CameraConfig() vms.CameraConfig {
	cfg := vms.CameraConfig{
		CameraID:         s.CameraID,
		SourceDescriptor: s.Source,
		Location:         s.Location,
		ZoneType:         vms.ZoneType(strings.ToLower(s.ZoneType)),
		TargetFPS:        s.TargetFPS,
	}
	for _, pt := range s.Boundary {
		if len(pt) == 2 {
			cfg.Boundary = append(cfg.Boundary, vms.Point{X: pt[0], Y: pt[1]})
		}
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.mode", "release")
	v.SetDefault("http.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "vms.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("recognition.endpoint", "http://localhost:8001")
	v.SetDefault("recognition.timeout", 5*time.Second)
	v.SetDefault("recognition.workers", 4)

	v.SetDefault("ingest.default_fps", 5.0)
	v.SetDefault("ingest.reconnect_initial_delay", time.Second)
	v.SetDefault("ingest.reconnect_max_delay", 30*time.Second)
	v.SetDefault("ingest.max_reconnect_attempts", 5)
	v.SetDefault("ingest.capture_timeout", 10*time.Second)
	v.SetDefault("ingest.ffmpeg_path", "ffmpeg")

	v.SetDefault("tracker.presence_timeout", time.Duration(0))
	v.SetDefault("tracker.missed_frames", 3)

	v.SetDefault("behavior.unknown_alert_after", 45*time.Second)
	v.SetDefault("behavior.geofence_violation_after", 60*time.Second)
	v.SetDefault("behavior.geofence_rearm", 30*time.Second)
	v.SetDefault("behavior.loitering_after", time.Duration(0))

	v.SetDefault("gate.dup_suppress_window", 30*time.Second)
	v.SetDefault("gate.retention", 10*time.Minute)
	v.SetDefault("gate.cleanup_interval", 5*time.Minute)

	v.SetDefault("sink.queue_size", 1024)
	v.SetDefault("sink.persist_attempts", 3)
	v.SetDefault("sink.persist_initial_delay", 200*time.Millisecond)
	v.SetDefault("sink.persist_max_delay", 2*time.Second)
	v.SetDefault("sink.persist_timeout", 5*time.Second)
	v.SetDefault("sink.persist_enqueue_timeout", 100*time.Millisecond)
	v.SetDefault("sink.forward_queue_size", 256)
	v.SetDefault("sink.forward_enqueue_timeout", 50*time.Millisecond)

	v.SetDefault("forward.webhook.url", "")
	v.SetDefault("forward.webhook.timeout", 2*time.Second)
	v.SetDefault("forward.webhook.max_retries", 2)
	v.SetDefault("forward.webhook.retry_delay", 500*time.Millisecond)

	v.SetDefault("forward.mqtt.broker", "")
	v.SetDefault("forward.mqtt.client_id", "vms-service")
	v.SetDefault("forward.mqtt.username", "")
	v.SetDefault("forward.mqtt.password", "")
	v.SetDefault("forward.mqtt.topic_prefix", "vms/alerts")
	v.SetDefault("forward.mqtt.qos", 1)
	v.SetDefault("forward.mqtt.timeout", 2*time.Second)
	v.SetDefault("forward.mqtt.max_retries", 2)

	v.SetDefault("forward.redis.addr", "")
	v.SetDefault("forward.redis.password", "")
	v.SetDefault("forward.redis.db", 0)
	v.SetDefault("forward.redis.stream", "vms:alerts")
	v.SetDefault("forward.redis.max_len", 10000)
	v.SetDefault("forward.redis.timeout", 2*time.Second)
	v.SetDefault("forward.redis.max_retries", 2)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads configuration from defaults, an optional file and VMS_* env vars.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("VMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("forward.webhook.url", "VMS_FORWARD_WEBHOOK_URL", "BACKEND_WEBHOOK_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind webhook env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Ingest.DefaultFPS <= 0 {
		errs = append(errs, errors.New("ingest.default_fps must be positive"))
	}
	if c.Ingest.MaxReconnectAttempts < 1 {
		errs = append(errs, errors.New("ingest.max_reconnect_attempts must be at least 1"))
	}
	if c.Recognition.Workers < 1 {
		errs = append(errs, errors.New("recognition.workers must be at least 1"))
	}
	if c.Tracker.MissedFrames < 1 && c.Tracker.PresenceTimeout <= 0 {
		errs = append(errs, errors.New("tracker.missed_frames or tracker.presence_timeout must be set"))
	}
	if c.Behavior.GeofenceViolationAfter <= 0 {
		errs = append(errs, errors.New("behavior.geofence_violation_after must be positive"))
	}
	if c.Behavior.UnknownAlertAfter < 0 {
		errs = append(errs, errors.New("behavior.unknown_alert_after must not be negative"))
	}
	if c.Gate.DupSuppressWindow < 0 {
		errs = append(errs, errors.New("gate.dup_suppress_window must not be negative"))
	}
	if c.Sink.QueueSize < 1 || c.Sink.ForwardQueueSize < 1 {
		errs = append(errs, errors.New("sink queue sizes must be positive"))
	}
	if c.Forward.MQTT.QoS > 2 {
		errs = append(errs, errors.New("forward.mqtt.qos must be 0, 1 or 2"))
	}
	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if cam.CameraID == "" {
			errs = append(errs, fmt.Errorf("cameras[%d].camera_id is required", i))
			continue
		}
		if seen[cam.CameraID] {
			errs = append(errs, fmt.Errorf("cameras[%d]: duplicate camera_id %q", i, cam.CameraID))
		}
		seen[cam.CameraID] = true
		for j, pt := range cam.Boundary {
			if len(pt) != 2 {
				errs = append(errs, fmt.Errorf("cameras[%d].boundary[%d] must be an [x, y] pair", i, j))
			}
		}
	}
	return errors.Join(errs...)
}
