package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"vms-service/internal/analyzer"
	"vms-service/internal/capture"
	"vms-service/internal/config"
	"vms-service/internal/db"
	"vms-service/internal/domain/vms"
	"vms-service/internal/gate"
	"vms-service/internal/geofence"
	httphandler "vms-service/internal/http"
	"vms-service/internal/ingest"
	"vms-service/internal/logger"
	"vms-service/internal/metrics"
	"vms-service/internal/pipeline"
	"vms-service/internal/recognition"
	"vms-service/internal/repository"
	"vms-service/internal/retry"
	"vms-service/internal/service"
	"vms-service/internal/sink"
	"vms-service/internal/tracker"
)

const shutdownTimeout = 15 * time.Second

func serveCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run camera ingestion and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func migrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Level, cfg.Log.Format)

			gdb, err := db.Open(cfg.Database, log)
			if err != nil {
				return err
			}
			if err := db.Migrate(gdb, cfg.Database.Driver); err != nil {
				return err
			}
			log.Info().Str("driver", cfg.Database.Driver).Msg("migrations applied")
			return nil
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	gdb, err := db.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb, cfg.Database.Driver); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	repo := repository.NewEventRepository(gdb)

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	events := sink.New(repo, sink.BuildForwarders(cfg.Forward, log), sink.Config{
		QueueSize: cfg.Sink.QueueSize,
		PersistPolicy: retry.Policy{
			MaxAttempts:  cfg.Sink.PersistAttempts,
			InitialDelay: cfg.Sink.PersistInitialDelay,
			MaxDelay:     cfg.Sink.PersistMaxDelay,
		},
		PersistTimeout:        cfg.Sink.PersistTimeout,
		PersistEnqueueTimeout: cfg.Sink.PersistEnqueueTimeout,
		ForwardQueueSize:      cfg.Sink.ForwardQueueSize,
		ForwardEnqueueTimeout: cfg.Sink.ForwardEnqueueTimeout,
	}, m, log)

	behavior := analyzer.New(analyzer.Config{
		UnknownAlertAfter: cfg.Behavior.UnknownAlertAfter,
		LoiteringAfter:    cfg.Behavior.LoiteringAfter,
	}, log)
	enabled := behavior.Rules()
	rules := make([]string, 0, len(enabled))
	for _, r := range enabled {
		rules = append(rules, string(r))
	}
	log.Info().Strs("rules", rules).Msg("behavior rules enabled")

	proc := pipeline.New(
		recognition.NewPool(recognition.NewClient(cfg.Recognition), cfg.Recognition.Workers),
		tracker.New(),
		geofence.NewEngine(cfg.Behavior.GeofenceViolationAfter, cfg.Behavior.GeofenceRearm),
		behavior,
		gate.New(cfg.Gate.DupSuppressWindow, cfg.Gate.Retention, cfg.Gate.CleanupInterval),
		events,
		m,
		pipeline.Config{
			MissedFrames:    cfg.Tracker.MissedFrames,
			PresenceTimeout: cfg.Tracker.PresenceTimeout,
		},
		log,
	)

	cameras := ingest.New(capture.NewOpener(cfg.Ingest), proc, repo, ingest.Config{
		DefaultFPS: cfg.Ingest.DefaultFPS,
		Reconnect: retry.Policy{
			MaxAttempts:  cfg.Ingest.MaxReconnectAttempts,
			InitialDelay: cfg.Ingest.ReconnectInitialDelay,
			MaxDelay:     cfg.Ingest.ReconnectMaxDelay,
		},
	}, m, log)

	restored, err := cameras.Restore(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("cameras", restored).Msg("restored cameras")
	seedCameras(ctx, cameras, cfg.Cameras, log)

	gin.SetMode(cfg.HTTP.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware(cfg.HTTP.CORSOrigins))

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = m.Handler()
	}
	httphandler.NewHandler(service.NewMonitorService(cameras, repo, log), log).Register(router, cfg.Metrics.Path, metricsHandler)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-errCh:
		log.Error().Err(err).Msg("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.Warn().Err(serr).Msg("http shutdown incomplete")
	}

	cameras.StopAll()
	events.Close()

	if sqlDB, dberr := gdb.DB(); dberr == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("stopped")
	return err
}

// seedCameras registers cameras declared in the configuration file. Cameras
// already restored from the database keep their stored settings.
func seedCameras(ctx context.Context, cameras *ingest.Ingestor, seeds []config.CameraSeed, log zerolog.Logger) {
	for _, seed := range seeds {
		_, err := cameras.Register(ctx, seed.CameraConfig())
		if err != nil && !errors.Is(err, vms.ErrConflict) {
			log.Error().Err(err).Str("camera_id", seed.CameraID).Msg("failed to register configured camera")
			continue
		}
		if !seed.Autostart {
			continue
		}
		if err := cameras.Start(seed.CameraID); err != nil {
			log.Error().Err(err).Str("camera_id", seed.CameraID).Msg("failed to start configured camera")
		}
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.DefaultConfig()
	cc.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cc.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
		return cors.New(cc)
	}
	for _, o := range origins {
		if o == "*" {
			cc.AllowAllOrigins = true
			return cors.New(cc)
		}
	}
	cc.AllowOrigins = origins
	return cors.New(cc)
}
