package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-plantid/internal/config"
	"github.com/teslashibe/go-plantid/internal/httpc"
	"github.com/teslashibe/go-plantid/pkg/camera"
	"github.com/teslashibe/go-plantid/pkg/metrics"
	"github.com/teslashibe/go-plantid/pkg/plant"
	"github.com/teslashibe/go-plantid/pkg/studio"
	"github.com/teslashibe/go-plantid/pkg/web"
)

const shutdownTimeout = 5 * time.Second

// application wires the components for one process.
type application struct {
	cfg    *config.Config
	logger *slog.Logger

	metrics *metrics.Metrics
	host    camera.Host
	manager *camera.Manager
	monitor *camera.Monitor
	model   *plant.GeminiModel
	studio  *studio.Studio
	server  *web.Server
}

// newApplication builds the component graph. host may be nil, in which
// case the local video4linux host is used.
func newApplication(cfg *config.Config, host camera.Host, logger *slog.Logger) (*application, error) {
	if host == nil {
		host = camera.NewV4LHost(deviceFacings(cfg.Camera), logger)
	}

	captureCfg := camera.GetPreset(cfg.Camera.Preset)
	if captureCfg == nil {
		return nil, fmt.Errorf("unknown camera preset %q (available: %v)", cfg.Camera.Preset, camera.PresetNames())
	}

	m := metrics.New()
	manager := camera.NewManager(host,
		camera.WithHandheld(cfg.Handheld),
		camera.WithConfig(*captureCfg),
		camera.WithLogger(logger),
	)

	model := plant.NewGeminiModel(plant.GeminiConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Endpoint:   cfg.Endpoint,
		HTTPClient: httpc.NewClient(cfg.IdentifyTimeout + 5*time.Second),
		Logger:     logger,
	})
	if cfg.APIKey == "" {
		logger.Warn("GOOGLE_API_KEY not set; identification will fail until it is configured")
	}

	identifier := plant.NewIdentifier(model,
		plant.WithTimeout(cfg.IdentifyTimeout),
		plant.WithLogger(logger),
	)
	st := studio.New(manager, identifier,
		studio.WithMetrics(m),
		studio.WithLogger(logger),
	)

	app := &application{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		host:    host,
		manager: manager,
		model:   model,
		studio:  st,
	}
	if cfg.Camera.Hotplug {
		app.monitor = camera.NewMonitor(manager, logger)
	}
	return app, nil
}

// serve runs the HTTP server until ctx is done.
func (a *application) serve(ctx context.Context, staticDir string) error {
	a.server = web.NewServer(a.studio, web.Config{
		Addr:       a.cfg.Addr(),
		PreviewFPS: a.cfg.Camera.PreviewFPS,
		StaticDir:  staticDir,
		Metrics:    a.metrics,
		Logger:     a.logger,
	})

	if a.monitor != nil {
		if err := a.monitor.Start(ctx); err != nil {
			return err
		}
	}
	a.studio.QueryPermission(ctx)

	errc := make(chan error, 1)
	go func() { errc <- a.server.Start(ctx) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		a.logger.Info("shutting down")
		return nil
	}
}

// shutdown releases the camera and stops the server.
func (a *application) shutdown() {
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.server != nil {
		if err := a.server.Shutdown(shutdownTimeout); err != nil {
			a.logger.Warn("server shutdown", "error", err)
		}
	}
	if err := a.studio.Close(); err != nil {
		a.logger.Warn("camera release", "error", err)
	}
	a.model.Close()
}

func deviceFacings(cfg config.CameraConfig) map[string]camera.Facing {
	facings := make(map[string]camera.Facing)
	if cfg.FrontDev != "" {
		facings[cfg.FrontDev] = camera.FacingFront
	}
	if cfg.RearDev != "" {
		facings[cfg.RearDev] = camera.FacingRear
	}
	return facings
}
