// Package web serves the plant identification API over HTTP and
// WebSocket.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/teslashibe/go-plantid/pkg/hub"
	"github.com/teslashibe/go-plantid/pkg/metrics"
	"github.com/teslashibe/go-plantid/pkg/photo"
	"github.com/teslashibe/go-plantid/pkg/studio"
)

// Config configures the server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// PreviewFPS is the preview broadcast rate. Zero disables preview.
	PreviewFPS int

	// StaticDir, if set, is served at "/".
	StaticDir string

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server is the API server.
type Server struct {
	app    *fiber.App
	cfg    Config
	studio *studio.Studio

	metrics *metrics.Metrics
	logger  *slog.Logger

	// Hubs for websocket broadcast
	stateHub   *hub.Hub
	previewHub *hub.Hub

	mu          sync.Mutex
	stopPreview context.CancelFunc
	unsubscribe func()
}

// NewServer creates the server and registers all routes.
func NewServer(st *studio.Studio, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "web")

	s := &Server{
		cfg:        cfg,
		studio:     st,
		metrics:    cfg.Metrics,
		logger:     logger,
		stateHub:   hub.New("state", logger),
		previewHub: hub.New("preview", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "plantid",
		DisableStartupMessage: true,
		BodyLimit:             2 * photo.MaxSize,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(s.requestLogger)

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Post("/reset", s.handleReset)
	api.Post("/image", s.handleUpload)
	api.Get("/image", s.handleGetImage)
	api.Post("/identify", s.handleIdentify)

	cam := api.Group("/camera")
	cam.Get("/permission", s.handleQueryPermission)
	cam.Post("/permission", s.handleRequestPermission)
	cam.Post("/start", s.handleStart)
	cam.Post("/switch", s.handleSwitch)
	cam.Post("/capture", s.handleCapture)
	cam.Post("/stop", s.handleStop)
	cam.Get("/devices", s.handleDevices)
	cam.Get("/config", s.handleGetConfig)
	cam.Put("/config", s.handleSetConfig)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))
	app.Get("/ws/preview", websocket.New(s.handlePreviewWS))

	s.app = app
	return s
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs, the state fan-out and the preview pump. Start
// calls it; embedders serving App themselves call it directly.
func (s *Server) Run(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopPreview != nil {
		return
	}

	go s.stateHub.Run()
	go s.previewHub.Run()

	s.unsubscribe = s.studio.Subscribe(func(st studio.State) {
		if err := s.stateHub.BroadcastJSON(st); err != nil {
			s.logger.Warn("state broadcast failed", "error", err)
		}
	})

	ctx, cancel := context.WithCancel(ctx)
	s.stopPreview = cancel
	go s.pumpPreview(ctx)
}

// Start serves on cfg.Addr and blocks until the listener stops.
func (s *Server) Start(ctx context.Context) error {
	s.Run(ctx)
	s.logger.Info("listening", "addr", s.cfg.Addr, "preview_fps", s.cfg.PreviewFPS)
	return s.app.Listen(s.cfg.Addr)
}

// Shutdown stops background work and the listener.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.stopPreview != nil {
		s.stopPreview()
		s.unsubscribe()
		s.stateHub.Stop()
		s.previewHub.Stop()
	}
	s.mu.Unlock()
	return s.app.ShutdownWithTimeout(timeout)
}

// pumpPreview broadcasts frames while a stream is live and a preview
// client is connected.
func (s *Server) pumpPreview(ctx context.Context) {
	if s.cfg.PreviewFPS <= 0 {
		return
	}
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.PreviewFPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.previewOnce(ctx)
		}
	}
}

// previewOnce broadcasts one frame and reports whether it did.
func (s *Server) previewOnce(ctx context.Context) bool {
	if s.previewHub.ClientCount() == 0 || s.studio.Camera().Active() == nil {
		return false
	}
	frame, err := s.studio.Preview(ctx)
	if err != nil {
		s.logger.Debug("preview frame skipped", "error", err)
		return false
	}
	s.previewHub.BroadcastBinary(frame)
	return true
}

// requestLogger tags each request with an ID, logs it and records
// metrics.
func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	id := c.Get(fiber.HeaderXRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(fiber.HeaderXRequestID, id)

	err := c.Next()
	if err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			c.Status(fiber.StatusInternalServerError)
		}
		err = nil
	}

	status := c.Response().StatusCode()
	route := c.Route().Path
	elapsed := time.Since(start)
	s.metrics.ObserveRequest(c.Method(), route, status, elapsed)
	s.logger.Debug("request",
		"id", id,
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration", elapsed.Round(time.Microsecond),
	)
	return err
}

func (s *Server) handleStateWS(c *websocket.Conn) {
	initial, err := jsonMessage(s.studio.Snapshot())
	if err != nil {
		s.logger.Warn("encode initial state", "error", err)
		return
	}
	s.stateHub.Serve(c, initial)
}

func (s *Server) handlePreviewWS(c *websocket.Conn) {
	s.previewHub.Serve(c)
}
