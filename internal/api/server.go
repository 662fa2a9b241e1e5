// Package api exposes the HTTP surface of the telemetry server: the live
// websocket stream, the trend query endpoint, and the operational endpoints
// for health, sessions, store occupancy, and Prometheus metrics.
package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/1broseidon/vitalstream/internal/config"
	"github.com/1broseidon/vitalstream/internal/logging"
	"github.com/1broseidon/vitalstream/internal/metrics"
	"github.com/1broseidon/vitalstream/internal/simulator"
	"github.com/1broseidon/vitalstream/internal/store"
	"github.com/1broseidon/vitalstream/internal/stream"
	"github.com/1broseidon/vitalstream/internal/trend"
)

// Server represents the API server
type Server struct {
	app           *fiber.App
	config        *config.Config
	logger        *logging.Logger
	metrics       *metrics.Metrics
	store         store.HistoryStore
	sessions      *stream.Manager
	trends        *trend.Service
	prometheusReg prometheus.Registerer
}

// NewServer creates a new API server on top of the given history store
func NewServer(cfg *config.Config, logger *logging.Logger, prometheusReg prometheus.Registerer, st store.HistoryStore) *Server {
	// Create metrics instance
	metricsInstance := metrics.NewMetrics(prometheusReg)

	// Create the session manager and the trend query service
	generator := simulator.New(nil)
	sessionManager := stream.NewManager(generator, st, logger, metricsInstance, cfg.Telemetry.TickInterval)
	trendService := trend.NewService(st, logger)

	// Create Fiber app with configuration
	app := fiber.New(fiber.Config{
		AppName:               "VitalStream v1.0",
		DisableStartupMessage: false,
		ServerHeader:          "VitalStream",
		ErrorHandler:          errorHandler(logger),
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		ReadBufferSize:        8192, // 8KB buffer for request headers to handle proxy headers
	})

	s := &Server{
		app:           app,
		config:        cfg,
		logger:        logger,
		metrics:       metricsInstance,
		store:         st,
		sessions:      sessionManager,
		trends:        trendService,
		prometheusReg: prometheusReg,
	}

	// Setup middleware
	s.setupMiddleware()

	// Setup routes
	s.setupRoutes()

	return s
}

// setupMiddleware configures Fiber middleware
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request logger middleware
	s.app.Use(logger.New(logger.Config{
		Format: "${time} | ${status} | ${latency} | ${method} ${path}\n",
		Output: nil, // Will use default (os.Stdout)
	}))

	// CORS middleware
	corsOrigins := "*"
	if len(s.config.Server.CORSOrigins) > 0 {
		corsOrigins = strings.Join(s.config.Server.CORSOrigins, ",")
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins,
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Global timeout middleware, skipping the websocket route which holds
	// its connection open for the lifetime of the session.
	s.app.Use(func(c *fiber.Ctx) error {
		if c.Path() == "/ws" {
			return c.Next()
		}
		return timeout.NewWithContext(func(c *fiber.Ctx) error {
			return c.Next()
		}, 30*time.Second)(c)
	})
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health and metrics endpoints
	s.app.Get("/health", s.healthHandler)
	s.app.Get("/ready", s.readyHandler)
	s.app.Get("/metrics", s.metricsHandler)

	// Live telemetry stream
	s.setupWebsocket()

	// API v1 routes
	api := s.app.Group("/api/v1")

	api.Get("/trend-data", s.trendDataHandler)
	api.Get("/sessions", s.getSessionsHandler)
	api.Get("/store/stats", s.getStoreStatsHandler)
}

// Start starts the server
func (s *Server) Start() error {
	address := s.config.Server.Host + ":" + s.config.Server.Port

	s.logger.WithComponent(logging.ComponentAPI).
		WithEvent(logging.EventServerStart).
		WithFields(map[string]interface{}{
			"address": address,
		}).
		Info("Starting HTTP server")

	return s.app.Listen(address)
}

// Stop gracefully stops the server after closing all live sessions. The
// shutdown is bounded because websocket read loops hold their connections
// open until the peer goes away.
func (s *Server) Stop() error {
	s.logger.WithComponent(logging.ComponentAPI).
		WithEvent(logging.EventServerStop).
		Info("Stopping HTTP server")
	s.sessions.CloseAll()
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

// Sessions returns the live session manager
func (s *Server) Sessions() *stream.Manager {
	return s.sessions
}

// errorHandler handles Fiber errors
func errorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		// Check if it's a Fiber error
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		// Log the error
		logger.WithComponent(logging.ComponentAPI).
			WithFields(map[string]interface{}{
				"method": c.Method(),
				"path":   c.Path(),
				"status": code,
			}).
			WithError(err).
			Error("HTTP request error")

		// Return error response
		return c.Status(code).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}
}
