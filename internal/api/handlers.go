package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1broseidon/vitalstream/internal/trend"
	"github.com/1broseidon/vitalstream/pkg/vitals"
)

// healthHandler handles health check requests
func (s *Server) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "vitalstream",
		"version": "1.0.0",
	})
}

// readyHandler handles readiness probe requests
func (s *Server) readyHandler(c *fiber.Ctx) error {
	// The store is the only dependency that can go away underneath us.
	if _, err := s.store.Query("", time.Now(), time.Now()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not ready",
			"checks": fiber.Map{
				"store": err.Error(),
			},
		})
	}

	return c.JSON(fiber.Map{
		"status": "ready",
		"checks": fiber.Map{
			"config": "ok",
			"store":  "ok",
		},
	})
}

// metricsHandler handles Prometheus metrics endpoint
func (s *Server) metricsHandler(c *fiber.Ctx) error {
	// Set content type for Prometheus metrics
	c.Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Create a buffer to capture the metrics
	var buf bytes.Buffer

	// Create a fake HTTP request and response writer
	req, _ := http.NewRequest("GET", "/metrics", nil)
	rw := &responseWriter{Buffer: &buf, header: make(http.Header)}

	// Get the Prometheus handler for our custom registry and call it
	gatherer, ok := s.prometheusReg.(prometheus.Gatherer)
	if !ok {
		return c.Status(500).SendString("Error: registry does not implement Gatherer interface")
	}
	handler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	handler.ServeHTTP(rw, req)

	// Return the captured metrics
	return c.SendString(buf.String())
}

// responseWriter is a simple implementation of http.ResponseWriter for capturing metrics
type responseWriter struct {
	*bytes.Buffer
	header http.Header
}

func (rw *responseWriter) Header() http.Header {
	return rw.header
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	// No-op for our purposes
}

// setupWebsocket wires the live telemetry stream route. The patient id is
// captured before the upgrade because the websocket handler no longer sees
// the original query string context.
func (s *Server) setupWebsocket() {
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("patientId", c.Query("patientId"))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		patientID, _ := conn.Locals("patientId").(string)

		sess := s.sessions.Open(&wsSink{conn: conn}, patientID)
		defer sess.Close()

		// Block until the client goes away. Readings flow from the session
		// goroutine; the read loop only notices disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

// wsSink delivers readings to a websocket subscriber
type wsSink struct {
	conn *websocket.Conn
}

func (w *wsSink) WriteReading(r vitals.Reading) error {
	return w.conn.WriteJSON(r)
}

// trendDataHandler serves historical trend series for one patient metric
func (s *Server) trendDataHandler(c *fiber.Ctx) error {
	patientID := c.Query("patientId")
	metricName := c.Query("metric")
	rangeName := c.Query("range")

	start := time.Now()
	trendRange := trend.ParseRange(rangeName)

	// Only known metric names become label values; anything the client made
	// up is collapsed to "invalid" to keep label cardinality bounded.
	metricLabel := "invalid"
	if metric, err := vitals.ParseMetric(metricName); err == nil {
		metricLabel = string(metric)
	}

	status := "ok"
	defer func() {
		s.metrics.RecordTrendQuery(metricLabel, string(trendRange), status, time.Since(start))
	}()

	points, err := s.trends.Trend(c.UserContext(), patientID, metricName, rangeName)
	if err != nil {
		status = "error"
		return trendError(c, err)
	}

	bucketSize := trendRange.BucketSize()
	if override := c.Query("bucket"); override != "" {
		parsed, err := strconv.Atoi(override)
		if err != nil || parsed <= 0 {
			status = "error"
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   true,
				"message": "bucket must be a positive integer",
			})
		}
		bucketSize = parsed
	}

	series, err := trend.Downsample(points, bucketSize)
	if err != nil {
		status = "error"
		return trendError(c, err)
	}

	// The dashboard consumes the series as a bare array, not an envelope.
	return c.JSON(series)
}

// trendError maps the trend error taxonomy onto HTTP status codes
func trendError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, trend.ErrInvalidRequest):
		code = fiber.StatusBadRequest
	case errors.Is(err, trend.ErrUnavailable):
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// getSessionsHandler lists the currently live stream sessions
func (s *Server) getSessionsHandler(c *fiber.Ctx) error {
	infos := s.sessions.Snapshot()
	return c.JSON(fiber.Map{
		"count":    len(infos),
		"sessions": infos,
	})
}

// getStoreStatsHandler reports history store occupancy
func (s *Server) getStoreStatsHandler(c *fiber.Ctx) error {
	stats := s.store.Stats()
	return c.JSON(fiber.Map{
		"records":    stats.Records,
		"bytes":      stats.Bytes,
		"evictions":  stats.Evictions,
		"maxRecords": stats.MaxRecords,
		"maxBytes":   stats.MaxBytes,
	})
}
