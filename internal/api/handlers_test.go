package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"

	"github.com/1broseidon/vitalstream/internal/config"
	"github.com/1broseidon/vitalstream/internal/logging"
	"github.com/1broseidon/vitalstream/internal/store"
	"github.com/1broseidon/vitalstream/pkg/vitals"
)

func createTestServer(t *testing.T) (*Server, store.HistoryStore) {
	t.Helper()

	prevLevel := zerolog.GlobalLevel()
	prevLogger := zerologlog.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		zerologlog.Logger = prevLogger
	})

	// Create test logger (discard noise)
	logger, err := logging.InitLogger(logging.Config{
		Level:  "error",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}

	// Create test config; a very long tick keeps sessions quiet during tests
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port: "7878",
			Host: "0.0.0.0",
		},
		Telemetry: config.TelemetryConfig{
			TickInterval: time.Hour,
		},
	}

	st := store.NewMemoryStore(360, 5<<20, logger)
	t.Cleanup(func() { st.Close() })

	reg := prometheus.NewRegistry()
	server := NewServer(cfg, logger, reg, st)
	return server, st
}

func seedReadings(t *testing.T, st store.HistoryStore, patientID string, heartRates []int) {
	t.Helper()
	base := time.Now().Add(-time.Duration(len(heartRates)) * time.Minute)
	for i, hr := range heartRates {
		r := vitals.Reading{
			PatientID:        patientID,
			Temperature:      36.5,
			HeartRate:        hr,
			BloodPressure:    &vitals.BloodPressure{Systolic: 120, Diastolic: 80},
			OxygenSaturation: 97,
			RespiratoryRate:  15,
			BloodGlucose:     5.0,
			Timestamp:        base.Add(time.Duration(i) * time.Minute),
		}
		if err := st.Append(r); err != nil {
			t.Fatalf("failed to seed reading: %v", err)
		}
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}

type trendPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
}

func getTrend(t *testing.T, server *Server, url string) (int, []trendPoint, string) {
	t.Helper()

	req := httptest.NewRequest("GET", url, nil)
	resp, err := server.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}

	var parsed []trendPoint
	if resp.StatusCode == fiber.StatusOK {
		if err := json.Unmarshal(body, &parsed); err != nil {
			t.Fatalf("failed to decode trend response: %v\n%s", err, body)
		}
	}
	return resp.StatusCode, parsed, string(body)
}

func TestHealthHandler(t *testing.T) {
	server, _ := createTestServer(t)
	defer server.app.Shutdown()

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := server.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}

	bodyStr := string(body)
	if !contains(bodyStr, "status") || !contains(bodyStr, "healthy") {
		t.Fatalf("response missing expected fields: %s", bodyStr)
	}
}

func TestReadyHandler(t *testing.T) {
	server, _ := createTestServer(t)
	defer server.app.Shutdown()

	req := httptest.NewRequest("GET", "/ready", nil)
	resp, err := server.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestReadyHandlerReportsClosedStore(t *testing.T) {
	server, st := createTestServer(t)
	defer server.app.Shutdown()

	st.Close()

	req := httptest.NewRequest("GET", "/ready", nil)
	resp, err := server.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.StatusCode)
	}
}

func TestMetricsHandler(t *testing.T) {
	server, _ := createTestServer(t)
	defer server.app.Shutdown()

	// Touch a counter so at least one family is exposed.
	server.metrics.EmitFailures.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	resp, err := server.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	if !contains(string(body), "vitalstream_emit_failures_total") {
		t.Fatalf("metrics output missing expected family: %s", body)
	}
}

func TestTrendDataHandler(t *testing.T) {
	server, st := createTestServer(t)
	defer server.app.Shutdown()

	seedReadings(t, st, "patient-1", []int{60, 62, 64, 66})

	status, parsed, body := getTrend(t, server, "/api/v1/trend-data?patientId=patient-1&metric=heartRate&range=24h")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", status, body)
	}

	// The response is the bare series, not an envelope.
	if !strings.HasPrefix(strings.TrimSpace(body), "[") {
		t.Fatalf("expected a JSON array response, got %s", body)
	}
	if len(parsed) != 4 {
		t.Fatalf("expected 4 points for bucket size 1, got %d", len(parsed))
	}
	if string(parsed[0].Value) != "60" {
		t.Fatalf("expected first point value 60, got %s", parsed[0].Value)
	}
}

func TestTrendDataHandlerBloodPressure(t *testing.T) {
	server, st := createTestServer(t)
	defer server.app.Shutdown()

	seedReadings(t, st, "patient-1", []int{60, 62})

	status, parsed, body := getTrend(t, server, "/api/v1/trend-data?patientId=patient-1&metric=bloodPressure&range=24h")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", status, body)
	}

	if len(parsed) != 2 {
		t.Fatalf("expected 2 points, got %d", len(parsed))
	}
	if !contains(string(parsed[0].Value), "systolic") {
		t.Fatalf("expected composite value object, got %s", parsed[0].Value)
	}
}

func TestTrendDataHandlerUnknownRangeFallsBack(t *testing.T) {
	server, st := createTestServer(t)
	defer server.app.Shutdown()

	// A reading outside the 24h window is only visible if the bogus range
	// were honored with a wider window.
	stale := vitals.Reading{
		PatientID: "patient-1",
		HeartRate: 40,
		Timestamp: time.Now().Add(-48 * time.Hour),
	}
	if err := st.Append(stale); err != nil {
		t.Fatalf("failed to seed stale reading: %v", err)
	}
	seedReadings(t, st, "patient-1", []int{70})

	status, parsed, body := getTrend(t, server, "/api/v1/trend-data?patientId=patient-1&metric=heartRate&range=90d")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", status, body)
	}
	if len(parsed) != 1 {
		t.Fatalf("expected silent 24h fallback to exclude the stale reading, got %d points", len(parsed))
	}
	if string(parsed[0].Value) != "70" {
		t.Fatalf("expected the fresh reading, got %s", parsed[0].Value)
	}
}

func TestTrendDataHandlerBucketOverride(t *testing.T) {
	server, st := createTestServer(t)
	defer server.app.Shutdown()

	seedReadings(t, st, "patient-1", []int{60, 62, 64, 66})

	status, parsed, body := getTrend(t, server, "/api/v1/trend-data?patientId=patient-1&metric=heartRate&range=24h&bucket=2")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", status, body)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 points for bucket size 2, got %d", len(parsed))
	}
	if string(parsed[0].Value) != "61" {
		t.Fatalf("expected first chunk mean 61, got %s", parsed[0].Value)
	}
}

func TestTrendDataHandlerValidation(t *testing.T) {
	server, st := createTestServer(t)
	defer server.app.Shutdown()

	seedReadings(t, st, "patient-1", []int{60})

	tests := []struct {
		name string
		url  string
		code int
	}{
		{"missing patient", "/api/v1/trend-data?metric=heartRate&range=24h", fiber.StatusBadRequest},
		{"missing metric", "/api/v1/trend-data?patientId=patient-1&range=24h", fiber.StatusBadRequest},
		{"unknown metric", "/api/v1/trend-data?patientId=patient-1&metric=pulseOx&range=24h", fiber.StatusBadRequest},
		{"bad bucket", "/api/v1/trend-data?patientId=patient-1&metric=heartRate&range=24h&bucket=zero", fiber.StatusBadRequest},
		{"negative bucket", "/api/v1/trend-data?patientId=patient-1&metric=heartRate&range=24h&bucket=-3", fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, body := getTrend(t, server, tt.url)
			if status != tt.code {
				t.Fatalf("expected status %d, got %d: %s", tt.code, status, body)
			}
			if !contains(body, "\"error\":true") {
				t.Fatalf("expected error envelope, got %s", body)
			}
		})
	}
}

func TestTrendDataHandlerStoreUnavailable(t *testing.T) {
	server, st := createTestServer(t)
	defer server.app.Shutdown()

	st.Close()

	status, _, body := getTrend(t, server, "/api/v1/trend-data?patientId=patient-1&metric=heartRate&range=24h")
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d: %s", status, body)
	}
}

func TestGetSessionsHandlerEmpty(t *testing.T) {
	server, _ := createTestServer(t)
	defer server.app.Shutdown()

	req := httptest.NewRequest("GET", "/api/v1/sessions", nil)
	resp, err := server.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	if !contains(string(body), "\"count\":0") {
		t.Fatalf("expected empty session list, got %s", body)
	}
}

func TestGetStoreStatsHandler(t *testing.T) {
	server, st := createTestServer(t)
	defer server.app.Shutdown()

	seedReadings(t, st, "patient-1", []int{60, 62, 64})

	req := httptest.NewRequest("GET", "/api/v1/store/stats", nil)
	resp, err := server.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}

	var stats struct {
		Records    int   `json:"records"`
		Bytes      int64 `json:"bytes"`
		MaxRecords int   `json:"maxRecords"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Records != 3 {
		t.Fatalf("expected 3 records, got %d", stats.Records)
	}
	if stats.Bytes <= 0 {
		t.Fatalf("expected positive byte count, got %d", stats.Bytes)
	}
	if stats.MaxRecords != 360 {
		t.Fatalf("expected max records 360, got %d", stats.MaxRecords)
	}
}

func TestWebsocketRouteRequiresUpgrade(t *testing.T) {
	server, _ := createTestServer(t)
	defer server.app.Shutdown()

	req := httptest.NewRequest("GET", "/ws?patientId=patient-1", nil)
	resp, err := server.app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Fatalf("expected status 426, got %d", resp.StatusCode)
	}
}

func TestTrendDataHandlerEmptySeriesIsArray(t *testing.T) {
	server, _ := createTestServer(t)
	defer server.app.Shutdown()

	status, parsed, body := getTrend(t, server, "/api/v1/trend-data?patientId=nobody&metric=heartRate&range=24h")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", status, body)
	}
	if strings.TrimSpace(body) != "[]" {
		t.Fatalf("expected empty JSON array, got %s", body)
	}
	if len(parsed) != 0 {
		t.Fatalf("expected no points, got %d", len(parsed))
	}
}

func TestTrendQueryMetricLabelBounded(t *testing.T) {
	server, st := createTestServer(t)
	defer server.app.Shutdown()

	seedReadings(t, st, "patient-1", []int{60})

	// A made-up metric name must not become a label value.
	status, _, body := getTrend(t, server, "/api/v1/trend-data?patientId=patient-1&metric=pulseOx&range=24h")
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", status, body)
	}

	if got := testutil.ToFloat64(server.metrics.TrendQueries.WithLabelValues("invalid", "24h", "error")); got != 1 {
		t.Fatalf("expected rejected metric recorded under invalid label, got %v", got)
	}

	status, _, body = getTrend(t, server, "/api/v1/trend-data?patientId=patient-1&metric=heartRate&range=24h")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", status, body)
	}
	if got := testutil.ToFloat64(server.metrics.TrendQueries.WithLabelValues("heartRate", "24h", "ok")); got != 1 {
		t.Fatalf("expected served query recorded under its metric, got %v", got)
	}
}

func TestTrendDataHandlerWindowedSeries(t *testing.T) {
	server, st := createTestServer(t)
	defer server.app.Shutdown()

	// One stale reading outside the 24h window plus fresh ones inside it.
	stale := vitals.Reading{
		PatientID: "patient-1",
		HeartRate: 40,
		Timestamp: time.Now().Add(-48 * time.Hour),
	}
	if err := st.Append(stale); err != nil {
		t.Fatalf("failed to seed stale reading: %v", err)
	}
	seedReadings(t, st, "patient-1", []int{80, 82})

	status, parsed, body := getTrend(t, server, "/api/v1/trend-data?patientId=patient-1&metric=heartRate&range=24h")
	if status != fiber.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", status, body)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected stale reading excluded, got %d points", len(parsed))
	}
	for i, p := range parsed {
		want := fmt.Sprintf("%d", 80+2*i)
		if string(p.Value) != want {
			t.Fatalf("point %d: expected %s, got %s", i, want, p.Value)
		}
	}
}
