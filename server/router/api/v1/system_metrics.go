package v1

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/calbook/plugin/ai/metrics"
)

// MetricsOverviewResponse represents the overview response of booking metrics
type MetricsOverviewResponse struct {
	TotalTurns   int64            `json:"total_turns"`
	SuccessRate  float64          `json:"success_rate"`
	P50LatencyMs int64            `json:"p50_latency_ms"`
	P95LatencyMs int64            `json:"p95_latency_ms"`
	Retries      int64            `json:"retries"`
	ErrorsByKind map[string]int64 `json:"errors_by_kind"`
	Conflicts    map[string]int64 `json:"conflicts"`
	TimeRange    string           `json:"time_range"`
}

// GetMetricsOverview returns the booking metrics overview
// GET /api/v1/system/metrics/overview
func (s *APIV1Service) GetMetricsOverview(c echo.Context) error {
	// Parse time range parameter
	timeRange := c.QueryParam("range")
	if timeRange == "" {
		timeRange = "24h"
	}
	now := s.clock()
	start, err := parseTimeRange(timeRange, now)
	if err != nil {
		slog.Warn("Invalid time range parameter in metrics request", "range", timeRange, "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid time range"})
	}
	if s.Metrics == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "metrics are disabled"})
	}

	stats, err := s.Metrics.GetStats(c.Request().Context(), metrics.TimeRange{Start: start, End: now})
	if err != nil {
		return err
	}

	resp := MetricsOverviewResponse{
		TotalTurns:   stats.TurnCount,
		P50LatencyMs: stats.LatencyP50.Milliseconds(),
		P95LatencyMs: stats.LatencyP95.Milliseconds(),
		Retries:      stats.Retries,
		ErrorsByKind: stats.ErrorsByKind,
		Conflicts:    stats.Conflicts,
		TimeRange:    timeRange,
	}
	if stats.TurnCount > 0 {
		resp.SuccessRate = float64(stats.SuccessCount) / float64(stats.TurnCount)
	}
	return c.JSON(http.StatusOK, resp)
}

// parseTimeRange parses time range string and returns the start time
func parseTimeRange(timeRange string, now time.Time) (time.Time, error) {
	switch timeRange {
	case "1h":
		return now.Add(-1 * time.Hour), nil
	case "24h":
		return now.Add(-24 * time.Hour), nil
	case "7d":
		return now.Add(-7 * 24 * time.Hour), nil
	case "30d":
		return now.Add(-30 * 24 * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("invalid time range: %s (valid: 1h, 24h, 7d, 30d)", timeRange)
	}
}
