package handlers

import (
	"context"
	"net/http"
	"time"

	"orderbridge/internal/ledger"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *pgxpool.Pool
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function, e.g. a redis PING, to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandlers handles health check and monitoring endpoints
type HealthHandlers struct {
	db        Pinger
	redis     Pinger
	ledger    ledger.Connector
	version   string
	startedAt time.Time
}

// NewHealthHandlers creates a new health handlers instance. redis may be nil.
func NewHealthHandlers(db Pinger, redis Pinger, connector ledger.Connector, version string) *HealthHandlers {
	return &HealthHandlers{
		db:        db,
		redis:     redis,
		ledger:    connector,
		version:   version,
		startedAt: time.Now(),
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Uptime    string            `json:"uptime"`
	Version   string            `json:"version"`
}

// HealthCheck godoc
// @Summary Dependency health, including the external ledger
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus
// @Router /health [get]
func (h *HealthHandlers) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string),
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
	}

	checks := map[string]func(context.Context) error{
		"database": h.checkDatabase,
		"redis":    h.checkRedis,
		"ledger":   h.checkLedger,
	}
	for name, check := range checks {
		if err := check(ctx); err != nil {
			health.Services[name] = "unhealthy"
			health.Status = "degraded"
		} else {
			health.Services[name] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if health.Status == "degraded" {
		statusCode = http.StatusPartialContent
	}
	return c.JSON(statusCode, health)
}

// ReadinessCheck godoc
// @Summary Ready when the local store and redis answer
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health/ready [get]
func (h *HealthHandlers) ReadinessCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if h.checkDatabase(ctx) != nil || h.checkRedis(ctx) != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"message": "Critical services unavailable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ready",
		"message": "All systems operational",
	})
}

func (h *HealthHandlers) checkDatabase(ctx context.Context) error {
	return h.db.Ping(ctx)
}

func (h *HealthHandlers) checkRedis(ctx context.Context) error {
	if h.redis == nil {
		return nil
	}
	return h.redis.Ping(ctx)
}

func (h *HealthHandlers) checkLedger(ctx context.Context) error {
	return h.ledger.WithSession(ctx, func(ctx context.Context, db *sqlx.DB) error {
		return db.PingContext(ctx)
	})
}
