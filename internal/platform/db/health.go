package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the JSON view of pgxpool statistics.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
	}
}

// Health is the /health/db body. Status is "healthy", "degraded" when the
// database answers but migrations are pending, or "unhealthy".
type Health struct {
	Status        string     `json:"status"`
	SchemaVersion int        `json:"schema_version"`
	Pending       int        `json:"pending_migrations"`
	Error         string     `json:"error,omitempty"`
	Pool          *PoolStats `json:"pool,omitempty"`
}

func assess(pingErr error, statuses []MigrationStatus, statusErr error) (int, Health) {
	if pingErr != nil {
		return http.StatusServiceUnavailable, Health{Status: "unhealthy", Error: pingErr.Error()}
	}
	if statusErr != nil {
		return http.StatusServiceUnavailable, Health{Status: "unhealthy", Error: statusErr.Error()}
	}
	h := Health{Status: "healthy"}
	for _, s := range statuses {
		if !s.Applied {
			h.Pending++
			continue
		}
		if s.Version > h.SchemaVersion {
			h.SchemaVersion = s.Version
		}
	}
	if h.Pending > 0 {
		h.Status = "degraded"
	}
	return http.StatusOK, h
}

// HealthHandler pings the database, reports the applied schema version and
// pool statistics.
func HealthHandler(pool *pgxpool.Pool, m *Migrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		var (
			statuses  []MigrationStatus
			statusErr error
		)
		pingErr := pool.Ping(ctx)
		if pingErr == nil {
			statuses, statusErr = m.Status(ctx)
		}
		code, h := assess(pingErr, statuses, statusErr)
		h.Pool = GetPoolStats(pool)
		return c.JSON(code, h)
	}
}
