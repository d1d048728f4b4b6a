package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the pool snapshot reported by /health/db.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireDuration string `json:"acquire_duration"`
}

func poolStats(pool *pgxpool.Pool) PoolStats {
	st := pool.Stat()
	return PoolStats{
		TotalConns:      st.TotalConns(),
		IdleConns:       st.IdleConns(),
		AcquiredConns:   st.AcquiredConns(),
		MaxConns:        st.MaxConns(),
		AcquireDuration: st.AcquireDuration().String(),
	}
}

// Pinger is the part of a pool the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PendingCounter reports how many migrations are not applied yet.
type PendingCounter interface {
	Pending(ctx context.Context) (int, error)
}

type health struct {
	pinger  Pinger
	pending PendingCounter
	stats   func() PoolStats
}

// HealthHandler serves /health/db. The database is "degraded" while
// migrations are pending, since imports would fail against an old schema.
func HealthHandler(pool *pgxpool.Pool, migrator PendingCounter) echo.HandlerFunc {
	h := &health{pinger: pool, pending: migrator, stats: func() PoolStats { return poolStats(pool) }}
	return h.serve
}

func (h *health) serve(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	body := map[string]interface{}{"pool": h.stats()}
	if err := h.pinger.Ping(ctx); err != nil {
		body["status"] = "unhealthy"
		body["error"] = err.Error()
		return c.JSON(http.StatusServiceUnavailable, body)
	}

	n, err := h.pending.Pending(ctx)
	switch {
	case err != nil:
		body["status"] = "unhealthy"
		body["error"] = err.Error()
		return c.JSON(http.StatusServiceUnavailable, body)
	case n > 0:
		body["status"] = "degraded"
		body["pending_migrations"] = n
		return c.JSON(http.StatusServiceUnavailable, body)
	}

	body["status"] = "healthy"
	return c.JSON(http.StatusOK, body)
}
