package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// poolInfo is the pool occupancy snapshot reported by the health endpoint.
type poolInfo struct {
	InUse int32 `json:"in_use"`
	Idle  int32 `json:"idle"`
	Total int32 `json:"total"`
	Max   int32 `json:"max"`
}

func snapshot(pool *pgxpool.Pool) poolInfo {
	st := pool.Stat()
	return poolInfo{
		InUse: st.AcquiredConns(),
		Idle:  st.IdleConns(),
		Total: st.TotalConns(),
		Max:   st.MaxConns(),
	}
}

// HealthHandler answers the database health probe: a bounded ping plus pool
// occupancy. The payload shape mirrors the process health endpoint, a status
// string on top with detail underneath.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		body := map[string]interface{}{
			"status": "ok",
			"pool":   snapshot(pool),
		}
		if err := pool.Ping(ctx); err != nil {
			body["status"] = "unavailable"
			body["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}
