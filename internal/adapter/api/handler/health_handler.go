package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	ws "campusmarket/internal/infrastructure/websocket"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	wsManager *ws.Manager
	store     string
	ping      Pinger
}

func NewHealthHandler(wsManager *ws.Manager, store string, ping Pinger) *HealthHandler {
	return &HealthHandler{
		wsManager: wsManager,
		store:     store,
		ping:      ping,
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "Server is running",
		"store":       h.store,
		"connections": h.wsManager.Count(),
		"time":        time.Now().Format(time.RFC3339),
	})
}

// CheckReadiness pings the conversation store.
func (h *HealthHandler) CheckReadiness(c echo.Context) error {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "Store unavailable",
				"store":  h.store,
				"error":  err.Error(),
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "Store reachable",
		"store":  h.store,
	})
}
