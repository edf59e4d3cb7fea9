package router

import (
	"github.com/labstack/echo/v4"

	"campusmarket/internal/adapter/api/middleware"
	"campusmarket/internal/infrastructure/ratelimit"
)

// Setup mounts every route. handler.Setup must have run first.
func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimiter *ratelimit.RateLimiter) {
	SetupChatRouter(e, authMiddleware, rateLimiter)
	SetupWebSocketRouter(e)
	SetupHealthRouter(e)
}
