package router

import (
	"github.com/labstack/echo/v4"

	"campusmarket/internal/adapter/api/handler"
	"campusmarket/internal/adapter/api/middleware"
	"campusmarket/internal/infrastructure/ratelimit"
)

// SetupChatRouter mounts the conversation and message endpoints. All of them
// require authentication.
func SetupChatRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimiter *ratelimit.RateLimiter) {
	chatHandler := handler.GetChatHandler()

	api := e.Group("/api")
	api.Use(authMiddleware.Authenticate)
	if rateLimiter != nil {
		api.Use(middleware.RateLimit(rateLimiter, ratelimit.ActionHTTP))
	}

	api.POST("/conversations", chatHandler.CreateConversation)
	api.GET("/conversations", chatHandler.GetUserConversations)
	api.GET("/conversations/:id", chatHandler.GetConversation)
	api.GET("/conversations/:id/messages", chatHandler.GetConversationMessages)

	api.POST("/messages", chatHandler.SendMessage)
}
