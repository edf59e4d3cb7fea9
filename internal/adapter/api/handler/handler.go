package handler

import (
	"campusmarket/internal/adapter/api/middleware"
	ws "campusmarket/internal/infrastructure/websocket"
	"campusmarket/internal/usecase"
)

var (
	chatHandler      *ChatHandler
	webSocketHandler *WebSocketHandler
	healthHandler    *HealthHandler
)

// Options carries the non-use-case dependencies of the handlers.
type Options struct {
	WSManager      *ws.Manager
	AuthMiddleware *middleware.AuthMiddleware
	WSSendBuffer   int
	StoreDriver    string
	StorePing      Pinger
}

func Setup(chatUseCase *usecase.ChatUseCase, opts Options) {
	chatHandler = NewChatHandler(chatUseCase)
	webSocketHandler = NewWebSocketHandler(opts.WSManager, opts.AuthMiddleware, opts.WSSendBuffer)
	healthHandler = NewHealthHandler(opts.WSManager, opts.StoreDriver, opts.StorePing)
}

func GetChatHandler() *ChatHandler {
	return chatHandler
}

func GetWebSocketHandler() *WebSocketHandler {
	return webSocketHandler
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}
