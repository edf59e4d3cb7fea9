package handler

import (
	"net/http"
	"strings"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"campusmarket/internal/adapter/api/middleware"
	ws "campusmarket/internal/infrastructure/websocket"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
	"campusmarket/pkg/response"
)

type WebSocketHandler struct {
	wsManager      *ws.Manager
	authMiddleware *middleware.AuthMiddleware
	sendBuffer     int
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewWebSocketHandler(wsManager *ws.Manager, authMiddleware *middleware.AuthMiddleware, sendBuffer int) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:      wsManager,
		authMiddleware: authMiddleware,
		sendBuffer:     sendBuffer,
	}
}

// HandleWebSocket serves GET /ws?userId=<id>[&token=<jwt>]. A token, when
// given as a query parameter or bearer header, must belong to userId.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	userID := strings.TrimSpace(c.QueryParam("userId"))
	if userID == "" {
		return response.Error(c, errors.InvalidArgument("userId query parameter is required", nil))
	}

	token := c.QueryParam("token")
	if token == "" {
		token, _ = middleware.BearerToken(c.Request().Header.Get("Authorization"))
	}
	if token != "" {
		uid, err := h.authMiddleware.GetUIDFromToken(c.Request().Context(), token)
		if err != nil {
			return response.Error(c, errors.Unauthorized("Invalid or expired token", err))
		}
		if uid != userID {
			return response.Error(c, errors.Unauthorized("Token does not match userId", nil))
		}
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		logger.Warn("WebSocket: upgrade failed for user %s: %v", userID, err)
		return nil
	}

	client := ws.NewClient(userID, conn, h.sendBuffer)
	if previous := h.wsManager.Register(client); previous != nil {
		previous.CloseWithReason(gorillaws.CloseGoingAway, "replaced by a newer connection")
	}
	logger.Info("WebSocket: user %s connected (%d online)", userID, h.wsManager.Count())

	go client.WritePump()
	go client.ReadPump(h.wsManager)
	return nil
}
