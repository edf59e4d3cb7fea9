package handler

import (
	"github.com/labstack/echo/v4"

	"campusmarket/internal/usecase"
	"campusmarket/pkg/response"
	"campusmarket/pkg/utils"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type createConversationRequest struct {
	Participant2ID string `json:"participant2Id" validate:"required"`
	ProductID      string `json:"productId"`
	ServiceID      string `json:"serviceId"`
}

// Content is checked by the use case so blank and oversized messages share
// one error code.
type sendMessageRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Content        string `json:"content"`
}

// CreateConversation answers 201 when a conversation is opened and 200 when
// the existing one is returned.
func (h *ChatHandler) CreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	conversation, created, err := h.chatUseCase.CreateConversation(c.Request().Context(), userID, usecase.CreateConversationInput{
		Participant2ID: req.Participant2ID,
		ProductID:      req.ProductID,
		ServiceID:      req.ServiceID,
	})
	if err != nil {
		return response.Error(c, err)
	}

	if created {
		return response.Created(c, conversation)
	}
	return response.Success(c, conversation)
}

func (h *ChatHandler) GetUserConversations(c echo.Context) error {
	userID := c.Get("uid").(string)

	conversations, err := h.chatUseCase.GetUserConversations(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conversations)
}

func (h *ChatHandler) GetConversation(c echo.Context) error {
	userID := c.Get("uid").(string)

	conversation, err := h.chatUseCase.GetConversation(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conversation)
}

func (h *ChatHandler) GetConversationMessages(c echo.Context) error {
	userID := c.Get("uid").(string)
	page := utils.GetPaginationParams(c)

	messages, err := h.chatUseCase.GetConversationMessages(c.Request().Context(), userID, c.Param("id"), page)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, messages)
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	message, err := h.chatUseCase.SendMessage(c.Request().Context(), userID, usecase.SendMessageInput{
		ConversationID: req.ConversationID,
		Content:        req.Content,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}
