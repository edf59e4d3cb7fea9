package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/domain/repository"
	"campusmarket/internal/infrastructure/metrics"
	"campusmarket/internal/infrastructure/ratelimit"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
	"campusmarket/pkg/utils"
)

type ChatUseCase struct {
	conversationRepo repository.ConversationRepository
	catalog          repository.ListingCatalog
	dispatcher       NotificationDispatcher
	rateLimiter      RateLimiter
	metrics          *metrics.Metrics
}

// NewChatUseCase wires the messaging operations. catalog and rateLimiter may
// be nil, which disables listing validation and rate limiting respectively.
func NewChatUseCase(
	conversationRepo repository.ConversationRepository,
	catalog repository.ListingCatalog,
	dispatcher NotificationDispatcher,
	rateLimiter RateLimiter,
	m *metrics.Metrics,
) *ChatUseCase {
	return &ChatUseCase{
		conversationRepo: conversationRepo,
		catalog:          catalog,
		dispatcher:       dispatcher,
		rateLimiter:      rateLimiter,
		metrics:          m,
	}
}

type CreateConversationInput struct {
	Participant2ID string
	ProductID      string
	ServiceID      string
}

type SendMessageInput struct {
	ConversationID string
	Content        string
}

// CreateConversation returns the caller's conversation with the other
// participant for the given listing, creating it on first contact. created
// reports whether a new conversation was stored.
func (uc *ChatUseCase) CreateConversation(ctx context.Context, userID string, input CreateConversationInput) (*entity.Conversation, bool, error) {
	if err := uc.allow(userID, ratelimit.ActionCreateConversation); err != nil {
		return nil, false, err
	}

	key, err := entity.NewConversationKey(userID, input.Participant2ID, input.ProductID, input.ServiceID)
	if err != nil {
		return nil, false, err
	}

	if err := uc.checkListings(ctx, key); err != nil {
		return nil, false, err
	}

	conversation, created, err := uc.conversationRepo.FindOrCreate(ctx, key)
	if err != nil {
		logger.Error("CreateConversation Error: user %s with %s: %v", userID, key.Recipient, err)
		return nil, false, err
	}

	uc.metrics.RecordConversation(created)
	return conversation, created, nil
}

func (uc *ChatUseCase) checkListings(ctx context.Context, key entity.ConversationKey) error {
	if uc.catalog == nil {
		return nil
	}
	if key.ProductID != "" {
		found, err := uc.catalog.ProductExists(ctx, key.ProductID)
		if err != nil {
			return err
		}
		if !found {
			return errors.NotFound("Product", nil)
		}
	}
	if key.ServiceID != "" {
		found, err := uc.catalog.ServiceExists(ctx, key.ServiceID)
		if err != nil {
			return err
		}
		if !found {
			return errors.NotFound("Service", nil)
		}
	}
	return nil
}

// SendMessage stores the message, then hands it to the dispatcher. The
// returned message never depends on whether anyone was notified.
func (uc *ChatUseCase) SendMessage(ctx context.Context, userID string, input SendMessageInput) (*entity.Message, error) {
	if strings.TrimSpace(input.ConversationID) == "" {
		return nil, errors.InvalidArgument("conversationId is required", nil)
	}
	if !entity.ValidID(input.ConversationID) {
		return nil, errors.InvalidArgument("Invalid conversationId", nil)
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, errors.InvalidArgument("Message content cannot be empty", nil)
	}
	if !utf8.ValidString(input.Content) || strings.ContainsRune(input.Content, 0) {
		return nil, errors.InvalidArgument("Message content contains invalid characters", nil)
	}
	if utf8.RuneCountInString(input.Content) > entity.MaxMessageLength {
		return nil, errors.InvalidArgument(fmt.Sprintf("Message content exceeds %d characters", entity.MaxMessageLength), nil)
	}

	if err := uc.allow(userID, ratelimit.ActionSendMessage); err != nil {
		return nil, err
	}

	message, err := uc.conversationRepo.AppendMessage(ctx, input.ConversationID, userID, input.Content)
	if err != nil {
		logger.Warn("SendMessage Error: user %s in conversation %s: %v", userID, input.ConversationID, err)
		return nil, err
	}
	uc.metrics.RecordMessagePersisted()

	uc.dispatcher.Dispatch(ctx, message)
	return message, nil
}

// GetUserConversations lists the user's conversations, most recent first.
func (uc *ChatUseCase) GetUserConversations(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	return uc.conversationRepo.ListByUserID(ctx, userID)
}

// GetConversation is restricted to participants.
func (uc *ChatUseCase) GetConversation(ctx context.Context, userID, conversationID string) (*entity.Conversation, error) {
	if !entity.ValidID(conversationID) {
		return nil, errors.InvalidArgument("Invalid conversation ID", nil)
	}
	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(userID) {
		return nil, errors.Forbidden("You are not a participant in this conversation", nil)
	}
	return conversation, nil
}

// GetConversationMessages returns history oldest first. A zero page returns
// everything.
func (uc *ChatUseCase) GetConversationMessages(ctx context.Context, userID, conversationID string, page utils.PaginationParams) ([]*entity.Message, error) {
	if _, err := uc.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return uc.conversationRepo.ListMessages(ctx, conversationID, page)
}

func (uc *ChatUseCase) allow(userID, action string) error {
	if uc.rateLimiter == nil {
		return nil
	}
	allowed, wait := uc.rateLimiter.Allow(userID, action)
	if allowed {
		return nil
	}
	logger.Warn("Rate limited: user %s on %s for %v", userID, action, wait)
	retry := max(wait.Round(time.Second), time.Second)
	return errors.TooManyRequests(fmt.Sprintf("Rate limit exceeded. Please retry in %s", retry))
}
