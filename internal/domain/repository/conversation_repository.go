package repository

import (
	"context"

	"campusmarket/internal/domain/entity"
	"campusmarket/pkg/utils"
)

//go:generate mockgen -destination=../../mocks/mock_repository.go -package=mocks campusmarket/internal/domain/repository ConversationRepository,ListingCatalog

// ConversationRepository is the durable conversation/message store.
//
// Implementations must enforce pair uniqueness in storage (not only with a
// read-then-write check) and must stamp a message and its conversation's
// lastMessageAt with the same timestamp in one atomic write.
type ConversationRepository interface {
	// FindOrCreate returns the conversation matching key, creating it if
	// needed. created reports whether this call inserted the row.
	FindOrCreate(ctx context.Context, key entity.ConversationKey) (conversation *entity.Conversation, created bool, err error)
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	// ListByUserID returns the user's conversations, most recently active first.
	ListByUserID(ctx context.Context, userID string) ([]*entity.Conversation, error)

	// AppendMessage fails with NOT_FOUND for an unknown conversation and
	// FORBIDDEN when senderID is not a participant.
	AppendMessage(ctx context.Context, conversationID, senderID, content string) (*entity.Message, error)
	// ListMessages returns messages oldest first. A zero page returns the
	// full history.
	ListMessages(ctx context.Context, conversationID string, page utils.PaginationParams) ([]*entity.Message, error)
}

// ListingCatalog answers whether referenced listings exist. Listing content
// is owned elsewhere.
type ListingCatalog interface {
	ProductExists(ctx context.Context, productID string) (bool, error)
	ServiceExists(ctx context.Context, serviceID string) (bool, error)
}
