package repository

import (
	"context"
	stderrors "errors"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/domain/repository"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
	"campusmarket/pkg/utils"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

// conversationNamespace seeds name-based document IDs so the same pair and
// listing always map to the same conversation document.
var conversationNamespace = uuid.MustParse("6f1c2a4e-93b7-4d55-8a2e-0c4f5b7d9e31")

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) FindOrCreate(ctx context.Context, key entity.ConversationKey) (*entity.Conversation, bool, error) {
	if err := key.Validate(); err != nil {
		return nil, false, err
	}

	id := uuid.NewSHA1(conversationNamespace, []byte(key.String())).String()
	ref := r.client.Collection(conversationsCollection).Doc(id)

	conversation := entity.NewConversation(id, key, time.Now().UTC().Truncate(time.Microsecond))
	_, err := ref.Create(ctx, conversation)
	if err == nil {
		return conversation, true, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return nil, false, mapFirestoreError("Failed to create conversation", err)
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	if id == "" {
		return nil, errors.NotFound("Conversation", nil)
	}
	doc, err := r.client.Collection(conversationsCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapFirestoreError("Failed to get conversation", err)
	}
	return conversationFromDoc(doc)
}

func (r *firestoreConversationRepository) ListByUserID(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	iter := r.client.Collection(conversationsCollection).
		Where("participants", "array-contains", userID).
		Documents(ctx)
	defer iter.Stop()

	conversations := []*entity.Conversation{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapFirestoreError("Failed to list conversations", err)
		}
		conversation, err := conversationFromDoc(doc)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conversation)
	}

	// Sorted here rather than in the query to avoid a composite index.
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastMessageAt.After(conversations[j].LastMessageAt)
	})
	return conversations, nil
}

func (r *firestoreConversationRepository) AppendMessage(ctx context.Context, conversationID, senderID, content string) (*entity.Message, error) {
	if conversationID == "" {
		return nil, errors.NotFound("Conversation", nil)
	}
	convRef := r.client.Collection(conversationsCollection).Doc(conversationID)

	var message *entity.Message
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(convRef)
		if err != nil {
			return err
		}
		conversation, err := conversationFromDoc(doc)
		if err != nil {
			return err
		}
		if !conversation.HasParticipant(senderID) {
			return errors.Forbidden("Sender is not a participant in this conversation", nil)
		}

		// Firestore keeps microseconds; stepping past the previous activity
		// keeps createdAt strictly increasing within the conversation.
		createdAt := time.Now().UTC().Truncate(time.Microsecond)
		if !createdAt.After(conversation.LastMessageAt) {
			createdAt = conversation.LastMessageAt.Add(time.Microsecond)
		}

		message = &entity.Message{
			ID:             uuid.New().String(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        content,
			CreatedAt:      createdAt,
		}
		if err := tx.Create(convRef.Collection(messagesCollection).Doc(message.ID), message); err != nil {
			return err
		}
		return tx.Update(convRef, []firestore.Update{
			{Path: "lastMessageAt", Value: createdAt},
		})
	})
	if err != nil {
		return nil, mapFirestoreError("Failed to create message", err)
	}
	return message, nil
}

func (r *firestoreConversationRepository) ListMessages(ctx context.Context, conversationID string, page utils.PaginationParams) ([]*entity.Message, error) {
	if conversationID == "" {
		return []*entity.Message{}, nil
	}
	query := r.client.Collection(conversationsCollection).Doc(conversationID).
		Collection(messagesCollection).
		OrderBy("createdAt", firestore.Asc)
	if page.Offset > 0 {
		query = query.Offset(page.Offset)
	}
	if page.Limit > 0 {
		query = query.Limit(page.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	messages := []*entity.Message{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapFirestoreError("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return nil, errors.Internal("Failed to parse message data", err)
		}
		message.CreatedAt = message.CreatedAt.UTC()
		messages = append(messages, &message)
	}
	return messages, nil
}

func conversationFromDoc(doc *firestore.DocumentSnapshot) (*entity.Conversation, error) {
	var conversation entity.Conversation
	if err := doc.DataTo(&conversation); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	conversation.ID = doc.Ref.ID
	conversation.LastMessageAt = conversation.LastMessageAt.UTC()
	conversation.CreatedAt = conversation.CreatedAt.UTC()
	return &conversation, nil
}

func mapFirestoreError(message string, err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	if status.Code(err) == codes.NotFound {
		return errors.NotFound("Conversation", err)
	}
	logger.Error("firestore: %s: %v", message, err)
	return errors.StorageFailure(message, err)
}
