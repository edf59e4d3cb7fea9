package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/domain/repository"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
	"campusmarket/pkg/utils"
)

const (
	pgForeignKeyViolation       = "23503"
	pgCharacterNotInRepertoire  = "22021"
	pgInvalidTextRepresentation = "22P02"

	conversationColumns = `id, participant1_id, participant2_id, coalesce(product_id, ''),
		coalesce(service_id, ''), last_message_at, created_at`
)

type postgresConversationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresConversationRepository expects the schema from database.Migrate.
func NewPostgresConversationRepository(pool *pgxpool.Pool) repository.ConversationRepository {
	return &postgresConversationRepository{pool: pool}
}

func (r *postgresConversationRepository) FindOrCreate(ctx context.Context, key entity.ConversationKey) (*entity.Conversation, bool, error) {
	if err := key.Validate(); err != nil {
		return nil, false, err
	}

	conversation := entity.NewConversation(uuid.New().String(), key, time.Now().UTC().Truncate(time.Microsecond))

	// The unique index on the normalized pair decides the race; a losing
	// insert is a no-op and falls through to the read below.
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (id, participant1_id, participant2_id, product_id, service_id, last_message_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT DO NOTHING
	`, conversation.ID, conversation.Participant1ID, conversation.Participant2ID,
		lo.EmptyableToPtr(conversation.ProductID), lo.EmptyableToPtr(conversation.ServiceID), conversation.CreatedAt)
	if err != nil {
		return nil, false, mapPostgresError("Failed to create conversation", err)
	}
	if tag.RowsAffected() == 1 {
		return conversation, true, nil
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE least(participant1_id, participant2_id) = least($1::varchar, $2::varchar)
		  AND greatest(participant1_id, participant2_id) = greatest($1::varchar, $2::varchar)
		  AND coalesce(product_id, '') = $3
		  AND coalesce(service_id, '') = $4
	`, key.Initiator, key.Recipient, key.ProductID, key.ServiceID)

	existing, err := scanConversation(row)
	if err != nil {
		return nil, false, mapPostgresError("Failed to load conversation", err)
	}
	return existing, false, nil
}

func (r *postgresConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	conversation, err := scanConversation(row)
	if err != nil {
		return nil, mapPostgresError("Failed to get conversation", err)
	}
	return conversation, nil
}

func (r *postgresConversationRepository) ListByUserID(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE participant1_id = $1 OR participant2_id = $1
		ORDER BY last_message_at DESC, created_at DESC
	`, userID)
	if err != nil {
		return nil, mapPostgresError("Failed to list conversations", err)
	}
	defer rows.Close()

	conversations := []*entity.Conversation{}
	for rows.Next() {
		conversation, err := scanConversation(rows)
		if err != nil {
			return nil, mapPostgresError("Failed to list conversations", err)
		}
		conversations = append(conversations, conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError("Failed to list conversations", err)
	}
	return conversations, nil
}

func (r *postgresConversationRepository) AppendMessage(ctx context.Context, conversationID, senderID, content string) (*entity.Message, error) {
	message := &entity.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// Row lock serializes appends per conversation so lastMessageAt
		// only moves forward.
		var p1, p2 string
		err := tx.QueryRow(ctx, `
			SELECT participant1_id, participant2_id FROM conversations WHERE id = $1 FOR UPDATE
		`, conversationID).Scan(&p1, &p2)
		if err != nil {
			return err
		}
		if senderID == "" || (senderID != p1 && senderID != p2) {
			return errors.Forbidden("Sender is not a participant in this conversation", nil)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, content, created_at)
			VALUES ($1, $2, $3, $4, clock_timestamp())
			RETURNING created_at
		`, message.ID, conversationID, senderID, content).Scan(&message.CreatedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE conversations SET last_message_at = $2 WHERE id = $1`, conversationID, message.CreatedAt)
		return err
	})
	if err != nil {
		return nil, mapPostgresError("Failed to create message", err)
	}

	message.CreatedAt = message.CreatedAt.UTC()
	return message, nil
}

func (r *postgresConversationRepository) ListMessages(ctx context.Context, conversationID string, page utils.PaginationParams) ([]*entity.Message, error) {
	var limit *int
	if page.Limit > 0 {
		limit = lo.ToPtr(page.Limit)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, content, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, page.Offset)
	if err != nil {
		return nil, mapPostgresError("Failed to list messages", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*entity.Message, error) {
		var m entity.Message
		if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		return &m, nil
	})
	if err != nil {
		return nil, mapPostgresError("Failed to list messages", err)
	}
	if messages == nil {
		messages = []*entity.Message{}
	}
	return messages, nil
}

func scanConversation(row pgx.Row) (*entity.Conversation, error) {
	var c entity.Conversation
	if err := row.Scan(&c.ID, &c.Participant1ID, &c.Participant2ID, &c.ProductID,
		&c.ServiceID, &c.LastMessageAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.LastMessageAt = c.LastMessageAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.Participants = []string{c.Participant1ID, c.Participant2ID}
	return &c, nil
}

func mapPostgresError(message string, err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("Conversation", nil)
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return errors.NotFound("Referenced listing", err)
		case pgCharacterNotInRepertoire, pgInvalidTextRepresentation:
			return errors.InvalidArgument("Input contains characters that cannot be stored", err)
		}
	}

	logger.Error("postgres: %s: %v", message, err)
	return errors.StorageFailure(message, err)
}
