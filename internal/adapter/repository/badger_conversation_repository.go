package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/domain/repository"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/logger"
	"campusmarket/pkg/utils"
)

const badgerMaxTxnRetries = 8

// Key layout:
//
//	conv:{id}                      -> conversation JSON
//	convkey:{normalized pair key}  -> conversation id
//	userconv:{user}\x00{id}        -> conversation id, one per participant
//	msg:{conversation}:{ts}:{id}   -> message JSON, ts is 19-digit zero padded
//	                                  unix nanos so keys sort chronologically
const (
	badgerConvPrefix     = "conv:"
	badgerConvKeyPrefix  = "convkey:"
	badgerUserConvPrefix = "userconv:"
	badgerMsgPrefix      = "msg:"
)

type badgerConversationRepository struct {
	db *badger.DB

	clockMu sync.Mutex
	last    time.Time
}

// NewBadgerConversationRepository stores conversations in an embedded Badger
// database. The caller owns db and closes it.
func NewBadgerConversationRepository(db *badger.DB) repository.ConversationRepository {
	return &badgerConversationRepository{db: db}
}

// now returns strictly increasing timestamps so message keys never collide
// and insertion order matches timestamp order.
func (r *badgerConversationRepository) now() time.Time {
	r.clockMu.Lock()
	defer r.clockMu.Unlock()

	t := time.Now().UTC()
	if !t.After(r.last) {
		t = r.last.Add(time.Nanosecond)
	}
	r.last = t
	return t
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (r *badgerConversationRepository) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < badgerMaxTxnRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = r.db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
		logger.Debug("badger: transaction conflict, retrying (attempt %d)", attempt+1)
	}
	return err
}

func (r *badgerConversationRepository) FindOrCreate(ctx context.Context, key entity.ConversationKey) (*entity.Conversation, bool, error) {
	if err := key.Validate(); err != nil {
		return nil, false, err
	}

	var (
		result  *entity.Conversation
		created bool
	)
	err := r.update(ctx, func(txn *badger.Txn) error {
		created = false

		item, err := txn.Get([]byte(badgerConvKeyPrefix + key.String()))
		switch {
		case err == nil:
			id, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result, err = getConversation(txn, string(id))
			return err
		case !stderrors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		conversation := entity.NewConversation(uuid.New().String(), key, r.now())
		if err := putConversation(txn, conversation); err != nil {
			return err
		}
		if err := txn.Set([]byte(badgerConvKeyPrefix+key.String()), []byte(conversation.ID)); err != nil {
			return err
		}
		for _, participant := range conversation.Participants {
			if err := txn.Set(userConvKey(participant, conversation.ID), []byte(conversation.ID)); err != nil {
				return err
			}
		}
		result = conversation
		created = true
		return nil
	})
	if err != nil {
		return nil, false, mapBadgerError("Failed to find or create conversation", err)
	}
	return result, created, nil
}

func (r *badgerConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	var conversation *entity.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		conversation, err = getConversation(txn, id)
		return err
	})
	if err != nil {
		return nil, mapBadgerError("Failed to get conversation", err)
	}
	return conversation, nil
}

func (r *badgerConversationRepository) ListByUserID(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	conversations := []*entity.Conversation{}
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerUserConvPrefix + userID + "\x00")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			// The id is read from the value, never parsed out of the key.
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			conversation, err := getConversation(txn, string(id))
			if err != nil {
				return err
			}
			if !conversation.HasParticipant(userID) {
				continue
			}
			conversations = append(conversations, conversation)
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerError("Failed to list conversations", err)
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastMessageAt.After(conversations[j].LastMessageAt)
	})
	return conversations, nil
}

func (r *badgerConversationRepository) AppendMessage(ctx context.Context, conversationID, senderID, content string) (*entity.Message, error) {
	var message *entity.Message
	err := r.update(ctx, func(txn *badger.Txn) error {
		conversation, err := getConversation(txn, conversationID)
		if err != nil {
			return err
		}
		if !conversation.HasParticipant(senderID) {
			return errors.Forbidden("Sender is not a participant in this conversation", nil)
		}

		message = &entity.Message{
			ID:             uuid.New().String(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        content,
			CreatedAt:      r.now(),
		}
		raw, err := json.Marshal(message)
		if err != nil {
			return err
		}
		if err := txn.Set(messageKey(message), raw); err != nil {
			return err
		}

		conversation.LastMessageAt = message.CreatedAt
		return putConversation(txn, conversation)
	})
	if err != nil {
		return nil, mapBadgerError("Failed to create message", err)
	}
	return message, nil
}

func (r *badgerConversationRepository) ListMessages(ctx context.Context, conversationID string, page utils.PaginationParams) ([]*entity.Message, error) {
	messages := []*entity.Message{}
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerMsgPrefix + conversationID + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		skipped := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if skipped < page.Offset {
				skipped++
				continue
			}
			if page.Limit > 0 && len(messages) == page.Limit {
				break
			}
			var message entity.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &message)
			}); err != nil {
				return err
			}
			messages = append(messages, &message)
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerError("Failed to list messages", err)
	}
	return messages, nil
}

func getConversation(txn *badger.Txn, id string) (*entity.Conversation, error) {
	item, err := txn.Get([]byte(badgerConvPrefix + id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.NotFound("Conversation", nil)
	}
	if err != nil {
		return nil, err
	}

	var conversation entity.Conversation
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &conversation)
	}); err != nil {
		return nil, err
	}
	return &conversation, nil
}

func putConversation(txn *badger.Txn, conversation *entity.Conversation) error {
	raw, err := json.Marshal(conversation)
	if err != nil {
		return err
	}
	return txn.Set([]byte(badgerConvPrefix+conversation.ID), raw)
}

func userConvKey(userID, conversationID string) []byte {
	return []byte(badgerUserConvPrefix + userID + "\x00" + conversationID)
}

func messageKey(m *entity.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", badgerMsgPrefix, m.ConversationID, m.CreatedAt.UnixNano(), m.ID))
}

// mapBadgerError keeps domain errors intact and classifies everything else as
// a storage failure.
func mapBadgerError(message string, err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	logger.Error("badger: %s: %v", message, err)
	return errors.StorageFailure(message, err)
}
