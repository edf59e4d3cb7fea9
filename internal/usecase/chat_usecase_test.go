package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/infrastructure/ratelimit"
	"campusmarket/internal/mocks"
	"campusmarket/pkg/errors"
	"campusmarket/pkg/utils"
)

type chatFixture struct {
	repo       *mocks.MockConversationRepository
	catalog    *mocks.MockListingCatalog
	dispatcher *mocks.MockNotificationDispatcher
	limiter    *mocks.MockRateLimiter
	uc         *ChatUseCase
}

func newChatFixture(t *testing.T) *chatFixture {
	ctrl := gomock.NewController(t)
	f := &chatFixture{
		repo:       mocks.NewMockConversationRepository(ctrl),
		catalog:    mocks.NewMockListingCatalog(ctrl),
		dispatcher: mocks.NewMockNotificationDispatcher(ctrl),
		limiter:    mocks.NewMockRateLimiter(ctrl),
	}
	f.uc = NewChatUseCase(f.repo, f.catalog, f.dispatcher, f.limiter, nil)
	return f
}

func (f *chatFixture) allowAll() {
	f.limiter.EXPECT().Allow(gomock.Any(), gomock.Any()).Return(true, time.Duration(0)).AnyTimes()
}

func TestChatUseCase_CreateConversation(t *testing.T) {
	ctx := context.Background()

	t.Run("should create a conversation anchored to a product", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)
		f.allowAll()

		key, _ := entity.NewConversationKey("alice", "bob", "p1", "")
		stored := entity.NewConversation("c1", key, time.Now())

		f.catalog.EXPECT().ProductExists(ctx, "p1").Return(true, nil)
		f.repo.EXPECT().FindOrCreate(ctx, key).Return(stored, true, nil)

		conv, created, err := f.uc.CreateConversation(ctx, "alice", CreateConversationInput{Participant2ID: "bob", ProductID: "p1"})

		req.NoError(err)
		req.True(created)
		req.Equal("c1", conv.ID)
	})

	t.Run("should reject participant ids with control characters", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)
		f.allowAll()

		f.repo.EXPECT().FindOrCreate(gomock.Any(), gomock.Any()).Times(0)

		_, _, err := f.uc.CreateConversation(ctx, "mallory", CreateConversationInput{Participant2ID: "bob\x00x"})

		req.True(errors.Is(err, errors.CodeInvalidArgument))
	})

	t.Run("should reject a conversation with yourself before touching storage", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)
		f.allowAll()

		f.repo.EXPECT().FindOrCreate(gomock.Any(), gomock.Any()).Times(0)

		_, _, err := f.uc.CreateConversation(ctx, "alice", CreateConversationInput{Participant2ID: "alice"})

		req.True(errors.Is(err, errors.CodeInvalidArgument))
	})

	t.Run("should fail when the referenced service does not exist", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)
		f.allowAll()

		f.catalog.EXPECT().ServiceExists(ctx, "s404").Return(false, nil)
		f.repo.EXPECT().FindOrCreate(gomock.Any(), gomock.Any()).Times(0)

		_, _, err := f.uc.CreateConversation(ctx, "alice", CreateConversationInput{Participant2ID: "bob", ServiceID: "s404"})

		req.True(errors.Is(err, errors.CodeNotFound))
	})

	t.Run("should return the reused conversation", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)
		f.allowAll()

		key, _ := entity.NewConversationKey("bob", "alice", "", "")
		existing := entity.NewConversation("c1", key, time.Now())
		f.repo.EXPECT().FindOrCreate(ctx, key).Return(existing, false, nil)

		conv, created, err := f.uc.CreateConversation(ctx, "bob", CreateConversationInput{Participant2ID: "alice"})

		req.NoError(err)
		req.False(created)
		req.Equal("c1", conv.ID)
	})

	t.Run("should be rate limited", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)

		f.limiter.EXPECT().Allow("alice", ratelimit.ActionCreateConversation).Return(false, 3*time.Second)
		f.repo.EXPECT().FindOrCreate(gomock.Any(), gomock.Any()).Times(0)

		_, _, err := f.uc.CreateConversation(ctx, "alice", CreateConversationInput{Participant2ID: "bob"})

		req.True(errors.Is(err, errors.CodeTooManyRequests))
	})
}

func TestChatUseCase_SendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist then dispatch exactly once", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)
		f.allowAll()

		stored := &entity.Message{ID: "m1", ConversationID: "c1", SenderID: "alice", Content: "Hi, is this available?", CreatedAt: time.Now()}

		gomock.InOrder(
			f.repo.EXPECT().AppendMessage(ctx, "c1", "alice", "Hi, is this available?").Return(stored, nil),
			f.dispatcher.EXPECT().Dispatch(ctx, stored).Times(1),
		)

		msg, err := f.uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: "c1", Content: "Hi, is this available?"})

		req.NoError(err)
		req.Same(stored, msg)
	})

	t.Run("should reject empty or whitespace content with nothing persisted", func(t *testing.T) {
		for _, content := range []string{"", "   ", "\n\t"} {
			req := require.New(t)
			f := newChatFixture(t)
			f.allowAll()

			f.repo.EXPECT().AppendMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			f.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Times(0)

			_, err := f.uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: "c1", Content: content})

			req.True(errors.Is(err, errors.CodeInvalidArgument), "content %q", content)
		}
	})

	t.Run("should reject oversized content", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)
		f.allowAll()

		f.repo.EXPECT().AppendMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := f.uc.SendMessage(ctx, "alice", SendMessageInput{
			ConversationID: "c1",
			Content:        strings.Repeat("é", entity.MaxMessageLength+1),
		})

		req.True(errors.Is(err, errors.CodeInvalidArgument))
	})

	t.Run("should not dispatch when the sender is not a participant", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)
		f.allowAll()

		f.repo.EXPECT().AppendMessage(ctx, "c1", "mallory", "hi").
			Return(nil, errors.Forbidden("Sender is not a participant in this conversation", nil))
		f.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Times(0)

		_, err := f.uc.SendMessage(ctx, "mallory", SendMessageInput{ConversationID: "c1", Content: "hi"})

		req.True(errors.Is(err, errors.CodeForbidden))
	})

	t.Run("should surface storage failures without dispatching", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)
		f.allowAll()

		f.repo.EXPECT().AppendMessage(ctx, "c1", "alice", "hi").
			Return(nil, errors.StorageFailure("Failed to create message", nil))
		f.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Times(0)

		_, err := f.uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: "c1", Content: "hi"})

		req.True(errors.Is(err, errors.CodeStorageFailure))
	})

	t.Run("should require a conversation id", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)

		_, err := f.uc.SendMessage(ctx, "alice", SendMessageInput{Content: "hi"})

		req.True(errors.Is(err, errors.CodeInvalidArgument))
	})

	t.Run("should reject content and ids the stores cannot hold", func(t *testing.T) {
		inputs := []SendMessageInput{
			{ConversationID: "c1", Content: "hi\x00there"},
			{ConversationID: "c1", Content: "hi \xff"},
			{ConversationID: "c1\x00x", Content: "hi"},
		}
		for _, input := range inputs {
			req := require.New(t)
			f := newChatFixture(t)
			f.allowAll()

			f.repo.EXPECT().AppendMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			f.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Times(0)

			_, err := f.uc.SendMessage(ctx, "alice", input)

			req.True(errors.Is(err, errors.CodeInvalidArgument), "input %q", input)
		}
	})

	t.Run("should keep multi-line content as sent", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)
		f.allowAll()

		stored := &entity.Message{ID: "m2", ConversationID: "c1", SenderID: "alice", Content: "line one\nline two"}
		f.repo.EXPECT().AppendMessage(ctx, "c1", "alice", "line one\nline two").Return(stored, nil)
		f.dispatcher.EXPECT().Dispatch(ctx, stored)

		_, err := f.uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: "c1", Content: "line one\nline two"})

		req.NoError(err)
	})
}

func TestChatUseCase_SendMessageIgnoresNotifyFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	repo := mocks.NewMockConversationRepository(ctrl)
	notifier := mocks.NewMockMessageNotifier(ctrl)
	dispatcher := NewAsyncDispatcher(notifier, time.Second, nil)
	uc := NewChatUseCase(repo, nil, dispatcher, nil, nil)

	stored := &entity.Message{ID: "m1", ConversationID: "c1", SenderID: "alice", Content: "hi"}
	repo.EXPECT().AppendMessage(ctx, "c1", "alice", "hi").Return(stored, nil)
	notifier.EXPECT().Notify(gomock.Any(), stored).DoAndReturn(func(context.Context, *entity.Message) error {
		panic("presence registry exploded")
	})

	msg, err := uc.SendMessage(ctx, "alice", SendMessageInput{ConversationID: "c1", Content: "hi"})
	dispatcher.Wait()

	req.NoError(err)
	req.Equal("m1", msg.ID)
}

func TestChatUseCase_Reads(t *testing.T) {
	ctx := context.Background()
	key, _ := entity.NewConversationKey("alice", "bob", "", "")
	conv := entity.NewConversation("c1", key, time.Now())

	t.Run("should list messages for a participant", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)

		page := utils.PaginationParams{Limit: 10}
		f.repo.EXPECT().GetByID(ctx, "c1").Return(conv, nil)
		f.repo.EXPECT().ListMessages(ctx, "c1", page).Return([]*entity.Message{{ID: "m1"}}, nil)

		messages, err := f.uc.GetConversationMessages(ctx, "bob", "c1", page)

		req.NoError(err)
		req.Len(messages, 1)
	})

	t.Run("should forbid outsiders from reading", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)

		f.repo.EXPECT().GetByID(ctx, "c1").Return(conv, nil).Times(2)
		f.repo.EXPECT().ListMessages(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := f.uc.GetConversationMessages(ctx, "mallory", "c1", utils.PaginationParams{})
		req.True(errors.Is(err, errors.CodeForbidden))

		_, err = f.uc.GetConversation(ctx, "mallory", "c1")
		req.True(errors.Is(err, errors.CodeForbidden))
	})

	t.Run("should list the user's conversations", func(t *testing.T) {
		req := require.New(t)
		f := newChatFixture(t)

		f.repo.EXPECT().ListByUserID(ctx, "alice").Return([]*entity.Conversation{conv}, nil)

		list, err := f.uc.GetUserConversations(ctx, "alice")

		req.NoError(err)
		req.Len(list, 1)
	})
}
