package usecase

import (
	"context"
	"time"

	"campusmarket/internal/domain/entity"
)

//go:generate mockgen -destination=../mocks/mock_usecase.go -package=mocks campusmarket/internal/usecase Broadcaster,NotificationDispatcher,MessageNotifier,RateLimiter

// Broadcaster pushes an encoded event to a user's live connection. It is
// satisfied by the local websocket.Manager and by the Redis broker. An
// unreachable user is (false, nil); an error means delivery was attempted
// and failed.
type Broadcaster interface {
	SendToUser(userID string, payload []byte) (bool, error)
}

// NotificationDispatcher hands a stored message off for delivery. It must
// return promptly and never report delivery failures to the caller.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, message *entity.Message)
}

type MessageNotifier interface {
	Notify(ctx context.Context, message *entity.Message) error
}

type RateLimiter interface {
	Allow(userID, action string) (bool, time.Duration)
}
