package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/infrastructure/metrics"
	ws "campusmarket/internal/infrastructure/websocket"
	"campusmarket/internal/mocks"
	"campusmarket/pkg/errors"
)

func TestNotifier_Notify(t *testing.T) {
	ctx := context.Background()
	key, _ := entity.NewConversationKey("alice", "bob", "p1", "")
	conv := entity.NewConversation("c1", key, time.Now())
	message := &entity.Message{ID: "m1", ConversationID: "c1", SenderID: "alice", Content: "Hi, is this available?"}

	t.Run("should push new_message to both participants", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockConversationRepository(ctrl)
		broadcaster := mocks.NewMockBroadcaster(ctrl)

		repo.EXPECT().GetByID(ctx, "c1").Return(conv, nil)

		var payloads [][]byte
		record := func(_ string, payload []byte) (bool, error) {
			payloads = append(payloads, payload)
			return true, nil
		}
		broadcaster.EXPECT().SendToUser("alice", gomock.Any()).DoAndReturn(record)
		broadcaster.EXPECT().SendToUser("bob", gomock.Any()).DoAndReturn(record)

		req.NoError(NewNotifier(repo, broadcaster, nil).Notify(ctx, message))
		req.Len(payloads, 2)

		var event struct {
			Type string         `json:"type"`
			Data entity.Message `json:"data"`
		}
		req.NoError(json.Unmarshal(payloads[0], &event))
		req.Equal("new_message", event.Type)
		req.Equal("m1", event.Data.ID)
		req.Equal("Hi, is this available?", event.Data.Content)
	})

	t.Run("should skip offline participants silently", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockConversationRepository(ctrl)
		broadcaster := mocks.NewMockBroadcaster(ctrl)

		repo.EXPECT().GetByID(ctx, "c1").Return(conv, nil)
		broadcaster.EXPECT().SendToUser("alice", gomock.Any()).Return(true, nil)
		broadcaster.EXPECT().SendToUser("bob", gomock.Any()).Return(false, nil)

		m := metrics.NewMetrics(prometheus.NewRegistry())
		req.NoError(NewNotifier(repo, broadcaster, m).Notify(ctx, message))
		req.Equal(1.0, testutil.ToFloat64(m.NotificationDeliveriesTotal.WithLabelValues(metrics.DeliveryDelivered)))
		req.Equal(1.0, testutil.ToFloat64(m.NotificationDeliveriesTotal.WithLabelValues(metrics.DeliveryOffline)))
	})

	t.Run("should record failed deliveries without returning them", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockConversationRepository(ctrl)
		broadcaster := mocks.NewMockBroadcaster(ctrl)

		repo.EXPECT().GetByID(ctx, "c1").Return(conv, nil)
		broadcaster.EXPECT().SendToUser("alice", gomock.Any()).Return(false, ws.ErrSendBufferFull)
		broadcaster.EXPECT().SendToUser("bob", gomock.Any()).Return(true, nil)

		m := metrics.NewMetrics(prometheus.NewRegistry())
		req.NoError(NewNotifier(repo, broadcaster, m).Notify(ctx, message))
		req.Equal(1.0, testutil.ToFloat64(m.NotificationDeliveriesTotal.WithLabelValues(metrics.DeliveryFailed)))
		req.Equal(1.0, testutil.ToFloat64(m.NotificationDeliveriesTotal.WithLabelValues(metrics.DeliveryDelivered)))
	})

	t.Run("should fail without broadcasting when the conversation cannot be loaded", func(t *testing.T) {
		req := require.New(t)
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockConversationRepository(ctrl)
		broadcaster := mocks.NewMockBroadcaster(ctrl)

		repo.EXPECT().GetByID(ctx, "c1").Return(nil, errors.NotFound("Conversation", nil))
		broadcaster.EXPECT().SendToUser(gomock.Any(), gomock.Any()).Times(0)

		err := NewNotifier(repo, broadcaster, nil).Notify(ctx, message)
		req.True(errors.Is(err, errors.CodeNotFound))
	})
}
