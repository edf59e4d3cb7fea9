package usecase

import (
	"context"

	"campusmarket/internal/domain/entity"
	"campusmarket/internal/domain/repository"
	"campusmarket/internal/infrastructure/metrics"
	ws "campusmarket/internal/infrastructure/websocket"
	"campusmarket/pkg/logger"
)

// Notifier pushes new_message events to both participants of a message's
// conversation, the sender included. Offline users are skipped.
type Notifier struct {
	conversationRepo repository.ConversationRepository
	broadcaster      Broadcaster
	metrics          *metrics.Metrics
}

func NewNotifier(conversationRepo repository.ConversationRepository, broadcaster Broadcaster, m *metrics.Metrics) *Notifier {
	return &Notifier{
		conversationRepo: conversationRepo,
		broadcaster:      broadcaster,
		metrics:          m,
	}
}

// Notify returns an error only when the event could not be built. Delivery
// outcomes are recorded, not returned.
func (n *Notifier) Notify(ctx context.Context, message *entity.Message) error {
	conversation, err := n.conversationRepo.GetByID(ctx, message.ConversationID)
	if err != nil {
		return err
	}

	payload, err := ws.EncodeEvent(ws.EventNewMessage, message)
	if err != nil {
		return err
	}

	for _, userID := range []string{conversation.Participant1ID, conversation.Participant2ID} {
		delivered, err := n.broadcaster.SendToUser(userID, payload)
		switch {
		case err != nil:
			n.metrics.RecordDelivery(metrics.DeliveryFailed)
			logger.Warn("Notify: delivery to user %s failed for message %s: %v", userID, message.ID, err)
		case delivered:
			n.metrics.RecordDelivery(metrics.DeliveryDelivered)
		default:
			n.metrics.RecordDelivery(metrics.DeliveryOffline)
			logger.Debug("Notify: user %s not reachable for message %s", userID, message.ID)
		}
	}
	return nil
}
