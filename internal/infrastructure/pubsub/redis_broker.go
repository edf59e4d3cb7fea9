package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"campusmarket/pkg/logger"
)

// LocalDeliverer pushes a payload to a user connected to this process.
type LocalDeliverer interface {
	SendToUser(userID string, payload []byte) (bool, error)
}

// envelope is what travels over the Redis channel.
type envelope struct {
	UserID  string          `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBroker fans user events out to every process through a Redis
// channel. Each process delivers to its own local connections, so a user is
// reachable regardless of which instance holds the socket.
type RedisBroker struct {
	client  *redis.Client
	channel string
	local   LocalDeliverer
}

func NewRedisBroker(client *redis.Client, channel string, local LocalDeliverer) *RedisBroker {
	return &RedisBroker{
		client:  client,
		channel: channel,
		local:   local,
	}
}

// Connect parses a redis:// URL and verifies the server with a ping.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

// SendToUser publishes the payload for userID. It reports whether at least
// one subscribed process received it; whether that process holds a socket
// for the user is not known here.
func (b *RedisBroker) SendToUser(userID string, payload []byte) (bool, error) {
	raw, err := json.Marshal(envelope{UserID: userID, Payload: payload})
	if err != nil {
		return false, fmt.Errorf("pubsub: encode event for user %s: %w", userID, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	receivers, err := b.client.Publish(ctx, b.channel, raw).Result()
	if err != nil {
		return false, fmt.Errorf("pubsub: publish for user %s: %w", userID, err)
	}
	return receivers > 0, nil
}

// Run subscribes to the channel and delivers events locally until ctx is
// done.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("pubsub: subscribe %s: %w", b.channel, err)
	}
	logger.Info("pubsub: subscribed to %s", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.deliver(msg.Payload)
		}
	}
}

func (b *RedisBroker) deliver(raw string) bool {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		logger.Warn("pubsub: dropping malformed event: %v", err)
		return false
	}
	if env.UserID == "" {
		return false
	}
	delivered, err := b.local.SendToUser(env.UserID, env.Payload)
	if err != nil {
		logger.Warn("pubsub: local delivery to user %s failed: %v", env.UserID, err)
	}
	return delivered
}
