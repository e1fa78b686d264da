package service

import (
	"context"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// notificationRelay carries serialized notification events to the other API nodes.
type notificationRelay interface {
	Name() string
	Send(ctx context.Context, payload []byte) error
	// Listen blocks until ctx is done, passing every received payload to deliver.
	Listen(ctx context.Context, deliver func([]byte)) error
}

type redisRelay struct {
	client  *redis.Client
	channel string
}

func (r redisRelay) Name() string { return "redis" }

func (r redisRelay) Send(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r redisRelay) Listen(ctx context.Context, deliver func([]byte)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		deliver([]byte(msg.Payload))
	}
}

type natsRelay struct {
	conn    *nats.Conn
	subject string
}

func (r natsRelay) Name() string { return "nats" }

func (r natsRelay) Send(_ context.Context, payload []byte) error {
	return r.conn.Publish(r.subject, payload)
}

func (r natsRelay) Listen(ctx context.Context, deliver func([]byte)) error {
	sub, err := r.conn.Subscribe(r.subject, func(msg *nats.Msg) {
		deliver(msg.Data)
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return sub.Drain()
}

// notificationRelays derives the relay channel names from base, e.g. "kpi" gives
// redis channel "kpi:notifications" and nats subject "kpi.notifications".
func notificationRelays(base string, redisClient *redis.Client, natsConn *nats.Conn) []notificationRelay {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil
	}

	var relays []notificationRelay
	if redisClient != nil {
		relays = append(relays, redisRelay{client: redisClient, channel: base + ":notifications"})
	}
	if natsConn != nil {
		relays = append(relays, natsRelay{conn: natsConn, subject: strings.ReplaceAll(base, ":", ".") + ".notifications"})
	}
	return relays
}
