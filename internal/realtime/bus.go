package realtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Bus carries frames between processes and hands received ones to the local hub.
type Bus interface {
	Publish(ctx context.Context, channel string, data []byte) error
	// Run receives until ctx is done.
	Run(ctx context.Context) error
	Close() error
}

// LocalBus delivers straight to the hub; suitable for a single process.
type LocalBus struct {
	hub *Hub
}

func NewLocalBus(hub *Hub) *LocalBus {
	return &LocalBus{hub: hub}
}

func (b *LocalBus) Publish(_ context.Context, channel string, data []byte) error {
	b.hub.Deliver(channel, data)
	return nil
}

func (b *LocalBus) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (b *LocalBus) Close() error { return nil }

// RedisBus fans out through Redis pub/sub under "<prefix>:<channel>".
type RedisBus struct {
	client redis.UniversalClient
	prefix string
	hub    *Hub
	log    *zap.Logger
}

func NewRedisBus(client redis.UniversalClient, prefix string, hub *Hub, log *zap.Logger) *RedisBus {
	return &RedisBus{client: client, prefix: prefix, hub: hub, log: log.Named("redis_bus")}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, data []byte) error {
	if err := b.client.Publish(ctx, b.prefix+":"+channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (b *RedisBus) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+":*")
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	b.log.Info("subscribed to realtime channels", zap.String("pattern", b.prefix+":*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				b.log.Warn("realtime subscription closed")
				return nil
			}
			channel := strings.TrimPrefix(msg.Channel, b.prefix+":")
			b.hub.Deliver(channel, []byte(msg.Payload))
		}
	}
}

func (b *RedisBus) Close() error { return nil }

// NATSBus fans out through NATS subjects "<prefix>.<channel with : as .>".
type NATSBus struct {
	conn   *nats.Conn
	prefix string
	hub    *Hub
	log    *zap.Logger
}

func NewNATSBus(url, prefix string, hub *Hub, log *zap.Logger) (*NATSBus, error) {
	conn, err := nats.Connect(url, nats.Name("orderbridge-realtime"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NATSBus{conn: conn, prefix: prefix, hub: hub, log: log.Named("nats_bus")}, nil
}

// Subject maps a channel to its NATS subject.
func Subject(prefix, channel string) string {
	return prefix + "." + strings.Replace(channel, ":", ".", 1)
}

// ChannelFromSubject reverses Subject.
func ChannelFromSubject(prefix, subject string) string {
	rest := strings.TrimPrefix(subject, prefix+".")
	return strings.Replace(rest, ".", ":", 1)
}

func (b *NATSBus) Publish(_ context.Context, channel string, data []byte) error {
	return b.conn.Publish(Subject(b.prefix, channel), data)
}

func (b *NATSBus) Run(ctx context.Context) error {
	sub, err := b.conn.Subscribe(b.prefix+".>", func(msg *nats.Msg) {
		b.hub.Deliver(ChannelFromSubject(b.prefix, msg.Subject), msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to nats: %w", err)
	}
	b.log.Info("subscribed to realtime subjects", zap.String("subject", b.prefix+".>"))

	<-ctx.Done()
	return sub.Unsubscribe()
}

func (b *NATSBus) Close() error {
	return b.conn.Drain()
}
