package mqtt

import (
	"context"
)

// MessageHandler receives one inbound publish.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the broker connection used by the fleet notifier. NewClient returns the autopaho
// backed implementation; tests substitute their own.
type Client interface {
	// Start connects in the background and returns at once. Use AwaitConnection to block.
	Start(ctx context.Context) error

	// Disconnect sends DISCONNECT and stops reconnecting. A configured will is not published.
	Disconnect(ctx context.Context)

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe registers handler for a topic filter. Subscriptions are replayed after a reconnect.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	Unsubscribe(ctx context.Context, topic string) error

	AwaitConnection(ctx context.Context) error

	// IsConnected reports the state seen by the last connection up or down callback.
	IsConnected() bool
}
