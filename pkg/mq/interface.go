package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ClientInterface is the queue surface used by the services. It is implemented
// by Client and by mock.MockClient.
type ClientInterface interface {
	Publisher

	// UnsafePush publishes without waiting for a broker confirmation.
	UnsafePush(ctx context.Context, data []byte) error

	// Consume returns the delivery stream of the queue. Every delivery must
	// be Acked or Nacked.
	Consume() (<-chan amqp.Delivery, error)

	// Close stops reconnecting and releases the connection.
	Close() error
}

// Ensure Client implements ClientInterface.
var _ ClientInterface = (*Client)(nil)
