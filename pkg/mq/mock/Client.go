// Package mock provides mock implementations of the mq package interfaces for testing.
package mock

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/hardwater/pkg/mq"
)

// MockClient is a mock implementation of ClientInterface for testing.
// It tracks method calls and allows configuring return values and behavior.
type MockClient struct {
	mu sync.Mutex

	// PushFunc is called when Push is invoked. If nil, returns PushError.
	PushFunc func(ctx context.Context, data []byte) error
	// PushError is returned by Push if PushFunc is nil.
	PushError error
	// PushCalls tracks all calls to Push with their arguments.
	PushCalls []PushCall

	// UnsafePushError is returned by UnsafePush.
	UnsafePushError error
	// UnsafePushCalls tracks all calls to UnsafePush with their arguments.
	UnsafePushCalls []PushCall

	// ConsumeChannel is returned by Consume. NewMockClient wires it to the
	// buffer fed by Deliver.
	ConsumeChannel <-chan amqp.Delivery
	// ConsumeError is returned by Consume.
	ConsumeError error
	// ConsumeCalls tracks the number of times Consume was called.
	ConsumeCalls int

	// CloseError is returned by Close.
	CloseError error
	// CloseCalls tracks the number of times Close was called.
	CloseCalls int

	deliveries chan amqp.Delivery
}

// PushCall records the arguments to a Push or UnsafePush call.
type PushCall struct {
	Ctx  context.Context
	Data []byte
}

// NewMockClient creates a new MockClient with default behavior (no errors).
func NewMockClient() *MockClient {
	deliveries := make(chan amqp.Delivery, 64)
	return &MockClient{
		PushCalls:       make([]PushCall, 0),
		UnsafePushCalls: make([]PushCall, 0),
		ConsumeChannel:  deliveries,
		deliveries:      deliveries,
	}
}

// Push implements ClientInterface.
func (m *MockClient) Push(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PushCalls = append(m.PushCalls, PushCall{Ctx: ctx, Data: data})

	if m.PushFunc != nil {
		return m.PushFunc(ctx, data)
	}
	return m.PushError
}

// UnsafePush implements ClientInterface.
func (m *MockClient) UnsafePush(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UnsafePushCalls = append(m.UnsafePushCalls, PushCall{Ctx: ctx, Data: data})
	return m.UnsafePushError
}

// Consume implements ClientInterface.
func (m *MockClient) Consume() (<-chan amqp.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConsumeCalls++
	return m.ConsumeChannel, m.ConsumeError
}

// Close implements ClientInterface.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CloseCalls++
	return m.CloseError
}

// Deliver queues body for the channel returned by Consume. The delivery is
// acknowledged through ack, which may be nil.
func (m *MockClient) Deliver(body []byte, ack *Acknowledger) {
	d := amqp.Delivery{Body: body, ContentType: "application/json"}
	if ack != nil {
		d.Acknowledger = ack
		d.DeliveryTag = ack.nextTag()
	}
	m.mu.Lock()
	deliveries := m.deliveries
	m.mu.Unlock()
	deliveries <- d
}

// Disconnect closes the delivery channel handed out so far, the way a dropped
// broker connection does, and lets the next Consume return a fresh one.
func (m *MockClient) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	close(m.deliveries)
	m.deliveries = make(chan amqp.Delivery, 64)
	m.ConsumeChannel = m.deliveries
}

// Consumes returns the number of Consume calls so far.
func (m *MockClient) Consumes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ConsumeCalls
}

// Pushed returns a copy of every payload passed to Push.
func (m *MockClient) Pushed() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, 0, len(m.PushCalls))
	for _, c := range m.PushCalls {
		out = append(out, c.Data)
	}
	return out
}

// Reset clears all tracked calls.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PushCalls = make([]PushCall, 0)
	m.UnsafePushCalls = make([]PushCall, 0)
	m.ConsumeCalls = 0
	m.CloseCalls = 0
}

// Acknowledger records acks and nacks of deliveries handed out by Deliver.
type Acknowledger struct {
	mu      sync.Mutex
	tag     uint64
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *Acknowledger) nextTag() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tag++
	return a.tag
}

// Ack implements amqp.Acknowledger.
func (a *Acknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

// Nack implements amqp.Acknowledger.
func (a *Acknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

// Reject implements amqp.Acknowledger.
func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// Acked returns the number of acknowledged deliveries.
func (a *Acknowledger) Acked() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked)
}

// Nacked returns the number of negatively acknowledged deliveries.
func (a *Acknowledger) Nacked() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.nacked)
}

// Ensure MockClient implements mq.ClientInterface.
var _ mq.ClientInterface = (*MockClient)(nil)

// Ensure Acknowledger implements amqp.Acknowledger.
var _ amqp.Acknowledger = (*Acknowledger)(nil)
