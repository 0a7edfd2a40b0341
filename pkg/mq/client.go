// Package mq provides a RabbitMQ client with automatic reconnection and JSON
// event helpers for reading and alert traffic.
package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/hardwater/pkg/metrics"
)

// Client is a RabbitMQ client bound to one durable queue. It reconnects in the
// background and publishes with confirms.
type Client struct {
	m               *sync.Mutex
	logger          *slog.Logger
	connection      *amqp.Connection
	channel         *amqp.Channel
	done            chan struct{}
	closeOnce       sync.Once
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	metrics         *metrics.MQMetrics
	queueName       string
	isReady         bool
}

const (
	// When reconnecting to the server after connection failure.
	reconnectDelay = 5 * time.Second

	// When setting up the channel after a channel exception.
	reInitDelay = 2 * time.Second

	initialBackoff   = 100 * time.Millisecond
	maxBackoff       = 10 * time.Second
	maxRetryAttempts = 5

	contentTypeJSON = "application/json"
)

var (
	errNotConnected       = errors.New("not connected to a server")
	errAlreadyClosed      = errors.New("already closed: not connected to the server")
	errShutdown           = errors.New("client is shutting down")
	errMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
	errNotAcknowledged    = errors.New("publish not acknowledged by the server")
)

// New creates a client for queueName and starts connecting to addr in the
// background.
func New(queueName, addr string, l *slog.Logger) *Client {
	client := &Client{
		m:         &sync.Mutex{},
		logger:    l.With("queue", queueName),
		queueName: queueName,
		done:      make(chan struct{}),
	}
	go client.handleReconnect(addr)
	return client
}

// SetMetrics sets the metrics collector for this client.
// This should be called before the client starts processing messages.
func (client *Client) SetMetrics(m *metrics.MQMetrics) {
	client.metrics = m
}

// QueueName returns the queue this client publishes to and consumes from.
func (client *Client) QueueName() string {
	return client.queueName
}

func (client *Client) ready() bool {
	client.m.Lock()
	defer client.m.Unlock()
	return client.isReady
}

func (client *Client) setReady(ready bool) {
	client.m.Lock()
	client.isReady = ready
	client.m.Unlock()
}

// handleReconnect waits for a connection error on notifyConnClose and then
// keeps reconnecting until Close is called.
func (client *Client) handleReconnect(addr string) {
	for {
		client.setReady(false)
		client.logger.Info("attempting to connect")

		if client.metrics != nil {
			client.metrics.ReconnectAttempts.Inc()
		}

		conn, err := client.connect(addr)
		if err != nil {
			client.logger.Error("failed to connect, retrying", "error", err)

			select {
			case <-client.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if done := client.handleReInit(conn); done {
			return
		}
	}
}

func (client *Client) connect(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		if client.metrics != nil {
			client.metrics.ConnectionStatus.Set(0)
		}
		return nil, err
	}

	client.changeConnection(conn)
	client.logger.Info("connected")

	if client.metrics != nil {
		client.metrics.ConnectionStatus.Set(1)
	}

	return conn, nil
}

// handleReInit waits for a channel error and re-initializes the channel.
// It returns true once the client is shutting down.
func (client *Client) handleReInit(conn *amqp.Connection) bool {
	for {
		client.setReady(false)

		if err := client.init(conn); err != nil {
			client.logger.Error("failed to initialize channel, retrying", "error", err)

			select {
			case <-client.done:
				return true
			case <-client.notifyConnClose:
				client.logger.Info("connection closed, reconnecting")
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-client.done:
			return true
		case <-client.notifyConnClose:
			client.logger.Info("connection closed, reconnecting")
			return false
		case <-client.notifyChanClose:
			client.logger.Info("channel closed, re-running init")
		}
	}
}

// init opens a confirm-mode channel and declares the durable queue.
func (client *Client) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		return err
	}

	_, err = ch.QueueDeclare(
		client.queueName,
		true,  // Durable
		false, // Delete when unused
		false, // Exclusive
		false, // No-wait
		nil,   // Arguments
	)
	if err != nil {
		return err
	}

	client.changeChannel(ch)
	client.setReady(true)
	client.logger.Info("client init done")

	return nil
}

func (client *Client) changeConnection(connection *amqp.Connection) {
	client.connection = connection
	client.notifyConnClose = make(chan *amqp.Error, 1)
	client.connection.NotifyClose(client.notifyConnClose)
}

func (client *Client) changeChannel(channel *amqp.Channel) {
	client.channel = channel
	client.notifyChanClose = make(chan *amqp.Error, 1)
	client.notifyConfirm = make(chan amqp.Confirmation, 1)
	client.channel.NotifyClose(client.notifyChanClose)
	client.channel.NotifyPublish(client.notifyConfirm)
}

func newPushBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = maxBackoff
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, maxRetryAttempts), ctx)
}

// Push publishes data and waits for the broker confirmation. While the client
// is disconnected or the broker nacks, it retries with exponential backoff
// (100ms doubling, at most 5 retries) and then gives up.
func (client *Client) Push(ctx context.Context, data []byte) error {
	if client.metrics != nil {
		timer := prometheus.NewTimer(client.metrics.PushDuration.WithLabelValues(client.queueName))
		defer timer.ObserveDuration()
	}

	attempt := 0
	operation := func() error {
		attempt++
		select {
		case <-client.done:
			return backoff.Permanent(errShutdown)
		default:
		}

		if !client.ready() {
			client.logger.Info("not connected, waiting for reconnection", "attempt", attempt)
			return errNotConnected
		}

		if err := client.UnsafePush(ctx, data); err != nil {
			client.logger.Error("push failed, retrying with backoff", "error", err, "attempt", attempt)
			return err
		}

		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		case confirm := <-client.notifyConfirm:
			if !confirm.Ack {
				client.logger.Warn("push not acknowledged, retrying", "delivery_tag", confirm.DeliveryTag)
				return errNotAcknowledged
			}
			client.logger.Debug("push confirmed", "delivery_tag", confirm.DeliveryTag, "attempt", attempt)
			return nil
		}
	}

	err := backoff.Retry(operation, newPushBackOff(ctx))
	switch {
	case err == nil:
		if client.metrics != nil {
			client.metrics.MessagesPushed.WithLabelValues(client.queueName).Inc()
		}
		return nil
	case ctx.Err() != nil:
		if client.metrics != nil {
			client.metrics.PushFailures.WithLabelValues(client.queueName, "context_canceled").Inc()
		}
		return ctx.Err()
	case errors.Is(err, errShutdown):
		return err
	default:
		client.logger.Error("maximum retry attempts exceeded", "attempts", attempt, "error", err)
		if client.metrics != nil {
			client.metrics.PushFailures.WithLabelValues(client.queueName, "max_retries_exceeded").Inc()
		}
		return fmt.Errorf("%w: %w", errMaxRetriesExceeded, err)
	}
}

// UnsafePush publishes without waiting for a confirmation.
func (client *Client) UnsafePush(ctx context.Context, data []byte) error {
	if !client.ready() {
		return errNotConnected
	}

	return client.channel.PublishWithContext(
		ctx,
		"",               // Exchange
		client.queueName, // Routing key
		false,            // Mandatory
		false,            // Immediate
		amqp.Publishing{
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         data,
		},
	)
}

// Consume delivers queue items on the returned channel, one unacknowledged
// message at a time. Every delivery must be Acked or Nacked.
func (client *Client) Consume() (<-chan amqp.Delivery, error) {
	if !client.ready() {
		return nil, errNotConnected
	}

	if err := client.channel.Qos(
		1,     // prefetchCount
		0,     // prefetchSize
		false, // global
	); err != nil {
		return nil, err
	}

	return client.channel.Consume(
		client.queueName,
		"",    // Consumer
		false, // Auto-Ack
		false, // Exclusive
		false, // No-local
		false, // No-Wait
		nil,   // Args
	)
}

// Close stops reconnecting and shuts down the channel and connection.
func (client *Client) Close() error {
	client.closeOnce.Do(func() { close(client.done) })

	client.m.Lock()
	defer client.m.Unlock()

	if !client.isReady {
		return errAlreadyClosed
	}
	client.isReady = false

	if client.metrics != nil {
		client.metrics.ConnectionStatus.Set(0)
	}

	if err := client.channel.Close(); err != nil {
		return err
	}
	return client.connection.Close()
}
