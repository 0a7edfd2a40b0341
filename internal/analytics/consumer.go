package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/hardwater/pkg/metrics"
	"procodus.dev/hardwater/pkg/mq"
)

// ConsumerConfig holds the configuration for the AlertConsumer.
type ConsumerConfig struct {
	Logger  *slog.Logger
	Client  mq.ClientInterface
	Monitor *Monitor

	// Queue labels the consumer metrics.
	Queue string

	// Metrics is optional.
	Metrics *metrics.MQMetrics
}

// AlertConsumer consumes reading events and raises contamination alerts.
type AlertConsumer struct {
	logger  *slog.Logger
	client  mq.ClientInterface
	monitor *Monitor
	queue   string
	metrics *metrics.MQMetrics

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewConsumer creates a new AlertConsumer.
func NewConsumer(cfg *ConsumerConfig) (*AlertConsumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Client == nil {
		return nil, errors.New("mq client cannot be nil")
	}

	if cfg.Monitor == nil {
		return nil, errors.New("monitor cannot be nil")
	}

	return &AlertConsumer{
		logger:  cfg.Logger,
		client:  cfg.Client,
		monitor: cfg.Monitor,
		queue:   cfg.Queue,
		metrics: cfg.Metrics,
		done:    make(chan struct{}),
	}, nil
}

// Start begins consuming in the background. Subscribing is retried until the
// queue connection is ready or ctx ends, and again whenever the delivery
// channel closes.
func (c *AlertConsumer) Start(ctx context.Context) {
	c.logger.Info("starting alert consumer")

	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

func (c *AlertConsumer) run(ctx context.Context) {
	defer close(c.done)

	for {
		deliveries, err := c.subscribe(ctx)
		if err != nil {
			c.logger.Info("alert consumer stopped before subscribing", "error", err)
			return
		}

		c.logger.Info("alert consumer started, waiting for reading events")
		if !c.processMessages(ctx, deliveries) {
			return
		}

		c.logger.Warn("deliveries channel closed, subscribing again")
		if c.metrics != nil {
			c.metrics.Resubscriptions.WithLabelValues(c.queue).Inc()
		}
	}
}

func (c *AlertConsumer) subscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery
	operation := func() error {
		d, err := c.client.Consume()
		if err != nil {
			c.logger.Debug("queue not ready for consuming", "error", err)
			return err
		}
		deliveries = d
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return deliveries, nil
}

// processMessages handles deliveries until ctx ends or the channel closes. It
// reports whether the channel closed while ctx was still live.
func (c *AlertConsumer) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping message processing")
			return false

		case delivery, ok := <-deliveries:
			if !ok {
				return ctx.Err() == nil
			}

			c.handleDelivery(delivery)
		}
	}
}

func (c *AlertConsumer) handleDelivery(delivery amqp.Delivery) {
	if c.metrics != nil {
		timer := prometheus.NewTimer(c.metrics.ConsumeDuration.WithLabelValues(c.queue))
		defer timer.ObserveDuration()
	}

	event, err := mq.DecodeReadingEvent(delivery)
	if err != nil {
		c.logger.Error("failed to decode reading event", "error", err)
		c.fail("decode")
		// Undecodable events would fail again.
		if ackErr := delivery.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack message", "error", ackErr)
			c.fail("ack")
		}
		return
	}

	area := event.Area.Display()
	if alerts := c.monitor.Observe(area, event.Reading); len(alerts) > 0 {
		c.logger.Warn("contamination alert",
			"area", area,
			"key", event.Key,
			"alerts", strings.Join(alerts, " | "),
		)
	} else {
		c.logger.Debug("reading within limits", "area", area, "key", event.Key)
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "error", err)
		c.fail("ack")
		return
	}

	if c.metrics != nil {
		c.metrics.MessagesConsumed.WithLabelValues(c.queue).Inc()
	}
}

func (c *AlertConsumer) fail(reason string) {
	if c.metrics != nil {
		c.metrics.ConsumptionFailures.WithLabelValues(c.queue, reason).Inc()
	}
}

// Stop ends consumption and closes the queue client.
func (c *AlertConsumer) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		c.logger.Info("stopping alert consumer")

		if c.cancel != nil {
			c.cancel()
			<-c.done
		}

		if closeErr := c.client.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close mq client: %w", closeErr)
			return
		}

		c.logger.Info("alert consumer stopped")
	})
	return err
}
