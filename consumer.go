package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coregx/broker/model"
	"github.com/coregx/broker/retry"
)

// DefaultPollInterval is the pause between polls of an idle consumer.
const DefaultPollInterval = time.Second

// Source is anything a Consumer can pull from and acknowledge to:
// an in-process *Broker or a remote client.
type Source interface {
	Pull(ctx context.Context, req PullRequest) ([]model.Message, error)
	Acknowledge(ctx context.Context, req AckRequest) (*AckResult, error)
}

// Handler processes one delivered message. Returning an error leaves the
// message unacknowledged so it is redelivered once its lease lapses.
type Handler func(ctx context.Context, msg model.Message) error

// Waiter blocks for d or until ctx ends, returning ctx.Err() in the latter case.
type Waiter func(ctx context.Context, d time.Duration) error

// SleepWaiter waits on a timer.
func SleepWaiter(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Consumer polls one subscription, hands each message to a Handler and
// acknowledges the ones handled successfully.
type Consumer struct {
	source         Source
	handler        Handler
	logger         Logger
	subscriptionID int64
	maxBatch       int
	leaseDuration  time.Duration
	interval       time.Duration
	backoff        retry.Strategy
	wait           Waiter
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer) error

// NewConsumer creates a Consumer.
//
// Required options:
//   - WithConsumerSource
//   - WithConsumerSubscription
//   - WithConsumerHandler
//   - WithConsumerLogger
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	c := &Consumer{
		interval: DefaultPollInterval,
		backoff:  retry.DefaultStrategy(),
		wait:     SleepWaiter,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply consumer option", err)
		}
	}

	if c.source == nil {
		return nil, NewError(ErrCodeConfiguration, "Source is required (use WithConsumerSource)")
	}
	if c.subscriptionID <= 0 {
		return nil, NewError(ErrCodeConfiguration, "subscription ID is required (use WithConsumerSubscription)")
	}
	if c.handler == nil {
		return nil, NewError(ErrCodeConfiguration, "Handler is required (use WithConsumerHandler)")
	}
	if c.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithConsumerLogger)")
	}

	return c, nil
}

// WithConsumerSource sets where messages are pulled from.
func WithConsumerSource(source Source) ConsumerOption {
	return func(c *Consumer) error {
		if source == nil {
			return fmt.Errorf("source cannot be nil")
		}
		c.source = source
		return nil
	}
}

// WithConsumerSubscription sets the subscription to poll.
func WithConsumerSubscription(id int64) ConsumerOption {
	return func(c *Consumer) error {
		if id <= 0 {
			return fmt.Errorf("subscription ID must be > 0, got %d", id)
		}
		c.subscriptionID = id
		return nil
	}
}

// WithConsumerHandler sets the per-message handler.
func WithConsumerHandler(handler Handler) ConsumerOption {
	return func(c *Consumer) error {
		if handler == nil {
			return fmt.Errorf("handler cannot be nil")
		}
		c.handler = handler
		return nil
	}
}

// WithConsumerLogger sets the logger instance.
func WithConsumerLogger(logger Logger) ConsumerOption {
	return func(c *Consumer) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithConsumerBatch sets the pull batch size and lease. Zero values fall
// back to the source's defaults.
func WithConsumerBatch(maxBatch int, lease time.Duration) ConsumerOption {
	return func(c *Consumer) error {
		if maxBatch < 0 || lease < 0 {
			return fmt.Errorf("batch and lease must be >= 0")
		}
		c.maxBatch = maxBatch
		c.leaseDuration = lease
		return nil
	}
}

// WithConsumerInterval sets the pause between polls.
func WithConsumerInterval(d time.Duration) ConsumerOption {
	return func(c *Consumer) error {
		if d <= 0 {
			return fmt.Errorf("poll interval must be > 0, got %v", d)
		}
		c.interval = d
		return nil
	}
}

// WithConsumerBackoff sets the backoff applied after failed polls.
func WithConsumerBackoff(strategy retry.Strategy) ConsumerOption {
	return func(c *Consumer) error {
		if strategy.BaseDelay <= 0 || strategy.MaxDelay < strategy.BaseDelay {
			return fmt.Errorf("invalid backoff: base=%v max=%v", strategy.BaseDelay, strategy.MaxDelay)
		}
		c.backoff = strategy
		return nil
	}
}

// WithConsumerWaiter replaces the timer-based wait between polls.
func WithConsumerWaiter(wait Waiter) ConsumerOption {
	return func(c *Consumer) error {
		if wait == nil {
			return fmt.Errorf("waiter cannot be nil")
		}
		c.wait = wait
		return nil
	}
}

// Poll runs one pull → handle → acknowledge cycle and returns the number of
// messages acknowledged. Handler failures are logged and not returned.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	messages, err := c.source.Pull(ctx, PullRequest{
		SubscriptionID: c.subscriptionID,
		MaxBatch:       c.maxBatch,
		LeaseDuration:  c.leaseDuration,
	})
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}

	handled := make([]int64, 0, len(messages))
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := c.handler(ctx, msg); err != nil {
			c.logger.Warnf("Handler failed for message %d (subscription=%d, delivery=%d): %v",
				msg.ID, c.subscriptionID, msg.DeliveryCount, err)
			continue
		}
		handled = append(handled, msg.ID)
	}
	if len(handled) == 0 {
		return 0, nil
	}

	// Acknowledge even if ctx ended mid-batch; the handled work is done.
	result, err := c.source.Acknowledge(context.WithoutCancel(ctx), AckRequest{
		SubscriptionID: c.subscriptionID,
		MessageIDs:     handled,
	})
	if err != nil {
		acked := 0
		if result != nil {
			acked = result.Acked
		}
		return acked, err
	}
	if result.Acked < len(handled) {
		c.logger.Warnf("Only %d/%d handled messages acknowledged on subscription=%d (leases lapsed)",
			result.Acked, len(handled), c.subscriptionID)
	}
	return result.Acked, nil
}

// Run polls until ctx is canceled, pausing the poll interval between cycles
// and backing off after consecutive failures. NOT_FOUND and INVALID_ARGUMENT
// are permanent and end the loop.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Infof("Consumer started (subscription=%d, interval=%v)", c.subscriptionID, c.interval)

	failures := 0
	for {
		if ctx.Err() != nil {
			c.logger.Infof("Consumer stopped (subscription=%d)", c.subscriptionID)
			return nil
		}

		delay := c.interval
		_, err := c.Poll(ctx)
		switch {
		case err == nil:
			failures = 0
		case ctx.Err() != nil:
			c.logger.Infof("Consumer stopped (subscription=%d)", c.subscriptionID)
			return nil
		case IsNotFound(err) || IsInvalidArgument(err):
			return err
		default:
			failures++
			if !c.backoff.IsRetryable(failures) {
				return fmt.Errorf("consumer giving up after %d failures: %w", failures, err)
			}
			delay = c.backoff.CalculateRetryDelay(failures - 1)
			c.logger.Errorf("Poll failed (attempt %d), retrying in %v: %v", failures, delay, err)
		}

		if err := c.wait(ctx, delay); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Infof("Consumer stopped (subscription=%d)", c.subscriptionID)
				return nil
			}
			return err
		}
	}
}
