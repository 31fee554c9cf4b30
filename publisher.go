package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/coregx/broker/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxPayloadSize bounds the payload accepted by Publish.
const MaxPayloadSize = 256 * 1024

// Publisher fans a published payload out into one message per subscription.
type Publisher struct {
	topicRepo        TopicRepository
	subscriptionRepo SubscriptionRepository
	store            MessageStore
	logger           Logger
	clock            Clock
	notifications    NotificationService
	defaultTTL       time.Duration
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher) error

// NewPublisher creates a new Publisher with the provided options.
//
// Required options:
//   - WithPublisherRepositories: topic, subscription and message repositories
//   - WithPublisherLogger: logger instance
//
// Example:
//
//	publisher, err := broker.NewPublisher(
//	    broker.WithPublisherRepositories(repos.Topic, repos.Subscription, repos.Message),
//	    broker.WithPublisherLogger(logger),
//	)
func NewPublisher(opts ...PublisherOption) (*Publisher, error) {
	p := &Publisher{
		clock:         SystemClock{},
		notifications: &NoOpNotificationService{},
		defaultTTL:    model.DefaultTTL,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply publisher option", err)
		}
	}

	if p.topicRepo == nil || p.subscriptionRepo == nil || p.store == nil {
		return nil, NewError(ErrCodeConfiguration, "repositories are required (use WithPublisherRepositories)")
	}
	if p.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithPublisherLogger)")
	}

	return p, nil
}

// WithPublisherRepositories sets the required repository dependencies.
func WithPublisherRepositories(
	topicRepo TopicRepository,
	subscriptionRepo SubscriptionRepository,
	store MessageStore,
) PublisherOption {
	return func(p *Publisher) error {
		if topicRepo == nil {
			return fmt.Errorf("topicRepo cannot be nil")
		}
		if subscriptionRepo == nil {
			return fmt.Errorf("subscriptionRepo cannot be nil")
		}
		if store == nil {
			return fmt.Errorf("message store cannot be nil")
		}

		p.topicRepo = topicRepo
		p.subscriptionRepo = subscriptionRepo
		p.store = store
		return nil
	}
}

// WithPublisherLogger sets the logger instance.
func WithPublisherLogger(logger Logger) PublisherOption {
	return func(p *Publisher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// WithPublisherClock overrides the wall clock.
func WithPublisherClock(clock Clock) PublisherOption {
	return func(p *Publisher) error {
		if clock == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		p.clock = clock
		return nil
	}
}

// WithPublisherDefaultTTL sets the lifetime used when a request carries no TTL.
func WithPublisherDefaultTTL(ttl time.Duration) PublisherOption {
	return func(p *Publisher) error {
		if ttl <= 0 {
			return fmt.Errorf("default TTL must be > 0, got %v", ttl)
		}
		p.defaultTTL = ttl
		return nil
	}
}

// WithPublisherNotifications sets the notification service told about
// publishes that found no subscribers.
func WithPublisherNotifications(service NotificationService) PublisherOption {
	return func(p *Publisher) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		p.notifications = service
		return nil
	}
}

// PublishRequest represents a request to publish a message.
type PublishRequest struct {
	TopicID int64         // Topic to publish to
	Payload string        // Opaque message payload
	TTL     time.Duration // Absolute lifetime; zero means the publisher default
}

// Validate checks the request shape.
func (r PublishRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TopicID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Payload, validation.Length(0, MaxPayloadSize)),
		validation.Field(&r.TTL, validation.Min(time.Duration(0))),
	)
}

// PublishResult represents the result of a publish operation.
type PublishResult struct {
	PublishedCount  int     // Number of message copies created
	SubscriptionIDs []int64 // Subscriptions that received a copy
}

// Publish creates one NEW message per subscription the topic has right now.
//
// Errors:
//   - INVALID_ARGUMENT: malformed request
//   - NOT_FOUND: topic does not exist
//   - NO_SUBSCRIBERS: topic has no subscriptions; nothing is written
//   - STORE_UNAVAILABLE: the store failed; nothing is written
//
// The copies are created in one CreateMessages call, so either every
// subscription receives the message or none does.
func (p *Publisher) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeInvalidArgument, "invalid publish request", err)
	}

	topic, err := p.topicRepo.Load(ctx, req.TopicID)
	if err != nil {
		if IsNoData(err) {
			return nil, NewErrorWithCause(ErrCodeNotFound, fmt.Sprintf("topic not found: %d", req.TopicID), err)
		}
		return nil, storeError("failed to load topic", err)
	}

	subscriptions, err := p.subscriptionRepo.FindByTopic(ctx, topic.ID)
	if err != nil && !IsNoData(err) {
		return nil, storeError("failed to load subscriptions", err)
	}

	if len(subscriptions) == 0 {
		p.logger.Warnf("No subscriptions for topic=%d (%s), message dropped", topic.ID, topic.Name)
		if nerr := p.notifications.NotifyNoSubscribers(ctx, topic); nerr != nil {
			p.logger.Warnf("Failed to send no-subscribers notification: %v", nerr)
		}
		return nil, NewError(ErrCodeNoSubscribers, fmt.Sprintf("topic %d has no subscriptions", topic.ID))
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = p.defaultTTL
	}
	now := p.clock.Now()

	messages := make([]model.Message, 0, len(subscriptions))
	subscriptionIDs := make([]int64, 0, len(subscriptions))
	for _, sub := range subscriptions {
		messages = append(messages, model.NewMessage(sub.ID, req.Payload, now, ttl))
		subscriptionIDs = append(subscriptionIDs, sub.ID)
	}

	if err := p.store.CreateMessages(ctx, messages); err != nil {
		return nil, storeError("failed to create messages", err)
	}

	p.logger.Infof("Published to topic=%d: %d copies, expires_at=%s",
		topic.ID, len(messages), now.Add(ttl).Format(time.RFC3339))

	return &PublishResult{
		PublishedCount:  len(messages),
		SubscriptionIDs: subscriptionIDs,
	}, nil
}

// PublishBatch publishes each request independently.
// Failed requests are logged and skipped; results hold only the successes.
func (p *Publisher) PublishBatch(ctx context.Context, requests []PublishRequest) ([]*PublishResult, error) {
	results := make([]*PublishResult, 0, len(requests))

	for _, req := range requests {
		result, err := p.Publish(ctx, req)
		if err != nil {
			p.logger.Errorf("Failed to publish message (topic=%d): %v", req.TopicID, err)
			continue
		}
		results = append(results, result)
	}

	return results, nil
}
