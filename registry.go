package broker

import (
	"context"
	"fmt"
	"strings"

	"github.com/coregx/broker/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Registry creates and lists topics and subscriptions.
//
// Thread safety: Safe for concurrent use.
type Registry struct {
	topicRepo        TopicRepository
	subscriptionRepo SubscriptionRepository
	logger           Logger
	clock            Clock
	notifications    NotificationService
}

// RegistryOption is a function that configures a Registry.
type RegistryOption func(*Registry) error

// NewRegistry creates a new Registry with the provided options.
//
// Required options:
//   - WithRegistryRepositories: topic and subscription repositories
//   - WithRegistryLogger: logger instance
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		clock:         SystemClock{},
		notifications: &NoOpNotificationService{},
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply registry option", err)
		}
	}

	if r.topicRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "TopicRepository is required")
	}
	if r.subscriptionRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionRepository is required")
	}
	if r.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required")
	}

	return r, nil
}

// WithRegistryRepositories sets the required repository dependencies.
func WithRegistryRepositories(topicRepo TopicRepository, subscriptionRepo SubscriptionRepository) RegistryOption {
	return func(r *Registry) error {
		if topicRepo == nil {
			return fmt.Errorf("topicRepo cannot be nil")
		}
		if subscriptionRepo == nil {
			return fmt.Errorf("subscriptionRepo cannot be nil")
		}
		r.topicRepo = topicRepo
		r.subscriptionRepo = subscriptionRepo
		return nil
	}
}

// WithRegistryLogger sets the logger instance.
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *Registry) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// WithRegistryClock overrides the wall clock used for CreatedAt.
func WithRegistryClock(clock Clock) RegistryOption {
	return func(r *Registry) error {
		if clock == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		r.clock = clock
		return nil
	}
}

// WithRegistryNotifications sets the service told about new subscriptions.
func WithRegistryNotifications(service NotificationService) RegistryOption {
	return func(r *Registry) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		r.notifications = service
		return nil
	}
}

// CreateTopicRequest represents a request to register a topic.
type CreateTopicRequest struct {
	Name string
}

// Validate checks the request shape.
func (r CreateTopicRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
	)
}

// CreateSubscriptionRequest represents a request to subscribe to a topic.
type CreateSubscriptionRequest struct {
	TopicID int64
	Name    string // optional label
}

// Validate checks the request shape.
func (r CreateSubscriptionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TopicID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Name, validation.Length(0, 255)),
	)
}

// CreateTopic registers a topic. Topic names need not be unique.
func (r *Registry) CreateTopic(ctx context.Context, req CreateTopicRequest) (*model.Topic, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeInvalidArgument, "invalid topic", err)
	}

	topic, err := r.topicRepo.Save(ctx, model.NewTopic(req.Name, r.clock.Now()))
	if err != nil {
		return nil, storeError("failed to save topic", err)
	}

	r.logger.Infof("Topic created: id=%d, name=%s", topic.ID, topic.Name)
	return &topic, nil
}

// GetTopic retrieves a topic by ID.
func (r *Registry) GetTopic(ctx context.Context, topicID int64) (*model.Topic, error) {
	topic, err := r.topicRepo.Load(ctx, topicID)
	if err != nil {
		if IsNoData(err) {
			return nil, NewErrorWithCause(ErrCodeNotFound, fmt.Sprintf("topic not found: %d", topicID), err)
		}
		return nil, storeError("failed to load topic", err)
	}
	return &topic, nil
}

// ListTopics returns every topic. Returns an empty slice when there are none.
func (r *Registry) ListTopics(ctx context.Context) ([]model.Topic, error) {
	topics, err := r.topicRepo.List(ctx)
	if err != nil {
		if IsNoData(err) {
			return []model.Topic{}, nil
		}
		return nil, storeError("failed to list topics", err)
	}
	return topics, nil
}

// CreateSubscription subscribes a new consumer to a topic.
// The subscription only receives messages published after it exists.
func (r *Registry) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*model.Subscription, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeInvalidArgument, "invalid subscription", err)
	}

	topic, err := r.GetTopic(ctx, req.TopicID)
	if err != nil {
		return nil, err
	}

	sub, err := r.subscriptionRepo.Save(ctx, model.NewSubscription(topic.ID, req.Name, r.clock.Now()))
	if err != nil {
		return nil, storeError("failed to save subscription", err)
	}

	if nerr := r.notifications.NotifySubscriptionCreated(ctx, sub); nerr != nil {
		r.logger.Warnf("Failed to send subscription notification: %v", nerr)
	}

	r.logger.Infof("Subscription created: id=%d, topic=%d", sub.ID, topic.ID)
	return &sub, nil
}

// GetSubscription retrieves a single subscription by ID.
func (r *Registry) GetSubscription(ctx context.Context, subscriptionID int64) (*model.Subscription, error) {
	sub, err := r.subscriptionRepo.Load(ctx, subscriptionID)
	if err != nil {
		if IsNoData(err) {
			return nil, NewErrorWithCause(ErrCodeNotFound, fmt.Sprintf("subscription not found: %d", subscriptionID), err)
		}
		return nil, storeError("failed to load subscription", err)
	}
	return &sub, nil
}

// ListSubscriptions returns the subscriptions of a topic.
// Fails with NOT_FOUND if the topic does not exist.
func (r *Registry) ListSubscriptions(ctx context.Context, topicID int64) ([]model.Subscription, error) {
	if _, err := r.GetTopic(ctx, topicID); err != nil {
		return nil, err
	}

	subs, err := r.subscriptionRepo.FindByTopic(ctx, topicID)
	if err != nil {
		if IsNoData(err) {
			return []model.Subscription{}, nil
		}
		return nil, storeError("failed to list subscriptions", err)
	}
	if subs == nil {
		subs = []model.Subscription{}
	}
	return subs, nil
}
