package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/coregx/broker/model"
)

// Broker wires the registry, publisher, lease manager, acknowledger and reaper
// over one set of repositories. It is what transports (HTTP handlers,
// in-process consumers) talk to.
//
// Thread safety: Safe for concurrent use.
type Broker struct {
	repos         *Repositories
	logger        Logger
	clock         Clock
	notifications NotificationService

	messageTTL    time.Duration
	leaseDuration time.Duration
	pullBatch     int
	sweepInterval time.Duration
	newTicker     func(time.Duration) Ticker

	registry     *Registry
	publisher    *Publisher
	leases       *LeaseManager
	acknowledger *Acknowledger
	reaper       *Reaper
}

// Option configures a Broker.
type Option func(*Broker) error

// New creates a Broker.
//
// Required options:
//   - WithRepositories
//
// The logger defaults to NoopLogger and the clock to SystemClock.
//
// Example:
//
//	repos := memory.NewRepositories()
//	b, err := broker.New(
//	    broker.WithRepositories(repos),
//	    broker.WithLogger(logger),
//	)
func New(opts ...Option) (*Broker, error) {
	b := &Broker{
		logger:        &NoopLogger{},
		clock:         SystemClock{},
		notifications: &NoOpNotificationService{},
		messageTTL:    model.DefaultTTL,
		leaseDuration: DefaultLeaseDuration,
		pullBatch:     DefaultPullBatch,
		sweepInterval: DefaultReaperInterval,
		newTicker:     NewTimeTicker,
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply broker option", err)
		}
	}

	if b.repos == nil {
		return nil, NewError(ErrCodeConfiguration, "repositories are required (use WithRepositories)")
	}

	var err error
	if b.registry, err = NewRegistry(
		WithRegistryRepositories(b.repos.Topic, b.repos.Subscription),
		WithRegistryLogger(b.logger),
		WithRegistryClock(b.clock),
		WithRegistryNotifications(b.notifications),
	); err != nil {
		return nil, err
	}

	if b.publisher, err = NewPublisher(
		WithPublisherRepositories(b.repos.Topic, b.repos.Subscription, b.repos.Message),
		WithPublisherLogger(b.logger),
		WithPublisherClock(b.clock),
		WithPublisherDefaultTTL(b.messageTTL),
		WithPublisherNotifications(b.notifications),
	); err != nil {
		return nil, err
	}

	if b.leases, err = NewLeaseManager(
		WithLeaseRepositories(b.repos.Subscription, b.repos.Message),
		WithLeaseLogger(b.logger),
		WithLeaseClock(b.clock),
		WithDefaultLeaseDuration(b.leaseDuration),
		WithDefaultPullBatch(b.pullBatch),
	); err != nil {
		return nil, err
	}

	if b.acknowledger, err = NewAcknowledger(
		WithAckRepositories(b.repos.Subscription, b.repos.Message),
		WithAckLogger(b.logger),
	); err != nil {
		return nil, err
	}

	if b.reaper, err = NewReaper(
		WithReaperStore(b.repos.Message),
		WithReaperLogger(b.logger),
		WithReaperClock(b.clock),
		WithReaperInterval(b.sweepInterval),
		WithReaperNotifications(b.notifications),
		WithReaperTicker(b.newTicker),
	); err != nil {
		return nil, err
	}

	return b, nil
}

// WithRepositories sets the topic, subscription and message stores.
func WithRepositories(repos *Repositories) Option {
	return func(b *Broker) error {
		if repos == nil || repos.Topic == nil || repos.Subscription == nil || repos.Message == nil {
			return fmt.Errorf("repositories cannot be nil")
		}
		b.repos = repos
		return nil
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger Logger) Option {
	return func(b *Broker) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		b.logger = logger
		return nil
	}
}

// WithClock sets the clock shared by every component.
func WithClock(clock Clock) Option {
	return func(b *Broker) error {
		if clock == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		b.clock = clock
		return nil
	}
}

// WithNotifications sets the notification service shared by every component.
func WithNotifications(service NotificationService) Option {
	return func(b *Broker) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		b.notifications = service
		return nil
	}
}

// WithMessageTTL sets the expiry applied to publishes that give none.
func WithMessageTTL(ttl time.Duration) Option {
	return func(b *Broker) error {
		if ttl <= 0 {
			return fmt.Errorf("message TTL must be > 0, got %v", ttl)
		}
		b.messageTTL = ttl
		return nil
	}
}

// WithLeaseDuration sets the lease applied to pulls that give none.
func WithLeaseDuration(d time.Duration) Option {
	return func(b *Broker) error {
		if d <= 0 {
			return fmt.Errorf("lease duration must be > 0, got %v", d)
		}
		b.leaseDuration = d
		return nil
	}
}

// WithPullBatch sets the batch size applied to pulls that give none.
func WithPullBatch(n int) Option {
	return func(b *Broker) error {
		if n <= 0 || n > MaxPullBatch {
			return fmt.Errorf("pull batch must be in 1..%d, got %d", MaxPullBatch, n)
		}
		b.pullBatch = n
		return nil
	}
}

// WithSweepInterval sets the reaper period.
func WithSweepInterval(d time.Duration) Option {
	return func(b *Broker) error {
		if d <= 0 {
			return fmt.Errorf("sweep interval must be > 0, got %v", d)
		}
		b.sweepInterval = d
		return nil
	}
}

// WithTicker replaces the reaper's ticker factory.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(b *Broker) error {
		if newTicker == nil {
			return fmt.Errorf("ticker factory cannot be nil")
		}
		b.newTicker = newTicker
		return nil
	}
}

// CreateTopic registers a topic.
func (b *Broker) CreateTopic(ctx context.Context, name string) (*model.Topic, error) {
	return b.registry.CreateTopic(ctx, CreateTopicRequest{Name: name})
}

// GetTopic retrieves a topic.
func (b *Broker) GetTopic(ctx context.Context, topicID int64) (*model.Topic, error) {
	return b.registry.GetTopic(ctx, topicID)
}

// ListTopics returns every topic.
func (b *Broker) ListTopics(ctx context.Context) ([]model.Topic, error) {
	return b.registry.ListTopics(ctx)
}

// CreateSubscription subscribes to a topic.
func (b *Broker) CreateSubscription(ctx context.Context, topicID int64, name string) (*model.Subscription, error) {
	return b.registry.CreateSubscription(ctx, CreateSubscriptionRequest{TopicID: topicID, Name: name})
}

// GetSubscription retrieves a subscription.
func (b *Broker) GetSubscription(ctx context.Context, subscriptionID int64) (*model.Subscription, error) {
	return b.registry.GetSubscription(ctx, subscriptionID)
}

// ListSubscriptions returns the subscriptions of a topic.
func (b *Broker) ListSubscriptions(ctx context.Context, topicID int64) ([]model.Subscription, error) {
	return b.registry.ListSubscriptions(ctx, topicID)
}

// Publish fans a payload out to every current subscription of a topic.
func (b *Broker) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	return b.publisher.Publish(ctx, req)
}

// Pull leases messages of a subscription.
func (b *Broker) Pull(ctx context.Context, req PullRequest) ([]model.Message, error) {
	return b.leases.Pull(ctx, req)
}

// Acknowledge finalizes leased messages of a subscription.
func (b *Broker) Acknowledge(ctx context.Context, req AckRequest) (*AckResult, error) {
	return b.acknowledger.Acknowledge(ctx, req)
}

// Sweep runs one reaper pass immediately.
func (b *Broker) Sweep(ctx context.Context) (SweepResult, error) {
	return b.reaper.Sweep(ctx)
}

// Reaper returns the broker's reaper, e.g. to run it in an errgroup.
func (b *Broker) Reaper() *Reaper {
	return b.reaper
}

// Message retrieves a message by ID for inspection.
func (b *Broker) Message(ctx context.Context, id int64) (*model.Message, error) {
	msg, err := b.repos.Message.Load(ctx, id)
	if err != nil {
		if IsNoData(err) {
			return nil, NewErrorWithCause(ErrCodeNotFound, fmt.Sprintf("message not found: %d", id), err)
		}
		return nil, storeError("failed to load message", err)
	}
	return &msg, nil
}

// Ping checks that the store answers.
func (b *Broker) Ping(ctx context.Context) error {
	if _, err := b.repos.Topic.List(ctx); err != nil && !IsNoData(err) {
		return storeError("store ping failed", err)
	}
	return nil
}

var _ Source = (*Broker)(nil)
