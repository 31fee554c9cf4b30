package broker

import (
	"context"
	"database/sql"
	"time"

	"github.com/coregx/broker/model"
)

// TopicRepository defines the persistence interface for topics.
type TopicRepository interface {
	// Load retrieves a topic by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Topic, error)

	// Save creates a new topic (ID=0) and returns it with its ID populated.
	Save(ctx context.Context, m model.Topic) (model.Topic, error)

	// List returns all topics ordered by ID.
	List(ctx context.Context) ([]model.Topic, error)
}

// SubscriptionRepository defines the persistence interface for subscriptions.
type SubscriptionRepository interface {
	// Load retrieves a subscription by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Subscription, error)

	// Save creates a new subscription (ID=0) and returns it with its ID populated.
	Save(ctx context.Context, m model.Subscription) (model.Subscription, error)

	// FindByTopic returns the subscriptions of a topic ordered by ID.
	// Returns an empty slice (not ErrNoData) when there are none.
	FindByTopic(ctx context.Context, topicID int64) ([]model.Subscription, error)
}

// Transition describes one conditional update of a single message row.
//
// The update applies only if the row has ID MessageID, belongs to
// SubscriptionID and currently has status From. When NotExpiredAt is set the
// row must also satisfy expires_at > NotExpiredAt. LeaseExpiresAt is written as
// given, so it must be valid exactly when To is StatusLeased.
type Transition struct {
	MessageID      int64
	SubscriptionID int64
	From           model.MessageStatus
	To             model.MessageStatus
	LeaseExpiresAt sql.NullTime
	NotExpiredAt   time.Time
}

// MessageStore is the atomic-operation interface of the delivery engine.
// Every method that mutates touches rows only through a status-conditioned
// update, so concurrent callers never both win the same transition.
//
// Implementations must be safe for concurrent use.
type MessageStore interface {
	// CreateMessages inserts all messages or none.
	CreateMessages(ctx context.Context, messages []model.Message) error

	// TryClaim applies t as one compare-and-set. It returns false, nil when the
	// row is missing, belongs to another subscription, has a different status
	// or is expired. Stores may instead return ErrConflict for a lost race.
	TryClaim(ctx context.Context, t Transition) (bool, error)

	// QueryEligible returns up to limit messages of a subscription with the given
	// status and expires_at > now, oldest first. Returns an empty slice when none match.
	QueryEligible(ctx context.Context, subscriptionID int64, status model.MessageStatus, now time.Time, limit int) ([]model.Message, error)

	// SweepExpiredLeases returns LEASED messages with lease_expires_at <= now to NEW.
	SweepExpiredLeases(ctx context.Context, now time.Time) (int, error)

	// SweepExpiredMessages marks NEW and LEASED messages with expires_at <= now EXPIRED.
	SweepExpiredMessages(ctx context.Context, now time.Time) (int, error)

	// Load retrieves a message by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Message, error)
}

// Repositories bundles the three record families the broker persists.
type Repositories struct {
	Topic        TopicRepository
	Subscription SubscriptionRepository
	Message      MessageStore
}
