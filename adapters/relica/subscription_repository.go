package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/broker"
	"github.com/coregx/broker/model"
	"github.com/coregx/relica"
)

// SubscriptionRepository implements broker.SubscriptionRepository using Relica.
type SubscriptionRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewSubscriptionRepository creates a new SubscriptionRepository with default table prefix.
func NewSubscriptionRepository(sqlDB *sql.DB, driverName string) *SubscriptionRepository {
	return NewSubscriptionRepositoryWithPrefix(sqlDB, driverName, DefaultTablePrefix)
}

// NewSubscriptionRepositoryWithPrefix creates a new SubscriptionRepository with custom table prefix.
func NewSubscriptionRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *SubscriptionRepository {
	return &SubscriptionRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *SubscriptionRepository) tableName() string {
	return r.tablePrefix + "subscription"
}

// Load retrieves a subscription by ID.
func (r *SubscriptionRepository) Load(ctx context.Context, id int64) (model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&sub)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, broker.ErrNoData
	}
	if err != nil {
		return sub, dbError("failed to load subscription", err)
	}
	return sub, nil
}

// Save creates or updates a subscription.
func (r *SubscriptionRepository) Save(ctx context.Context, m model.Subscription) (model.Subscription, error) {
	if m.ID == 0 {
		err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
		if err != nil {
			return m, dbError("failed to insert subscription", err)
		}
		return m, nil
	}
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update()
	if err != nil {
		return m, dbError("failed to update subscription", err)
	}
	return m, nil
}

// FindByTopic returns the subscriptions of a topic ordered by ID.
func (r *SubscriptionRepository) FindByTopic(ctx context.Context, topicID int64) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("topic_id = ?", topicID).
		OrderBy("id ASC").
		All(&subs)
	if err != nil {
		return nil, dbError("failed to find subscriptions by topic", err)
	}
	if subs == nil {
		subs = []model.Subscription{}
	}
	return subs, nil
}
