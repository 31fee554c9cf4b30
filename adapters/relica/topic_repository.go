// Package relica provides Relica ORM implementations for broker repositories.
//
//nolint:dupl // Repository pattern requires similar implementations for different types
package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/broker"
	"github.com/coregx/broker/model"
	"github.com/coregx/relica"
)

// TopicRepository implements broker.TopicRepository using Relica ORM.
type TopicRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewTopicRepository creates a new TopicRepository with default table prefix.
func NewTopicRepository(sqlDB *sql.DB, driverName string) *TopicRepository {
	return NewTopicRepositoryWithPrefix(sqlDB, driverName, DefaultTablePrefix)
}

// NewTopicRepositoryWithPrefix creates a new TopicRepository with custom table prefix.
func NewTopicRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *TopicRepository {
	return &TopicRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *TopicRepository) tableName() string {
	return r.tablePrefix + "topic"
}

// Load retrieves a topic by ID.
func (r *TopicRepository) Load(ctx context.Context, id int64) (model.Topic, error) {
	var topic model.Topic
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&topic)
	if errors.Is(err, sql.ErrNoRows) {
		return topic, broker.ErrNoData
	}
	if err != nil {
		return topic, dbError("failed to load topic", err)
	}
	return topic, nil
}

// Save creates a topic. Topics are immutable, so an existing ID is rewritten
// only to keep Save symmetric with the other repositories.
func (r *TopicRepository) Save(ctx context.Context, m model.Topic) (model.Topic, error) {
	if m.ID == 0 {
		// Insert using Model() API
		err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
		if err != nil {
			return m, dbError("failed to insert topic", err)
		}
		return m, nil
	}

	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update()
	if err != nil {
		return m, dbError("failed to update topic", err)
	}
	return m, nil
}

// List returns all topics ordered by ID.
func (r *TopicRepository) List(ctx context.Context) ([]model.Topic, error) {
	var topics []model.Topic
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		OrderBy("id ASC").
		All(&topics)
	if err != nil {
		return nil, dbError("failed to list topics", err)
	}
	if topics == nil {
		topics = []model.Topic{}
	}
	return topics, nil
}
