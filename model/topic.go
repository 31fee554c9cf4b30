package model

import "time"

// Topic is a named channel producers publish to.
// Topics are immutable after registration and never deleted.
type Topic struct {
	ID        int64     `json:"id" db:"id"`                // Unique topic ID
	Name      string    `json:"name" db:"name"`            // Non-empty topic name (e.g., "orders")
	CreatedAt time.Time `json:"createdAt" db:"created_at"` // Registration time
}

// TableName returns the database table name for Topic.
func (t Topic) TableName() string {
	return tablePrefix + "topic"
}

// NewTopic creates a topic ready to be saved.
func NewTopic(name string, now time.Time) Topic {
	return Topic{
		Name:      name,
		CreatedAt: now,
	}
}
