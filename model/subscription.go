package model

import "time"

// Subscription is one consumer's attachment to a topic.
//
// Fanout only reaches subscriptions that exist when a message is published;
// a subscription created later never sees earlier messages.
type Subscription struct {
	ID        int64     `json:"id" db:"id"`                // Unique subscription ID
	TopicID   int64     `json:"topicID" db:"topic_id"`     // Topic being subscribed to
	Name      string    `json:"name" db:"name"`            // Optional consumer label
	CreatedAt time.Time `json:"createdAt" db:"created_at"` // Subscription creation time
}

// TableName returns the database table name for Subscription.
func (s Subscription) TableName() string {
	return tablePrefix + "subscription"
}

// NewSubscription creates a subscription ready to be saved.
func NewSubscription(topicID int64, name string, now time.Time) Subscription {
	return Subscription{
		TopicID:   topicID,
		Name:      name,
		CreatedAt: now,
	}
}
