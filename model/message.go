package model

import (
	"database/sql"
	"time"
)

// DefaultTTL is the absolute lifetime given to a message when the publisher does not set one.
const DefaultTTL = 24 * time.Hour

// Message is one subscription's copy of a published payload.
//
// Messages follow this lifecycle:
//  1. Created by fanout with status=NEW
//  2. Pulled → LEASED until LeaseExpiresAt
//  3. Acknowledged → ACKED (terminal), or lease lapses → back to NEW
//  4. Past ExpiresAt without acknowledgment → EXPIRED (terminal)
//
// LeaseExpiresAt is valid if and only if Status is StatusLeased.
type Message struct {
	ID             int64         `json:"id" db:"id"`
	SubscriptionID int64         `json:"subscriptionID" db:"subscription_id"`
	Payload        string        `json:"payload" db:"payload"`
	Status         MessageStatus `json:"status" db:"status"`
	ExpiresAt      time.Time     `json:"expiresAt" db:"expires_at"`
	LeaseExpiresAt sql.NullTime  `json:"leaseExpiresAt" db:"lease_expires_at"`
	DeliveryCount  int           `json:"deliveryCount" db:"delivery_count"`
	CreatedAt      time.Time     `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for Message.
func (m Message) TableName() string {
	return tablePrefix + "message"
}

// NewMessage creates a NEW copy of payload for one subscription.
// A non-positive ttl falls back to DefaultTTL.
func NewMessage(subscriptionID int64, payload string, now time.Time, ttl time.Duration) Message {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Message{
		SubscriptionID: subscriptionID,
		Payload:        payload,
		Status:         StatusNew,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
	}
}

// IsExpired reports whether the absolute deadline has passed at now.
func (m *Message) IsExpired(now time.Time) bool {
	return !m.ExpiresAt.After(now)
}

// IsDeliverable reports whether a pull at now may return the message.
func (m *Message) IsDeliverable(now time.Time) bool {
	return m.Status == StatusNew && !m.IsExpired(now)
}

// IsLeaseExpired reports whether a held lease has lapsed at now.
func (m *Message) IsLeaseExpired(now time.Time) bool {
	return m.Status == StatusLeased && m.LeaseExpiresAt.Valid && !m.LeaseExpiresAt.Time.After(now)
}

// Lease moves NEW → LEASED and bounds the claim to now+d.
func (m *Message) Lease(now time.Time, d time.Duration) error {
	if d <= 0 {
		return ErrInvalidLease
	}
	if m.IsExpired(now) {
		return ErrMessageExpired
	}
	if err := m.transition(StatusLeased); err != nil {
		return err
	}
	m.LeaseExpiresAt = sql.NullTime{Time: now.Add(d), Valid: true}
	m.DeliveryCount++
	return nil
}

// Release moves LEASED → NEW after a lapsed lease.
func (m *Message) Release() error {
	if m.Status != StatusLeased {
		return ErrInvalidTransition
	}
	return m.transition(StatusNew)
}

// Acknowledge moves LEASED → ACKED.
func (m *Message) Acknowledge() error {
	return m.transition(StatusAcked)
}

// Expire moves NEW or LEASED → EXPIRED.
func (m *Message) Expire() error {
	return m.transition(StatusExpired)
}

func (m *Message) transition(to MessageStatus) error {
	if !CanTransition(m.Status, to) {
		return ErrInvalidTransition
	}
	m.Status = to
	if to != StatusLeased {
		m.LeaseExpiresAt = sql.NullTime{}
	}
	return nil
}
