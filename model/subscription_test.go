package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscription_TableName(t *testing.T) {
	sub := Subscription{}
	assert.Equal(t, "pubsub_subscription", sub.TableName())
}

func TestNewSubscription(t *testing.T) {
	sub := NewSubscription(200, "billing", epoch)

	assert.Equal(t, int64(0), sub.ID)
	assert.Equal(t, int64(200), sub.TopicID)
	assert.Equal(t, "billing", sub.Name)
	assert.Equal(t, epoch, sub.CreatedAt)
}
