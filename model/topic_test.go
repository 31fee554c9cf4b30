package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopic_TableName(t *testing.T) {
	topic := Topic{}
	assert.Equal(t, "pubsub_topic", topic.TableName())
}

func TestNewTopic(t *testing.T) {
	topic := NewTopic("orders", epoch)

	assert.Equal(t, int64(0), topic.ID)
	assert.Equal(t, "orders", topic.Name)
	assert.Equal(t, epoch, topic.CreatedAt)
}
