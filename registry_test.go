package broker_test

import (
	"context"
	"strings"
	"testing"

	"github.com/coregx/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Topics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	empty, err := f.broker.ListTopics(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	topic, err := f.broker.CreateTopic(ctx, "  orders  ")
	require.NoError(t, err)
	assert.Equal(t, "orders", topic.Name)
	assert.Equal(t, epoch, topic.CreatedAt)

	_, err = f.broker.CreateTopic(ctx, "invoices")
	require.NoError(t, err)

	loaded, err := f.broker.GetTopic(ctx, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, *topic, *loaded)

	all, err := f.broker.ListTopics(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "orders", all[0].Name)
	assert.Equal(t, "invoices", all[1].Name)

	_, err = f.broker.GetTopic(ctx, 404)
	assert.True(t, broker.IsNotFound(err))
	assert.True(t, broker.IsNoData(err), "NOT_FOUND keeps the repository cause")
}

func TestRegistry_CreateTopicValidation(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"", "   ", strings.Repeat("x", 256)} {
		_, err := f.broker.CreateTopic(context.Background(), name)
		assert.True(t, broker.IsInvalidArgument(err), "name %q", name)
	}
}

func TestRegistry_Subscriptions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	topic := f.topic(t, "orders")

	none, err := f.broker.ListSubscriptions(ctx, topic.ID)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	sub, err := f.broker.CreateSubscription(ctx, topic.ID, "billing")
	require.NoError(t, err)
	assert.Equal(t, topic.ID, sub.TopicID)
	assert.Equal(t, "billing", sub.Name)
	assert.Equal(t, int64(1), f.notifier.created.Load())

	anon, err := f.broker.CreateSubscription(ctx, topic.ID, "")
	require.NoError(t, err)

	subs, err := f.broker.ListSubscriptions(ctx, topic.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, sub.ID, subs[0].ID)
	assert.Equal(t, anon.ID, subs[1].ID)

	loaded, err := f.broker.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "billing", loaded.Name)

	_, err = f.broker.GetSubscription(ctx, 404)
	assert.True(t, broker.IsNotFound(err))

	_, err = f.broker.CreateSubscription(ctx, 404, "x")
	assert.True(t, broker.IsNotFound(err))

	_, err = f.broker.CreateSubscription(ctx, 0, "x")
	assert.True(t, broker.IsInvalidArgument(err))

	_, err = f.broker.ListSubscriptions(ctx, 404)
	assert.True(t, broker.IsNotFound(err))
}

func TestNewRegistry_RequiredOptions(t *testing.T) {
	_, err := broker.NewRegistry()
	require.Error(t, err)
	assert.Equal(t, broker.ErrCodeConfiguration, broker.ErrorCode(err))

	_, err = broker.NewRegistry(broker.WithRegistryLogger(nil))
	require.Error(t, err)
}
