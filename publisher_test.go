package broker_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coregx/broker"
	"github.com/coregx/broker/adapters/memory"
	"github.com/coregx/broker/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher_RequiredOptions(t *testing.T) {
	repos := memory.NewRepositories()

	_, err := broker.NewPublisher(broker.WithPublisherLogger(&broker.NoopLogger{}))
	require.Error(t, err)
	assert.Equal(t, broker.ErrCodeConfiguration, broker.ErrorCode(err))

	_, err = broker.NewPublisher(broker.WithPublisherRepositories(repos.Topic, repos.Subscription, repos.Message))
	require.Error(t, err)

	_, err = broker.NewPublisher(
		broker.WithPublisherRepositories(repos.Topic, repos.Subscription, repos.Message),
		broker.WithPublisherLogger(&broker.NoopLogger{}),
		broker.WithPublisherDefaultTTL(-time.Second),
	)
	require.Error(t, err)

	p, err := broker.NewPublisher(
		broker.WithPublisherRepositories(repos.Topic, repos.Subscription, repos.Message),
		broker.WithPublisherLogger(&broker.NoopLogger{}),
	)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestPublish_FansOutToEverySubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	topic := f.topic(t, "orders")
	subs := []*model.Subscription{f.subscribe(t, topic.ID), f.subscribe(t, topic.ID), f.subscribe(t, topic.ID)}

	result, err := f.broker.Publish(ctx, broker.PublishRequest{TopicID: topic.ID, Payload: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.PublishedCount)
	assert.Equal(t, []int64{subs[0].ID, subs[1].ID, subs[2].ID}, result.SubscriptionIDs)

	for _, sub := range subs {
		got, err := f.repos.Message.QueryEligible(ctx, sub.ID, model.StatusNew, f.clock.Now(), 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "hello", got[0].Payload)
		assert.Equal(t, epoch.Add(model.DefaultTTL), got[0].ExpiresAt)
		assert.Zero(t, got[0].DeliveryCount)
	}
}

func TestPublish_CustomTTL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, broker.WithMessageTTL(time.Hour))
	topic := f.topic(t, "orders")
	sub := f.subscribe(t, topic.ID)

	_, err := f.broker.Publish(ctx, broker.PublishRequest{TopicID: topic.ID, Payload: "a"})
	require.NoError(t, err)
	_, err = f.broker.Publish(ctx, broker.PublishRequest{TopicID: topic.ID, Payload: "b", TTL: time.Minute})
	require.NoError(t, err)

	got, err := f.repos.Message.QueryEligible(ctx, sub.ID, model.StatusNew, epoch, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, epoch.Add(time.Hour), got[0].ExpiresAt, "broker default")
	assert.Equal(t, epoch.Add(time.Minute), got[1].ExpiresAt, "request TTL")
}

func TestPublish_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	empty := f.topic(t, "empty")

	tests := []struct {
		name  string
		req   broker.PublishRequest
		check func(error) bool
	}{
		{
			name:  "missing topic id",
			req:   broker.PublishRequest{Payload: "x"},
			check: broker.IsInvalidArgument,
		},
		{
			name:  "negative ttl",
			req:   broker.PublishRequest{TopicID: empty.ID, TTL: -time.Second},
			check: broker.IsInvalidArgument,
		},
		{
			name:  "payload too large",
			req:   broker.PublishRequest{TopicID: empty.ID, Payload: strings.Repeat("x", broker.MaxPayloadSize+1)},
			check: broker.IsInvalidArgument,
		},
		{
			name:  "unknown topic",
			req:   broker.PublishRequest{TopicID: 999, Payload: "x"},
			check: broker.IsNotFound,
		},
		{
			name:  "no subscribers",
			req:   broker.PublishRequest{TopicID: empty.ID, Payload: "x"},
			check: broker.IsNoSubscribers,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.broker.Publish(ctx, tt.req)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}

	assert.Equal(t, int64(1), f.notifier.noSubscribers.Load())
}

func TestPublish_EmptyPayloadAllowed(t *testing.T) {
	f := newFixture(t)
	topic := f.topic(t, "orders")
	f.subscribe(t, topic.ID)

	result, err := f.broker.Publish(context.Background(), broker.PublishRequest{TopicID: topic.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, result.PublishedCount)
}

func TestPublish_StoreFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	topic := f.topic(t, "orders")
	sub := f.subscribe(t, topic.ID)

	f.store.failCreate.Store(true)
	_, err := f.broker.Publish(ctx, broker.PublishRequest{TopicID: topic.ID, Payload: "x"})
	require.Error(t, err)
	assert.True(t, broker.IsStoreUnavailable(err))
	assert.ErrorIs(t, err, errStoreDown)

	f.store.failCreate.Store(false)
	got, err := f.repos.Message.QueryEligible(ctx, sub.ID, model.StatusNew, epoch, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPublish_LateSubscriberSeesOnlyNewMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	topic := f.topic(t, "orders")
	early := f.subscribe(t, topic.ID)

	f.publish(t, topic.ID, "before")
	late := f.subscribe(t, topic.ID)
	f.publish(t, topic.ID, "after")

	got, err := f.broker.Pull(ctx, broker.PullRequest{SubscriptionID: early.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "after"}, payloads(got))

	got, err = f.broker.Pull(ctx, broker.PullRequest{SubscriptionID: late.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"after"}, payloads(got))
}

func TestPublishBatch_SkipsFailures(t *testing.T) {
	repos := memory.NewRepositories()
	p, err := broker.NewPublisher(
		broker.WithPublisherRepositories(repos.Topic, repos.Subscription, repos.Message),
		broker.WithPublisherLogger(&broker.NoopLogger{}),
		broker.WithPublisherClock(broker.ClockFunc(func() time.Time { return epoch })),
	)
	require.NoError(t, err)

	ctx := context.Background()
	topic, err := repos.Topic.Save(ctx, model.NewTopic("orders", epoch))
	require.NoError(t, err)
	_, err = repos.Subscription.Save(ctx, model.NewSubscription(topic.ID, "", epoch))
	require.NoError(t, err)

	results, err := p.PublishBatch(ctx, []broker.PublishRequest{
		{TopicID: topic.ID, Payload: "a"},
		{TopicID: 404, Payload: "lost"},
		{TopicID: topic.ID, Payload: "b"},
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
