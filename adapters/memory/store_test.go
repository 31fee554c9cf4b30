package memory

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/coregx/broker"
	"github.com/coregx/broker/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, subscriptions int) (*broker.Repositories, []model.Subscription) {
	t.Helper()
	ctx := context.Background()
	repos := NewRepositories()

	topic, err := repos.Topic.Save(ctx, model.NewTopic("orders", epoch))
	require.NoError(t, err)

	subs := make([]model.Subscription, 0, subscriptions)
	for i := 0; i < subscriptions; i++ {
		sub, err := repos.Subscription.Save(ctx, model.NewSubscription(topic.ID, "", epoch))
		require.NoError(t, err)
		subs = append(subs, sub)
	}
	return repos, subs
}

func leaseTransition(id, subID int64, now time.Time) broker.Transition {
	return broker.Transition{
		MessageID:      id,
		SubscriptionID: subID,
		From:           model.StatusNew,
		To:             model.StatusLeased,
		LeaseExpiresAt: sql.NullTime{Time: now.Add(30 * time.Second), Valid: true},
		NotExpiredAt:   now,
	}
}

func TestTopicRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories()

	_, err := repos.Topic.Load(ctx, 1)
	assert.True(t, broker.IsNoData(err))

	a, err := repos.Topic.Save(ctx, model.NewTopic("a", epoch))
	require.NoError(t, err)
	b, err := repos.Topic.Save(ctx, model.NewTopic("b", epoch))
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)

	loaded, err := repos.Topic.Load(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "b", loaded.Name)

	all, err := repos.Topic.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)
}

func TestSubscriptionRepository(t *testing.T) {
	ctx := context.Background()
	repos, subs := seed(t, 2)

	_, err := repos.Subscription.Save(ctx, model.NewSubscription(99, "", epoch))
	assert.Error(t, err, "unknown topic must be rejected")

	found, err := repos.Subscription.FindByTopic(ctx, subs[0].TopicID)
	require.NoError(t, err)
	assert.Equal(t, []int64{subs[0].ID, subs[1].ID}, []int64{found[0].ID, found[1].ID})

	none, err := repos.Subscription.FindByTopic(ctx, 99)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMessageStore_CreateMessages(t *testing.T) {
	ctx := context.Background()
	repos, subs := seed(t, 2)

	t.Run("assigns ascending IDs", func(t *testing.T) {
		err := repos.Message.CreateMessages(ctx, []model.Message{
			model.NewMessage(subs[0].ID, "p", epoch, time.Hour),
			model.NewMessage(subs[1].ID, "p", epoch, time.Hour),
		})
		require.NoError(t, err)

		first, err := repos.Message.Load(ctx, 1)
		require.NoError(t, err)
		second, err := repos.Message.Load(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, subs[0].ID, first.SubscriptionID)
		assert.Equal(t, subs[1].ID, second.SubscriptionID)
		assert.Equal(t, model.StatusNew, first.Status)
	})

	t.Run("all or nothing", func(t *testing.T) {
		err := repos.Message.CreateMessages(ctx, []model.Message{
			model.NewMessage(subs[0].ID, "q", epoch, time.Hour),
			model.NewMessage(999, "q", epoch, time.Hour),
		})
		require.Error(t, err)

		got, err := repos.Message.QueryEligible(ctx, subs[0].ID, model.StatusNew, epoch, 10)
		require.NoError(t, err)
		assert.Len(t, got, 1, "only the earlier batch is visible")
	})
}

func TestMessageStore_QueryEligible(t *testing.T) {
	ctx := context.Background()
	repos, subs := seed(t, 1)
	sub := subs[0].ID

	require.NoError(t, repos.Message.CreateMessages(ctx, []model.Message{
		model.NewMessage(sub, "1", epoch, time.Minute),
		model.NewMessage(sub, "2", epoch, time.Hour),
		model.NewMessage(sub, "3", epoch, time.Hour),
	}))

	got, err := repos.Message.QueryEligible(ctx, sub, model.StatusNew, epoch, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].Payload)
	assert.Equal(t, "2", got[1].Payload)

	later := epoch.Add(time.Minute)
	got, err = repos.Message.QueryEligible(ctx, sub, model.StatusNew, later, 10)
	require.NoError(t, err)
	require.Len(t, got, 2, "message 1 expires exactly at its deadline")
	assert.Equal(t, "2", got[0].Payload)

	got, err = repos.Message.QueryEligible(ctx, sub, model.StatusNew, epoch, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMessageStore_TryClaim(t *testing.T) {
	ctx := context.Background()
	repos, subs := seed(t, 2)
	require.NoError(t, repos.Message.CreateMessages(ctx, []model.Message{
		model.NewMessage(subs[0].ID, "p", epoch, time.Hour),
	}))

	tests := []struct {
		name string
		tr   broker.Transition
		want bool
	}{
		{name: "missing message", tr: leaseTransition(42, subs[0].ID, epoch), want: false},
		{name: "foreign subscription", tr: leaseTransition(1, subs[1].ID, epoch), want: false},
		{name: "expired", tr: leaseTransition(1, subs[0].ID, epoch.Add(time.Hour)), want: false},
		{name: "claim", tr: leaseTransition(1, subs[0].ID, epoch), want: true},
		{name: "second claim loses", tr: leaseTransition(1, subs[0].ID, epoch), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := repos.Message.TryClaim(ctx, tt.tr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	msg, err := repos.Message.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusLeased, msg.Status)
	assert.True(t, msg.LeaseExpiresAt.Valid)
	assert.Equal(t, 1, msg.DeliveryCount)

	ok, err := repos.Message.TryClaim(ctx, broker.Transition{
		MessageID: 1, SubscriptionID: subs[0].ID, From: model.StatusLeased, To: model.StatusAcked,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	msg, err = repos.Message.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAcked, msg.Status)
	assert.False(t, msg.LeaseExpiresAt.Valid)
}

func TestMessageStore_ConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	repos, subs := seed(t, 1)
	sub := subs[0].ID

	const total = 200
	batch := make([]model.Message, total)
	for i := range batch {
		batch[i] = model.NewMessage(sub, "p", epoch, time.Hour)
	}
	require.NoError(t, repos.Message.CreateMessages(ctx, batch))

	var (
		mu     sync.Mutex
		winner = make(map[int64]int)
		wg     sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := int64(1); id <= total; id++ {
				ok, err := repos.Message.TryClaim(ctx, leaseTransition(id, sub, epoch))
				if err == nil && ok {
					mu.Lock()
					winner[id]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, winner, total)
	for id, wins := range winner {
		assert.Equal(t, 1, wins, "message %d claimed more than once", id)
	}
}

func TestMessageStore_Sweeps(t *testing.T) {
	ctx := context.Background()
	repos, subs := seed(t, 1)
	sub := subs[0].ID

	require.NoError(t, repos.Message.CreateMessages(ctx, []model.Message{
		model.NewMessage(sub, "short", epoch, time.Minute),
		model.NewMessage(sub, "long", epoch, time.Hour),
		model.NewMessage(sub, "acked", epoch, time.Minute),
	}))
	for _, id := range []int64{2, 3} {
		ok, err := repos.Message.TryClaim(ctx, leaseTransition(id, sub, epoch))
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := repos.Message.TryClaim(ctx, broker.Transition{
		MessageID: 3, SubscriptionID: sub, From: model.StatusLeased, To: model.StatusAcked,
	})
	require.NoError(t, err)
	require.True(t, ok)

	now := epoch.Add(2 * time.Minute)

	expired, err := repos.Message.SweepExpiredMessages(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, expired, "only the unacked short message expires")

	released, err := repos.Message.SweepExpiredLeases(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	long, err := repos.Message.Load(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNew, long.Status)
	assert.False(t, long.LeaseExpiresAt.Valid)
	assert.Equal(t, 1, long.DeliveryCount)

	acked, err := repos.Message.Load(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAcked, acked.Status)

	got, err := repos.Message.QueryEligible(ctx, sub, model.StatusNew, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)

	again, err := repos.Message.SweepExpiredLeases(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, again)
}
