package broker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coregx/broker"
	"github.com/coregx/broker/adapters/memory"
	"github.com/coregx/broker/model"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// manualClock only moves when a test advances it.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: epoch}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingLogger keeps every formatted line by level.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Debugf(string, ...interface{}) {}
func (l *recordingLogger) Infof(string, ...interface{})  {}

func (l *recordingLogger) Warnf(format string, args ...interface{}) {
	l.mu.Lock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *recordingLogger) Errorf(format string, args ...interface{}) {
	l.mu.Lock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *recordingLogger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

func (l *recordingLogger) Warns() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

var errStoreDown = errors.New("connection refused")

// flakyStore wraps a MessageStore and fails selected operations on demand.
type flakyStore struct {
	broker.MessageStore

	failCreate  atomic.Bool
	failQuery   atomic.Bool
	failSweep   atomic.Bool
	failClaimAt atomic.Int64 // fail the n-th TryClaim (1-based); 0 disables
	claims      atomic.Int64

	// steal, when set, is called before each TryClaim so a test can win the
	// race for the row first.
	steal func(t broker.Transition)
}

func (s *flakyStore) CreateMessages(ctx context.Context, messages []model.Message) error {
	if s.failCreate.Load() {
		return errStoreDown
	}
	return s.MessageStore.CreateMessages(ctx, messages)
}

func (s *flakyStore) QueryEligible(
	ctx context.Context, subscriptionID int64, status model.MessageStatus, now time.Time, limit int,
) ([]model.Message, error) {
	if s.failQuery.Load() {
		return nil, errStoreDown
	}
	return s.MessageStore.QueryEligible(ctx, subscriptionID, status, now, limit)
}

func (s *flakyStore) TryClaim(ctx context.Context, t broker.Transition) (bool, error) {
	n := s.claims.Add(1)
	if at := s.failClaimAt.Load(); at > 0 && n == at {
		return false, errStoreDown
	}
	if s.steal != nil {
		s.steal(t)
	}
	return s.MessageStore.TryClaim(ctx, t)
}

func (s *flakyStore) SweepExpiredMessages(ctx context.Context, now time.Time) (int, error) {
	if s.failSweep.Load() {
		return 0, errStoreDown
	}
	return s.MessageStore.SweepExpiredMessages(ctx, now)
}

// fakeTicker delivers ticks only when the test sends them.
type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

// countingNotifier records notification calls.
type countingNotifier struct {
	noSubscribers atomic.Int64
	reclaimed     atomic.Int64
	expired       atomic.Int64
	created       atomic.Int64
}

func (n *countingNotifier) NotifyNoSubscribers(context.Context, model.Topic) error {
	n.noSubscribers.Add(1)
	return nil
}

func (n *countingNotifier) NotifyLeasesReclaimed(_ context.Context, count int) error {
	n.reclaimed.Add(int64(count))
	return nil
}

func (n *countingNotifier) NotifyMessagesExpired(_ context.Context, count int) error {
	n.expired.Add(int64(count))
	return nil
}

func (n *countingNotifier) NotifySubscriptionCreated(context.Context, model.Subscription) error {
	n.created.Add(1)
	return nil
}

type fixture struct {
	broker   *broker.Broker
	clock    *manualClock
	repos    *broker.Repositories
	store    *flakyStore
	logger   *recordingLogger
	notifier *countingNotifier
}

func newFixture(t *testing.T, opts ...broker.Option) *fixture {
	t.Helper()

	base := memory.NewRepositories()
	store := &flakyStore{MessageStore: base.Message}
	repos := &broker.Repositories{Topic: base.Topic, Subscription: base.Subscription, Message: store}

	f := &fixture{
		clock:    newManualClock(),
		repos:    repos,
		store:    store,
		logger:   &recordingLogger{},
		notifier: &countingNotifier{},
	}

	all := append([]broker.Option{
		broker.WithRepositories(repos),
		broker.WithClock(f.clock),
		broker.WithLogger(f.logger),
		broker.WithNotifications(f.notifier),
	}, opts...)

	b, err := broker.New(all...)
	require.NoError(t, err)
	f.broker = b
	return f
}

func (f *fixture) topic(t *testing.T, name string) *model.Topic {
	t.Helper()
	topic, err := f.broker.CreateTopic(context.Background(), name)
	require.NoError(t, err)
	return topic
}

func (f *fixture) subscribe(t *testing.T, topicID int64) *model.Subscription {
	t.Helper()
	sub, err := f.broker.CreateSubscription(context.Background(), topicID, "")
	require.NoError(t, err)
	return sub
}

func (f *fixture) publish(t *testing.T, topicID int64, payload string) {
	t.Helper()
	_, err := f.broker.Publish(context.Background(), broker.PublishRequest{TopicID: topicID, Payload: payload})
	require.NoError(t, err)
}

func ids(messages []model.Message) []int64 {
	out := make([]int64, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func payloads(messages []model.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Payload
	}
	return out
}
