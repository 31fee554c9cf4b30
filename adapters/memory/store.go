// Package memory provides in-process implementations of the broker
// repositories. They back tests and the server's -memory mode; nothing
// survives a restart.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/coregx/broker"
	"github.com/coregx/broker/model"
)

// row guards one message. Every transition holds mu for the whole
// compare-and-set, which is the in-memory equivalent of a conditional UPDATE.
type row struct {
	mu  sync.Mutex
	msg model.Message
}

type state struct {
	topicSeq atomic.Int64
	subSeq   atomic.Int64
	msgSeq   atomic.Int64

	topics        *haxmap.Map[int64, model.Topic]
	subscriptions *haxmap.Map[int64, model.Subscription]
	messages      *haxmap.Map[int64, *row]

	// createMu serializes fanout so IDs within and across batches follow
	// creation order.
	createMu sync.Mutex

	// index lists the message IDs of each subscription in ascending order.
	indexMu sync.RWMutex
	index   map[int64][]int64
}

func newState() *state {
	return &state{
		topics:        haxmap.New[int64, model.Topic](),
		subscriptions: haxmap.New[int64, model.Subscription](),
		messages:      haxmap.New[int64, *row](),
		index:         make(map[int64][]int64),
	}
}

// NewRepositories creates an empty in-memory store.
func NewRepositories() *broker.Repositories {
	s := newState()
	return &broker.Repositories{
		Topic:        &TopicRepository{s: s},
		Subscription: &SubscriptionRepository{s: s},
		Message:      &MessageStore{s: s},
	}
}

// TopicRepository implements broker.TopicRepository in memory.
type TopicRepository struct {
	s *state
}

// Load retrieves a topic by ID.
func (r *TopicRepository) Load(_ context.Context, id int64) (model.Topic, error) {
	t, ok := r.s.topics.Get(id)
	if !ok {
		return model.Topic{}, broker.ErrNoData
	}
	return t, nil
}

// Save creates a topic.
func (r *TopicRepository) Save(_ context.Context, m model.Topic) (model.Topic, error) {
	if m.ID == 0 {
		m.ID = r.s.topicSeq.Add(1)
	} else if _, ok := r.s.topics.Get(m.ID); !ok {
		return m, broker.ErrNoData
	}
	r.s.topics.Set(m.ID, m)
	return m, nil
}

// List returns all topics ordered by ID.
func (r *TopicRepository) List(_ context.Context) ([]model.Topic, error) {
	topics := make([]model.Topic, 0, r.s.topics.Len())
	r.s.topics.ForEach(func(_ int64, t model.Topic) bool {
		topics = append(topics, t)
		return true
	})
	slices.SortFunc(topics, func(a, b model.Topic) int { return cmp.Compare(a.ID, b.ID) })
	return topics, nil
}

// SubscriptionRepository implements broker.SubscriptionRepository in memory.
type SubscriptionRepository struct {
	s *state
}

// Load retrieves a subscription by ID.
func (r *SubscriptionRepository) Load(_ context.Context, id int64) (model.Subscription, error) {
	sub, ok := r.s.subscriptions.Get(id)
	if !ok {
		return model.Subscription{}, broker.ErrNoData
	}
	return sub, nil
}

// Save creates a subscription. The topic must exist.
func (r *SubscriptionRepository) Save(_ context.Context, m model.Subscription) (model.Subscription, error) {
	if _, ok := r.s.topics.Get(m.TopicID); !ok {
		return m, fmt.Errorf("topic %d does not exist", m.TopicID)
	}
	if m.ID == 0 {
		m.ID = r.s.subSeq.Add(1)
	} else if _, ok := r.s.subscriptions.Get(m.ID); !ok {
		return m, broker.ErrNoData
	}
	r.s.subscriptions.Set(m.ID, m)
	return m, nil
}

// FindByTopic returns the subscriptions of a topic ordered by ID.
func (r *SubscriptionRepository) FindByTopic(_ context.Context, topicID int64) ([]model.Subscription, error) {
	subs := make([]model.Subscription, 0)
	r.s.subscriptions.ForEach(func(_ int64, sub model.Subscription) bool {
		if sub.TopicID == topicID {
			subs = append(subs, sub)
		}
		return true
	})
	slices.SortFunc(subs, func(a, b model.Subscription) int { return cmp.Compare(a.ID, b.ID) })
	return subs, nil
}

// MessageStore implements broker.MessageStore in memory with one lock per message.
type MessageStore struct {
	s *state
}

// CreateMessages inserts all messages or none. A message whose subscription
// does not exist fails the whole batch.
func (r *MessageStore) CreateMessages(_ context.Context, messages []model.Message) error {
	if len(messages) == 0 {
		return nil
	}

	r.s.createMu.Lock()
	defer r.s.createMu.Unlock()

	for _, m := range messages {
		if _, ok := r.s.subscriptions.Get(m.SubscriptionID); !ok {
			return fmt.Errorf("subscription %d does not exist", m.SubscriptionID)
		}
	}

	added := make(map[int64][]int64, len(messages))
	for _, m := range messages {
		m.ID = r.s.msgSeq.Add(1)
		r.s.messages.Set(m.ID, &row{msg: m})
		added[m.SubscriptionID] = append(added[m.SubscriptionID], m.ID)
	}

	// Rows become visible to pulls only once the whole batch is indexed.
	r.s.indexMu.Lock()
	for subID, ids := range added {
		r.s.index[subID] = append(r.s.index[subID], ids...)
	}
	r.s.indexMu.Unlock()

	return nil
}

// TryClaim applies one compare-and-set under the row lock.
func (r *MessageStore) TryClaim(_ context.Context, t broker.Transition) (bool, error) {
	rw, ok := r.s.messages.Get(t.MessageID)
	if !ok {
		return false, nil
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()

	m := &rw.msg
	if m.SubscriptionID != t.SubscriptionID || m.Status != t.From {
		return false, nil
	}
	if !t.NotExpiredAt.IsZero() && m.IsExpired(t.NotExpiredAt) {
		return false, nil
	}
	if !model.CanTransition(m.Status, t.To) {
		return false, nil
	}

	m.Status = t.To
	m.LeaseExpiresAt = t.LeaseExpiresAt
	if t.To == model.StatusLeased {
		m.DeliveryCount++
	}
	return true, nil
}

// QueryEligible returns up to limit messages of a subscription with the
// given status that have not expired at now, oldest first.
func (r *MessageStore) QueryEligible(
	_ context.Context, subscriptionID int64, status model.MessageStatus, now time.Time, limit int,
) ([]model.Message, error) {
	if limit <= 0 {
		return []model.Message{}, nil
	}

	r.s.indexMu.RLock()
	ids := slices.Clone(r.s.index[subscriptionID])
	r.s.indexMu.RUnlock()

	result := make([]model.Message, 0, min(limit, len(ids)))
	for _, id := range ids {
		rw, ok := r.s.messages.Get(id)
		if !ok {
			continue
		}
		rw.mu.Lock()
		m := rw.msg
		rw.mu.Unlock()

		if m.Status != status || m.IsExpired(now) {
			continue
		}
		result = append(result, m)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

// SweepExpiredLeases returns LEASED messages whose lease lapsed at now to NEW.
func (r *MessageStore) SweepExpiredLeases(_ context.Context, now time.Time) (int, error) {
	released := 0
	r.s.messages.ForEach(func(_ int64, rw *row) bool {
		rw.mu.Lock()
		if rw.msg.IsLeaseExpired(now) && rw.msg.Release() == nil {
			released++
		}
		rw.mu.Unlock()
		return true
	})
	return released, nil
}

// SweepExpiredMessages marks NEW and LEASED messages past their deadline
// EXPIRED, then drops finished messages from the pull index.
func (r *MessageStore) SweepExpiredMessages(_ context.Context, now time.Time) (int, error) {
	expired := 0
	r.s.messages.ForEach(func(_ int64, rw *row) bool {
		rw.mu.Lock()
		if !rw.msg.Status.IsTerminal() && rw.msg.IsExpired(now) && rw.msg.Expire() == nil {
			expired++
		}
		rw.mu.Unlock()
		return true
	})

	r.compact()
	return expired, nil
}

// compact removes ACKED and EXPIRED messages from the pull index. They stay
// loadable by ID.
func (r *MessageStore) compact() {
	r.s.indexMu.Lock()
	defer r.s.indexMu.Unlock()

	for subID, ids := range r.s.index {
		r.s.index[subID] = slices.DeleteFunc(ids, func(id int64) bool {
			rw, ok := r.s.messages.Get(id)
			if !ok {
				return true
			}
			rw.mu.Lock()
			defer rw.mu.Unlock()
			return rw.msg.Status.IsTerminal()
		})
	}
}

// Load retrieves a message by ID.
func (r *MessageStore) Load(_ context.Context, id int64) (model.Message, error) {
	rw, ok := r.s.messages.Get(id)
	if !ok {
		return model.Message{}, broker.ErrNoData
	}
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.msg, nil
}

var (
	_ broker.TopicRepository        = (*TopicRepository)(nil)
	_ broker.SubscriptionRepository = (*SubscriptionRepository)(nil)
	_ broker.MessageStore           = (*MessageStore)(nil)
)
