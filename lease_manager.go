package broker

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/coregx/broker/model"
)

// Pull defaults.
const (
	DefaultLeaseDuration = 30 * time.Second
	DefaultPullBatch     = 10
	MaxPullBatch         = 1000
)

// maxClaimRounds bounds how often one Pull re-queries after losing races.
const maxClaimRounds = 8

// LeaseManager serves pulls: it selects a subscription's oldest deliverable
// messages and claims each one with a single compare-and-set on its row.
//
// Two concurrent pulls on the same subscription never return the same
// message: whoever loses a claim skips that row and moves on. There is no lock
// wider than one message row.
//
// Thread safety: Safe for concurrent use.
type LeaseManager struct {
	subscriptionRepo SubscriptionRepository
	store            MessageStore
	logger           Logger
	clock            Clock
	defaultLease     time.Duration
	defaultBatch     int
}

// LeaseOption configures a LeaseManager.
type LeaseOption func(*LeaseManager) error

// NewLeaseManager creates a LeaseManager.
//
// Required options:
//   - WithLeaseRepositories
//   - WithLeaseLogger
func NewLeaseManager(opts ...LeaseOption) (*LeaseManager, error) {
	lm := &LeaseManager{
		clock:        SystemClock{},
		defaultLease: DefaultLeaseDuration,
		defaultBatch: DefaultPullBatch,
	}

	for _, opt := range opts {
		if err := opt(lm); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply lease manager option", err)
		}
	}

	if lm.subscriptionRepo == nil || lm.store == nil {
		return nil, NewError(ErrCodeConfiguration, "repositories are required (use WithLeaseRepositories)")
	}
	if lm.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLeaseLogger)")
	}

	return lm, nil
}

// WithLeaseRepositories sets the subscription repository and message store.
func WithLeaseRepositories(subscriptionRepo SubscriptionRepository, store MessageStore) LeaseOption {
	return func(lm *LeaseManager) error {
		if subscriptionRepo == nil {
			return fmt.Errorf("subscriptionRepo cannot be nil")
		}
		if store == nil {
			return fmt.Errorf("message store cannot be nil")
		}
		lm.subscriptionRepo = subscriptionRepo
		lm.store = store
		return nil
	}
}

// WithLeaseLogger sets the logger instance.
func WithLeaseLogger(logger Logger) LeaseOption {
	return func(lm *LeaseManager) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		lm.logger = logger
		return nil
	}
}

// WithLeaseClock overrides the wall clock.
func WithLeaseClock(clock Clock) LeaseOption {
	return func(lm *LeaseManager) error {
		if clock == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		lm.clock = clock
		return nil
	}
}

// WithDefaultLeaseDuration sets the lease used when a pull does not ask for one.
func WithDefaultLeaseDuration(d time.Duration) LeaseOption {
	return func(lm *LeaseManager) error {
		if d <= 0 {
			return fmt.Errorf("lease duration must be > 0, got %v", d)
		}
		lm.defaultLease = d
		return nil
	}
}

// WithDefaultPullBatch sets the batch size used when a pull does not ask for one.
func WithDefaultPullBatch(n int) LeaseOption {
	return func(lm *LeaseManager) error {
		if n <= 0 || n > MaxPullBatch {
			return fmt.Errorf("pull batch must be in 1..%d, got %d", MaxPullBatch, n)
		}
		lm.defaultBatch = n
		return nil
	}
}

// PullRequest represents a request to lease messages of one subscription.
type PullRequest struct {
	SubscriptionID int64         // Subscription to pull from
	MaxBatch       int           // Upper bound on returned messages; 0 = default, capped at MaxPullBatch
	LeaseDuration  time.Duration // How long the caller may hold the messages; 0 = default
}

// Pull leases up to MaxBatch NEW, unexpired messages of the subscription,
// oldest first, and returns them with status LEASED.
//
// An empty slice means nothing was eligible. Only messages this call actually
// claimed are returned; if the store fails after some claims succeeded, those
// messages are returned and the failure is logged.
func (lm *LeaseManager) Pull(ctx context.Context, req PullRequest) ([]model.Message, error) {
	sub, err := lm.subscriptionRepo.Load(ctx, req.SubscriptionID)
	if err != nil {
		if IsNoData(err) {
			return nil, NewErrorWithCause(ErrCodeNotFound, fmt.Sprintf("subscription not found: %d", req.SubscriptionID), err)
		}
		return nil, storeError("failed to load subscription", err)
	}

	batch := req.MaxBatch
	if batch <= 0 {
		batch = lm.defaultBatch
	}
	if batch > MaxPullBatch {
		batch = MaxPullBatch
	}
	lease := req.LeaseDuration
	if lease <= 0 {
		lease = lm.defaultLease
	}

	now := lm.clock.Now()
	leaseUntil := sql.NullTime{Time: now.Add(lease), Valid: true}
	claimed := make([]model.Message, 0, batch)

	for round := 0; round < maxClaimRounds && len(claimed) < batch; round++ {
		want := batch - len(claimed)
		candidates, err := lm.store.QueryEligible(ctx, sub.ID, model.StatusNew, now, want)
		if err != nil {
			return lm.partial(claimed, storeError("failed to query eligible messages", err))
		}
		if len(candidates) == 0 {
			break
		}

		lost := 0
		for _, candidate := range candidates {
			ok, err := lm.store.TryClaim(ctx, Transition{
				MessageID:      candidate.ID,
				SubscriptionID: sub.ID,
				From:           model.StatusNew,
				To:             model.StatusLeased,
				LeaseExpiresAt: leaseUntil,
				NotExpiredAt:   now,
			})
			if err != nil && !IsConflict(err) {
				return lm.partial(claimed, storeError("failed to claim message", err))
			}
			if err != nil || !ok {
				lost++
				lm.logger.Debugf("Lost claim on message %d (subscription=%d)", candidate.ID, sub.ID)
				continue
			}

			candidate.Status = model.StatusLeased
			candidate.LeaseExpiresAt = leaseUntil
			candidate.DeliveryCount++
			claimed = append(claimed, candidate)
		}

		// Without lost races a short page means the pool is drained.
		if lost == 0 {
			break
		}
	}

	sortByID(claimed)

	if len(claimed) > 0 {
		lm.logger.Debugf("Leased %d messages on subscription=%d until %s",
			len(claimed), sub.ID, leaseUntil.Time.Format(time.RFC3339))
	}

	return claimed, nil
}

func (lm *LeaseManager) partial(claimed []model.Message, err error) ([]model.Message, error) {
	if len(claimed) == 0 {
		return nil, err
	}
	lm.logger.Errorf("Pull stopped after %d claims: %v", len(claimed), err)
	sortByID(claimed)
	return claimed, nil
}

// sortByID restores creation order; a requeued message claimed in a later
// round can be older than ones claimed before it.
func sortByID(messages []model.Message) {
	slices.SortFunc(messages, func(a, b model.Message) int {
		return cmp.Compare(a.ID, b.ID)
	})
}
