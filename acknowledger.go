package broker

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coregx/broker/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxAckBatch bounds the number of IDs accepted by one Acknowledge call.
const MaxAckBatch = 1000

// Acknowledger finalizes delivery of leased messages.
//
// Acknowledgment is idempotent: unknown IDs, IDs of other subscriptions and
// messages that are not currently LEASED are skipped without failing the call.
type Acknowledger struct {
	subscriptionRepo SubscriptionRepository
	store            MessageStore
	logger           Logger
}

// AckOption configures an Acknowledger.
type AckOption func(*Acknowledger) error

// NewAcknowledger creates an Acknowledger.
//
// Required options:
//   - WithAckRepositories
//   - WithAckLogger
func NewAcknowledger(opts ...AckOption) (*Acknowledger, error) {
	a := &Acknowledger{}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply acknowledger option", err)
		}
	}

	if a.subscriptionRepo == nil || a.store == nil {
		return nil, NewError(ErrCodeConfiguration, "repositories are required (use WithAckRepositories)")
	}
	if a.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithAckLogger)")
	}

	return a, nil
}

// WithAckRepositories sets the subscription repository and message store.
func WithAckRepositories(subscriptionRepo SubscriptionRepository, store MessageStore) AckOption {
	return func(a *Acknowledger) error {
		if subscriptionRepo == nil {
			return fmt.Errorf("subscriptionRepo cannot be nil")
		}
		if store == nil {
			return fmt.Errorf("message store cannot be nil")
		}
		a.subscriptionRepo = subscriptionRepo
		a.store = store
		return nil
	}
}

// WithAckLogger sets the logger instance.
func WithAckLogger(logger Logger) AckOption {
	return func(a *Acknowledger) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		a.logger = logger
		return nil
	}
}

// AckRequest represents a request to acknowledge messages of one subscription.
type AckRequest struct {
	SubscriptionID int64
	MessageIDs     []int64
}

// Validate checks the request shape. An empty ID list is invalid.
func (r AckRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MessageIDs, validation.Required, validation.Length(1, MaxAckBatch)),
	)
}

// AckResult reports how many of the requested IDs were finalized by this call.
type AckResult struct {
	Acked     int `json:"ackedCount"`
	Requested int `json:"requested"`
}

// Acknowledge moves each listed message LEASED → ACKED.
//
// Errors:
//   - NOT_FOUND: subscription does not exist
//   - INVALID_ARGUMENT: no message IDs
//   - STORE_UNAVAILABLE: the store failed; Acked still counts what was finalized
//
// Requested counts the IDs as sent, duplicates included; a duplicate can be
// finalized at most once.
func (a *Acknowledger) Acknowledge(ctx context.Context, req AckRequest) (*AckResult, error) {
	sub, err := a.subscriptionRepo.Load(ctx, req.SubscriptionID)
	if err != nil {
		if IsNoData(err) {
			return nil, NewErrorWithCause(ErrCodeNotFound, fmt.Sprintf("subscription not found: %d", req.SubscriptionID), err)
		}
		return nil, storeError("failed to load subscription", err)
	}

	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeInvalidArgument, "invalid acknowledge request", err)
	}

	result := &AckResult{Requested: len(req.MessageIDs)}
	seen := make(map[int64]struct{}, len(req.MessageIDs))

	for _, id := range req.MessageIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		ok, err := a.store.TryClaim(ctx, Transition{
			MessageID:      id,
			SubscriptionID: sub.ID,
			From:           model.StatusLeased,
			To:             model.StatusAcked,
			LeaseExpiresAt: sql.NullTime{},
		})
		if err != nil && !IsConflict(err) {
			a.logger.Errorf("Acknowledge stopped on subscription=%d after %d/%d: %v",
				sub.ID, result.Acked, result.Requested, err)
			return result, storeError("failed to acknowledge message", err)
		}
		if err != nil || !ok {
			a.logger.Debugf("Skipped ack of message %d (subscription=%d): not leased by this subscription", id, sub.ID)
			continue
		}
		result.Acked++
	}

	a.logger.Infof("Acknowledged %d/%d messages on subscription=%d", result.Acked, result.Requested, sub.ID)
	return result, nil
}
