package broker

import (
	"context"
	"fmt"
	"time"
)

// DefaultReaperInterval is the sweep period used when none is configured.
const DefaultReaperInterval = 5 * time.Second

// Ticker delivers sweep ticks. *time.Ticker satisfies it through NewTimeTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Reaper returns lapsed leases to the pull pool and retires messages past
// their absolute expiry. It is the only path by which a LEASED message that
// was never acknowledged becomes deliverable again.
//
// A failed sweep is logged and retried on the next tick. Because every row
// update is conditioned on the row's current status, a missed or repeated
// sweep delays reclamation but never loses or duplicates a message.
type Reaper struct {
	store         MessageStore
	logger        Logger
	clock         Clock
	notifications NotificationService
	interval      time.Duration
	newTicker     func(time.Duration) Ticker
}

// SweepResult counts the rows changed by one sweep.
type SweepResult struct {
	Expired  int // NEW/LEASED → EXPIRED
	Released int // LEASED → NEW
}

// NewReaper creates a Reaper.
//
// Required options:
//   - WithReaperStore
//   - WithReaperLogger
func NewReaper(opts ...ReaperOption) (*Reaper, error) {
	r := &Reaper{
		clock:         SystemClock{},
		notifications: &NoOpNotificationService{},
		interval:      DefaultReaperInterval,
		newTicker:     NewTimeTicker,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply reaper option", err)
		}
	}

	if r.store == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageStore is required (use WithReaperStore)")
	}
	if r.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithReaperLogger)")
	}

	return r, nil
}

// Interval returns the configured sweep period.
func (r *Reaper) Interval() time.Duration {
	return r.interval
}

// Sweep runs one reclamation pass.
//
// Expiry runs first so a message whose lease and absolute deadline both
// lapsed goes straight to EXPIRED instead of bouncing through NEW.
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := r.clock.Now()

	expired, err := r.store.SweepExpiredMessages(ctx, now)
	if err != nil {
		return result, storeError("failed to sweep expired messages", err)
	}
	result.Expired = expired

	released, err := r.store.SweepExpiredLeases(ctx, now)
	if err != nil {
		return result, storeError("failed to sweep expired leases", err)
	}
	result.Released = released

	if expired > 0 {
		if nerr := r.notifications.NotifyMessagesExpired(ctx, expired); nerr != nil {
			r.logger.Warnf("Failed to send expiry notification: %v", nerr)
		}
	}
	if released > 0 {
		if nerr := r.notifications.NotifyLeasesReclaimed(ctx, released); nerr != nil {
			r.logger.Warnf("Failed to send lease notification: %v", nerr)
		}
	}

	return result, nil
}

// Run sweeps on every tick of interval until ctx is canceled.
// This method blocks and should typically be run in a goroutine.
//
// Example:
//
//	go reaper.Run(ctx, 5*time.Second)
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.interval
	}
	ticker := r.newTicker(interval)
	defer ticker.Stop()

	r.logger.Infof("Reaper started (interval=%v)", interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Infof("Reaper stopped")
			return
		case <-ticker.C():
			r.runOnce(ctx)
		}
	}
}

// Start runs the reaper at its configured interval and returns when ctx ends.
// The nil error lets it sit directly in an errgroup.
func (r *Reaper) Start(ctx context.Context) error {
	r.Run(ctx, r.interval)
	return nil
}

func (r *Reaper) runOnce(ctx context.Context) {
	result, err := r.Sweep(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Errorf("Sweep failed, retrying next interval: %v", err)
		return
	}

	if result.Expired > 0 || result.Released > 0 {
		r.logger.Infof("Sweep: expired=%d, released=%d", result.Expired, result.Released)
	}
}

// String describes the reaper for startup logs.
func (r *Reaper) String() string {
	return fmt.Sprintf("reaper(interval=%v)", r.interval)
}
