package broker

import (
	"fmt"
	"time"
)

// ReaperOption is a function that configures a Reaper.
//
// Example:
//
//	reaper, err := broker.NewReaper(
//	    broker.WithReaperStore(repos.Message),
//	    broker.WithReaperLogger(logger),
//	    broker.WithReaperInterval(5*time.Second), // optional
//	)
type ReaperOption func(*Reaper) error

// WithReaperStore sets the message store the reaper sweeps.
//
// This is a required option for NewReaper.
func WithReaperStore(store MessageStore) ReaperOption {
	return func(r *Reaper) error {
		if store == nil {
			return fmt.Errorf("message store cannot be nil")
		}
		r.store = store
		return nil
	}
}

// WithReaperLogger sets the logger instance for the reaper.
//
// This is a required option for NewReaper.
// Use NoopLogger for silent operation.
func WithReaperLogger(logger Logger) ReaperOption {
	return func(r *Reaper) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// WithReaperClock overrides the wall clock used to decide what has lapsed.
func WithReaperClock(clock Clock) ReaperOption {
	return func(r *Reaper) error {
		if clock == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		r.clock = clock
		return nil
	}
}

// WithReaperInterval sets the sweep interval used by Start.
// Default is 5 seconds. Shorter intervals return lapsed leases to the pull
// pool sooner at the cost of more store round trips.
func WithReaperInterval(interval time.Duration) ReaperOption {
	return func(r *Reaper) error {
		if interval <= 0 {
			return fmt.Errorf("reaper interval must be > 0, got %v", interval)
		}
		r.interval = interval
		return nil
	}
}

// WithReaperNotifications sets an optional notification service told about
// reclaimed leases and expired messages.
func WithReaperNotifications(service NotificationService) ReaperOption {
	return func(r *Reaper) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		r.notifications = service
		return nil
	}
}

// WithReaperTicker replaces the ticker that paces Run. Tests pass a channel
// they control so sweeps happen on demand instead of on wall-clock time.
func WithReaperTicker(newTicker func(time.Duration) Ticker) ReaperOption {
	return func(r *Reaper) error {
		if newTicker == nil {
			return fmt.Errorf("ticker factory cannot be nil")
		}
		r.newTicker = newTicker
		return nil
	}
}
