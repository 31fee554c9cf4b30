package broker

import (
	"context"

	"github.com/coregx/broker/model"
)

// NotificationService defines an optional interface for reporting broker
// events to operators (alerts, chat, monitoring).
type NotificationService interface {
	// NotifyNoSubscribers is called when a publish is dropped because its topic
	// has no subscriptions.
	NotifyNoSubscribers(ctx context.Context, topic model.Topic) error

	// NotifyLeasesReclaimed is called when a sweep returns lapsed leases to the pull pool.
	// A steady stream of these usually means consumers crash or hold messages too long.
	NotifyLeasesReclaimed(ctx context.Context, count int) error

	// NotifyMessagesExpired is called when a sweep retires undelivered messages.
	NotifyMessagesExpired(ctx context.Context, count int) error

	// NotifySubscriptionCreated is called when a new subscription is created.
	NotifySubscriptionCreated(ctx context.Context, subscription model.Subscription) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
type NoOpNotificationService struct{}

// NotifyNoSubscribers does nothing.
func (n *NoOpNotificationService) NotifyNoSubscribers(_ context.Context, _ model.Topic) error {
	return nil
}

// NotifyLeasesReclaimed does nothing.
func (n *NoOpNotificationService) NotifyLeasesReclaimed(_ context.Context, _ int) error {
	return nil
}

// NotifyMessagesExpired does nothing.
func (n *NoOpNotificationService) NotifyMessagesExpired(_ context.Context, _ int) error {
	return nil
}

// NotifySubscriptionCreated does nothing.
func (n *NoOpNotificationService) NotifySubscriptionCreated(_ context.Context, _ model.Subscription) error {
	return nil
}

// LoggingNotificationService writes notifications to a Logger.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a new LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifyNoSubscribers logs the dropped publish.
func (n *LoggingNotificationService) NotifyNoSubscribers(_ context.Context, topic model.Topic) error {
	n.logger.Warnf("Publish dropped, no subscriptions: topic_id=%d, name=%s", topic.ID, topic.Name)
	return nil
}

// NotifyLeasesReclaimed logs reclaimed leases.
func (n *LoggingNotificationService) NotifyLeasesReclaimed(_ context.Context, count int) error {
	n.logger.Warnf("Leases lapsed without acknowledgment: %d messages returned for redelivery", count)
	return nil
}

// NotifyMessagesExpired logs expired messages.
func (n *LoggingNotificationService) NotifyMessagesExpired(_ context.Context, count int) error {
	n.logger.Warnf("Messages expired undelivered: %d", count)
	return nil
}

// NotifySubscriptionCreated logs subscription creation.
func (n *LoggingNotificationService) NotifySubscriptionCreated(_ context.Context, subscription model.Subscription) error {
	n.logger.Infof("Subscription created: id=%d, topic_id=%d, name=%s",
		subscription.ID, subscription.TopicID, subscription.Name)
	return nil
}
