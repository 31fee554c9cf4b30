// Package broker provides a pull-based publish/subscribe broker for Go with
// per-subscription fanout, lease-based delivery and idempotent acknowledgment.
//
// Works both as a library embedded in your application AND as a standalone
// service with a REST API (cmd/pubsub-server).
//
// # Features
//
//   - Fanout at publish time: one message copy per subscription, written atomically
//   - Lease-based Pull: concurrent pollers never receive the same message
//   - Idempotent Acknowledge: duplicates, foreign and stale IDs are skipped
//   - Reaper: lapsed leases return to the pool, expired messages are retired
//   - Closed message state machine (NEW, LEASED, ACKED, EXPIRED)
//   - Options Pattern for service configuration
//   - Pluggable Logger, Clock and NotificationService
//   - Multi-Database Support: MySQL, PostgreSQL, SQLite via Relica adapters
//   - In-memory store for tests and single-process deployments
//   - Embedded migrations
//
// # Quick Start
//
// # Option 1: As Embedded Library
//
// Apply the migrations and build the Relica repositories:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/broker"
//	    "github.com/coregx/broker/adapters/relica"
//	    "github.com/coregx/broker/migrations"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	db, _ := sql.Open("mysql", "user:pass@tcp(localhost:3306)/broker?parseTime=true")
//
//	if err := migrations.Apply(db, "mysql"); err != nil {
//	    log.Fatal(err)
//	}
//
//	repos := relica.NewRepositories(db, "mysql")
//
//	b, _ := broker.New(
//	    broker.WithRepositories(repos),
//	    broker.WithLogger(logger),
//	)
//
//	// Reclaim lapsed leases in the background
//	go b.Reaper().Run(ctx, 5*time.Second)
//
// Publish, pull and acknowledge:
//
//	topic, _ := b.CreateTopic(ctx, "orders")
//	sub, _ := b.CreateSubscription(ctx, topic.ID, "billing")
//
//	result, err := b.Publish(ctx, broker.PublishRequest{
//	    TopicID: topic.ID,
//	    Payload: `{"orderId": 42}`,
//	})
//
//	messages, err := b.Pull(ctx, broker.PullRequest{SubscriptionID: sub.ID})
//	for _, m := range messages {
//	    // process m.Payload
//	}
//	_, err = b.Acknowledge(ctx, broker.AckRequest{
//	    SubscriptionID: sub.ID,
//	    MessageIDs:     ids(messages),
//	})
//
// Or let a Consumer run the pull → handle → ack loop:
//
//	consumer, _ := broker.NewConsumer(
//	    broker.WithConsumerSource(b),
//	    broker.WithConsumerSubscription(sub.ID),
//	    broker.WithConsumerHandler(handle),
//	    broker.WithConsumerLogger(logger),
//	)
//	consumer.Run(ctx)
//
// # Option 2: As Standalone Service
//
//	# Publish message
//	curl -X POST http://localhost:8080/api/v1/topics/1/messages \
//	  -H "Content-Type: application/json" \
//	  -d '{"payload":"hello"}'
//
//	# Pull with a 60s lease
//	curl 'http://localhost:8080/api/v1/subscriptions/1/messages?maxBatch=10&leaseSeconds=60'
//
//	# Acknowledge
//	curl -X POST http://localhost:8080/api/v1/subscriptions/1/ack \
//	  -d '{"messageIds":[1,2,3]}'
//
// # Message Lifecycle
//
//	NEW ──Pull──▶ LEASED ──Acknowledge──▶ ACKED
//	 ▲              │
//	 └──lease lapse─┘
//	NEW, LEASED ──expiresAt passed──▶ EXPIRED
//
// ACKED and EXPIRED are terminal. Every transition is a single conditional
// update on one message row, keyed on its current status; whoever loses a
// race simply skips that row.
//
// Delivery is at-least-once: a consumer that crashes after processing but
// before acknowledging will see the message again once its lease lapses.
//
// # Database Schema
//
//	pubsub_topic          - Topics
//	pubsub_subscription   - Subscriptions (one per consumer group)
//	pubsub_message        - Per-subscription message copies with lease state
//
// Table prefix can be customized (default: "pubsub_").
package broker
