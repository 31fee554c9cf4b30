// Package relica provides repository implementations using Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// This package implements every broker repository interface:
//   - TopicRepository
//   - SubscriptionRepository
//   - MessageStore (MessageRepository)
//
// Message state changes are single conditional UPDATE statements keyed on the
// row's current status, so any number of broker processes may share one
// database.
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/broker"
//	    "github.com/coregx/broker/adapters/relica"
//	    "github.com/coregx/broker/migrations"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/broker?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := migrations.Apply(db, "mysql"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// driverName should be "mysql", "postgres", or "sqlite3"
//	repos := relica.NewRepositories(db, "mysql")
//
//	b, err := broker.New(broker.WithRepositories(repos))
package relica
