package relica

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/coregx/broker"
)

// DefaultTablePrefix is prepended to every table name unless overridden.
const DefaultTablePrefix = "pubsub_"

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to "pubsub_" but can be customized.
func NewRepositories(db *sql.DB, driverName string) *broker.Repositories {
	return NewRepositoriesWithPrefix(db, driverName, DefaultTablePrefix)
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *broker.Repositories {
	return &broker.Repositories{
		Topic:        NewTopicRepositoryWithPrefix(db, driverName, prefix),
		Subscription: NewSubscriptionRepositoryWithPrefix(db, driverName, prefix),
		Message:      NewMessageRepositoryWithPrefix(db, driverName, prefix),
	}
}

func dbError(message string, err error) error {
	return broker.NewErrorWithCause(broker.ErrCodeStoreUnavailable, message, err)
}

// rebind rewrites ? placeholders to $n for PostgreSQL. Queries passed here
// never contain literal question marks.
func rebind(driverName, query string) string {
	if driverName != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

var (
	_ broker.TopicRepository        = (*TopicRepository)(nil)
	_ broker.SubscriptionRepository = (*SubscriptionRepository)(nil)
	_ broker.MessageStore           = (*MessageRepository)(nil)
)
