package relica

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coregx/broker"
	"github.com/coregx/broker/model"
	"github.com/coregx/relica"
)

// MessageRepository implements broker.MessageStore using Relica for reads and
// sweeps. The batch insert and the compare-and-set go straight to database/sql
// because they need a transaction and a column-relative increment.
type MessageRepository struct {
	db          *relica.DB
	sqlDB       *sql.DB
	driverName  string
	tablePrefix string
}

// NewMessageRepository creates a new MessageRepository with default table prefix.
func NewMessageRepository(sqlDB *sql.DB, driverName string) *MessageRepository {
	return NewMessageRepositoryWithPrefix(sqlDB, driverName, DefaultTablePrefix)
}

// NewMessageRepositoryWithPrefix creates a new MessageRepository with custom table prefix.
func NewMessageRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageRepository {
	return &MessageRepository{
		db:          relica.WrapDB(sqlDB, driverName),
		sqlDB:       sqlDB,
		driverName:  driverName,
		tablePrefix: prefix,
	}
}

func (r *MessageRepository) tableName() string {
	return r.tablePrefix + "message"
}

// Load retrieves a message by ID.
func (r *MessageRepository) Load(ctx context.Context, id int64) (model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return msg, broker.ErrNoData
	}
	if err != nil {
		return msg, dbError("failed to load message", err)
	}
	return msg, nil
}

// CreateMessages inserts the fanout of one publish in a single transaction.
func (r *MessageRepository) CreateMessages(ctx context.Context, messages []model.Message) (err error) {
	if len(messages) == 0 {
		return nil
	}

	tx, err := r.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return dbError("failed to begin fanout transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := rebind(r.driverName, fmt.Sprintf(
		"INSERT INTO %s (subscription_id, payload, status, expires_at, lease_expires_at, delivery_count, created_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?)", r.tableName()))

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return dbError("failed to prepare fanout insert", err)
	}
	defer stmt.Close()

	for _, m := range messages {
		if _, err = stmt.ExecContext(ctx,
			m.SubscriptionID, m.Payload, m.Status.String(), m.ExpiresAt,
			m.LeaseExpiresAt, m.DeliveryCount, m.CreatedAt,
		); err != nil {
			return dbError(fmt.Sprintf("failed to insert message for subscription %d", m.SubscriptionID), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return dbError("failed to commit fanout", err)
	}
	return nil
}

// TryClaim applies t as one conditional UPDATE and reports whether it
// matched a row. Moving to LEASED also bumps delivery_count.
func (r *MessageRepository) TryClaim(ctx context.Context, t broker.Transition) (bool, error) {
	increment := 0
	if t.To == model.StatusLeased {
		increment = 1
	}

	query := fmt.Sprintf(
		"UPDATE %s SET status = ?, lease_expires_at = ?, delivery_count = delivery_count + ? "+
			"WHERE id = ? AND subscription_id = ? AND status = ?", r.tableName())
	args := []interface{}{
		t.To.String(), t.LeaseExpiresAt, increment,
		t.MessageID, t.SubscriptionID, t.From.String(),
	}
	if !t.NotExpiredAt.IsZero() {
		query += " AND expires_at > ?"
		args = append(args, t.NotExpiredAt)
	}

	res, err := r.sqlDB.ExecContext(ctx, rebind(r.driverName, query), args...)
	if err != nil {
		return false, dbError("failed to update message status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbError("failed to read affected rows", err)
	}
	return n == 1, nil
}

// QueryEligible returns up to limit messages of a subscription with the given
// status that have not expired at now, oldest first.
func (r *MessageRepository) QueryEligible(
	ctx context.Context, subscriptionID int64, status model.MessageStatus, now time.Time, limit int,
) ([]model.Message, error) {
	if limit <= 0 {
		return []model.Message{}, nil
	}

	var messages []model.Message
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("subscription_id = ? AND status = ? AND expires_at > ?", subscriptionID, status.String(), now).
		OrderBy("id ASC").
		Limit(int64(limit)).
		All(&messages)
	if err != nil {
		return nil, dbError("failed to query eligible messages", err)
	}
	if messages == nil {
		messages = []model.Message{}
	}
	return messages, nil
}

// SweepExpiredLeases returns LEASED messages whose lease lapsed at now to NEW.
func (r *MessageRepository) SweepExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.WithContext(ctx).Update(r.tableName()).
		Set(map[string]interface{}{
			"status":           model.StatusNew.String(),
			"lease_expires_at": nil,
		}).
		Where("status = ? AND lease_expires_at <= ?", model.StatusLeased.String(), now).
		Execute()
	if err != nil {
		return 0, dbError("failed to release expired leases", err)
	}
	return affected(res)
}

// SweepExpiredMessages marks NEW and LEASED messages past their deadline EXPIRED.
func (r *MessageRepository) SweepExpiredMessages(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.WithContext(ctx).Update(r.tableName()).
		Set(map[string]interface{}{
			"status":           model.StatusExpired.String(),
			"lease_expires_at": nil,
		}).
		Where("status IN (?, ?) AND expires_at <= ?",
			model.StatusNew.String(), model.StatusLeased.String(), now).
		Execute()
	if err != nil {
		return 0, dbError("failed to expire messages", err)
	}
	return affected(res)
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbError("failed to read affected rows", err)
	}
	return int(n), nil
}
