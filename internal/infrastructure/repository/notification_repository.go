package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/notification"
)

// NotificationRepository persists dashboard notifications using PostgreSQL
type NotificationRepository struct {
	db interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// NewNotificationRepositoryWithTx creates a new notification repository with a transaction
func NewNotificationRepositoryWithTx(tx *sql.Tx) *NotificationRepository {
	return &NotificationRepository{db: tx}
}

// Insert stores a dashboard notification
func (r *NotificationRepository) Insert(ctx context.Context, n *notification.Notification) error {
	if n == nil || n.ID == uuid.Nil {
		return errors.New("notification must have an ID")
	}

	query := `
		INSERT INTO notifications (id, buyer_id, lead_id, title, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.BuyerID, n.LeadID, n.Title, n.Message, n.Read, n.CreatedAt,
	)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return fmt.Errorf("notification %s already exists", n.ID)
		}
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

// ListUnreadByBuyer returns the buyer's unread notifications, newest first
func (r *NotificationRepository) ListUnreadByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*notification.Notification, error) {
	query := `
		SELECT id, buyer_id, lead_id, title, message, read, created_at
		FROM notifications
		WHERE buyer_id = $1 AND NOT read
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		var n notification.Notification
		err := rows.Scan(&n.ID, &n.BuyerID, &n.LeadID, &n.Title, &n.Message, &n.Read, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return notifications, nil
}

// MarkRead flags a notification as seen
func (r *NotificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE notifications SET read = TRUE WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound("notification")
	}

	return nil
}
