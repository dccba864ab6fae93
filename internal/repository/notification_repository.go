package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ibs-portal-api/internal/models"
)

const notificationColumns = `notification_id, user_id, type, title, message, reference_type, reference_id, is_read, created_at`

// NotificationRepository persists per-recipient notification rows.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert writes one row; is_read always starts false.
func (r *NotificationRepository) Insert(ctx context.Context, n *models.Notification) error {
	const query = `INSERT INTO notifications (user_id, type, title, message, reference_type, reference_id, is_read)
VALUES ($1, $2, $3, $4, $5, $6, FALSE)
RETURNING notification_id, is_read, created_at`
	row := r.db.QueryRowxContext(ctx, query, n.UserID, n.Type, n.Title, n.Message, n.ReferenceType, n.ReferenceID)
	if err := row.Scan(&n.NotificationID, &n.IsRead, &n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListForUser returns the newest notifications of a recipient.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, notification_id DESC LIMIT %d`, notificationColumns, limit)
	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

// UnreadCount counts a recipient's unread rows.
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flags one row read. The recipient filter keeps other users' rows untouched;
// sql.ErrNoRows means the row does not exist for this recipient.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, notificationID int64) error {
	const query = `UPDATE notifications SET is_read = TRUE WHERE notification_id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkAllRead flags every unread row of the recipient and returns how many changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	const query = `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return affected, nil
}
