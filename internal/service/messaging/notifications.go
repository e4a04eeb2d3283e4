package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"messagehub/internal/models"
)

const notificationSelect = `SELECT n.notification_id, n.user_id, n.message_id, n.is_read, n.created_at,
	m.conversation_id, m.sender_id, m.message_body
	FROM notifications n JOIN messages m ON m.message_id = n.message_id`

// ListNotifications returns the caller's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error) {
	query := notificationSelect + ` WHERE n.user_id = ?`
	if unreadOnly {
		query += ` AND n.is_read = 0`
	}
	query += ` ORDER BY n.created_at DESC, n.notification_id DESC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	out := make([]*models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags one of the caller's notifications as read.
func (s *Service) MarkNotificationRead(ctx context.Context, userID string, id int64) (*models.Notification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx,
		notificationSelect+` WHERE n.notification_id = ? AND n.user_id = ?`, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("load notification: %w", err)
	}
	if n.IsRead {
		return n, nil
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE notification_id = ?`, id); err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	n.IsRead = true
	return n, nil
}

// MarkAllRead flags every unread notification of the caller and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

// UnreadCount counts the caller's unread notifications.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

// CleanupReadNotifications deletes read notifications created before cutoff.
func (s *Service) CleanupReadNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE is_read = 1 AND created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup notifications: %w", err)
	}
	return res.RowsAffected()
}

func scanNotification(row scanner) (*models.Notification, error) {
	var (
		n    models.Notification
		body string
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.MessageID, &n.IsRead, &n.CreatedAt,
		&n.ConversationID, &n.SenderID, &body); err != nil {
		return nil, err
	}
	n.Preview = preview(body)
	return &n, nil
}
