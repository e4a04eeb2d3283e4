package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"messagehub/internal/models"
)

// Lifecycle hooks run inside the transaction of the write that triggers them,
// so a failing hook rolls the write back.

// onMessageCreated stores one notification per participant other than the sender.
func onMessageCreated(ctx context.Context, tx *sql.Tx, msg *models.Message) ([]*models.Notification, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = ? AND user_id <> ? ORDER BY joined_at ASC, user_id ASC`,
		msg.ConversationID, msg.SenderID,
	)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	var recipients []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		recipients = append(recipients, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	notes := make([]*models.Notification, 0, len(recipients))
	for _, userID := range recipients {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO notifications (user_id, message_id, is_read, created_at) VALUES (?, ?, 0, ?)`,
			userID, msg.ID, msg.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("create notification: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("notification id: %w", err)
		}
		notes = append(notes, &models.Notification{
			ID:             id,
			UserID:         userID,
			MessageID:      msg.ID,
			CreatedAt:      msg.SentAt,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			Preview:        preview(msg.Body),
		})
	}
	return notes, nil
}

// onMessageEdit records the previous body when it changes. It reports whether
// the message row must be updated.
func onMessageEdit(ctx context.Context, tx *sql.Tx, msg *models.Message, newBody, editorID string, now time.Time) (bool, error) {
	var current string
	if err := tx.QueryRowContext(ctx, `SELECT message_body FROM messages WHERE message_id = ?`, msg.ID).Scan(&current); err != nil {
		return false, fmt.Errorf("load message body: %w", err)
	}
	if current == newBody {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO message_history (message_id, old_content, edited_by, edited_at) VALUES (?, ?, ?, ?)`,
		msg.ID, current, nullString(editorID), now,
	); err != nil {
		return false, fmt.Errorf("record history: %w", err)
	}
	msg.Edited = true
	msg.EditedAt = &now
	return true, nil
}

// onUserDeleted removes everything a user authored and returns the ids of the
// conversations they took part in.
func onUserDeleted(ctx context.Context, tx *sql.Tx, userID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT conversation_id FROM conversation_participants WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	var convIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		convIDs = append(convIDs, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	stmts := []struct {
		what  string
		query string
	}{
		{"message history", `DELETE FROM message_history WHERE message_id IN (SELECT message_id FROM messages WHERE sender_id = ?)`},
		{"notifications", `DELETE FROM notifications WHERE user_id = ?`},
		{"messages", `DELETE FROM messages WHERE sender_id = ?`},
		{"participation", `DELETE FROM conversation_participants WHERE user_id = ?`},
		{"user", `DELETE FROM users WHERE user_id = ?`},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, userID); err != nil {
			return nil, fmt.Errorf("delete %s: %w", st.what, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE NOT EXISTS (
			SELECT 1 FROM conversation_participants p WHERE p.conversation_id = conversations.conversation_id
		)`,
	); err != nil {
		return nil, fmt.Errorf("delete empty conversations: %w", err)
	}
	return convIDs, nil
}

func preview(body string) string {
	const previewLen = 80
	r := []rune(body)
	if len(r) <= previewLen {
		return body
	}
	return string(r[:previewLen]) + "..."
}
