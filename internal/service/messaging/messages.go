package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"messagehub/internal/models"
	"messagehub/internal/permissions"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

const messageSelect = `SELECT m.message_id, m.sender_id, m.conversation_id, m.parent_message_id, m.message_body,
	m.sent_at, m.edited, m.edited_at, ` + userColumns + `
	FROM messages m JOIN users u ON u.user_id = m.sender_id`

// CreateMessageInput is the body of a new message.
type CreateMessageInput struct {
	ConversationID  string  `json:"conversation"`
	Body            string  `json:"message_body"`
	ParentMessageID *string `json:"parent_message_id,omitempty"`
}

// MessageFilter narrows ListMessages. Zero values disable a filter.
type MessageFilter struct {
	User         string
	Conversation string
	StartDate    *time.Time
	EndDate      *time.Time
	Search       string
	Ordering     string
	Page         int
	PageSize     int
}

// MessagePage is one page of messages plus neighbouring page numbers.
type MessagePage struct {
	Count    int               `json:"count"`
	Next     *int              `json:"next"`
	Previous *int              `json:"previous"`
	Results  []*models.Message `json:"results"`
}

// CreateMessage stores a message and notifies the other participants.
func (s *Service) CreateMessage(ctx context.Context, senderID string, in CreateMessageInput) (*models.Message, error) {
	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" || strings.TrimSpace(in.Body) == "" {
		return nil, ErrMessageFieldsRequired
	}
	if err := s.requireParticipant(ctx, senderID, convID, http.MethodPost); err != nil {
		return nil, err
	}
	if err := s.moderate(ctx, in.Body); err != nil {
		return nil, err
	}

	var parentID *string
	if in.ParentMessageID != nil && strings.TrimSpace(*in.ParentMessageID) != "" {
		id := strings.TrimSpace(*in.ParentMessageID)
		var parentConv string
		err := s.db.QueryRowContext(ctx, `SELECT conversation_id FROM messages WHERE message_id = ?`, id).Scan(&parentConv)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrInvalidParent
			}
			return nil, fmt.Errorf("lookup parent message: %w", err)
		}
		if parentConv != convID {
			return nil, ErrInvalidParent
		}
		parentID = &id
	}

	msg := &models.Message{
		ID:              uuid.NewString(),
		SenderID:        senderID,
		ConversationID:  convID,
		ParentMessageID: parentID,
		Body:            in.Body,
		SentAt:          time.Now().UTC(),
	}
	var notes []*models.Notification
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (message_id, sender_id, conversation_id, parent_message_id, message_body, sent_at, edited)
			 VALUES (?, ?, ?, ?, ?, ?, 0)`,
			msg.ID, msg.SenderID, msg.ConversationID, parentID, msg.Body, msg.SentAt,
		); err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		var err error
		notes, err = onMessageCreated(ctx, tx, msg)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, convID)
	for _, n := range notes {
		s.notifier.Publish(ctx, n)
	}
	slog.DebugContext(ctx, "message created",
		slog.String("message_id", msg.ID),
		slog.String("conversation_id", convID),
		slog.Int("notifications", len(notes)),
	)
	return s.loadMessage(ctx, msg.ID)
}

// ListMessages pages through messages in the caller's conversations.
func (s *Service) ListMessages(ctx context.Context, userID string, f MessageFilter) (*MessagePage, error) {
	var (
		where = []string{`m.conversation_id IN (SELECT conversation_id FROM conversation_participants WHERE user_id = ?)`}
		args  = []any{userID}
	)
	if f.User != "" {
		where = append(where, `m.sender_id = ?`)
		args = append(args, f.User)
	}
	if f.Conversation != "" {
		where = append(where, `m.conversation_id = ?`)
		args = append(args, f.Conversation)
	}
	if f.StartDate != nil {
		where = append(where, `m.sent_at >= ?`)
		args = append(args, f.StartDate.UTC())
	}
	if f.EndDate != nil {
		where = append(where, `m.sent_at <= ?`)
		args = append(args, f.EndDate.UTC())
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := containsPattern(search)
		where = append(where, `(LOWER(m.message_body) LIKE ? ESCAPE '!' OR LOWER(u.email) LIKE ? ESCAPE '!')`)
		args = append(args, like, like)
	}
	clause := ` WHERE ` + strings.Join(where, ` AND `)

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages m JOIN users u ON u.user_id = m.sender_id`+clause, args...,
	).Scan(&count); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	order := ` ORDER BY m.sent_at ASC, m.message_id ASC`
	if strings.TrimSpace(f.Ordering) == "-sent_at" {
		order = ` ORDER BY m.sent_at DESC, m.message_id DESC`
	}
	query := messageSelect + clause + order + ` LIMIT ? OFFSET ?`
	results, err := s.queryMessages(ctx, query, append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, err
	}

	out := &MessagePage{Count: count, Results: results}
	if page*size < count {
		next := page + 1
		out.Next = &next
	}
	if page > 1 {
		prev := page - 1
		out.Previous = &prev
	}
	return out, nil
}

// ConversationMessages lists a conversation's messages, served from the cache when possible.
func (s *Service) ConversationMessages(ctx context.Context, userID, convID string) ([]*models.Message, error) {
	if err := s.requireParticipant(ctx, userID, convID, http.MethodGet); err != nil {
		return nil, err
	}
	cached, version, ok := s.cache.Messages(ctx, convID)
	if ok {
		return cached, nil
	}
	msgs, err := s.conversationMessages(ctx, convID)
	if err != nil {
		return nil, err
	}
	s.cache.StoreMessages(ctx, convID, version, msgs)
	return msgs, nil
}

// GetMessage returns a message visible to its sender or any participant.
func (s *Service) GetMessage(ctx context.Context, userID, id string) (*models.Message, error) {
	msg, err := s.loadMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, http.MethodGet, msg,
		permissions.IsOwnerOrParticipant{Members: s}, ErrNotParticipant); err != nil {
		return nil, err
	}
	return msg, nil
}

// EditMessage replaces the body of the caller's own message, keeping the old one in history.
func (s *Service) EditMessage(ctx context.Context, userID, id, newBody string) (*models.Message, error) {
	msg, err := s.loadMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, http.MethodPatch, msg,
		permissions.IsAuthenticatedAndOwner{}, ErrNotOwner); err != nil {
		return nil, err
	}
	if strings.TrimSpace(newBody) == "" {
		return nil, fmt.Errorf("%w: message_body is required", ErrInvalidInput)
	}
	if err := s.moderate(ctx, newBody); err != nil {
		return nil, err
	}

	var changed bool
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		changed, err = onMessageEdit(ctx, tx, msg, newBody, userID, time.Now().UTC())
		if err != nil || !changed {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET message_body = ?, edited = 1, edited_at = ? WHERE message_id = ?`,
			newBody, *msg.EditedAt, msg.ID,
		); err != nil {
			return fmt.Errorf("update message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		msg.Body = newBody
		s.cache.Invalidate(ctx, msg.ConversationID)
	}
	return msg, nil
}

// DeleteMessage removes the caller's own message and its replies.
func (s *Service) DeleteMessage(ctx context.Context, userID, id string) error {
	msg, err := s.loadMessage(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, userID, http.MethodDelete, msg,
		permissions.IsAuthenticatedAndOwner{}, ErrNotOwner); err != nil {
		return err
	}
	return s.deleteMessage(ctx, msg)
}

// DeleteMessageAsModerator removes any message without an ownership check.
func (s *Service) DeleteMessageAsModerator(ctx context.Context, id string) error {
	msg, err := s.loadMessage(ctx, id)
	if err != nil {
		return err
	}
	if err := s.deleteMessage(ctx, msg); err != nil {
		return err
	}
	slog.InfoContext(ctx, "message removed by moderator", slog.String("message_id", id))
	return nil
}

func (s *Service) deleteMessage(ctx context.Context, msg *models.Message) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE message_id = ?`, msg.ID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	s.cache.Invalidate(ctx, msg.ConversationID)
	return nil
}

// MessageHistory lists the previous bodies of a message, newest first.
func (s *Service) MessageHistory(ctx context.Context, userID, id string) ([]*models.MessageHistory, error) {
	if _, err := s.GetMessage(ctx, userID, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT history_id, message_id, old_content, edited_by, edited_at FROM message_history
		 WHERE message_id = ? ORDER BY edited_at DESC, history_id DESC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()
	out := make([]*models.MessageHistory, 0)
	for rows.Next() {
		var (
			h      models.MessageHistory
			editor sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.MessageID, &h.OldContent, &editor, &h.EditedAt); err != nil {
			return nil, err
		}
		h.EditedBy = editor.String
		out = append(out, &h)
	}
	return out, rows.Err()
}

// Thread returns a message followed by all of its replies, breadth first.
func (s *Service) Thread(ctx context.Context, userID, id string) ([]*models.ThreadEntry, error) {
	root, err := s.GetMessage(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	thread := []*models.ThreadEntry{{Message: root, Depth: 0}}
	for i := 0; i < len(thread); i++ {
		cur := thread[i]
		replies, err := s.queryMessages(ctx,
			messageSelect+` WHERE m.parent_message_id = ? ORDER BY m.sent_at ASC, m.message_id ASC`, cur.Message.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range replies {
			thread = append(thread, &models.ThreadEntry{Message: r, Depth: cur.Depth + 1})
		}
	}
	return thread, nil
}

func (s *Service) authorize(ctx context.Context, userID, method string, msg *models.Message, perm permissions.Permission, denied error) error {
	ok, err := permissions.Check(ctx, permissions.Request{UserID: userID, Method: method}, msg, perm)
	if err != nil {
		return err
	}
	if !ok {
		return denied
	}
	return nil
}

func (s *Service) moderate(ctx context.Context, body string) error {
	verdict, err := s.moderator.Check(ctx, body)
	if err != nil {
		slog.WarnContext(ctx, "moderation check failed", slog.Any("err", err))
		return nil
	}
	if !verdict.Allowed {
		return fmt.Errorf("%w: %s", ErrMessageRejected, verdict.Reason)
	}
	return nil
}

func (s *Service) loadMessage(ctx context.Context, id string) (*models.Message, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrMessageNotFound
	}
	msgs, err := s.queryMessages(ctx, messageSelect+` WHERE m.message_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrMessageNotFound
	}
	return msgs[0], nil
}

func (s *Service) conversationMessages(ctx context.Context, convID string) ([]*models.Message, error) {
	return s.queryMessages(ctx,
		messageSelect+` WHERE m.conversation_id = ? ORDER BY m.sent_at ASC, m.message_id ASC`, convID)
}

func (s *Service) queryMessages(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	msgs := make([]*models.Message, 0)
	for rows.Next() {
		msg, err := s.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *Service) scanMessage(row scanner) (*models.Message, error) {
	var (
		m        models.Message
		u        models.User
		parent   sql.NullString
		editedAt sql.NullTime
		phone    sql.NullString
		role     string
	)
	if err := row.Scan(
		&m.ID, &m.SenderID, &m.ConversationID, &parent, &m.Body, &m.SentAt, &m.Edited, &editedAt,
		&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &phone, &role, &u.CreatedAt,
	); err != nil {
		return nil, err
	}
	if parent.Valid {
		m.ParentMessageID = &parent.String
	}
	if editedAt.Valid {
		t := editedAt.Time
		m.EditedAt = &t
	}
	u.Role = models.Role(role)
	if phone.Valid {
		u.PhoneNumber, _ = s.cipher.Open(phone.String)
	}
	m.Sender = &u
	return &m, nil
}
