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

// ListConversationsParams narrows the conversation list.
type ListConversationsParams struct {
	// Search matches any participant email, case-insensitively.
	Search string
	// Ordering is "created_at" or "-created_at".
	Ordering string
}

// CreateConversation opens a conversation between the creator and participantIDs.
// Unknown ids are skipped.
func (s *Service) CreateConversation(ctx context.Context, creatorID string, participantIDs []string) (*models.Conversation, error) {
	if len(participantIDs) == 0 {
		return nil, ErrParticipantsRequired
	}
	if _, err := s.GetUser(ctx, creatorID); err != nil {
		return nil, err
	}

	conv := &models.Conversation{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (conversation_id, created_at) VALUES (?, ?)`, conv.ID, conv.CreatedAt,
		); err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		seen := map[string]bool{}
		members := append([]string{creatorID}, participantIDs...)
		for i, userID := range members {
			userID = strings.TrimSpace(userID)
			if userID == "" || seen[userID] {
				continue
			}
			seen[userID] = true
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = ?)`, userID).Scan(&exists); err != nil {
				return fmt.Errorf("lookup participant: %w", err)
			}
			if !exists {
				slog.DebugContext(ctx, "skip unknown participant", slog.String("user_id", userID))
				continue
			}
			joined := conv.CreatedAt.Add(time.Duration(i) * time.Microsecond)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO conversation_participants (conversation_id, user_id, joined_at) VALUES (?, ?, ?)`,
				conv.ID, userID, joined,
			); err != nil {
				return fmt.Errorf("add participant: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadConversation(ctx, conv.ID)
}

// ListConversations returns the conversations userID takes part in.
func (s *Service) ListConversations(ctx context.Context, userID string, params ListConversationsParams) ([]*models.Conversation, error) {
	var (
		sb   strings.Builder
		args = []any{userID}
	)
	sb.WriteString(`SELECT c.conversation_id FROM conversations c
		JOIN conversation_participants me ON me.conversation_id = c.conversation_id AND me.user_id = ?`)
	if search := strings.TrimSpace(params.Search); search != "" {
		sb.WriteString(` WHERE EXISTS (
			SELECT 1 FROM conversation_participants p JOIN users u ON u.user_id = p.user_id
			WHERE p.conversation_id = c.conversation_id AND LOWER(u.email) LIKE ? ESCAPE '!')`)
		args = append(args, containsPattern(search))
	}
	switch strings.TrimSpace(params.Ordering) {
	case "created_at":
		sb.WriteString(` ORDER BY c.created_at ASC, c.conversation_id ASC`)
	default:
		sb.WriteString(` ORDER BY c.created_at DESC, c.conversation_id DESC`)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	convs := make([]*models.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.loadConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

// GetConversation returns a conversation the caller participates in.
func (s *Service) GetConversation(ctx context.Context, userID, id string) (*models.Conversation, error) {
	if err := s.requireParticipant(ctx, userID, id, http.MethodGet); err != nil {
		return nil, err
	}
	return s.loadConversation(ctx, id)
}

// DeleteConversation removes a conversation together with its messages.
func (s *Service) DeleteConversation(ctx context.Context, userID, id string) error {
	if err := s.requireParticipant(ctx, userID, id, http.MethodDelete); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	s.cache.Invalidate(ctx, id)
	return nil
}

// IsParticipant reports whether userID belongs to the conversation.
func (s *Service) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id = ? AND user_id = ?)`,
		conversationID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("lookup participant: %w", err)
	}
	return ok, nil
}

func (s *Service) conversationExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE conversation_id = ?)`, id,
	).Scan(&ok); err != nil {
		return false, fmt.Errorf("lookup conversation: %w", err)
	}
	return ok, nil
}

// requireParticipant resolves the conversation and applies IsParticipantOfConversation.
func (s *Service) requireParticipant(ctx context.Context, userID, convID, method string) error {
	if strings.TrimSpace(convID) == "" {
		return ErrConversationNotFound
	}
	exists, err := s.conversationExists(ctx, convID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrConversationNotFound
	}
	ok, err := permissions.Check(ctx,
		permissions.Request{UserID: userID, Method: method},
		&models.Conversation{ID: convID},
		permissions.IsParticipantOfConversation{Members: s},
	)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

func (s *Service) loadConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv := &models.Conversation{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT created_at FROM conversations WHERE conversation_id = ?`, id).Scan(&conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv.Participants, err = s.participants(ctx, id); err != nil {
		return nil, err
	}
	if conv.Messages, err = s.conversationMessages(ctx, id); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Service) participants(ctx context.Context, convID string) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM conversation_participants p
		 JOIN users u ON u.user_id = p.user_id
		 WHERE p.conversation_id = ? ORDER BY p.joined_at ASC, u.user_id ASC`, convID,
	)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()
	users := make([]*models.User, 0)
	for rows.Next() {
		u, err := s.scanUser(rows, false)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
