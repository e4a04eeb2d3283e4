// Package messaging implements users, conversations, messages and notifications.
package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"messagehub/internal/auth"
	"messagehub/internal/models"
	"messagehub/internal/moderation"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrEmailTaken            = errors.New("user with this email already exists")
	ErrInvalidCredentials    = errors.New("No active account found with the given credentials")
	ErrUserNotFound          = fmt.Errorf("user not found: %w", sql.ErrNoRows)
	ErrParticipantsRequired  = errors.New("At least one participant is required.")
	ErrMessageFieldsRequired = errors.New("conversation and message_body are required.")
	ErrConversationNotFound  = errors.New("Conversation not found.")
	ErrNotParticipant        = errors.New("You are not a participant in this conversation.")
	ErrMessageNotFound       = errors.New("Message not found.")
	ErrNotOwner              = errors.New("You do not have permission to perform this action.")
	ErrInvalidParent         = errors.New("parent message must belong to the same conversation")
	ErrMessageRejected       = errors.New("message rejected")
	ErrNotificationNotFound  = errors.New("Notification not found.")
)

// MessageCache holds per-conversation message lists.
type MessageCache interface {
	Messages(ctx context.Context, conversationID string) ([]*models.Message, string, bool)
	StoreMessages(ctx context.Context, conversationID, version string, msgs []*models.Message)
	Invalidate(ctx context.Context, conversationID string)
}

// Notifier delivers freshly stored notifications.
type Notifier interface {
	Publish(ctx context.Context, n *models.Notification)
}

// Service handles the messaging domain on top of database/sql.
type Service struct {
	db        *sql.DB
	moderator moderation.Checker
	cache     MessageCache
	notifier  Notifier
	cipher    *FieldCipher
	passwords *auth.PasswordConfig
}

type Option func(*Service)

func WithModerator(c moderation.Checker) Option { return func(s *Service) { s.moderator = c } }

func WithCache(c MessageCache) Option { return func(s *Service) { s.cache = c } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithFieldCipher(c *FieldCipher) Option { return func(s *Service) { s.cipher = c } }

func WithPasswordConfig(cfg *auth.PasswordConfig) Option {
	return func(s *Service) { s.passwords = cfg }
}

// NewService builds a messaging service.
func NewService(db *sql.DB, opts ...Option) *Service {
	s := &Service{
		db:        db,
		moderator: moderation.Chain{},
		cache:     noopCache{},
		notifier:  noopNotifier{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetNotifier replaces the notifier after construction; the worker needs the service first.
func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = noopNotifier{}
	}
	s.notifier = n
}

func (s *Service) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type noopCache struct{}

func (noopCache) Messages(context.Context, string) ([]*models.Message, string, bool) {
	return nil, "", false
}

func (noopCache) StoreMessages(context.Context, string, string, []*models.Message) {}

func (noopCache) Invalidate(context.Context, string) {}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, *models.Notification) {}

// likeEscaper makes user input literal inside a LIKE ... ESCAPE '!' pattern.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsPattern is a case-folded substring pattern for LIKE ? ESCAPE '!'.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}
