package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"messagehub/internal/auth"
	"messagehub/internal/models"
)

const userColumns = `u.user_id, u.email, u.username, u.first_name, u.last_name, u.phone_number, u.role, u.created_at`

type scanner interface {
	Scan(dest ...any) error
}

// RegisterInput carries the sign-up form.
type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
}

// RegisterUser creates a guest account. Other roles are granted through SetUserRole.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = email[:strings.Index(email, "@")]
	}

	hash, err := auth.HashPassword(in.Password, s.passwords)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}
	phone := strings.TrimSpace(in.PhoneNumber)
	storedPhone, err := s.cipher.Seal(phone)
	if err != nil {
		return nil, fmt.Errorf("seal phone number: %w", err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email).Scan(&exists); err != nil {
		return nil, fmt.Errorf("verify email: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PhoneNumber:  phone,
		Role:         models.RoleGuest,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, email, username, first_name, last_name, phone_number, role, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Username, user.FirstName, user.LastName, nullString(storedPhone), string(user.Role), user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate validates credentials and returns the user profile.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+`, u.password_hash FROM users u WHERE u.email = ?`, email,
	)
	user, err := s.scanUser(row, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, ErrUserNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.user_id = ?`, id)
	user, err := s.scanUser(row, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// UserByEmail loads a user by email address.
func (s *Service) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrUserNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.email = ?`, email)
	user, err := s.scanUser(row, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// SetUserRole changes a user's role. Callers are responsible for checking the
// actor may grant it.
func (s *Service) SetUserRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	role = models.Role(strings.ToLower(strings.TrimSpace(string(role))))
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE user_id = ?`, string(role), id); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	slog.InfoContext(ctx, "user role changed", slog.String("user_id", id),
		slog.String("from", string(user.Role)), slog.String("to", string(role)))
	user.Role = role
	return user, nil
}

// ListUsers returns every account ordered by sign-up time.
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users u ORDER BY u.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
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

// DeleteUser removes a user and everything they authored, returning the deleted username.
func (s *Service) DeleteUser(ctx context.Context, id string) (string, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	var touched []string
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		touched, err = onUserDeleted(ctx, tx, id)
		return err
	})
	if err != nil {
		return "", err
	}
	for _, convID := range touched {
		s.cache.Invalidate(ctx, convID)
	}
	slog.InfoContext(ctx, "user deleted", slog.String("user_id", id), slog.Int("conversations", len(touched)))
	return user.Username, nil
}

func (s *Service) scanUser(row scanner, withHash bool) (*models.User, error) {
	var (
		u     models.User
		phone sql.NullString
		role  string
	)
	dest := []any{&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &phone, &role, &u.CreatedAt}
	if withHash {
		dest = append(dest, &u.PasswordHash)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	if phone.Valid {
		plain, err := s.cipher.Open(phone.String)
		if err != nil {
			slog.Warn("open phone number failed", slog.String("user_id", u.ID), slog.Any("err", err))
		}
		u.PhoneNumber = plain
	}
	return &u, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
