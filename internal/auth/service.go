package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"

	"messagehub/internal/models"
	"messagehub/internal/redis"
)

type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

const (
	redisBlacklistPrefix = "auth:blacklist:"
	defaultClockSkew     = 5 * time.Second
)

// UserLookup resolves the account behind a token subject.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Options configures a Service.
type Options struct {
	SigningKey string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ClockSkew  time.Duration
	Users      UserLookup
	Now        func() time.Time
}

// Service issues, validates, and revokes JWT access/refresh pairs.
type Service struct {
	db         *sql.DB
	cache      *redis.Client
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clockSkew  time.Duration
	users      UserLookup
	now        func() time.Time
	headerName string
}

// Claims carried by both token types.
type Claims struct {
	jwt.StandardClaims
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"token_type"`
}

// TokenPair is returned by the obtain endpoint.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// NewService constructs an auth service. cache may be nil.
func NewService(db *sql.DB, cache *redis.Client, opts Options) *Service {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 5 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 24 * time.Hour
	}
	if opts.ClockSkew <= 0 {
		opts.ClockSkew = defaultClockSkew
	}
	if opts.Issuer == "" {
		opts.Issuer = "messagehub"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		db:         db,
		cache:      cache,
		key:        []byte(opts.SigningKey),
		issuer:     opts.Issuer,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		clockSkew:  opts.ClockSkew,
		users:      opts.Users,
		now:        opts.Now,
		headerName: "Authorization",
	}
}

// SetUserLookup wires the account source used by the middleware.
func (s *Service) SetUserLookup(users UserLookup) {
	s.users = users
}

// IssuePair mints a fresh access and refresh token for user.
func (s *Service) IssuePair(ctx context.Context, user *models.User) (*TokenPair, error) {
	if user == nil || user.ID == "" {
		return nil, errors.New("invalid user")
	}
	now := s.now()
	access, err := s.sign(user, TokenAccess, now, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(user, TokenRefresh, now, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *Service) sign(user *models.User, typ TokenType, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  now.Unix(),
			NotBefore: now.Add(-s.clockSkew).Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		Email:     user.Email,
		Role:      string(user.Role),
		TokenType: typ,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Parse validates a token of the wanted type. An empty want accepts either type.
// Checks run signature and issuer first, then expiry, then token type, then revocation.
func (s *Service) Parse(ctx context.Context, tokenStr string, want TokenType) (*Claims, error) {
	claims, err := s.parseClaims(tokenStr)
	if err != nil {
		return nil, err
	}
	if want != "" && claims.TokenType != want {
		return nil, ErrWrongTokenType
	}
	revoked, err := s.isRevoked(ctx, claims.Id)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

func (s *Service) parseClaims(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parser := &jwt.Parser{
		ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
		SkipClaimsValidation: true,
	}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.key, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyIssuer(s.issuer, true) {
		return nil, ErrInvalidIssuer
	}
	if claims.Subject == "" || claims.Id == "" {
		return nil, ErrInvalidToken
	}
	now := s.now()
	nbf := time.Unix(claims.NotBefore, 0).Add(-s.clockSkew)
	exp := time.Unix(claims.ExpiresAt, 0).Add(s.clockSkew)
	if now.Before(nbf) || now.After(exp) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.Parse(ctx, refreshToken, TokenRefresh)
	if err != nil {
		return "", err
	}
	user := &models.User{ID: claims.Subject, Email: claims.Email, Role: models.Role(claims.Role)}
	if s.users != nil {
		current, err := s.users.GetUser(ctx, claims.Subject)
		if err != nil {
			return "", ErrInvalidToken
		}
		user = current
	}
	return s.sign(user, TokenAccess, s.now(), s.accessTTL)
}

// Verify accepts any valid, unrevoked token.
func (s *Service) Verify(ctx context.Context, tokenStr string) (*Claims, error) {
	return s.Parse(ctx, tokenStr, "")
}

// Revoke blacklists the token's jti until it would have expired.
func (s *Service) Revoke(ctx context.Context, tokenStr string) error {
	claims, err := s.parseClaims(tokenStr)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil
		}
		return err
	}
	return s.revokeClaims(ctx, claims)
}

// RevokeFor revokes tokenStr only when it was issued to userID.
func (s *Service) RevokeFor(ctx context.Context, tokenStr, userID string) error {
	claims, err := s.parseClaims(tokenStr)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil
		}
		return err
	}
	if claims.Subject != userID {
		return ErrTokenNotOwned
	}
	return s.revokeClaims(ctx, claims)
}

func (s *Service) revokeClaims(ctx context.Context, claims *Claims) error {
	expires := time.Unix(claims.ExpiresAt, 0).UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin revoke: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM token_blacklist WHERE jti = ?`, claims.Id); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO token_blacklist (jti, user_id, expires_at) VALUES (?, ?, ?)`,
		claims.Id, claims.Subject, expires,
	); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revoke: %w", err)
	}

	if s.cache.Enabled() {
		ttl := expires.Sub(s.now()) + s.clockSkew
		if ttl > 0 {
			if err := s.cache.Set(ctx, redisBlacklistPrefix+claims.Id, claims.Subject, ttl); err != nil {
				slog.WarnContext(ctx, "cache revoked token failed", slog.String("jti", claims.Id), slog.Any("err", err))
			}
		}
	}
	return nil
}

func (s *Service) isRevoked(ctx context.Context, jti string) (bool, error) {
	if s.cache.Enabled() {
		found, err := s.cache.Exists(ctx, redisBlacklistPrefix+jti)
		if err == nil && found {
			return true, nil
		}
		if err != nil {
			slog.WarnContext(ctx, "blacklist cache lookup failed", slog.Any("err", err))
		}
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE jti = ?)`, jti,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup blacklist: %w", err)
	}
	return exists, nil
}

// PurgeExpiredBlacklist drops blacklist rows for tokens that can no longer validate.
func (s *Service) PurgeExpiredBlacklist(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.clockSkew).UTC()
	res, err := s.db.ExecContext(ctx, `DELETE FROM token_blacklist WHERE expires_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge blacklist: %w", err)
	}
	return res.RowsAffected()
}

// AccessTTL reports the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}
