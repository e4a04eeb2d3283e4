package auth

import "errors"

var (
	ErrPasswordTooShort = errors.New("password is too short")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenRevoked     = errors.New("token revoked")
	ErrWrongTokenType   = errors.New("wrong token type")
	ErrInvalidIssuer    = errors.New("invalid token issuer")
	ErrTokenNotOwned    = errors.New("token belongs to another user")
)
