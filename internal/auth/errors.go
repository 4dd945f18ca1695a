package auth

import "errors"

var (
	// ErrTokenInvalid is returned for tokens with a bad signature, expiry,
	// issuer or subject.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrNoSecret is returned when signing without a configured secret.
	ErrNoSecret = errors.New("auth: no JWT secret configured")
)
