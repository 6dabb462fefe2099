package auth

import "errors"

var (
	// ErrInvalidCredentials is the single rejection for unknown username,
	// inactive account and password mismatch alike.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidToken covers absent, malformed, tampered and expired session
	// tokens; callers treat it as "no token present".
	ErrInvalidToken     = errors.New("auth: invalid token")
	ErrStoreUnavailable = errors.New("auth: store unavailable")
	ErrNotFound         = errors.New("auth: not found")
	ErrConflict         = errors.New("auth: conflict")
	ErrInvalidInput     = errors.New("auth: invalid input")
)
