package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenIssuer is stamped into every session token and checked on decode.
const tokenIssuer = "dq-dashboard"

// SessionClaims is the identity payload carried by a session token: who the
// session belongs to and when it was issued. Permissions are deliberately
// absent; they are re-resolved from the store on every restoration.
type SessionClaims struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies session tokens with a process-wide secret.
// Tokens are HMAC-SHA256 JWS strings: the signed claims, a separator and the
// signature, split from the rightmost separator on verification.
type TokenCodec struct {
	secret  []byte
	timeout time.Duration
	now     func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the codec's time source.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec builds a codec. timeout bounds how long after issuance a
// token stays decodable.
func NewTokenCodec(secret []byte, timeout time.Duration, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{
		secret:  secret,
		timeout: timeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the session lifetime the codec stamps into tokens.
func (c *TokenCodec) Timeout() time.Duration { return c.timeout }

// Encode signs identity claims for one user and returns the token string.
func (c *TokenCodec) Encode(userID, username string, admin bool) (string, error) {
	now := c.now().UTC()
	claims := SessionClaims{
		Username: username,
		Admin:    admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.timeout)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode parses and verifies a session token. Malformed input, an unexpected
// signing method, a bad signature, a missing or passed expiry and a foreign
// issuer all collapse to ErrInvalidToken: an invalid token must read exactly
// like no token at all.
func (c *TokenCodec) Decode(token string) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.Username) == "" {
		return nil, ErrInvalidToken
	}
	if claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
