// Package auth carries the caller's credential and identity into chat sessions.
// Sessions receive a Credential explicitly instead of reading a global store.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/go-go-golems/livechat/pkg/chat"
)

// Credential is a read-only bearer token plus the identity claims it carries.
// The token is never verified client-side; the server does that at handshake.
type Credential struct {
	token     string
	UserID    string
	ExpiresAt time.Time
}

// NewCredential parses token. JWTs contribute their subject and expiry;
// opaque tokens are accepted with an empty identity.
func NewCredential(token string) (Credential, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Credential{}, chat.NewError(chat.ErrAuth, "credential", errors.New("empty token"))
	}
	c := Credential{token: token}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return c, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		c.UserID = sub
	} else if uid, ok := claims["user_id"].(string); ok {
		c.UserID = uid
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// Token returns the raw bearer token.
func (c Credential) Token() string { return c.token }

// WithUserID overrides the identity, for opaque tokens whose owner is known out of band.
func (c Credential) WithUserID(userID string) Credential {
	c.UserID = userID
	return c
}

// Validate fails with chat.ErrAuth when the token is missing or expired at now.
func (c Credential) Validate(now time.Time) error {
	if c.token == "" {
		return chat.NewError(chat.ErrAuth, "credential", errors.New("empty token"))
	}
	if !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt) {
		return chat.NewError(chat.ErrAuth, "credential", errors.Errorf("token expired at %s", c.ExpiresAt.Format(time.RFC3339)))
	}
	return nil
}
