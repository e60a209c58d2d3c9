package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zaikapos/orderclient/gateway"
)

// CredentialStore persists tokens across restarts.
// Satisfied by *draft.Store.
type CredentialStore interface {
	SaveCredential(ctx context.Context, identity, access, refresh string) error
	LoadCredential(ctx context.Context) (identity, access, refresh string, err error)
	DeleteCredential(ctx context.Context, identity string) error
}

// Credentials holds the bearer token for the authenticated identity. The
// token contents are otherwise opaque to the client; the only
// interpretation is a best-effort local expiry check so an obviously dead
// token is not dispatched.
type Credentials struct {
	store CredentialStore

	mu       sync.Mutex
	identity string
	access   string
	refresh  string
}

// NewCredentials creates an empty credential holder. A nil store keeps
// tokens in memory only.
func NewCredentials(store CredentialStore) *Credentials {
	return &Credentials{store: store}
}

// Resume loads a previously persisted credential, if any.
func (c *Credentials) Resume(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	identity, access, refresh, err := c.store.LoadCredential(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity
	c.access = access
	c.refresh = refresh
	return nil
}

// Set installs a credential and persists it. An empty identity is
// derived from the token's email claim when present.
func (c *Credentials) Set(ctx context.Context, identity, access, refresh string) error {
	if access == "" {
		return fmt.Errorf("%w: empty access token", gateway.ErrValidation)
	}
	if identity == "" {
		identity = emailClaim(access)
	}
	if identity == "" {
		return fmt.Errorf("%w: identity is required", gateway.ErrValidation)
	}

	c.mu.Lock()
	c.identity = identity
	c.access = access
	c.refresh = refresh
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveCredential(ctx, identity, access, refresh); err != nil {
			return fmt.Errorf("persist credential: %w", err)
		}
	}
	return nil
}

// Token returns the bearer token for a request. It fails with
// ErrUnauthorized when no credential is present or the token's exp claim
// has passed; an expired token is cleared so the caller re-authenticates.
func (c *Credentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	access := c.access
	c.mu.Unlock()

	if access == "" {
		return "", fmt.Errorf("%w: no credential", gateway.ErrUnauthorized)
	}
	if expired(access) {
		c.Invalidate()
		return "", fmt.Errorf("%w: credential expired", gateway.ErrUnauthorized)
	}
	return access, nil
}

// Identity returns the stable external key of the authenticated identity
// (the account email), empty when logged out.
func (c *Credentials) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Present reports whether a credential is installed.
func (c *Credentials) Present() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access != ""
}

// Invalidate clears the credential in memory and in the store, forcing
// re-authentication.
func (c *Credentials) Invalidate() {
	c.mu.Lock()
	identity := c.identity
	c.identity = ""
	c.access = ""
	c.refresh = ""
	c.mu.Unlock()

	if c.store != nil && identity != "" {
		if err := c.store.DeleteCredential(context.Background(), identity); err != nil {
			// Memory is already cleared; a stale row only resurfaces an
			// invalid token, which the server rejects again.
			_ = err
		}
	}
}

// expired checks the token's exp claim without verifying the signature
// (the client has no signing secret). Tokens that do not parse as JWTs
// are treated as opaque and passed through.
func expired(tokenStr string) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

// emailClaim extracts the email claim, if the token is a JWT carrying one.
func emailClaim(tokenStr string) string {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return ""
	}
	email, _ := claims["email"].(string)
	return email
}
