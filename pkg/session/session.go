package session

import (
	"context"

	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
)

// Session is a handle on one user session. Handles are cheap; all state
// lives in the Store.
type Session struct {
	id    string
	store *Store
}

// ID returns the session ID
func (s *Session) ID() string {
	return s.id
}

// RoleContext returns the stored role context, or nil when none is stored
func (s *Session) RoleContext(ctx context.Context) (*TenantRoleContext, error) {
	var rc TenantRoleContext
	ok, err := s.store.decode(ctx, s.id, KeyRoleContext, &rc)
	if err != nil || !ok {
		return nil, err
	}
	return &rc, nil
}

// SaveRoleContext writes the role context and the current tenant summary
func (s *Session) SaveRoleContext(ctx context.Context, rc *TenantRoleContext, tenant CurrentTenant) error {
	if err := s.store.save(ctx, s.id, KeyRoleContext, rc); err != nil {
		return err
	}
	return s.store.save(ctx, s.id, KeyCurrentTenant, tenant)
}

// ClearRoleContext wipes the role context from both tiers
func (s *Session) ClearRoleContext(ctx context.Context) error {
	return s.store.remove(ctx, s.id, KeyRoleContext)
}

// Logout wipes every session value
func (s *Session) Logout(ctx context.Context) error {
	return s.store.remove(ctx, s.id, KeyRoleContext, KeyCurrentTenant, KeyAuthUser)
}

// AuthUser returns the authenticated user, or nil
func (s *Session) AuthUser(ctx context.Context) (*AuthUser, error) {
	var u AuthUser
	ok, err := s.store.decode(ctx, s.id, KeyAuthUser, &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

// SetAuthUser binds the authenticated user to the session
func (s *Session) SetAuthUser(ctx context.Context, user AuthUser) error {
	return s.store.save(ctx, s.id, KeyAuthUser, user)
}

// CurrentTenant returns the current tenant summary, or nil
func (s *Session) CurrentTenant(ctx context.Context) (*CurrentTenant, error) {
	var t CurrentTenant
	ok, err := s.store.decode(ctx, s.id, KeyCurrentTenant, &t)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}

// WithSession stores the session handle in the context
func WithSession(ctx context.Context, sess *Session) context.Context {
	return contextkeys.WithSession(ctx, sess)
}

// FromContext retrieves the session handle from the context
func FromContext(ctx context.Context) (*Session, error) {
	sess, ok := ctx.Value(contextkeys.SessionKey).(*Session)
	if !ok || sess == nil {
		return nil, ErrNoSession
	}
	return sess, nil
}
