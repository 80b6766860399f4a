// Package auth issues and validates the API tokens that open a tenantgate
// session.
//
// Tokens have the form tg_<base64url(32 random bytes)>. Only the SHA256
// hash is stored; the plaintext is returned once, at creation:
//
//	store := auth.NewPostgresTokenStore(db)
//	tok, plaintext, err := store.CreateToken(ctx, auth.CreateTokenRequest{
//		UserID:    100,
//		Name:      "console login",
//		ExpiresAt: &expiry,
//	})
//
// ValidateToken rejects malformed, unknown, revoked and expired tokens with
// ErrInvalidToken and stamps last_used_at on success. The HTTP side lives in
// middleware.AuthMiddleware, which reads "Authorization: Bearer <token>".
package auth
