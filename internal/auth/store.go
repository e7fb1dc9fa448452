package auth

import "context"

// Store describes persistence operations required by the access-control core.
type Store interface {
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	ResetTokens(ctx context.Context) ResetTokenStore
}

// UserStore manages user records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// RefreshTokenStore manages refresh token lifecycle.
type RefreshTokenStore interface {
	// Replace revokes every live token for tok.UserID and inserts tok in a
	// single transaction, preserving the one-valid-token-per-user invariant.
	Replace(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	// MarkRevoked flips the revoked flag and reports whether this call won the
	// flip. A false return means a concurrent caller revoked the token first.
	MarkRevoked(ctx context.Context, id string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) error
}

// ResetTokenStore manages one-time password reset tokens.
type ResetTokenStore interface {
	Create(ctx context.Context, tok *PasswordResetToken) error
	Find(ctx context.Context, id string) (*PasswordResetToken, error)
	// Consume flips the used flag and reports whether this call won the flip.
	Consume(ctx context.Context, id string) (bool, error)
}
