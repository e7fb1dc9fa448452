package auth

import "time"

// Provider identifies how an account authenticates.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
	ProviderGithub Provider = "github"
)

// Role is the coarse authorization level of a user.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// User represents an account. PasswordHash is empty for federated accounts;
// such accounts are never eligible for password reset.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Provider     Provider
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Local reports whether the account owns a password of its own.
func (u *User) Local() bool {
	return u.Provider == ProviderLocal && u.PasswordHash != ""
}

// RefreshToken is a persisted session-continuation record. Only the sha256 of
// the wire secret is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// PasswordResetToken is a one-time credential-recovery record. The plaintext
// secret is never persisted; the used flag may flip true at most once.
type PasswordResetToken struct {
	ID         string
	UserID     string
	SecretHash string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Used       bool
	UsedAt     *time.Time
}

// Identity is the verified caller identity carried through request handling.
type Identity struct {
	UserID string
	Role   Role
}

// TokenPair bundles freshly minted access and refresh credentials.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
