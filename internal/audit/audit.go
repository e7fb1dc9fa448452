package audit

import (
	"time"
)

// Action tags a security-relevant event.
type Action string

const (
	ActionUserRegistered        Action = "USER_REGISTERED"
	ActionLogin                 Action = "LOGIN"
	ActionLoginFailed           Action = "LOGIN_FAILED"
	ActionLogout                Action = "LOGOUT"
	ActionTokenRefreshed        Action = "TOKEN_REFRESHED"
	ActionForgotPasswordAttempt Action = "FORGOT_PASSWORD_ATTEMPT"
	ActionResetTokenGenerated   Action = "PASSWORD_RESET_TOKEN_GENERATED"
	ActionPasswordResetFailed   Action = "PASSWORD_RESET_FAILED"
	ActionPasswordResetSuccess  Action = "PASSWORD_RESET_SUCCESS"
	ActionFileLinkIssued        Action = "FILE_LINK_ISSUED"
)

// Entry is an append-only record of a security-relevant event. Metadata must
// never contain plaintext secrets, tokens or passwords.
type Entry struct {
	ID         string
	OccurredAt time.Time
	Action     Action
	ActorID    string
	ClientIP   string
	Metadata   map[string]string
}
