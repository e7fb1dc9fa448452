package reset

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"vendora.dev/internal/audit"
	"vendora.dev/internal/auth"
	"vendora.dev/internal/ids"
	"vendora.dev/internal/obs"
)

const defaultTokenTTL = 15 * time.Minute

var (
	// ErrInvalidOrExpired covers no-match, expiry and secret mismatch. The
	// three causes deliberately collapse to one error so callers cannot probe
	// token-validity structure.
	ErrInvalidOrExpired = errors.New("reset: invalid or expired token")
	// ErrAlreadyUsed is intentionally distinguishable: the token once existed
	// and the concern is replay, not enumeration.
	ErrAlreadyUsed  = errors.New("reset: token already used")
	ErrWeakPassword = errors.New("reset: password too weak")
)

// Outcome is the closed set of internal results of a forgot-password request.
// The HTTP boundary collapses all of them to one generic acknowledgement.
type Outcome int

const (
	OutcomeIssued Outcome = iota
	OutcomeUserNotFound
	OutcomeFederated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIssued:
		return "issued"
	case OutcomeUserNotFound:
		return "user_not_found"
	case OutcomeFederated:
		return "federated"
	default:
		return "unknown"
	}
}

// Mailer dispatches an outbound message. Delivery is fire-and-forget with its
// own failure handling; the reset flow never blocks on it.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer is the default Mailer: it records that a message was dispatched
// without ever logging the body, which carries the plaintext secret.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to, subject, _ string) error {
	obs.LogRequest(map[string]any{
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"type":    "mail",
		"to":      to,
		"subject": subject,
	})
	return nil
}

// SessionRevoker kills every outstanding session for a user.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID string) error
}

// Service orchestrates the forgot/reset flow.
type Service struct {
	store    auth.Store
	sessions SessionRevoker
	recorder *audit.Recorder
	mailer   Mailer
	now      func() time.Time
	tokenTTL time.Duration
	resetURL string
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTokenTTL overrides the reset token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithResetURL sets the base URL embedded in reset messages.
func WithResetURL(u string) Option {
	return func(s *Service) {
		if u = strings.TrimSpace(u); u != "" {
			s.resetURL = u
		}
	}
}

// WithMailer overrides the outbound message collaborator.
func WithMailer(m Mailer) Option {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// NewService constructs the reset service.
func NewService(store auth.Store, sessions SessionRevoker, recorder *audit.Recorder, opts ...Option) *Service {
	s := &Service{
		store:    store,
		sessions: sessions,
		recorder: recorder,
		mailer:   LogMailer{},
		now:      time.Now,
		tokenTTL: defaultTokenTTL,
		resetURL: "https://vendora.dev/reset-password",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Forgot handles a forgot-password request. Every branch records an audit
// attempt, and the negative branches burn an equivalent bcrypt cost so that
// response timing does not reveal whether the email exists or is federated.
func (s *Service) Forgot(ctx context.Context, email, clientIP string) (Outcome, error) {
	email = auth.NormalizeEmail(email)

	secret, secretHash, err := newSecret()
	if err != nil {
		return OutcomeUserNotFound, err
	}

	outcome := OutcomeIssued
	var userID string

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		outcome = OutcomeUserNotFound
	case err != nil:
		return OutcomeUserNotFound, err
	case !user.Local():
		outcome = OutcomeFederated
		userID = user.ID
	default:
		userID = user.ID
	}

	if outcome != OutcomeIssued {
		auth.BurnVerification(secret)
		s.audit(audit.ActionForgotPasswordAttempt, userID, clientIP, map[string]string{
			"outcome": outcome.String(),
		})
		obs.PasswordResets.WithLabelValues("forgot_" + outcome.String()).Inc()
		return outcome, nil
	}

	tok := &auth.PasswordResetToken{
		ID:         ids.New(),
		UserID:     user.ID,
		SecretHash: secretHash,
		ExpiresAt:  s.now().UTC().Add(s.tokenTTL),
	}
	if err := s.store.ResetTokens(ctx).Create(ctx, tok); err != nil {
		return OutcomeIssued, err
	}

	s.audit(audit.ActionForgotPasswordAttempt, user.ID, clientIP, map[string]string{
		"outcome": outcome.String(),
	})
	s.audit(audit.ActionResetTokenGenerated, user.ID, clientIP, map[string]string{
		"token_id": tok.ID,
	})
	obs.PasswordResets.WithLabelValues("forgot_issued").Inc()

	// Dispatch outside the request path; the response never waits on delivery.
	token := tok.ID + "." + secret
	to := user.Email
	go func() {
		body := "Reset your password within 15 minutes: " + s.resetURL + "?token=" + token
		if err := s.mailer.Send(context.Background(), to, "Password reset", body); err != nil {
			obs.LogError("reset mail dispatch failed", map[string]any{"error": err.Error()})
		}
	}()

	return OutcomeIssued, nil
}

// Reset consumes a reset token and installs the new password. Exactly one of
// any number of concurrent attempts with the same token succeeds; the rest
// observe ErrAlreadyUsed. Success revokes every outstanding session.
func (s *Service) Reset(ctx context.Context, token, newPassword, clientIP string) error {
	if len(newPassword) < 8 {
		s.audit(audit.ActionPasswordResetFailed, "", clientIP, map[string]string{"reason": "weak_password"})
		obs.PasswordResets.WithLabelValues("weak_password").Inc()
		return ErrWeakPassword
	}

	tokenID, secret, ok := splitToken(token)
	if !ok {
		return s.fail("", clientIP, "malformed")
	}

	rec, err := s.store.ResetTokens(ctx).Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return s.fail("", clientIP, "not_found")
		}
		return err
	}
	if !compareSecret(rec.SecretHash, secret) {
		return s.fail(rec.UserID, clientIP, "secret_mismatch")
	}
	if rec.Used {
		s.audit(audit.ActionPasswordResetFailed, rec.UserID, clientIP, map[string]string{"reason": "replay"})
		obs.PasswordResets.WithLabelValues("already_used").Inc()
		return ErrAlreadyUsed
	}
	if s.now().After(rec.ExpiresAt) {
		return s.fail(rec.UserID, clientIP, "expired")
	}

	won, err := s.store.ResetTokens(ctx).Consume(ctx, rec.ID)
	if err != nil {
		return err
	}
	if !won {
		s.audit(audit.ActionPasswordResetFailed, rec.UserID, clientIP, map[string]string{"reason": "replay"})
		obs.PasswordResets.WithLabelValues("already_used").Inc()
		return ErrAlreadyUsed
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.Users(ctx).UpdatePassword(ctx, rec.UserID, hash); err != nil {
		return err
	}
	if err := s.sessions.RevokeAll(ctx, rec.UserID); err != nil {
		return err
	}

	s.audit(audit.ActionPasswordResetSuccess, rec.UserID, clientIP, map[string]string{"token_id": rec.ID})
	obs.PasswordResets.WithLabelValues("success").Inc()
	return nil
}

func (s *Service) fail(userID, clientIP, reason string) error {
	s.audit(audit.ActionPasswordResetFailed, userID, clientIP, map[string]string{"reason": reason})
	obs.PasswordResets.WithLabelValues("invalid_or_expired").Inc()
	return ErrInvalidOrExpired
}

func (s *Service) audit(action audit.Action, actorID, clientIP string, meta map[string]string) {
	s.recorder.Record(audit.Entry{
		Action:   action,
		ActorID:  actorID,
		ClientIP: clientIP,
		Metadata: meta,
	})
}

func newSecret() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(secret))
	return secret, hex.EncodeToString(sum[:]), nil
}

func splitToken(raw string) (id, secret string, ok bool) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func compareSecret(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
