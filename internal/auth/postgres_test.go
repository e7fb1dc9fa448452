package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewPGStore(db), mock, func() { _ = db.Close() }
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec("insert into users").
		WithArgs("u1", "a@example.com", sqlmock.AnyArg(), "local", "customer").
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	err := store.Users(context.Background()).Create(context.Background(), &User{
		ID: "u1", Email: "a@example.com", PasswordHash: "hash",
		Provider: ProviderLocal, Role: RoleCustomer,
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserFindByEmailNotFound(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery("select .* from users where email=").
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Users(context.Background()).FindByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestUserFindScansNullPasswordHash(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "provider", "role", "created_at", "updated_at"}).
		AddRow("u2", "fed@example.com", nil, "google", "customer", now, now)
	mock.ExpectQuery("select .* from users where id=").WithArgs("u2").WillReturnRows(rows)

	u, err := store.Users(context.Background()).Find(context.Background(), "u2")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.PasswordHash != "" {
		t.Fatalf("expected empty hash for federated account, got %q", u.PasswordHash)
	}
	if u.Local() {
		t.Fatal("federated account must not report Local")
	}
}

func TestRefreshReplaceIsTransactional(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("update refresh_tokens set revoked=true where user_id=").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into refresh_tokens").
		WithArgs("rt2", "u1", "hash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.RefreshTokens(context.Background()).Replace(context.Background(), &RefreshToken{
		ID: "rt2", UserID: "u1", TokenHash: "hash", ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkRevokedWinnerAndLoser(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec("update refresh_tokens set revoked=true where id=").
		WithArgs("rt1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update refresh_tokens set revoked=true where id=").
		WithArgs("rt1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rts := store.RefreshTokens(context.Background())
	won, err := rts.MarkRevoked(context.Background(), "rt1")
	if err != nil || !won {
		t.Fatalf("first revoke: won=%v err=%v", won, err)
	}
	won, err = rts.MarkRevoked(context.Background(), "rt1")
	if err != nil || won {
		t.Fatalf("second revoke must lose: won=%v err=%v", won, err)
	}
}

func TestResetConsumeWinnerAndLoser(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec("update password_reset_tokens set used=true").
		WithArgs("prt1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update password_reset_tokens set used=true").
		WithArgs("prt1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	resets := store.ResetTokens(context.Background())
	won, err := resets.Consume(context.Background(), "prt1")
	if err != nil || !won {
		t.Fatalf("first consume: won=%v err=%v", won, err)
	}
	won, err = resets.Consume(context.Background(), "prt1")
	if err != nil || won {
		t.Fatalf("replayed consume must lose: won=%v err=%v", won, err)
	}
}
