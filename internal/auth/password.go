package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is a bcrypt hash of an unknowable value, used to equalize work on
// negative authentication paths so they cost the same as a real comparison.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("vendora-dummy-equalizer"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with the stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// BurnVerification performs a bcrypt comparison that always fails. Callers use
// it on branches where no stored hash exists, so that response timing does not
// reveal whether the account was found.
func BurnVerification(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
