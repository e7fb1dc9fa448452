package files

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Signer mints a time-limited GET-only reference to a stored object. The
// production implementation wraps the object store's own signing capability;
// HMACSigner is the built-in variant for stores fronted by this service.
type Signer interface {
	SignedURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

// HMACSigner issues URLs of the form
// <base>/<objectKey>?exp=<unix>&sig=<hex hmac-sha256(objectKey:exp)>.
type HMACSigner struct {
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewHMACSigner constructs a signer. baseURL must not end with a slash.
func NewHMACSigner(baseURL, secret string) (*HMACSigner, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("files: signer base URL is required")
	}
	if secret == "" {
		return nil, errors.New("files: signer secret is required")
	}
	return &HMACSigner{
		baseURL: baseURL,
		secret:  []byte(secret),
		now:     time.Now,
	}, nil
}

func (s *HMACSigner) SignedURL(_ context.Context, objectKey string, ttl time.Duration) (string, error) {
	objectKey = strings.TrimLeft(objectKey, "/")
	if objectKey == "" {
		return "", errors.New("files: object key is required")
	}
	if ttl <= 0 {
		return "", errors.New("files: ttl must be positive")
	}
	exp := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", s.sign(objectKey, exp))
	return s.baseURL + "/" + objectKey + "?" + q.Encode(), nil
}

// Verify checks a previously minted reference. Used by the delivery edge.
func (s *HMACSigner) Verify(objectKey string, exp int64, sig string) bool {
	if s.now().Unix() > exp {
		return false
	}
	expected := s.sign(strings.TrimLeft(objectKey, "/"), exp)
	if len(expected) != len(sig) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) == 1
}

func (s *HMACSigner) sign(objectKey string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(objectKey + ":" + strconv.FormatInt(exp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
