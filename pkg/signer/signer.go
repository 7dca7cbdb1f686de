// Package signer issues and verifies the HMAC-signed URLs that
// authenticate the public object-storage routes. A signed URL is
// time-bounded and single-use; single use is enforced by atomically
// popping the URL's nonce from the coordination service.
package signer

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/inkvault/inkvault/pkg/coordination"
	"github.com/inkvault/inkvault/pkg/models"
)

// DefaultMaxAge bounds how long a signed URL stays valid.
const DefaultMaxAge = 15 * time.Minute

// clockSkewAllowance tolerates client clocks slightly ahead of ours.
const clockSkewAllowance = 5 * time.Second

const noncePrefix = "nonce:"

// Signer signs URL paths and verifies incoming signed requests.
type Signer struct {
	secret []byte
	coord  coordination.Service
	maxAge time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Signer. maxAge of zero uses DefaultMaxAge.
func New(secret string, coord coordination.Service, maxAge time.Duration) *Signer {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Signer{
		secret: []byte(secret),
		coord:  coord,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Signer) SetClock(now func() time.Time) {
	s.now = now
}

// MaxAge returns the configured validity window.
func (s *Signer) MaxAge() time.Duration {
	return s.maxAge
}

func (s *Signer) compute(path string, timestamp int64, nonce, user string) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%d|%s|%s", path, timestamp, nonce, user)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign produces the query string to append to path. The user value is
// opaque to the transport; the OSS routes recover it from the verified
// signature payload instead of a session token. The nonce is registered
// with the coordination service for the URL's full validity window.
func (s *Signer) Sign(ctx context.Context, path, user string) (url.Values, error) {
	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(nonceBytes)
	timestamp := s.now().UnixMilli()

	if err := s.coord.SetValue(ctx, noncePrefix+nonce, "1", s.maxAge+clockSkewAllowance); err != nil {
		return nil, fmt.Errorf("failed to register nonce: %w", err)
	}

	q := url.Values{}
	q.Set("signature", s.compute(path, timestamp, nonce, user))
	q.Set("timestamp", strconv.FormatInt(timestamp, 10))
	q.Set("nonce", nonce)
	q.Set("user", user)
	return q, nil
}

// SignURL returns path with the signed query already attached.
func (s *Signer) SignURL(ctx context.Context, path, user string) (string, error) {
	q, err := s.Sign(ctx, path, user)
	if err != nil {
		return "", err
	}
	return path + "?" + q.Encode(), nil
}

// Verify checks a signed request against path. On success it returns the
// opaque user value carried in the signature payload.
//
// consumeNonce controls single use: intermediate chunk-upload parts pass
// false so one signed part URL covers the whole sequence, and only the
// final part burns the nonce. Everything else passes true.
func (s *Signer) Verify(ctx context.Context, path string, q url.Values, consumeNonce bool) (string, error) {
	signature := q.Get("signature")
	nonce := q.Get("nonce")
	user := q.Get("user")
	timestamp, err := strconv.ParseInt(q.Get("timestamp"), 10, 64)
	if err != nil || signature == "" || nonce == "" {
		return "", models.ErrBadSignature
	}

	expected := s.compute(path, timestamp, nonce, user)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", models.ErrBadSignature
	}

	now := s.now().UnixMilli()
	if now-timestamp > s.maxAge.Milliseconds() {
		return "", models.ErrURLExpired
	}
	if timestamp > now+clockSkewAllowance.Milliseconds() {
		return "", models.ErrBadSignature
	}

	if consumeNonce {
		if _, err := s.coord.PopValue(ctx, noncePrefix+nonce); err != nil {
			if errors.Is(err, models.ErrKeyNotFound) {
				return "", models.ErrNonceConsumed
			}
			return "", err
		}
	} else {
		// Intermediate parts still require the nonce to be live.
		if _, err := s.coord.GetValue(ctx, noncePrefix+nonce); err != nil {
			if errors.Is(err, models.ErrKeyNotFound) {
				return "", models.ErrNonceConsumed
			}
			return "", err
		}
	}

	return user, nil
}
