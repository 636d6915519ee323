// internal/form/csrf.go
//
// Ponyracer – Forms subsystem: stateless CSRF tokens.
//
// Context
//   Every rendered form embeds a hidden `csrf_token` input.  POST handlers
//   verify it before touching form state.  Tokens are stateless:
//
//      base64url( nonce | unixMicro | HMAC_SHA256(key, nonce+unixMicro) )
//
//   •  nonce – 16 random bytes.
//   •  unixMicro – issue time, 8 bytes, big-endian.
//   •  HMAC – keyed with the process secret from config.
//
//   Verification checks the signature and that the token is younger than
//   MaxAge.  No server-side storage is required.
//
//------------------------------------------------------------------------------

package form

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"time"

	"go.uber.org/zap"
)

const (
	nonceBytes = 16
	tokenBytes = nonceBytes + 8 + sha256.Size // nonce + ts + sig

	// DefaultMaxAge is the token validity window.
	DefaultMaxAge = 2 * time.Hour
)

// CSRF issues and verifies tokens.  Safe for concurrent use.
type CSRF struct {
	key    []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewCSRF returns a CSRF keyed with key.  Keys shorter than 32 bytes are
// replaced by a random key, which invalidates tokens on restart.
func NewCSRF(key []byte, maxAge time.Duration) *CSRF {
	if len(key) < 32 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
		zap.S().Warnw("csrf key missing or short, using ephemeral key")
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &CSRF{key: key, maxAge: maxAge, now: time.Now}
}

// Generate creates a new token.  Call once per form render.
func (c *CSRF) Generate() (string, error) {
	buf := make([]byte, nonceBytes, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(c.now().UnixMicro()))
	buf = append(buf, c.sign(buf[:nonceBytes], buf[nonceBytes:])...)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Verify reports whether tok passes signature and age checks.
func (c *CSRF) Verify(tok string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != tokenBytes {
		return false
	}
	nonce, ts, sig := raw[:nonceBytes], raw[nonceBytes:nonceBytes+8], raw[nonceBytes+8:]

	issued := time.UnixMicro(int64(binary.BigEndian.Uint64(ts)))
	now := c.now()
	if now.Sub(issued) > c.maxAge || issued.Sub(now) > time.Minute {
		// Expired, or issued in the future beyond clock skew.
		return false
	}
	return hmac.Equal(sig, c.sign(nonce, ts))
}

func (c *CSRF) sign(nonce, ts []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(nonce)
	mac.Write(ts)
	return mac.Sum(nil)
}
