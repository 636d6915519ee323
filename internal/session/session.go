// internal/session/session.go
//
// Ponyracer – session cookie.
//
// Context
//   After a successful login or registration the home page greets the user.
//   The user's login is kept in a cookie named “ponyracer_session”, signed
//   with HMAC-SHA256 so it cannot be forged client-side:
//
//      base64url(login) "." base64url(HMAC(key, login))
//
//   The API token is never stored; this client only needs the name.
//
//------------------------------------------------------------------------------

package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const (
	cookieName = "ponyracer_session"
	lifetime   = 14 * 24 * time.Hour
)

// Manager signs and reads session cookies.
type Manager struct {
	key []byte
}

// New returns a Manager signing with key.
func New(key []byte) *Manager { return &Manager{key: key} }

// LoginUser sets a session cookie for login.
//
// Callers invoke this after the API accepted the credentials.
func (m *Manager) LoginUser(w http.ResponseWriter, r *http.Request, login string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    m.encode(login),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil, // only send over HTTPS
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(lifetime),
	})
}

// LogoutUser clears the session cookie.
func (m *Manager) LogoutUser(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// CurrentLogin returns the login stored in the session, if any.
//
// ok == false when the cookie is missing, empty, or badly signed.
func (m *Manager) CurrentLogin(r *http.Request) (login string, ok bool) {
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return m.decode(c.Value)
}

func (m *Manager) encode(login string) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(login)) + "." + enc.EncodeToString(m.sign(login))
}

func (m *Manager) decode(v string) (string, bool) {
	enc := base64.RawURLEncoding
	rawLogin, rawSig, found := strings.Cut(v, ".")
	if !found {
		return "", false
	}
	login, err := enc.DecodeString(rawLogin)
	if err != nil {
		return "", false
	}
	sig, err := enc.DecodeString(rawSig)
	if err != nil || !hmac.Equal(sig, m.sign(string(login))) {
		return "", false
	}
	return string(login), true
}

func (m *Manager) sign(login string) []byte {
	mac := hmac.New(sha256.New, m.key)
	mac.Write([]byte(login))
	return mac.Sum(nil)
}
