// internal/form/bind.go
//
// Ponyracer – Forms subsystem: applying posted input to a Form.
//
// Context
//   Browsers post every input as text.  Bind converts each posted value to
//   the field's type and feeds it through SetFieldValue, so posted input
//   follows exactly the same dirty and validation path as a keystroke.
//   Values equal to the current one are skipped and never mark a field
//   dirty.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrBadToken is returned when the CSRF token is missing, forged, or expired.
var ErrBadToken = errors.New("security token invalid")

// TokenField is the hidden input carrying the CSRF token.
const TokenField = "csrf_token"

// ReadSubmission parses the POST body of r and verifies its CSRF token.
func ReadSubmission(r *http.Request, c *CSRF) (url.Values, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	if tok := r.PostForm.Get(TokenField); tok == "" || !c.Verify(tok) {
		return nil, ErrBadToken
	}
	return r.PostForm, nil
}

// Bind applies every posted field of d to f.  Fields absent from posted are
// left alone.
func Bind(f *Form, d *Definition, posted url.Values) error {
	for _, fd := range d.Fields {
		raw, ok := posted[fd.Name]
		if !ok || len(raw) == 0 {
			continue
		}
		if err := BindField(f, fd, raw[0]); err != nil {
			return err
		}
	}
	return nil
}

// BindField converts raw for fd and sets it when it differs from the current
// value.
func BindField(f *Form, fd FieldDef, raw string) error {
	v := Coerce(fd, raw)
	cur, ok := f.Field(fd.Name)
	if !ok {
		return ErrUnknownField
	}
	if sameValue(cur.Value, v) {
		return nil
	}
	return f.SetFieldValue(fd.Name, v)
}

// Coerce converts posted text to the value type of fd.  Number inputs become
// int (or float64) when they parse; blank stays "" so required can see it;
// anything else stays text and fails numeric rules.
func Coerce(fd FieldDef, raw string) any {
	if fd.Type != "number" {
		return raw
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil {
		return x
	}
	return raw
}
