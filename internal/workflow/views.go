package workflow

import (
	"context"
	"time"

	"github.com/yanizio/ponyracer/internal/api"
	"github.com/yanizio/ponyracer/internal/form"
)

// Form identifiers, matching the YAML definitions.
const (
	LoginForm    = "login"
	RegisterForm = "register"
)

// Field names shared by the login and register forms.
const (
	FieldLogin     = "login"
	FieldPassword  = "password"
	FieldBirthYear = "birthYear"
)

// Fixed failure messages.  Server detail is never shown.
const (
	LoginFailure    = "Nope, try again"
	RegisterFailure = "Try again with another login"
)

// Authenticator checks credentials against the API.
type Authenticator interface {
	Authenticate(ctx context.Context, cr api.Credentials) (api.User, error)
}

// Registrar creates users through the API.
type Registrar interface {
	Register(ctx context.Context, r api.Registration) (api.User, error)
}

// NewLogin binds f to auth.  The payload is {login, password}.
func NewLogin(f *form.Form, auth Authenticator, nav Navigator, alerts Alerter) *Workflow {
	call := func(ctx context.Context, v form.Values) (api.User, error) {
		return auth.Authenticate(ctx, api.Credentials{
			Login:    v.String(FieldLogin),
			Password: v.String(FieldPassword),
		})
	}
	return New(LoginForm, LoginFailure, f, call, nav, alerts)
}

// NewRegister binds f to reg.  The payload is {login, password, birthYear}.
func NewRegister(f *form.Form, reg Registrar, nav Navigator, alerts Alerter) *Workflow {
	call := func(ctx context.Context, v form.Values) (api.User, error) {
		year, _ := v.Int(FieldBirthYear)
		return reg.Register(ctx, api.Registration{
			Login:     v.String(FieldLogin),
			Password:  v.String(FieldPassword),
			BirthYear: year,
		})
	}
	return New(RegisterForm, RegisterFailure, f, call, nav, alerts)
}

// RegisterDefaults returns the initial values of the register form: a birth
// year making the user exactly 18 this calendar year.  It is evaluated once,
// when the form is built.
func RegisterDefaults(now time.Time) map[string]any {
	return map[string]any{FieldBirthYear: now.Year() - 18}
}
