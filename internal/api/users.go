package api

import (
	"context"
	"net/url"

	"github.com/yanizio/ponyracer/internal/race"
)

// User is the user record returned by the API.
type User struct {
	ID                  int    `json:"id,omitempty"`
	Login               string `json:"login"`
	Password            string `json:"password,omitempty"`
	BirthYear           int    `json:"birthYear,omitempty"`
	Money               int    `json:"money,omitempty"`
	RegistrationInstant string `json:"registrationInstant,omitempty"`
	Token               string `json:"token,omitempty"`
}

// Registration is the body of POST /api/users.
type Registration struct {
	Login     string `json:"login"`
	Password  string `json:"password"`
	BirthYear int    `json:"birthYear"`
}

// Credentials is the body of POST /api/users/authentication.
type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Users wraps the user endpoints.
type Users struct{ c *Client }

// Register creates a user and returns it.
func (u *Users) Register(ctx context.Context, r Registration) (User, error) {
	var out User
	err := u.c.post(ctx, "/api/users", r, &out)
	return out, err
}

// Authenticate checks credentials and returns the authenticated user.
func (u *Users) Authenticate(ctx context.Context, cr Credentials) (User, error) {
	var out User
	err := u.c.post(ctx, "/api/users/authentication", cr, &out)
	return out, err
}

// Races wraps the race endpoints.
type Races struct{ c *Client }

// List returns the pending races.
func (r *Races) List(ctx context.Context) ([]race.Race, error) {
	var out []race.Race
	err := r.c.get(ctx, "/api/races", url.Values{"status": {race.StatusPending}}, &out)
	return out, err
}
