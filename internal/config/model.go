// internal/config/model.go
//
// Typed configuration model for Ponyracer.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from four overlay layers:
//
//   • built-in defaults                          – Defaults(),
//   • optional `.env`                            – dotenv values,
//   • `conf/global.yaml`                         – primary static file,
//   • `PONYRACER_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • Durations accept Go syntax (“30m”, “10s”).
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

import (
	"time"

	"github.com/yanizio/ponyracer/internal/api"
)

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr      string        `koanf:"listen_addr"      validate:"required,hostname_port"`
	ForceHTTPS      bool          `koanf:"force_https"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

//
// API section
//

// API points at the Ponyracer backend.
type API struct {
	BaseURL   string        `koanf:"base_url"   validate:"required,url"`
	Timeout   time.Duration `koanf:"timeout"    validate:"gte=0"`
	RetryMax  int           `koanf:"retry_max"  validate:"gte=0,lte=10"`
	RateLimit float64       `koanf:"rate_limit" validate:"gte=0"`
	Burst     int           `koanf:"burst"      validate:"gte=0"`
}

// ClientOptions converts the section for api.New.
func (a API) ClientOptions() api.Options {
	return api.Options{
		BaseURL:   a.BaseURL,
		Timeout:   a.Timeout,
		RetryMax:  a.RetryMax,
		RateLimit: a.RateLimit,
		Burst:     a.Burst,
	}
}

//
// Views section
//

// Views bounds the mounted form views kept in memory.
type Views struct {
	IdleTTL       time.Duration `koanf:"idle_ttl"       validate:"gte=0"`
	MaxEntries    int           `koanf:"max_entries"    validate:"gte=0"`
	EvictInterval time.Duration `koanf:"evict_interval" validate:"gte=0"`
}

//
// Security section
//

// Security holds signing keys.  Both keys may be Vault references.  Empty
// keys are replaced by ephemeral ones at startup, which invalidates tokens
// and sessions on restart.
type Security struct {
	CSRFKey     string        `koanf:"csrf_key"      validate:"omitempty,min=32"`
	SessionKey  string        `koanf:"session_key"   validate:"omitempty,min=32"`
	TokenMaxAge time.Duration `koanf:"token_max_age" validate:"gte=0"`
}

//
// Forms section
//

// Forms configures the rule registry.  Message keys are rule names
// (“required”, “min”, …); values are templates using {field} and 0:{name}.
type Forms struct {
	ValidateOnInput bool              `koanf:"validate_on_input"`
	Messages        map[string]string `koanf:"messages"`
}

//
// Log section
//

// Log configures the zap + lumberjack sink.
type Log struct {
	Dir   string `koanf:"dir"`
	Tee   bool   `koanf:"tee"`
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // PONYRACER_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	API      API      `koanf:"api"`
	Views    Views    `koanf:"views"`
	Security Security `koanf:"security"`
	Forms    Forms    `koanf:"forms"`
	Log      Log      `koanf:"log"`
	Paths    Paths    `koanf:"-"`
}

// Defaults returns the configuration used for keys the YAML and the
// environment leave unset.
func Defaults() Config {
	return Config{
		HTTP: HTTP{
			ListenAddr:      ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		API: API{
			BaseURL:  api.DefaultBaseURL,
			Timeout:  10 * time.Second,
			RetryMax: 2,
			Burst:    1,
		},
		Views: Views{
			IdleTTL:       30 * time.Minute,
			MaxEntries:    10000,
			EvictInterval: time.Minute,
		},
		Security: Security{TokenMaxAge: 2 * time.Hour},
		Forms:    Forms{ValidateOnInput: true},
		Log:      Log{Dir: "logs", Level: "info"},
	}
}
