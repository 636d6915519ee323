// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from these layers (highest
precedence last):

  1. Defaults() for every key.
  2. Optional `<root>/conf/.env` file (godotenv, never overrides the real
     environment).
  3. `<root>/conf/global.yaml`, skipped when absent.
  4. Environment variables prefixed `PONYRACER_`, where `__` maps to “.”
     (e.g., `PONYRACER_HTTP__LISTEN_ADDR → http.listen_addr`).

Before unmarshalling, every string value starting with `vault:` is replaced
by the secret it points to.  The tree is then unmarshalled into the typed
structs, validated, enriched with the runtime root path, and cached in an
`atomic.Pointer` for lock-free reads.

Instrumentation
---------------
  • DEBUG spans – root discovery, YAML read, secret resolution.
  • ERROR spans – YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span  – final “config loaded” with key highlights.
  • Logs use the global *sugared* logger (`zap.S()`) so early boot issues
    surface even before the file logger is installed.
*/
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/ponyracer/internal/vault"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PONYRACER_"

var current atomic.Pointer[Config]

// Resolver turns a `vault:` reference into its secret.  *vault.Client
// satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, ref string) (string, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, ref string) (string, error) { return f(ctx, ref) }

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves PONYRACER_ROOT or climbs directories until
// conf/global.yaml is found.  Falls back to the working directory.
func rootDir() string {
	if r := os.Getenv(EnvPrefix + "ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	for dir := wd; ; {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load discovers the root and loads from it.  A Vault client is created
// only when the tree holds `vault:` references; its renewal loop lives as
// long as ctx.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, rootDir(), nil)
}

// LoadFrom reads the layers under root.  secrets may be nil.
func LoadFrom(ctx context.Context, root string, secrets Resolver) (*Config, error) {
	log := zap.S()
	log.Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	switch err := k.Load(file.Provider(yamlPath), yaml.Parser()); {
	case err == nil:
		log.Debugw("config yaml loaded", "file", yamlPath)
	case errors.Is(err, fs.ErrNotExist):
		log.Debugw("config yaml absent, using defaults", "file", yamlPath)
	default:
		log.Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}

	// Env overrides: PONYRACER_HTTP__LISTEN_ADDR → http.listen_addr
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		log.Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k, secrets); err != nil {
		log.Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		log.Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	if !filepath.IsAbs(cfg.Log.Dir) {
		cfg.Log.Dir = filepath.Join(root, cfg.Log.Dir)
	}
	if err := validateStruct(&cfg); err != nil {
		log.Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	log.Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"force_https", cfg.HTTP.ForceHTTPS,
		"api", cfg.API.BaseURL,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// Get returns the last loaded Config, or nil before the first Load.
func Get() *Config { return current.Load() }

// envKey maps PONYRACER_API__BASE_URL to api.base_url.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

// resolveSecrets replaces every `vault:` string in k.
func resolveSecrets(ctx context.Context, k *koanf.Koanf, secrets Resolver) error {
	for key, val := range k.All() {
		s, ok := val.(string)
		if !ok || !vault.IsRef(s) {
			continue
		}
		if secrets == nil {
			cli, err := vault.New(ctx)
			if err != nil {
				return err
			}
			secrets = cli
		}
		plain, err := secrets.Resolve(ctx, s)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if err := k.Set(key, plain); err != nil {
			return err
		}
		zap.S().Debugw("config secret resolved", "key", key)
	}
	return nil
}
