// internal/vault/vault.go
//
// Vault client wrapper for Ponyracer.
//
// Context
// -------
//   - Provides a concurrency-safe wrapper around the HashiCorp Vault Go SDK.
//   - Adds background token renewal, KV-v2 reads, and per-key caching.
//   - Configuration values of the form “vault:<mount>/<path>#<key>” are
//     resolved through Resolve before the config is validated.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx)                      // during boot.
//  2. key, err := cli.Resolve(ctx, "vault:secret/ponyracer#csrf_key")
//
// Build tags: none.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// RefPrefix marks a configuration value stored in Vault.
const RefPrefix = "vault:"

// ErrBadRef is returned for references that are not “vault:path#key”.
var ErrBadRef = errors.New("malformed vault reference")

//
// SECTION 1.  Public façade
//

// Client is safe for concurrent use.  Zero value is invalid.
type Client struct {
	api *vault.Client

	cacheMu sync.RWMutex
	cache   map[string]cached // canonical path#key → value + expiry.
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client and starts a background token-renewal loop
// that lives as long as ctx.
//
// Environment expectations
// ------------------------
// • VAULT_ADDR   – scheme and host of the Vault server.
// • VAULT_TOKEN  – initial token (falls back to ~/.vault-token).
func New(ctx context.Context) (*Client, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		apiCli.SetToken(tok)
	}

	c := &Client{api: apiCli, cache: make(map[string]cached)}
	go c.renewLoop(ctx)
	return c, nil
}

// IsRef reports whether s is a Vault reference.
func IsRef(s string) bool { return strings.HasPrefix(s, RefPrefix) }

// ParseRef splits “vault:secret/ponyracer#csrf_key” into its secret path
// and key.
func ParseRef(ref string) (secretPath, key string, err error) {
	body, ok := strings.CutPrefix(ref, RefPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrBadRef, ref)
	}
	secretPath, key, ok = strings.Cut(body, "#")
	if !ok || secretPath == "" || key == "" || !strings.Contains(secretPath, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrBadRef, ref)
	}
	return secretPath, key, nil
}

// Resolve reads the value a reference points to.  Values are cached for
// the process lifetime; secrets only change on restart.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	p, k, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	return c.GetKV(ctx, p, k, 24*time.Hour)
}

// GetKV fetches a single key from a KV-v2 secret.  If ttl > 0 the result is
// cached for that duration.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("secret path and key must be non-empty")
	}

	canonical := secretPath + "#" + key

	if ttl > 0 {
		c.cacheMu.RLock()
		if cv, ok := c.cache[canonical]; ok && time.Now().Before(cv.exp) {
			c.cacheMu.RUnlock()
			return cv.val, nil
		}
		c.cacheMu.RUnlock()
	}

	mount, rel := splitMount(secretPath)
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}
	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", secretPath, key)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[canonical] = cached{val: sval, exp: time.Now().Add(ttl)}
		c.cacheMu.Unlock()
	}
	return sval, nil
}

//
// SECTION 2.  Background token renewal
//

func (c *Client) renewLoop(ctx context.Context) {
	for ctx.Err() == nil {
		backoff(ctx, c.renewOnce(ctx))
	}
}

// renewOnce runs one renewer until it stops and returns how long to wait
// before probing the token again.
func (c *Client) renewOnce(ctx context.Context) time.Duration {
	log := zap.S()

	sec, err := c.api.Auth().Token().RenewSelf(0)
	if err != nil {
		log.Warnw("vault token renew failed", "err", err)
		return 30 * time.Second
	}
	if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
		log.Infow("vault token is not renewable")
		return time.Hour
	}

	renewer, err := c.api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{Secret: sec})
	if err != nil {
		log.Warnw("vault renewer init failed", "err", err)
		return 30 * time.Second
	}
	go renewer.Start()
	defer renewer.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0
		case err := <-renewer.DoneCh():
			if err != nil {
				log.Warnw("vault token renewal stopped", "err", err)
			}
			return 15 * time.Second
		case ev := <-renewer.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				log.Debugw("vault token renewed", "ttl_s", ev.Secret.Auth.LeaseDuration)
			}
		}
	}
}

//
// SECTION 3.  Helpers
//

func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(p, "/")
	return
}

func backoff(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
