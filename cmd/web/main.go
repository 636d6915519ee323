// cmd/web/main.go
//
// Ponyracer – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load configuration (defaults → .env → conf/global.yaml → PONYRACER_
//     env), resolving `vault:` secrets.
//
//  2. Start the daily rotating logger (tees to console in a TTY).
//
//  3. Build the API client (retrying HTTP + rate limiter).
//
//  4. Load the embedded form definitions and configure the rule registry.
//
//  5. Build the page environment: templates, CSRF signer, session cookies.
//
//  6. Mount the components (auth forms, races) on the root router, wrap it
//     with HTTPS enforcement when configured, and expose /metrics.
//
//  7. Serve until SIGINT or SIGTERM, then shut down gracefully.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"crypto/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/ponyracer/components/auth"
	"github.com/yanizio/ponyracer/components/races"
	"github.com/yanizio/ponyracer/internal/api"
	"github.com/yanizio/ponyracer/internal/component"
	"github.com/yanizio/ponyracer/internal/config"
	"github.com/yanizio/ponyracer/internal/form"
	"github.com/yanizio/ponyracer/internal/logger"
	"github.com/yanizio/ponyracer/internal/middleware"
	"github.com/yanizio/ponyracer/internal/server"
	"github.com/yanizio/ponyracer/internal/session"
	"github.com/yanizio/ponyracer/internal/view"
	"github.com/yanizio/ponyracer/internal/viewstate"
	"github.com/yanizio/ponyracer/internal/web"
)

func main() {
	// Bootstrap console logger until the file logger is up.
	boot, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(boot)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		zap.S().Errorw("ponyracer stopped", "err", err)
		_ = zap.L().Sync()
		os.Exit(1)
	}
	_ = zap.L().Sync()
}

func run(ctx context.Context) error {
	//
	// ── 1.  Configuration ──────────────────────────────────────────────
	//
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	//
	// ── 2.  Logger ─────────────────────────────────────────────────────
	//
	log, err := logger.New(logger.Options{
		Dir:   cfg.Log.Dir,
		Tee:   cfg.Log.Tee || logger.RunningInTTY(),
		Level: cfg.Log.Level,
	})
	if err != nil {
		return err
	}

	//
	// ── 3.  API client ─────────────────────────────────────────────────
	//
	client, err := api.New(cfg.API.ClientOptions())
	if err != nil {
		return err
	}

	//
	// ── 4.  Forms ──────────────────────────────────────────────────────
	//
	defs, err := web.Definitions()
	if err != nil {
		return err
	}
	registry := form.NewRegistry()
	registry.Configure(form.Options{
		ValidateOnInput: cfg.Forms.ValidateOnInput,
		Messages:        cfg.Forms.Messages,
	})

	//
	// ── 5.  Page environment ───────────────────────────────────────────
	//
	env := &web.Env{
		Views:    view.New(web.Templates(), view.Options{}),
		CSRF:     form.NewCSRF([]byte(cfg.Security.CSRFKey), cfg.Security.TokenMaxAge),
		Sessions: session.New(sessionKey(cfg.Security.SessionKey)),
	}

	//
	// ── 6.  Components and router ──────────────────────────────────────
	//
	authComp, err := auth.New(env, auth.Options{
		Definitions: defs,
		Registry:    registry,
		Users:       client.Users(),
		Views: viewstate.Options{
			IdleTTL:       cfg.Views.IdleTTL,
			MaxEntries:    cfg.Views.MaxEntries,
			EvictInterval: cfg.Views.EvictInterval,
		},
	})
	if err != nil {
		return err
	}
	comps := []component.Component{authComp, races.New(env, client.Races())}
	defer component.Close(comps...)

	var site http.Handler = web.NewRouter(env, comps...)
	if cfg.HTTP.ForceHTTPS {
		site = middleware.ForceHTTPS(site)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", site)

	//
	// ── 7.  Serve ──────────────────────────────────────────────────────
	//
	log.Infow("ponyracer starting", "addr", cfg.HTTP.ListenAddr, "api", cfg.API.BaseURL)
	return server.Run(ctx, server.New(cfg.HTTP.ListenAddr, mux), cfg.HTTP.ShutdownTimeout)
}

// sessionKey returns the configured key, or a random one when unset.
func sessionKey(configured string) []byte {
	if configured != "" {
		return []byte(configured)
	}
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	zap.S().Warnw("session key not configured, using ephemeral key")
	return key
}
