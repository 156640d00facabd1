package serverfx

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-connect/pkg/bundlefx"
	"github.com/joeydtaylor/steeze-connect/pkg/connectivity"
	"github.com/joeydtaylor/steeze-connect/pkg/core"
	"github.com/joeydtaylor/steeze-connect/pkg/manifest"
	"github.com/joeydtaylor/steeze-connect/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-connect/pkg/middleware/logger"
	"github.com/joeydtaylor/steeze-connect/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-connect/pkg/transport/httpx"
)

// ---------- Options ----------

type Config struct {
	Service         string // for logs only
	ManifestEnv     string // e.g., CONNECT_MANIFEST
	DefaultManifest string // e.g., "manifest.toml"
	ListenEnv       string // SERVER_LISTEN_ADDRESS
	TLSCertEnv      string // SSL_SERVER_CERTIFICATE
	TLSKeyEnv       string // SSL_SERVER_KEY
	PreflightEnv    string // seconds; 0 disables the startup check
}

type Option func(*Config)

func WithService(s string) Option            { return func(c *Config) { c.Service = s } }
func WithManifestEnv(k string) Option        { return func(c *Config) { c.ManifestEnv = k } }
func WithDefaultManifest(path string) Option { return func(c *Config) { c.DefaultManifest = path } }
func WithListenEnv(k string) Option          { return func(c *Config) { c.ListenEnv = k } }
func WithTLSCertKeyEnv(cert, key string) Option {
	return func(c *Config) { c.TLSCertEnv, c.TLSKeyEnv = cert, key }
}
func WithPreflightEnv(k string) Option { return func(c *Config) { c.PreflightEnv = k } }

func defaultConfig() Config {
	return Config{
		Service:         "steeze-connect",
		ManifestEnv:     "CONNECT_MANIFEST",
		DefaultManifest: "manifest.toml",
		ListenEnv:       "SERVER_LISTEN_ADDRESS",
		TLSCertEnv:      "SSL_SERVER_CERTIFICATE",
		TLSKeyEnv:       "SSL_SERVER_KEY",
		PreflightEnv:    "CONNECT_PREFLIGHT_SECONDS",
	}
}

// Module returns a complete Fx option set; add app-specific fx.Invoke(...) alongside.
func Module(opts ...Option) fx.Option {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return fx.Options(
		// Middleware stack: auth, access log, metrics
		bundlefx.Module,
		// Router impl
		fx.Provide(httpx.NewChi),
		// Config into DI
		fx.Supply(cfg),
		// Manifest, loaded once
		fx.Provide(provideManifest),
		// Destination client
		fx.Provide(provideConnectivity),
		// Router
		fx.Provide(fx.Annotate(provideRouter, fx.ResultTags(`name:"app"`))),
		// Lifecycle
		fx.Invoke(registerPreflight),
		fx.Invoke(registerHooks),
	)
}

func provideManifest(cfg Config, zl *zap.Logger) (manifest.Config, error) {
	path := envOr(cfg.ManifestEnv, cfg.DefaultManifest)
	man, err := core.LoadConfig(path)
	if err != nil {
		zl.Error("manifest load failed", zap.Error(err), zap.String("path", path))
		return manifest.Config{}, err
	}
	zl.Info("manifest loaded",
		zap.String("path", path),
		zap.Int("routes", len(man.Routes)),
		zap.Strings("destinations", man.Destinations()),
	)
	return man, nil
}

func provideConnectivity(zl *zap.Logger) *connectivity.Client {
	return connectivity.New(
		connectivity.WithLogger(zl.Named("connectivity")),
		connectivity.WithStepObserver(metrics.ObserveStep),
	)
}

// ---------- Router ----------

type routerDeps struct {
	fx.In

	Manifest manifest.Config
	Auth     *auth.Middleware
	LogMW    *logger.Middleware
	Metrics  http.Handler
	Dest     *connectivity.Client
	Router   httpx.Router
	Log      *zap.Logger
}

func provideRouter(d routerDeps) http.Handler {
	return core.BuildRouter(d.Manifest, core.BuildDeps{
		Auth:         d.Auth,
		LogMW:        d.LogMW,
		Metrics:      d.Metrics,
		Router:       d.Router,
		Destinations: d.Dest,
		Log:          d.Log,
	})
}

// ---------- Lifecycle ----------

// registerPreflight checks that the platform bindings work before traffic
// arrives. A failure is logged, not fatal: the platform may still be
// provisioning and every request retries the chain anyway.
func registerPreflight(lc fx.Lifecycle, cfg Config, c *connectivity.Client, zl *zap.Logger) {
	budget := 30 * time.Second
	if v := os.Getenv(cfg.PreflightEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			budget = time.Duration(n) * time.Second
		}
	}
	if budget == 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := c.Preflight(ctx, budget); err != nil {
					zl.Warn("connectivity preflight failed", zap.Error(err))
					return
				}
				zl.Info("connectivity preflight ok")
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

type serverDeps struct {
	fx.In
	Logger *zap.Logger
	App    http.Handler `name:"app"`
}

func registerHooks(lc fx.Lifecycle, cfg Config, d serverDeps) {
	addr := envOr(cfg.ListenEnv, ":4000")
	cert := os.Getenv(cfg.TLSCertEnv)
	key := os.Getenv(cfg.TLSKeyEnv)

	srv := &http.Server{
		Addr:         addr,
		Handler:      d.App,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
		TLSConfig:    &tls.Config{MinVersion: tls.VersionTLS12},
	}
	useTLS := fileExists(cert) && fileExists(key)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if useTLS {
				d.Logger.Info("server starting (TLS)",
					zap.String("service", cfg.Service),
					zap.String("addr", addr),
					zap.String("cert", cert),
				)
				go func() {
					if err := srv.ListenAndServeTLS(cert, key); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.Logger.Fatal("server failed", zap.Error(err))
					}
				}()
				return nil
			}
			d.Logger.Info("server starting (PLAINTEXT)",
				zap.String("service", cfg.Service),
				zap.String("addr", addr),
			)
			srv.TLSConfig = nil
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					d.Logger.Fatal("server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Logger.Info("server stopping", zap.String("service", cfg.Service))
			return srv.Shutdown(ctx)
		},
	})
}

// ---------- tiny helpers ----------

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
