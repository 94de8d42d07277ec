// Package app arma el servicio completo a partir de la configuración:
// validador TLS, codec de estado, backchannel, ledger, coordinator y router.
package app

import (
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dropDatabas3/twitter-signin/internal/cache"
	"github.com/dropDatabas3/twitter-signin/internal/config"
	apphttp "github.com/dropDatabas3/twitter-signin/internal/http"
	"github.com/dropDatabas3/twitter-signin/internal/http/controllers/health"
	"github.com/dropDatabas3/twitter-signin/internal/http/controllers/signin"
	"github.com/dropDatabas3/twitter-signin/internal/http/router"
	"github.com/dropDatabas3/twitter-signin/internal/observability/logger"
	"github.com/dropDatabas3/twitter-signin/internal/rate"
	"github.com/dropDatabas3/twitter-signin/internal/security/certpin"
	"github.com/dropDatabas3/twitter-signin/internal/security/stateprotect"
	"github.com/dropDatabas3/twitter-signin/internal/twitter"
)

// Deps son los colaboradores que el host puede inyectar. Todos opcionales.
type Deps struct {
	// Registry para métricas (nil = default de prometheus).
	Registry prometheus.Registerer
	// SignIn recibe la identidad autenticada (nil = JSONSignIn).
	SignIn signin.SignInHandler
	Events twitter.Events
	Parser twitter.IdentityParser
	// Cache reemplaza al construido desde cfg.Cache (útil en tests).
	Cache cache.Client
}

// App es el servicio armado.
type App struct {
	Handler     http.Handler
	Coordinator *twitter.Coordinator
	Validator   *certpin.Validator

	cache     cache.Client
	ownsCache bool
}

// New construye el App. Cualquier error de configuración se devuelve antes de servir.
func New(cfg *config.Config, deps Deps) (*App, error) {
	log := logger.L().With(logger.Layer("app"))

	validator, err := NewValidator(cfg)
	if err != nil {
		return nil, err
	}

	key, err := stateprotect.ParseMasterKey(cfg.State.ProtectionKey)
	if err != nil {
		return nil, fmt.Errorf("app: state protection key: %w", err)
	}
	codec, err := stateprotect.New(stateprotect.Options{MasterKey: key, MaxAge: cfg.StateMaxAge()})
	if err != nil {
		return nil, err
	}

	backchannel, err := twitter.NewBackchannelClient(twitter.BackchannelConfig{
		Endpoints:   cfg.Endpoints(),
		Credentials: cfg.Credentials(),
		Timeout:     cfg.BackchannelTimeout(),
		Validator:   validator,
	})
	if err != nil {
		return nil, err
	}

	a := &App{Validator: validator, cache: deps.Cache}
	checks := map[string]health.Pinger{}

	if cfg.NeedsCache() {
		if a.cache == nil {
			a.cache, err = cache.New(cache.Config{
				Driver:   cfg.Cache.Kind,
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
				Prefix:   cfg.Cache.Redis.Prefix,
			})
			if err != nil {
				return nil, fmt.Errorf("app: cache: %w", err)
			}
			a.ownsCache = true
		}
		checks["cache"] = a.cache
	}

	var ledger twitter.ReplayGuard
	if cfg.State.ReplayProtection {
		ledger = cache.NewNonceLedger(a.cache)
	}
	var startLimiter rate.Limiter
	if cfg.RateLimit.StartMax > 0 {
		startLimiter = rate.NewFixedWindow(a.cache, "rl:start:", cfg.RateLimit.StartMax, cfg.RateWindow())
	}

	a.Coordinator, err = twitter.NewCoordinator(twitter.CoordinatorConfig{
		Backchannel: backchannel,
		State:       codec,
		Endpoints:   cfg.Endpoints(),
		Parser:      deps.Parser,
		Events:      deps.Events,
		Ledger:      ledger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	metricsHandler, err := apphttp.RegisterMetrics(deps.Registry)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: metrics: %w", err)
	}

	opts := signin.Options{
		CallbackPath:  cfg.Twitter.CallbackPath,
		CookieName:    cfg.State.CookieName,
		StateMaxAge:   codec.MaxAge(),
		PublicBaseURL: cfg.Server.PublicBaseURL,
		Caption:       cfg.Twitter.Caption,
	}
	a.Handler = router.New(router.Deps{
		Signin: router.SigninRouterDeps{
			Controllers:  signin.NewControllers(a.Coordinator, deps.SignIn, opts),
			Options:      opts,
			StartLimiter: startLimiter,
		},
		System: router.SystemRouterDeps{
			Health:  health.NewControllers(checks),
			Metrics: metricsHandler,
		},
	})

	log.Info("twitter sign-in ready",
		logger.String("callback_path", opts.CallbackPath),
		logger.String("trust", validator.Policy().String()),
		logger.Bool("replay_protection", ledger != nil),
		logger.Bool("start_rate_limit", startLimiter != nil),
		zap.Duration("backchannel_timeout", backchannel.Timeout()),
	)
	return a, nil
}

// Close libera el cache si el App lo abrió.
func (a *App) Close() error {
	if a.ownsCache && a.cache != nil {
		return a.cache.Close()
	}
	return nil
}

// NewValidator construye el validador de certificados desde cfg.Twitter.Trust.
func NewValidator(cfg *config.Config) (*certpin.Validator, error) {
	trust := cfg.Twitter.Trust
	policy, err := certpin.ParsePolicy(trust.Mode)
	if err != nil {
		return nil, err
	}
	mode, err := certpin.ParseChainMode(trust.Chain)
	if err != nil {
		return nil, err
	}
	pins, err := certpin.NewPinSet(trust.PinnedSKIs...)
	if err != nil {
		return nil, err
	}

	var roots *x509.CertPool
	if trust.RootCAFile != "" {
		pem, err := os.ReadFile(trust.RootCAFile)
		if err != nil {
			return nil, fmt.Errorf("app: root ca file: %w", err)
		}
		roots = x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return nil, errors.New("app: root ca file has no PEM certificates")
		}
	}

	return certpin.New(certpin.Config{Policy: policy, Mode: mode, Pins: pins, Roots: roots})
}
