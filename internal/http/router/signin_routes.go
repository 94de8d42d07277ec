package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	ctrl "github.com/dropDatabas3/twitter-signin/internal/http/controllers/signin"
	mw "github.com/dropDatabas3/twitter-signin/internal/http/middlewares"
	"github.com/dropDatabas3/twitter-signin/internal/rate"
)

// SigninRouterDeps contiene las dependencias para las rutas de login con Twitter.
type SigninRouterDeps struct {
	Controllers *ctrl.Controllers
	Options     ctrl.Options
	// StartLimiter opcional: cada start dispara un request firmado a Twitter.
	StartLimiter rate.Limiter
}

// RegisterSigninRoutes registra callback, start y el listado de providers.
func RegisterSigninRoutes(r chi.Router, deps SigninRouterDeps) {
	c := deps.Controllers
	opts := deps.Options

	// GET {callback}/start?returnUrl=... - arranca el handshake (302 a Twitter)
	r.Method(http.MethodGet, opts.StartPath(), signinHandler(http.HandlerFunc(c.Start.Start),
		mw.WithRateLimit(mw.RateLimitConfig{Limiter: deps.StartLimiter, KeyFunc: mw.IPOnlyRateKey})))

	// GET {callback}?oauth_token=...&oauth_verifier=... - retorno desde Twitter
	r.Method(http.MethodGet, opts.CallbackPath, signinHandler(http.HandlerFunc(c.Callback.Callback)))

	// GET {callback}/providers - caption y URL de inicio para la UI
	r.Method(http.MethodGet, opts.ProvidersPath(), signinHandler(http.HandlerFunc(c.Providers.List)))
}

// signinHandler: ninguna respuesta del flujo se cachea.
func signinHandler(handler http.Handler, extra ...mw.Middleware) http.Handler {
	chain := append([]mw.Middleware{mw.WithNoStore()}, extra...)
	return mw.Chain(handler, chain...)
}
