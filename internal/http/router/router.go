// Package router arma el árbol de rutas HTTP sobre chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apphttp "github.com/dropDatabas3/twitter-signin/internal/http"
	httperrors "github.com/dropDatabas3/twitter-signin/internal/http/errors"
	mw "github.com/dropDatabas3/twitter-signin/internal/http/middlewares"
)

// Deps agrupa las dependencias de todas las rutas.
type Deps struct {
	Signin SigninRouterDeps
	System SystemRouterDeps
}

// New construye el handler raíz.
// Orden: request id -> logging -> recover -> headers -> métricas -> ruta.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithRecover(),
		mw.WithSecurityHeaders(),
		apphttp.WithMetrics,
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	RegisterSigninRoutes(r, deps.Signin)
	RegisterSystemRoutes(r, deps.System)
	return r
}
