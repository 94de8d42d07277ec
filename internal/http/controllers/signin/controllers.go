// Package signin contiene los controllers del login con Twitter: start, callback y
// el listado de providers para la UI del host.
package signin

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/twitter-signin/internal/domain/types"
	"github.com/dropDatabas3/twitter-signin/internal/http/middlewares"
	"github.com/dropDatabas3/twitter-signin/internal/twitter"
)

// Handshake es lo que los controllers usan del twitter.Coordinator.
type Handshake interface {
	Begin(ctx context.Context, returnURL string, opts ...twitter.BeginOption) (*twitter.Challenge, error)
	Complete(ctx context.Context, cb twitter.Callback) *twitter.Result
}

// SignInHandler es el colaborador de sesión del host: recibe la identidad autenticada
// y decide qué responder (cookie de sesión, redirect, etc).
type SignInHandler interface {
	SignIn(w http.ResponseWriter, r *http.Request, id *types.IdentityResult)
}

// SignInHandlerFunc adapta una función a SignInHandler.
type SignInHandlerFunc func(w http.ResponseWriter, r *http.Request, id *types.IdentityResult)

func (f SignInHandlerFunc) SignIn(w http.ResponseWriter, r *http.Request, id *types.IdentityResult) {
	f(w, r, id)
}

// JSONSignIn es el SignInHandler por defecto: describe la identidad sin secretos.
type JSONSignIn struct{}

type identityResponse struct {
	Provider       string            `json:"provider"`
	ExternalUserID string            `json:"external_user_id"`
	ScreenName     string            `json:"screen_name,omitempty"`
	ReturnURL      string            `json:"return_url"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

func (JSONSignIn) SignIn(w http.ResponseWriter, _ *http.Request, id *types.IdentityResult) {
	writeJSON(w, http.StatusOK, identityResponse{
		Provider:       "twitter",
		ExternalUserID: id.ExternalUserID,
		ScreenName:     id.ScreenName,
		ReturnURL:      id.ReturnURL,
		Attributes:     id.RawAttributes,
	})
}

// Options configura las rutas y la cookie de correlación.
type Options struct {
	CallbackPath string
	CookieName   string
	StateMaxAge  time.Duration
	// PublicBaseURL fija scheme://host del oauth_callback; vacío = del request.
	PublicBaseURL string
	Caption       string
}

// StartPath returns the path of the start endpoint.
func (o Options) StartPath() string { return strings.TrimRight(o.CallbackPath, "/") + "/start" }

// ProvidersPath returns the path of the providers listing.
func (o Options) ProvidersPath() string { return strings.TrimRight(o.CallbackPath, "/") + "/providers" }

// Controllers agrupa los controllers del dominio signin.
type Controllers struct {
	Start     *StartController
	Callback  *CallbackController
	Providers *ProvidersController
}

// NewControllers crea el agregador. signIn nil usa JSONSignIn.
func NewControllers(hs Handshake, signIn SignInHandler, opts Options) *Controllers {
	if signIn == nil {
		signIn = JSONSignIn{}
	}
	return &Controllers{
		Start:     &StartController{handshake: hs, opts: opts},
		Callback:  &CallbackController{handshake: hs, signIn: signIn, opts: opts},
		Providers: &ProvidersController{opts: opts},
	}
}

func baseURL(r *http.Request, public string) string {
	if public != "" {
		return strings.TrimRight(public, "/")
	}
	scheme := "http"
	if middlewares.IsHTTPS(r) {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func stateCookie(opts Options, value string) *http.Cookie {
	return &http.Cookie{
		Name:     opts.CookieName,
		Value:    value,
		Path:     opts.CallbackPath,
		MaxAge:   int(opts.StateMaxAge.Seconds()),
		Expires:  time.Now().Add(opts.StateMaxAge).UTC(),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func clearStateCookie(opts Options) *http.Cookie {
	return &http.Cookie{
		Name:     opts.CookieName,
		Value:    "",
		Path:     opts.CallbackPath,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
