package router

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	apphttp "github.com/dropDatabas3/twitter-signin/internal/http"
	"github.com/dropDatabas3/twitter-signin/internal/http/controllers/health"
	"github.com/dropDatabas3/twitter-signin/internal/http/controllers/signin"
	"github.com/dropDatabas3/twitter-signin/internal/twitter"
)

type stubHandshake struct{}

func (stubHandshake) Begin(context.Context, string, ...twitter.BeginOption) (*twitter.Challenge, error) {
	return &twitter.Challenge{RedirectURL: "https://api.twitter.com/oauth/authenticate?oauth_token=T", State: "blob"}, nil
}

func (stubHandshake) Complete(context.Context, twitter.Callback) *twitter.Result {
	return &twitter.Result{Phase: twitter.StateCorrelationInvalid, Err: &twitter.Error{Kind: twitter.KindCorrelationInvalid, Op: "unprotect_state"}}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	metricsHandler, err := apphttp.RegisterMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	opts := signin.Options{CallbackPath: "/signin-twitter", CookieName: "__TwitterState", StateMaxAge: time.Minute, Caption: "Twitter"}
	return New(Deps{
		Signin: SigninRouterDeps{Controllers: signin.NewControllers(stubHandshake{}, nil, opts), Options: opts},
		System: SystemRouterDeps{Health: health.NewControllers(nil), Metrics: metricsHandler},
	})
}

func do(t *testing.T, h http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_SigninRoutes(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/signin-twitter/start?returnUrl=/x", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, h, http.MethodGet, "/signin-twitter?oauth_token=a&oauth_verifier=b", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_STATE")

	rec = do(t, h, http.MethodGet, "/signin-twitter/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"start_url":"/signin-twitter/start"`)
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")

	rec = do(t, h, http.MethodPost, "/signin-twitter", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_PropagatesRequestID(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/healthz", map[string]string{"X-Request-ID": "abc-123"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRouter_MetricsExposesRouteLabels(t *testing.T) {
	h := newTestRouter(t)
	do(t, h, http.MethodGet, "/signin-twitter/providers", nil)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `route="/signin-twitter/providers"`)
}
