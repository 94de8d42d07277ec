package app

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/twitter-signin/internal/config"
	"github.com/dropDatabas3/twitter-signin/internal/testutil"
)

const testKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

func testConfig(t *testing.T, p *testutil.FakeProvider) *config.Config {
	t.Helper()
	caFile := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caFile, p.PKI.CAPEM(), 0o600))

	cfg := config.Default()
	creds := p.Credentials()
	cfg.Twitter.ConsumerKey, cfg.Twitter.ConsumerSecret = creds.Key, creds.Secret
	ep := p.Endpoints()
	cfg.Twitter.Endpoints.RequestToken = ep.RequestTokenURL
	cfg.Twitter.Endpoints.Authorize = ep.AuthorizeURL
	cfg.Twitter.Endpoints.AccessToken = ep.AccessTokenURL
	cfg.Twitter.Trust.PinnedSKIs = []string{hex.EncodeToString(p.PKI.CA.SubjectKeyId)}
	cfg.Twitter.Trust.RootCAFile = caFile
	cfg.State.ProtectionKey = testKey
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg, Deps{Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func get(h http.Handler, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func stateCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "__TwitterState" {
			return c
		}
	}
	t.Fatal("state cookie not set")
	return nil
}

func TestApp_FullSignIn(t *testing.T) {
	p := testutil.NewFakeProvider(t, testutil.ProviderOptions{})
	a := newApp(t, testConfig(t, p))

	rec := get(a.Handler, "/signin-twitter/start?returnUrl=/dashboard")
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	token := loc.Query().Get("oauth_token")
	require.NotEmpty(t, token)
	ck := stateCookie(t, rec)

	verifier := p.Authorize(token)
	rec = get(a.Handler, "/signin-twitter?oauth_token="+url.QueryEscape(token)+"&oauth_verifier="+verifier, ck)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "38895958", body["external_user_id"])
	require.Equal(t, "theSeanCook", body["screen_name"])
	require.Equal(t, "/dashboard", body["return_url"])
}

func TestApp_ReplayRejectedWithRedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	p := testutil.NewFakeProvider(t, testutil.ProviderOptions{})
	cfg := testConfig(t, p)
	cfg.State.ReplayProtection = true
	cfg.Cache.Kind = "redis"
	cfg.Cache.Redis.Addr = mr.Addr()
	a := newApp(t, cfg)

	rec := get(a.Handler, "/signin-twitter/start")
	require.Equal(t, http.StatusFound, rec.Code)
	loc, _ := url.Parse(rec.Header().Get("Location"))
	token := loc.Query().Get("oauth_token")
	ck := stateCookie(t, rec)
	verifier := p.Authorize(token)

	target := "/signin-twitter?oauth_token=" + url.QueryEscape(token) + "&oauth_verifier=" + verifier
	require.Equal(t, http.StatusOK, get(a.Handler, target, ck).Code)

	rec = get(a.Handler, target, ck)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_STATE")
	require.EqualValues(t, 1, p.AccessTokenCalls.Load())

	rec = get(a.Handler, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","checks":{"cache":"up"}}`, rec.Body.String())
}

func TestApp_StartRateLimited(t *testing.T) {
	p := testutil.NewFakeProvider(t, testutil.ProviderOptions{})
	cfg := testConfig(t, p)
	cfg.RateLimit.StartMax = 1
	a := newApp(t, cfg)

	require.Equal(t, http.StatusFound, get(a.Handler, "/signin-twitter/start").Code)
	rec := get(a.Handler, "/signin-twitter/start")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.EqualValues(t, 1, p.RequestTokenCalls.Load())

	rec = get(a.Handler, "/healthz")
	require.JSONEq(t, `{"status":"ok","checks":{"cache":"up"}}`, rec.Body.String())
}

func TestApp_UntrustedProvider(t *testing.T) {
	p := testutil.NewFakeProvider(t, testutil.ProviderOptions{})
	cfg := testConfig(t, p)
	cfg.Twitter.Trust.PinnedSKIs = config.DefaultPinnedSKIs
	a := newApp(t, cfg)

	rec := get(a.Handler, "/signin-twitter/start")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "UNTRUSTED_UPSTREAM")
	require.EqualValues(t, 0, p.RequestTokenCalls.Load())
}

func TestNew_ConfigErrors(t *testing.T) {
	p := testutil.NewFakeProvider(t, testutil.ProviderOptions{})

	cases := map[string]func(c *config.Config){
		"bad key":        func(c *config.Config) { c.State.ProtectionKey = "short" },
		"bad trust mode": func(c *config.Config) { c.Twitter.Trust.Mode = "sometimes" },
		"bad chain mode": func(c *config.Config) { c.Twitter.Trust.Chain = "maybe" },
		"bad pin":        func(c *config.Config) { c.Twitter.Trust.PinnedSKIs = []string{"zz"} },
		"missing ca":     func(c *config.Config) { c.Twitter.Trust.RootCAFile = filepath.Join(t.TempDir(), "none.pem") },
		"http endpoint":  func(c *config.Config) { c.Twitter.Endpoints.RequestToken = "http://api.twitter.com/oauth/request_token" },
		"unknown cache":  func(c *config.Config) { c.State.ReplayProtection, c.Cache.Kind = true, "memcached" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t, p)
			mutate(cfg)
			_, err := New(cfg, Deps{Registry: prometheus.NewRegistry()})
			require.Error(t, err)
		})
	}
}

func TestNewValidator_SystemTrustWithoutPins(t *testing.T) {
	cfg := config.Default()
	cfg.Twitter.Trust.Mode = "system"
	cfg.Twitter.Trust.PinnedSKIs = nil
	v, err := NewValidator(cfg)
	require.NoError(t, err)
	require.Equal(t, "system", v.Policy().String())
}
