package signin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/twitter-signin/internal/domain/types"
	"github.com/dropDatabas3/twitter-signin/internal/twitter"
)

type fakeHandshake struct {
	beginErr    error
	gotReturn   string
	gotOpts     int
	gotCb       twitter.Callback
	result      *twitter.Result
}

func (f *fakeHandshake) Begin(_ context.Context, returnURL string, opts ...twitter.BeginOption) (*twitter.Challenge, error) {
	f.gotReturn = returnURL
	f.gotOpts = len(opts)
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &twitter.Challenge{
		Phase:       twitter.StateAwaitingAuthorization,
		RedirectURL: "https://api.twitter.com/oauth/authenticate?oauth_token=T1",
		State:       "opaque-blob",
	}, nil
}

func (f *fakeHandshake) Complete(_ context.Context, cb twitter.Callback) *twitter.Result {
	f.gotCb = cb
	return f.result
}

func testOptions() Options {
	return Options{
		CallbackPath:  "/signin-twitter",
		CookieName:    "__TwitterState",
		StateMaxAge:   15 * time.Minute,
		PublicBaseURL: "https://app.example",
		Caption:       "Twitter",
	}
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func TestStart_SetsCookieAndRedirects(t *testing.T) {
	hs := &fakeHandshake{}
	c := NewControllers(hs, nil, testOptions())

	req := httptest.NewRequest(http.MethodGet, "/signin-twitter/start?returnUrl=/home", nil)
	rec := httptest.NewRecorder()
	c.Start.Start(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "https://api.twitter.com/oauth/authenticate?oauth_token=T1", rec.Header().Get("Location"))
	require.Equal(t, "/home", hs.gotReturn)
	require.Equal(t, 1, hs.gotOpts)

	ck := findCookie(t, rec, "__TwitterState")
	require.Equal(t, "opaque-blob", ck.Value)
	require.True(t, ck.HttpOnly)
	require.True(t, ck.Secure)
	require.Equal(t, "/signin-twitter", ck.Path)
	require.Equal(t, 900, ck.MaxAge)
}

func TestStart_BackchannelFailureMapsStatus(t *testing.T) {
	cases := []struct {
		kind   twitter.Kind
		status int
		code   string
	}{
		{twitter.KindBackchannelTimeout, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"},
		{twitter.KindUntrustedEndpoint, http.StatusBadGateway, "UNTRUSTED_UPSTREAM"},
		{twitter.KindProviderRejected, http.StatusBadGateway, "UPSTREAM_REJECTED"},
		{twitter.KindHandshakeFailed, http.StatusBadGateway, "HANDSHAKE_FAILED"},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			hs := &fakeHandshake{beginErr: &twitter.Error{Kind: tc.kind, Op: "request_token", Err: errors.New("secret detail")}}
			c := NewControllers(hs, nil, testOptions())

			rec := httptest.NewRecorder()
			c.Start.Start(rec, httptest.NewRequest(http.MethodGet, "/signin-twitter/start", nil))

			require.Equal(t, tc.status, rec.Code)
			require.Contains(t, rec.Body.String(), tc.code)
			require.NotContains(t, rec.Body.String(), "secret detail")
			require.Empty(t, rec.Result().Cookies())
		})
	}
}

func TestStart_RejectsPost(t *testing.T) {
	c := NewControllers(&fakeHandshake{}, nil, testOptions())
	rec := httptest.NewRecorder()
	c.Start.Start(rec, httptest.NewRequest(http.MethodPost, "/signin-twitter/start", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCallback_AuthenticatedCallsSignIn(t *testing.T) {
	hs := &fakeHandshake{result: &twitter.Result{
		Phase: twitter.StateAuthenticated,
		Identity: &types.IdentityResult{
			ExternalUserID:    "38895958",
			ScreenName:        "theSeanCook",
			AccessToken:       "at",
			AccessTokenSecret: "at-secret",
			ReturnURL:         "/home",
		},
		ReturnURL: "/home",
	}}
	c := NewControllers(hs, nil, testOptions())

	req := httptest.NewRequest(http.MethodGet, "/signin-twitter?oauth_token=T1&oauth_verifier=V123", nil)
	req.AddCookie(&http.Cookie{Name: "__TwitterState", Value: "opaque-blob"})
	rec := httptest.NewRecorder()
	c.Callback.Callback(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, twitter.Callback{Token: "T1", Verifier: "V123", State: "opaque-blob"}, hs.gotCb)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "38895958", body["external_user_id"])
	require.Equal(t, "theSeanCook", body["screen_name"])
	require.NotContains(t, rec.Body.String(), "at-secret")
	require.NotContains(t, rec.Body.String(), "access_token")

	ck := findCookie(t, rec, "__TwitterState")
	require.Equal(t, -1, ck.MaxAge)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestCallback_CustomSignInHandler(t *testing.T) {
	hs := &fakeHandshake{result: &twitter.Result{
		Phase:    twitter.StateAuthenticated,
		Identity: &types.IdentityResult{ExternalUserID: "1", ReturnURL: "/after"},
	}}
	c := NewControllers(hs, SignInHandlerFunc(func(w http.ResponseWriter, r *http.Request, id *types.IdentityResult) {
		http.Redirect(w, r, id.ReturnURL, http.StatusFound)
	}), testOptions())

	rec := httptest.NewRecorder()
	c.Callback.Callback(rec, httptest.NewRequest(http.MethodGet, "/signin-twitter?oauth_token=a&oauth_verifier=b", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/after", rec.Header().Get("Location"))
}

func TestCallback_DeniedRedirectsToReturnURL(t *testing.T) {
	hs := &fakeHandshake{result: &twitter.Result{
		Phase:     twitter.StateUserDenied,
		ReturnURL: "/settings?tab=profile",
		Err:       &twitter.Error{Kind: twitter.KindUserDenied, Op: "callback"},
	}}
	c := NewControllers(hs, nil, testOptions())

	rec := httptest.NewRecorder()
	c.Callback.Callback(rec, httptest.NewRequest(http.MethodGet, "/signin-twitter?denied=T1", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/settings", loc.Path)
	require.Equal(t, "access_denied", loc.Query().Get("error"))
	require.Equal(t, "profile", loc.Query().Get("tab"))
	require.Equal(t, "T1", hs.gotCb.Denied)
}

func TestCallback_FailuresMapToErrors(t *testing.T) {
	cases := []struct {
		phase  twitter.State
		kind   twitter.Kind
		status int
	}{
		{twitter.StateCorrelationInvalid, twitter.KindCorrelationInvalid, http.StatusBadRequest},
		{twitter.StateHandshakeFailed, twitter.KindBackchannelTimeout, http.StatusGatewayTimeout},
		{twitter.StateHandshakeFailed, twitter.KindUntrustedEndpoint, http.StatusBadGateway},
		{twitter.StateHandshakeFailed, twitter.KindProviderRejected, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			hs := &fakeHandshake{result: &twitter.Result{Phase: tc.phase, Err: &twitter.Error{Kind: tc.kind, Op: "callback"}}}
			c := NewControllers(hs, nil, testOptions())

			rec := httptest.NewRecorder()
			c.Callback.Callback(rec, httptest.NewRequest(http.MethodGet, "/signin-twitter?oauth_token=a&oauth_verifier=b", nil))
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, -1, findCookie(t, rec, "__TwitterState").MaxAge)
		})
	}
}

func TestDeniedURL_Sanitized(t *testing.T) {
	require.Equal(t, "/?error=access_denied", deniedURL("https://evil.example/"))
	require.Equal(t, "/?error=access_denied", deniedURL(""))
}

func TestProviders_List(t *testing.T) {
	c := NewControllers(&fakeHandshake{}, nil, testOptions())
	rec := httptest.NewRecorder()
	c.Providers.List(rec, httptest.NewRequest(http.MethodGet, "/signin-twitter/providers", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"providers":[{"name":"twitter","caption":"Twitter","start_url":"/signin-twitter/start"}]}`, rec.Body.String())
}

func TestBaseURL_FromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://app.local/x", nil)
	require.Equal(t, "http://app.local", baseURL(req, ""))
	require.Equal(t, "https://pub.example", baseURL(req, "https://pub.example/"))
}
