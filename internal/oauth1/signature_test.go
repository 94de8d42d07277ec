package oauth1

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/twitter-signin/internal/domain/types"
	"github.com/stretchr/testify/require"
)

// Ejemplo publicado en la documentación de Twitter ("Creating a signature").
const (
	docConsumerSecret = "kAcSOqF21Fu85e7zjz7ZN2U4ZRhfV3WpwPAoE3Z7kBw"
	docTokenSecret    = "LswwdoUaIvS8ltyTt5jkRh4J50vUPVVHtR2YPi5kE"
	docURL            = "https://api.twitter.com/1.1/statuses/update.json"
)

func docParams() url.Values {
	return url.Values{
		"status":                 {"Hello Ladies + Gentlemen, a signed OAuth request!"},
		"include_entities":       {"true"},
		"oauth_consumer_key":     {"xvz1evFS4wEEPTGEFPHBog"},
		"oauth_nonce":            {"kYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg"},
		"oauth_signature_method": {"HMAC-SHA1"},
		"oauth_timestamp":        {"1318622958"},
		"oauth_token":            {"370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb"},
		"oauth_version":          {"1.0"},
	}
}

func TestPercentEncode(t *testing.T) {
	cases := map[string]string{
		"Ladies + Gentlemen": "Ladies%20%2B%20Gentlemen",
		"An encoded string!": "An%20encoded%20string%21",
		"Dogs, Cats & Mice":  "Dogs%2C%20Cats%20%26%20Mice",
		"☃":                  "%E2%98%83",
		"abcXYZ019-._~":      "abcXYZ019-._~",
		"a*b'c(d)":           "a%2Ab%27c%28d%29",
		"/path?q=1":          "%2Fpath%3Fq%3D1",
	}
	for in, want := range cases {
		require.Equal(t, want, PercentEncode(in), "input %q", in)
	}
}

func TestPercentEncode_DiffersFromQueryEscape(t *testing.T) {
	// url.QueryEscape usa '+' para el espacio y deja '*' sin codificar en otras variantes.
	in := "a b*c"
	require.Equal(t, "a%20b%2Ac", PercentEncode(in))
	require.NotEqual(t, url.QueryEscape(in), PercentEncode(in))
}

func TestBaseString_DocumentationExample(t *testing.T) {
	got, err := BaseString("post", docURL, docParams())
	require.NoError(t, err)
	want := "POST&https%3A%2F%2Fapi.twitter.com%2F1.1%2Fstatuses%2Fupdate.json&" +
		"include_entities%3Dtrue%26oauth_consumer_key%3Dxvz1evFS4wEEPTGEFPHBog%26" +
		"oauth_nonce%3DkYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg%26" +
		"oauth_signature_method%3DHMAC-SHA1%26oauth_timestamp%3D1318622958%26" +
		"oauth_token%3D370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb%26" +
		"oauth_version%3D1.0%26" +
		"status%3DHello%2520Ladies%2520%252B%2520Gentlemen%252C%2520a%2520signed%2520OAuth%2520request%2521"
	require.Equal(t, want, got)
}

func TestSign_DocumentationExample(t *testing.T) {
	sig := Sign("POST", docURL, docParams(), docConsumerSecret, docTokenSecret)
	require.Equal(t, "hCtSmYh+iHYCEqBWrE7C7hYmtUk=", sig)
}

func TestSign_ExcludesSignatureParam(t *testing.T) {
	p := docParams()
	before := Sign("POST", docURL, p, docConsumerSecret, docTokenSecret)
	p.Set("oauth_signature", "whatever")
	after := Sign("POST", docURL, p, docConsumerSecret, docTokenSecret)
	require.Equal(t, before, after)
}

func TestSign_Deterministic(t *testing.T) {
	a := Sign("POST", docURL, docParams(), "cs", "ts")
	b := Sign("POST", docURL, docParams(), "cs", "ts")
	require.Equal(t, a, b)
}

func TestSign_ChangesWithAnyInput(t *testing.T) {
	base := Sign("POST", docURL, docParams(), "cs", "ts")

	for name := range docParams() {
		p := docParams()
		p.Set(name, p.Get(name)+"x")
		require.NotEqual(t, base, Sign("POST", docURL, p, "cs", "ts"), "param %s", name)
	}
	require.NotEqual(t, base, Sign("GET", docURL, docParams(), "cs", "ts"))
	require.NotEqual(t, base, Sign("POST", docURL+"x", docParams(), "cs", "ts"))
	require.NotEqual(t, base, Sign("POST", docURL, docParams(), "cs2", "ts"))
	require.NotEqual(t, base, Sign("POST", docURL, docParams(), "cs", ""))
}

func TestSigningKey_EmptyTokenSecret(t *testing.T) {
	require.Equal(t, "a%26b&", SigningKey("a&b", ""))
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"HTTPS://API.Twitter.com:443/oauth/request_token?x=1#f": "https://api.twitter.com/oauth/request_token",
		"http://example.com:80":                                 "http://example.com/",
		"http://example.com:8080/a":                             "http://example.com:8080/a",
		"https://[::1]:443/p":                                   "https://[::1]/p",
	}
	for in, want := range cases {
		u, err := url.Parse(in)
		require.NoError(t, err)
		require.Equal(t, want, NormalizeURL(u), in)
	}
}

func TestBaseString_MergesQueryAndSortsDuplicates(t *testing.T) {
	got, err := BaseString("GET", "https://example.com/r?b=2&a=3", url.Values{"a": {"1"}})
	require.NoError(t, err)
	require.Equal(t, "GET&https%3A%2F%2Fexample.com%2Fr&a%3D1%26a%3D3%26b%3D2", got)
}

func TestSigner_AuthorizeRoundTrip(t *testing.T) {
	s := NewSigner(types.ConsumerCredentials{Key: "ck", Secret: "cs"},
		WithClock(func() time.Time { return time.Unix(1318622958, 0) }),
		WithNonce(func() string { return "fixed" }),
	)
	h := s.Authorize(Request{
		Method: "POST",
		URL:    "https://api.twitter.com/oauth/request_token",
		OAuth:  map[string]string{"oauth_callback": "https://app.example/signin-twitter"},
	})
	require.True(t, strings.HasPrefix(h, "OAuth "))

	parsed, ok := ParseAuthorizationHeader(h)
	require.True(t, ok)
	require.Equal(t, "ck", parsed["oauth_consumer_key"])
	require.Equal(t, "fixed", parsed["oauth_nonce"])
	require.Equal(t, "1318622958", parsed["oauth_timestamp"])
	require.Equal(t, "https://app.example/signin-twitter", parsed["oauth_callback"])

	params := url.Values{}
	for k, v := range parsed {
		params.Set(k, v)
	}
	want := Sign("POST", "https://api.twitter.com/oauth/request_token", params, "cs", "")
	require.Equal(t, want, parsed["oauth_signature"])
}

func TestSigner_FormParamsAreSigned(t *testing.T) {
	s := NewSigner(types.ConsumerCredentials{Key: "ck", Secret: "cs"},
		WithClock(func() time.Time { return time.Unix(1, 0) }),
		WithNonce(func() string { return "n" }),
	)
	req := Request{
		Method:      "POST",
		URL:         "https://api.twitter.com/oauth/access_token",
		OAuth:       map[string]string{"oauth_token": "rt"},
		Form:        url.Values{"oauth_verifier": {"V123"}},
		TokenSecret: "rts",
	}
	a, _ := ParseAuthorizationHeader(s.Authorize(req))
	req.Form = url.Values{"oauth_verifier": {"V124"}}
	b, _ := ParseAuthorizationHeader(s.Authorize(req))
	require.NotEqual(t, a["oauth_signature"], b["oauth_signature"])
}

func TestConsumerCredentials_StringRedactsSecret(t *testing.T) {
	c := types.ConsumerCredentials{Key: "ck", Secret: "super-secret"}
	require.NotContains(t, c.String(), "super-secret")
	require.NotContains(t, c.GoString(), "super-secret")
}
