package oauth1

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/twitter-signin/internal/domain/types"
	"github.com/google/uuid"
)

// Signer firma requests con las credenciales del consumer.
// Es inmutable y seguro para uso concurrente.
type Signer struct {
	creds types.ConsumerCredentials
	now   func() time.Time
	nonce func() string
}

// Option personaliza un Signer (tests).
type Option func(*Signer)

// WithClock fija la fuente de tiempo para oauth_timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// WithNonce fija la fuente de oauth_nonce.
func WithNonce(nonce func() string) Option {
	return func(s *Signer) { s.nonce = nonce }
}

// NewSigner crea un Signer para las credenciales dadas.
func NewSigner(creds types.ConsumerCredentials, opts ...Option) *Signer {
	s := &Signer{
		creds: creds,
		now:   time.Now,
		nonce: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ConsumerKey returns the configured consumer key.
func (s *Signer) ConsumerKey() string { return s.creds.Key }

// Request describe lo que hay que firmar.
type Request struct {
	Method string
	URL    string
	// OAuth son parámetros oauth_* extra (oauth_callback, oauth_token, ...).
	OAuth map[string]string
	// Form son parámetros del body application/x-www-form-urlencoded; entran en la firma.
	Form url.Values
	// TokenSecret vacío en el primer tramo.
	TokenSecret string
}

// Authorize devuelve el valor del header Authorization para req.
func (s *Signer) Authorize(req Request) string {
	oauth := map[string]string{
		"oauth_consumer_key":     s.creds.Key,
		"oauth_nonce":            s.nonce(),
		"oauth_signature_method": SignatureMethod,
		"oauth_timestamp":        strconv.FormatInt(s.now().Unix(), 10),
		"oauth_version":          Version,
	}
	for k, v := range req.OAuth {
		oauth[k] = v
	}

	params := url.Values{}
	for k, v := range oauth {
		params.Set(k, v)
	}
	for k, vs := range req.Form {
		params[k] = append(params[k], vs...)
	}

	oauth[paramSignature] = Sign(req.Method, req.URL, params, s.creds.Secret, req.TokenSecret)
	return AuthorizationHeader(oauth)
}

// AuthorizationHeader arma `OAuth k="v", ...` con claves ordenadas y valores codificados.
func AuthorizationHeader(oauth map[string]string) string {
	keys := make([]string, 0, len(oauth))
	for k := range oauth {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = PercentEncode(k) + `="` + PercentEncode(oauth[k]) + `"`
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// ParseAuthorizationHeader is the inverse of AuthorizationHeader. Used by test providers.
func ParseAuthorizationHeader(h string) (map[string]string, bool) {
	rest, ok := strings.CutPrefix(h, "OAuth ")
	if !ok {
		return nil, false
	}
	out := map[string]string{}
	for _, part := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, false
		}
		v = strings.Trim(v, `"`)
		dk, err1 := url.PathUnescape(k)
		dv, err2 := url.PathUnescape(v)
		if err1 != nil || err2 != nil {
			return nil, false
		}
		out[dk] = dv
	}
	return out, true
}
