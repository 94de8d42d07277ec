package testutil

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/twitter-signin/internal/domain/types"
	"github.com/dropDatabas3/twitter-signin/internal/oauth1"
)

// Credenciales que usa el provider falso por defecto.
const (
	FakeConsumerKey    = "cChZNFj6T5R0TigYB9yd1w"
	FakeConsumerSecret = "L8qq9PZyRg6ieKGEKhZolGC0vJWLw8iEJ88DRdyOg"
)

// ProviderOptions configura el provider falso.
type ProviderOptions struct {
	PKI         *PKI
	Credentials types.ConsumerCredentials
	// Verifier que entrega Authorize (por defecto "V123").
	Verifier   string
	UserID     string
	ScreenName string
}

// FakeProvider es un provider OAuth 1.0a sobre TLS que verifica las firmas HMAC-SHA1
// de cada request. Los hooks permiten simular demoras y respuestas inválidas.
type FakeProvider struct {
	Server *httptest.Server
	PKI    *PKI

	creds      types.ConsumerCredentials
	verifier   string
	userID     string
	screenName string

	mu        sync.Mutex
	secrets   map[string]string // request token -> secret
	verifiers map[string]string // request token -> verifier emitido
	seq       int

	RequestTokenCalls atomic.Int32
	AccessTokenCalls  atomic.Int32

	onRequestToken Hook
	onAccessToken  Hook
}

// Hook intercepta un endpoint. Si devuelve true, la respuesta ya fue escrita.
type Hook func(w http.ResponseWriter, r *http.Request) bool

// NewFakeProvider arranca el provider. Se cierra solo al terminar el test.
func NewFakeProvider(t testing.TB, opts ProviderOptions) *FakeProvider {
	t.Helper()
	if opts.PKI == nil {
		opts.PKI = NewPKI(t, PKIOptions{})
	}
	if opts.Credentials.Key == "" {
		opts.Credentials = types.ConsumerCredentials{Key: FakeConsumerKey, Secret: FakeConsumerSecret}
	}
	if opts.Verifier == "" {
		opts.Verifier = "V123"
	}
	if opts.UserID == "" {
		opts.UserID = "38895958"
	}
	if opts.ScreenName == "" {
		opts.ScreenName = "theSeanCook"
	}
	p := &FakeProvider{
		PKI:        opts.PKI,
		creds:      opts.Credentials,
		verifier:   opts.Verifier,
		userID:     opts.UserID,
		screenName: opts.ScreenName,
		secrets:    map[string]string{},
		verifiers:  map[string]string{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/request_token", p.handleRequestToken)
	mux.HandleFunc("/oauth/access_token", p.handleAccessToken)
	p.Server = opts.PKI.StartTLSServer(t, mux)
	return p
}

// Credentials returns the consumer credentials the provider accepts.
func (p *FakeProvider) Credentials() types.ConsumerCredentials { return p.creds }

// Endpoints returns the provider endpoints on the TLS server.
func (p *FakeProvider) Endpoints() types.ProviderEndpoints {
	return types.ProviderEndpoints{
		RequestTokenURL: p.Server.URL + "/oauth/request_token",
		AuthorizeURL:    p.Server.URL + "/oauth/authenticate",
		AccessTokenURL:  p.Server.URL + "/oauth/access_token",
	}
}

// Authorize simula que el usuario aprobó el request token; devuelve el verifier.
func (p *FakeProvider) Authorize(token string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verifiers[token] = p.verifier
	return p.verifier
}

// OnRequestToken instala h en el endpoint de request token.
func (p *FakeProvider) OnRequestToken(h Hook) {
	p.mu.Lock()
	p.onRequestToken = h
	p.mu.Unlock()
}

// OnAccessToken instala h en el endpoint de access token.
func (p *FakeProvider) OnAccessToken(h Hook) {
	p.mu.Lock()
	p.onAccessToken = h
	p.mu.Unlock()
}

func (p *FakeProvider) hook(which *Hook) Hook {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *which
}

// Delay devuelve un hook que espera d (o a que el cliente corte) antes de responder 503.
func Delay(d time.Duration) Hook {
	return func(w http.ResponseWriter, r *http.Request) bool {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		return true
	}
}

// Respond devuelve un hook que contesta status/body fijos.
func Respond(status int, body string) Hook {
	return func(w http.ResponseWriter, r *http.Request) bool {
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
		return true
	}
}

func (p *FakeProvider) handleRequestToken(w http.ResponseWriter, r *http.Request) {
	p.RequestTokenCalls.Add(1)
	if h := p.hook(&p.onRequestToken); h != nil && h(w, r) {
		return
	}
	oauth, ok := p.verify(r, "")
	if !ok {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	if oauth["oauth_callback"] == "" {
		http.Error(w, "missing oauth_callback", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.seq++
	token := fmt.Sprintf("rt-%d-NPcudxy0yU5T3tBzho7iCotZ3cnetKwcTIRlX0iwRl0", p.seq)
	secret := fmt.Sprintf("rs-%d-veNRnAWe6inFuo8o2u8SLLZLjolYDmDP7SzL0YfYI", p.seq)
	p.secrets[token] = secret
	p.mu.Unlock()

	writeForm(w, url.Values{
		"oauth_token":              {token},
		"oauth_token_secret":       {secret},
		"oauth_callback_confirmed": {"true"},
	})
}

func (p *FakeProvider) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	p.AccessTokenCalls.Add(1)
	if h := p.hook(&p.onAccessToken); h != nil && h(w, r) {
		return
	}
	hdr, _ := oauth1.ParseAuthorizationHeader(r.Header.Get("Authorization"))
	token := hdr["oauth_token"]

	p.mu.Lock()
	secret, known := p.secrets[token]
	verifier := p.verifiers[token]
	p.mu.Unlock()
	if !known {
		http.Error(w, "unknown request token", http.StatusUnauthorized)
		return
	}
	if _, ok := p.verify(r, secret); !ok {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	got := r.PostForm.Get("oauth_verifier")
	if verifier == "" || subtle.ConstantTimeCompare([]byte(got), []byte(verifier)) != 1 {
		http.Error(w, "invalid verifier", http.StatusUnauthorized)
		return
	}

	// Un request token se canjea una sola vez.
	p.mu.Lock()
	delete(p.secrets, token)
	delete(p.verifiers, token)
	p.mu.Unlock()

	writeForm(w, url.Values{
		"oauth_token":        {p.userID + "-at-6253282-eWudHldSbIaelX7swmsiHImEL4KinwaGloHANdrY"},
		"oauth_token_secret": {"ats-2EEfA6BG5ly3sR3XjE0IBSnlQu4ZrUzPiYTmrkVU"},
		"user_id":            {p.userID},
		"screen_name":        {p.screenName},
	})
}

// verify recalcula la firma del request con tokenSecret.
func (p *FakeProvider) verify(r *http.Request, tokenSecret string) (map[string]string, bool) {
	oauth, ok := oauth1.ParseAuthorizationHeader(r.Header.Get("Authorization"))
	if !ok || oauth["oauth_consumer_key"] != p.creds.Key || oauth["oauth_signature_method"] != oauth1.SignatureMethod {
		return nil, false
	}
	if err := r.ParseForm(); err != nil {
		return nil, false
	}
	params := url.Values{}
	for k, v := range oauth {
		if k == "oauth_signature" || k == "realm" {
			continue
		}
		params.Set(k, v)
	}
	for k, vs := range r.PostForm {
		params[k] = append(params[k], vs...)
	}
	want := oauth1.Sign(r.Method, "https://"+r.Host+r.URL.Path, params, p.creds.Secret, tokenSecret)
	return oauth, subtle.ConstantTimeCompare([]byte(want), []byte(oauth["oauth_signature"])) == 1
}

func writeForm(w http.ResponseWriter, v url.Values) {
	w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
	_, _ = w.Write([]byte(v.Encode()))
}
