package twitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/twitter-signin/internal/domain/types"
	"github.com/dropDatabas3/twitter-signin/internal/metrics"
	"github.com/dropDatabas3/twitter-signin/internal/oauth1"
	"github.com/dropDatabas3/twitter-signin/internal/observability/logger"
	"github.com/dropDatabas3/twitter-signin/internal/security/certpin"
)

// DefaultBackchannelTimeout es el timeout por llamada si no se configura otro.
const DefaultBackchannelTimeout = 60 * time.Second

const (
	endpointRequestToken = "request_token"
	endpointAccessToken  = "access_token"

	maxResponseBytes = 64 << 10
)

// AccessTokenResponse es el resultado del tercer tramo.
type AccessTokenResponse struct {
	Token       string
	TokenSecret string
	UserID      string
	ScreenName  string
	// Raw tiene el resto de los campos del body (sin token ni secret).
	Raw map[string]string
}

// BackchannelConfig configura el cliente.
type BackchannelConfig struct {
	Endpoints   types.ProviderEndpoints
	Credentials types.ConsumerCredentials
	// Timeout acota cada llamada por separado.
	Timeout   time.Duration
	Validator *certpin.Validator
	// Signer opcional; por defecto se crea uno con Credentials.
	Signer *oauth1.Signer
}

// BackchannelClient hace las llamadas firmadas a los endpoints de token.
// No reintenta: falla rápido con UntrustedEndpoint, BackchannelTimeout o ProviderRejected.
type BackchannelClient struct {
	endpoints types.ProviderEndpoints
	signer    *oauth1.Signer
	timeout   time.Duration
	http      *http.Client
}

// NewBackchannelClient valida endpoints y arma el transport con el validador adjunto.
func NewBackchannelClient(cfg BackchannelConfig) (*BackchannelClient, error) {
	if cfg.Validator == nil {
		return nil, errors.New("twitter: backchannel requires a certificate validator")
	}
	if cfg.Credentials.Key == "" || cfg.Credentials.Secret == "" {
		return nil, errors.New("twitter: consumer key and secret are required")
	}
	for name, raw := range map[string]string{
		endpointRequestToken: cfg.Endpoints.RequestTokenURL,
		endpointAccessToken:  cfg.Endpoints.AccessTokenURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("twitter: invalid %s endpoint %q", name, raw)
		}
		// Solo https: el validador vive en el dial TLS.
		if !strings.EqualFold(u.Scheme, "https") {
			return nil, fmt.Errorf("twitter: %s endpoint must use https, got %q", name, raw)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultBackchannelTimeout
	}
	signer := cfg.Signer
	if signer == nil {
		signer = oauth1.NewSigner(cfg.Credentials)
	}

	transport := &http.Transport{
		DialTLSContext:        cfg.Validator.DialTLSContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &BackchannelClient{
		endpoints: cfg.Endpoints,
		signer:    signer,
		timeout:   timeout,
		http:      &http.Client{Transport: transport},
	}, nil
}

// Timeout returns the per-call bound.
func (c *BackchannelClient) Timeout() time.Duration { return c.timeout }

// RequestToken ejecuta el primer tramo con callbackURL como oauth_callback.
func (c *BackchannelClient) RequestToken(ctx context.Context, callbackURL string) (*types.RequestTokenTicket, error) {
	vals, err := c.post(ctx, endpointRequestToken, oauth1.Request{
		Method: http.MethodPost,
		URL:    c.endpoints.RequestTokenURL,
		OAuth:  map[string]string{"oauth_callback": callbackURL},
	})
	if err != nil {
		return nil, err
	}

	ticket := &types.RequestTokenTicket{
		Token:             vals.Get("oauth_token"),
		TokenSecret:       vals.Get("oauth_token_secret"),
		CallbackConfirmed: vals.Get("oauth_callback_confirmed") == "true",
	}
	if ticket.Token == "" || ticket.TokenSecret == "" {
		return nil, newError(KindProviderRejected, endpointRequestToken, errors.New("missing oauth_token or oauth_token_secret"))
	}
	if !ticket.CallbackConfirmed {
		return nil, newError(KindProviderRejected, endpointRequestToken, errors.New("oauth_callback_confirmed is not true"))
	}
	return ticket, nil
}

// AccessToken canjea el verifier por el access token del usuario.
func (c *BackchannelClient) AccessToken(ctx context.Context, ticket types.RequestTokenTicket, verifier string) (*AccessTokenResponse, error) {
	vals, err := c.post(ctx, endpointAccessToken, oauth1.Request{
		Method:      http.MethodPost,
		URL:         c.endpoints.AccessTokenURL,
		OAuth:       map[string]string{"oauth_token": ticket.Token},
		Form:        url.Values{"oauth_verifier": {verifier}},
		TokenSecret: ticket.TokenSecret,
	})
	if err != nil {
		return nil, err
	}

	out := &AccessTokenResponse{
		Token:       vals.Get("oauth_token"),
		TokenSecret: vals.Get("oauth_token_secret"),
		UserID:      vals.Get("user_id"),
		ScreenName:  vals.Get("screen_name"),
		Raw:         map[string]string{},
	}
	if out.Token == "" || out.TokenSecret == "" {
		return nil, newError(KindProviderRejected, endpointAccessToken, errors.New("missing oauth_token or oauth_token_secret"))
	}
	for k := range vals {
		if k == "oauth_token" || k == "oauth_token_secret" {
			continue
		}
		out.Raw[k] = vals.Get(k)
	}
	return out, nil
}

func (c *BackchannelClient) post(ctx context.Context, endpoint string, sreq oauth1.Request) (vals url.Values, err error) {
	log := logger.From(ctx).With(logger.Layer("client"), logger.Component("twitter.backchannel"), logger.Endpoint(endpoint))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = KindOf(err).String()
		}
		metrics.BackchannelDuration.WithLabelValues(endpoint, outcome).Observe(time.Since(start).Seconds())
		log.Debug("backchannel call finished", logger.String("outcome", outcome), logger.Duration(time.Since(start)))
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, sreq.Method, sreq.URL, strings.NewReader(sreq.Form.Encode()))
	if err != nil {
		return nil, newError(KindHandshakeFailed, endpoint, err)
	}
	req.Header.Set("Authorization", c.signer.Authorize(sreq))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(ctx, callCtx, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		if callCtx.Err() != nil {
			return nil, classify(ctx, callCtx, endpoint, err)
		}
		return nil, newError(KindProviderRejected, endpoint, fmt.Errorf("read body: %w", err))
	}
	if len(body) > maxResponseBytes {
		return nil, newError(KindProviderRejected, endpoint, errors.New("response body too large"))
	}
	if resp.StatusCode/100 != 2 {
		return nil, newError(KindProviderRejected, endpoint, fmt.Errorf("http %d: %s", resp.StatusCode, snippet(body)))
	}

	vals, err = url.ParseQuery(string(body))
	if err != nil {
		return nil, newError(KindProviderRejected, endpoint, fmt.Errorf("malformed body: %w", err))
	}
	return vals, nil
}

// classify traduce errores de transporte al Kind correspondiente.
func classify(parent, callCtx context.Context, endpoint string, err error) *Error {
	if errors.Is(err, certpin.ErrUntrusted) {
		return newError(KindUntrustedEndpoint, endpoint, err)
	}
	// Cancelación del caller: no es un timeout del backchannel.
	if errors.Is(parent.Err(), context.Canceled) {
		return newError(KindHandshakeFailed, endpoint, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return newError(KindBackchannelTimeout, endpoint, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return newError(KindBackchannelTimeout, endpoint, err)
	}
	return newError(KindHandshakeFailed, endpoint, err)
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
