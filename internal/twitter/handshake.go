package twitter

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/twitter-signin/internal/domain/types"
	"github.com/dropDatabas3/twitter-signin/internal/metrics"
	"github.com/dropDatabas3/twitter-signin/internal/observability/logger"
)

// State es la fase de una transacción de login.
type State int

const (
	StateStart State = iota
	StateAwaitingAuthorization
	StateExchangingToken
	StateAuthenticated
	StateUserDenied
	StateCorrelationInvalid
	StateHandshakeFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateAwaitingAuthorization:
		return "awaiting_authorization"
	case StateExchangingToken:
		return "exchanging_token"
	case StateAuthenticated:
		return "authenticated"
	case StateUserDenied:
		return "user_denied"
	case StateCorrelationInvalid:
		return "correlation_invalid"
	case StateHandshakeFailed:
		return "handshake_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return len(transitions[s]) == 0 }

var transitions = map[State][]State{
	StateStart:                 {StateAwaitingAuthorization, StateHandshakeFailed},
	StateAwaitingAuthorization: {StateExchangingToken, StateUserDenied, StateCorrelationInvalid, StateHandshakeFailed},
	StateExchangingToken:       {StateAuthenticated, StateHandshakeFailed},
}

// CanTransition reports whether the machine allows from -> to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Backchannel es lo que el Coordinator necesita del BackchannelClient.
type Backchannel interface {
	RequestToken(ctx context.Context, callbackURL string) (*types.RequestTokenTicket, error)
	AccessToken(ctx context.Context, ticket types.RequestTokenTicket, verifier string) (*AccessTokenResponse, error)
}

// StateProtector protege el CorrelationState (ver stateprotect.Codec).
type StateProtector interface {
	Protect(s types.CorrelationState) (string, error)
	Unprotect(blob string) (types.CorrelationState, error)
	MaxAge() time.Duration
}

// ReplayGuard consume nonces de un solo uso (ver cache.NonceLedger).
type ReplayGuard interface {
	Consume(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

// Events son hooks opcionales del host.
type Events struct {
	// OnAuthenticated corre antes de devolver el resultado. Un error lo convierte en HandshakeFailed.
	OnAuthenticated func(ctx context.Context, id *types.IdentityResult) error
	// OnReturnEndpoint puede reescribir id.ReturnURL antes del redirect final.
	OnReturnEndpoint func(ctx context.Context, id *types.IdentityResult)
}

// CoordinatorConfig agrupa las dependencias del Coordinator.
type CoordinatorConfig struct {
	Backchannel Backchannel
	State       StateProtector
	Endpoints   types.ProviderEndpoints
	// CallbackURL por defecto para oauth_callback. Begin puede sobreescribirlo con WithCallbackURL.
	CallbackURL string
	Parser      IdentityParser
	Events      Events
	// Ledger opcional; nil desactiva la detección de replay.
	Ledger ReplayGuard
	Now    func() time.Time
	Nonce  func() string
}

// Challenge es lo que el host necesita para redirigir al usuario.
type Challenge struct {
	Phase       State
	RedirectURL string
	// State es el blob opaco; el host lo guarda en la cookie de correlación.
	State     string
	ExpiresAt time.Time
}

// Callback son los parámetros que trae el redirect de vuelta.
type Callback struct {
	Token    string // oauth_token
	Verifier string // oauth_verifier
	Denied   string // denied
	State    string // blob de la cookie
}

// Result es el desenlace de Complete. Err es *Error en toda fase distinta de Authenticated.
type Result struct {
	Phase    State
	Identity *types.IdentityResult
	// ReturnURL es a dónde mandar al usuario. Vacío si el estado no pudo leerse.
	ReturnURL string
	Err       *Error
}

// Coordinator orquesta el handshake OAuth 1.0a de tres patas.
// No guarda estado por transacción: todo viaja en el blob protegido.
type Coordinator struct {
	bc          Backchannel
	state       StateProtector
	authorize   *url.URL
	callbackURL string
	parser      IdentityParser
	events      Events
	ledger      ReplayGuard
	now         func() time.Time
	nonce       func() string
}

// NewCoordinator valida la configuración y crea el Coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Backchannel == nil {
		return nil, errors.New("twitter: coordinator requires a backchannel")
	}
	if cfg.State == nil {
		return nil, errors.New("twitter: coordinator requires a state protector")
	}
	au, err := url.Parse(cfg.Endpoints.AuthorizeURL)
	if err != nil || au.Scheme == "" || au.Host == "" {
		return nil, fmt.Errorf("twitter: invalid authorize endpoint %q", cfg.Endpoints.AuthorizeURL)
	}
	c := &Coordinator{
		bc:          cfg.Backchannel,
		state:       cfg.State,
		authorize:   au,
		callbackURL: cfg.CallbackURL,
		parser:      cfg.Parser,
		events:      cfg.Events,
		ledger:      cfg.Ledger,
		now:         cfg.Now,
		nonce:       cfg.Nonce,
	}
	if c.parser == nil {
		c.parser = TwitterIdentity{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.nonce == nil {
		c.nonce = func() string { return uuid.NewString() }
	}
	return c, nil
}

// BeginOption ajusta una llamada a Begin.
type BeginOption func(*beginOptions)

type beginOptions struct {
	callbackURL string
}

// WithCallbackURL fija el oauth_callback absoluto de esta transacción
// (el host lo arma con el scheme/host del request y el callback path).
func WithCallbackURL(u string) BeginOption {
	return func(o *beginOptions) { o.callbackURL = u }
}

// Begin pide un request token y arma el redirect de autorización junto con el estado protegido.
func (c *Coordinator) Begin(ctx context.Context, returnURL string, opts ...BeginOption) (*Challenge, error) {
	o := beginOptions{callbackURL: c.callbackURL}
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("twitter.handshake"), logger.Op("begin"))

	if o.callbackURL == "" {
		err := newError(KindHandshakeFailed, "begin", errors.New("no callback url"))
		c.finish(log, StateHandshakeFailed, err)
		return nil, err
	}

	ticket, err := c.bc.RequestToken(ctx, o.callbackURL)
	if err != nil {
		e := asError(err, endpointRequestToken)
		c.finish(log, StateHandshakeFailed, e)
		return nil, e
	}

	now := c.now().UTC()
	ticket.ExpiresHint = now.Add(c.state.MaxAge())
	blob, err := c.state.Protect(types.CorrelationState{
		Ticket:    *ticket,
		ReturnURL: SanitizeReturnURL(returnURL),
		IssuedAt:  now,
		Nonce:     c.nonce(),
	})
	if err != nil {
		e := newError(KindHandshakeFailed, "protect_state", err)
		c.finish(log, StateHandshakeFailed, e)
		return nil, e
	}

	metrics.ChallengesIssued.Inc()
	log.Debug("authorization challenge issued")
	return &Challenge{
		Phase:       StateAwaitingAuthorization,
		RedirectURL: c.authorizeURL(ticket.Token),
		State:       blob,
		ExpiresAt:   ticket.ExpiresHint,
	}, nil
}

// Complete procesa el callback. Nunca llama al endpoint de access token
// si el estado no autentica, venció, ya se usó o no corresponde al token del callback.
func (c *Coordinator) Complete(ctx context.Context, cb Callback) *Result {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("twitter.handshake"), logger.Op("complete"))

	if cb.Denied != "" || cb.Verifier == "" {
		res := &Result{Phase: StateUserDenied, Err: newError(KindUserDenied, "authorize", nil)}
		// Solo para saber a dónde volver; si el estado no autentica se ignora.
		if st, err := c.state.Unprotect(cb.State); err == nil {
			res.ReturnURL = st.ReturnURL
		}
		c.finish(log, res.Phase, res.Err)
		return res
	}

	st, err := c.state.Unprotect(cb.State)
	if err != nil {
		return c.fail(ctx, log, StateCorrelationInvalid, newError(KindCorrelationInvalid, "unprotect_state", err))
	}
	if cb.Token == "" || subtle.ConstantTimeCompare([]byte(st.Ticket.Token), []byte(cb.Token)) != 1 {
		return c.fail(ctx, log, StateCorrelationInvalid, newError(KindCorrelationInvalid, "match_token", errors.New("callback token does not match state")))
	}
	if c.ledger != nil {
		fresh, err := c.ledger.Consume(ctx, st.Nonce, c.state.MaxAge())
		if err != nil {
			return c.fail(ctx, log, StateHandshakeFailed, newError(KindHandshakeFailed, "consume_nonce", err))
		}
		if !fresh {
			return c.fail(ctx, log, StateCorrelationInvalid, newError(KindCorrelationInvalid, "consume_nonce", errors.New("state already used")))
		}
	}

	resp, err := c.bc.AccessToken(ctx, st.Ticket, cb.Verifier)
	if err != nil {
		return c.fail(ctx, log, StateHandshakeFailed, asError(err, endpointAccessToken))
	}

	id, err := c.parser.ParseIdentity(ctx, resp)
	if err != nil {
		return c.fail(ctx, log, StateHandshakeFailed, asErrorKind(err, KindProviderRejected, "parse_identity"))
	}
	id.ReturnURL = st.ReturnURL

	if c.events.OnAuthenticated != nil {
		if err := c.events.OnAuthenticated(ctx, id); err != nil {
			return c.fail(ctx, log, StateHandshakeFailed, newError(KindHandshakeFailed, "on_authenticated", err))
		}
	}
	if c.events.OnReturnEndpoint != nil {
		c.events.OnReturnEndpoint(ctx, id)
	}

	c.finish(log.With(logger.ExternalUserID(id.ExternalUserID), logger.ScreenName(id.ScreenName)), StateAuthenticated, nil)
	return &Result{Phase: StateAuthenticated, Identity: id, ReturnURL: id.ReturnURL}
}

func (c *Coordinator) fail(ctx context.Context, log *zap.Logger, phase State, err *Error) *Result {
	c.finish(log, phase, err)
	return &Result{Phase: phase, Err: err}
}

// finish registra el desenlace en métricas y logs.
func (c *Coordinator) finish(log *zap.Logger, phase State, err *Error) {
	kind := "none"
	if err != nil {
		kind = err.Kind.String()
	}
	metrics.HandshakeOutcomes.WithLabelValues(phase.String(), kind).Inc()

	log = log.With(logger.Phase(phase.String()), logger.Kind(kind))
	switch {
	case err == nil:
		log.Info("twitter sign-in authenticated")
	case err.Kind == KindUserDenied:
		log.Info("twitter sign-in denied by user")
	case err.Kind == KindUntrustedEndpoint:
		log.Error("backchannel endpoint rejected by certificate validator", logger.SecurityEvent(), logger.Err(err))
	case err.Kind == KindCorrelationInvalid:
		log.Warn("invalid correlation state", logger.SecurityEvent(), logger.Err(err))
	default:
		log.Error("twitter sign-in failed", logger.Err(err))
	}
}

func (c *Coordinator) authorizeURL(token string) string {
	u := *c.authorize
	q := u.Query()
	q.Set("oauth_token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// SanitizeReturnURL acepta solo paths relativos locales; cualquier otra cosa vuelve "/".
func SanitizeReturnURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	if strings.ContainsAny(raw, "\r\n\t") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return raw
}

func asError(err error, op string) *Error {
	return asErrorKind(err, KindHandshakeFailed, op)
}

func asErrorKind(err error, kind Kind, op string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(kind, op, err)
}
