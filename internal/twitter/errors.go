package twitter

import (
	"errors"
	"fmt"
)

// Kind clasifica las fallas del handshake. El host elige redirect / página de error por Kind.
type Kind int

const (
	// KindHandshakeFailed es el catch-all de fallas de protocolo.
	KindHandshakeFailed Kind = iota
	// KindUntrustedEndpoint: el validador de certificados rechazó el endpoint. Incidente de seguridad.
	KindUntrustedEndpoint
	// KindBackchannelTimeout: sin respuesta dentro del timeout. Reintentable desde Begin.
	KindBackchannelTimeout
	// KindProviderRejected: respuesta no-2xx o body inválido.
	KindProviderRejected
	// KindCorrelationInvalid: estado alterado, vencido, reusado o de otra transacción.
	KindCorrelationInvalid
	// KindUserDenied: el usuario rechazó la autorización. No es un error técnico.
	KindUserDenied
)

func (k Kind) String() string {
	switch k {
	case KindHandshakeFailed:
		return "handshake_failed"
	case KindUntrustedEndpoint:
		return "untrusted_endpoint"
	case KindBackchannelTimeout:
		return "backchannel_timeout"
	case KindProviderRejected:
		return "provider_rejected"
	case KindCorrelationInvalid:
		return "correlation_invalid"
	case KindUserDenied:
		return "user_denied"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels para errors.Is(err, twitter.ErrBackchannelTimeout) y similares.
var (
	ErrHandshakeFailed    = &Error{Kind: KindHandshakeFailed}
	ErrUntrustedEndpoint  = &Error{Kind: KindUntrustedEndpoint}
	ErrBackchannelTimeout = &Error{Kind: KindBackchannelTimeout}
	ErrProviderRejected   = &Error{Kind: KindProviderRejected}
	ErrCorrelationInvalid = &Error{Kind: KindCorrelationInvalid}
	ErrUserDenied         = &Error{Kind: KindUserDenied}
)

// Error es el error discriminado que devuelven BackchannelClient y Coordinator.
type Error struct {
	Kind Kind
	Op   string // "request_token", "access_token", "unprotect_state", ...
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("twitter: %s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("twitter: %s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("twitter: %s: %v", e.Kind, e.Err)
	default:
		return "twitter: " + e.Kind.String()
	}
}

// Unwrap permite acceder a la causa.
func (e *Error) Unwrap() error { return e.Err }

// Is compara por Kind contra los sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Retryable es true solo para BackchannelTimeout: el request token es de un solo uso,
// así que el reintento es la transacción completa desde Begin.
func (e *Error) Retryable() bool { return e.Kind == KindBackchannelTimeout }

// KindOf devuelve el Kind de err, o KindHandshakeFailed si err no es *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindHandshakeFailed
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
