package signin

import (
	httperrors "github.com/dropDatabas3/twitter-signin/internal/http/errors"
	"github.com/dropDatabas3/twitter-signin/internal/twitter"
)

// mapError traduce el Kind del handshake al AppError HTTP.
func mapError(err error) *httperrors.AppError {
	switch twitter.KindOf(err) {
	case twitter.KindCorrelationInvalid:
		return httperrors.ErrInvalidState.WithCause(err)
	case twitter.KindUntrustedEndpoint:
		return httperrors.ErrUntrustedUpstream.WithCause(err)
	case twitter.KindBackchannelTimeout:
		return httperrors.ErrUpstreamTimeout.WithCause(err)
	case twitter.KindProviderRejected:
		return httperrors.ErrUpstreamRejected.WithCause(err)
	default:
		return httperrors.ErrHandshakeFailed.WithCause(err)
	}
}
