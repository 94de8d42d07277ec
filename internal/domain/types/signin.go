// Package types define tipos de dominio compartidos entre paquetes.
package types

import (
	"fmt"
	"time"
)

// Default Twitter endpoints.
const (
	DefaultRequestTokenURL = "https://api.twitter.com/oauth/request_token"
	DefaultAuthorizeURL    = "https://api.twitter.com/oauth/authenticate"
	DefaultAccessTokenURL  = "https://api.twitter.com/oauth/access_token"
)

// ProviderEndpoints agrupa las tres URLs del handshake OAuth 1.0a.
// Se construye una vez al arrancar y es de solo lectura.
type ProviderEndpoints struct {
	RequestTokenURL string
	AuthorizeURL    string
	AccessTokenURL  string
}

// DefaultEndpoints returns the public Twitter endpoints.
func DefaultEndpoints() ProviderEndpoints {
	return ProviderEndpoints{
		RequestTokenURL: DefaultRequestTokenURL,
		AuthorizeURL:    DefaultAuthorizeURL,
		AccessTokenURL:  DefaultAccessTokenURL,
	}
}

// ConsumerCredentials identifica la aplicación ante el provider.
// El secret nunca se imprime: String y GoString lo ocultan.
type ConsumerCredentials struct {
	Key    string
	Secret string
}

func (c ConsumerCredentials) String() string {
	return fmt.Sprintf("ConsumerCredentials{Key:%q, Secret:[redacted]}", c.Key)
}

func (c ConsumerCredentials) GoString() string { return c.String() }

// RequestTokenTicket es el resultado del primer tramo (request token).
// Pertenece a una única transacción de login.
type RequestTokenTicket struct {
	Token             string    `json:"t"`
	TokenSecret       string    `json:"s"`
	CallbackConfirmed bool      `json:"c"`
	ExpiresHint       time.Time `json:"x,omitempty"`
}

// CorrelationState viaja (protegido) por el browser del usuario durante el redirect.
type CorrelationState struct {
	Ticket    RequestTokenTicket `json:"tk"`
	ReturnURL string             `json:"ru"`
	IssuedAt  time.Time          `json:"iat"`
	Nonce     string             `json:"n"`
}

// IdentityResult is produced once per successful login and handed to the host.
type IdentityResult struct {
	ExternalUserID    string
	ScreenName        string
	AccessToken       string
	AccessTokenSecret string
	RawAttributes     map[string]string
	ReturnURL         string
}
