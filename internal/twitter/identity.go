package twitter

import (
	"context"
	"errors"

	"github.com/dropDatabas3/twitter-signin/internal/domain/types"
)

// IdentityParser arma el IdentityResult a partir de la respuesta de access token.
type IdentityParser interface {
	ParseIdentity(ctx context.Context, resp *AccessTokenResponse) (*types.IdentityResult, error)
}

// IdentityParserFunc adapta una función a IdentityParser.
type IdentityParserFunc func(ctx context.Context, resp *AccessTokenResponse) (*types.IdentityResult, error)

func (f IdentityParserFunc) ParseIdentity(ctx context.Context, resp *AccessTokenResponse) (*types.IdentityResult, error) {
	return f(ctx, resp)
}

// TwitterIdentity es el parser por defecto: user_id es obligatorio, screen_name no.
type TwitterIdentity struct{}

func (TwitterIdentity) ParseIdentity(_ context.Context, resp *AccessTokenResponse) (*types.IdentityResult, error) {
	if resp == nil || resp.UserID == "" {
		return nil, errors.New("access token response has no user_id")
	}
	raw := make(map[string]string, len(resp.Raw))
	for k, v := range resp.Raw {
		raw[k] = v
	}
	return &types.IdentityResult{
		ExternalUserID:    resp.UserID,
		ScreenName:        resp.ScreenName,
		AccessToken:       resp.Token,
		AccessTokenSecret: resp.TokenSecret,
		RawAttributes:     raw,
	}, nil
}
