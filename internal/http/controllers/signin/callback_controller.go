package signin

import (
	"net/http"
	"net/url"

	httperrors "github.com/dropDatabas3/twitter-signin/internal/http/errors"
	"github.com/dropDatabas3/twitter-signin/internal/observability/logger"
	"github.com/dropDatabas3/twitter-signin/internal/twitter"
)

// CallbackController recibe el redirect de vuelta del provider.
type CallbackController struct {
	handshake Handshake
	signIn    SignInHandler
	opts      Options
}

// Callback handles GET {callback}?oauth_token=..&oauth_verifier=.. (o denied=..)
func (c *CallbackController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("CallbackController.Callback"), logger.Provider("twitter"))

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	cb := twitter.Callback{
		Token:    q.Get("oauth_token"),
		Verifier: q.Get("oauth_verifier"),
		Denied:   q.Get("denied"),
	}
	if ck, err := r.Cookie(c.opts.CookieName); err == nil {
		cb.State = ck.Value
	}

	// La cookie de correlación es de un solo uso, pase lo que pase.
	http.SetCookie(w, clearStateCookie(c.opts))
	w.Header().Set("Cache-Control", "no-store")

	res := c.handshake.Complete(ctx, cb)
	switch res.Phase {
	case twitter.StateAuthenticated:
		c.signIn.SignIn(w, r, res.Identity)
	case twitter.StateUserDenied:
		http.Redirect(w, r, deniedURL(res.ReturnURL), http.StatusFound)
	default:
		appErr := mapError(res.Err)
		log.Debug("sign-in callback failed", logger.Phase(res.Phase.String()), logger.Status(appErr.HTTPStatus))
		httperrors.WriteError(w, appErr)
	}
}

func deniedURL(returnURL string) string {
	u, err := url.Parse(twitter.SanitizeReturnURL(returnURL))
	if err != nil {
		return "/?error=access_denied"
	}
	q := u.Query()
	q.Set("error", "access_denied")
	u.RawQuery = q.Encode()
	return u.String()
}
