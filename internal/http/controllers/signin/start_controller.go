package signin

import (
	"net/http"

	httperrors "github.com/dropDatabas3/twitter-signin/internal/http/errors"
	"github.com/dropDatabas3/twitter-signin/internal/observability/logger"
	"github.com/dropDatabas3/twitter-signin/internal/twitter"
)

// StartController arranca la transacción: pide el request token y redirige al provider.
type StartController struct {
	handshake Handshake
	opts      Options
}

// Start handles GET {callback}/start?returnUrl=/path
func (c *StartController) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("StartController.Start"), logger.Provider("twitter"))

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	callbackURL := baseURL(r, c.opts.PublicBaseURL) + c.opts.CallbackPath
	challenge, err := c.handshake.Begin(ctx, r.URL.Query().Get("returnUrl"), twitter.WithCallbackURL(callbackURL))
	if err != nil {
		appErr := mapError(err)
		log.Warn("sign-in start failed", logger.Kind(twitter.KindOf(err).String()), logger.Status(appErr.HTTPStatus))
		httperrors.WriteError(w, appErr)
		return
	}

	http.SetCookie(w, stateCookie(c.opts, challenge.State))
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, challenge.RedirectURL, http.StatusFound)
}
