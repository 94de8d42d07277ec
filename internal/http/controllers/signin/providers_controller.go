package signin

import "net/http"

// ProvidersController lista el provider con su caption para armar el botón de login.
type ProvidersController struct {
	opts Options
}

type providerItem struct {
	Name     string `json:"name"`
	Caption  string `json:"caption"`
	StartURL string `json:"start_url"`
}

// List handles GET {callback}/providers
func (c *ProvidersController) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]providerItem{
		"providers": {{Name: "twitter", Caption: c.opts.Caption, StartURL: c.opts.StartPath()}},
	})
}
