package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/twitter-signin/internal/domain/types"
	"github.com/dropDatabas3/twitter-signin/internal/security/certpin"
	"github.com/dropDatabas3/twitter-signin/internal/security/stateprotect"
)

// VeriSign Class 3 Secure Server CA - G2 / G3.
var DefaultPinnedSKIs = []string{
	"A5EF0B11CEC04103A34A659048B21CE0572D7D47",
	"0D445C165344C1827E1D20AB25F40163D8BE79A5",
}

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr string `yaml:"addr"`
		// PublicBaseURL arma el oauth_callback absoluto. Vacío = scheme/host del request.
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"server"`

	Twitter struct {
		ConsumerKey    string `yaml:"consumer_key"`
		ConsumerSecret string `yaml:"consumer_secret"`
		// Caption es el texto que muestra la UI del host.
		Caption              string `yaml:"caption"`
		CallbackPath         string `yaml:"callback_path"`
		BackchannelTimeoutMS int    `yaml:"backchannel_timeout_ms"`

		Endpoints struct {
			RequestToken string `yaml:"request_token"`
			Authorize    string `yaml:"authorize"`
			AccessToken  string `yaml:"access_token"`
		} `yaml:"endpoints"`

		Trust struct {
			// pinned | system
			Mode string `yaml:"mode"`
			// chain_and_pin | pin_only
			Chain      string   `yaml:"chain"`
			PinnedSKIs []string `yaml:"pinned_skis"`
			// RootCAFile (PEM) reemplaza los roots del sistema.
			RootCAFile string `yaml:"root_ca_file"`
		} `yaml:"trust"`
	} `yaml:"twitter"`

	State struct {
		// ProtectionKey: 32 bytes en base64, hex o crudos.
		ProtectionKey string `yaml:"protection_key"`
		MaxAge        string `yaml:"max_age"`
		CookieName    string `yaml:"cookie_name"`
		// ReplayProtection consume el nonce del estado una sola vez (ledger en cache).
		ReplayProtection bool `yaml:"replay_protection"`
	} `yaml:"state"`

	RateLimit struct {
		// StartMax: intentos de /start por IP y ventana. 0 = sin límite.
		StartMax int    `yaml:"start_max"`
		Window   string `yaml:"window"`
	} `yaml:"rate_limit"`

	Cache struct {
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`
}

// Default returns a config with every default filled in and no secrets.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load lee path (YAML), completa defaults, aplica env y valida.
// path vacío arranca desde Default (solo env).
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	c.applyDefaults()
	c.applyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Twitter.Caption == "" {
		c.Twitter.Caption = "Twitter"
	}
	if c.Twitter.CallbackPath == "" {
		c.Twitter.CallbackPath = "/signin-twitter"
	}
	if c.Twitter.BackchannelTimeoutMS == 0 {
		c.Twitter.BackchannelTimeoutMS = 60000
	}
	if c.Twitter.Endpoints.RequestToken == "" {
		c.Twitter.Endpoints.RequestToken = types.DefaultRequestTokenURL
	}
	if c.Twitter.Endpoints.Authorize == "" {
		c.Twitter.Endpoints.Authorize = types.DefaultAuthorizeURL
	}
	if c.Twitter.Endpoints.AccessToken == "" {
		c.Twitter.Endpoints.AccessToken = types.DefaultAccessTokenURL
	}
	if c.Twitter.Trust.Mode == "" {
		c.Twitter.Trust.Mode = "pinned"
	}
	if c.Twitter.Trust.Chain == "" {
		c.Twitter.Trust.Chain = "chain_and_pin"
	}
	if c.Twitter.Trust.PinnedSKIs == nil {
		c.Twitter.Trust.PinnedSKIs = append([]string(nil), DefaultPinnedSKIs...)
	}
	if c.State.MaxAge == "" {
		c.State.MaxAge = stateprotect.DefaultMaxAge.String()
	}
	if c.State.CookieName == "" {
		c.State.CookieName = "__TwitterState"
	}
	if c.RateLimit.Window == "" {
		c.RateLimit.Window = "1m"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "twitter-signin:"
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("SERVER_PUBLIC_BASE_URL"); ok {
		c.Server.PublicBaseURL = strings.TrimRight(v, "/")
	}

	// TWITTER
	if v, ok := getEnvStr("TWITTER_CONSUMER_KEY"); ok {
		c.Twitter.ConsumerKey = v
	}
	if v, ok := getEnvStr("TWITTER_CONSUMER_SECRET"); ok {
		c.Twitter.ConsumerSecret = v
	}
	if v, ok := getEnvStr("TWITTER_CALLBACK_PATH"); ok {
		c.Twitter.CallbackPath = v
	}
	if v, ok := getEnvInt("TWITTER_BACKCHANNEL_TIMEOUT_MS"); ok {
		c.Twitter.BackchannelTimeoutMS = v
	}
	if v, ok := getEnvCSV("TWITTER_PINNED_SKIS"); ok {
		c.Twitter.Trust.PinnedSKIs = v
	}
	if v, ok := getEnvStr("TWITTER_TRUST_MODE"); ok {
		c.Twitter.Trust.Mode = strings.ToLower(v)
	}
	if v, ok := getEnvStr("TWITTER_TRUST_CHAIN"); ok {
		c.Twitter.Trust.Chain = strings.ToLower(v)
	}
	if v, ok := getEnvStr("TWITTER_ROOT_CA_FILE"); ok {
		c.Twitter.Trust.RootCAFile = v
	}

	// STATE
	if v, ok := getEnvStr("STATE_PROTECTION_KEY"); ok {
		c.State.ProtectionKey = v
	}
	if v, ok := getEnvStr("STATE_MAX_AGE"); ok {
		c.State.MaxAge = v
	}
	if v, ok := getEnvBool("STATE_REPLAY_PROTECTION"); ok {
		c.State.ReplayProtection = v
	}

	// RATE LIMIT
	if v, ok := getEnvInt("RATE_START_MAX"); ok {
		c.RateLimit.StartMax = v
	}
	if v, ok := getEnvStr("RATE_WINDOW"); ok {
		c.RateLimit.Window = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
}

// Validate junta todos los problemas en un solo error.
func (c *Config) Validate() error {
	var errs []error
	if c.Twitter.ConsumerKey == "" {
		errs = append(errs, errors.New("twitter.consumer_key is required"))
	}
	if c.Twitter.ConsumerSecret == "" {
		errs = append(errs, errors.New("twitter.consumer_secret is required"))
	}
	if !strings.HasPrefix(c.Twitter.CallbackPath, "/") {
		errs = append(errs, fmt.Errorf("twitter.callback_path must start with '/', got %q", c.Twitter.CallbackPath))
	}
	if c.Twitter.BackchannelTimeoutMS <= 0 {
		errs = append(errs, errors.New("twitter.backchannel_timeout_ms must be positive"))
	}
	policy, err := certpin.ParsePolicy(c.Twitter.Trust.Mode)
	if err != nil {
		errs = append(errs, err)
	}
	if _, err := certpin.ParseChainMode(c.Twitter.Trust.Chain); err != nil {
		errs = append(errs, err)
	}
	if _, err := certpin.NewPinSet(c.Twitter.Trust.PinnedSKIs...); err != nil {
		errs = append(errs, err)
	} else if policy == certpin.PinnedTrust && len(c.Twitter.Trust.PinnedSKIs) == 0 {
		errs = append(errs, errors.New("twitter.trust.pinned_skis is required with pinned trust"))
	}
	if _, err := stateprotect.ParseMasterKey(c.State.ProtectionKey); err != nil {
		errs = append(errs, fmt.Errorf("state.protection_key: %w", err))
	}
	if d, err := time.ParseDuration(c.State.MaxAge); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("state.max_age: invalid duration %q", c.State.MaxAge))
	}
	if c.RateLimit.StartMax < 0 {
		errs = append(errs, errors.New("rate_limit.start_max must be >= 0"))
	}
	if d, err := time.ParseDuration(c.RateLimit.Window); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.window: invalid duration %q", c.RateLimit.Window))
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required with cache.kind=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind: unknown %q", c.Cache.Kind))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// BackchannelTimeout returns the per-call timeout.
func (c *Config) BackchannelTimeout() time.Duration {
	return time.Duration(c.Twitter.BackchannelTimeoutMS) * time.Millisecond
}

// StateMaxAge returns state.max_age, falling back to the codec default.
func (c *Config) StateMaxAge() time.Duration {
	if d, err := time.ParseDuration(c.State.MaxAge); err == nil && d > 0 {
		return d
	}
	return stateprotect.DefaultMaxAge
}

// RateWindow returns rate_limit.window (1m if it does not parse).
func (c *Config) RateWindow() time.Duration {
	if d, err := time.ParseDuration(c.RateLimit.Window); err == nil && d > 0 {
		return d
	}
	return time.Minute
}

// NeedsCache reports whether some component uses the shared cache.
func (c *Config) NeedsCache() bool {
	return c.State.ReplayProtection || c.RateLimit.StartMax > 0
}

// Endpoints returns the configured provider endpoints.
func (c *Config) Endpoints() types.ProviderEndpoints {
	return types.ProviderEndpoints{
		RequestTokenURL: c.Twitter.Endpoints.RequestToken,
		AuthorizeURL:    c.Twitter.Endpoints.Authorize,
		AccessTokenURL:  c.Twitter.Endpoints.AccessToken,
	}
}

// Credentials returns the consumer credentials.
func (c *Config) Credentials() types.ConsumerCredentials {
	return types.ConsumerCredentials{Key: c.Twitter.ConsumerKey, Secret: c.Twitter.ConsumerSecret}
}
