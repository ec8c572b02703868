package callback

import (
	"net/url"
	"time"

	"github.com/gravitational/trace"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/oauth2/google"
)

type Config struct {
	Port int `envconfig:"port" default:"8080"`

	OAuth OAuthConfig `envconfig:"oauth"`
}

type OAuthConfig struct {
	ClientID     string `envconfig:"client_id"`
	ClientSecret string `envconfig:"client_secret"`
	AuthURL      string `envconfig:"auth_url"`
	TokenURL     string `envconfig:"token_url"`

	// Timeout bounds a single code exchange. Zero means no timeout.
	Timeout time.Duration `envconfig:"timeout"`
}

// LoadConfig reads the configuration from the environment and validates it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, trace.Wrap(err)
	}
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return Config{}, trace.Wrap(err)
	}
	return cfg, nil
}

func (cfg *Config) CheckAndSetDefaults() error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return trace.BadParameter("port %d is out of range", cfg.Port)
	}
	return trace.Wrap(cfg.OAuth.CheckAndSetDefaults())
}

func (cfg *OAuthConfig) CheckAndSetDefaults() error {
	if cfg.ClientID == "" {
		return trace.BadParameter("missing required value OAUTH_CLIENT_ID")
	}
	if cfg.ClientSecret == "" {
		return trace.BadParameter("missing required value OAUTH_CLIENT_SECRET")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = google.Endpoint.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = google.Endpoint.TokenURL
	}
	for name, raw := range map[string]string{"OAUTH_AUTH_URL": cfg.AuthURL, "OAUTH_TOKEN_URL": cfg.TokenURL} {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return trace.BadParameter("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if cfg.Timeout < 0 {
		return trace.BadParameter("OAUTH_TIMEOUT must not be negative")
	}
	return nil
}
