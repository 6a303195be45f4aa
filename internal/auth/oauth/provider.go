package oauth

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/smallbiznis/taskora/internal/auth/domain"
)

// Provider abstracts one third-party identity provider. Keeping the surface
// to these three operations avoids a hard dependency on any provider SDK.
type Provider interface {
	Name() string
	UsesPKCE() bool
	AuthorizationURL(redirectURI, state, codeChallenge string) (string, error)
	ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (domain.OAuthProfile, error)
}

// ProviderConfig is the raw per-provider configuration.
type ProviderConfig struct {
	Type         string
	Enabled      bool
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	Scopes       []string
	UsePKCE      bool
}

type providerEnvSpec struct {
	providerType string
	prefix       string
	defaults     ProviderConfig
}

var providerSpecs = []providerEnvSpec{
	{
		providerType: "google",
		prefix:       "AUTH_GOOGLE_",
		defaults: ProviderConfig{
			AuthURL:    "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:   "https://oauth2.googleapis.com/token",
			ProfileURL: "https://openidconnect.googleapis.com/v1/userinfo",
			Scopes:     []string{"openid", "email", "profile"},
			UsePKCE:    true,
		},
	},
	{
		providerType: "github",
		prefix:       "AUTH_GITHUB_",
		defaults: ProviderConfig{
			AuthURL:    "https://github.com/login/oauth/authorize",
			TokenURL:   "https://github.com/login/oauth/access_token",
			ProfileURL: "https://api.github.com/user",
			Scopes:     []string{"read:user", "user:email"},
			UsePKCE:    false,
		},
	},
}

// ParseProvidersFromEnv reads provider configuration from environment
// variables; endpoint envs override the built-in defaults.
func ParseProvidersFromEnv() map[string]ProviderConfig {
	configs := make(map[string]ProviderConfig, len(providerSpecs))
	for _, spec := range providerSpecs {
		cfg := spec.defaults
		cfg.Type = spec.providerType
		cfg.Enabled = getenvBool(spec.prefix+"ENABLED", false)
		cfg.ClientID = strings.TrimSpace(os.Getenv(spec.prefix + "CLIENT_ID"))
		cfg.ClientSecret = strings.TrimSpace(os.Getenv(spec.prefix + "CLIENT_SECRET"))
		if v := strings.TrimSpace(os.Getenv(spec.prefix + "AUTH_URL")); v != "" {
			cfg.AuthURL = v
		}
		if v := strings.TrimSpace(os.Getenv(spec.prefix + "TOKEN_URL")); v != "" {
			cfg.TokenURL = v
		}
		if v := strings.TrimSpace(os.Getenv(spec.prefix + "PROFILE_URL")); v != "" {
			cfg.ProfileURL = v
		}
		if v := strings.TrimSpace(os.Getenv(spec.prefix + "SCOPES")); v != "" {
			cfg.Scopes = splitScopes(v)
		}
		configs[cfg.Type] = cfg
	}
	return configs
}

// Registry holds the active providers keyed by name.
type Registry struct {
	Active map[string]Provider
}

func BuildRegistry(configs map[string]ProviderConfig) Registry {
	registry := Registry{Active: make(map[string]Provider)}
	for name, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if cfg.ClientID == "" || cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.ProfileURL == "" {
			continue
		}
		registry.Active[name] = newHTTPProvider(cfg)
	}
	return registry
}

func (r Registry) Lookup(rawName string) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(rawName))
	if name == "" {
		return nil, ErrProviderNotFound
	}
	provider, ok := r.Active[name]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return provider, nil
}

// Names returns the active provider names, for the public provider listing.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r.Active))
	for name := range r.Active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func splitScopes(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
