// Package oauth brokers the third-party OAuth2/PKCE handshake: authorization
// URL construction, CSRF-safe state binding, code exchange and profile
// normalization. It never issues local credentials.
package oauth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/smallbiznis/taskora/internal/auth/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const stateTokenBytes = 32

type Broker struct {
	log      *zap.Logger
	registry Registry
}

func NewBroker(log *zap.Logger, registry Registry) *Broker {
	return &Broker{
		log:      log.Named("auth.oauth"),
		registry: registry,
	}
}

type InitiateResult struct {
	URL          string
	State        string
	CodeVerifier string
}

// Initiate builds the provider redirect. The caller is responsible for
// binding State (and CodeVerifier, when set) to the browser via short-lived
// HttpOnly cookies.
func (b *Broker) Initiate(providerName, redirectURI string) (*InitiateResult, error) {
	provider, err := b.registry.Lookup(providerName)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(redirectURI) == "" {
		return nil, ErrInvalidRequest
	}

	state, err := randomToken(stateTokenBytes)
	if err != nil {
		return nil, err
	}

	var verifier, challenge string
	if provider.UsesPKCE() {
		verifier, err = randomToken(stateTokenBytes)
		if err != nil {
			return nil, err
		}
		challenge = pkceChallenge(verifier)
	}

	authURL, err := provider.AuthorizationURL(redirectURI, state, challenge)
	if err != nil {
		return nil, err
	}

	return &InitiateResult{
		URL:          authURL,
		State:        state,
		CodeVerifier: verifier,
	}, nil
}

// Complete finishes the callback. The state check runs before any network
// call: a missing or mismatched cookie state is a CSRF signal and terminal
// for the attempt.
func (b *Broker) Complete(ctx context.Context, providerName, code, state, cookieState, redirectURI, codeVerifier string) (domain.OAuthProfile, error) {
	provider, err := b.registry.Lookup(providerName)
	if err != nil {
		return domain.OAuthProfile{}, err
	}
	if strings.TrimSpace(code) == "" {
		return domain.OAuthProfile{}, ErrInvalidRequest
	}
	if strings.TrimSpace(state) == "" || strings.TrimSpace(cookieState) == "" {
		return domain.OAuthProfile{}, ErrStateMismatch
	}
	if !hmac.Equal([]byte(state), []byte(cookieState)) {
		return domain.OAuthProfile{}, ErrStateMismatch
	}

	accessToken, err := provider.ExchangeCode(ctx, code, redirectURI, codeVerifier)
	if err != nil {
		b.log.Warn("code exchange failed", zap.String("provider", provider.Name()), zap.Error(err))
		return domain.OAuthProfile{}, err
	}

	profile, err := provider.FetchProfile(ctx, accessToken)
	if err != nil {
		b.log.Warn("profile fetch failed", zap.String("provider", provider.Name()), zap.Error(err))
		return domain.OAuthProfile{}, err
	}
	return profile, nil
}

func (b *Broker) Providers() []string {
	return b.registry.Names()
}

func randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

var Module = fx.Module("auth.oauth",
	fx.Provide(ParseProvidersFromEnv),
	fx.Provide(BuildRegistry),
	fx.Provide(NewBroker),
)
