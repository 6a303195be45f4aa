package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/taskora/internal/auth/domain"
)

const providerRequestTimeout = 5 * time.Second

// httpProvider implements Provider for any standard OAuth2 endpoint trio.
type httpProvider struct {
	cfg        ProviderConfig
	httpClient *http.Client
}

func newHTTPProvider(cfg ProviderConfig) *httpProvider {
	return &httpProvider{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: providerRequestTimeout,
		},
	}
}

func (p *httpProvider) Name() string {
	return p.cfg.Type
}

func (p *httpProvider) UsesPKCE() bool {
	return p.cfg.UsePKCE
}

func (p *httpProvider) AuthorizationURL(redirectURI, state, codeChallenge string) (string, error) {
	parsed, err := url.Parse(p.cfg.AuthURL)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("response_type", "code")
	query.Set("client_id", p.cfg.ClientID)
	query.Set("redirect_uri", redirectURI)
	if len(p.cfg.Scopes) > 0 {
		query.Set("scope", strings.Join(p.cfg.Scopes, " "))
	}
	query.Set("state", state)
	if codeChallenge != "" {
		query.Set("code_challenge", codeChallenge)
		query.Set("code_challenge_method", "S256")
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	IDToken     string `json:"id_token"`
}

func (p *httpProvider) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", p.cfg.ClientID)
	if strings.TrimSpace(p.cfg.ClientSecret) != "" {
		form.Set("client_secret", p.cfg.ClientSecret)
	}
	if strings.TrimSpace(codeVerifier) != "" {
		form.Set("code_verifier", codeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderExchangeFailed, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", ErrProviderExchangeFailed
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.AccessToken != "" {
		return parsed.AccessToken, nil
	}

	// GitHub answers form-encoded unless asked nicely; handle both.
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return "", ErrProviderExchangeFailed
	}
	if accessToken := values.Get("access_token"); accessToken != "" {
		return accessToken, nil
	}
	return "", ErrProviderExchangeFailed
}

func (p *httpProvider) FetchProfile(ctx context.Context, accessToken string) (domain.OAuthProfile, error) {
	payload, err := p.getJSON(ctx, p.cfg.ProfileURL, accessToken)
	if err != nil {
		return domain.OAuthProfile{}, err
	}

	profile := domain.OAuthProfile{
		ProviderUserID: firstClaim(payload, "sub", "id", "user_id", "uid"),
		Email:          strings.ToLower(firstClaim(payload, "email")),
		DisplayName:    firstClaim(payload, "name", "display_name", "login", "username", "preferred_username"),
		AvatarURL:      firstClaim(payload, "picture", "avatar_url"),
		EmailVerified:  boolClaim(payload, "email_verified"),
	}
	if profile.DisplayName == "" {
		profile.DisplayName = profile.Email
	}
	if profile.ProviderUserID == "" {
		return domain.OAuthProfile{}, ErrProfileFetchFailed
	}

	if profile.Email == "" && p.cfg.Type == "github" {
		email, verified, err := p.fetchGitHubPrimaryEmail(ctx, accessToken)
		if err != nil {
			return domain.OAuthProfile{}, err
		}
		profile.Email = email
		profile.EmailVerified = verified
	}
	if profile.Email == "" {
		return domain.OAuthProfile{}, ErrNoUsableEmail
	}

	return profile, nil
}

func (p *httpProvider) fetchGitHubPrimaryEmail(ctx context.Context, accessToken string) (string, bool, error) {
	emailsURL := strings.TrimSuffix(p.cfg.ProfileURL, "/") + "/emails"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, emailsURL, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", false, ErrProfileFetchFailed
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", false, ErrProfileFetchFailed
	}
	for _, entry := range emails {
		if entry.Primary && entry.Verified {
			return strings.ToLower(entry.Email), true, nil
		}
	}
	return "", false, ErrNoUsableEmail
}

func (p *httpProvider) getJSON(ctx context.Context, rawURL, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, ErrProfileFetchFailed
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ErrProfileFetchFailed
	}
	return payload, nil
}

func firstClaim(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := payload[key]; ok {
			if str := claimToString(value); str != "" {
				return str
			}
		}
	}
	return ""
}

func claimToString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func boolClaim(payload map[string]any, key string) bool {
	switch v := payload[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}
