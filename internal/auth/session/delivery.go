// Package session decides how minted credentials reach the client: HttpOnly
// cookies for the configured browser front-end, JSON body for everything
// else. The choice is made from server configuration only, never from
// request headers.
package session

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/taskora/internal/auth/domain"
	"github.com/smallbiznis/taskora/internal/config"
	"go.uber.org/fx"
)

const (
	AccessCookie  = "taskora_access"
	RefreshCookie = "taskora_refresh"

	// Ceremony cookies live only long enough to complete their handshake.
	StateCookie     = "taskora_oauth_state"
	VerifierCookie  = "taskora_oauth_verifier"
	RedirectCookie  = "taskora_oauth_redirect"
	ChallengeCookie = "taskora_webauthn_challenge"

	stateCookieTTL     = 10 * time.Minute
	challengeCookieTTL = 5 * time.Minute
)

// Delivery writes and clears credential cookies. Browser delivery is active
// when FRONTEND_ORIGIN is configured; API-only deployments leave it empty
// and receive tokens in the response body instead.
type Delivery struct {
	cfg config.Config
}

func NewDelivery(cfg config.Config) *Delivery {
	return &Delivery{cfg: cfg}
}

// BrowserDelivery reports whether credentials are cookie-borne.
func (d *Delivery) BrowserDelivery() bool {
	return strings.TrimSpace(d.cfg.FrontendOrigin) != ""
}

// WriteCredentials attaches the session to the response. Cookie mode sets
// both token cookies and omits the tokens from the JSON payload; JSON mode
// returns them in the body for native and server-to-server clients.
func (d *Delivery) WriteCredentials(c *gin.Context, result *domain.LoginResult) gin.H {
	body := gin.H{
		"user":               NewPublicUser(result.User),
		"session_id":         result.SessionID,
		"access_expires_at":  result.AccessExpiresAt.UTC(),
		"refresh_expires_at": result.RefreshExpiresAt.UTC(),
	}
	if d.BrowserDelivery() {
		d.setCookie(c, AccessCookie, result.AccessToken, d.cfg.AccessTokenTTL)
		d.setCookie(c, RefreshCookie, result.RefreshToken, d.cfg.RefreshTokenTTL)
		return body
	}
	body["access_token"] = result.AccessToken
	body["refresh_token"] = result.RefreshToken
	return body
}

// WriteRefreshed attaches a refreshed access token to the response.
func (d *Delivery) WriteRefreshed(c *gin.Context, result *domain.RefreshResult) gin.H {
	body := gin.H{"access_expires_at": result.AccessExpiresAt.UTC()}
	if d.BrowserDelivery() {
		d.setCookie(c, AccessCookie, result.AccessToken, d.cfg.AccessTokenTTL)
		return body
	}
	body["access_token"] = result.AccessToken
	return body
}

// ClearCredentials expires both token cookies. Safe to call in JSON mode.
func (d *Delivery) ClearCredentials(c *gin.Context) {
	d.clearCookie(c, AccessCookie)
	d.clearCookie(c, RefreshCookie)
}

// SetCeremony stores a short-lived handshake value (OAuth state, PKCE
// verifier, WebAuthn challenge session) in an HttpOnly cookie.
func (d *Delivery) SetCeremony(c *gin.Context, name, value string) {
	ttl := stateCookieTTL
	if name == ChallengeCookie {
		ttl = challengeCookieTTL
	}
	d.setCookie(c, name, value, ttl)
}

// TakeCeremony reads a handshake cookie and clears it in the same response;
// each ceremony value is single-use.
func (d *Delivery) TakeCeremony(c *gin.Context, name string) string {
	value, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	d.clearCookie(c, name)
	return value
}

// AccessToken extracts the raw access token from the request: Authorization
// bearer header first, then the access cookie.
func (d *Delivery) AccessToken(c *gin.Context) string {
	if header := strings.TrimSpace(c.GetHeader("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	token, err := c.Cookie(AccessCookie)
	if err != nil {
		return ""
	}
	return token
}

// RefreshToken extracts the raw refresh token: the refresh cookie when
// present, otherwise the caller-supplied body token.
func (d *Delivery) RefreshToken(c *gin.Context, bodyToken string) string {
	if token, err := c.Cookie(RefreshCookie); err == nil && token != "" {
		return token
	}
	return strings.TrimSpace(bodyToken)
}

// SanitizeReturnPath keeps post-login redirects on our own front-end. Only
// an absolute path without a host survives; anything else collapses to "/".
func SanitizeReturnPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return "/"
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host != "" || parsed.Scheme != "" {
		return "/"
	}
	return raw
}

func (d *Delivery) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   d.cookieDomain(),
		MaxAge:   int(ttl / time.Second),
		Secure:   d.secure(),
		HttpOnly: true,
		SameSite: d.sameSite(),
	})
}

func (d *Delivery) clearCookie(c *gin.Context, name string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   d.cookieDomain(),
		MaxAge:   -1,
		Secure:   d.secure(),
		HttpOnly: true,
		SameSite: d.sameSite(),
	})
}

// Production serves API and front-end from one parent domain, so Strict
// works and scopes the cookie to that domain. Elsewhere the front-end runs
// on another origin (localhost ports, preview deploys) and the cookie must
// be SameSite=None without a Domain attribute.
func (d *Delivery) sameSite() http.SameSite {
	if d.cfg.IsProduction() {
		return http.SameSiteStrictMode
	}
	return http.SameSiteNoneMode
}

func (d *Delivery) cookieDomain() string {
	if d.cfg.IsProduction() {
		return d.cfg.CookieDomain
	}
	return ""
}

func (d *Delivery) secure() bool {
	// SameSite=None requires Secure; browsers drop the cookie otherwise.
	if !d.cfg.IsProduction() {
		return true
	}
	return d.cfg.AuthCookieSecure
}

// PublicUser is the JSON shape of a user exposed over the API.
type PublicUser struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	DisplayName   string         `json:"display_name"`
	AvatarURL     string         `json:"avatar_url,omitempty"`
	Role          string         `json:"role"`
	EmailVerified bool           `json:"email_verified"`
	CreatedAt     time.Time      `json:"created_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func NewPublicUser(user *domain.User) PublicUser {
	return PublicUser{
		ID:            user.ExternalID,
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		AvatarURL:     user.AvatarURL,
		Role:          user.Role,
		EmailVerified: user.EmailVerified,
		CreatedAt:     user.CreatedAt.UTC(),
		Metadata:      user.Metadata,
	}
}

var Module = fx.Module("auth.session",
	fx.Provide(NewDelivery),
)
