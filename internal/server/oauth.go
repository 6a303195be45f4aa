package server

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/taskora/internal/auth/session"
	"go.uber.org/zap"
)

func (s *Server) callbackURL(provider string) string {
	return s.cfg.PublicOrigin + "/oauth/" + url.PathEscape(provider) + "/callback"
}

// OAuthInitiate starts the provider handshake. State and PKCE verifier are
// bound to the browser via short-lived HttpOnly cookies before the 302.
func (s *Server) OAuthInitiate(c *gin.Context) {
	provider := c.Param("provider")

	result, err := s.broker.Initiate(provider, s.callbackURL(provider))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.delivery.SetCeremony(c, session.StateCookie, result.State)
	if result.CodeVerifier != "" {
		s.delivery.SetCeremony(c, session.VerifierCookie, result.CodeVerifier)
	}
	if returnPath := session.SanitizeReturnPath(c.Query("redirect")); returnPath != "/" {
		s.delivery.SetCeremony(c, session.RedirectCookie, returnPath)
	}

	c.Redirect(http.StatusFound, result.URL)
}

// OAuthCallback finishes the handshake. Browser deployments get a 302 back
// to the front-end either way; API-only deployments get JSON.
func (s *Server) OAuthCallback(c *gin.Context) {
	provider := c.Param("provider")

	cookieState := s.delivery.TakeCeremony(c, session.StateCookie)
	verifier := s.delivery.TakeCeremony(c, session.VerifierCookie)
	returnPath := session.SanitizeReturnPath(s.delivery.TakeCeremony(c, session.RedirectCookie))

	profile, err := s.broker.Complete(
		c.Request.Context(),
		provider,
		c.Query("code"),
		c.Query("state"),
		cookieState,
		s.callbackURL(provider),
		verifier,
	)
	if err != nil {
		s.failOAuth(c, err)
		return
	}

	user, err := s.authsvc.FindOrCreateOAuthUser(c.Request.Context(), provider, profile)
	if err != nil {
		s.failOAuth(c, err)
		return
	}

	result, err := s.authsvc.IssueSession(c.Request.Context(), user, sessionMetadata(c))
	if err != nil {
		s.failOAuth(c, err)
		return
	}

	body := s.delivery.WriteCredentials(c, result)
	if s.delivery.BrowserDelivery() {
		c.Redirect(http.StatusFound, s.cfg.FrontendOrigin+returnPath)
		return
	}
	c.JSON(http.StatusOK, body)
}

// failOAuth sends browser flows to the front-end error page and keeps the
// error envelope for API callers.
func (s *Server) failOAuth(c *gin.Context, err error) {
	s.log.Warn("oauth callback failed", zap.String("provider", c.Param("provider")), zap.Error(err))
	if s.delivery.BrowserDelivery() {
		_, payload := mapError(err)
		c.Redirect(http.StatusFound, s.cfg.FrontendOrigin+"/login?error="+url.QueryEscape(payload.Type))
		return
	}
	AbortWithError(c, err)
}

func (s *Server) OAuthUnlink(c *gin.Context) {
	identity := identityFrom(c)
	if identity == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.authsvc.UnlinkOAuth(c.Request.Context(), identity.SubjectID, c.Param("provider")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
