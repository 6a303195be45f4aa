package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/taskora/internal/auth/domain"
	"github.com/smallbiznis/taskora/internal/auth/session"
	"github.com/smallbiznis/taskora/internal/auth/webauthn"
)

type passkeyOptionsRequest struct {
	DeviceName string `json:"deviceName"`
}

func (s *Server) PasskeyRegisterOptions(c *gin.Context) {
	identity := identityFrom(c)
	if identity == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req passkeyOptionsRequest
	_ = c.ShouldBindJSON(&req)

	user, err := s.authsvc.CurrentUser(c.Request.Context(), identity.SubjectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.ceremonies.BeginRegistration(c.Request.Context(), user)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.delivery.SetCeremony(c, session.ChallengeCookie, result.Session)
	c.JSON(http.StatusOK, gin.H{"options": result.Options})
}

type passkeyVerifyRequest struct {
	Response   json.RawMessage `json:"response" binding:"required"`
	DeviceName string          `json:"deviceName"`
}

func (s *Server) PasskeyRegisterVerify(c *gin.Context) {
	identity := identityFrom(c)
	if identity == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req passkeyVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.authsvc.CurrentUser(c.Request.Context(), identity.SubjectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// The challenge cookie is single use; it is cleared even when
	// verification fails.
	challenge := s.delivery.TakeCeremony(c, session.ChallengeCookie)

	passkey, err := s.ceremonies.FinishRegistration(c.Request.Context(), user, challenge, req.DeviceName, req.Response)
	if err != nil {
		// A rejected attestation is bad client input, not an auth failure;
		// the caller is already signed in.
		if errors.Is(err, webauthn.ErrVerificationFailed) {
			AbortWithError(c, newValidationError("response", "verification_failed", "credential verification failed"))
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"credential": publicPasskey(passkey)})
}

type passkeyAuthenticateOptionsRequest struct {
	Email string `json:"email"`
}

func (s *Server) PasskeyAuthenticateOptions(c *gin.Context) {
	var req passkeyAuthenticateOptionsRequest
	_ = c.ShouldBindJSON(&req)

	result, err := s.ceremonies.BeginAuthentication(c.Request.Context(), req.Email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.delivery.SetCeremony(c, session.ChallengeCookie, result.Session)
	c.JSON(http.StatusOK, gin.H{"options": result.Options})
}

type passkeyAuthenticateVerifyRequest struct {
	Response json.RawMessage `json:"response" binding:"required"`
}

func (s *Server) PasskeyAuthenticateVerify(c *gin.Context) {
	var req passkeyAuthenticateVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	challenge := s.delivery.TakeCeremony(c, session.ChallengeCookie)

	user, _, err := s.ceremonies.FinishAuthentication(c.Request.Context(), challenge, req.Response)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.authsvc.IssueSession(c.Request.Context(), user, sessionMetadata(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.delivery.WriteCredentials(c, result))
}

func (s *Server) PasskeyList(c *gin.Context) {
	identity := identityFrom(c)
	if identity == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	passkeys, err := s.authsvc.ListPasskeys(c.Request.Context(), identity.SubjectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]gin.H, 0, len(passkeys))
	for i := range passkeys {
		out = append(out, publicPasskey(&passkeys[i]))
	}
	c.JSON(http.StatusOK, gin.H{"passkeys": out})
}

func (s *Server) PasskeyDelete(c *gin.Context) {
	identity := identityFrom(c)
	if identity == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	credentialID, err := parseCredentialID(c.Param("credentialId"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authsvc.DeletePasskey(c.Request.Context(), identity.SubjectID, credentialID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type passkeyRenameRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) PasskeyRename(c *gin.Context) {
	identity := identityFrom(c)
	if identity == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	credentialID, err := parseCredentialID(c.Param("credentialId"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req passkeyRenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authsvc.RenamePasskey(c.Request.Context(), identity.SubjectID, credentialID, req.Name); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Credential ids are base64url in URLs and JSON, matching how the browser
// API surfaces them.
func parseCredentialID(raw string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(raw)
}

func publicPasskey(pk *domain.Passkey) gin.H {
	out := gin.H{
		"credential_id": base64.RawURLEncoding.EncodeToString(pk.CredentialID),
		"device_name":   pk.DeviceName,
		"transports":    pk.Transports,
		"created_at":    pk.CreatedAt.UTC(),
	}
	if pk.LastUsedAt != nil {
		out["last_used_at"] = pk.LastUsedAt.UTC()
	}
	return out
}
