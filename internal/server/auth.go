package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/taskora/internal/auth/domain"
	"github.com/smallbiznis/taskora/internal/auth/session"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"fullName"`
}

func (s *Server) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.authsvc.Register(c.Request.Context(), domain.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Meta:     sessionMetadata(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, s.delivery.WriteCredentials(c, result))
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), domain.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		Meta:     sessionMetadata(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.delivery.WriteCredentials(c, result))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) Refresh(c *gin.Context) {
	var req refreshRequest
	// Body is optional for cookie-borne refresh.
	_ = c.ShouldBindJSON(&req)

	raw := s.delivery.RefreshToken(c, req.RefreshToken)
	if raw == "" {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	result, err := s.authsvc.Refresh(c.Request.Context(), raw)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.delivery.WriteRefreshed(c, result))
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout is idempotent: it denylists whatever credentials the request
// carries, clears cookies and returns 200 even for an already-dead session.
func (s *Server) Logout(c *gin.Context) {
	var req logoutRequest
	_ = c.ShouldBindJSON(&req)

	access := s.delivery.AccessToken(c)
	refresh := s.delivery.RefreshToken(c, req.RefreshToken)

	if access != "" || refresh != "" {
		if err := s.authsvc.Logout(c.Request.Context(), access, refresh); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	s.delivery.ClearCredentials(c)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Me(c *gin.Context) {
	identity := identityFrom(c)
	if identity == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	user, err := s.authsvc.CurrentUser(c.Request.Context(), identity.SubjectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": session.NewPublicUser(user)})
}

func (s *Server) AuthProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": s.broker.Providers()})
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ForgotPassword always answers 200 so the endpoint cannot be used to probe
// which emails have accounts.
func (s *Server) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authsvc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authsvc.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
