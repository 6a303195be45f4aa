package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/taskora/internal/auth"
	authdomain "github.com/smallbiznis/taskora/internal/auth/domain"
	"github.com/smallbiznis/taskora/internal/auth/oauth"
	"github.com/smallbiznis/taskora/internal/auth/session"
	authwebauthn "github.com/smallbiznis/taskora/internal/auth/webauthn"
	"github.com/smallbiznis/taskora/internal/config"
	obslogger "github.com/smallbiznis/taskora/internal/observability/logger"
	"github.com/smallbiznis/taskora/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	auth.Module,
	oauth.Module,
	authwebauthn.Module,
	session.Module,
	email.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	log        *zap.Logger
	cfg        config.Config
	authsvc    authdomain.Service
	broker     *oauth.Broker
	ceremonies *authwebauthn.Manager
	delivery   *session.Delivery
}

type ServerParams struct {
	fx.In

	Engine     *gin.Engine
	Log        *zap.Logger
	Cfg        config.Config
	AuthSvc    authdomain.Service
	Broker     *oauth.Broker
	Ceremonies *authwebauthn.Manager
	Delivery   *session.Delivery
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Engine,
		log:        p.Log.Named("http"),
		cfg:        p.Cfg,
		authsvc:    p.AuthSvc,
		broker:     p.Broker,
		ceremonies: p.Ceremonies,
		delivery:   p.Delivery,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	r := s.engine

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", s.Register)
		authGroup.POST("/login", s.Login)
		authGroup.POST("/refresh", s.Refresh)
		authGroup.POST("/logout", s.Logout)
		authGroup.GET("/me", s.AuthRequired(), s.Me)
		authGroup.GET("/providers", s.AuthProviders)
		authGroup.POST("/forgot-password", s.ForgotPassword)
		authGroup.POST("/reset-password", s.ResetPassword)
	}

	oauthGroup := r.Group("/oauth")
	{
		oauthGroup.GET("/:provider", s.OAuthInitiate)
		oauthGroup.GET("/:provider/callback", s.OAuthCallback)
		oauthGroup.POST("/unlink/:provider", s.AuthRequired(), s.OAuthUnlink)
	}

	passkeyGroup := r.Group("/passkey")
	{
		passkeyGroup.POST("/register/options", s.AuthRequired(), s.PasskeyRegisterOptions)
		passkeyGroup.POST("/register/verify", s.AuthRequired(), s.PasskeyRegisterVerify)
		passkeyGroup.POST("/authenticate/options", s.PasskeyAuthenticateOptions)
		passkeyGroup.POST("/authenticate/verify", s.PasskeyAuthenticateVerify)
		passkeyGroup.GET("/list", s.AuthRequired(), s.PasskeyList)
		passkeyGroup.DELETE("/:credentialId", s.AuthRequired(), s.PasskeyDelete)
		passkeyGroup.PATCH("/:credentialId/name", s.AuthRequired(), s.PasskeyRename)
	}
}

func sessionMetadata(c *gin.Context) authdomain.SessionMetadata {
	return authdomain.SessionMetadata{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}
}
