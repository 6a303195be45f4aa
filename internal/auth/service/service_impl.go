package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/taskora/internal/auth/domain"
	"github.com/smallbiznis/taskora/internal/auth/password"
	"github.com/smallbiznis/taskora/internal/clock"
	"github.com/smallbiznis/taskora/internal/config"
	"github.com/smallbiznis/taskora/internal/providers/email"
	"github.com/smallbiznis/taskora/internal/revocation"
	"github.com/smallbiznis/taskora/internal/token"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	minPasswordLength = 8
	resetTokenBytes   = 32
	resetTokenTTL     = 30 * time.Minute
)

type Service struct {
	log         *zap.Logger
	cfg         config.Config
	users       domain.Repository
	oauthRepo   domain.OAuthAccountRepository
	passkeys    domain.PasskeyRepository
	resetTokens domain.ResetTokenRepository
	codec       *token.Codec
	store       revocation.Store
	hasher      *password.Hasher
	mailer      email.Mailer
	genID       *snowflake.Node
	clock       clock.Clock
}

func New(
	log *zap.Logger,
	cfg config.Config,
	users domain.Repository,
	oauthRepo domain.OAuthAccountRepository,
	passkeys domain.PasskeyRepository,
	resetTokens domain.ResetTokenRepository,
	codec *token.Codec,
	store revocation.Store,
	mailer email.Mailer,
	genID *snowflake.Node,
	clk clock.Clock,
) domain.Service {
	return &Service{
		log:         log.Named("auth.service"),
		cfg:         cfg,
		users:       users,
		oauthRepo:   oauthRepo,
		passkeys:    passkeys,
		resetTokens: resetTokens,
		codec:       codec,
		store:       store,
		hasher:      password.NewHasher(password.DefaultParams),
		mailer:      mailer,
		genID:       genID,
		clock:       clk,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrEmailInvalid
	}
	if len(strings.TrimSpace(req.Password)) < minPasswordLength {
		return nil, domain.ErrPasswordTooShort
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	displayName := strings.TrimSpace(req.FullName)
	if displayName == "" {
		displayName = defaultDisplayName(email)
	}
	user := &domain.User{
		ID:           s.genID.Generate(),
		ExternalID:   uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		Role:         domain.RoleMember,
		PasswordHash: &hashed,
		Metadata:     datatypes.JSONMap{},
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	return s.IssueSession(ctx, user, req.Meta)
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	// OAuth-only and passkey-only accounts have no password hash; the
	// failure is indistinguishable from a wrong password on purpose.
	if user.PasswordHash == nil || !s.hasher.Verify(req.Password, *user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	return s.IssueSession(ctx, user, req.Meta)
}

func (s *Service) IssueSession(ctx context.Context, user *domain.User, meta domain.SessionMetadata) (*domain.LoginResult, error) {
	sessionID := uuid.NewString()
	now := s.clock.Now()

	accessToken, err := s.codec.Issue(token.Claims{
		SubjectID: user.ID.String(),
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
		TokenUse:  token.UseAccess,
	}, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.codec.Issue(token.Claims{
		SubjectID: user.ID.String(),
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
		TokenUse:  token.UseRefresh,
	}, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"user_id":    user.ID.String(),
		"email":      user.Email,
		"user_agent": strings.TrimSpace(meta.UserAgent),
		"ip_address": strings.TrimSpace(meta.IPAddress),
		"created_at": now.Format(time.RFC3339),
	}
	if err := s.store.CreateSession(ctx, sessionID, payload, s.cfg.RefreshTokenTTL); err != nil {
		return nil, err
	}

	return &domain.LoginResult{
		User:             user,
		SessionID:        sessionID,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  now.Add(s.cfg.AccessTokenTTL),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}, nil
}

// Authenticate is the gateway's verification path. Order matters: the
// denylist check runs first so a revoked token fails even while its
// signature is still valid, and a store outage rejects rather than
// honoring a possibly-revoked token.
func (s *Service) Authenticate(ctx context.Context, rawAccessToken string, touchSession bool) (*domain.Identity, error) {
	denied, err := s.store.IsDenied(ctx, rawAccessToken)
	if err != nil {
		s.log.Warn("revocation store read failed, rejecting", zap.Error(err))
		return nil, domain.ErrTokenRevoked
	}
	if denied {
		return nil, domain.ErrTokenRevoked
	}

	claims, err := s.codec.Verify(rawAccessToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenUse != token.UseAccess {
		return nil, domain.ErrWrongTokenUse
	}

	if touchSession && claims.SessionID != "" {
		if err := s.store.TouchSession(ctx, claims.SessionID, s.cfg.RefreshTokenTTL); err != nil {
			s.log.Warn("session touch failed", zap.String("session_id", claims.SessionID), zap.Error(err))
		}
	}

	return &domain.Identity{
		SubjectID: claims.SubjectID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (*domain.RefreshResult, error) {
	denied, err := s.store.IsDenied(ctx, rawRefreshToken)
	if err != nil {
		s.log.Warn("revocation store read failed, rejecting", zap.Error(err))
		return nil, domain.ErrTokenRevoked
	}
	if denied {
		return nil, domain.ErrTokenRevoked
	}

	claims, err := s.codec.Verify(rawRefreshToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenUse != token.UseRefresh {
		return nil, domain.ErrWrongTokenUse
	}

	exists, err := s.store.SessionExists(ctx, claims.SessionID)
	if err != nil {
		s.log.Warn("revocation store read failed, rejecting", zap.Error(err))
		return nil, domain.ErrTokenRevoked
	}
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	accessToken, err := s.codec.Issue(token.Claims{
		SubjectID: claims.SubjectID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		TokenUse:  token.UseAccess,
	}, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	if err := s.store.TouchSession(ctx, claims.SessionID, s.cfg.RefreshTokenTTL); err != nil {
		s.log.Warn("session touch failed", zap.String("session_id", claims.SessionID), zap.Error(err))
	}

	return &domain.RefreshResult{
		AccessToken:     accessToken,
		AccessExpiresAt: s.clock.Now().Add(s.cfg.AccessTokenTTL),
	}, nil
}

// Logout denylists both tokens for their remaining natural lifetime, so the
// denylist entries expire exactly when the tokens would have. Denylisting is
// idempotent: a second logout with the same tokens re-sets the same keys.
func (s *Service) Logout(ctx context.Context, rawAccessToken, rawRefreshToken string) error {
	var sessionID string
	for _, raw := range []string{rawAccessToken, rawRefreshToken} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		claims, err := s.codec.Decode(raw)
		if err != nil {
			continue
		}
		if sessionID == "" {
			sessionID = claims.SessionID
		}
		remaining := claims.ExpiresAt.Sub(s.clock.Now())
		if remaining <= 0 {
			continue
		}
		if err := s.store.Denylist(ctx, raw, remaining); err != nil {
			return err
		}
	}

	if sessionID != "" {
		if err := s.store.DeleteSession(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) FindOrCreateOAuthUser(ctx context.Context, provider string, profile domain.OAuthProfile) (*domain.User, error) {
	account, err := s.oauthRepo.FindByProviderSubject(ctx, provider, profile.ProviderUserID)
	if err == nil {
		user, err := s.users.FindByID(ctx, account.UserID)
		if err != nil {
			return nil, err
		}
		s.refreshProfileFields(ctx, user, profile)
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	normalized, err := normalizeEmail(profile.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, normalized)
	if errors.Is(err, domain.ErrUserNotFound) {
		user = &domain.User{
			ID:            s.genID.Generate(),
			ExternalID:    uuid.NewString(),
			Email:         normalized,
			DisplayName:   strings.TrimSpace(profile.DisplayName),
			AvatarURL:     strings.TrimSpace(profile.AvatarURL),
			Role:          domain.RoleMember,
			EmailVerified: profile.EmailVerified,
			Metadata:      datatypes.JSONMap{},
		}
		if user.DisplayName == "" {
			user.DisplayName = defaultDisplayName(normalized)
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := s.oauthRepo.Link(ctx, &domain.OAuthAccount{
		ID:             s.genID.Generate(),
		UserID:         user.ID,
		Provider:       provider,
		ProviderUserID: profile.ProviderUserID,
		Email:          normalized,
	}); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) UnlinkOAuth(ctx context.Context, subjectID string, provider string) error {
	userID, err := snowflake.ParseString(subjectID)
	if err != nil {
		return domain.ErrUserNotFound
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	accounts, err := s.oauthRepo.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	linked := false
	for _, account := range accounts {
		if account.Provider == provider {
			linked = true
			break
		}
	}
	if !linked {
		return domain.ErrUserNotFound
	}

	// The user must keep at least one way in: another provider, a
	// password, or a registered passkey.
	if len(accounts) == 1 && user.PasswordHash == nil {
		passkeys, err := s.passkeys.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(passkeys) == 0 {
			return domain.ErrCannotUnlinkLastMethod
		}
	}

	return s.oauthRepo.Unlink(ctx, userID, provider)
}

func (s *Service) CurrentUser(ctx context.Context, subjectID string) (*domain.User, error) {
	userID, err := snowflake.ParseString(subjectID)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return s.users.FindByID(ctx, userID)
}

func (s *Service) ListPasskeys(ctx context.Context, subjectID string) ([]domain.Passkey, error) {
	userID, err := snowflake.ParseString(subjectID)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return s.passkeys.ListByUser(ctx, userID)
}

func (s *Service) RenamePasskey(ctx context.Context, subjectID string, credentialID []byte, deviceName string) error {
	userID, err := snowflake.ParseString(subjectID)
	if err != nil {
		return domain.ErrUserNotFound
	}
	return s.passkeys.Rename(ctx, userID, credentialID, strings.TrimSpace(deviceName))
}

func (s *Service) DeletePasskey(ctx context.Context, subjectID string, credentialID []byte) error {
	userID, err := snowflake.ParseString(subjectID)
	if err != nil {
		return domain.ErrUserNotFound
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	passkeys, err := s.passkeys.ListByUser(ctx, userID)
	if err != nil {
		return err
	}

	// Same guard as OAuth unlink: removing the last passkey is only
	// allowed when a password or a linked provider remains.
	if len(passkeys) == 1 && user.PasswordHash == nil {
		accounts, err := s.oauthRepo.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			return domain.ErrCannotUnlinkLastMethod
		}
	}

	return s.passkeys.Delete(ctx, userID, credentialID)
}

// ForgotPassword never reveals whether the email exists.
func (s *Service) ForgotPassword(ctx context.Context, rawEmail string) error {
	normalized, err := normalizeEmail(rawEmail)
	if err != nil {
		return nil
	}
	user, err := s.users.FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return err
	}

	rawToken, err := newRandomToken(resetTokenBytes)
	if err != nil {
		return err
	}
	record := &domain.PasswordResetToken{
		ID:        s.genID.Generate(),
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: s.clock.Now().Add(resetTokenTTL),
	}
	if err := s.resetTokens.Create(ctx, record); err != nil {
		return err
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, rawToken); err != nil {
		s.log.Error("password reset mail failed", zap.Error(err))
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if len(strings.TrimSpace(newPassword)) < minPasswordLength {
		return domain.ErrPasswordTooShort
	}

	record, err := s.resetTokens.FindActiveByHash(ctx, hashToken(rawToken), s.clock.Now())
	if err != nil {
		return err
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdateFields(ctx, record.UserID, map[string]any{
		"password_hash": hashed,
		"updated_at":    s.clock.Now(),
	}); err != nil {
		return err
	}

	return s.resetTokens.MarkUsed(ctx, record.ID, s.clock.Now())
}

func (s *Service) refreshProfileFields(ctx context.Context, user *domain.User, profile domain.OAuthProfile) {
	updates := map[string]any{}
	if name := strings.TrimSpace(profile.DisplayName); name != "" && name != user.DisplayName {
		updates["display_name"] = name
		user.DisplayName = name
	}
	if avatar := strings.TrimSpace(profile.AvatarURL); avatar != "" && avatar != user.AvatarURL {
		updates["avatar_url"] = avatar
		user.AvatarURL = avatar
	}
	if len(updates) == 0 {
		return
	}
	updates["updated_at"] = s.clock.Now()
	if err := s.users.UpdateFields(ctx, user.ID, updates); err != nil {
		s.log.Warn("profile refresh failed", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", err
	}
	return strings.ToLower(parsed.Address), nil
}

func defaultDisplayName(email string) string {
	if idx := strings.Index(email, "@"); idx > 0 {
		return email[:idx]
	}
	return email
}

func newRandomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
