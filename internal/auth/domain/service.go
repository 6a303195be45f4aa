package domain

import (
	"context"
	"time"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*LoginResult, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Refresh(ctx context.Context, rawRefreshToken string) (*RefreshResult, error)
	Logout(ctx context.Context, rawAccessToken, rawRefreshToken string) error

	// Authenticate verifies a raw access token for the gateway: denylist
	// check first, then signature and expiry. touchSession slides the
	// session TTL forward for browser-borne credentials.
	Authenticate(ctx context.Context, rawAccessToken string, touchSession bool) (*Identity, error)

	// IssueSession mints an access/refresh pair and registers the session.
	// Used by every login path: password, OAuth callback, passkey.
	IssueSession(ctx context.Context, user *User, meta SessionMetadata) (*LoginResult, error)

	FindOrCreateOAuthUser(ctx context.Context, provider string, profile OAuthProfile) (*User, error)
	UnlinkOAuth(ctx context.Context, subjectID string, provider string) error

	CurrentUser(ctx context.Context, subjectID string) (*User, error)

	ListPasskeys(ctx context.Context, subjectID string) ([]Passkey, error)
	RenamePasskey(ctx context.Context, subjectID string, credentialID []byte, deviceName string) error
	DeletePasskey(ctx context.Context, subjectID string, credentialID []byte) error

	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, rawToken, newPassword string) error
}

type RegisterRequest struct {
	Email    string
	Password string
	FullName string
	Meta     SessionMetadata
}

type LoginRequest struct {
	Email    string
	Password string
	Meta     SessionMetadata
}

// SessionMetadata is captured at login and stored in the session payload.
type SessionMetadata struct {
	UserAgent string
	IPAddress string
}

type LoginResult struct {
	User             *User
	SessionID        string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type RefreshResult struct {
	AccessToken     string
	AccessExpiresAt time.Time
}

// OAuthProfile is the provider-normalized identity handed to account
// creation; the broker owns fetching and normalizing it.
type OAuthProfile struct {
	ProviderUserID string
	Email          string
	DisplayName    string
	AvatarURL      string
	EmailVerified  bool
}
