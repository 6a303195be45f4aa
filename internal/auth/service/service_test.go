package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taskora/internal/auth/domain"
	"github.com/smallbiznis/taskora/internal/auth/repository"
	"github.com/smallbiznis/taskora/internal/clock"
	"github.com/smallbiznis/taskora/internal/config"
	"github.com/smallbiznis/taskora/internal/revocation"
	"github.com/smallbiznis/taskora/internal/token"
	"github.com/smallbiznis/taskora/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureMailer struct {
	to    string
	token string
}

func (m *captureMailer) SendPasswordReset(ctx context.Context, to, rawToken string) error {
	m.to = to
	m.token = rawToken
	return nil
}

type testEnv struct {
	svc      domain.Service
	store    *revocation.MemoryStore
	passkeys domain.PasskeyRepository
	mailer   *captureMailer
	clock    *clock.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&domain.User{},
		&domain.OAuthAccount{},
		&domain.Passkey{},
		&domain.PasswordResetToken{},
	))

	cfg := config.Config{
		AuthSecrets:     []string{"service-test-secret"},
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	}
	codec, err := token.NewCodec(cfg)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	users, oauthRepo, passkeys, resetTokens := repository.New(conn)
	store := revocation.NewMemoryStore()
	mailer := &captureMailer{}
	clk := clock.NewFakeClock(time.Now())

	svc := New(zap.NewNop(), cfg, users, oauthRepo, passkeys, resetTokens, codec, store, mailer, node, clk)
	return &testEnv{svc: svc, store: store, passkeys: passkeys, mailer: mailer, clock: clk}
}

func register(t *testing.T, env *testEnv, email string) *domain.LoginResult {
	t.Helper()
	result, err := env.svc.Register(context.Background(), domain.RegisterRequest{
		Email:    email,
		Password: "Passw0rd!",
		FullName: "Alice Example",
	})
	require.NoError(t, err)
	return result
}

func TestRegisterThenAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result := register(t, env, "alice@example.com")
	require.Equal(t, "alice@example.com", result.User.Email)
	require.Equal(t, domain.RoleMember, result.User.Role)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)
	require.NotEqual(t, result.AccessToken, result.RefreshToken)

	identity, err := env.svc.Authenticate(ctx, result.AccessToken, false)
	require.NoError(t, err)
	require.Equal(t, result.User.ID.String(), identity.SubjectID)
	require.Equal(t, "alice@example.com", identity.Email)
	require.Equal(t, result.SessionID, identity.SessionID)

	refreshed, err := env.svc.Refresh(ctx, result.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)

	_, err = env.svc.Authenticate(ctx, refreshed.AccessToken, false)
	require.NoError(t, err)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)

	register(t, env, "alice@example.com")

	_, err := env.svc.Register(context.Background(), domain.RegisterRequest{
		Email:    "Alice@Example.com",
		Password: "Passw0rd!",
	})
	require.ErrorIs(t, err, domain.ErrUserExists)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, domain.RegisterRequest{Email: "not-an-email", Password: "Passw0rd!"})
	require.ErrorIs(t, err, domain.ErrEmailInvalid)

	_, err = env.svc.Register(ctx, domain.RegisterRequest{Email: "bob@example.com", Password: "short"})
	require.ErrorIs(t, err, domain.ErrPasswordTooShort)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	register(t, env, "alice@example.com")

	_, err := env.svc.Login(ctx, domain.LoginRequest{Email: "alice@example.com", Password: "wrong-password"})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = env.svc.Login(ctx, domain.LoginRequest{Email: "nobody@example.com", Password: "Passw0rd!"})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	// An account created through a provider has no password hash; password
	// login must fail exactly like a wrong password.
	_, err = env.svc.FindOrCreateOAuthUser(ctx, "google", domain.OAuthProfile{
		ProviderUserID: "sub-1",
		Email:          "carol@example.com",
		EmailVerified:  true,
	})
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, domain.LoginRequest{Email: "carol@example.com", Password: "Passw0rd!"})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthenticateRejectsRefreshToken(t *testing.T) {
	env := newTestEnv(t)

	result := register(t, env, "alice@example.com")

	_, err := env.svc.Authenticate(context.Background(), result.RefreshToken, false)
	require.ErrorIs(t, err, domain.ErrWrongTokenUse)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)

	result := register(t, env, "alice@example.com")

	_, err := env.svc.Refresh(context.Background(), result.AccessToken)
	require.ErrorIs(t, err, domain.ErrWrongTokenUse)
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result := register(t, env, "alice@example.com")

	require.NoError(t, env.svc.Logout(ctx, result.AccessToken, result.RefreshToken))

	_, err := env.svc.Authenticate(ctx, result.AccessToken, false)
	require.ErrorIs(t, err, domain.ErrTokenRevoked)

	_, err = env.svc.Refresh(ctx, result.RefreshToken)
	require.ErrorIs(t, err, domain.ErrTokenRevoked)

	// Logout is idempotent.
	require.NoError(t, env.svc.Logout(ctx, result.AccessToken, result.RefreshToken))
}

func TestRefreshFailsAfterSessionDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result := register(t, env, "alice@example.com")
	require.NoError(t, env.store.DeleteSession(ctx, result.SessionID))

	_, err := env.svc.Refresh(ctx, result.RefreshToken)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestAuthenticateFailsClosedOnStoreOutage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result := register(t, env, "alice@example.com")

	env.store.FailReads = true

	_, err := env.svc.Authenticate(ctx, result.AccessToken, false)
	require.ErrorIs(t, err, domain.ErrTokenRevoked)

	_, err = env.svc.Refresh(ctx, result.RefreshToken)
	require.ErrorIs(t, err, domain.ErrTokenRevoked)
}

func TestFindOrCreateOAuthUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	profile := domain.OAuthProfile{
		ProviderUserID: "sub-123",
		Email:          "Dina@Example.com",
		DisplayName:    "Dina",
		EmailVerified:  true,
	}

	created, err := env.svc.FindOrCreateOAuthUser(ctx, "google", profile)
	require.NoError(t, err)
	require.Equal(t, "dina@example.com", created.Email)
	require.True(t, created.EmailVerified)

	again, err := env.svc.FindOrCreateOAuthUser(ctx, "google", profile)
	require.NoError(t, err)
	require.Equal(t, created.ID, again.ID)
}

func TestOAuthLinksExistingAccountByEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result := register(t, env, "alice@example.com")

	linked, err := env.svc.FindOrCreateOAuthUser(ctx, "github", domain.OAuthProfile{
		ProviderUserID: "gh-77",
		Email:          "alice@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, result.User.ID, linked.ID)
}

func TestUnlinkOAuthGuardsLastMethod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.svc.FindOrCreateOAuthUser(ctx, "google", domain.OAuthProfile{
		ProviderUserID: "sub-9",
		Email:          "solo@example.com",
	})
	require.NoError(t, err)

	err = env.svc.UnlinkOAuth(ctx, user.ID.String(), "google")
	require.ErrorIs(t, err, domain.ErrCannotUnlinkLastMethod)

	// With a password on file the provider link is no longer load-bearing.
	registered := register(t, env, "alice@example.com")
	_, err = env.svc.FindOrCreateOAuthUser(ctx, "google", domain.OAuthProfile{
		ProviderUserID: "sub-10",
		Email:          "alice@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.UnlinkOAuth(ctx, registered.User.ID.String(), "google"))

	err = env.svc.UnlinkOAuth(ctx, registered.User.ID.String(), "google")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	register(t, env, "alice@example.com")

	// Unknown email is silently accepted.
	require.NoError(t, env.svc.ForgotPassword(ctx, "nobody@example.com"))
	require.Empty(t, env.mailer.token)

	require.NoError(t, env.svc.ForgotPassword(ctx, "alice@example.com"))
	require.Equal(t, "alice@example.com", env.mailer.to)
	require.NotEmpty(t, env.mailer.token)

	require.NoError(t, env.svc.ResetPassword(ctx, env.mailer.token, "NewPassw0rd!"))

	_, err := env.svc.Login(ctx, domain.LoginRequest{Email: "alice@example.com", Password: "Passw0rd!"})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = env.svc.Login(ctx, domain.LoginRequest{Email: "alice@example.com", Password: "NewPassw0rd!"})
	require.NoError(t, err)

	// The token is single use.
	err = env.svc.ResetPassword(ctx, env.mailer.token, "AnotherPassw0rd!")
	require.ErrorIs(t, err, domain.ErrInvalidResetToken)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	register(t, env, "alice@example.com")
	require.NoError(t, env.svc.ForgotPassword(ctx, "alice@example.com"))

	env.clock.Advance(31 * time.Minute)

	err := env.svc.ResetPassword(ctx, env.mailer.token, "NewPassw0rd!")
	require.ErrorIs(t, err, domain.ErrInvalidResetToken)
}

func TestDeletePasskeyGuardsLastMethod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.svc.FindOrCreateOAuthUser(ctx, "google", domain.OAuthProfile{
		ProviderUserID: "sub-20",
		Email:          "erin@example.com",
	})
	require.NoError(t, err)

	// Simulate a registered credential, then drop the provider link so the
	// passkey becomes the only way in.
	passkey := &domain.Passkey{
		UserID:       user.ID,
		CredentialID: []byte{0x01, 0x02},
		PublicKey:    []byte{0x03},
	}
	require.NoError(t, env.passkeys.Create(ctx, passkey))
	require.NoError(t, env.svc.UnlinkOAuth(ctx, user.ID.String(), "google"))

	err = env.svc.DeletePasskey(ctx, user.ID.String(), passkey.CredentialID)
	require.ErrorIs(t, err, domain.ErrCannotUnlinkLastMethod)

	listed, err := env.svc.ListPasskeys(ctx, user.ID.String())
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, env.svc.RenamePasskey(ctx, user.ID.String(), passkey.CredentialID, "Work laptop"))
}
