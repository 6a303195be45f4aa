package webauthn

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-webauthn/webauthn/protocol"
	gowebauthn "github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/smallbiznis/taskora/internal/auth/domain"
	"github.com/smallbiznis/taskora/internal/auth/repository"
	"github.com/smallbiznis/taskora/internal/clock"
	"github.com/smallbiznis/taskora/internal/config"
	"github.com/smallbiznis/taskora/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	ceremonyTestRPID   = "localhost"
	ceremonyTestOrigin = "http://localhost:3000"
)

type ceremonyEnv struct {
	mgr      *Manager
	users    domain.Repository
	passkeys domain.PasskeyRepository
	node     *snowflake.Node
}

func newCeremonyEnv(t *testing.T) *ceremonyEnv {
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
		AuthSecrets:   []string{"ceremony-test-secret"},
		RPID:          ceremonyTestRPID,
		RPDisplayName: "Taskora",
		RPOrigin:      ceremonyTestOrigin,
	}

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	users, _, passkeys, _ := repository.New(conn)

	mgr, err := NewManager(zap.NewNop(), cfg, users, passkeys, node, clock.NewFakeClock(time.Now()))
	require.NoError(t, err)

	return &ceremonyEnv{mgr: mgr, users: users, passkeys: passkeys, node: node}
}

func (env *ceremonyEnv) createUser(t *testing.T) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:          env.node.Generate(),
		ExternalID:  uuid.NewString(),
		Email:       "erin@example.com",
		DisplayName: "Erin",
		Role:        domain.RoleMember,
		Metadata:    datatypes.JSONMap{},
	}
	require.NoError(t, env.users.Create(context.Background(), user))
	return user
}

func (env *ceremonyEnv) encodedSession(t *testing.T, userID []byte, challenge string) string {
	t.Helper()
	encoded, err := env.mgr.codec.Encode(&gowebauthn.SessionData{
		Challenge:        challenge,
		UserID:           userID,
		Expires:          time.Now().Add(5 * time.Minute),
		UserVerification: protocol.VerificationPreferred,
	})
	require.NoError(t, err)
	return encoded
}

func newChallenge(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// testAuthenticator produces real ES256 assertions against a generated key,
// so the full library verification path runs in tests.
type testAuthenticator struct {
	key    *ecdsa.PrivateKey
	credID []byte
}

func newTestAuthenticator(t *testing.T) *testAuthenticator {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return &testAuthenticator{key: key, credID: []byte("ceremony-test-credential")}
}

// cosePublicKey encodes the key as a COSE EC2 ES256 key, the format stored
// for a registered credential.
func (a *testAuthenticator) cosePublicKey(t *testing.T) []byte {
	t.Helper()
	encoded, err := cbor.Marshal(map[int64]any{
		1:  2,
		3:  -7,
		-1: 1,
		-2: a.key.PublicKey.X.FillBytes(make([]byte, 32)),
		-3: a.key.PublicKey.Y.FillBytes(make([]byte, 32)),
	})
	require.NoError(t, err)
	return encoded
}

func (a *testAuthenticator) assert(t *testing.T, challenge string, userHandle []byte, counter uint32) json.RawMessage {
	t.Helper()
	b64 := base64.RawURLEncoding.EncodeToString

	clientData := fmt.Sprintf(`{"type":"webauthn.get","challenge":%q,"origin":%q}`, challenge, ceremonyTestOrigin)

	rpIDHash := sha256.Sum256([]byte(ceremonyTestRPID))
	authData := make([]byte, 0, 37)
	authData = append(authData, rpIDHash[:]...)
	authData = append(authData, 0x05) // user present, user verified
	authData = binary.BigEndian.AppendUint32(authData, counter)

	clientDataHash := sha256.Sum256([]byte(clientData))
	signed := append(append([]byte{}, authData...), clientDataHash[:]...)
	digest := sha256.Sum256(signed)
	sig, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	require.NoError(t, err)

	body := fmt.Sprintf(`{"id":%q,"rawId":%q,"type":"public-key","response":{"clientDataJSON":%q,"authenticatorData":%q,"signature":%q,"userHandle":%q}}`,
		b64(a.credID), b64(a.credID), b64([]byte(clientData)), b64(authData), b64(sig), b64(userHandle))
	return json.RawMessage(body)
}

func (env *ceremonyEnv) storePasskey(t *testing.T, user *domain.User, authr *testAuthenticator, signCount uint32) {
	t.Helper()
	require.NoError(t, env.passkeys.Create(context.Background(), &domain.Passkey{
		ID:              env.node.Generate(),
		UserID:          user.ID,
		CredentialID:    authr.credID,
		PublicKey:       authr.cosePublicKey(t),
		AttestationType: "none",
		DeviceName:      "Test Key",
		SignCount:       signCount,
	}))
}

func TestFinishAuthenticationAdvancesCounter(t *testing.T) {
	env := newCeremonyEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	authr := newTestAuthenticator(t)
	env.storePasskey(t, user, authr, 5)
	handle := []byte(user.ID.String())

	challenge := newChallenge("fresh-assertion")
	got, pk, err := env.mgr.FinishAuthentication(ctx,
		env.encodedSession(t, handle, challenge),
		authr.assert(t, challenge, handle, 6))
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.Equal(t, uint32(6), pk.SignCount)
	require.NotNil(t, pk.LastUsedAt)

	persisted, err := env.passkeys.FindByCredentialID(ctx, authr.credID)
	require.NoError(t, err)
	require.Equal(t, uint32(6), persisted.SignCount)
}

func TestFinishAuthenticationReplayedCounterFails(t *testing.T) {
	env := newCeremonyEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	authr := newTestAuthenticator(t)
	env.storePasskey(t, user, authr, 5)
	handle := []byte(user.ID.String())

	challenge := newChallenge("first-use")
	_, _, err := env.mgr.FinishAuthentication(ctx,
		env.encodedSession(t, handle, challenge),
		authr.assert(t, challenge, handle, 6))
	require.NoError(t, err)

	// Same counter on a fresh challenge is the cloned-credential signal.
	challenge = newChallenge("replayed-counter")
	_, _, err = env.mgr.FinishAuthentication(ctx,
		env.encodedSession(t, handle, challenge),
		authr.assert(t, challenge, handle, 6))
	require.ErrorIs(t, err, ErrCounterReplay)

	persisted, err := env.passkeys.FindByCredentialID(ctx, authr.credID)
	require.NoError(t, err)
	require.Equal(t, uint32(6), persisted.SignCount)

	// A regressed counter fails the same way and still leaves the stored
	// counter untouched.
	challenge = newChallenge("regressed-counter")
	_, _, err = env.mgr.FinishAuthentication(ctx,
		env.encodedSession(t, handle, challenge),
		authr.assert(t, challenge, handle, 3))
	require.ErrorIs(t, err, ErrCounterReplay)

	persisted, err = env.passkeys.FindByCredentialID(ctx, authr.credID)
	require.NoError(t, err)
	require.Equal(t, uint32(6), persisted.SignCount)
}

func TestFinishAuthenticationRejectsForeignKey(t *testing.T) {
	env := newCeremonyEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	authr := newTestAuthenticator(t)
	env.storePasskey(t, user, authr, 5)
	handle := []byte(user.ID.String())

	// Same credential id, different private key: the signature check fails
	// and the stored counter does not move.
	forger := newTestAuthenticator(t)
	forger.credID = authr.credID

	challenge := newChallenge("forged-signature")
	_, _, err := env.mgr.FinishAuthentication(ctx,
		env.encodedSession(t, handle, challenge),
		forger.assert(t, challenge, handle, 9))
	require.ErrorIs(t, err, ErrVerificationFailed)

	persisted, err := env.passkeys.FindByCredentialID(ctx, authr.credID)
	require.NoError(t, err)
	require.Equal(t, uint32(5), persisted.SignCount)
}

func TestFinishAuthenticationUnknownCredential(t *testing.T) {
	env := newCeremonyEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	authr := newTestAuthenticator(t)
	env.storePasskey(t, user, authr, 5)
	handle := []byte(user.ID.String())

	stranger := newTestAuthenticator(t)
	stranger.credID = []byte("never-registered-credential")

	challenge := newChallenge("unknown-credential")
	_, _, err := env.mgr.FinishAuthentication(ctx,
		env.encodedSession(t, handle, challenge),
		stranger.assert(t, challenge, handle, 1))
	require.ErrorIs(t, err, ErrVerificationFailed)
}

func TestFinishAuthenticationWrongChallengeFails(t *testing.T) {
	env := newCeremonyEnv(t)
	ctx := context.Background()
	user := env.createUser(t)
	authr := newTestAuthenticator(t)
	env.storePasskey(t, user, authr, 5)
	handle := []byte(user.ID.String())

	_, _, err := env.mgr.FinishAuthentication(ctx,
		env.encodedSession(t, handle, newChallenge("issued")),
		authr.assert(t, newChallenge("responded"), handle, 6))
	require.ErrorIs(t, err, ErrVerificationFailed)

	persisted, err := env.passkeys.FindByCredentialID(ctx, authr.credID)
	require.NoError(t, err)
	require.Equal(t, uint32(5), persisted.SignCount)
}
