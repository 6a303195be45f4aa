package token

import (
	"testing"
	"time"

	"github.com/smallbiznis/taskora/internal/config"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, secrets ...string) *Codec {
	t.Helper()

	codec, err := NewCodec(config.Config{AuthSecrets: secrets})
	require.NoError(t, err)
	return codec
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	codec := newTestCodec(t, "test-secret")

	raw, err := codec.Issue(Claims{
		SubjectID: "42",
		Email:     "alice@example.com",
		Role:      "member",
		SessionID: "s-1",
		TokenUse:  UseAccess,
	}, 15*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := codec.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "42", claims.SubjectID)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, "member", claims.Role)
	require.Equal(t, "s-1", claims.SessionID)
	require.Equal(t, UseAccess, claims.TokenUse)
}

func TestVerifyExpired(t *testing.T) {
	codec := newTestCodec(t, "test-secret")
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	codec.clock = func() time.Time { return now }

	raw, err := codec.Issue(Claims{SubjectID: "42", TokenUse: UseAccess}, 15*time.Minute)
	require.NoError(t, err)

	codec.clock = func() time.Time { return now.Add(16 * time.Minute) }
	_, err = codec.Verify(raw)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWrongSecret(t *testing.T) {
	codec := newTestCodec(t, "secret-a")
	other := newTestCodec(t, "secret-b")

	raw, err := codec.Issue(Claims{SubjectID: "42", TokenUse: UseAccess}, time.Minute)
	require.NoError(t, err)

	_, err = other.Verify(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyAgainstOlderSecret(t *testing.T) {
	old := newTestCodec(t, "old-secret")
	rotated := newTestCodec(t, "new-secret", "old-secret")

	raw, err := old.Issue(Claims{SubjectID: "42", TokenUse: UseRefresh}, time.Minute)
	require.NoError(t, err)

	claims, err := rotated.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "42", claims.SubjectID)
}

func TestVerifyGarbage(t *testing.T) {
	codec := newTestCodec(t, "test-secret")

	_, err := codec.Verify("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecodeWithoutVerification(t *testing.T) {
	codec := newTestCodec(t, "secret-a")
	other := newTestCodec(t, "secret-b")

	raw, err := codec.Issue(Claims{SubjectID: "42", SessionID: "s-1", TokenUse: UseRefresh}, time.Hour)
	require.NoError(t, err)

	// Decode does not check the signature, so a codec with a different
	// secret can still read the expiry.
	claims, err := other.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "s-1", claims.SessionID)
	require.False(t, claims.ExpiresAt.IsZero())
}

func TestNewCodecRequiresSecret(t *testing.T) {
	_, err := NewCodec(config.Config{})
	require.Error(t, err)

	_, err = NewCodec(config.Config{AuthSecrets: []string{"  "}})
	require.Error(t, err)
}
