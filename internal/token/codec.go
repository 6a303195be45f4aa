// Package token signs and verifies the compact identity credentials issued at
// login and carried on every authenticated request.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/smallbiznis/taskora/internal/config"
)

const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the identity payload carried by access and refresh tokens. Both
// flavors share the signing key; they differ only in TokenUse and TTL.
type Claims struct {
	SubjectID string
	Email     string
	Role      string
	SessionID string
	TokenUse  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type customClaims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	TokenUse  string `json:"token_use"`
}

// Codec issues and verifies HS256-signed JWT credentials. Secrets is ordered:
// the first entry signs, every entry is tried on verification, which leaves a
// rotation path without invalidating outstanding tokens.
type Codec struct {
	secrets [][]byte
	clock   func() time.Time
}

func NewCodec(cfg config.Config) (*Codec, error) {
	if len(cfg.AuthSecrets) == 0 {
		return nil, errors.New("token: no signing secret configured")
	}
	secrets := make([][]byte, 0, len(cfg.AuthSecrets))
	for _, s := range cfg.AuthSecrets {
		if strings.TrimSpace(s) == "" {
			continue
		}
		secrets = append(secrets, []byte(s))
	}
	if len(secrets) == 0 {
		return nil, errors.New("token: no signing secret configured")
	}
	return &Codec{secrets: secrets, clock: func() time.Time { return time.Now().UTC() }}, nil
}

// Issue signs claims with the newest secret and the given TTL.
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: c.secrets[0]},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := c.clock()
	std := gojwt.Claims{
		Subject:  claims.SubjectID,
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(ttl)),
	}
	custom := customClaims{
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		TokenUse:  claims.TokenUse,
	}

	raw, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return raw, nil
}

// Verify checks the signature and expiry and returns the claims.
func (c *Codec) Verify(raw string) (*Claims, error) {
	parsed, err := gojwt.ParseSigned(raw, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, ErrInvalidToken
	}

	var std gojwt.Claims
	var custom customClaims
	verified := false
	for _, secret := range c.secrets {
		if err := parsed.Claims(secret, &std, &custom); err == nil {
			verified = true
			break
		}
	}
	if !verified {
		return nil, ErrInvalidToken
	}

	if err := std.ValidateWithLeeway(gojwt.Expected{Time: c.clock()}, 0); err != nil {
		if errors.Is(err, gojwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	return toClaims(std, custom), nil
}

// Decode extracts claims without verifying the signature. Only used to read
// the expiry before denylisting; never trust decoded claims for identity.
func (c *Codec) Decode(raw string) (*Claims, error) {
	parsed, err := gojwt.ParseSigned(raw, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, ErrInvalidToken
	}

	var std gojwt.Claims
	var custom customClaims
	if err := parsed.UnsafeClaimsWithoutVerification(&std, &custom); err != nil {
		return nil, ErrInvalidToken
	}
	return toClaims(std, custom), nil
}

func toClaims(std gojwt.Claims, custom customClaims) *Claims {
	claims := &Claims{
		SubjectID: std.Subject,
		Email:     custom.Email,
		Role:      custom.Role,
		SessionID: custom.SessionID,
		TokenUse:  custom.TokenUse,
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}
	if std.Expiry != nil {
		claims.ExpiresAt = std.Expiry.Time()
	}
	return claims
}
