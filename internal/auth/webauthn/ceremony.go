// Package webauthn runs passkey registration and authentication ceremonies
// on top of github.com/go-webauthn/webauthn. Challenge state travels to the
// browser as an HMAC-signed blob instead of living server-side.
package webauthn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-webauthn/webauthn/protocol"
	gowebauthn "github.com/go-webauthn/webauthn/webauthn"
	"github.com/smallbiznis/taskora/internal/auth/domain"
	"github.com/smallbiznis/taskora/internal/clock"
	"github.com/smallbiznis/taskora/internal/config"
	"go.uber.org/zap"
)

type Manager struct {
	log      *zap.Logger
	wa       *gowebauthn.WebAuthn
	users    domain.Repository
	passkeys domain.PasskeyRepository
	codec    sessionCodec
	genID    *snowflake.Node
	clock    clock.Clock
}

func NewManager(
	log *zap.Logger,
	cfg config.Config,
	users domain.Repository,
	passkeys domain.PasskeyRepository,
	genID *snowflake.Node,
	clk clock.Clock,
) (*Manager, error) {
	if len(cfg.AuthSecrets) == 0 {
		return nil, errors.New("webauthn: no ceremony signing secret configured")
	}
	wa, err := gowebauthn.New(&gowebauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     []string{cfg.RPOrigin},
	})
	if err != nil {
		return nil, err
	}
	return &Manager{
		log:      log.Named("auth.webauthn"),
		wa:       wa,
		users:    users,
		passkeys: passkeys,
		codec:    sessionCodec{secret: []byte(cfg.AuthSecrets[0])},
		genID:    genID,
		clock:    clk,
	}, nil
}

// RegistrationResult carries the browser-facing creation options plus the
// encoded ceremony session the caller must hand back at finish time.
type RegistrationResult struct {
	Options *protocol.CredentialCreation
	Session string
}

type AuthenticationResult struct {
	Options *protocol.CredentialAssertion
	Session string
}

// BeginRegistration starts a passkey registration ceremony for a signed-in
// user. Already-registered credentials are excluded so the authenticator
// will not double-enroll.
func (m *Manager) BeginRegistration(ctx context.Context, user *domain.User) (*RegistrationResult, error) {
	existing, err := m.passkeys.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(existing))
	for _, pk := range existing {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: pk.CredentialID,
		})
	}

	options, session, err := m.wa.BeginRegistration(
		newCeremonyUser(user, existing),
		gowebauthn.WithExclusions(exclusions),
		gowebauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementRequired,
			UserVerification: protocol.VerificationPreferred,
		}),
		gowebauthn.WithConveyancePreference(protocol.PreferNoAttestation),
	)
	if err != nil {
		return nil, err
	}

	encoded, err := m.codec.Encode(session)
	if err != nil {
		return nil, err
	}
	return &RegistrationResult{Options: options, Session: encoded}, nil
}

// FinishRegistration verifies the attestation response and stores the new
// credential. response is the raw credential JSON produced by
// navigator.credentials.create; deviceName is a user-supplied label.
func (m *Manager) FinishRegistration(ctx context.Context, user *domain.User, encodedSession, deviceName string, response json.RawMessage) (*domain.Passkey, error) {
	session, err := m.codec.Decode(encodedSession)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, ErrVerificationFailed
	}

	existing, err := m.passkeys.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	credential, err := m.wa.CreateCredential(newCeremonyUser(user, existing), *session, parsed)
	if err != nil {
		m.log.Warn("registration ceremony rejected", zap.Error(err))
		return nil, ErrVerificationFailed
	}

	passkey := credentialToPasskey(credential)
	passkey.ID = m.genID.Generate()
	passkey.UserID = user.ID
	passkey.DeviceName = strings.TrimSpace(deviceName)
	if passkey.DeviceName == "" {
		passkey.DeviceName = "Passkey"
	}
	if err := m.passkeys.Create(ctx, passkey); err != nil {
		return nil, err
	}
	return passkey, nil
}

// BeginAuthentication starts an assertion ceremony. With an email the
// options carry that user's credential allow-list; without one (or for an
// unknown email, indistinguishable on purpose) the ceremony is
// usernameless over discoverable credentials.
func (m *Manager) BeginAuthentication(ctx context.Context, email string) (*AuthenticationResult, error) {
	var (
		options *protocol.CredentialAssertion
		session *gowebauthn.SessionData
		err     error
	)

	if email = strings.TrimSpace(email); email != "" {
		if user, findErr := m.users.FindByEmail(ctx, email); findErr == nil {
			creds, listErr := m.passkeys.ListByUser(ctx, user.ID)
			if listErr != nil {
				return nil, listErr
			}
			if len(creds) > 0 {
				options, session, err = m.wa.BeginLogin(
					newCeremonyUser(user, creds),
					gowebauthn.WithUserVerification(protocol.VerificationPreferred),
				)
			}
		}
	}
	if options == nil && err == nil {
		options, session, err = m.wa.BeginDiscoverableLogin(
			gowebauthn.WithUserVerification(protocol.VerificationPreferred),
		)
	}
	if err != nil {
		return nil, err
	}

	encoded, err := m.codec.Encode(session)
	if err != nil {
		return nil, err
	}
	return &AuthenticationResult{Options: options, Session: encoded}, nil
}

// FinishAuthentication verifies the assertion, enforces the sign counter
// invariant and returns the authenticated user with the matched passkey.
// The stored counter only advances on a fully successful assertion.
func (m *Manager) FinishAuthentication(ctx context.Context, encodedSession string, response json.RawMessage) (*domain.User, *domain.Passkey, error) {
	session, err := m.codec.Decode(encodedSession)
	if err != nil {
		return nil, nil, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, nil, ErrVerificationFailed
	}

	var (
		matchedUser *domain.User
		credential  *gowebauthn.Credential
	)

	if len(session.UserID) > 0 {
		matchedUser, err = m.resolveUser(ctx, session.UserID)
		if err != nil {
			return nil, nil, err
		}
		creds, listErr := m.passkeys.ListByUser(ctx, matchedUser.ID)
		if listErr != nil {
			return nil, nil, listErr
		}
		credential, err = m.wa.ValidateLogin(newCeremonyUser(matchedUser, creds), *session, parsed)
	} else {
		handler := func(rawID, userHandle []byte) (gowebauthn.User, error) {
			user, handlerErr := m.resolveUser(ctx, userHandle)
			if handlerErr != nil {
				return nil, handlerErr
			}
			creds, listErr := m.passkeys.ListByUser(ctx, user.ID)
			if listErr != nil {
				return nil, listErr
			}
			matchedUser = user
			return newCeremonyUser(user, creds), nil
		}
		credential, err = m.wa.ValidateDiscoverableLogin(handler, *session, parsed)
	}
	if err != nil {
		if errors.Is(err, domain.ErrPasskeyNotFound) {
			return nil, nil, domain.ErrPasskeyNotFound
		}
		m.log.Warn("authentication ceremony rejected", zap.Error(err))
		return nil, nil, ErrVerificationFailed
	}
	if matchedUser == nil {
		return nil, nil, domain.ErrPasskeyNotFound
	}

	stored, err := m.passkeys.FindByCredentialID(ctx, credential.ID)
	if err != nil {
		return nil, nil, err
	}

	// The library flags a counter regression as a clone warning instead of
	// failing the assertion. Treat it as fatal and leave the stored counter
	// untouched.
	if credential.Authenticator.CloneWarning {
		m.log.Warn("sign counter replay",
			zap.String("user_id", matchedUser.ID.String()),
			zap.Uint32("stored", stored.SignCount),
			zap.Uint32("asserted", credential.Authenticator.SignCount),
		)
		return nil, nil, ErrCounterReplay
	}

	now := m.clock.Now()
	if err := m.passkeys.UpdateSignCount(ctx, stored.ID, credential.Authenticator.SignCount, now); err != nil {
		return nil, nil, err
	}
	stored.SignCount = credential.Authenticator.SignCount
	stored.LastUsedAt = &now
	return matchedUser, stored, nil
}

func (m *Manager) resolveUser(ctx context.Context, userHandle []byte) (*domain.User, error) {
	id, err := snowflake.ParseString(string(userHandle))
	if err != nil {
		return nil, domain.ErrPasskeyNotFound
	}
	user, err := m.users.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrPasskeyNotFound
	}
	return user, nil
}

// ceremonyUser adapts a domain user to the library's User interface. The
// user handle is the snowflake id so assertion handlers can resolve it
// without an extra lookup index.
type ceremonyUser struct {
	user  *domain.User
	creds []gowebauthn.Credential
}

func newCeremonyUser(user *domain.User, passkeys []domain.Passkey) *ceremonyUser {
	creds := make([]gowebauthn.Credential, 0, len(passkeys))
	for _, pk := range passkeys {
		creds = append(creds, passkeyToCredential(pk))
	}
	return &ceremonyUser{user: user, creds: creds}
}

func (u *ceremonyUser) WebAuthnID() []byte { return []byte(u.user.ID.String()) }

func (u *ceremonyUser) WebAuthnName() string { return u.user.Email }

func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.user.DisplayName != "" {
		return u.user.DisplayName
	}
	return u.user.Email
}

func (u *ceremonyUser) WebAuthnCredentials() []gowebauthn.Credential { return u.creds }

func passkeyToCredential(pk domain.Passkey) gowebauthn.Credential {
	var transports []protocol.AuthenticatorTransport
	for _, t := range strings.Split(pk.Transports, ",") {
		if t = strings.TrimSpace(t); t != "" {
			transports = append(transports, protocol.AuthenticatorTransport(t))
		}
	}
	return gowebauthn.Credential{
		ID:              pk.CredentialID,
		PublicKey:       pk.PublicKey,
		AttestationType: pk.AttestationType,
		Transport:       transports,
		Flags: gowebauthn.CredentialFlags{
			BackupEligible: pk.BackupEligible,
			BackupState:    pk.BackupState,
		},
		Authenticator: gowebauthn.Authenticator{
			AAGUID:    pk.AAGUID,
			SignCount: pk.SignCount,
		},
	}
}

func credentialToPasskey(cred *gowebauthn.Credential) *domain.Passkey {
	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}
	return &domain.Passkey{
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		Transports:      strings.Join(transports, ","),
		SignCount:       cred.Authenticator.SignCount,
		AAGUID:          cred.Authenticator.AAGUID,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
	}
}
