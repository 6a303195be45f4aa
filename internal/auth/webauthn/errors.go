package webauthn

import "errors"

var (
	// ErrChallengeMismatch covers a missing, expired, tampered or otherwise
	// unusable ceremony challenge.
	ErrChallengeMismatch = errors.New("webauthn: invalid or expired challenge")

	// ErrCounterReplay means the authenticator reported a sign counter
	// at or below the stored value. That is a cloned-credential signal and
	// the assertion is rejected outright.
	ErrCounterReplay = errors.New("webauthn: sign counter regression")

	// ErrVerificationFailed is the generic verification failure for both
	// registration and authentication ceremonies.
	ErrVerificationFailed = errors.New("webauthn: ceremony verification failed")
)
