package domain

import "errors"

var (
	// ErrInvalidCredentials covers wrong password, unknown user and
	// password login against an OAuth-only account. Deliberately generic
	// so responses cannot be used for account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")

	// Registration input failures. Unlike login, registration has no
	// enumeration concern (a duplicate email already answers 409), so
	// malformed input is reported as such.
	ErrEmailInvalid     = errors.New("email address is invalid")
	ErrPasswordTooShort = errors.New("password is too short")

	ErrTokenRevoked    = errors.New("token revoked")
	ErrSessionNotFound = errors.New("session not found")
	ErrWrongTokenUse   = errors.New("wrong token use")

	ErrPasskeyNotFound        = errors.New("passkey not found")
	ErrCannotUnlinkLastMethod = errors.New("cannot unlink last login method")
	ErrInvalidResetToken      = errors.New("invalid or expired reset token")
)
