package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id snowflake.ID) (*User, error)
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
}

type OAuthAccountRepository interface {
	Link(ctx context.Context, account *OAuthAccount) error
	FindByProviderSubject(ctx context.Context, provider, providerUserID string) (*OAuthAccount, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]OAuthAccount, error)
	Unlink(ctx context.Context, userID snowflake.ID, provider string) error
}

type PasskeyRepository interface {
	Create(ctx context.Context, passkey *Passkey) error
	FindByCredentialID(ctx context.Context, credentialID []byte) (*Passkey, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]Passkey, error)
	UpdateSignCount(ctx context.Context, id snowflake.ID, signCount uint32, lastUsedAt time.Time) error
	Rename(ctx context.Context, userID snowflake.ID, credentialID []byte, deviceName string) error
	Delete(ctx context.Context, userID snowflake.ID, credentialID []byte) error
}

type ResetTokenRepository interface {
	Create(ctx context.Context, token *PasswordResetToken) error
	FindActiveByHash(ctx context.Context, tokenHash string, now time.Time) (*PasswordResetToken, error)
	MarkUsed(ctx context.Context, id snowflake.ID, usedAt time.Time) error
}
