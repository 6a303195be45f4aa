// Package domain contains core types for the identity subsystem.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Roles assignable to a user. Per-resource role checks consume these values
// from the verified credential.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// User represents a system user account. PasswordHash is nil for
// OAuth-only and passkey-only accounts.
type User struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	ExternalID       string            `gorm:"type:text;not null;uniqueIndex"`
	Email            string            `gorm:"type:text;not null;uniqueIndex"`
	DisplayName      string            `gorm:"type:text"`
	AvatarURL        string            `gorm:"type:text"`
	Role             string            `gorm:"type:text;not null;default:member"`
	PasswordHash     *string           `gorm:"type:text"`
	EmailVerified    bool              `gorm:"not null;default:false"`
	TwoFactorEnabled bool              `gorm:"not null;default:false"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// OAuthAccount links a local user to a third-party identity provider.
type OAuthAccount struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	UserID         snowflake.ID `gorm:"column:user_id;not null;index;uniqueIndex:ux_oauth_user_provider,priority:1"`
	Provider       string       `gorm:"type:text;not null;uniqueIndex:ux_oauth_user_provider,priority:2;uniqueIndex:ux_oauth_provider_subject,priority:1"`
	ProviderUserID string       `gorm:"column:provider_user_id;type:text;not null;uniqueIndex:ux_oauth_provider_subject,priority:2"`
	Email          string       `gorm:"type:text"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OAuthAccount) TableName() string { return "oauth_accounts" }

// Passkey is one registered WebAuthn credential. SignCount is monotonically
// non-decreasing; a regression means a cloned authenticator.
type Passkey struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	UserID          snowflake.ID `gorm:"column:user_id;not null;index"`
	CredentialID    []byte       `gorm:"column:credential_id;not null;uniqueIndex"`
	PublicKey       []byte       `gorm:"not null"`
	AttestationType string       `gorm:"type:text"`
	Transports      string       `gorm:"type:text"`
	SignCount       uint32       `gorm:"not null;default:0"`
	DeviceName      string       `gorm:"type:text"`
	AAGUID          []byte       `gorm:"column:aaguid"`
	BackupEligible  bool         `gorm:"not null;default:false"`
	BackupState     bool         `gorm:"not null;default:false"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	LastUsedAt      *time.Time   `gorm:"column:last_used_at"`
}

// TableName sets the database table name.
func (Passkey) TableName() string { return "passkeys" }

// PasswordResetToken is a one-time token; only its sha256 hash is stored.
type PasswordResetToken struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"column:user_id;not null;index"`
	TokenHash string       `gorm:"column:token_hash;type:text;not null;uniqueIndex"`
	ExpiresAt time.Time    `gorm:"column:expires_at;not null"`
	UsedAt    *time.Time   `gorm:"column:used_at"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PasswordResetToken) TableName() string { return "password_reset_tokens" }

// Identity is the verified caller attached to the request context by the
// auth gateway.
type Identity struct {
	SubjectID string
	Email     string
	Role      string
	SessionID string
}
