package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taskora/internal/auth/domain"
	"github.com/smallbiznis/taskora/pkg/db"
	"gorm.io/gorm"
)

type userRepo struct {
	db *gorm.DB
}

type oauthRepo struct {
	db *gorm.DB
}

type passkeyRepo struct {
	db *gorm.DB
}

type resetRepo struct {
	db *gorm.DB
}

func New(db *gorm.DB) (domain.Repository, domain.OAuthAccountRepository, domain.PasskeyRepository, domain.ResetTokenRepository) {
	return &userRepo{db: db}, &oauthRepo{db: db}, &passkeyRepo{db: db}, &resetRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	// Two concurrent registrations can both pass the existence check; the
	// unique index on email is the authority.
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrUserExists
	}
	return err
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	tx := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *oauthRepo) Link(ctx context.Context, account *domain.OAuthAccount) error {
	err := r.db.WithContext(ctx).Create(account).Error
	// Re-linking the same provider is a no-op rather than an error; the
	// callback flow may replay after a double redirect.
	if db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (r *oauthRepo) FindByProviderSubject(ctx context.Context, provider, providerUserID string) (*domain.OAuthAccount, error) {
	var account domain.OAuthAccount
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_user_id = ?", provider, providerUserID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *oauthRepo) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.OAuthAccount, error) {
	var accounts []domain.OAuthAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

func (r *oauthRepo) Unlink(ctx context.Context, userID snowflake.ID, provider string) error {
	tx := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&domain.OAuthAccount{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *passkeyRepo) Create(ctx context.Context, passkey *domain.Passkey) error {
	return r.db.WithContext(ctx).Create(passkey).Error
}

func (r *passkeyRepo) FindByCredentialID(ctx context.Context, credentialID []byte) (*domain.Passkey, error) {
	var passkey domain.Passkey
	err := r.db.WithContext(ctx).Where("credential_id = ?", credentialID).First(&passkey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPasskeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &passkey, nil
}

func (r *passkeyRepo) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.Passkey, error) {
	var passkeys []domain.Passkey
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&passkeys).Error
	return passkeys, err
}

func (r *passkeyRepo) UpdateSignCount(ctx context.Context, id snowflake.ID, signCount uint32, lastUsedAt time.Time) error {
	tx := r.db.WithContext(ctx).Model(&domain.Passkey{}).Where("id = ?", id).Updates(map[string]any{
		"sign_count":   signCount,
		"last_used_at": lastUsedAt,
	})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrPasskeyNotFound
	}
	return nil
}

func (r *passkeyRepo) Rename(ctx context.Context, userID snowflake.ID, credentialID []byte, deviceName string) error {
	tx := r.db.WithContext(ctx).Model(&domain.Passkey{}).
		Where("user_id = ? AND credential_id = ?", userID, credentialID).
		Update("device_name", deviceName)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrPasskeyNotFound
	}
	return nil
}

func (r *passkeyRepo) Delete(ctx context.Context, userID snowflake.ID, credentialID []byte) error {
	tx := r.db.WithContext(ctx).
		Where("user_id = ? AND credential_id = ?", userID, credentialID).
		Delete(&domain.Passkey{})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrPasskeyNotFound
	}
	return nil
}

func (r *resetRepo) Create(ctx context.Context, token *domain.PasswordResetToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *resetRepo) FindActiveByHash(ctx context.Context, tokenHash string, now time.Time) (*domain.PasswordResetToken, error) {
	var token domain.PasswordResetToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", tokenHash, now).
		First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvalidResetToken
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *resetRepo) MarkUsed(ctx context.Context, id snowflake.ID, usedAt time.Time) error {
	tx := r.db.WithContext(ctx).Model(&domain.PasswordResetToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", usedAt)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrInvalidResetToken
	}
	return nil
}
