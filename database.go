package userstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("userstore: database handle is required")

// Database reads and writes user accounts through a caller-supplied GORM
// session. Absent records are reported as a nil user with a nil error; every
// other failure propagates unmodified from GORM and the driver, including
// uniqueness violations on Create.
type Database[U UserModel] struct {
	db *gorm.DB
}

// New constructs a user database over the supplied session.
func New[U UserModel](db *gorm.DB) (*Database[U], error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &Database[U]{db: db}, nil
}

// Get returns the user with the given id, or nil when no such user exists.
func (d *Database[U]) Get(ctx context.Context, id uuid.UUID) (*U, error) {
	var user U
	err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail returns the user with the given email, compared
// case-insensitively, or nil when no such user exists.
func (d *Database[U]) GetByEmail(ctx context.Context, email string) (*U, error) {
	var user U
	err := d.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", email).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts the user. The id is assigned on the way in when unset.
func (d *Database[U]) Create(ctx context.Context, user *U) error {
	return d.db.WithContext(ctx).Create(user).Error
}

// Update applies the given column updates to the user's row and reloads the
// struct so it reflects exactly what the database holds.
func (d *Database[U]) Update(ctx context.Context, user *U, updates map[string]any) error {
	if len(updates) > 0 {
		if err := d.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			return err
		}
	}
	return d.refresh(ctx, user)
}

// Delete removes the user's row.
func (d *Database[U]) Delete(ctx context.Context, user *U) error {
	return d.db.WithContext(ctx).Delete(user).Error
}

func (d *Database[U]) refresh(ctx context.Context, user *U) error {
	id := (*user).GetID()
	err := d.db.WithContext(ctx).First(user, "id = ?", id).Error
	if err != nil {
		return fmt.Errorf("userstore: reload user %s: %w", id, err)
	}
	return nil
}

// OAuthDatabase extends Database with the linked OAuth-accounts relation.
// Use it when the consuming application maintains third-party identities
// alongside its user accounts.
type OAuthDatabase[U UserModel] struct {
	Database[U]
}

// NewWithOAuth constructs a user database with OAuth-account support.
func NewWithOAuth[U UserModel](db *gorm.DB) (*OAuthDatabase[U], error) {
	base, err := New[U](db)
	if err != nil {
		return nil, err
	}
	return &OAuthDatabase[U]{Database: *base}, nil
}

// GetByOAuthAccount resolves the user owning the OAuth account identified by
// provider and accountID, or nil when no such account is linked.
func (d *OAuthDatabase[U]) GetByOAuthAccount(ctx context.Context, provider, accountID string) (*U, error) {
	var account OAuthAccount
	err := d.db.WithContext(ctx).
		Where("provider = ? AND account_id = ?", provider, accountID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.Get(ctx, account.UserID)
}

// AddOAuthAccount links the account to the user and persists it.
func (d *OAuthDatabase[U]) AddOAuthAccount(ctx context.Context, user *U, account *OAuthAccount) error {
	account.UserID = (*user).GetID()
	return d.db.WithContext(ctx).Create(account).Error
}

// UpdateOAuthAccount applies the given column updates to a linked account and
// reloads it.
func (d *OAuthDatabase[U]) UpdateOAuthAccount(ctx context.Context, account *OAuthAccount, updates map[string]any) error {
	if len(updates) > 0 {
		if err := d.db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
			return err
		}
	}
	return d.db.WithContext(ctx).First(account, "id = ?", account.ID).Error
}

// OAuthAccounts lists the user's linked accounts ordered by provider and
// account id.
func (d *OAuthDatabase[U]) OAuthAccounts(ctx context.Context, user *U) ([]OAuthAccount, error) {
	var accounts []OAuthAccount
	err := d.db.WithContext(ctx).
		Where("user_id = ?", (*user).GetID()).
		Order("provider ASC, account_id ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// Delete removes the user's row together with its linked OAuth accounts.
// Dependent rows go first so the accounts table never references a user that
// is already gone.
func (d *OAuthDatabase[U]) Delete(ctx context.Context, user *U) error {
	id := (*user).GetID()
	err := d.db.WithContext(ctx).
		Where("user_id = ?", id).
		Delete(&OAuthAccount{}).Error
	if err != nil {
		return err
	}
	return d.Database.Delete(ctx, user)
}
