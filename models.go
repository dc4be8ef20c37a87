// Package userstore persists user accounts and their linked OAuth accounts
// through GORM, implementing the storage contract of a user-management
// framework. Consumers embed BaseUser in their own model to add
// application-specific columns and hand the stores a *gorm.DB session.
package userstore

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserModel is satisfied by any struct embedding BaseUser.
type UserModel interface {
	GetID() uuid.UUID
	GetEmail() string
}

// BaseUser carries the columns every stored user account must have.
// Embed it to extend the schema:
//
//	type User struct {
//		userstore.BaseUser
//		FirstName string
//	}
type BaseUser struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Email          string    `gorm:"column:email;size:320;uniqueIndex;not null" json:"email"`
	HashedPassword string    `gorm:"column:hashed_password;size:255;not null" json:"-"`
	IsActive       bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	IsSuperuser    bool      `gorm:"column:is_superuser;not null;default:false" json:"is_superuser"`
	IsVerified     bool      `gorm:"column:is_verified;not null;default:false" json:"is_verified"`
}

// TableName exposes the table backing user accounts.
func (BaseUser) TableName() string {
	return "users"
}

// GetID returns the primary key.
func (u BaseUser) GetID() uuid.UUID {
	return u.ID
}

// GetEmail returns the stored email address.
func (u BaseUser) GetEmail() string {
	return u.Email
}

// BeforeCreate assigns a random identifier when the caller left it unset.
func (u *BaseUser) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// OAuthAccount links a third-party identity to a user account. The
// (provider, account id) pair is unique across all rows; many accounts may
// belong to one user.
type OAuthAccount struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;index;not null" json:"user_id"`
	Provider     string    `gorm:"column:provider;size:100;not null;uniqueIndex:idx_oauth_provider_account" json:"provider"`
	AccountID    string    `gorm:"column:account_id;size:320;not null;uniqueIndex:idx_oauth_provider_account" json:"account_id"`
	AccountEmail string    `gorm:"column:account_email;size:320;not null" json:"account_email"`
	AccessToken  string    `gorm:"column:access_token;not null" json:"-"`
	RefreshToken *string   `gorm:"column:refresh_token" json:"-"`
	ExpiresAt    *int64    `gorm:"column:expires_at" json:"expires_at,omitempty"`
}

// TableName exposes the table backing linked OAuth accounts.
func (OAuthAccount) TableName() string {
	return "oauth_accounts"
}

// BeforeCreate assigns a random identifier when the caller left it unset.
func (a *OAuthAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
