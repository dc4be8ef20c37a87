// Package accesstoken persists opaque access tokens (and optionally their
// refresh counterparts) for database-backed authentication strategies. It
// only stores and looks tokens up; issuing them is the framework's concern.
package accesstoken

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("accesstoken: database handle is required")

// TokenModel is satisfied by any struct embedding BaseAccessToken.
type TokenModel interface {
	GetToken() string
}

// RefreshTokenModel is satisfied by any struct embedding
// BaseAccessRefreshToken.
type RefreshTokenModel interface {
	TokenModel
	GetRefreshToken() string
}

// BaseAccessToken carries the columns every stored access token must have.
type BaseAccessToken struct {
	Token     string    `gorm:"column:token;size:43;primaryKey" json:"token"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
}

// TableName exposes the table backing access tokens.
func (BaseAccessToken) TableName() string {
	return "access_tokens"
}

// GetToken returns the primary key.
func (t BaseAccessToken) GetToken() string {
	return t.Token
}

// BeforeCreate stamps the creation time in UTC when the caller left it unset.
func (t *BaseAccessToken) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return nil
}

// BaseAccessRefreshToken extends BaseAccessToken with a refresh token.
type BaseAccessRefreshToken struct {
	BaseAccessToken
	RefreshToken string `gorm:"column:refresh_token;size:43;uniqueIndex" json:"refresh_token"`
}

// TableName exposes the table backing access/refresh token pairs.
func (BaseAccessRefreshToken) TableName() string {
	return "access_refresh_tokens"
}

// GetRefreshToken returns the refresh token.
func (t BaseAccessRefreshToken) GetRefreshToken() string {
	return t.RefreshToken
}

// Database reads and writes access tokens through a caller-supplied GORM
// session. As with the user stores, absent records are a nil token with a
// nil error and every other failure propagates unmodified.
type Database[T TokenModel] struct {
	db *gorm.DB
}

// New constructs an access-token database over the supplied session.
func New[T TokenModel](db *gorm.DB) (*Database[T], error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &Database[T]{db: db}, nil
}

// GetByToken returns the stored token, or nil when it does not exist. A
// non-nil maxAge restricts the lookup to tokens created at or after that
// instant, so expired tokens read as absent.
func (d *Database[T]) GetByToken(ctx context.Context, token string, maxAge *time.Time) (*T, error) {
	query := d.db.WithContext(ctx).Where("token = ?", token)
	if maxAge != nil {
		query = query.Where("created_at >= ?", *maxAge)
	}
	var record T
	err := query.First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Create inserts the token. The creation time is stamped on the way in when
// unset.
func (d *Database[T]) Create(ctx context.Context, token *T) error {
	return d.db.WithContext(ctx).Create(token).Error
}

// Update applies the given column updates to the token's row and reloads the
// struct.
func (d *Database[T]) Update(ctx context.Context, token *T, updates map[string]any) error {
	if len(updates) > 0 {
		if err := d.db.WithContext(ctx).Model(token).Updates(updates).Error; err != nil {
			return err
		}
	}
	return d.db.WithContext(ctx).First(token, "token = ?", (*token).GetToken()).Error
}

// Delete removes the token's row.
func (d *Database[T]) Delete(ctx context.Context, token *T) error {
	return d.db.WithContext(ctx).Delete(token).Error
}

// RefreshDatabase extends Database with refresh-token lookups.
type RefreshDatabase[T RefreshTokenModel] struct {
	Database[T]
}

// NewRefresh constructs an access/refresh-token database over the supplied
// session.
func NewRefresh[T RefreshTokenModel](db *gorm.DB) (*RefreshDatabase[T], error) {
	base, err := New[T](db)
	if err != nil {
		return nil, err
	}
	return &RefreshDatabase[T]{Database: *base}, nil
}

// GetByRefreshToken returns the token pair holding the given refresh token,
// or nil when it does not exist. maxAge behaves as in GetByToken.
func (d *RefreshDatabase[T]) GetByRefreshToken(ctx context.Context, refreshToken string, maxAge *time.Time) (*T, error) {
	query := d.db.WithContext(ctx).Where("refresh_token = ?", refreshToken)
	if maxAge != nil {
		query = query.Where("created_at >= ?", *maxAge)
	}
	var record T
	err := query.First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
