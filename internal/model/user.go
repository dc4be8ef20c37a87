// Package model declares the concrete records the admin service stores. It
// is a consumer of the userstore library like any other application would be.
package model

import (
	"time"

	"github.com/lattice-auth/userstore"
)

// User is the admin service's user record: the library's base columns plus a
// display name and bookkeeping timestamps.
type User struct {
	userstore.BaseUser
	DisplayName string    `gorm:"column:display_name;size:190" json:"display_name"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
