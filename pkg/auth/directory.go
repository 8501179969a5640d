package auth

import (
	"errors"

	"gorm.io/gorm"

	"github.com/vendaro/vendaro/pkg/db"
)

// GormDirectory resolves accounts from the accounts table.
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory creates a directory backed by the given database.
func NewGormDirectory(gdb *gorm.DB) *GormDirectory {
	return &GormDirectory{db: gdb}
}

// Lookup returns the account document for a role-scoped id, or
// ErrAccountUnavailable if no such account exists.
func (d *GormDirectory) Lookup(role, id string) (*db.Account, error) {
	var account db.Account
	if err := d.db.First(&account, "role = ? AND id = ?", role, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountUnavailable
		}
		return nil, err
	}
	return &account, nil
}
