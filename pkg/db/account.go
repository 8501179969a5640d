package db

import "time"

// Account is a directory entry for one of the three identity roles.
// It stands in for the external identity store; authentication resolves
// against it on every connection attempt.
type Account struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Role        string    `json:"role" gorm:"size:20;not null;index:idx_accounts_role_id"`
	DisplayName string    `json:"display_name" gorm:"size:100;not null"`
	Active      bool      `json:"active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// Identity roles
const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
	RoleStaff    = "staff"
)
