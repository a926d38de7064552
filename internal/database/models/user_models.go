package models

import "time"

const (
	RoleCustomer  = "CUSTOMER_ROLE"
	RoleWarehouse = "WAREHOUSE_ROLE"
	RoleAdmin     = "ADMIN_ROLE"
)

// Actor is the resolved caller identity handed to every core operation.
// Authentication itself happens upstream; the core only enforces role and
// ownership rules.
type Actor struct {
	UserID int64
	Role   string
}

func (a Actor) IsWarehouse() bool {
	return a.Role == RoleWarehouse || a.Role == RoleAdmin
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"uniqueIndex;not null"`
	Email     string `gorm:"uniqueIndex;not null"`
	Role      string `gorm:"size:32;not null"`
	IsActive  bool   `gorm:"default:true"`
	LastLogin *time.Time
	CreatedAt *time.Time `gorm:"autoCreateTime"`
	UpdatedAt *time.Time `gorm:"autoUpdateTime"`
}
