package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a named bundle of permissions.
type Role struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name        string    `gorm:"column:name;not null;uniqueIndex"`
	Description string    `gorm:"column:description;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *Role) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Permission is a single grantable operation code, e.g. "inventory.adjust".
type Permission struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Code        string    `gorm:"column:code;not null;uniqueIndex"`
	Description string    `gorm:"column:description;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (p *Permission) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// UserRole links a user to a role.
type UserRole struct {
	ID     uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uq_user_roles_user_role"`
	RoleID uuid.UUID `gorm:"column:role_id;type:uuid;not null;uniqueIndex:uq_user_roles_user_role"`
}

func (u *UserRole) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// RolePermission links a role to a permission.
type RolePermission struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	RoleID       uuid.UUID `gorm:"column:role_id;type:uuid;not null;uniqueIndex:uq_role_permissions_role_permission"`
	PermissionID uuid.UUID `gorm:"column:permission_id;type:uuid;not null;uniqueIndex:uq_role_permissions_role_permission"`
}

func (r *RolePermission) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
