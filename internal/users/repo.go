package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/db/models"
)

// Repository encapsulates user and RBAC persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateUser(ctx context.Context, user *models.User) error
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	CreateRole(ctx context.Context, role *models.Role) error
	FindRoleByName(ctx context.Context, name string) (*models.Role, error)
	ListRoles(ctx context.Context) ([]models.Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error

	CreatePermission(ctx context.Context, permission *models.Permission) error
	FindPermissionByCode(ctx context.Context, code string) (*models.Permission, error)
	ListPermissions(ctx context.Context) ([]models.Permission, error)

	AssignRole(ctx context.Context, userID, roleID uuid.UUID) error
	RevokeRole(ctx context.Context, userID, roleID uuid.UUID) error
	GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error

	RolesForUser(ctx context.Context, userID uuid.UUID) ([]models.Role, error)
	PermissionsForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
	PermissionsForRole(ctx context.Context, roleID uuid.UUID) ([]models.Permission, error)
}

type repository struct {
	conn *gorm.DB
}

// NewRepository builds a gorm-backed user repository.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{conn: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{conn: tx}
}

func (r *repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.conn.WithContext(ctx).Create(user).Error
}

func (r *repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.conn.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.conn.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.conn.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repository) SaveUser(ctx context.Context, user *models.User) error {
	return r.conn.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"username":      user.Username,
			"password_hash": user.PasswordHash,
			"is_active":     user.IsActive,
		}).Error
}

func (r *repository) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.conn.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("last_login_at", at).Error
}

func (r *repository) CreateRole(ctx context.Context, role *models.Role) error {
	return r.conn.WithContext(ctx).Create(role).Error
}

func (r *repository) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	if err := r.conn.WithContext(ctx).First(&role, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *repository) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := r.conn.WithContext(ctx).Order("name ASC").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *repository) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return r.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", id).Delete(&models.RolePermission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", id).Delete(&models.UserRole{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Role{}, "id = ?", id).Error
	})
}

func (r *repository) CreatePermission(ctx context.Context, permission *models.Permission) error {
	return r.conn.WithContext(ctx).Create(permission).Error
}

func (r *repository) FindPermissionByCode(ctx context.Context, code string) (*models.Permission, error) {
	var permission models.Permission
	if err := r.conn.WithContext(ctx).First(&permission, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &permission, nil
}

func (r *repository) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	var permissions []models.Permission
	if err := r.conn.WithContext(ctx).Order("code ASC").Find(&permissions).Error; err != nil {
		return nil, err
	}
	return permissions, nil
}

func (r *repository) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return r.conn.WithContext(ctx).Create(&models.UserRole{UserID: userID, RoleID: roleID}).Error
}

func (r *repository) RevokeRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return r.conn.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&models.UserRole{}).Error
}

func (r *repository) GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	return r.conn.WithContext(ctx).Create(&models.RolePermission{RoleID: roleID, PermissionID: permissionID}).Error
}

func (r *repository) RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	return r.conn.WithContext(ctx).
		Where("role_id = ? AND permission_id = ?", roleID, permissionID).
		Delete(&models.RolePermission{}).Error
}

func (r *repository) RolesForUser(ctx context.Context, userID uuid.UUID) ([]models.Role, error) {
	var roles []models.Role
	err := r.conn.WithContext(ctx).
		Model(&models.Role{}).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name ASC").
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *repository) PermissionsForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var codes []string
	err := r.conn.WithContext(ctx).
		Model(&models.Permission{}).
		Distinct("permissions.code").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Joins("JOIN user_roles ON user_roles.role_id = role_permissions.role_id").
		Where("user_roles.user_id = ?", userID).
		Order("permissions.code ASC").
		Pluck("permissions.code", &codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *repository) PermissionsForRole(ctx context.Context, roleID uuid.UUID) ([]models.Permission, error) {
	var permissions []models.Permission
	err := r.conn.WithContext(ctx).
		Model(&models.Permission{}).
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id = ?", roleID).
		Order("permissions.code ASC").
		Find(&permissions).Error
	if err != nil {
		return nil, err
	}
	return permissions, nil
}
