package bootstrap

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/config"
	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	"github.com/stocklinehq/stockline-backend/pkg/logger"
	"github.com/stocklinehq/stockline-backend/pkg/security"
)

const adminRoleName = "admin"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Params configure the startup seed.
type Params struct {
	Logger *logger.Logger
	DB     txRunner
	Cfg    *config.Config
}

// Seeder reconciles the permission catalog, the admin role and the
// bootstrap admin account on startup. Every step is idempotent so
// replica startups race safely.
type Seeder struct {
	logg *logger.Logger
	db   txRunner
	cfg  *config.Config
}

// NewSeeder builds the bootstrap seeder.
func NewSeeder(params Params) (*Seeder, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	return &Seeder{logg: params.Logger, db: params.DB, cfg: params.Cfg}, nil
}

// Run applies the full seed inside one transaction.
func (s *Seeder) Run(ctx context.Context) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		role, err := s.seedPermissions(ctx, tx)
		if err != nil {
			return err
		}
		if err := s.seedAdmin(ctx, tx, role); err != nil {
			return err
		}
		if s.cfg.FeatureFlags.DemoSeed {
			return s.seedDemoData(ctx, tx)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bootstrap seed: %w", err)
	}
	s.logg.Info(ctx, "bootstrap seed complete")
	return nil
}

func (s *Seeder) seedPermissions(ctx context.Context, tx *gorm.DB) (*models.Role, error) {
	var existing []models.Permission
	if err := tx.WithContext(ctx).Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	byCode := make(map[string]models.Permission, len(existing))
	for _, permission := range existing {
		byCode[permission.Code] = permission
	}

	for code, description := range PermissionCatalog {
		current, ok := byCode[code]
		if !ok {
			permission := models.Permission{Code: code, Description: description}
			if err := tx.WithContext(ctx).Create(&permission).Error; err != nil {
				return nil, fmt.Errorf("create permission %s: %w", code, err)
			}
			byCode[code] = permission
			continue
		}
		if current.Description != description {
			if err := tx.WithContext(ctx).
				Model(&models.Permission{}).
				Where("id = ?", current.ID).
				Update("description", description).Error; err != nil {
				return nil, fmt.Errorf("update permission %s: %w", code, err)
			}
		}
	}

	var role models.Role
	err := tx.WithContext(ctx).First(&role, "name = ?", adminRoleName).Error
	if err == gorm.ErrRecordNotFound {
		role = models.Role{Name: adminRoleName, Description: "System administrator"}
		if err := tx.WithContext(ctx).Create(&role).Error; err != nil {
			return nil, fmt.Errorf("create admin role: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("load admin role: %w", err)
	}

	// Admin holds every permission, including ones added after the role
	// was first created.
	var linked []models.RolePermission
	if err := tx.WithContext(ctx).Where("role_id = ?", role.ID).Find(&linked).Error; err != nil {
		return nil, fmt.Errorf("load admin grants: %w", err)
	}
	granted := make(map[string]bool, len(linked))
	for _, link := range linked {
		granted[link.PermissionID.String()] = true
	}
	for _, permission := range byCode {
		if granted[permission.ID.String()] {
			continue
		}
		link := models.RolePermission{RoleID: role.ID, PermissionID: permission.ID}
		if err := tx.WithContext(ctx).Create(&link).Error; err != nil {
			return nil, fmt.Errorf("grant %s to admin: %w", permission.Code, err)
		}
	}
	return &role, nil
}

func (s *Seeder) seedAdmin(ctx context.Context, tx *gorm.DB, role *models.Role) error {
	username := s.cfg.Bootstrap.AdminUsername
	if username == "" {
		username = "admin"
	}

	var user models.User
	err := tx.WithContext(ctx).First(&user, "username = ?", username).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("load admin user: %w", err)
	}

	password := s.cfg.Bootstrap.AdminPassword
	if password == "" {
		generated, err := security.GenerateTempPassword(16)
		if err != nil {
			return fmt.Errorf("generate admin password: %w", err)
		}
		password = generated
		s.logg.Warn(s.logg.WithField(ctx, "username", username),
			"admin password not configured, generated one-time password: "+password)
	}
	hash, err := security.HashPassword(password, s.cfg.Password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	user = models.User{Username: username, PasswordHash: hash, IsActive: true}
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	link := models.UserRole{UserID: user.ID, RoleID: role.ID}
	if err := tx.WithContext(ctx).Create(&link).Error; err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}
	return nil
}

// seedDemoData creates a small topology and catalog for local
// development. Skipped entirely when any factory already exists.
func (s *Seeder) seedDemoData(ctx context.Context, tx *gorm.DB) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&models.Factory{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count factories: %w", err)
	}
	if count > 0 {
		return nil
	}

	factory := models.Factory{Code: "F1", Name: "Main factory"}
	if err := tx.WithContext(ctx).Create(&factory).Error; err != nil {
		return fmt.Errorf("seed factory: %w", err)
	}
	warehouse := models.Warehouse{FactoryID: &factory.ID, Code: "WH1", Name: "Main warehouse"}
	if err := tx.WithContext(ctx).Create(&warehouse).Error; err != nil {
		return fmt.Errorf("seed warehouse: %w", err)
	}
	area := models.Area{FactoryID: &factory.ID, WarehouseID: &warehouse.ID, Code: "A1", Name: "Storage"}
	if err := tx.WithContext(ctx).Create(&area).Error; err != nil {
		return fmt.Errorf("seed area: %w", err)
	}

	locations := []models.Location{
		{WarehouseID: warehouse.ID, AreaID: &area.ID, Code: "L-01", Name: "Rack 1 slot 1"},
		{WarehouseID: warehouse.ID, AreaID: &area.ID, Code: "L-02", Name: "Rack 1 slot 2"},
		{WarehouseID: warehouse.ID, AreaID: &area.ID, Code: "STAGE-01", Name: "Staging lane 1"},
	}
	for i := range locations {
		if err := tx.WithContext(ctx).Create(&locations[i]).Error; err != nil {
			return fmt.Errorf("seed location %s: %w", locations[i].Code, err)
		}
	}

	materials := []models.Material{
		{SKU: "SKU-1001", Name: "Hex bolt M6", Unit: "pcs", Category: "fasteners"},
		{SKU: "SKU-1002", Name: "Washer M6", Unit: "pcs", Category: "fasteners"},
	}
	for i := range materials {
		materials[i].IsActive = true
		if err := tx.WithContext(ctx).Create(&materials[i]).Error; err != nil {
			return fmt.Errorf("seed material %s: %w", materials[i].SKU, err)
		}
	}
	return nil
}
