package materials

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/internal/actor"
	"github.com/stocklinehq/stockline-backend/internal/auditlog"
	"github.com/stocklinehq/stockline-backend/pkg/db"
	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput carries material create fields.
type CreateInput struct {
	SKU      string
	Name     string
	Unit     string
	Category string
	IsCommon bool
	Actor    actor.Actor
}

// UpdateInput carries mutable material fields. Nil pointers leave the
// current value untouched.
type UpdateInput struct {
	Name     *string
	Unit     *string
	Category *string
	IsCommon *bool
	IsActive *bool
	Actor    actor.Actor
}

// Service manages the material catalog.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Material, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Material, error)
	List(ctx context.Context, filter ListFilter) ([]models.Material, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Material, error)
	Deactivate(ctx context.Context, id uuid.UUID, act actor.Actor) (*models.Material, error)
}

type service struct {
	repo  Repository
	tx    txRunner
	audit *auditlog.Recorder
}

// NewService builds the material service.
func NewService(repo Repository, tx txRunner, audit *auditlog.Recorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("materials repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &service{repo: repo, tx: tx, audit: audit}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Material, error) {
	if input.SKU == "" || input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "material sku and name required")
	}
	material := &models.Material{
		SKU:      input.SKU,
		Name:     input.Name,
		Unit:     input.Unit,
		Category: input.Category,
		IsCommon: input.IsCommon,
		IsActive: true,
	}
	if material.Unit == "" {
		material.Unit = "pcs"
	}
	if material.Category == "" {
		material.Category = "general"
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, material); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "sku %s already exists", input.SKU)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create material")
		}
		return s.recordAudit(ctx, tx, "create", material.ID, fmt.Sprintf("sku=%s", material.SKU), input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return material, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	material, err := s.repo.Find(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "material not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load material")
	}
	return material, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.Material, error) {
	materials, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list materials")
	}
	return materials, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Material, error) {
	var material *models.Material
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.Find(ctx, id)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "material not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load material")
		}
		if input.Name != nil {
			found.Name = *input.Name
		}
		if input.Unit != nil {
			found.Unit = *input.Unit
		}
		if input.Category != nil {
			found.Category = *input.Category
		}
		if input.IsCommon != nil {
			found.IsCommon = *input.IsCommon
		}
		if input.IsActive != nil {
			found.IsActive = *input.IsActive
		}
		if err := repo.Save(ctx, found); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update material")
		}
		material = found
		return s.recordAudit(ctx, tx, "update", found.ID, fmt.Sprintf("sku=%s active=%t", found.SKU, found.IsActive), input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return material, nil
}

// Deactivate soft-deletes a material. Materials that still hold stock
// anywhere stay active so the ledger keeps a usable reference.
func (s *service) Deactivate(ctx context.Context, id uuid.UUID, act actor.Actor) (*models.Material, error) {
	var material *models.Material
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.Find(ctx, id)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "material not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load material")
		}
		hasStock, err := repo.HasStock(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check material stock")
		}
		if hasStock {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "material %s still carries stock", found.SKU)
		}
		found.IsActive = false
		if err := repo.Save(ctx, found); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate material")
		}
		material = found
		return s.recordAudit(ctx, tx, "deactivate", found.ID, fmt.Sprintf("sku=%s", found.SKU), act)
	})
	if err != nil {
		return nil, err
	}
	return material, nil
}

func (s *service) recordAudit(ctx context.Context, tx *gorm.DB, action string, id uuid.UUID, detail string, act actor.Actor) error {
	return s.audit.Record(ctx, tx, auditlog.Entry{
		Module:        "materials",
		Action:        action,
		Entity:        "material",
		EntityID:      &id,
		Detail:        detail,
		Operator:      act.Username,
		RequestSource: act.RequestSource,
		TraceID:       act.TraceID,
	})
}
