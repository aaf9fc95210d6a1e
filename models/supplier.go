package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"gorm.io/gorm"
)

// Supplier is the canonical vendor entity other data points to.
// Unique by (business_id, code).
type Supplier struct {
	ID         int          `gorm:"primary_key" json:"id"`
	BusinessId string       `gorm:"size:64;not null;index:uniq_supplier_code,unique" json:"business_id" binding:"required"`
	Code       string       `gorm:"size:64;not null;index:uniq_supplier_code,unique" json:"code" binding:"required"`
	Name       string       `gorm:"size:255;not null" json:"name" binding:"required"`
	TaxId      string       `gorm:"size:64;index" json:"tax_id"`
	SiteCode   string       `gorm:"size:64" json:"site_code"`
	Status     EntityStatus `gorm:"type:enum('Active','PendingApproval');not null;default:'Active'" json:"status"`
	Source     EntitySource `gorm:"type:enum('Manual','Upload');not null;default:'Manual'" json:"source"`
	IsActive   *bool        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSupplier struct {
	Code     string `json:"code" binding:"required"`
	Name     string `json:"name" binding:"required"`
	TaxId    string `json:"tax_id"`
	SiteCode string `json:"site_code"`
}

func (input *NewSupplier) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateUnique[Supplier](ctx, businessId, "code", input.Code, id); err != nil {
		return err
	}
	return nil
}

// CreateSupplier registers a vendor through the master-data surface. The
// pipeline does not use this path; matcher-created suppliers are written
// inside the chunk transaction (see workflow).
func CreateSupplier(ctx context.Context, input *NewSupplier) (*Supplier, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	supplier := Supplier{
		BusinessId: businessId,
		Code:       input.Code,
		Name:       input.Name,
		TaxId:      input.TaxId,
		SiteCode:   input.SiteCode,
		Status:     EntityStatusActive,
		Source:     EntitySourceManual,
		IsActive:   utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&supplier).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

func GetSupplier(ctx context.Context, id int) (*Supplier, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Supplier](ctx, businessId, id)
}

func GetSuppliers(ctx context.Context, name *string) ([]*Supplier, error) {
	db := config.GetDB()
	var results []*Supplier

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if err := dbCtx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListSuppliersForBusiness loads the full supplier set for the lookup cache.
// Runs on the caller's handle so the cache build shares the run's context.
func ListSuppliersForBusiness(tx *gorm.DB, businessId string) ([]*Supplier, error) {
	var results []*Supplier
	err := tx.
		Where("business_id = ?", businessId).
		Order("id asc").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
