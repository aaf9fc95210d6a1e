package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"gorm.io/gorm"
)

// Material is the canonical product/catalog entity. Unique by
// (business_id, code) when a code is present; code is nullable because some
// price-list uploads identify materials by description only.
type Material struct {
	ID          int          `gorm:"primary_key" json:"id"`
	BusinessId  string       `gorm:"size:64;not null;index:uniq_material_code,unique" json:"business_id" binding:"required"`
	Code        *string      `gorm:"size:64;index:uniq_material_code,unique" json:"code"`
	Description string       `gorm:"size:500;not null" json:"description" binding:"required"`
	Category    string       `gorm:"size:100" json:"category"`
	DefaultUOM  string       `gorm:"size:20" json:"default_uom"`
	Status      EntityStatus `gorm:"type:enum('Active','PendingApproval');not null;default:'Active'" json:"status"`
	Source      EntitySource `gorm:"type:enum('Manual','Upload');not null;default:'Manual'" json:"source"`
	IsActive    *bool        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMaterial struct {
	Code        *string `json:"code"`
	Description string  `json:"description" binding:"required"`
	Category    string  `json:"category"`
	DefaultUOM  string  `json:"default_uom"`
}

func (input *NewMaterial) validate(ctx context.Context, businessId string, id int) error {
	if input.Code != nil && *input.Code != "" {
		if err := utils.ValidateUnique[Material](ctx, businessId, "code", *input.Code, id); err != nil {
			return err
		}
	}
	return nil
}

func CreateMaterial(ctx context.Context, input *NewMaterial) (*Material, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	material := Material{
		BusinessId:  businessId,
		Code:        input.Code,
		Description: input.Description,
		Category:    input.Category,
		DefaultUOM:  input.DefaultUOM,
		Status:      EntityStatusActive,
		Source:      EntitySourceManual,
		IsActive:    utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&material).Error; err != nil {
		return nil, err
	}
	return &material, nil
}

func GetMaterial(ctx context.Context, id int) (*Material, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Material](ctx, businessId, id)
}

func ListMaterialsForBusiness(tx *gorm.DB, businessId string) ([]*Material, error) {
	var results []*Material
	err := tx.
		Where("business_id = ?", businessId).
		Order("id asc").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
