package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"gorm.io/gorm"
)

// Upload is one staged procurement file awaiting (or past) reconciliation.
// The upload/parser service creates it together with the staging rows; the
// pipeline owns the status and the aggregate counts from Processing onward.
type Upload struct {
	ID         int              `gorm:"primary_key" json:"id"`
	BusinessId string           `gorm:"size:64;index;not null" json:"business_id" binding:"required"`
	FileName   string           `gorm:"size:255" json:"file_name"`
	SourceType UploadSourceType `gorm:"type:enum('PurchaseOrders','Invoices','PriceList');not null;default:'PurchaseOrders'" json:"source_type"`
	Status     UploadStatus     `gorm:"type:enum('Pending','Processing','Completed','Failed');not null;default:'Pending';index" json:"status"`

	TotalRecords     int `gorm:"default:0" json:"total_records"`
	ProcessedRecords int `gorm:"default:0" json:"processed_records"`

	// Aggregate outcome of the latest run.
	CreatedSuppliers int     `gorm:"default:0" json:"created_suppliers"`
	CreatedMaterials int     `gorm:"default:0" json:"created_materials"`
	CreatedPOs       int     `gorm:"default:0" json:"created_pos"`
	CreatedPrices    int     `gorm:"default:0" json:"created_prices"`
	SkippedRecords   int     `gorm:"default:0" json:"skipped_records"`
	ConflictsCreated int     `gorm:"default:0" json:"conflicts_created"`
	FailureReason    *string `gorm:"type:text" json:"failure_reason"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUpload struct {
	FileName     string           `json:"file_name"`
	SourceType   UploadSourceType `json:"source_type"`
	TotalRecords int              `json:"total_records"`
}

// CreateUpload registers a staged file. Normally called by the upload service;
// also used by the seed harness.
func CreateUpload(ctx context.Context, input *NewUpload) (*Upload, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	sourceType := input.SourceType
	if sourceType == "" {
		sourceType = UploadSourceTypePurchaseOrders
	}

	upload := Upload{
		BusinessId:   businessId,
		FileName:     input.FileName,
		SourceType:   sourceType,
		Status:       UploadStatusPending,
		TotalRecords: input.TotalRecords,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&upload).Error; err != nil {
		return nil, err
	}
	return &upload, nil
}

func GetUpload(ctx context.Context, id int) (*Upload, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Upload](ctx, businessId, id)
}

// GetUploadAny fetches an upload without a tenant scope. The pipeline trigger
// only has the upload id; the business id comes from the row itself.
func GetUploadAny(ctx context.Context, id int) (*Upload, error) {
	return utils.FetchSingleModel[Upload](ctx, id)
}

func SetUploadStatus(tx *gorm.DB, uploadId int, status UploadStatus) error {
	return tx.Model(&Upload{}).
		Where("id = ?", uploadId).
		Update("status", status).Error
}

func SetUploadFailed(tx *gorm.DB, uploadId int, reason string) error {
	return tx.Model(&Upload{}).
		Where("id = ?", uploadId).
		Updates(map[string]interface{}{
			"status":         UploadStatusFailed,
			"failure_reason": &reason,
		}).Error
}

// UpdateUploadProgress persists the running counters; polled by Progress when
// the redis snapshot is cold.
func UpdateUploadProgress(tx *gorm.DB, uploadId int, processed int) error {
	return tx.Model(&Upload{}).
		Where("id = ?", uploadId).
		Update("processed_records", processed).Error
}

func FinalizeUploadCounts(tx *gorm.DB, uploadId int, createdSuppliers, createdMaterials, createdPOs, createdPrices, skipped, conflicts int) error {
	return tx.Model(&Upload{}).
		Where("id = ?", uploadId).
		Updates(map[string]interface{}{
			"status":            UploadStatusCompleted,
			"created_suppliers": createdSuppliers,
			"created_materials": createdMaterials,
			"created_pos":       createdPOs,
			"created_prices":    createdPrices,
			"skipped_records":   skipped,
			"conflicts_created": conflicts,
		}).Error
}
