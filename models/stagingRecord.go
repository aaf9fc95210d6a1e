package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StagingRecord is one raw uploaded line pending reconciliation. Created by
// the (external) parser at upload time; mutated exactly once by the pipeline
// when processed; never deleted (retained for audit).
type StagingRecord struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"size:64;index;not null" json:"business_id"`
	UploadId   int    `gorm:"index;not null" json:"upload_id"`
	RowNumber  int    `gorm:"default:0" json:"row_number"`

	PONumber       string `gorm:"size:100;index" json:"po_number" validate:"omitempty,max=100"`
	LineItemNumber int    `gorm:"default:0" json:"line_item_number"`

	SupplierName  string `gorm:"size:255" json:"supplier_name" validate:"omitempty,max=255"`
	SupplierCode  string `gorm:"size:64" json:"supplier_code" validate:"omitempty,max=64"`
	SupplierTaxId string `gorm:"size:64" json:"supplier_tax_id" validate:"omitempty,max=64"`
	SupplierSite  string `gorm:"size:64" json:"supplier_site"`

	MaterialCode        string `gorm:"size:64" json:"material_code" validate:"omitempty,max=64"`
	MaterialDescription string `gorm:"size:500" json:"material_description"`
	MaterialCategory    string `gorm:"size:100" json:"material_category"`

	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	TotalPrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_price"`
	Currency      string          `gorm:"size:3" json:"currency" validate:"omitempty,len=3,alpha"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UnitOfMeasure string          `gorm:"size:20" json:"unit_of_measure"`

	PurchaseDate *time.Time `json:"purchase_date"`
	DeliveryDate *time.Time `json:"delivery_date"`
	InvoiceDate  *time.Time `json:"invoice_date"`

	ValidationStatus ValidationStatus `gorm:"type:enum('Valid','Invalid','Pending');not null;default:'Pending';index" json:"validation_status"`
	IsProcessed      *bool            `gorm:"not null;default:false;index" json:"is_processed"`
	ProcessError     *string          `gorm:"type:text" json:"process_error"`

	// Back-references stamped by the pipeline when the line is written.
	SupplierId         *int `gorm:"index" json:"supplier_id"`
	MaterialId         *int `gorm:"index" json:"material_id"`
	PurchaseOrderId    *int `gorm:"index" json:"purchase_order_id"`
	MatchingConflictId *int `gorm:"index" json:"matching_conflict_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

var stagingValidator = validator.New()

// ValidateStagingRecord re-checks field-level constraints before the pipeline
// trusts a row the parser marked Valid. Returns validator.ValidationErrors.
func ValidateStagingRecord(record *StagingRecord) error {
	return stagingValidator.Struct(record)
}

// FetchStagingChunk returns the next batch of unprocessed valid rows after
// afterId, in insertion order. Insertion order is load-bearing: it decides
// which of several duplicate-looking rows becomes the canonical create and
// which become conflicts.
func FetchStagingChunk(tx *gorm.DB, uploadId int, afterId int, limit int) ([]*StagingRecord, error) {
	var records []*StagingRecord
	err := tx.
		Where("upload_id = ?", uploadId).
		Where("validation_status = ?", ValidationStatusValid).
		Where("is_processed = 0").
		Where("id > ?", afterId).
		Order("id asc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func CountStagingRecords(tx *gorm.DB, uploadId int) (total int64, pending int64, err error) {
	if err = tx.Model(&StagingRecord{}).
		Where("upload_id = ?", uploadId).
		Where("validation_status = ?", ValidationStatusValid).
		Count(&total).Error; err != nil {
		return
	}
	err = tx.Model(&StagingRecord{}).
		Where("upload_id = ?", uploadId).
		Where("validation_status = ?", ValidationStatusValid).
		Where("is_processed = 0").
		Count(&pending).Error
	return
}

// ListStagingRecordsForUpload loads the full staging set for quality scoring.
// Scoring reads every row (valid and invalid) so rejected lines count against
// the validity dimension.
func ListStagingRecordsForUpload(tx *gorm.DB, uploadId int) ([]*StagingRecord, error) {
	var records []*StagingRecord
	err := tx.
		Where("upload_id = ?", uploadId).
		Order("id asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
