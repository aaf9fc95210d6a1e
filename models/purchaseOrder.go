package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PurchaseOrder is created once per distinct po_number within a business.
// Re-encountering the same number is a duplicate and must not create a second
// PO; the unique index is the cross-run backstop against concurrent uploads.
type PurchaseOrder struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"size:64;not null;index:uniq_po_number,unique" json:"business_id"`
	PONumber   string `gorm:"size:100;not null;index:uniq_po_number,unique" json:"po_number"`
	UploadId   int    `gorm:"index" json:"upload_id"`

	// Nullable while a supplier conflict is pending; the resolution workflow
	// backfills it.
	SupplierId *int `gorm:"index" json:"supplier_id"`

	OrderDate   *time.Time          `json:"order_date"`
	Currency    string              `gorm:"size:3" json:"currency"`
	TotalAmount decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Status      PurchaseOrderStatus `gorm:"type:enum('Recorded','Provisional');not null;default:'Recorded'" json:"status"`

	Details []*PurchaseOrderDetail `json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	LineItemNumber  int             `gorm:"default:0" json:"line_item_number"`
	MaterialId      *int            `gorm:"index" json:"material_id"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	TotalPrice      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_price"`
	UnitOfMeasure   string          `gorm:"size:20" json:"unit_of_measure"`
	StagingRecordId int             `gorm:"index" json:"staging_record_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// ListPONumbersForBusiness feeds the lookup cache's known-PO set.
func ListPONumbersForBusiness(tx *gorm.DB, businessId string) ([]string, error) {
	var numbers []string
	err := tx.Model(&PurchaseOrder{}).
		Where("business_id = ?", businessId).
		Pluck("po_number", &numbers).Error
	if err != nil {
		return nil, err
	}
	return numbers, nil
}
