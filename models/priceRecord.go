package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceRecord is an immutable time-series fact: one per valid staging line.
// Never updated after creation; corrections append, they do not overwrite.
// MaterialId is NOT nullable: a price must reference a material that exists
// at write time, so material-side conflicts defer the write instead.
type PriceRecord struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;not null;index:idx_price_series" json:"business_id"`
	MaterialId int       `gorm:"not null;index:idx_price_series" json:"material_id"`
	PriceDate  time.Time `gorm:"not null;index:idx_price_series" json:"price_date"`

	// Nullable while a supplier conflict is pending.
	SupplierId *int `gorm:"index" json:"supplier_id"`

	Price         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UnitOfMeasure string          `gorm:"size:20" json:"unit_of_measure"`

	Source          PriceSource `gorm:"type:enum('Upload');not null;default:'Upload'" json:"source"`
	ConfidenceScore int         `gorm:"default:100" json:"confidence_score"`

	// Provenance metadata.
	UploadId           int    `gorm:"index;not null" json:"upload_id"`
	PONumber           string `gorm:"size:100" json:"po_number"`
	StagingRecordId    int    `gorm:"index;not null" json:"staging_record_id"`
	MatchingConflictId *int   `gorm:"index" json:"matching_conflict_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type materialMeanRow struct {
	MaterialId int
	MeanPrice  decimal.Decimal
}

// HistoricalMeanPrices returns the mean recorded price per material, used by
// the accuracy dimension to flag statistical outliers. Materials with no
// history are absent from the map.
func HistoricalMeanPrices(tx *gorm.DB, businessId string, materialIds []int) (map[int]decimal.Decimal, error) {
	result := map[int]decimal.Decimal{}
	if len(materialIds) == 0 {
		return result, nil
	}

	var rows []materialMeanRow
	err := tx.Model(&PriceRecord{}).
		Select("material_id, AVG(price) AS mean_price").
		Where("business_id = ?", businessId).
		Where("material_id IN ?", materialIds).
		Group("material_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.MaterialId] = row.MeanPrice
	}
	return result, nil
}
