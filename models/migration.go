package models

import (
	"log"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Upload{}, &StagingRecord{},
		&Supplier{}, &Material{},
		&PurchaseOrder{}, &PurchaseOrderDetail{},
		&PriceRecord{},
		&MatchingConflict{},
		&QualityReport{},
		&UploadChunkError{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
