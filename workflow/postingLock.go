package workflow

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// AcquireReconcileLock serializes reconciliation per business across instances
// using MySQL advisory locks. GET_LOCK is connection-scoped, so this must run
// on the same *gorm.DB handle that performs the chunk transactions.
func AcquireReconcileLock(ctx context.Context, db *gorm.DB, businessId string) (func(), error) {
	lockName := fmt.Sprintf("reconcile:%s", businessId)
	var ok int
	if err := db.WithContext(ctx).Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return nil, err
	}
	if ok != 1 {
		if uploadId, found := utils.GetUploadIdFromContext(ctx); found {
			return nil, fmt.Errorf("could not acquire reconcile lock for business_id=%s (upload_id=%d)", businessId, uploadId)
		}
		return nil, fmt.Errorf("could not acquire reconcile lock for business_id=%s", businessId)
	}
	release := func() {
		var released int
		_ = db.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&released).Error
	}
	return release, nil
}
