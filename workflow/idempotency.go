package workflow

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
)

const reconcileHandlerName = "RECONCILE_UPLOAD"

// Pub/Sub may redeliver an acked message for a short while; a SUCCEEDED key
// younger than this window means duplicate delivery, not a deliberate re-run.
const redeliveryWindow = 10 * time.Minute

var ErrRunInProgress = errors.New("reconciliation run in progress")

// BeginIdempotentRun inserts a STARTED key for the upload. Returns skip=true
// when the same message was already processed moments ago. A SUCCEEDED key
// older than the redelivery window is reset to STARTED: re-running an upload
// after conflict resolution is a supported operation and the pipeline itself
// is idempotent over already-processed rows.
func BeginIdempotentRun(ctx context.Context, db *gorm.DB, businessId string, uploadId int) (skip bool, err error) {
	tx := db.WithContext(ctx)
	messageId := strconv.Itoa(uploadId)

	key := models.IdempotencyKey{
		BusinessId:  businessId,
		HandlerName: reconcileHandlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, nil
	} else if !isDuplicateKeyErr(err) {
		return false, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("business_id = ? AND handler_name = ? AND message_id = ?",
		businessId, reconcileHandlerName, messageId).
		First(&existing).Error; err != nil {
		return false, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		if time.Since(existing.UpdatedAt) < redeliveryWindow {
			return true, nil
		}
		return false, resetIdempotencyKey(tx, existing.ID)
	case models.IdempotencyStatusStarted:
		// Another worker is currently on it; ask Pub/Sub to retry later.
		// A stale STARTED row means a crashed worker, reuse it.
		if time.Since(existing.UpdatedAt) < 5*time.Minute {
			return false, ErrRunInProgress
		}
		return false, resetIdempotencyKey(tx, existing.ID)
	default:
		return false, resetIdempotencyKey(tx, existing.ID)
	}
}

func resetIdempotencyKey(tx *gorm.DB, id int) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.IdempotencyStatusStarted,
			"last_error": nil,
		}).Error
}

func MarkRunSucceeded(ctx context.Context, db *gorm.DB, businessId string, uploadId int) error {
	return db.WithContext(ctx).Model(&models.IdempotencyKey{}).
		Where("business_id = ? AND handler_name = ? AND message_id = ?",
			businessId, reconcileHandlerName, strconv.Itoa(uploadId)).
		Updates(map[string]interface{}{
			"status":     models.IdempotencyStatusSucceeded,
			"last_error": nil,
		}).Error
}

func MarkRunFailed(ctx context.Context, db *gorm.DB, businessId string, uploadId int, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return db.WithContext(ctx).Model(&models.IdempotencyKey{}).
		Where("business_id = ? AND handler_name = ? AND message_id = ?",
			businessId, reconcileHandlerName, strconv.Itoa(uploadId)).
		Updates(map[string]interface{}{
			"status":     models.IdempotencyStatusFailed,
			"last_error": &msg,
		}).Error
}
