package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// MatchingConflict records an ambiguous match requiring human adjudication.
// Created by the pipeline; mutated only by the resolution API afterwards.
// The unique index dedupes repeated (incoming value, candidate) pairs within
// one upload.
type MatchingConflict struct {
	ID         int                `gorm:"primary_key" json:"id"`
	BusinessId string             `gorm:"size:64;not null;index:uniq_conflict,unique" json:"business_id"`
	UploadId   int                `gorm:"not null;index:uniq_conflict,unique" json:"upload_id"`
	EntityType ConflictEntityType `gorm:"type:enum('Supplier','Material');not null;index:uniq_conflict,unique" json:"entity_type"`

	// IncomingKey is the normalized incoming value; bounded so it can sit in
	// the unique index. IncomingPayload keeps the raw field values for the
	// reviewer.
	IncomingKey     string `gorm:"size:191;not null;index:uniq_conflict,unique" json:"incoming_key"`
	IncomingPayload []byte `gorm:"type:json" json:"incoming_payload"`

	CandidateId   int    `gorm:"not null;index:uniq_conflict,unique" json:"candidate_id"`
	CandidateName string `gorm:"size:255" json:"candidate_name"`
	CandidateCode string `gorm:"size:64" json:"candidate_code"`

	SimilarityScore int            `gorm:"not null" json:"similarity_score"`
	Status          ConflictStatus `gorm:"type:enum('Pending','Resolved');not null;default:'Pending';index" json:"status"`

	ResolutionAction *ResolutionAction `gorm:"type:enum('Accept','Reject','CreateNew')" json:"resolution_action"`
	ResolvedBy       *string           `gorm:"size:100" json:"resolved_by"`
	ResolvedAt       *time.Time        `json:"resolved_at"`

	StagingRecordId int       `gorm:"index" json:"staging_record_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c MatchingConflict) GetCursor() string {
	return c.CreatedAt.String()
}

// GetMatchingConflicts lists conflicts for the resolution workflow. Pending
// first, oldest first, so reviewers drain the queue in upload order.
func GetMatchingConflicts(ctx context.Context, uploadId *int, status *ConflictStatus) ([]*MatchingConflict, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if uploadId != nil {
		dbCtx = dbCtx.Where("upload_id = ?", *uploadId)
	}
	if status != nil {
		dbCtx = dbCtx.Where("status = ?", *status)
	}

	var results []*MatchingConflict
	err := dbCtx.Order("status desc, created_at asc, id asc").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ResolveMatchingConflict is the write half of the external resolution API.
// The pipeline itself never calls this; it runs once per upload and leaves
// conflicts pending for asynchronous human action.
func ResolveMatchingConflict(ctx context.Context, id int, action ResolutionAction, resolvedBy string) (*MatchingConflict, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !action.IsValid() {
		return nil, errors.New("invalid resolution action")
	}

	conflict, err := utils.FetchModel[MatchingConflict](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if conflict.Status == ConflictStatusResolved {
		return nil, errors.New("conflict already resolved")
	}

	now := time.Now()
	db := config.GetDB()
	err = db.WithContext(ctx).Model(conflict).
		Updates(map[string]interface{}{
			"status":            ConflictStatusResolved,
			"resolution_action": action,
			"resolved_by":       &resolvedBy,
			"resolved_at":       &now,
		}).Error
	if err != nil {
		return nil, err
	}
	return conflict, nil
}

func CountPendingConflicts(ctx context.Context, uploadId int) (int64, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return 0, errors.New("business id is required")
	}
	return utils.ResourceCountWhere[MatchingConflict](ctx, businessId, "upload_id = ? AND status = ?", uploadId, ConflictStatusPending)
}
