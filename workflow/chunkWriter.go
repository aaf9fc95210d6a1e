package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// runState carries the matching context threaded through every chunk of a run.
type runState struct {
	businessId     string
	uploadId       int
	cache          *LookupCache
	conflicts      *conflictRecorder
	deferConflicts bool
}

// chunkPlan is the pure output of planning one chunk: everything the writer
// must persist, with no database work done yet. Entity pointers are shared
// between the create lists and the per-record writes, so IDs assigned during
// apply are visible to the rows that reference them.
type chunkPlan struct {
	businessId string
	uploadId   int
	chunkIndex int

	firstRecordId int
	lastRecordId  int

	newSuppliers []*models.Supplier
	newMaterials []*models.Material
	conflicts    []*models.MatchingConflict

	writes   []*recordWrite
	skips    []*recordSkip
	deferred []*recordDefer
}

type recordWrite struct {
	record      *models.StagingRecord
	supplier    *models.Supplier          // nil when absent or provisional
	material    *models.Material          // never nil
	conflict    *models.MatchingConflict  // supplier conflict carried provisionally
	confidence  int
	createPO    bool
	provisional bool
}

type recordSkip struct {
	record *models.StagingRecord
	reason string
}

type recordDefer struct {
	record   *models.StagingRecord
	conflict *models.MatchingConflict
}

type chunkWriteResult struct {
	CreatedSuppliers int
	CreatedMaterials int
	CreatedPOs       int
	CreatedPrices    int
	ConflictsCreated int
	Skipped          int
	Deferred         int
	Processed        int

	// Conflict rows present in the database after commit, keyed for the
	// run-level recorder.
	CommittedConflicts map[string]int
}

// planChunk resolves every record of a chunk against the lookup cache and
// decides, without touching the database, what the writer will persist. The
// chunk-local overlay cache makes in-chunk creations visible to later records
// and is discarded with the plan if the write fails.
func planChunk(run *runState, chunkIndex int, records []*models.StagingRecord) *chunkPlan {
	plan := &chunkPlan{
		businessId: run.businessId,
		uploadId:   run.uploadId,
		chunkIndex: chunkIndex,
	}
	if len(records) > 0 {
		plan.firstRecordId = records[0].ID
		plan.lastRecordId = records[len(records)-1].ID
	}

	overlay := &LookupCache{
		businessId:       run.businessId,
		suppliersByCode:  map[string]*models.Supplier{},
		suppliersByTaxId: map[string]*models.Supplier{},
		supplierBlocks:   map[string][]*models.Supplier{},
		materialsByCode:  map[string]*models.Material{},
		materialBlocks:   map[string][]*models.Material{},
		poNumbers:        map[string]bool{},
	}
	plannedConflicts := map[string]*models.MatchingConflict{}

	// resolveConflict returns the stamp-able conflict row for a key: a stub
	// carrying the id when a previous chunk already committed it, the shared
	// planned row when this chunk already holds it, or a fresh row to insert.
	resolveConflict := func(conflict *models.MatchingConflict) *models.MatchingConflict {
		key := recordedConflictKey(conflict)
		if id, ok := run.conflicts.CommittedId(key); ok {
			return &models.MatchingConflict{ID: id}
		}
		if planned, ok := plannedConflicts[key]; ok {
			return planned
		}
		plannedConflicts[key] = conflict
		plan.conflicts = append(plan.conflicts, conflict)
		return conflict
	}

	for _, record := range records {
		if reason, ok := rejectReason(record); ok {
			plan.skips = append(plan.skips, &recordSkip{record: record, reason: reason})
			continue
		}

		// Duplicate PO numbers are checked before matching so a skipped line
		// cannot plant entities.
		createPO := false
		if record.PONumber != "" {
			if run.cache.KnownPONumber(record.PONumber) || overlay.KnownPONumber(record.PONumber) {
				plan.skips = append(plan.skips, &recordSkip{
					record: record,
					reason: fmt.Sprintf("duplicate po_number %s", record.PONumber),
				})
				continue
			}
			createPO = true
		}

		supplierMatch := MatchSupplier(record, run.cache, overlay)
		if supplierMatch.Outcome == MatchOutcomeRejected {
			plan.skips = append(plan.skips, &recordSkip{record: record, reason: supplierMatch.Reason})
			continue
		}

		var supplier *models.Supplier
		var supplierConflict *models.MatchingConflict
		supplierScore := 100

		switch supplierMatch.Outcome {
		case MatchOutcomeExact, MatchOutcomeFuzzy:
			supplier = supplierMatch.Supplier
			supplierScore = supplierMatch.Score
		case MatchOutcomeConflict:
			supplierConflict = resolveConflict(run.conflicts.buildSupplierConflict(record, supplierMatch))
			supplierScore = supplierMatch.Score
			if run.deferConflicts {
				plan.deferred = append(plan.deferred, &recordDefer{record: record, conflict: supplierConflict})
				continue
			}
		case MatchOutcomeCreateNew:
			supplier = newSupplierFromRecord(run.businessId, record)
			plan.newSuppliers = append(plan.newSuppliers, supplier)
			overlay.AddSupplier(supplier)
		case MatchOutcomeAbsent:
			// Price-list lines may carry no supplier at all.
		}

		materialMatch := MatchMaterial(record, run.cache, overlay)
		if materialMatch.Outcome == MatchOutcomeRejected {
			plan.skips = append(plan.skips, &recordSkip{record: record, reason: materialMatch.Reason})
			continue
		}

		var material *models.Material
		materialScore := 100

		switch materialMatch.Outcome {
		case MatchOutcomeExact, MatchOutcomeFuzzy:
			material = materialMatch.Material
			materialScore = materialMatch.Score
		case MatchOutcomeConflict:
			// Price rows require a resolved material, so material ambiguity
			// always defers the record regardless of strategy.
			conflict := resolveConflict(run.conflicts.buildMaterialConflict(record, materialMatch))
			plan.deferred = append(plan.deferred, &recordDefer{record: record, conflict: conflict})
			continue
		case MatchOutcomeCreateNew:
			material = newMaterialFromRecord(run.businessId, record)
			plan.newMaterials = append(plan.newMaterials, material)
			overlay.AddMaterial(material)
		}

		if createPO {
			overlay.AddPONumber(record.PONumber)
		}

		confidence := supplierScore
		if materialScore < confidence {
			confidence = materialScore
		}

		plan.writes = append(plan.writes, &recordWrite{
			record:      record,
			supplier:    supplier,
			material:    material,
			conflict:    supplierConflict,
			confidence:  confidence,
			createPO:    createPO,
			provisional: supplierConflict != nil,
		})
	}

	return plan
}

// rejectReason applies the field-level checks a line must pass before any
// matching happens.
func rejectReason(record *models.StagingRecord) (string, bool) {
	if err := models.ValidateStagingRecord(record); err != nil {
		fields := utils.ProcessValidationErrors(err)
		for field, message := range fields {
			return fmt.Sprintf("invalid field %s: %s", field, message), true
		}
		return "invalid record", true
	}
	if !record.UnitPrice.IsPositive() {
		return "unit price must be positive", true
	}
	if record.Quantity.IsNegative() {
		return "quantity must not be negative", true
	}
	return "", false
}

func newSupplierFromRecord(businessId string, record *models.StagingRecord) *models.Supplier {
	code := NormalizeCode(record.SupplierCode)
	if code == "" {
		code = utils.GenerateEntityCode()
	}
	name := record.SupplierName
	if name == "" {
		name = record.SupplierCode
	}
	return &models.Supplier{
		BusinessId: businessId,
		Code:       code,
		Name:       name,
		TaxId:      NormalizeCode(record.SupplierTaxId),
		SiteCode:   record.SupplierSite,
		Status:     models.EntityStatusPendingApproval,
		Source:     models.EntitySourceUpload,
		IsActive:   utils.NewTrue(),
	}
}

func newMaterialFromRecord(businessId string, record *models.StagingRecord) *models.Material {
	code := utils.NilIfEmpty(NormalizeCode(record.MaterialCode))
	description := record.MaterialDescription
	if description == "" {
		description = record.MaterialCode
	}
	return &models.Material{
		BusinessId:  businessId,
		Code:        code,
		Description: description,
		Category:    record.MaterialCategory,
		DefaultUOM:  record.UnitOfMeasure,
		Status:      models.EntityStatusPendingApproval,
		Source:      models.EntitySourceUpload,
		IsActive:    utils.NewTrue(),
	}
}

// WriteChunk persists one planned chunk in a single transaction bounded by the
// chunk timeout. Either every row of the chunk lands or none do.
func (s *GormStore) WriteChunk(ctx context.Context, plan *chunkPlan) (*chunkWriteResult, error) {
	timeout := time.Duration(config.ReconcileChunkTimeoutSeconds()) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := &chunkWriteResult{CommittedConflicts: map[string]int{}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return applyChunkPlan(tx, plan, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func applyChunkPlan(tx *gorm.DB, plan *chunkPlan, result *chunkWriteResult) error {
	for _, supplier := range plan.newSuppliers {
		if err := tx.Create(supplier).Error; err != nil {
			if !isDuplicateKeyErr(err) {
				return fmt.Errorf("create supplier %s: %w", supplier.Code, err)
			}
			// A concurrent writer won the unique index; adopt its row.
			var existing models.Supplier
			if err := tx.Where("business_id = ? AND code = ?", plan.businessId, supplier.Code).
				First(&existing).Error; err != nil {
				return fmt.Errorf("reload supplier %s: %w", supplier.Code, err)
			}
			*supplier = existing
			continue
		}
		result.CreatedSuppliers++
	}

	for _, material := range plan.newMaterials {
		if err := tx.Create(material).Error; err != nil {
			if !isDuplicateKeyErr(err) || material.Code == nil {
				return fmt.Errorf("create material: %w", err)
			}
			var existing models.Material
			if err := tx.Where("business_id = ? AND code = ?", plan.businessId, *material.Code).
				First(&existing).Error; err != nil {
				return fmt.Errorf("reload material %s: %w", *material.Code, err)
			}
			*material = existing
			continue
		}
		result.CreatedMaterials++
	}

	for _, conflict := range plan.conflicts {
		if err := tx.Create(conflict).Error; err != nil {
			if !isDuplicateKeyErr(err) {
				return fmt.Errorf("create conflict: %w", err)
			}
			var existing models.MatchingConflict
			if err := tx.Where(
				"business_id = ? AND upload_id = ? AND entity_type = ? AND incoming_key = ? AND candidate_id = ?",
				plan.businessId, plan.uploadId, conflict.EntityType, conflict.IncomingKey, conflict.CandidateId,
			).First(&existing).Error; err != nil {
				return fmt.Errorf("reload conflict: %w", err)
			}
			*conflict = existing
		} else {
			result.ConflictsCreated++
		}
		result.CommittedConflicts[recordedConflictKey(conflict)] = conflict.ID
	}

	var prices []*models.PriceRecord

	for _, write := range plan.writes {
		record := write.record

		var supplierId *int
		if write.supplier != nil {
			supplierId = &write.supplier.ID
		}
		var conflictId *int
		if write.conflict != nil {
			conflictId = &write.conflict.ID
		}

		var poId *int
		if write.createPO {
			po := &models.PurchaseOrder{
				BusinessId:  plan.businessId,
				PONumber:    NormalizeCode(record.PONumber),
				UploadId:    plan.uploadId,
				SupplierId:  supplierId,
				OrderDate:   record.PurchaseDate,
				Currency:    record.Currency,
				TotalAmount: record.TotalPrice,
				Status:      models.PurchaseOrderStatusRecorded,
				Details: []*models.PurchaseOrderDetail{{
					LineItemNumber:  record.LineItemNumber,
					MaterialId:      &write.material.ID,
					Quantity:        record.Quantity,
					UnitPrice:       record.UnitPrice,
					TotalPrice:      record.TotalPrice,
					UnitOfMeasure:   record.UnitOfMeasure,
					StagingRecordId: record.ID,
				}},
			}
			if write.provisional {
				po.Status = models.PurchaseOrderStatusProvisional
			}
			if err := tx.Create(po).Error; err != nil {
				if !isDuplicateKeyErr(err) {
					return fmt.Errorf("create purchase order %s: %w", po.PONumber, err)
				}
				// Lost a race with a concurrent upload; this line becomes a
				// duplicate skip instead of a write.
				if err := markStagingSkipped(tx, record, fmt.Sprintf("duplicate po_number %s", record.PONumber)); err != nil {
					return err
				}
				result.Skipped++
				result.Processed++
				continue
			}
			poId = &po.ID
			result.CreatedPOs++
		}

		prices = append(prices, &models.PriceRecord{
			BusinessId:         plan.businessId,
			MaterialId:         write.material.ID,
			PriceDate:          priceDateFor(record),
			SupplierId:         supplierId,
			Price:              record.UnitPrice,
			Currency:           record.Currency,
			Quantity:           record.Quantity,
			UnitOfMeasure:      record.UnitOfMeasure,
			Source:             models.PriceSourceUpload,
			ConfidenceScore:    write.confidence,
			UploadId:           plan.uploadId,
			PONumber:           NormalizeCode(record.PONumber),
			StagingRecordId:    record.ID,
			MatchingConflictId: conflictId,
		})

		updates := map[string]interface{}{
			"is_processed":         true,
			"process_error":        nil,
			"supplier_id":          supplierId,
			"material_id":          &write.material.ID,
			"purchase_order_id":    poId,
			"matching_conflict_id": conflictId,
		}
		if err := tx.Model(&models.StagingRecord{}).
			Where("id = ?", record.ID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("mark staging record %d processed: %w", record.ID, err)
		}
		result.Processed++
	}

	if len(prices) > 0 {
		if err := tx.CreateInBatches(prices, 500).Error; err != nil {
			return fmt.Errorf("create price records: %w", err)
		}
		result.CreatedPrices += len(prices)
	}

	for _, skip := range plan.skips {
		if err := markStagingSkipped(tx, skip.record, skip.reason); err != nil {
			return err
		}
		result.Skipped++
		result.Processed++
	}

	for _, deferred := range plan.deferred {
		// Deferred lines stay unprocessed; only the conflict stamp lands so
		// the resolution workflow can find them.
		if err := tx.Model(&models.StagingRecord{}).
			Where("id = ?", deferred.record.ID).
			Update("matching_conflict_id", deferred.conflict.ID).Error; err != nil {
			return fmt.Errorf("stamp deferred record %d: %w", deferred.record.ID, err)
		}
		result.Deferred++
	}

	return nil
}

func markStagingSkipped(tx *gorm.DB, record *models.StagingRecord, reason string) error {
	err := tx.Model(&models.StagingRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"is_processed":  true,
			"process_error": reason,
		}).Error
	if err != nil {
		return fmt.Errorf("mark staging record %d skipped: %w", record.ID, err)
	}
	return nil
}

func priceDateFor(record *models.StagingRecord) time.Time {
	if record.PurchaseDate != nil {
		return *record.PurchaseDate
	}
	if record.InvoiceDate != nil {
		return *record.InvoiceDate
	}
	if record.DeliveryDate != nil {
		return *record.DeliveryDate
	}
	return record.CreatedAt
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
