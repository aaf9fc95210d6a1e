package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

var pipelineNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// memStore is the in-memory Store fake driving the pipeline tests. It mirrors
// the transactional writer's semantics (id assignment, unique po_number,
// conflict dedup, staging stamps) without a database.
type memStore struct {
	upload      *models.Upload
	suppliers   []*models.Supplier
	materials   []*models.Material
	pos         []*models.PurchaseOrder
	prices      []*models.PriceRecord
	conflicts   []*models.MatchingConflict
	staging     []*models.StagingRecord
	report      *models.QualityReport
	chunkErrors []*models.UploadChunkError

	nextId     int
	idemStatus map[string]models.IdempotencyStatus
	skipRun    bool
	failChunk  map[int]int // chunkIndex -> write failures remaining
}

func newMemStore(upload *models.Upload) *memStore {
	return &memStore{
		upload:     upload,
		nextId:     1000,
		idemStatus: map[string]models.IdempotencyStatus{},
		failChunk:  map[int]int{},
	}
}

func (s *memStore) allocId() int {
	s.nextId++
	return s.nextId
}

func (s *memStore) GetUpload(ctx context.Context, uploadId int) (*models.Upload, error) {
	if s.upload == nil || s.upload.ID != uploadId {
		return nil, utils.ErrorRecordNotFound
	}
	return s.upload, nil
}

func (s *memStore) ListSuppliers(ctx context.Context, businessId string) ([]*models.Supplier, error) {
	return s.suppliers, nil
}

func (s *memStore) ListMaterials(ctx context.Context, businessId string) ([]*models.Material, error) {
	return s.materials, nil
}

func (s *memStore) ListPONumbers(ctx context.Context, businessId string) ([]string, error) {
	var numbers []string
	for _, po := range s.pos {
		numbers = append(numbers, po.PONumber)
	}
	return numbers, nil
}

func (s *memStore) FetchStagingChunk(ctx context.Context, uploadId int, afterId int, limit int) ([]*models.StagingRecord, error) {
	var out []*models.StagingRecord
	for _, record := range s.staging {
		if record.UploadId != uploadId || record.ID <= afterId {
			continue
		}
		if record.ValidationStatus != models.ValidationStatusValid {
			continue
		}
		if record.IsProcessed != nil && *record.IsProcessed {
			continue
		}
		out = append(out, record)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) CountStagingRecords(ctx context.Context, uploadId int) (int64, int64, error) {
	var total, pending int64
	for _, record := range s.staging {
		if record.UploadId != uploadId || record.ValidationStatus != models.ValidationStatusValid {
			continue
		}
		total++
		if record.IsProcessed == nil || !*record.IsProcessed {
			pending++
		}
	}
	return total, pending, nil
}

func (s *memStore) ListStagingRecords(ctx context.Context, uploadId int) ([]*models.StagingRecord, error) {
	return s.staging, nil
}

func (s *memStore) HistoricalMeanPrices(ctx context.Context, businessId string, materialIds []int) (map[int]decimal.Decimal, error) {
	sums := map[int]decimal.Decimal{}
	counts := map[int]int64{}
	for _, price := range s.prices {
		sums[price.MaterialId] = sums[price.MaterialId].Add(price.Price)
		counts[price.MaterialId]++
	}
	means := map[int]decimal.Decimal{}
	for _, id := range materialIds {
		if counts[id] > 0 {
			means[id] = sums[id].Div(decimal.NewFromInt(counts[id]))
		}
	}
	return means, nil
}

func (s *memStore) SetUploadStatus(ctx context.Context, uploadId int, status models.UploadStatus) error {
	s.upload.Status = status
	return nil
}

func (s *memStore) SetUploadFailed(ctx context.Context, uploadId int, reason string) error {
	s.upload.Status = models.UploadStatusFailed
	s.upload.FailureReason = &reason
	return nil
}

func (s *memStore) UpdateUploadProgress(ctx context.Context, uploadId int, processed int) error {
	s.upload.ProcessedRecords = processed
	return nil
}

func (s *memStore) FinalizeUpload(ctx context.Context, uploadId int, result *RunResult) error {
	s.upload.Status = models.UploadStatusCompleted
	s.upload.CreatedSuppliers = result.CreatedSuppliers
	s.upload.CreatedMaterials = result.CreatedMaterials
	s.upload.CreatedPOs = result.CreatedPOs
	s.upload.CreatedPrices = result.CreatedPrices
	s.upload.SkippedRecords = result.SkippedRecords
	s.upload.ConflictsCreated = result.ConflictsCreated
	return nil
}

func (s *memStore) SaveQualityReport(ctx context.Context, report *models.QualityReport) error {
	s.report = report
	return nil
}

func (s *memStore) RecordChunkError(ctx context.Context, chunkErr *models.UploadChunkError) error {
	s.chunkErrors = append(s.chunkErrors, chunkErr)
	return nil
}

func (s *memStore) WriteChunk(ctx context.Context, plan *chunkPlan) (*chunkWriteResult, error) {
	if remaining := s.failChunk[plan.chunkIndex]; remaining > 0 {
		s.failChunk[plan.chunkIndex] = remaining - 1
		return nil, errors.New("injected chunk write failure")
	}

	result := &chunkWriteResult{CommittedConflicts: map[string]int{}}

	for _, supplier := range plan.newSuppliers {
		if existing := s.findSupplier(supplier.Code); existing != nil {
			*supplier = *existing
			continue
		}
		supplier.ID = s.allocId()
		s.suppliers = append(s.suppliers, supplier)
		result.CreatedSuppliers++
	}

	for _, material := range plan.newMaterials {
		if material.Code != nil {
			if existing := s.findMaterial(*material.Code); existing != nil {
				*material = *existing
				continue
			}
		}
		material.ID = s.allocId()
		s.materials = append(s.materials, material)
		result.CreatedMaterials++
	}

	for _, conflict := range plan.conflicts {
		if existing := s.findConflict(conflict); existing != nil {
			*conflict = *existing
		} else {
			conflict.ID = s.allocId()
			s.conflicts = append(s.conflicts, conflict)
			result.ConflictsCreated++
		}
		result.CommittedConflicts[recordedConflictKey(conflict)] = conflict.ID
	}

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
			number := NormalizeCode(record.PONumber)
			if s.findPO(number) != nil {
				s.markSkipped(record, fmt.Sprintf("duplicate po_number %s", record.PONumber))
				result.Skipped++
				result.Processed++
				continue
			}
			po := &models.PurchaseOrder{
				ID:         s.allocId(),
				BusinessId: plan.businessId,
				PONumber:   number,
				UploadId:   plan.uploadId,
				SupplierId: supplierId,
				Status:     models.PurchaseOrderStatusRecorded,
			}
			if write.provisional {
				po.Status = models.PurchaseOrderStatusProvisional
			}
			s.pos = append(s.pos, po)
			poId = &po.ID
			result.CreatedPOs++
		}

		s.prices = append(s.prices, &models.PriceRecord{
			ID:                 s.allocId(),
			BusinessId:         plan.businessId,
			MaterialId:         write.material.ID,
			SupplierId:         supplierId,
			Price:              record.UnitPrice,
			Currency:           record.Currency,
			ConfidenceScore:    write.confidence,
			UploadId:           plan.uploadId,
			PONumber:           NormalizeCode(record.PONumber),
			StagingRecordId:    record.ID,
			MatchingConflictId: conflictId,
		})
		result.CreatedPrices++

		record.IsProcessed = utils.NewTrue()
		record.ProcessError = nil
		record.SupplierId = supplierId
		record.MaterialId = &write.material.ID
		record.PurchaseOrderId = poId
		record.MatchingConflictId = conflictId
		result.Processed++
	}

	for _, skip := range plan.skips {
		s.markSkipped(skip.record, skip.reason)
		result.Skipped++
		result.Processed++
	}

	for _, deferred := range plan.deferred {
		deferred.record.MatchingConflictId = &deferred.conflict.ID
		result.Deferred++
	}

	return result, nil
}

func (s *memStore) markSkipped(record *models.StagingRecord, reason string) {
	record.IsProcessed = utils.NewTrue()
	record.ProcessError = &reason
}

func (s *memStore) findSupplier(code string) *models.Supplier {
	for _, supplier := range s.suppliers {
		if supplier.Code == code {
			return supplier
		}
	}
	return nil
}

func (s *memStore) findMaterial(code string) *models.Material {
	for _, material := range s.materials {
		if material.Code != nil && *material.Code == code {
			return material
		}
	}
	return nil
}

func (s *memStore) findConflict(conflict *models.MatchingConflict) *models.MatchingConflict {
	for _, existing := range s.conflicts {
		if existing.EntityType == conflict.EntityType &&
			existing.IncomingKey == conflict.IncomingKey &&
			existing.CandidateId == conflict.CandidateId {
			return existing
		}
	}
	return nil
}

func (s *memStore) findPO(number string) *models.PurchaseOrder {
	for _, po := range s.pos {
		if po.PONumber == number {
			return po
		}
	}
	return nil
}

func (s *memStore) AcquireRunLock(ctx context.Context, businessId string) (func(), error) {
	return func() {}, nil
}

func (s *memStore) BeginRun(ctx context.Context, businessId string, uploadId int) (bool, error) {
	if s.skipRun {
		return true, nil
	}
	s.idemStatus[strconv.Itoa(uploadId)] = models.IdempotencyStatusStarted
	return false, nil
}

func (s *memStore) FinishRun(ctx context.Context, businessId string, uploadId int, runErr error) error {
	status := models.IdempotencyStatusSucceeded
	if runErr != nil {
		status = models.IdempotencyStatusFailed
	}
	s.idemStatus[strconv.Itoa(uploadId)] = status
	return nil
}

var _ Store = (*memStore)(nil)

func testUpload() *models.Upload {
	return &models.Upload{
		ID:         77,
		BusinessId: "biz-1",
		SourceType: models.UploadSourceTypePurchaseOrders,
		Status:     models.UploadStatusPending,
		CreatedAt:  pipelineNow.AddDate(0, 0, -1),
	}
}

func stagingLine(id int, poNumber, supplierName, supplierCode, materialCode, materialDesc string) *models.StagingRecord {
	purchaseDate := pipelineNow.AddDate(0, 0, -10)
	return &models.StagingRecord{
		ID:                  id,
		BusinessId:          "biz-1",
		UploadId:            77,
		RowNumber:           id,
		PONumber:            poNumber,
		SupplierName:        supplierName,
		SupplierCode:        supplierCode,
		MaterialCode:        materialCode,
		MaterialDescription: materialDesc,
		UnitPrice:           decimal.NewFromInt(25),
		TotalPrice:          decimal.NewFromInt(250),
		Currency:            "USD",
		Quantity:            decimal.NewFromInt(10),
		UnitOfMeasure:       "KG",
		PurchaseDate:        &purchaseDate,
		ValidationStatus:    models.ValidationStatusValid,
		IsProcessed:         utils.NewFalse(),
		CreatedAt:           pipelineNow.AddDate(0, 0, -1),
	}
}

func scenarioStore() *memStore {
	store := newMemStore(testUpload())
	store.suppliers = []*models.Supplier{
		{ID: 1, BusinessId: "biz-1", Code: "ACME-01", Name: "Acme Trading Ltd"},
		{ID: 2, BusinessId: "biz-1", Code: "NWT-01", Name: "Northwind Traders"},
	}
	steelCode := "STEEL-01"
	store.materials = []*models.Material{
		{ID: 3, BusinessId: "biz-1", Code: &steelCode, Description: "Mild Steel Rod"},
	}
	store.staging = []*models.StagingRecord{
		stagingLine(101, "PO-1001", "Acme Trading Ltd", "ACME-01", "STEEL-01", "Mild Steel Rod"),
		stagingLine(102, "PO-1002", "Acme Trading Co", "", "CU-PIPE", "Copper Pipe 15mm"),
		stagingLine(103, "PO-1003", "Northwind Trading", "", "AL-SHEET", "Aluminium Sheet 2mm"),
		stagingLine(104, "PO-1004", "Zenith Metals", "", "", "Bearing 6204"),
		stagingLine(105, "PO-1005", "Zenith Metals Co", "", "", "Bearing 6204"),
	}
	return store
}

func runOpts(deferConflicts bool, chunkSize int) PipelineOptions {
	return PipelineOptions{
		ChunkSize:      chunkSize,
		DeferConflicts: deferConflicts,
		Now:            func() time.Time { return pipelineNow },
	}
}

func TestRunPipelineScenario(t *testing.T) {
	store := scenarioStore()

	result, err := runPipeline(context.Background(), store, 77, runOpts(false, 2))
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	if result.CreatedSuppliers != 1 {
		t.Errorf("created suppliers = %d, want 1 (Zenith Metals only)", result.CreatedSuppliers)
	}
	if result.CreatedMaterials != 3 {
		t.Errorf("created materials = %d, want 3", result.CreatedMaterials)
	}
	if result.CreatedPOs != 5 {
		t.Errorf("created POs = %d, want 5", result.CreatedPOs)
	}
	if result.CreatedPrices != 5 {
		t.Errorf("created prices = %d, want 5", result.CreatedPrices)
	}
	if result.ConflictsCreated != 1 {
		t.Errorf("conflicts = %d, want 1", result.ConflictsCreated)
	}
	if result.SkippedRecords != 0 || result.DeferredRecords != 0 || result.FailedChunks != 0 {
		t.Errorf("skipped/deferred/failed = %d/%d/%d, want 0/0/0",
			result.SkippedRecords, result.DeferredRecords, result.FailedChunks)
	}

	// The ambiguous supplier line was written provisionally.
	po := store.findPO("PO-1003")
	if po == nil {
		t.Fatal("PO-1003 not created")
	}
	if po.Status != models.PurchaseOrderStatusProvisional {
		t.Errorf("PO-1003 status = %q, want Provisional", po.Status)
	}
	if po.SupplierId != nil {
		t.Errorf("PO-1003 supplier id = %v, want nil while conflict pending", *po.SupplierId)
	}

	var conflictPrice *models.PriceRecord
	for _, price := range store.prices {
		if price.StagingRecordId == 103 {
			conflictPrice = price
		}
	}
	if conflictPrice == nil {
		t.Fatal("price for staging record 103 not created")
	}
	if conflictPrice.MatchingConflictId == nil {
		t.Error("provisional price missing conflict stamp")
	}
	if conflictPrice.ConfidenceScore >= AutoAcceptThreshold || conflictPrice.ConfidenceScore < ReviewThreshold {
		t.Errorf("confidence = %d, want review-band score", conflictPrice.ConfidenceScore)
	}

	// Exact matches resolved to existing rows, not duplicates.
	for _, record := range store.staging {
		if record.IsProcessed == nil || !*record.IsProcessed {
			t.Errorf("staging record %d not processed", record.ID)
		}
	}
	if len(store.suppliers) != 3 {
		t.Errorf("supplier universe = %d entries, want 3", len(store.suppliers))
	}

	if store.upload.Status != models.UploadStatusCompleted {
		t.Errorf("upload status = %q, want Completed", store.upload.Status)
	}
	if store.report == nil {
		t.Fatal("quality report not saved")
	}
	if store.report.OverallScore < 90 || store.report.Grade != "A" {
		t.Errorf("quality = %.2f (%s), want >= 90 grade A", store.report.OverallScore, store.report.Grade)
	}
}

func TestRunPipelineRerunCreatesNothing(t *testing.T) {
	store := scenarioStore()

	if _, err := runPipeline(context.Background(), store, 77, runOpts(false, 2)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := runPipeline(context.Background(), store, 77, runOpts(false, 2))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if second.CreatedSuppliers != 0 || second.CreatedMaterials != 0 ||
		second.CreatedPOs != 0 || second.CreatedPrices != 0 || second.ConflictsCreated != 0 {
		t.Errorf("second run created %d/%d/%d/%d/%d entities, want all zero",
			second.CreatedSuppliers, second.CreatedMaterials,
			second.CreatedPOs, second.CreatedPrices, second.ConflictsCreated)
	}
	if len(store.pos) != 5 || len(store.prices) != 5 || len(store.conflicts) != 1 {
		t.Errorf("store holds %d POs / %d prices / %d conflicts after re-run, want 5/5/1",
			len(store.pos), len(store.prices), len(store.conflicts))
	}
}

func TestRunPipelineDeferredStrategy(t *testing.T) {
	store := scenarioStore()

	result, err := runPipeline(context.Background(), store, 77, runOpts(true, 500))
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	if result.CreatedPOs != 4 || result.CreatedPrices != 4 {
		t.Errorf("POs/prices = %d/%d, want 4/4 with deferred conflict", result.CreatedPOs, result.CreatedPrices)
	}
	if result.DeferredRecords != 1 {
		t.Errorf("deferred = %d, want 1", result.DeferredRecords)
	}
	if result.ConflictsCreated != 1 {
		t.Errorf("conflicts = %d, want 1", result.ConflictsCreated)
	}

	var deferredRecord *models.StagingRecord
	for _, record := range store.staging {
		if record.ID == 103 {
			deferredRecord = record
		}
	}
	if deferredRecord.IsProcessed != nil && *deferredRecord.IsProcessed {
		t.Error("deferred record must stay unprocessed")
	}
	if deferredRecord.MatchingConflictId == nil {
		t.Error("deferred record missing conflict stamp")
	}
	if store.findPO("PO-1003") != nil {
		t.Error("deferred record must not create its PO")
	}
}

func TestRunPipelineDuplicatePOSkipsSecond(t *testing.T) {
	store := newMemStore(testUpload())
	store.pos = []*models.PurchaseOrder{
		{ID: 5, BusinessId: "biz-1", PONumber: "PO-3001"},
	}
	store.staging = []*models.StagingRecord{
		stagingLine(201, "PO-2001", "Acme Trading", "", "", "Mild Steel Rod"),
		stagingLine(202, "PO-2001", "Acme Trading", "", "", "Mild Steel Rod"),
		stagingLine(203, "PO-3001", "Acme Trading", "", "", "Mild Steel Rod"),
	}

	result, err := runPipeline(context.Background(), store, 77, runOpts(false, 500))
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	if result.CreatedPOs != 1 {
		t.Errorf("created POs = %d, want 1", result.CreatedPOs)
	}
	if result.CreatedPrices != 1 {
		t.Errorf("created prices = %d, want 1", result.CreatedPrices)
	}
	if result.SkippedRecords != 2 {
		t.Errorf("skipped = %d, want 2 (in-upload duplicate + pre-existing PO)", result.SkippedRecords)
	}

	for _, id := range []int{202, 203} {
		for _, record := range store.staging {
			if record.ID != id {
				continue
			}
			if record.IsProcessed == nil || !*record.IsProcessed {
				t.Errorf("record %d not marked processed", id)
			}
			if record.ProcessError == nil {
				t.Errorf("record %d missing skip reason", id)
			}
		}
	}
}

func TestRunPipelineConflictDedupAcrossChunks(t *testing.T) {
	store := newMemStore(testUpload())
	store.suppliers = []*models.Supplier{
		{ID: 2, BusinessId: "biz-1", Code: "NWT-01", Name: "Northwind Traders"},
	}
	store.staging = []*models.StagingRecord{
		stagingLine(301, "PO-4001", "Northwind Trading", "", "", "Mild Steel Rod"),
		stagingLine(302, "PO-4002", "Northwind Trading", "", "", "Copper Pipe 15mm"),
	}

	// Chunk size 1 forces the two records into separate chunks, so the dedup
	// must survive the chunk boundary.
	result, err := runPipeline(context.Background(), store, 77, runOpts(false, 1))
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	if result.ConflictsCreated != 1 {
		t.Errorf("conflicts = %d, want 1 for repeated incoming value", result.ConflictsCreated)
	}
	if len(store.conflicts) != 1 {
		t.Fatalf("store holds %d conflicts, want 1", len(store.conflicts))
	}
	conflictId := store.conflicts[0].ID
	for _, price := range store.prices {
		if price.MatchingConflictId == nil || *price.MatchingConflictId != conflictId {
			t.Errorf("price for record %d not stamped with shared conflict %d", price.StagingRecordId, conflictId)
		}
	}
}

func TestRunPipelineChunkFailureIsolation(t *testing.T) {
	store := newMemStore(testUpload())
	store.staging = []*models.StagingRecord{
		stagingLine(401, "PO-5001", "Acme Trading", "", "", "Mild Steel Rod"),
		stagingLine(402, "PO-5002", "Acme Trading", "", "", "Copper Pipe 15mm"),
		stagingLine(403, "PO-5003", "Acme Trading", "", "", "Aluminium Sheet 2mm"),
		stagingLine(404, "PO-5004", "Acme Trading", "", "", "Bearing 6204"),
	}
	store.failChunk[0] = 2 // first chunk fails both the write and its retry

	result, err := runPipeline(context.Background(), store, 77, runOpts(false, 2))
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	if result.FailedChunks != 1 {
		t.Errorf("failed chunks = %d, want 1", result.FailedChunks)
	}
	if len(store.chunkErrors) != 1 {
		t.Fatalf("chunk errors recorded = %d, want 1", len(store.chunkErrors))
	}
	if store.chunkErrors[0].FirstRecordId != 401 || store.chunkErrors[0].LastRecordId != 402 {
		t.Errorf("chunk error span = %d..%d, want 401..402",
			store.chunkErrors[0].FirstRecordId, store.chunkErrors[0].LastRecordId)
	}
	if result.CreatedPOs != 2 {
		t.Errorf("created POs = %d, want 2 from the surviving chunk", result.CreatedPOs)
	}
	for _, record := range store.staging {
		processed := record.IsProcessed != nil && *record.IsProcessed
		wantProcessed := record.ID >= 403
		if processed != wantProcessed {
			t.Errorf("record %d processed = %v, want %v", record.ID, processed, wantProcessed)
		}
	}
}

func TestRunPipelineChunkRetrySucceeds(t *testing.T) {
	store := newMemStore(testUpload())
	store.staging = []*models.StagingRecord{
		stagingLine(501, "PO-6001", "Acme Trading", "", "", "Mild Steel Rod"),
	}
	store.failChunk[0] = 1 // first attempt fails, retry lands

	result, err := runPipeline(context.Background(), store, 77, runOpts(false, 500))
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	if result.FailedChunks != 0 {
		t.Errorf("failed chunks = %d, want 0 after successful retry", result.FailedChunks)
	}
	if result.CreatedPOs != 1 {
		t.Errorf("created POs = %d, want 1", result.CreatedPOs)
	}
	if len(store.chunkErrors) != 0 {
		t.Errorf("chunk errors = %d, want 0", len(store.chunkErrors))
	}
}

func TestRunPipelineCancellation(t *testing.T) {
	store := scenarioStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runPipeline(ctx, store, 77, runOpts(false, 2))
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if store.upload.Status != models.UploadStatusPending {
		t.Errorf("upload status = %q, want Pending so a later trigger resumes the run", store.upload.Status)
	}
	if store.upload.FailureReason != nil {
		t.Errorf("cancelled run stamped failure reason %q", *store.upload.FailureReason)
	}
	for _, record := range store.staging {
		if record.IsProcessed != nil && *record.IsProcessed {
			t.Errorf("record %d processed during cancelled run", record.ID)
		}
	}
}

func TestRunPipelineDuplicateDeliverySkips(t *testing.T) {
	store := scenarioStore()
	store.skipRun = true

	result, err := runPipeline(context.Background(), store, 77, runOpts(false, 2))
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	if result.CreatedPOs != 0 || result.CreatedPrices != 0 {
		t.Errorf("skip run created %d POs / %d prices, want none", result.CreatedPOs, result.CreatedPrices)
	}
	if len(store.pos) != 0 || len(store.prices) != 0 {
		t.Errorf("store mutated during skipped run")
	}
	if store.upload.Status != models.UploadStatusPending {
		t.Errorf("upload status = %q, want untouched Pending", store.upload.Status)
	}
}
