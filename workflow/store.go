package workflow

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
)

// Store is the persistence surface the reconciliation pipeline runs against.
// The production implementation is GormStore; tests substitute an in-memory
// fake so matching and scoring logic stays exercisable without a database.
type Store interface {
	GetUpload(ctx context.Context, uploadId int) (*models.Upload, error)
	ListSuppliers(ctx context.Context, businessId string) ([]*models.Supplier, error)
	ListMaterials(ctx context.Context, businessId string) ([]*models.Material, error)
	ListPONumbers(ctx context.Context, businessId string) ([]string, error)
	FetchStagingChunk(ctx context.Context, uploadId int, afterId int, limit int) ([]*models.StagingRecord, error)
	CountStagingRecords(ctx context.Context, uploadId int) (total int64, pending int64, err error)
	ListStagingRecords(ctx context.Context, uploadId int) ([]*models.StagingRecord, error)
	HistoricalMeanPrices(ctx context.Context, businessId string, materialIds []int) (map[int]decimal.Decimal, error)

	SetUploadStatus(ctx context.Context, uploadId int, status models.UploadStatus) error
	SetUploadFailed(ctx context.Context, uploadId int, reason string) error
	UpdateUploadProgress(ctx context.Context, uploadId int, processed int) error
	FinalizeUpload(ctx context.Context, uploadId int, result *RunResult) error
	SaveQualityReport(ctx context.Context, report *models.QualityReport) error
	RecordChunkError(ctx context.Context, chunkErr *models.UploadChunkError) error

	// WriteChunk applies one planned chunk inside a single transaction and
	// reports what was actually created after duplicate-key reconciliation.
	WriteChunk(ctx context.Context, plan *chunkPlan) (*chunkWriteResult, error)

	// AcquireRunLock serializes reconciliation per business. The returned
	// release function must be called when the run finishes.
	AcquireRunLock(ctx context.Context, businessId string) (release func(), err error)

	// BeginRun and FinishRun bracket a run in the idempotency ledger. skip is
	// true when another worker currently holds the same upload.
	BeginRun(ctx context.Context, businessId string, uploadId int) (skip bool, err error)
	FinishRun(ctx context.Context, businessId string, uploadId int, runErr error) error
}

// GormStore backs the pipeline with the shared gorm connection.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetUpload(ctx context.Context, uploadId int) (*models.Upload, error) {
	return models.GetUploadAny(ctx, uploadId)
}

func (s *GormStore) ListSuppliers(ctx context.Context, businessId string) ([]*models.Supplier, error) {
	return models.ListSuppliersForBusiness(s.db.WithContext(ctx), businessId)
}

func (s *GormStore) ListMaterials(ctx context.Context, businessId string) ([]*models.Material, error) {
	return models.ListMaterialsForBusiness(s.db.WithContext(ctx), businessId)
}

func (s *GormStore) ListPONumbers(ctx context.Context, businessId string) ([]string, error) {
	return models.ListPONumbersForBusiness(s.db.WithContext(ctx), businessId)
}

func (s *GormStore) FetchStagingChunk(ctx context.Context, uploadId int, afterId int, limit int) ([]*models.StagingRecord, error) {
	return models.FetchStagingChunk(s.db.WithContext(ctx), uploadId, afterId, limit)
}

func (s *GormStore) CountStagingRecords(ctx context.Context, uploadId int) (int64, int64, error) {
	return models.CountStagingRecords(s.db.WithContext(ctx), uploadId)
}

func (s *GormStore) ListStagingRecords(ctx context.Context, uploadId int) ([]*models.StagingRecord, error) {
	return models.ListStagingRecordsForUpload(s.db.WithContext(ctx), uploadId)
}

func (s *GormStore) HistoricalMeanPrices(ctx context.Context, businessId string, materialIds []int) (map[int]decimal.Decimal, error) {
	return models.HistoricalMeanPrices(s.db.WithContext(ctx), businessId, materialIds)
}

func (s *GormStore) SetUploadStatus(ctx context.Context, uploadId int, status models.UploadStatus) error {
	return models.SetUploadStatus(s.db.WithContext(ctx), uploadId, status)
}

func (s *GormStore) SetUploadFailed(ctx context.Context, uploadId int, reason string) error {
	return models.SetUploadFailed(s.db.WithContext(ctx), uploadId, reason)
}

func (s *GormStore) UpdateUploadProgress(ctx context.Context, uploadId int, processed int) error {
	return models.UpdateUploadProgress(s.db.WithContext(ctx), uploadId, processed)
}

func (s *GormStore) FinalizeUpload(ctx context.Context, uploadId int, result *RunResult) error {
	return models.FinalizeUploadCounts(s.db.WithContext(ctx), uploadId,
		result.CreatedSuppliers, result.CreatedMaterials,
		result.CreatedPOs, result.CreatedPrices,
		result.SkippedRecords, result.ConflictsCreated)
}

func (s *GormStore) SaveQualityReport(ctx context.Context, report *models.QualityReport) error {
	return models.UpsertQualityReport(s.db.WithContext(ctx), report)
}

func (s *GormStore) RecordChunkError(ctx context.Context, chunkErr *models.UploadChunkError) error {
	return s.db.WithContext(ctx).Create(chunkErr).Error
}

func (s *GormStore) AcquireRunLock(ctx context.Context, businessId string) (func(), error) {
	return AcquireReconcileLock(ctx, s.db, businessId)
}

func (s *GormStore) BeginRun(ctx context.Context, businessId string, uploadId int) (bool, error) {
	return BeginIdempotentRun(ctx, s.db, businessId, uploadId)
}

func (s *GormStore) FinishRun(ctx context.Context, businessId string, uploadId int, runErr error) error {
	if runErr != nil {
		return MarkRunFailed(ctx, s.db, businessId, uploadId, runErr)
	}
	return MarkRunSucceeded(ctx, s.db, businessId, uploadId)
}
