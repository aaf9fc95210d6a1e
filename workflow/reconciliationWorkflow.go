package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// RunResult aggregates everything one reconciliation run did.
type RunResult struct {
	UploadId         int                   `json:"upload_id"`
	CreatedSuppliers int                   `json:"created_suppliers"`
	CreatedMaterials int                   `json:"created_materials"`
	CreatedPOs       int                   `json:"created_pos"`
	CreatedPrices    int                   `json:"created_prices"`
	SkippedRecords   int                   `json:"skipped_records"`
	ConflictsCreated int                   `json:"conflicts_created"`
	DeferredRecords  int                   `json:"deferred_records"`
	FailedChunks     int                   `json:"failed_chunks"`
	ProcessedRecords int                   `json:"processed_records"`
	QualityReport    *models.QualityReport `json:"quality_report,omitempty"`
}

type PipelineOptions struct {
	ChunkSize      int
	DeferConflicts bool
	// Now is injectable for deterministic quality scoring in tests.
	Now func() time.Time
}

// Run reconciles one upload against the shared database. Entry point for both
// the Pub/Sub push handler and the manual trigger.
func Run(ctx context.Context, uploadId int) (*RunResult, error) {
	store := NewGormStore(config.GetDB())
	return runPipeline(ctx, store, uploadId, PipelineOptions{
		ChunkSize:      config.ReconcileChunkSize(),
		DeferConflicts: config.DeferConflictWrites(),
	})
}

func runPipeline(ctx context.Context, store Store, uploadId int, opts PipelineOptions) (*RunResult, error) {
	logger := config.GetLogger()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 500
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	upload, err := store.GetUpload(ctx, uploadId)
	if err != nil {
		return nil, fmt.Errorf("load upload %d: %w", uploadId, err)
	}
	businessId := upload.BusinessId
	ctx = utils.SetBusinessIdInContext(ctx, businessId)
	ctx = utils.SetUploadIdInContext(ctx, uploadId)

	release, err := store.AcquireRunLock(ctx, businessId)
	if err != nil {
		return nil, err
	}
	defer release()

	skip, err := store.BeginRun(ctx, businessId, uploadId)
	if err != nil {
		return nil, err
	}
	if skip {
		config.LogInfo(logger, "workflow", "runPipeline", "duplicate delivery, skipping", map[string]interface{}{
			"business_id": businessId,
			"upload_id":   uploadId,
		})
		return &RunResult{UploadId: uploadId}, nil
	}

	result, runErr := executeRun(ctx, store, upload, opts)
	if runErr != nil {
		config.LogError(logger, "workflow", "runPipeline", "run failed", uploadId, runErr)
		// Bookkeeping must land even though the run context may be dead.
		ctx := context.WithoutCancel(ctx)
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			// A cancelled run is stopped, not broken. Committed chunks stay,
			// remaining rows are still unprocessed, and the upload returns to
			// the queue-ready state so a later trigger resumes it. Failed is
			// reserved for unrecoverable errors.
			if err := store.SetUploadStatus(ctx, uploadId, models.UploadStatusPending); err != nil {
				config.LogError(logger, "workflow", "runPipeline", "reset cancelled upload", uploadId, err)
			}
			ClearProgress(uploadId)
		} else {
			if err := store.SetUploadFailed(ctx, uploadId, runErr.Error()); err != nil {
				config.LogError(logger, "workflow", "runPipeline", "mark upload failed", uploadId, err)
			}
			publishProgress(uploadId, 0, 0, models.UploadStatusFailed)
		}
		if err := store.FinishRun(ctx, businessId, uploadId, runErr); err != nil {
			config.LogError(logger, "workflow", "runPipeline", "record run failure", uploadId, err)
		}
		return nil, runErr
	}

	if err := store.FinishRun(ctx, businessId, uploadId, nil); err != nil {
		config.LogError(logger, "workflow", "runPipeline", "record run success", uploadId, err)
	}
	return result, nil
}

func executeRun(ctx context.Context, store Store, upload *models.Upload, opts PipelineOptions) (*RunResult, error) {
	logger := config.GetLogger()
	uploadId := upload.ID
	businessId := upload.BusinessId

	if err := store.SetUploadStatus(ctx, uploadId, models.UploadStatusProcessing); err != nil {
		return nil, fmt.Errorf("mark upload processing: %w", err)
	}

	cache, err := BuildLookupCache(ctx, store, businessId)
	if err != nil {
		return nil, err
	}

	total, pending, err := store.CountStagingRecords(ctx, uploadId)
	if err != nil {
		return nil, fmt.Errorf("count staging records: %w", err)
	}
	attempted := int(total - pending)
	publishProgress(uploadId, attempted, int(total), models.UploadStatusProcessing)

	run := &runState{
		businessId:     businessId,
		uploadId:       uploadId,
		cache:          cache,
		conflicts:      newConflictRecorder(businessId, uploadId),
		deferConflicts: opts.DeferConflicts,
	}
	result := &RunResult{UploadId: uploadId}

	afterId := 0
	chunkIndex := 0
	for {
		// Cancellation is honored at chunk boundaries; a mid-chunk transaction
		// either commits or rolls back whole.
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled at chunk %d: %w", chunkIndex, err)
		}

		records, err := store.FetchStagingChunk(ctx, uploadId, afterId, opts.ChunkSize)
		if err != nil {
			return nil, fmt.Errorf("fetch staging chunk %d: %w", chunkIndex, err)
		}
		if len(records) == 0 {
			break
		}
		afterId = records[len(records)-1].ID

		plan := planChunk(run, chunkIndex, records)

		chunkResult, err := store.WriteChunk(ctx, plan)
		if err != nil {
			config.LogError(logger, "workflow", "executeRun", "chunk write failed, retrying", map[string]interface{}{
				"upload_id":   uploadId,
				"chunk_index": chunkIndex,
			}, err)
			chunkResult, err = store.WriteChunk(ctx, plan)
		}
		if err != nil {
			// The chunk's rows stay unprocessed; a later re-run picks them up.
			config.LogError(logger, "workflow", "executeRun", "chunk write failed after retry", map[string]interface{}{
				"upload_id":   uploadId,
				"chunk_index": chunkIndex,
			}, err)
			if recordErr := store.RecordChunkError(ctx, &models.UploadChunkError{
				BusinessId:    businessId,
				UploadId:      uploadId,
				ChunkIndex:    chunkIndex,
				Attempts:      2,
				FirstRecordId: plan.firstRecordId,
				LastRecordId:  plan.lastRecordId,
				ErrorMessage:  err.Error(),
			}); recordErr != nil {
				config.LogError(logger, "workflow", "executeRun", "record chunk error", uploadId, recordErr)
			}
			result.FailedChunks++
			chunkIndex++
			attempted += len(records)
			continue
		}

		result.CreatedSuppliers += chunkResult.CreatedSuppliers
		result.CreatedMaterials += chunkResult.CreatedMaterials
		result.CreatedPOs += chunkResult.CreatedPOs
		result.CreatedPrices += chunkResult.CreatedPrices
		result.ConflictsCreated += chunkResult.ConflictsCreated
		result.SkippedRecords += chunkResult.Skipped
		result.DeferredRecords += chunkResult.Deferred
		result.ProcessedRecords += chunkResult.Processed

		// Make this chunk's committed creations visible to the next one.
		run.conflicts.MarkCommitted(chunkResult.CommittedConflicts)
		for _, supplier := range plan.newSuppliers {
			cache.AddSupplier(supplier)
		}
		for _, material := range plan.newMaterials {
			cache.AddMaterial(material)
		}
		for _, write := range plan.writes {
			if write.createPO {
				cache.AddPONumber(write.record.PONumber)
			}
		}

		attempted += len(records)
		publishProgress(uploadId, attempted, int(total), models.UploadStatusProcessing)
		if err := store.UpdateUploadProgress(ctx, uploadId, attempted); err != nil {
			config.LogError(logger, "workflow", "executeRun", "update progress", uploadId, err)
		}
		chunkIndex++
	}

	report, err := scoreAndSaveReport(ctx, store, upload, opts.Now())
	if err != nil {
		return nil, err
	}
	result.QualityReport = report

	if err := store.FinalizeUpload(ctx, uploadId, result); err != nil {
		return nil, fmt.Errorf("finalize upload: %w", err)
	}
	publishProgress(uploadId, attempted, int(total), models.UploadStatusCompleted)

	config.LogInfo(logger, "workflow", "executeRun", "run completed", map[string]interface{}{
		"business_id":       businessId,
		"upload_id":         uploadId,
		"created_suppliers": result.CreatedSuppliers,
		"created_materials": result.CreatedMaterials,
		"created_pos":       result.CreatedPOs,
		"created_prices":    result.CreatedPrices,
		"skipped":           result.SkippedRecords,
		"conflicts":         result.ConflictsCreated,
		"deferred":          result.DeferredRecords,
		"failed_chunks":     result.FailedChunks,
		"overall_score":     report.OverallScore,
		"grade":             report.Grade,
	})
	return result, nil
}

func scoreAndSaveReport(ctx context.Context, store Store, upload *models.Upload, now time.Time) (*models.QualityReport, error) {
	// Fresh read so scoring sees the back-references the writer stamped.
	records, err := store.ListStagingRecords(ctx, upload.ID)
	if err != nil {
		return nil, fmt.Errorf("list staging records for scoring: %w", err)
	}

	var materialIds []int
	for _, record := range records {
		if record.MaterialId != nil {
			materialIds = append(materialIds, *record.MaterialId)
		}
	}
	materialIds = utils.UniqueSlice(materialIds)
	means, err := store.HistoricalMeanPrices(ctx, upload.BusinessId, materialIds)
	if err != nil {
		return nil, fmt.Errorf("historical mean prices: %w", err)
	}

	report, err := ScoreUpload(upload, records, means, now)
	if err != nil {
		return nil, fmt.Errorf("score upload: %w", err)
	}
	if err := store.SaveQualityReport(ctx, report); err != nil {
		return nil, fmt.Errorf("save quality report: %w", err)
	}
	return report, nil
}

// ReconcileProgress is the polling snapshot surfaced by the progress endpoint.
type ReconcileProgress struct {
	UploadId  int                 `json:"upload_id"`
	Processed int                 `json:"processed"`
	Total     int                 `json:"total"`
	Status    models.UploadStatus `json:"status"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func progressKey(uploadId int) string {
	return fmt.Sprintf("ReconcileProgress:%d", uploadId)
}

func publishProgress(uploadId, processed, total int, status models.UploadStatus) {
	_ = config.SetRedisObject(progressKey(uploadId), ReconcileProgress{
		UploadId:  uploadId,
		Processed: processed,
		Total:     total,
		Status:    status,
		UpdatedAt: time.Now(),
	}, time.Hour)
}

// ClearProgress drops the cached snapshot. Called before enqueueing a re-run
// so pollers never see the previous run's terminal state as current.
func ClearProgress(uploadId int) {
	_ = config.RemoveRedisKey(progressKey(uploadId))
}

// Progress reads the redis snapshot, falling back to the upload row when the
// snapshot is cold. Tenant-scoped: the caller's context must carry the
// business id.
func Progress(ctx context.Context, uploadId int) (*ReconcileProgress, error) {
	var snapshot ReconcileProgress
	found, err := config.GetRedisObject(progressKey(uploadId), &snapshot)
	if err == nil && found {
		return &snapshot, nil
	}

	upload, err := models.GetUpload(ctx, uploadId)
	if err != nil {
		return nil, err
	}
	return &ReconcileProgress{
		UploadId:  uploadId,
		Processed: upload.ProcessedRecords,
		Total:     upload.TotalRecords,
		Status:    upload.Status,
		UpdatedAt: upload.UpdatedAt,
	}, nil
}
