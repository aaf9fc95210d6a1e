package workflow

import (
	"encoding/json"
	"fmt"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
)

// conflictRecorder keeps the per-run dedup set of conflicts already committed.
// Twenty staging lines naming the same ambiguous vendor produce one conflict
// row, not twenty. The unique index on matching_conflicts is the cross-run
// backstop; this set avoids pointless insert attempts within a run.
type conflictRecorder struct {
	businessId string
	uploadId   int
	committed  map[string]int // key -> conflict row id
}

func newConflictRecorder(businessId string, uploadId int) *conflictRecorder {
	return &conflictRecorder{
		businessId: businessId,
		uploadId:   uploadId,
		committed:  map[string]int{},
	}
}

func conflictKey(entityType models.ConflictEntityType, incomingKey string, candidateId int) string {
	return fmt.Sprintf("%s|%s|%d", entityType, incomingKey, candidateId)
}

// CommittedId returns the row id of a conflict an earlier chunk of this run
// already persisted.
func (r *conflictRecorder) CommittedId(key string) (int, bool) {
	id, ok := r.committed[key]
	return id, ok
}

// MarkCommitted records conflicts whose rows reached the database. Called
// after the chunk transaction commits; a rolled-back chunk leaves the set
// untouched so the retry plans the conflict again.
func (r *conflictRecorder) MarkCommitted(ids map[string]int) {
	for key, id := range ids {
		r.committed[key] = id
	}
}

// incomingConflictKey bounds the normalized incoming value so it fits the
// unique index column.
func incomingConflictKey(raw string) string {
	normalized := NormalizeEntityName(raw)
	if len(normalized) > 191 {
		normalized = normalized[:191]
	}
	return normalized
}

type conflictPayload struct {
	SupplierName        string `json:"supplier_name,omitempty"`
	SupplierCode        string `json:"supplier_code,omitempty"`
	MaterialCode        string `json:"material_code,omitempty"`
	MaterialDescription string `json:"material_description,omitempty"`
	PONumber            string `json:"po_number,omitempty"`
	RowNumber           int    `json:"row_number"`
}

func (r *conflictRecorder) buildSupplierConflict(record *models.StagingRecord, match *SupplierMatch) *models.MatchingConflict {
	payload, _ := json.Marshal(conflictPayload{
		SupplierName: record.SupplierName,
		SupplierCode: record.SupplierCode,
		PONumber:     record.PONumber,
		RowNumber:    record.RowNumber,
	})
	return &models.MatchingConflict{
		BusinessId:      r.businessId,
		UploadId:        r.uploadId,
		EntityType:      models.ConflictEntityTypeSupplier,
		IncomingKey:     incomingConflictKey(record.SupplierName),
		IncomingPayload: payload,
		CandidateId:     match.Candidate.ID,
		CandidateName:   match.Candidate.Name,
		CandidateCode:   match.Candidate.Code,
		SimilarityScore: match.Score,
		Status:          models.ConflictStatusPending,
		StagingRecordId: record.ID,
	}
}

func (r *conflictRecorder) buildMaterialConflict(record *models.StagingRecord, match *MaterialMatch) *models.MatchingConflict {
	payload, _ := json.Marshal(conflictPayload{
		MaterialCode:        record.MaterialCode,
		MaterialDescription: record.MaterialDescription,
		PONumber:            record.PONumber,
		RowNumber:           record.RowNumber,
	})
	candidateCode := ""
	if match.Candidate.Code != nil {
		candidateCode = *match.Candidate.Code
	}
	return &models.MatchingConflict{
		BusinessId:      r.businessId,
		UploadId:        r.uploadId,
		EntityType:      models.ConflictEntityTypeMaterial,
		IncomingKey:     incomingConflictKey(record.MaterialDescription),
		IncomingPayload: payload,
		CandidateId:     match.Candidate.ID,
		CandidateName:   match.Candidate.Description,
		CandidateCode:   candidateCode,
		SimilarityScore: match.Score,
		Status:          models.ConflictStatusPending,
		StagingRecordId: record.ID,
	}
}

func recordedConflictKey(c *models.MatchingConflict) string {
	return conflictKey(c.EntityType, c.IncomingKey, c.CandidateId)
}
