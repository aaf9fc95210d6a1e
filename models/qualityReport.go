package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QualityReport is the per-upload data-quality snapshot. One row per upload
// (upsert-by-upload semantics when a run repeats); immutable between runs.
type QualityReport struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"size:64;not null;index" json:"business_id"`
	UploadId   int    `gorm:"not null;uniqueIndex" json:"upload_id"`

	CompletenessScore float64 `json:"completeness_score"`
	ConsistencyScore  float64 `json:"consistency_score"`
	ValidityScore     float64 `json:"validity_score"`
	TimelinessScore   float64 `json:"timeliness_score"`
	UniquenessScore   float64 `json:"uniqueness_score"`
	AccuracyScore     float64 `json:"accuracy_score"`

	OverallScore float64 `json:"overall_score"`
	Grade        string  `gorm:"size:1" json:"grade"`

	Findings        []byte `gorm:"type:json" json:"findings"`
	Recommendations []byte `gorm:"type:json" json:"recommendations"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// QualityFinding is one per-dimension observation: how many rows offended and
// a few example record ids for drill-down.
type QualityFinding struct {
	Dimension        string `json:"dimension"`
	Issue            string `json:"issue"`
	Count            int    `json:"count"`
	ExampleRecordIds []int  `json:"example_record_ids"`
}

// UpsertQualityReport writes the report, replacing a prior run's row for the
// same upload.
func UpsertQualityReport(tx *gorm.DB, report *QualityReport) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "upload_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"completeness_score", "consistency_score", "validity_score",
			"timeliness_score", "uniqueness_score", "accuracy_score",
			"overall_score", "grade", "findings", "recommendations", "updated_at",
		}),
	}).Create(report).Error
}

func (r *QualityReport) SetFindings(findings []QualityFinding) error {
	b, err := json.Marshal(findings)
	if err != nil {
		return err
	}
	r.Findings = b
	return nil
}

func (r *QualityReport) SetRecommendations(recommendations []string) error {
	b, err := json.Marshal(recommendations)
	if err != nil {
		return err
	}
	r.Recommendations = b
	return nil
}
