package workflow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
)

var scoringNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func cleanStagingRecord(id int, poNumber string) *models.StagingRecord {
	purchaseDate := scoringNow.AddDate(0, 0, -10)
	return &models.StagingRecord{
		ID:                  id,
		BusinessId:          "biz-1",
		UploadId:            77,
		PONumber:            poNumber,
		SupplierName:        "Acme Trading",
		SupplierCode:        "ACME-01",
		MaterialCode:        "STEEL-01",
		MaterialDescription: "Mild Steel Rod",
		UnitPrice:           decimal.NewFromInt(25),
		TotalPrice:          decimal.NewFromInt(250),
		Currency:            "USD",
		Quantity:            decimal.NewFromInt(10),
		UnitOfMeasure:       "KG",
		PurchaseDate:        &purchaseDate,
		ValidationStatus:    models.ValidationStatusValid,
	}
}

func scoringUpload() *models.Upload {
	return &models.Upload{
		ID:         77,
		BusinessId: "biz-1",
		SourceType: models.UploadSourceTypePurchaseOrders,
	}
}

func TestScoreUploadCleanDataGradesA(t *testing.T) {
	records := []*models.StagingRecord{
		cleanStagingRecord(1, "PO-1001"),
		cleanStagingRecord(2, "PO-1002"),
		cleanStagingRecord(3, "PO-1003"),
	}

	report, err := ScoreUpload(scoringUpload(), records, nil, scoringNow)
	if err != nil {
		t.Fatalf("ScoreUpload: %v", err)
	}

	if report.OverallScore < 90 {
		t.Fatalf("overall score = %.2f, want at least 90", report.OverallScore)
	}
	if report.Grade != "A" {
		t.Fatalf("grade = %q, want A", report.Grade)
	}
}

func TestScoreUploadDeterministic(t *testing.T) {
	records := []*models.StagingRecord{
		cleanStagingRecord(1, "PO-1001"),
		cleanStagingRecord(2, "PO-1001"), // duplicate
		cleanStagingRecord(3, ""),
	}
	records[2].Currency = "ZZZ"

	first, err := ScoreUpload(scoringUpload(), records, nil, scoringNow)
	if err != nil {
		t.Fatalf("ScoreUpload: %v", err)
	}
	second, err := ScoreUpload(scoringUpload(), records, nil, scoringNow)
	if err != nil {
		t.Fatalf("ScoreUpload: %v", err)
	}

	if first.OverallScore != second.OverallScore {
		t.Fatalf("overall score not deterministic: %.4f vs %.4f", first.OverallScore, second.OverallScore)
	}
	if first.UniquenessScore != second.UniquenessScore ||
		first.ConsistencyScore != second.ConsistencyScore {
		t.Fatal("dimension scores not deterministic")
	}
	if string(first.Findings) != string(second.Findings) {
		t.Fatal("findings not deterministic")
	}
}

func TestScoreUploadDuplicatePOHurtsUniqueness(t *testing.T) {
	records := []*models.StagingRecord{
		cleanStagingRecord(1, "PO-1001"),
		cleanStagingRecord(2, "PO-1001"),
		cleanStagingRecord(3, "PO-1002"),
		cleanStagingRecord(4, "PO-1003"),
	}

	report, err := ScoreUpload(scoringUpload(), records, nil, scoringNow)
	if err != nil {
		t.Fatalf("ScoreUpload: %v", err)
	}

	if report.UniquenessScore != 75 {
		t.Fatalf("uniqueness = %.2f, want 75 (1 duplicate of 4)", report.UniquenessScore)
	}
}

func TestScoreUploadMissingFieldsHurtCompleteness(t *testing.T) {
	complete := cleanStagingRecord(1, "PO-1001")
	sparse := cleanStagingRecord(2, "")
	sparse.SupplierName = ""
	sparse.SupplierCode = ""
	sparse.Currency = ""
	sparse.PurchaseDate = nil

	report, err := ScoreUpload(scoringUpload(), []*models.StagingRecord{complete, sparse}, nil, scoringNow)
	if err != nil {
		t.Fatalf("ScoreUpload: %v", err)
	}

	if report.CompletenessScore >= 100 {
		t.Fatalf("completeness = %.2f, want below 100", report.CompletenessScore)
	}
}

func TestScoreUploadInvalidRowsHurtValidity(t *testing.T) {
	good := cleanStagingRecord(1, "PO-1001")
	bad := cleanStagingRecord(2, "PO-1002")
	bad.UnitPrice = decimal.NewFromInt(-5)

	report, err := ScoreUpload(scoringUpload(), []*models.StagingRecord{good, bad}, nil, scoringNow)
	if err != nil {
		t.Fatalf("ScoreUpload: %v", err)
	}

	if report.ValidityScore != 50 {
		t.Fatalf("validity = %.2f, want 50 (1 of 2 invalid)", report.ValidityScore)
	}
}

func TestScoreUploadOutlierPricesHurtAccuracy(t *testing.T) {
	materialId := 10
	normal := cleanStagingRecord(1, "PO-1001")
	normal.MaterialId = &materialId
	outlier := cleanStagingRecord(2, "PO-1002")
	outlier.MaterialId = &materialId
	outlier.UnitPrice = decimal.NewFromInt(500) // mean is 25

	means := map[int]decimal.Decimal{materialId: decimal.NewFromInt(25)}
	report, err := ScoreUpload(scoringUpload(), []*models.StagingRecord{normal, outlier}, means, scoringNow)
	if err != nil {
		t.Fatalf("ScoreUpload: %v", err)
	}

	if report.AccuracyScore != 50 {
		t.Fatalf("accuracy = %.2f, want 50 (1 of 2 outliers)", report.AccuracyScore)
	}
}

func TestScoreUploadStaleDatesHurtTimeliness(t *testing.T) {
	fresh := cleanStagingRecord(1, "PO-1001")
	stale := cleanStagingRecord(2, "PO-1002")
	staleDate := scoringNow.AddDate(-3, 0, 0)
	stale.PurchaseDate = &staleDate

	report, err := ScoreUpload(scoringUpload(), []*models.StagingRecord{fresh, stale}, nil, scoringNow)
	if err != nil {
		t.Fatalf("ScoreUpload: %v", err)
	}

	if report.TimelinessScore >= 100 {
		t.Fatalf("timeliness = %.2f, want below 100", report.TimelinessScore)
	}
	if report.TimelinessScore <= 50 {
		t.Fatalf("timeliness = %.2f, fresh record should keep it above 50", report.TimelinessScore)
	}
}

func TestScoreUploadEmptyUploadScoresPerfect(t *testing.T) {
	report, err := ScoreUpload(scoringUpload(), nil, nil, scoringNow)
	if err != nil {
		t.Fatalf("ScoreUpload: %v", err)
	}
	if report.OverallScore != 100 {
		t.Fatalf("overall = %.2f, want 100 for empty upload", report.OverallScore)
	}
}

func TestGradeForScoreBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{95, "A"}, {90, "A"},
		{89.99, "B"}, {80, "B"},
		{79.5, "C"}, {70, "C"},
		{69, "D"}, {60, "D"},
		{59.99, "F"}, {0, "F"},
	}
	for _, tc := range cases {
		if got := GradeForScore(tc.score); got != tc.want {
			t.Errorf("GradeForScore(%.2f) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestScoreUploadRecommendationsTargetWeakDimensions(t *testing.T) {
	records := []*models.StagingRecord{
		cleanStagingRecord(1, "PO-1001"),
		cleanStagingRecord(2, "PO-1001"),
		cleanStagingRecord(3, "PO-1001"),
		cleanStagingRecord(4, "PO-1001"),
	}

	report, err := ScoreUpload(scoringUpload(), records, nil, scoringNow)
	if err != nil {
		t.Fatalf("ScoreUpload: %v", err)
	}

	// 3 of 4 records are duplicates: uniqueness 25, well below the
	// recommendation threshold.
	if report.UniquenessScore != 25 {
		t.Fatalf("uniqueness = %.2f, want 25", report.UniquenessScore)
	}
	var recommendations []string
	if err := json.Unmarshal(report.Recommendations, &recommendations); err != nil {
		t.Fatalf("unmarshal recommendations: %v", err)
	}
	if len(recommendations) == 0 {
		t.Fatal("expected at least one recommendation")
	}
}
