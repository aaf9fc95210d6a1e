package workflow

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
)

// Dimension weights sum to 1.0. Completeness dominates because missing vendor
// or material identity is what actually breaks downstream spend analysis.
const (
	weightCompleteness = 0.25
	weightConsistency  = 0.20
	weightValidity     = 0.20
	weightTimeliness   = 0.15
	weightUniqueness   = 0.10
	weightAccuracy     = 0.10
)

// Timeliness: full marks inside freshAge, linear decay to zero at staleAge.
const (
	freshAge = 90 * 24 * time.Hour
	staleAge = 1825 * 24 * time.Hour
)

// Accuracy: a price deviating more than this fraction from the material's
// historical mean is an outlier.
const outlierDeviation = 0.5

var knownCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CNY": true,
	"SGD": true, "THB": true, "MMK": true, "INR": true, "AUD": true,
	"CAD": true, "CHF": true, "HKD": true, "KRW": true, "MYR": true,
	"IDR": true, "VND": true, "PHP": true, "AED": true, "NZD": true,
}

var knownUnitsOfMeasure = map[string]bool{
	"EA": true, "PC": true, "PCS": true, "UNIT": true, "SET": true,
	"BOX": true, "PK": true, "CTN": true, "DZ": true, "PR": true,
	"KG": true, "G": true, "MT": true, "LB": true, "TON": true,
	"L": true, "ML": true, "GAL": true, "M": true, "CM": true,
	"MM": true, "FT": true, "IN": true, "SQM": true, "ROLL": true,
	"HR": true, "DAY": true,
}

type dimensionResult struct {
	name     string
	score    float64
	weight   float64
	findings []models.QualityFinding
}

// ScoreUpload computes the six-dimension quality report over the full staging
// set of an upload. Pure aside from the injected clock: the same records and
// means always produce the same report.
func ScoreUpload(upload *models.Upload, records []*models.StagingRecord, historicalMeans map[int]decimal.Decimal, now time.Time) (*models.QualityReport, error) {
	dimensions := []dimensionResult{
		scoreCompleteness(upload, records),
		scoreConsistency(records),
		scoreValidity(records, now),
		scoreTimeliness(records, now),
		scoreUniqueness(records),
		scoreAccuracy(records, historicalMeans),
	}

	overall := 0.0
	var findings []models.QualityFinding
	for _, dim := range dimensions {
		overall += dim.score * dim.weight
		findings = append(findings, dim.findings...)
	}
	overall = roundScore(overall)

	report := &models.QualityReport{
		BusinessId:        upload.BusinessId,
		UploadId:          upload.ID,
		CompletenessScore: dimensions[0].score,
		ConsistencyScore:  dimensions[1].score,
		ValidityScore:     dimensions[2].score,
		TimelinessScore:   dimensions[3].score,
		UniquenessScore:   dimensions[4].score,
		AccuracyScore:     dimensions[5].score,
		OverallScore:      overall,
		Grade:             GradeForScore(overall),
	}
	if err := report.SetFindings(findings); err != nil {
		return nil, err
	}
	if err := report.SetRecommendations(buildRecommendations(dimensions)); err != nil {
		return nil, err
	}
	return report, nil
}

func GradeForScore(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func scoreCompleteness(upload *models.Upload, records []*models.StagingRecord) dimensionResult {
	result := dimensionResult{name: "completeness", weight: weightCompleteness, score: 100}
	if len(records) == 0 {
		return result
	}

	needsPONumber := upload.SourceType != models.UploadSourceTypePriceList
	filled, checked := 0, 0
	incomplete := newFindingCollector()

	for _, record := range records {
		missing := 0
		check := func(present bool) {
			checked++
			if present {
				filled++
			} else {
				missing++
			}
		}
		if needsPONumber {
			check(record.PONumber != "")
		}
		check(record.SupplierName != "" || record.SupplierCode != "")
		check(record.MaterialCode != "" || record.MaterialDescription != "")
		check(record.UnitPrice.IsPositive())
		check(record.Currency != "")
		check(record.Quantity.IsPositive())
		check(record.PurchaseDate != nil || record.InvoiceDate != nil || record.DeliveryDate != nil)

		if missing > 0 {
			incomplete.add(record.ID)
		}
	}

	result.score = ratioScore(filled, checked)
	if incomplete.count > 0 {
		result.findings = incomplete.findings("completeness", "records with missing required fields")
	}
	return result
}

func scoreConsistency(records []*models.StagingRecord) dimensionResult {
	result := dimensionResult{name: "consistency", weight: weightConsistency, score: 100}
	if len(records) == 0 {
		return result
	}

	passed, checked := 0, 0
	badCurrency := newFindingCollector()
	badUOM := newFindingCollector()
	badTotals := newFindingCollector()

	for _, record := range records {
		if record.Currency != "" {
			checked++
			if knownCurrencies[strings.ToUpper(record.Currency)] {
				passed++
			} else {
				badCurrency.add(record.ID)
			}
		}
		if record.UnitOfMeasure != "" {
			checked++
			if knownUnitsOfMeasure[strings.ToUpper(record.UnitOfMeasure)] {
				passed++
			} else {
				badUOM.add(record.ID)
			}
		}
		if record.UnitPrice.IsPositive() && record.Quantity.IsPositive() && !record.TotalPrice.IsZero() {
			checked++
			expected := record.UnitPrice.Mul(record.Quantity)
			if withinTolerance(record.TotalPrice, expected, 0.01) {
				passed++
			} else {
				badTotals.add(record.ID)
			}
		}
	}

	result.score = ratioScore(passed, checked)
	result.findings = append(result.findings, badCurrency.findings("consistency", "unrecognized currency code")...)
	result.findings = append(result.findings, badUOM.findings("consistency", "unrecognized unit of measure")...)
	result.findings = append(result.findings, badTotals.findings("consistency", "total_price disagrees with unit_price * quantity")...)
	return result
}

func scoreValidity(records []*models.StagingRecord, now time.Time) dimensionResult {
	result := dimensionResult{name: "validity", weight: weightValidity, score: 100}
	if len(records) == 0 {
		return result
	}

	valid := 0
	invalid := newFindingCollector()

	for _, record := range records {
		ok := record.ValidationStatus != models.ValidationStatusInvalid &&
			record.UnitPrice.IsPositive() &&
			!record.Quantity.IsNegative() &&
			datesPlausible(record, now)
		if ok {
			valid++
		} else {
			invalid.add(record.ID)
		}
	}

	result.score = ratioScore(valid, len(records))
	result.findings = invalid.findings("validity", "records failing field validation")
	return result
}

func datesPlausible(record *models.StagingRecord, now time.Time) bool {
	for _, date := range []*time.Time{record.PurchaseDate, record.InvoiceDate, record.DeliveryDate} {
		if date == nil {
			continue
		}
		if date.After(now.Add(24 * time.Hour)) {
			return false
		}
		if now.Sub(*date) > staleAge {
			return false
		}
	}
	return true
}

func scoreTimeliness(records []*models.StagingRecord, now time.Time) dimensionResult {
	result := dimensionResult{name: "timeliness", weight: weightTimeliness, score: 100}
	if len(records) == 0 {
		return result
	}

	total := 0.0
	stale := newFindingCollector()

	for _, record := range records {
		age := now.Sub(recordDate(record))
		score := 100.0
		switch {
		case age <= freshAge:
			score = 100
		case age >= staleAge:
			score = 0
		default:
			score = 100 * float64(staleAge-age) / float64(staleAge-freshAge)
		}
		if score < 100 {
			stale.add(record.ID)
		}
		total += score
	}

	result.score = roundScore(total / float64(len(records)))
	result.findings = stale.findings("timeliness", "records older than the freshness window")
	return result
}

func recordDate(record *models.StagingRecord) time.Time {
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

func scoreUniqueness(records []*models.StagingRecord) dimensionResult {
	result := dimensionResult{name: "uniqueness", weight: weightUniqueness, score: 100}
	if len(records) == 0 {
		return result
	}

	seen := map[string]bool{}
	unique := 0
	duplicates := newFindingCollector()

	for _, record := range records {
		number := NormalizeCode(record.PONumber)
		if number == "" {
			unique++
			continue
		}
		if seen[number] {
			duplicates.add(record.ID)
			continue
		}
		seen[number] = true
		unique++
	}

	result.score = ratioScore(unique, len(records))
	result.findings = duplicates.findings("uniqueness", "duplicate po_number within the upload")
	return result
}

func scoreAccuracy(records []*models.StagingRecord, historicalMeans map[int]decimal.Decimal) dimensionResult {
	result := dimensionResult{name: "accuracy", weight: weightAccuracy, score: 100}
	if len(records) == 0 {
		return result
	}

	accurate := 0
	outliers := newFindingCollector()

	for _, record := range records {
		// Lines without a resolved material or price history cannot be judged
		// and count as accurate.
		if record.MaterialId == nil {
			accurate++
			continue
		}
		mean, ok := historicalMeans[*record.MaterialId]
		if !ok || mean.IsZero() {
			accurate++
			continue
		}
		deviation := record.UnitPrice.Sub(mean).Abs().Div(mean)
		if deviation.GreaterThan(decimal.NewFromFloat(outlierDeviation)) {
			outliers.add(record.ID)
			continue
		}
		accurate++
	}

	result.score = ratioScore(accurate, len(records))
	result.findings = outliers.findings("accuracy", "prices deviating sharply from historical mean")
	return result
}

func buildRecommendations(dimensions []dimensionResult) []string {
	texts := map[string]string{
		"completeness": "Fill missing supplier, material, price and date fields at the source system before exporting.",
		"consistency":  "Standardize currency codes and units of measure against the reference vocabulary.",
		"validity":     "Correct rejected rows (non-positive prices, implausible dates) and re-upload.",
		"timeliness":   "Upload procurement files closer to the transaction date; stale prices weaken trend analysis.",
		"uniqueness":   "Deduplicate purchase order numbers before upload; repeated POs are skipped.",
		"accuracy":     "Review flagged price outliers with the supplier; confirm or correct before relying on them.",
	}

	weak := make([]dimensionResult, 0, len(dimensions))
	for _, dim := range dimensions {
		if dim.score < 80 {
			weak = append(weak, dim)
		}
	}
	sort.Slice(weak, func(i, j int) bool { return weak[i].score < weak[j].score })

	recommendations := make([]string, 0, len(weak))
	for _, dim := range weak {
		recommendations = append(recommendations, texts[dim.name])
	}
	return recommendations
}

// findingCollector caps stored examples while still counting everything.
type findingCollector struct {
	count    int
	examples []int
}

func newFindingCollector() *findingCollector {
	return &findingCollector{}
}

func (c *findingCollector) add(recordId int) {
	c.count++
	if len(c.examples) < 5 {
		c.examples = append(c.examples, recordId)
	}
}

func (c *findingCollector) findings(dimension, issue string) []models.QualityFinding {
	if c.count == 0 {
		return nil
	}
	return []models.QualityFinding{{
		Dimension:        dimension,
		Issue:            issue,
		Count:            c.count,
		ExampleRecordIds: c.examples,
	}}
}

func ratioScore(passed, total int) float64 {
	if total == 0 {
		return 100
	}
	return roundScore(100 * float64(passed) / float64(total))
}

func roundScore(score float64) float64 {
	return float64(int(score*100+0.5)) / 100
}

func withinTolerance(actual, expected decimal.Decimal, tolerance float64) bool {
	if expected.IsZero() {
		return actual.IsZero()
	}
	deviation := actual.Sub(expected).Abs().Div(expected)
	return !deviation.GreaterThan(decimal.NewFromFloat(tolerance))
}
