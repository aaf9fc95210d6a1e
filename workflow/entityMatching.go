package workflow

import (
	"fmt"
	"unicode/utf8"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
)

// Match band thresholds over the 0-100 similarity scale. At or above
// AutoAcceptThreshold the match is taken without review; between
// ReviewThreshold and AutoAcceptThreshold a conflict is recorded; below
// ReviewThreshold the incoming entity is treated as new.
const (
	AutoAcceptThreshold = 95
	ReviewThreshold     = 75
)

const maxIdentifierLength = 64

type MatchOutcome string

const (
	// MatchOutcomeExact: a normalized identifier (code / tax id) matched.
	MatchOutcomeExact MatchOutcome = "Exact"
	// MatchOutcomeFuzzy: name similarity at or above the auto-accept band.
	MatchOutcomeFuzzy MatchOutcome = "Fuzzy"
	// MatchOutcomeConflict: similarity in the review band; human decides.
	MatchOutcomeConflict MatchOutcome = "Conflict"
	// MatchOutcomeCreateNew: no acceptable match; entity will be created.
	MatchOutcomeCreateNew MatchOutcome = "CreateNew"
	// MatchOutcomeAbsent: the line carries no identity for this entity.
	MatchOutcomeAbsent MatchOutcome = "Absent"
	// MatchOutcomeRejected: identity fields are malformed; record skipped.
	MatchOutcomeRejected MatchOutcome = "Rejected"
)

// classifyFuzzyScore maps a similarity score to its band.
func classifyFuzzyScore(score int) MatchOutcome {
	switch {
	case score >= AutoAcceptThreshold:
		return MatchOutcomeFuzzy
	case score >= ReviewThreshold:
		return MatchOutcomeConflict
	default:
		return MatchOutcomeCreateNew
	}
}

type SupplierMatch struct {
	Outcome   MatchOutcome
	Supplier  *models.Supplier // resolved entity on Exact/Fuzzy
	Candidate *models.Supplier // best candidate on Conflict
	Score     int
	Reason    string // populated on Rejected
}

type MaterialMatch struct {
	Outcome   MatchOutcome
	Material  *models.Material
	Candidate *models.Material
	Score     int
	Reason    string
}

func malformedIdentifier(value string) bool {
	return !utf8.ValidString(value) || len(value) > maxIdentifierLength
}

// MatchSupplier resolves a staging line against the supplier universe.
// Precedence: explicit code, then tax id, then fuzzy name similarity. Caches
// are consulted in order; the chunk planner passes the business cache followed
// by its chunk-local overlay so in-flight creations are visible.
func MatchSupplier(record *models.StagingRecord, caches ...*LookupCache) *SupplierMatch {
	if malformedIdentifier(record.SupplierCode) {
		return &SupplierMatch{
			Outcome: MatchOutcomeRejected,
			Reason:  fmt.Sprintf("malformed supplier code %q", truncate(record.SupplierCode, 80)),
		}
	}
	if malformedIdentifier(record.SupplierTaxId) {
		return &SupplierMatch{
			Outcome: MatchOutcomeRejected,
			Reason:  fmt.Sprintf("malformed supplier tax id %q", truncate(record.SupplierTaxId, 80)),
		}
	}

	if record.SupplierCode != "" {
		for _, cache := range caches {
			if supplier := cache.SupplierByCode(record.SupplierCode); supplier != nil {
				return &SupplierMatch{Outcome: MatchOutcomeExact, Supplier: supplier, Score: 100}
			}
		}
	}
	if record.SupplierTaxId != "" {
		for _, cache := range caches {
			if supplier := cache.SupplierByTaxId(record.SupplierTaxId); supplier != nil {
				return &SupplierMatch{Outcome: MatchOutcomeExact, Supplier: supplier, Score: 100}
			}
		}
	}

	if record.SupplierName == "" && record.SupplierCode == "" && record.SupplierTaxId == "" {
		return &SupplierMatch{Outcome: MatchOutcomeAbsent}
	}

	if record.SupplierName != "" {
		incoming := NormalizeEntityName(record.SupplierName)
		var best *models.Supplier
		bestScore := 0
		for _, cache := range caches {
			for _, candidate := range cache.SupplierCandidates(record.SupplierName) {
				score := SimilarityScore(incoming, NormalizeEntityName(candidate.Name))
				if score > bestScore {
					best, bestScore = candidate, score
				}
			}
		}

		switch classifyFuzzyScore(bestScore) {
		case MatchOutcomeFuzzy:
			return &SupplierMatch{Outcome: MatchOutcomeFuzzy, Supplier: best, Score: bestScore}
		case MatchOutcomeConflict:
			return &SupplierMatch{Outcome: MatchOutcomeConflict, Candidate: best, Score: bestScore}
		}
	}

	return &SupplierMatch{Outcome: MatchOutcomeCreateNew}
}

// MatchMaterial resolves the material on a staging line. Code first, then
// fuzzy description. A line identifying its material by neither code nor
// description is rejected: price facts require a concrete material.
func MatchMaterial(record *models.StagingRecord, caches ...*LookupCache) *MaterialMatch {
	if malformedIdentifier(record.MaterialCode) {
		return &MaterialMatch{
			Outcome: MatchOutcomeRejected,
			Reason:  fmt.Sprintf("malformed material code %q", truncate(record.MaterialCode, 80)),
		}
	}

	if record.MaterialCode != "" {
		for _, cache := range caches {
			if material := cache.MaterialByCode(record.MaterialCode); material != nil {
				return &MaterialMatch{Outcome: MatchOutcomeExact, Material: material, Score: 100}
			}
		}
	}

	if record.MaterialCode == "" && record.MaterialDescription == "" {
		return &MaterialMatch{
			Outcome: MatchOutcomeRejected,
			Reason:  "material has neither code nor description",
		}
	}

	if record.MaterialDescription != "" {
		incoming := NormalizeEntityName(record.MaterialDescription)
		var best *models.Material
		bestScore := 0
		for _, cache := range caches {
			for _, candidate := range cache.MaterialCandidates(record.MaterialDescription) {
				score := SimilarityScore(incoming, NormalizeEntityName(candidate.Description))
				if score > bestScore {
					best, bestScore = candidate, score
				}
			}
		}

		switch classifyFuzzyScore(bestScore) {
		case MatchOutcomeFuzzy:
			return &MaterialMatch{Outcome: MatchOutcomeFuzzy, Material: best, Score: bestScore}
		case MatchOutcomeConflict:
			return &MaterialMatch{Outcome: MatchOutcomeConflict, Candidate: best, Score: bestScore}
		}
	}

	return &MaterialMatch{Outcome: MatchOutcomeCreateNew}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
