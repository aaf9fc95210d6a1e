package workflow

import (
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
)

func testCache(suppliers []*models.Supplier, materials []*models.Material, poNumbers ...string) *LookupCache {
	cache := &LookupCache{
		businessId:       "biz-1",
		suppliersByCode:  map[string]*models.Supplier{},
		suppliersByTaxId: map[string]*models.Supplier{},
		supplierBlocks:   map[string][]*models.Supplier{},
		materialsByCode:  map[string]*models.Material{},
		materialBlocks:   map[string][]*models.Material{},
		poNumbers:        map[string]bool{},
	}
	for _, supplier := range suppliers {
		cache.AddSupplier(supplier)
	}
	for _, material := range materials {
		cache.AddMaterial(material)
	}
	for _, number := range poNumbers {
		cache.AddPONumber(number)
	}
	return cache
}

func strPtr(s string) *string { return &s }

func TestMatchSupplierExactCodeWinsOverName(t *testing.T) {
	acme := &models.Supplier{ID: 1, Code: "ACME-01", Name: "Acme Trading Ltd"}
	other := &models.Supplier{ID: 2, Code: "ACME-02", Name: "Acme Trading House"}
	cache := testCache([]*models.Supplier{acme, other}, nil)

	// The name alone would fuzzy-match either; the code must decide.
	match := MatchSupplier(&models.StagingRecord{
		SupplierCode: "acme-02",
		SupplierName: "Acme Trading",
	}, cache)

	if match.Outcome != MatchOutcomeExact {
		t.Fatalf("outcome = %q, want %q", match.Outcome, MatchOutcomeExact)
	}
	if match.Supplier.ID != other.ID {
		t.Fatalf("matched supplier %d, want %d", match.Supplier.ID, other.ID)
	}
}

func TestMatchSupplierExactTaxId(t *testing.T) {
	acme := &models.Supplier{ID: 1, Code: "ACME-01", Name: "Acme Trading Ltd", TaxId: "TX-4471"}
	cache := testCache([]*models.Supplier{acme}, nil)

	match := MatchSupplier(&models.StagingRecord{
		SupplierTaxId: "tx-4471",
		SupplierName:  "Completely Different Name",
	}, cache)

	if match.Outcome != MatchOutcomeExact {
		t.Fatalf("outcome = %q, want %q", match.Outcome, MatchOutcomeExact)
	}
	if match.Supplier.ID != acme.ID {
		t.Fatalf("matched supplier %d, want %d", match.Supplier.ID, acme.ID)
	}
}

func TestMatchSupplierFuzzyAutoAccept(t *testing.T) {
	acme := &models.Supplier{ID: 1, Code: "ACME-01", Name: "Acme Trading Ltd"}
	cache := testCache([]*models.Supplier{acme}, nil)

	// Legal suffixes normalize away, leaving identical names.
	match := MatchSupplier(&models.StagingRecord{SupplierName: "Acme Trading Co"}, cache)

	if match.Outcome != MatchOutcomeFuzzy {
		t.Fatalf("outcome = %q (score %d), want %q", match.Outcome, match.Score, MatchOutcomeFuzzy)
	}
	if match.Supplier.ID != acme.ID {
		t.Fatalf("matched supplier %d, want %d", match.Supplier.ID, acme.ID)
	}
}

func TestMatchSupplierReviewBandProducesConflict(t *testing.T) {
	northwind := &models.Supplier{ID: 3, Code: "NWT-01", Name: "Northwind Traders"}
	cache := testCache([]*models.Supplier{northwind}, nil)

	match := MatchSupplier(&models.StagingRecord{SupplierName: "Northwind Trading"}, cache)

	if match.Outcome != MatchOutcomeConflict {
		t.Fatalf("outcome = %q (score %d), want %q", match.Outcome, match.Score, MatchOutcomeConflict)
	}
	if match.Candidate == nil || match.Candidate.ID != northwind.ID {
		t.Fatalf("candidate = %+v, want supplier %d", match.Candidate, northwind.ID)
	}
	if match.Score < ReviewThreshold || match.Score >= AutoAcceptThreshold {
		t.Fatalf("score %d outside review band [%d,%d)", match.Score, ReviewThreshold, AutoAcceptThreshold)
	}
}

func TestMatchSupplierCreateNewWhenNoCandidate(t *testing.T) {
	acme := &models.Supplier{ID: 1, Code: "ACME-01", Name: "Acme Trading Ltd"}
	cache := testCache([]*models.Supplier{acme}, nil)

	match := MatchSupplier(&models.StagingRecord{SupplierName: "Zenith Metals"}, cache)

	if match.Outcome != MatchOutcomeCreateNew {
		t.Fatalf("outcome = %q (score %d), want %q", match.Outcome, match.Score, MatchOutcomeCreateNew)
	}
}

func TestMatchSupplierAbsent(t *testing.T) {
	cache := testCache(nil, nil)
	match := MatchSupplier(&models.StagingRecord{}, cache)
	if match.Outcome != MatchOutcomeAbsent {
		t.Fatalf("outcome = %q, want %q", match.Outcome, MatchOutcomeAbsent)
	}
}

func TestMatchSupplierMalformedCodeRejected(t *testing.T) {
	cache := testCache(nil, nil)
	match := MatchSupplier(&models.StagingRecord{
		SupplierCode: strings.Repeat("X", maxIdentifierLength+1),
		SupplierName: "Acme Trading",
	}, cache)
	if match.Outcome != MatchOutcomeRejected {
		t.Fatalf("outcome = %q, want %q", match.Outcome, MatchOutcomeRejected)
	}
	if match.Reason == "" {
		t.Fatal("rejection reason is empty")
	}
}

func TestMatchSupplierConsultsOverlayCache(t *testing.T) {
	cache := testCache(nil, nil)
	overlay := testCache(nil, nil)
	pending := &models.Supplier{Code: "AUTO_1A2B3C4D", Name: "Zenith Metals"}
	overlay.AddSupplier(pending)

	match := MatchSupplier(&models.StagingRecord{SupplierName: "Zenith Metals Co"}, cache, overlay)

	if match.Outcome != MatchOutcomeFuzzy {
		t.Fatalf("outcome = %q (score %d), want %q", match.Outcome, match.Score, MatchOutcomeFuzzy)
	}
	if match.Supplier != pending {
		t.Fatal("expected the pending overlay supplier to be matched")
	}
}

func TestMatchMaterialExactCode(t *testing.T) {
	steel := &models.Material{ID: 10, Code: strPtr("STEEL-01"), Description: "Mild Steel Rod"}
	cache := testCache(nil, []*models.Material{steel})

	match := MatchMaterial(&models.StagingRecord{MaterialCode: "steel-01"}, cache)

	if match.Outcome != MatchOutcomeExact {
		t.Fatalf("outcome = %q, want %q", match.Outcome, MatchOutcomeExact)
	}
	if match.Material.ID != steel.ID {
		t.Fatalf("matched material %d, want %d", match.Material.ID, steel.ID)
	}
}

func TestMatchMaterialNoIdentityRejected(t *testing.T) {
	cache := testCache(nil, nil)
	match := MatchMaterial(&models.StagingRecord{}, cache)
	if match.Outcome != MatchOutcomeRejected {
		t.Fatalf("outcome = %q, want %q", match.Outcome, MatchOutcomeRejected)
	}
}

func TestMatchMaterialDescriptionCreateNew(t *testing.T) {
	steel := &models.Material{ID: 10, Code: strPtr("STEEL-01"), Description: "Mild Steel Rod"}
	cache := testCache(nil, []*models.Material{steel})

	match := MatchMaterial(&models.StagingRecord{MaterialDescription: "Copper Pipe 15mm"}, cache)

	if match.Outcome != MatchOutcomeCreateNew {
		t.Fatalf("outcome = %q (score %d), want %q", match.Outcome, match.Score, MatchOutcomeCreateNew)
	}
}
