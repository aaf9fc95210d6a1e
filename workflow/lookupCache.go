package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
)

// LookupCache holds the business's entire entity universe in memory for the
// duration of one run, so per-record matching never round-trips to the
// database. Entities created by committed chunks are added as the run goes, so
// later chunks match against earlier chunks' creations.
type LookupCache struct {
	businessId string

	suppliersByCode  map[string]*models.Supplier
	suppliersByTaxId map[string]*models.Supplier
	supplierBlocks   map[string][]*models.Supplier

	materialsByCode map[string]*models.Material
	materialBlocks  map[string][]*models.Material

	poNumbers map[string]bool
}

// BuildLookupCache loads all suppliers, materials and PO numbers of the
// business. A failure here is fatal for the run; matching against a partial
// cache would create duplicates of everything the missing part contains.
func BuildLookupCache(ctx context.Context, store Store, businessId string) (*LookupCache, error) {
	logger := config.GetLogger()

	cache := &LookupCache{
		businessId:       businessId,
		suppliersByCode:  map[string]*models.Supplier{},
		suppliersByTaxId: map[string]*models.Supplier{},
		supplierBlocks:   map[string][]*models.Supplier{},
		materialsByCode:  map[string]*models.Material{},
		materialBlocks:   map[string][]*models.Material{},
		poNumbers:        map[string]bool{},
	}

	suppliers, err := store.ListSuppliers(ctx, businessId)
	if err != nil {
		config.LogError(logger, "workflow", "BuildLookupCache", "list suppliers", businessId, err)
		return nil, fmt.Errorf("lookup cache suppliers: %w", err)
	}
	for _, supplier := range suppliers {
		cache.AddSupplier(supplier)
	}

	materials, err := store.ListMaterials(ctx, businessId)
	if err != nil {
		config.LogError(logger, "workflow", "BuildLookupCache", "list materials", businessId, err)
		return nil, fmt.Errorf("lookup cache materials: %w", err)
	}
	for _, material := range materials {
		cache.AddMaterial(material)
	}

	poNumbers, err := store.ListPONumbers(ctx, businessId)
	if err != nil {
		config.LogError(logger, "workflow", "BuildLookupCache", "list po numbers", businessId, err)
		return nil, fmt.Errorf("lookup cache po numbers: %w", err)
	}
	for _, number := range poNumbers {
		cache.AddPONumber(number)
	}

	config.LogInfo(logger, "workflow", "BuildLookupCache", "cache built", map[string]interface{}{
		"business_id": businessId,
		"suppliers":   len(suppliers),
		"materials":   len(materials),
		"po_numbers":  len(poNumbers),
	})
	return cache, nil
}

func (c *LookupCache) AddSupplier(supplier *models.Supplier) {
	if code := NormalizeCode(supplier.Code); code != "" {
		c.suppliersByCode[code] = supplier
	}
	if taxId := NormalizeCode(supplier.TaxId); taxId != "" {
		c.suppliersByTaxId[taxId] = supplier
	}
	if key := BlockingKey(supplier.Name); key != "" {
		c.supplierBlocks[key] = append(c.supplierBlocks[key], supplier)
	}
}

func (c *LookupCache) AddMaterial(material *models.Material) {
	if material.Code != nil {
		if code := NormalizeCode(*material.Code); code != "" {
			c.materialsByCode[code] = material
		}
	}
	if key := BlockingKey(material.Description); key != "" {
		c.materialBlocks[key] = append(c.materialBlocks[key], material)
	}
}

func (c *LookupCache) AddPONumber(number string) {
	if normalized := NormalizeCode(number); normalized != "" {
		c.poNumbers[normalized] = true
	}
}

func (c *LookupCache) SupplierByCode(code string) *models.Supplier {
	return c.suppliersByCode[NormalizeCode(code)]
}

func (c *LookupCache) SupplierByTaxId(taxId string) *models.Supplier {
	return c.suppliersByTaxId[NormalizeCode(taxId)]
}

// SupplierCandidates returns the fuzzy-match candidate set for a name: the
// suppliers sharing its blocking key.
func (c *LookupCache) SupplierCandidates(name string) []*models.Supplier {
	key := BlockingKey(name)
	if key == "" {
		return nil
	}
	return c.supplierBlocks[key]
}

func (c *LookupCache) MaterialByCode(code string) *models.Material {
	return c.materialsByCode[NormalizeCode(code)]
}

func (c *LookupCache) MaterialCandidates(description string) []*models.Material {
	key := BlockingKey(description)
	if key == "" {
		return nil
	}
	return c.materialBlocks[key]
}

func (c *LookupCache) KnownPONumber(number string) bool {
	return c.poNumbers[NormalizeCode(number)]
}
