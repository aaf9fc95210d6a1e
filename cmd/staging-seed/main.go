package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// Seeds an upload with staging records from an xlsx export, standing in for
// the upload/parser service during development and testing.
//
// Expected header row (case-insensitive, order-free):
// po_number, line_item, supplier_name, supplier_code, supplier_tax_id,
// supplier_site, material_code, material_description, material_category, unit_price,
// total_price, currency, quantity, uom, purchase_date, delivery_date,
// invoice_date
func main() {
	businessID := flag.String("business-id", "", "Required: business id")
	filePath := flag.String("file", "", "Required: path to xlsx file")
	sheet := flag.String("sheet", "", "Sheet name (defaults to the first sheet)")
	sourceType := flag.String("source-type", "PurchaseOrders", "Upload source type: PurchaseOrders, Invoices, PriceList")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}
	if strings.TrimSpace(*filePath) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		os.Exit(1)
	}

	f, err := excelize.OpenFile(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open xlsx: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	sheetName := *sheet
	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read sheet %s: %v\n", sheetName, err)
		os.Exit(1)
	}
	if len(rows) < 2 {
		fmt.Fprintln(os.Stderr, "sheet has no data rows")
		os.Exit(1)
	}

	columns := map[string]int{}
	for idx, name := range rows[0] {
		columns[strings.ToLower(strings.TrimSpace(name))] = idx
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := utils.SetBusinessIdInContext(context.Background(), *businessID)
	upload, err := models.CreateUpload(ctx, &models.NewUpload{
		FileName:     *filePath,
		SourceType:   models.UploadSourceType(*sourceType),
		TotalRecords: len(rows) - 1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create upload: %v\n", err)
		os.Exit(1)
	}

	cell := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var records []*models.StagingRecord
	invalid := 0
	for rowIdx, row := range rows[1:] {
		record := &models.StagingRecord{
			BusinessId:          *businessID,
			UploadId:            upload.ID,
			RowNumber:           rowIdx + 2,
			PONumber:            cell(row, "po_number"),
			SupplierName:        cell(row, "supplier_name"),
			SupplierCode:        cell(row, "supplier_code"),
			SupplierTaxId:       cell(row, "supplier_tax_id"),
			SupplierSite:        cell(row, "supplier_site"),
			MaterialCode:        cell(row, "material_code"),
			MaterialDescription: cell(row, "material_description"),
			MaterialCategory:    cell(row, "material_category"),
			Currency:            strings.ToUpper(cell(row, "currency")),
			UnitOfMeasure:       cell(row, "uom"),
			ValidationStatus:    models.ValidationStatusValid,
			IsProcessed:         utils.NewFalse(),
		}

		ok := true
		record.LineItemNumber, _ = parseInt(cell(row, "line_item"))
		if record.UnitPrice, err = parseDecimal(cell(row, "unit_price")); err != nil {
			ok = false
		}
		if record.TotalPrice, err = parseDecimal(cell(row, "total_price")); err != nil {
			ok = false
		}
		if record.Quantity, err = parseDecimal(cell(row, "quantity")); err != nil {
			ok = false
		}
		record.PurchaseDate = parseDate(cell(row, "purchase_date"))
		record.DeliveryDate = parseDate(cell(row, "delivery_date"))
		record.InvoiceDate = parseDate(cell(row, "invoice_date"))

		if !ok {
			record.ValidationStatus = models.ValidationStatusInvalid
			invalid++
		}
		records = append(records, record)
	}

	if err := db.CreateInBatches(records, 500).Error; err != nil {
		fmt.Fprintf(os.Stderr, "create staging records: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("upload %d seeded: %d staging records (%d invalid)\n", upload.ID, len(records), invalid)
	fmt.Printf("trigger with: reconcile-run --upload-id=%d\n", upload.ID)
}

func parseInt(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	var n int
	_, err := fmt.Sscanf(value, "%d", &n)
	return n, err
}

func parseDecimal(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return utils.ParseDecimal(value)
}

var dateLayouts = []string{"2006-01-02", "01/02/2006", "2006-01-02 15:04:05", time.RFC3339}

func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed
		}
	}
	return nil
}
