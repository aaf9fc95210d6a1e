package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"bitbucket.org/mmdatafocus/procurement_backend/workflow"
)

// Manual trigger for one reconciliation run, bypassing Pub/Sub. Used for
// re-runs after conflict resolution and for local debugging.
func main() {
	uploadID := flag.Int("upload-id", 0, "Required: upload id to reconcile")
	timeoutMin := flag.Int("timeout-minutes", 60, "Abort the run after this long")
	asJSON := flag.Bool("json", false, "Print the run result as JSON")
	flag.Parse()

	if *uploadID <= 0 {
		fmt.Fprintln(os.Stderr, "--upload-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeoutMin)*time.Minute)
	defer cancel()

	started := time.Now()
	result, err := workflow.Run(ctx, *uploadID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconciliation failed: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		payload, err := utils.MarshalToJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "marshal result: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(payload)
		return
	}

	fmt.Printf("upload %d reconciled in %s\n", *uploadID, time.Since(started).Round(time.Millisecond))
	fmt.Printf("  suppliers created:  %d\n", result.CreatedSuppliers)
	fmt.Printf("  materials created:  %d\n", result.CreatedMaterials)
	fmt.Printf("  purchase orders:    %d\n", result.CreatedPOs)
	fmt.Printf("  price records:      %d\n", result.CreatedPrices)
	fmt.Printf("  skipped records:    %d\n", result.SkippedRecords)
	fmt.Printf("  conflicts created:  %d\n", result.ConflictsCreated)
	fmt.Printf("  deferred records:   %d\n", result.DeferredRecords)
	fmt.Printf("  failed chunks:      %d\n", result.FailedChunks)
	if result.QualityReport != nil {
		fmt.Printf("  quality score:      %.2f (%s)\n", result.QualityReport.OverallScore, result.QualityReport.Grade)
		var recommendations []string
		if err := utils.UnmarshalFromJSON(result.QualityReport.Recommendations, &recommendations); err == nil {
			for _, recommendation := range recommendations {
				fmt.Printf("  recommendation:     %s\n", recommendation)
			}
		}
	}
}
