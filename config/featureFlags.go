package config

import (
	"os"
	"strconv"
	"strings"
)

// DeferConflictWrites switches the review-band behavior for supplier
// references from the default "write the PO/Price line now with a provisional
// (nullable) supplier link and the conflict id stamped on the row" to "leave
// the record unprocessed until the conflict is resolved".
//
// Material review-band conflicts always defer regardless of this flag: a price
// fact is immutable and must reference a material that exists at write time.
//
// Set via env:
// - RECONCILE_DEFER_CONFLICTS=true
func DeferConflictWrites() bool {
	return boolFromEnv("RECONCILE_DEFER_CONFLICTS")
}

// ReconcileChunkSize returns the number of staging records written per
// transaction. Bulk chunking is the dominant throughput lever; keep it small
// enough to bound lock duration.
//
// Set via env:
// - RECONCILE_CHUNK_SIZE (default 500)
func ReconcileChunkSize() int {
	v := strings.TrimSpace(os.Getenv("RECONCILE_CHUNK_SIZE"))
	if v == "" {
		return 500
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 500
	}
	return n
}

// ReconcileChunkTimeoutSeconds bounds a single chunk transaction. A chunk that
// exceeds it is rolled back, retried once, then skipped with an error recorded.
//
// Set via env:
// - RECONCILE_CHUNK_TIMEOUT_SECONDS (default 30)
func ReconcileChunkTimeoutSeconds() int {
	v := strings.TrimSpace(os.Getenv("RECONCILE_CHUNK_TIMEOUT_SECONDS"))
	if v == "" {
		return 30
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 30
	}
	return n
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
