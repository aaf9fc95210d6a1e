package utils

import (
	"context"
	"testing"
)

func TestBusinessIdContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetBusinessIdFromContext(ctx); ok {
		t.Fatal("empty context reported a business id")
	}
	ctx = SetBusinessIdInContext(ctx, "biz-1")
	got, ok := GetBusinessIdFromContext(ctx)
	if !ok || got != "biz-1" {
		t.Fatalf("GetBusinessIdFromContext = %q, %v, want biz-1, true", got, ok)
	}
}

func TestUploadIdContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetUploadIdFromContext(ctx); ok {
		t.Fatal("empty context reported an upload id")
	}
	ctx = SetUploadIdInContext(ctx, 42)
	got, ok := GetUploadIdFromContext(ctx)
	if !ok || got != 42 {
		t.Fatalf("GetUploadIdFromContext = %d, %v, want 42, true", got, ok)
	}
}

func TestSkipTenantScopeContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if skip, _ := GetSkipTenantScopeFromContext(ctx); skip {
		t.Fatal("empty context reported tenant scope skipped")
	}
	ctx = SetSkipTenantScopeInContext(ctx, true)
	skip, ok := GetSkipTenantScopeFromContext(ctx)
	if !ok || !skip {
		t.Fatalf("GetSkipTenantScopeFromContext = %v, %v, want true, true", skip, ok)
	}
}
