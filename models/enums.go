package models

type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "Pending"
	UploadStatusProcessing UploadStatus = "Processing"
	UploadStatusCompleted  UploadStatus = "Completed"
	UploadStatusFailed     UploadStatus = "Failed"
)

func (s UploadStatus) IsTerminal() bool {
	return s == UploadStatusCompleted || s == UploadStatusFailed
}

type UploadSourceType string

const (
	UploadSourceTypePurchaseOrders UploadSourceType = "PurchaseOrders"
	UploadSourceTypeInvoices       UploadSourceType = "Invoices"
	UploadSourceTypePriceList      UploadSourceType = "PriceList"
)

type ValidationStatus string

const (
	ValidationStatusValid   ValidationStatus = "Valid"
	ValidationStatusInvalid ValidationStatus = "Invalid"
	ValidationStatusPending ValidationStatus = "Pending"
)

// EntityStatus tracks approval state of master-data entities. Auto-created
// suppliers/materials start as PendingApproval until a human confirms them.
type EntityStatus string

const (
	EntityStatusActive          EntityStatus = "Active"
	EntityStatusPendingApproval EntityStatus = "PendingApproval"
)

type EntitySource string

const (
	EntitySourceManual EntitySource = "Manual"
	EntitySourceUpload EntitySource = "Upload"
)

type ConflictEntityType string

const (
	ConflictEntityTypeSupplier ConflictEntityType = "Supplier"
	ConflictEntityTypeMaterial ConflictEntityType = "Material"
)

type ConflictStatus string

const (
	ConflictStatusPending  ConflictStatus = "Pending"
	ConflictStatusResolved ConflictStatus = "Resolved"
)

type ResolutionAction string

const (
	ResolutionActionAccept    ResolutionAction = "Accept"
	ResolutionActionReject    ResolutionAction = "Reject"
	ResolutionActionCreateNew ResolutionAction = "CreateNew"
)

func (a ResolutionAction) IsValid() bool {
	switch a {
	case ResolutionActionAccept, ResolutionActionReject, ResolutionActionCreateNew:
		return true
	}
	return false
}

type PriceSource string

const (
	PriceSourceUpload PriceSource = "Upload"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusRecorded    PurchaseOrderStatus = "Recorded"
	PurchaseOrderStatusProvisional PurchaseOrderStatus = "Provisional"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)
