package models

import "time"

// UploadChunkError records a chunk that failed after its retry. Its staging
// rows keep is_processed=false so a later re-run picks them up naturally.
type UploadChunkError struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"size:64;not null;index" json:"business_id"`
	UploadId      int       `gorm:"not null;index" json:"upload_id"`
	ChunkIndex    int       `gorm:"not null" json:"chunk_index"`
	Attempts      int       `gorm:"not null;default:1" json:"attempts"`
	FirstRecordId int       `json:"first_record_id"`
	LastRecordId  int       `json:"last_record_id"`
	ErrorMessage  string    `gorm:"type:text" json:"error_message"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
