package models

import "time"

// Processed-file statuses.
const (
	FileSuccess = "success"
	FilePartial = "partial"
	FileFailed  = "failed"
)

// ProcessedFile is the ingest ledger entry for one outlier file.
type ProcessedFile struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	FolderName    string    `gorm:"size:128;not null;uniqueIndex:idx_processed_file" json:"folder_name" validate:"required"`
	FileName      string    `gorm:"size:128;not null;uniqueIndex:idx_processed_file" json:"file_name" validate:"required"`
	FileType      string    `gorm:"size:32;not null" json:"file_type" validate:"oneof=volume open_interest"`
	ProcessedTime time.Time `gorm:"not null" json:"processed_time"`
	FileSize      int64     `json:"file_size" validate:"gte=0"`
	RowCount      int       `json:"row_count" validate:"gte=0"`
	Status        string    `gorm:"size:16;not null;index" json:"status" validate:"oneof=success partial failed"`
	Error         string    `gorm:"size:512" json:"error,omitempty"`
}
