package models

import (
	"time"
)

// Report is filed by one reporter within one moderation cycle.
// A second report from the same reporter in the same cycle updates this row.
type Report struct {
	ID         string       `gorm:"primaryKey;size:36" json:"id"`
	ReporterID string       `gorm:"size:64;not null;uniqueIndex:idx_report_cycle" json:"reporter_id"`
	RecordID   string       `gorm:"size:36;not null;uniqueIndex:idx_report_cycle;index" json:"record_id"`
	TargetKind ContentKind  `gorm:"size:16;not null" json:"target_kind"`
	TargetID   string       `gorm:"size:64;not null;index" json:"target_id"`
	Reason     ReportReason `gorm:"size:32;not null" json:"reason"`
	Details    string       `gorm:"size:500" json:"details,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
