package models

import (
	"time"
)

// ModerationRecord is one report cycle against a target. Closed cycles are
// never reopened; a later report starts cycle+1.
type ModerationRecord struct {
	ID             string           `gorm:"primaryKey;size:36" json:"id"`
	TargetKind     ContentKind      `gorm:"size:16;not null;index:idx_record_target" json:"target_kind"`
	TargetID       string           `gorm:"size:64;not null;index:idx_record_target" json:"target_id"`
	TargetAuthorID string           `gorm:"size:64" json:"target_author_id,omitempty"`
	Cycle          int              `gorm:"not null;default:1" json:"cycle"`
	Status         ModerationStatus `gorm:"size:16;not null;default:'pending';index" json:"status"`
	ReportCount    int              `gorm:"not null;default:0" json:"report_count"`
	Reasons        []ReportReason   `gorm:"serializer:json;type:jsonb" json:"reasons"`
	Severity       Severity         `gorm:"size:8;not null;default:'low';index" json:"severity"`
	ModeratorID    *string          `gorm:"size:64" json:"moderator_id"`
	Notes          string           `gorm:"size:1000" json:"notes,omitempty"`
	DecidedAt      *time.Time       `json:"decided_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (r *ModerationRecord) Clone() *ModerationRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Reasons = append([]ReportReason(nil), r.Reasons...)
	if r.ModeratorID != nil {
		m := *r.ModeratorID
		out.ModeratorID = &m
	}
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		out.DecidedAt = &t
	}
	return &out
}

// AccountStatus mirrors what the moderation core last told the account
// collaborator about a user.
type AccountStatus struct {
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	Suspended bool      `gorm:"not null;default:false" json:"suspended"`
	UpdatedAt time.Time `json:"updated_at"`
}
