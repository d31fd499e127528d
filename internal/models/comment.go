package models

import (
	"time"
)

type Comment struct {
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	PostID      string        `gorm:"size:36;not null;index" json:"post_id"`
	ParentID    *string       `gorm:"size:36;index" json:"parent_id"` // nil for top-level comments
	AuthorID    string        `gorm:"size:64;not null;index" json:"author_id"`
	Body        string        `gorm:"type:text;not null" json:"body"`
	Status      ContentStatus `gorm:"size:16;not null;default:'none'" json:"status"`
	EditHistory []Revision    `gorm:"serializer:json;type:jsonb" json:"edit_history,omitempty"`
	Deleted     bool          `gorm:"not null;default:false" json:"deleted"`
	DeletedBy   string        `gorm:"size:64" json:"deleted_by,omitempty"`
	CreatedAt   time.Time     `gorm:"index" json:"created_at"`
	EditedAt    *time.Time    `json:"edited_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Removed comments stay in the tree but render without their body.
func (c *Comment) Removed() bool {
	return c.Deleted || c.Status == ContentStatusRejected
}

func (c *Comment) Clone() *Comment {
	if c == nil {
		return nil
	}
	out := *c
	if c.ParentID != nil {
		p := *c.ParentID
		out.ParentID = &p
	}
	if c.EditedAt != nil {
		t := *c.EditedAt
		out.EditedAt = &t
	}
	out.EditHistory = append([]Revision(nil), c.EditHistory...)
	return &out
}
