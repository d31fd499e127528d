package models

import (
	"time"
)

// Location is the optional county/constituency/ward a post is scoped to.
type Location struct {
	County       string `gorm:"size:64;index" json:"county,omitempty"`
	Constituency string `gorm:"size:64;index" json:"constituency,omitempty"`
	Ward         string `gorm:"size:64" json:"ward,omitempty"`
}

// Revision is one entry of a post or comment edit history.
type Revision struct {
	Title    string    `json:"title,omitempty"`
	Body     string    `json:"body"`
	EditedAt time.Time `json:"edited_at"`
}

type Post struct {
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	AuthorID    string        `gorm:"size:64;not null;index" json:"author_id"`
	Title       string        `gorm:"size:200;not null" json:"title"`
	Body        string        `gorm:"type:text;not null" json:"body"`
	Category    Category      `gorm:"size:32;not null;index" json:"category"`
	Tags        []string      `gorm:"serializer:json;type:jsonb" json:"tags"`
	Location    Location      `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	Visibility  Visibility    `gorm:"size:16;not null;default:'public'" json:"visibility"`
	Poll        *Poll         `gorm:"serializer:json;type:jsonb" json:"poll,omitempty"`
	MediaURLs   []string      `gorm:"serializer:json;type:jsonb" json:"media_urls,omitempty"`
	Status      ContentStatus `gorm:"size:16;not null;default:'none';index" json:"status"`
	HotScore    float64       `gorm:"default:0;index" json:"hot_score"`
	EditHistory []Revision    `gorm:"serializer:json;type:jsonb" json:"edit_history,omitempty"`
	Deleted     bool          `gorm:"not null;default:false;index" json:"deleted"`
	DeletedBy   string        `gorm:"size:64" json:"deleted_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	EditedAt    *time.Time    `json:"edited_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`

	// 非数据库字段，读取时填充
	CommentCount int `gorm:"-" json:"comment_count"`
	Upvotes      int `gorm:"-" json:"upvotes"`
	Downvotes    int `gorm:"-" json:"downvotes"`
}

// Hidden reports whether the post is excluded from normal reads.
func (p *Post) Hidden() bool {
	return p.Deleted || p.Status == ContentStatusRejected
}

// Clone returns a deep copy so callers can mutate without sharing slices.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	out := *p
	out.Tags = append([]string(nil), p.Tags...)
	out.MediaURLs = append([]string(nil), p.MediaURLs...)
	out.EditHistory = append([]Revision(nil), p.EditHistory...)
	if p.EditedAt != nil {
		t := *p.EditedAt
		out.EditedAt = &t
	}
	out.Poll = p.Poll.Clone()
	return &out
}
