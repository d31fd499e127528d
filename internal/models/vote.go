package models

import (
	"time"
)

// Vote is one actor's directional vote on a post or comment.
// The unique index guarantees at most one vote per (actor, content).
type Vote struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	ActorID     string      `gorm:"size:64;not null;uniqueIndex:idx_vote_identity" json:"actor_id"`
	ContentKind ContentKind `gorm:"size:16;not null;uniqueIndex:idx_vote_identity;index:idx_vote_content" json:"content_kind"`
	ContentID   string      `gorm:"size:36;not null;uniqueIndex:idx_vote_identity;index:idx_vote_content" json:"content_id"`
	Direction   Direction   `gorm:"size:8;not null" json:"direction"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
