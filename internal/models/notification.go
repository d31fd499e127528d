package models

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeCommentPost  NotificationType = "comment_post"  // 评论帖子
	NotificationTypeReplyComment NotificationType = "reply_comment" // 回复评论
	NotificationTypeModeration   NotificationType = "moderation"
)

// Notification is the outbox row written by the notification sink; delivery
// to devices is done by the external notification service.
type Notification struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RecipientID string           `gorm:"size:64;not null;index" json:"recipient_id"`
	ActorID     string           `gorm:"size:64;index" json:"actor_id"`
	Type        NotificationType `gorm:"type:varchar(20);not null" json:"type"`
	EventType   string           `gorm:"size:32;not null" json:"event_type"`
	ContentKind ContentKind      `gorm:"size:16" json:"content_kind"`
	ContentID   string           `gorm:"size:64" json:"content_id"`
	Metadata    map[string]any   `gorm:"serializer:json;type:jsonb" json:"metadata,omitempty"`
	IsRead      bool             `gorm:"default:false;index" json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
}
