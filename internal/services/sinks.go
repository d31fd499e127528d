package services

import (
	"context"
	"log/slog"

	"jukwaa/internal/models"
	"jukwaa/internal/store"
)

// LogSink writes every event to the structured log. It stands in for the
// analytics collaborator.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: ResolveLogger(logger)}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, ev Event) error {
	s.logger.InfoContext(ctx, "engagement event",
		"event", string(ev.Type),
		"module", "services/events",
		"content_kind", ev.ContentKind,
		"content_id", ev.ContentID,
		"actor_id", ev.ActorID,
		"metadata", ev.Metadata,
	)
	return nil
}

// NotificationSink turns events into notification rows for the external
// delivery service to pick up.
type NotificationSink struct {
	store store.Store
}

func NewNotificationSink(st store.Store) *NotificationSink {
	return &NotificationSink{store: st}
}

func (s *NotificationSink) Name() string { return "notifications" }

func (s *NotificationSink) Deliver(ctx context.Context, ev Event) error {
	for _, n := range notificationsFor(ev) {
		if err := s.store.CreateNotification(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func notificationsFor(ev Event) []*models.Notification {
	var out []*models.Notification
	add := func(recipient string, typ models.NotificationType) {
		// 不给自己发通知
		if recipient == "" || recipient == ev.ActorID {
			return
		}
		for _, n := range out {
			if n.RecipientID == recipient {
				return
			}
		}
		out = append(out, &models.Notification{
			RecipientID: recipient,
			ActorID:     ev.ActorID,
			Type:        typ,
			EventType:   string(ev.Type),
			ContentKind: ev.ContentKind,
			ContentID:   ev.ContentID,
			Metadata:    ev.Metadata,
			CreatedAt:   ev.OccurredAt,
		})
	}

	switch ev.Type {
	case EventCommentCreated:
		// the replied-to author first so a reply to one's own post yields one row
		add(metaString(ev.Metadata, "parent_author_id"), models.NotificationTypeReplyComment)
		add(metaString(ev.Metadata, "post_author_id"), models.NotificationTypeCommentPost)
	case EventModerationDecided, EventAccountSuspended, EventAccountActivated:
		add(metaString(ev.Metadata, "target_author_id"), models.NotificationTypeModeration)
	}
	return out
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
