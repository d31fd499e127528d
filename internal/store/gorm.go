package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"jukwaa/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const severityOrder = "CASE severity WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END DESC"

// Gorm is the postgres adapter. Atomic wraps fn in a transaction holding a
// transaction-scoped advisory lock on the key.
type Gorm struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewGorm(db *gorm.DB, logger *slog.Logger) *Gorm {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gorm{db: db, logger: logger}
}

func (g *Gorm) Atomic(ctx context.Context, key string, fn func(tx Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
			return g.logError("store_advisory_lock_failed", err, "key", key)
		}
		return fn(&Gorm{db: tx, logger: g.logger})
	})
}

func (g *Gorm) CreatePost(ctx context.Context, post *models.Post) error {
	if err := g.db.WithContext(ctx).Create(post).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return g.logError("store_create_post_failed", err, "post_id", post.ID)
	}
	return nil
}

func (g *Gorm) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, g.logError("store_get_post_failed", err, "post_id", id)
	}
	return &post, nil
}

func (g *Gorm) UpdatePost(ctx context.Context, post *models.Post) error {
	res := g.db.WithContext(ctx).Model(post).Select("*").Omit("created_at", "hot_score").Updates(post)
	if res.Error != nil {
		return g.logError("store_update_post_failed", res.Error, "post_id", post.ID)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) ListPosts(ctx context.Context, filter PostFilter) ([]*models.Post, error) {
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	tx := g.db.WithContext(ctx).Model(&models.Post{}).
		Where("deleted = ?", false).
		Where("status <> ?", models.ContentStatusRejected)

	if filter.Category != "" {
		tx = tx.Where("category = ?", filter.Category)
	}
	if filter.Tag != "" {
		tag, _ := json.Marshal([]string{filter.Tag})
		tx = tx.Where("tags @> ?::jsonb", string(tag))
	}
	if filter.County != "" {
		tx = tx.Where("location_county = ?", filter.County)
	}
	if filter.Constituency != "" {
		tx = tx.Where("location_constituency = ?", filter.Constituency)
	}
	if filter.Ward != "" {
		tx = tx.Where("location_ward = ?", filter.Ward)
	}

	// 可见性：公开、本人、或同选区
	visible := g.db.Where("visibility = ?", models.VisibilityPublic)
	if filter.ViewerID != "" {
		visible = visible.Or("author_id = ?", filter.ViewerID)
	}
	if filter.ViewerModerator {
		visible = visible.Or("visibility = ?", models.VisibilityConstituency)
	} else if filter.ViewerConstituency != "" {
		visible = visible.Or("visibility = ? AND location_constituency = ?", models.VisibilityConstituency, filter.ViewerConstituency)
	}
	tx = tx.Where(visible)

	if filter.Sort == SortHot {
		tx = tx.Order("hot_score DESC")
	}
	tx = tx.Order("created_at DESC").Order("id DESC")

	var posts []*models.Post
	if err := tx.Limit(limit).Offset(offset).Find(&posts).Error; err != nil {
		return nil, g.logError("store_list_posts_failed", err)
	}
	return posts, nil
}

func (g *Gorm) SetHotScore(ctx context.Context, postID string, score float64) error {
	res := g.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).UpdateColumn("hot_score", score)
	if res.Error != nil {
		return g.logError("store_set_hot_score_failed", res.Error, "post_id", postID)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) CreateComment(ctx context.Context, comment *models.Comment) error {
	if err := g.db.WithContext(ctx).Create(comment).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return g.logError("store_create_comment_failed", err, "comment_id", comment.ID, "post_id", comment.PostID)
	}
	return nil
}

func (g *Gorm) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(&comment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, g.logError("store_get_comment_failed", err, "comment_id", id)
	}
	return &comment, nil
}

func (g *Gorm) UpdateComment(ctx context.Context, comment *models.Comment) error {
	res := g.db.WithContext(ctx).Model(comment).Select("*").Omit("created_at").Updates(comment)
	if res.Error != nil {
		return g.logError("store_update_comment_failed", res.Error, "comment_id", comment.ID)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) ListComments(ctx context.Context, postID string) ([]*models.Comment, error) {
	var comments []*models.Comment
	if err := g.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&comments).Error; err != nil {
		return nil, g.logError("store_list_comments_failed", err, "post_id", postID)
	}
	return comments, nil
}

func (g *Gorm) CountComments(ctx context.Context, postID string) (int, error) {
	var n int64
	if err := g.db.WithContext(ctx).Model(&models.Comment{}).
		Where("post_id = ? AND deleted = ? AND status <> ?", postID, false, models.ContentStatusRejected).
		Count(&n).Error; err != nil {
		return 0, g.logError("store_count_comments_failed", err, "post_id", postID)
	}
	return int(n), nil
}

func (g *Gorm) GetVote(ctx context.Context, actorID string, kind models.ContentKind, contentID string) (*models.Vote, error) {
	var vote models.Vote
	err := g.db.WithContext(ctx).
		Where("actor_id = ? AND content_kind = ? AND content_id = ?", actorID, kind, contentID).
		First(&vote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, g.logError("store_get_vote_failed", err, "actor_id", actorID, "content_id", contentID)
	}
	return &vote, nil
}

func (g *Gorm) SaveVote(ctx context.Context, vote *models.Vote) error {
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "actor_id"}, {Name: "content_kind"}, {Name: "content_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"direction":  vote.Direction,
			"updated_at": time.Now(),
		}),
	}).Create(vote).Error
	if err != nil {
		return g.logError("store_save_vote_failed", err, "actor_id", vote.ActorID, "content_id", vote.ContentID)
	}
	return nil
}

func (g *Gorm) DeleteVote(ctx context.Context, actorID string, kind models.ContentKind, contentID string) error {
	err := g.db.WithContext(ctx).
		Where("actor_id = ? AND content_kind = ? AND content_id = ?", actorID, kind, contentID).
		Delete(&models.Vote{}).Error
	if err != nil {
		return g.logError("store_delete_vote_failed", err, "actor_id", actorID, "content_id", contentID)
	}
	return nil
}

func (g *Gorm) CountVotes(ctx context.Context, kind models.ContentKind, contentID string) (int, int, error) {
	var rows []struct {
		Direction models.Direction
		Total     int
	}
	err := g.db.WithContext(ctx).Model(&models.Vote{}).
		Select("direction, COUNT(*) AS total").
		Where("content_kind = ? AND content_id = ?", kind, contentID).
		Group("direction").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, g.logError("store_count_votes_failed", err, "content_id", contentID)
	}
	up, down := 0, 0
	for _, r := range rows {
		switch r.Direction {
		case models.DirectionUp:
			up = r.Total
		case models.DirectionDown:
			down = r.Total
		}
	}
	return up, down, nil
}

func (g *Gorm) LatestRecord(ctx context.Context, kind models.ContentKind, targetID string) (*models.ModerationRecord, error) {
	var record models.ModerationRecord
	err := g.db.WithContext(ctx).
		Where("target_kind = ? AND target_id = ?", kind, targetID).
		Order("cycle DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, g.logError("store_latest_record_failed", err, "target_kind", kind, "target_id", targetID)
	}
	return &record, nil
}

func (g *Gorm) ListRecords(ctx context.Context, kind models.ContentKind, targetID string) ([]*models.ModerationRecord, error) {
	var records []*models.ModerationRecord
	if err := g.db.WithContext(ctx).
		Where("target_kind = ? AND target_id = ?", kind, targetID).
		Order("cycle ASC").
		Find(&records).Error; err != nil {
		return nil, g.logError("store_list_records_failed", err, "target_kind", kind, "target_id", targetID)
	}
	return records, nil
}

func (g *Gorm) SaveRecord(ctx context.Context, record *models.ModerationRecord) error {
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "report_count", "reasons", "severity", "moderator_id", "notes", "decided_at", "updated_at"}),
	}).Create(record).Error
	if err != nil {
		return g.logError("store_save_record_failed", err, "record_id", record.ID)
	}
	return nil
}

func (g *Gorm) ListQueue(ctx context.Context, filter QueueFilter) ([]*models.ModerationRecord, error) {
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	tx := g.db.WithContext(ctx).Model(&models.ModerationRecord{})
	if filter.Status != "" {
		tx = tx.Where("status = ?", filter.Status)
	}
	if filter.Severity != "" {
		tx = tx.Where("severity = ?", filter.Severity)
	}
	var records []*models.ModerationRecord
	if err := tx.Order(severityOrder).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).Offset(offset).
		Find(&records).Error; err != nil {
		return nil, g.logError("store_list_queue_failed", err)
	}
	return records, nil
}

func (g *Gorm) GetReport(ctx context.Context, reporterID string, recordID string) (*models.Report, error) {
	var report models.Report
	err := g.db.WithContext(ctx).
		Where("reporter_id = ? AND record_id = ?", reporterID, recordID).
		First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, g.logError("store_get_report_failed", err, "reporter_id", reporterID, "record_id", recordID)
	}
	return &report, nil
}

func (g *Gorm) SaveReport(ctx context.Context, report *models.Report) error {
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reporter_id"}, {Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason", "details", "updated_at"}),
	}).Create(report).Error
	if err != nil {
		return g.logError("store_save_report_failed", err, "reporter_id", report.ReporterID, "record_id", report.RecordID)
	}
	return nil
}

func (g *Gorm) ListReports(ctx context.Context, recordID string) ([]*models.Report, error) {
	var reports []*models.Report
	if err := g.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("created_at ASC").
		Find(&reports).Error; err != nil {
		return nil, g.logError("store_list_reports_failed", err, "record_id", recordID)
	}
	return reports, nil
}

func (g *Gorm) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := g.db.WithContext(ctx).Create(n).Error; err != nil {
		return g.logError("store_create_notification_failed", err, "recipient_id", n.RecipientID, "event_type", n.EventType)
	}
	return nil
}

func (g *Gorm) SaveAccountStatus(ctx context.Context, status *models.AccountStatus) error {
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"suspended", "updated_at"}),
	}).Create(status).Error
	if err != nil {
		return g.logError("store_save_account_status_failed", err, "user_id", status.UserID)
	}
	return nil
}

func (g *Gorm) GetAccountStatus(ctx context.Context, userID string) (*models.AccountStatus, error) {
	var status models.AccountStatus
	if err := g.db.WithContext(ctx).Where("user_id = ?", userID).First(&status).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, g.logError("store_get_account_status_failed", err, "user_id", userID)
	}
	return &status, nil
}

func (g *Gorm) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+6)
	fields = append(fields,
		"event", event,
		"module", "store",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	g.logger.Error("store operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*Gorm)(nil)
