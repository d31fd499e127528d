package services

import (
	"context"
	"errors"
	"slices"
	"strings"

	"jukwaa/internal/apperr"
	"jukwaa/internal/metrics"
	"jukwaa/internal/models"
	"jukwaa/internal/store"
)

const highSeverityReportCount = 5

type FileReportInput struct {
	TargetKind string `json:"target_kind" validate:"required"`
	TargetID   string `json:"target_id" validate:"required,max=64"`
	Reason     string `json:"reason" validate:"required"`
	Details    string `json:"details" validate:"max=500"`
}

// ComputeSeverity is high at five reports or any sensitive reason, medium
// from two reports, otherwise low.
func ComputeSeverity(count int, reasons []models.ReportReason) models.Severity {
	if count >= highSeverityReportCount || slices.ContainsFunc(reasons, models.ReportReason.Sensitive) {
		return models.SeverityHigh
	}
	if count >= 2 {
		return models.SeverityMedium
	}
	return models.SeverityLow
}

// ReportAggregator folds reports into the open moderation record of a target.
type ReportAggregator struct {
	deps Deps
}

func NewReportAggregator(deps Deps) *ReportAggregator {
	return &ReportAggregator{deps: deps.resolve()}
}

// FileReport upserts the reporter's report in the target's open cycle,
// opening a new cycle when the last one is closed, and returns the pending
// record with its recomputed severity.
func (a *ReportAggregator) FileReport(ctx context.Context, reporter Actor, in FileReportInput) (*models.ModerationRecord, error) {
	if err := requireActor(reporter); err != nil {
		return nil, err
	}
	in.TargetID = strings.TrimSpace(in.TargetID)
	in.Details = strings.TrimSpace(in.Details)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	kind, err := models.ParseContentKind(in.TargetKind)
	if err != nil {
		return nil, err
	}
	reason, err := models.ParseReportReason(in.Reason)
	if err != nil {
		return nil, err
	}
	if reason == models.ReasonOther && in.Details == "" {
		return nil, apperr.Validation("details are required when reason is other")
	}
	if kind == models.KindUser && in.TargetID == reporter.ID {
		return nil, apperr.Validation("you cannot report yourself")
	}

	var (
		record *models.ModerationRecord
		postID string
	)
	err = a.deps.Store.Atomic(ctx, store.Key(kind, in.TargetID), func(tx store.Store) error {
		authorID, pid, err := a.resolveTarget(ctx, tx, reporter, kind, in.TargetID)
		if err != nil {
			return err
		}
		postID = pid

		record, err = a.openRecord(ctx, tx, kind, in.TargetID, authorID)
		if err != nil {
			return err
		}

		report := &models.Report{
			ID:         newID(),
			ReporterID: reporter.ID,
			RecordID:   record.ID,
			TargetKind: kind,
			TargetID:   in.TargetID,
			Reason:     reason,
			Details:    in.Details,
		}
		existing, err := tx.GetReport(ctx, reporter.ID, record.ID)
		switch {
		case err == nil:
			report.ID = existing.ID
			report.CreatedAt = existing.CreatedAt
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		if err := tx.SaveReport(ctx, report); err != nil {
			return err
		}

		reports, err := tx.ListReports(ctx, record.ID)
		if err != nil {
			return err
		}
		record.ReportCount = len(reports)
		record.Reasons = record.Reasons[:0]
		for _, r := range reports {
			if !slices.Contains(record.Reasons, r.Reason) {
				record.Reasons = append(record.Reasons, r.Reason)
			}
		}
		record.Severity = ComputeSeverity(record.ReportCount, record.Reasons)
		if err := tx.SaveRecord(ctx, record); err != nil {
			return err
		}
		return a.markPending(ctx, tx, kind, in.TargetID)
	})
	if err != nil {
		return nil, logInternal(a.deps.Logger, "services/reports", "report_file_failed", err,
			"reporter_id", reporter.ID, "target_kind", kind, "target_id", in.TargetID)
	}

	metrics.ReportsTotal.WithLabelValues(string(kind), string(reason)).Inc()
	a.deps.Cache.Invalidate(postID)
	a.deps.Events.Publish(Event{
		Type:        EventReportFiled,
		ContentKind: kind,
		ContentID:   in.TargetID,
		ActorID:     reporter.ID,
		Metadata: map[string]any{
			"record_id":    record.ID,
			"cycle":        record.Cycle,
			"reason":       string(reason),
			"report_count": record.ReportCount,
			"severity":     string(record.Severity),
		},
	})
	return record, nil
}

// resolveTarget returns the author behind the target and, for content, the
// post it lives on. Users are owned by the account service and are taken as
// given.
func (a *ReportAggregator) resolveTarget(ctx context.Context, st store.Store, reporter Actor, kind models.ContentKind, id string) (string, string, error) {
	switch kind {
	case models.KindPost:
		post, err := st.GetPost(ctx, id)
		if err != nil {
			return "", "", notFound(err, "post")
		}
		if post.Hidden() || !reporter.filter().Visible(post) {
			return "", "", apperr.NotFound("post")
		}
		return post.AuthorID, post.ID, nil
	case models.KindComment:
		c, err := st.GetComment(ctx, id)
		if err != nil {
			return "", "", notFound(err, "comment")
		}
		if c.Removed() {
			return "", "", apperr.NotFound("comment")
		}
		return c.AuthorID, c.PostID, nil
	default:
		return id, "", nil
	}
}

// openRecord returns the pending record for the target, starting a new cycle
// when there is none or the latest one is closed.
func (a *ReportAggregator) openRecord(ctx context.Context, st store.Store, kind models.ContentKind, targetID, authorID string) (*models.ModerationRecord, error) {
	latest, err := st.LatestRecord(ctx, kind, targetID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if latest != nil && latest.Status == models.StatusPending {
		return latest, nil
	}
	cycle := 1
	if latest != nil {
		cycle = latest.Cycle + 1
	}
	now := a.deps.Clock()
	return &models.ModerationRecord{
		ID:             newID(),
		TargetKind:     kind,
		TargetID:       targetID,
		TargetAuthorID: authorID,
		Cycle:          cycle,
		Status:         models.StatusPending,
		Severity:       models.SeverityLow,
		Reasons:        []models.ReportReason{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (a *ReportAggregator) markPending(ctx context.Context, st store.Store, kind models.ContentKind, id string) error {
	switch kind {
	case models.KindPost:
		post, err := st.GetPost(ctx, id)
		if err != nil {
			return err
		}
		if post.Status == models.ContentStatusPending {
			return nil
		}
		post.Status = models.ContentStatusPending
		return st.UpdatePost(ctx, post)
	case models.KindComment:
		c, err := st.GetComment(ctx, id)
		if err != nil {
			return err
		}
		if c.Status == models.ContentStatusPending {
			return nil
		}
		c.Status = models.ContentStatusPending
		return st.UpdateComment(ctx, c)
	}
	return nil
}
