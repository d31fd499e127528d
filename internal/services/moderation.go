package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"jukwaa/internal/apperr"
	"jukwaa/internal/metrics"
	"jukwaa/internal/models"
	"jukwaa/internal/store"

	"golang.org/x/sync/errgroup"
)

const maxBulkTargets = 100

// Target names what a moderation record is about.
type Target struct {
	Kind models.ContentKind `json:"kind"`
	ID   string             `json:"id"`
}

// Outcome is the per-target result of a bulk action.
type Outcome struct {
	Target Target                   `json:"target"`
	OK     bool                     `json:"ok"`
	Record *models.ModerationRecord `json:"record,omitempty"`
	Error  *OutcomeError            `json:"error,omitempty"`
}

type OutcomeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type QueueInput struct {
	Status   string `form:"status"`
	Severity string `form:"severity"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

type ModerationConfig struct {
	Concurrency    int
	AccountTimeout time.Duration
}

// ModerationEngine moves moderation records out of pending.
type ModerationEngine struct {
	deps     Deps
	accounts AccountSink
	cfg      ModerationConfig
}

func NewModerationEngine(deps Deps, accounts AccountSink, cfg ModerationConfig) *ModerationEngine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.AccountTimeout <= 0 {
		cfg.AccountTimeout = 3 * time.Second
	}
	return &ModerationEngine{deps: deps.resolve(), accounts: accounts, cfg: cfg}
}

// Moderate applies action to the target's latest record. Only pending
// records move; ban is only valid on user-level records.
func (e *ModerationEngine) Moderate(ctx context.Context, moderator Actor, target Target, action models.ModerationAction, notes string) (*models.ModerationRecord, error) {
	if err := requireModerator(moderator); err != nil {
		return nil, err
	}
	notes = strings.TrimSpace(notes)
	if len(notes) > 1000 {
		return nil, apperr.Validation("notes must be at most 1000 characters")
	}

	var (
		record *models.ModerationRecord
		postID string
	)
	err := e.deps.Store.Atomic(ctx, store.Key(target.Kind, target.ID), func(tx store.Store) error {
		latest, err := tx.LatestRecord(ctx, target.Kind, target.ID)
		if err != nil {
			return notFound(err, "moderation record")
		}
		if latest.Status.Terminal() {
			return apperr.InvalidTransition(string(latest.Status), string(action))
		}
		if action == models.ActionBan && target.Kind != models.KindUser {
			return &apperr.Error{Kind: apperr.KindConflict, Code: apperr.CodeInvalidTransition, Message: "ban requires a user-level report"}
		}

		now := e.deps.Clock()
		latest.Status = action.Outcome()
		latest.ModeratorID = &moderator.ID
		latest.Notes = notes
		latest.DecidedAt = &now
		if err := tx.SaveRecord(ctx, latest); err != nil {
			return err
		}
		pid, err := e.mirrorStatus(ctx, tx, target, latest.Status)
		if err != nil {
			return err
		}
		postID = pid
		record = latest
		return nil
	})
	if err != nil {
		metrics.ModerationDecisionsTotal.WithLabelValues(string(action), "failed").Inc()
		return nil, logInternal(e.deps.Logger, "services/moderation", "moderation_apply_failed", err,
			"moderator_id", moderator.ID, "target_kind", target.Kind, "target_id", target.ID, "action", action)
	}

	metrics.ModerationDecisionsTotal.WithLabelValues(string(action), string(record.Status)).Inc()
	e.deps.Cache.Invalidate(postID)
	e.deps.Events.Publish(Event{
		Type:        EventModerationDecided,
		ContentKind: target.Kind,
		ContentID:   target.ID,
		ActorID:     moderator.ID,
		Metadata: map[string]any{
			"record_id":        record.ID,
			"cycle":            record.Cycle,
			"action":           string(action),
			"status":           string(record.Status),
			"target_author_id": record.TargetAuthorID,
		},
	})
	if record.Status == models.StatusBannedUser {
		e.suspend(ctx, moderator, record)
	}
	return record, nil
}

// suspend tells the account collaborator after commit. A failure is logged
// and leaves the decision in place.
func (e *ModerationEngine) suspend(ctx context.Context, moderator Actor, record *models.ModerationRecord) {
	if e.accounts == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.AccountTimeout)
	defer cancel()
	if err := e.accounts.Suspend(callCtx, record.TargetID); err != nil {
		e.deps.Logger.Error("account suspension failed",
			"event", "moderation_suspend_failed",
			"module", "services/moderation",
			"user_id", record.TargetID,
			"record_id", record.ID,
			"error", err.Error(),
		)
		return
	}
	e.deps.Events.Publish(Event{
		Type:        EventAccountSuspended,
		ContentKind: models.KindUser,
		ContentID:   record.TargetID,
		ActorID:     moderator.ID,
		Metadata:    map[string]any{"record_id": record.ID, "target_author_id": record.TargetID},
	})
}

// mirrorStatus copies the decision onto the reported post or comment and
// returns the post whose tree changed.
func (e *ModerationEngine) mirrorStatus(ctx context.Context, st store.Store, target Target, status models.ModerationStatus) (string, error) {
	contentStatus := models.ContentStatusApproved
	if status == models.StatusRejected {
		contentStatus = models.ContentStatusRejected
	}
	switch target.Kind {
	case models.KindPost:
		post, err := st.GetPost(ctx, target.ID)
		if err != nil {
			return "", notFound(err, "post")
		}
		post.Status = contentStatus
		return post.ID, st.UpdatePost(ctx, post)
	case models.KindComment:
		c, err := st.GetComment(ctx, target.ID)
		if err != nil {
			return "", notFound(err, "comment")
		}
		c.Status = contentStatus
		return c.PostID, st.UpdateComment(ctx, c)
	}
	return "", nil
}

// ModerateMany applies action to each target on its own. The result lists
// one outcome per target in input order; one failure never affects another.
func (e *ModerationEngine) ModerateMany(ctx context.Context, moderator Actor, targets []Target, action models.ModerationAction, notes string) ([]Outcome, error) {
	if len(targets) > maxBulkTargets {
		return nil, apperr.Validation("at most %d targets per bulk action", maxBulkTargets)
	}
	outcomes := make([]Outcome, len(targets))

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, t := range targets {
		g.Go(func() error {
			record, err := e.Moderate(ctx, moderator, t, action, notes)
			out := Outcome{Target: t, OK: err == nil, Record: record}
			if err != nil {
				appErr := apperr.From(err)
				out.Error = &OutcomeError{Code: appErr.Code, Message: appErr.Message}
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	e.deps.Logger.Info("bulk moderation applied",
		"event", "moderation_bulk_applied",
		"module", "services/moderation",
		"moderator_id", moderator.ID,
		"action", action,
		"targets", len(targets),
		"succeeded", countOK(outcomes),
	)
	return outcomes, nil
}

func countOK(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.OK {
			n++
		}
	}
	return n
}

// ListQueue returns records for review, most severe first, then oldest.
func (e *ModerationEngine) ListQueue(ctx context.Context, moderator Actor, in QueueInput) ([]*models.ModerationRecord, error) {
	if err := requireModerator(moderator); err != nil {
		return nil, err
	}
	filter := store.QueueFilter{Status: models.StatusPending, Limit: in.Limit, Offset: in.Offset}
	if in.Status != "" {
		status, err := models.ParseModerationStatus(in.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}
	if in.Severity != "" {
		severity, err := models.ParseSeverity(in.Severity)
		if err != nil {
			return nil, err
		}
		filter.Severity = severity
	}
	records, err := e.deps.Store.ListQueue(ctx, filter)
	if err != nil {
		return nil, logInternal(e.deps.Logger, "services/moderation", "moderation_list_queue_failed", err)
	}
	return records, nil
}

// History returns every cycle recorded for a target, oldest first.
func (e *ModerationEngine) History(ctx context.Context, moderator Actor, target Target) ([]*models.ModerationRecord, error) {
	if err := requireModerator(moderator); err != nil {
		return nil, err
	}
	records, err := e.deps.Store.ListRecords(ctx, target.Kind, target.ID)
	if err != nil {
		return nil, logInternal(e.deps.Logger, "services/moderation", "moderation_history_failed", err,
			"target_kind", target.Kind, "target_id", target.ID)
	}
	if len(records) == 0 {
		return nil, apperr.NotFound("moderation record")
	}
	return records, nil
}

// ReinstateUser lifts an account suspension. Closed records stay as they are.
func (e *ModerationEngine) ReinstateUser(ctx context.Context, moderator Actor, userID string) error {
	if err := requireModerator(moderator); err != nil {
		return err
	}
	if moderator.Role != models.RoleAdmin {
		return apperr.Forbidden("admin role required")
	}
	if strings.TrimSpace(userID) == "" {
		return apperr.Validation("user id is required")
	}
	if e.accounts == nil {
		return apperr.Internal(errors.New("no account collaborator configured"))
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.AccountTimeout)
	defer cancel()
	if err := e.accounts.Activate(callCtx, userID); err != nil {
		return logInternal(e.deps.Logger, "services/moderation", "moderation_reinstate_failed", err, "user_id", userID)
	}
	e.deps.Events.Publish(Event{
		Type:        EventAccountActivated,
		ContentKind: models.KindUser,
		ContentID:   userID,
		ActorID:     moderator.ID,
		Metadata:    map[string]any{"target_author_id": userID},
	})
	return nil
}
