package services

import (
	"context"
	"errors"

	"jukwaa/internal/apperr"
	"jukwaa/internal/metrics"
	"jukwaa/internal/models"
	"jukwaa/internal/store"
)

type VoteOutcome string

const (
	VoteAdded     VoteOutcome = "added"
	VoteRemoved   VoteOutcome = "removed"
	VoteSwitched  VoteOutcome = "switched"
	VoteUnchanged VoteOutcome = "unchanged"
)

// Tally is the score of one post or comment after a vote operation.
type Tally struct {
	ContentKind models.ContentKind `json:"content_kind"`
	ContentID   string             `json:"content_id"`
	Upvotes     int                `json:"upvotes"`
	Downvotes   int                `json:"downvotes"`
	Score       int                `json:"score"`
	Outcome     VoteOutcome        `json:"outcome,omitempty"`
	ActorVote   *models.Direction  `json:"actor_vote"`
}

// VoteLedger keeps at most one directional vote per actor and content.
type VoteLedger struct {
	deps Deps
}

func NewVoteLedger(deps Deps) *VoteLedger {
	return &VoteLedger{deps: deps.resolve()}
}

// ToggleVote adds, removes or switches the actor's vote. Repeating the same
// call reverses it, so retrying after a timeout is not safe; use SetVote for
// retryable clients.
func (l *VoteLedger) ToggleVote(ctx context.Context, actor Actor, kind models.ContentKind, contentID string, dir models.Direction) (*Tally, error) {
	return l.apply(ctx, actor, kind, contentID, func(current *models.Direction) (*models.Direction, VoteOutcome) {
		switch {
		case current == nil:
			return &dir, VoteAdded
		case *current == dir:
			return nil, VoteRemoved
		default:
			return &dir, VoteSwitched
		}
	})
}

// SetVote makes the actor's vote equal dir; nil clears it. Safe to retry.
func (l *VoteLedger) SetVote(ctx context.Context, actor Actor, kind models.ContentKind, contentID string, dir *models.Direction) (*Tally, error) {
	return l.apply(ctx, actor, kind, contentID, func(current *models.Direction) (*models.Direction, VoteOutcome) {
		switch {
		case current == nil && dir == nil:
			return nil, VoteUnchanged
		case current == nil:
			return dir, VoteAdded
		case dir == nil:
			return nil, VoteRemoved
		case *current == *dir:
			return current, VoteUnchanged
		default:
			return dir, VoteSwitched
		}
	})
}

// GetTally reads the score without changing it.
func (l *VoteLedger) GetTally(ctx context.Context, viewer Actor, kind models.ContentKind, contentID string) (*Tally, error) {
	if !kind.Votable() {
		return nil, apperr.Validation("votes apply to posts and comments only")
	}
	if _, err := l.loadTarget(ctx, l.deps.Store, viewer, kind, contentID); err != nil {
		return nil, logInternal(l.deps.Logger, "services/votes", "vote_load_target_failed", err, "content_id", contentID)
	}
	t, err := l.tally(ctx, l.deps.Store, viewer, kind, contentID, "")
	if err != nil {
		return nil, logInternal(l.deps.Logger, "services/votes", "vote_tally_failed", err, "content_id", contentID)
	}
	return t, nil
}

type voteTransition func(current *models.Direction) (*models.Direction, VoteOutcome)

func (l *VoteLedger) apply(ctx context.Context, actor Actor, kind models.ContentKind, contentID string, next voteTransition) (*Tally, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !kind.Votable() {
		return nil, apperr.Validation("votes apply to posts and comments only")
	}

	var (
		result *Tally
		postID string
	)
	err := l.deps.Store.Atomic(ctx, store.Key(kind, contentID), func(tx store.Store) error {
		pid, err := l.loadTarget(ctx, tx, actor, kind, contentID)
		if err != nil {
			return err
		}
		postID = pid

		var current *models.Direction
		existing, err := tx.GetVote(ctx, actor.ID, kind, contentID)
		switch {
		case err == nil:
			current = &existing.Direction
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		want, outcome := next(current)
		switch outcome {
		case VoteAdded, VoteSwitched:
			vote := &models.Vote{
				ID:          newID(),
				ActorID:     actor.ID,
				ContentKind: kind,
				ContentID:   contentID,
				Direction:   *want,
			}
			if existing != nil {
				vote.ID = existing.ID
			}
			if err := tx.SaveVote(ctx, vote); err != nil {
				return err
			}
		case VoteRemoved:
			if err := tx.DeleteVote(ctx, actor.ID, kind, contentID); err != nil {
				return err
			}
		}

		result, err = l.tally(ctx, tx, actor, kind, contentID, outcome)
		return err
	})
	if err != nil {
		return nil, logInternal(l.deps.Logger, "services/votes", "vote_apply_failed", err,
			"actor_id", actor.ID, "content_kind", kind, "content_id", contentID)
	}

	metrics.VotesTotal.WithLabelValues(string(kind), string(result.Outcome)).Inc()
	if result.Outcome == VoteUnchanged {
		return result, nil
	}
	l.deps.Cache.Invalidate(postID)
	l.deps.Ranking.ScheduleUpdate(postID)
	meta := map[string]any{
		"outcome":   string(result.Outcome),
		"score":     result.Score,
		"upvotes":   result.Upvotes,
		"downvotes": result.Downvotes,
	}
	if result.ActorVote != nil {
		meta["direction"] = string(*result.ActorVote)
	}
	l.deps.Events.Publish(Event{
		Type:        EventVoteChanged,
		ContentKind: kind,
		ContentID:   contentID,
		ActorID:     actor.ID,
		Metadata:    meta,
	})
	return result, nil
}

// loadTarget resolves the voted content and returns the post it lives on.
// Missing, tombstoned and moderator-removed content is NotFound.
func (l *VoteLedger) loadTarget(ctx context.Context, st store.Store, actor Actor, kind models.ContentKind, contentID string) (string, error) {
	postID := contentID
	if kind == models.KindComment {
		c, err := st.GetComment(ctx, contentID)
		if err != nil {
			return "", notFound(err, "comment")
		}
		if c.Removed() {
			return "", apperr.NotFound("comment")
		}
		postID = c.PostID
	}
	post, err := st.GetPost(ctx, postID)
	if err != nil {
		return "", notFound(err, string(kind))
	}
	if post.Hidden() || !actor.filter().Visible(post) {
		return "", apperr.NotFound(string(kind))
	}
	return postID, nil
}

func (l *VoteLedger) tally(ctx context.Context, st store.Store, actor Actor, kind models.ContentKind, contentID string, outcome VoteOutcome) (*Tally, error) {
	up, down, err := st.CountVotes(ctx, kind, contentID)
	if err != nil {
		return nil, err
	}
	t := &Tally{
		ContentKind: kind,
		ContentID:   contentID,
		Upvotes:     up,
		Downvotes:   down,
		Score:       up - down,
		Outcome:     outcome,
	}
	if !actor.Anonymous() {
		v, err := st.GetVote(ctx, actor.ID, kind, contentID)
		switch {
		case err == nil:
			t.ActorVote = &v.Direction
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	return t, nil
}
