package services

import (
	"context"
	"math"
	"time"

	"jukwaa/internal/apperr"
	"jukwaa/internal/metrics"
	"jukwaa/internal/models"
	"jukwaa/internal/store"
)

// PollTally is the public view of a poll. Percentages are rounded one by
// one and so may not add up to exactly 100.
type PollTally struct {
	PostID             string        `json:"post_id,omitempty"`
	Question           string        `json:"question"`
	EndsAt             time.Time     `json:"ends_at"`
	Closed             bool          `json:"closed"`
	AllowMultipleVotes bool          `json:"allow_multiple_votes"`
	TotalVotes         int           `json:"total_votes"`
	Options            []OptionTally `json:"options"`
	ActorChoices       []int         `json:"actor_choices,omitempty"`
}

type OptionTally struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	Votes      int    `json:"votes"`
	Percentage int    `json:"percentage"`
}

// TallyPoll counts votes and percentages. actorID, when set, fills the
// options that actor picked.
func TallyPoll(p *models.Poll, now time.Time, actorID string) *PollTally {
	t := &PollTally{
		Question:           p.Question,
		EndsAt:             p.EndsAt,
		Closed:             p.Closed(now),
		AllowMultipleVotes: p.AllowMultipleVotes,
		Options:            make([]OptionTally, len(p.Options)),
	}
	for _, o := range p.Options {
		t.TotalVotes += len(o.Voters)
	}
	for i, o := range p.Options {
		pct := 0
		if t.TotalVotes > 0 {
			pct = int(math.Round(100 * float64(len(o.Voters)) / float64(t.TotalVotes)))
		}
		t.Options[i] = OptionTally{Index: i, Text: o.Text, Votes: len(o.Voters), Percentage: pct}
		if actorID != "" && o.HasVoter(actorID) {
			t.ActorChoices = append(t.ActorChoices, i)
		}
	}
	return t
}

// PollEngine records poll votes on posts that carry a poll.
type PollEngine struct {
	deps Deps
}

func NewPollEngine(deps Deps) *PollEngine {
	return &PollEngine{deps: deps.resolve()}
}

// VoteOnPoll checks, in order: the post has a poll, the poll is open, the
// option exists. Single-choice polls move the actor's vote; picking the same
// option again is a no-op. Polls have no un-vote.
func (e *PollEngine) VoteOnPoll(ctx context.Context, actor Actor, postID string, optionIndex int) (*PollTally, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var (
		result   *PollTally
		changed  bool
		switched = -1
	)
	err := e.deps.Store.Atomic(ctx, store.Key(models.KindPost, postID), func(tx store.Store) error {
		post, err := e.loadPoll(ctx, tx, actor, postID)
		if err != nil {
			return err
		}
		poll := post.Poll
		now := e.deps.Clock()
		if poll.Closed(now) {
			return apperr.ErrPollClosed
		}
		if optionIndex < 0 || optionIndex >= len(poll.Options) {
			return apperr.InvalidOption(optionIndex, len(poll.Options))
		}

		if !poll.Options[optionIndex].HasVoter(actor.ID) {
			if !poll.AllowMultipleVotes {
				for i := range poll.Options {
					if poll.Options[i].RemoveVoter(actor.ID) {
						switched = i
					}
				}
			}
			poll.Options[optionIndex].AddVoter(actor.ID)
			changed = true
			if err := tx.UpdatePost(ctx, post); err != nil {
				return err
			}
		}
		result = TallyPoll(poll, now, actor.ID)
		result.PostID = postID
		return nil
	})
	if err != nil {
		metrics.PollVotesTotal.WithLabelValues(pollResult(err)).Inc()
		return nil, logInternal(e.deps.Logger, "services/polls", "poll_vote_failed", err,
			"actor_id", actor.ID, "post_id", postID, "option", optionIndex)
	}

	if !changed {
		metrics.PollVotesTotal.WithLabelValues("unchanged").Inc()
		return result, nil
	}
	metrics.PollVotesTotal.WithLabelValues("recorded").Inc()
	meta := map[string]any{"option_index": optionIndex, "total_votes": result.TotalVotes}
	if switched >= 0 {
		meta["switched_from"] = switched
	}
	e.deps.Cache.Invalidate(postID)
	e.deps.Ranking.ScheduleUpdate(postID)
	e.deps.Events.Publish(Event{
		Type:        EventPollVoted,
		ContentKind: models.KindPost,
		ContentID:   postID,
		ActorID:     actor.ID,
		Metadata:    meta,
	})
	return result, nil
}

// Tally returns the current poll state; the viewer's own choices are included
// when signed in.
func (e *PollEngine) Tally(ctx context.Context, viewer Actor, postID string) (*PollTally, error) {
	post, err := e.loadPoll(ctx, e.deps.Store, viewer, postID)
	if err != nil {
		return nil, logInternal(e.deps.Logger, "services/polls", "poll_tally_failed", err, "post_id", postID)
	}
	t := TallyPoll(post.Poll, e.deps.Clock(), viewer.ID)
	t.PostID = postID
	return t, nil
}

func (e *PollEngine) loadPoll(ctx context.Context, st store.Store, actor Actor, postID string) (*models.Post, error) {
	post, err := st.GetPost(ctx, postID)
	if err != nil {
		return nil, notFound(err, "poll")
	}
	if post.Hidden() || post.Poll == nil || !actor.filter().Visible(post) {
		return nil, apperr.NotFound("poll")
	}
	return post, nil
}

func pollResult(err error) string {
	switch apperr.From(err).Code {
	case apperr.CodePollClosed:
		return "closed"
	case apperr.CodeInvalidOption:
		return "invalid_option"
	case apperr.CodeNotFound:
		return "not_found"
	}
	return "error"
}
