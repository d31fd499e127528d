package services

import (
	"testing"
	"time"

	"jukwaa/internal/apperr"
	"jukwaa/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleChoicePollMovesVote(t *testing.T) {
	f := newFixture(t)
	post := f.newPoll(t, carol, []string{"A", "B"}, false)

	_, err := f.polls.VoteOnPoll(f.ctx, alice, post.ID, 0)
	require.NoError(t, err)
	tally, err := f.polls.VoteOnPoll(f.ctx, alice, post.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, tally.TotalVotes)
	assert.Equal(t, 0, tally.Options[0].Votes)
	assert.Equal(t, 1, tally.Options[1].Votes)
	assert.Equal(t, []int{1}, tally.ActorChoices)
	assert.Equal(t, 0, f.events.Last().Metadata["switched_from"])

	stored, err := f.store.GetPost(f.ctx, post.ID)
	require.NoError(t, err)
	assert.False(t, stored.Poll.Options[0].HasVoter("alice"))
	assert.True(t, stored.Poll.Options[1].HasVoter("alice"))
}

func TestPollSameOptionIsNoop(t *testing.T) {
	f := newFixture(t)
	post := f.newPoll(t, carol, []string{"A", "B"}, false)

	_, err := f.polls.VoteOnPoll(f.ctx, alice, post.ID, 0)
	require.NoError(t, err)
	events := len(f.events.Types())

	tally, err := f.polls.VoteOnPoll(f.ctx, alice, post.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.TotalVotes)
	assert.Len(t, f.events.Types(), events)
}

func TestMultiChoicePollCountsEachOption(t *testing.T) {
	f := newFixture(t)
	post := f.newPoll(t, carol, []string{"A", "B", "C"}, true)

	for _, i := range []int{0, 2} {
		_, err := f.polls.VoteOnPoll(f.ctx, alice, post.ID, i)
		require.NoError(t, err)
	}
	tally, err := f.polls.VoteOnPoll(f.ctx, bob, post.ID, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, tally.TotalVotes)
	assert.Equal(t, []int{1, 0, 2}, []int{tally.Options[0].Votes, tally.Options[1].Votes, tally.Options[2].Votes})
	assert.Equal(t, []int{33, 0, 67}, []int{tally.Options[0].Percentage, tally.Options[1].Percentage, tally.Options[2].Percentage})

	mine, err := f.polls.Tally(f.ctx, alice, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, mine.ActorChoices)
}

func TestPollErrorPrecedence(t *testing.T) {
	f := newFixture(t)
	poll := f.newPoll(t, carol, []string{"A", "B"}, false)
	plain := f.newPost(t, carol)

	_, err := f.polls.VoteOnPoll(f.ctx, alice, plain.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "post without a poll")

	_, err = f.polls.VoteOnPoll(f.ctx, alice, poll.ID, 2)
	assert.ErrorIs(t, err, apperr.ErrInvalidOption)
	_, err = f.polls.VoteOnPoll(f.ctx, alice, poll.ID, -1)
	assert.ErrorIs(t, err, apperr.ErrInvalidOption)

	f.clock.Advance(24 * time.Hour)
	_, err = f.polls.VoteOnPoll(f.ctx, alice, poll.ID, 2)
	assert.ErrorIs(t, err, apperr.ErrPollClosed, "closed wins over a bad option")
	assert.Equal(t, apperr.CodePollClosed, errCode(err))

	tally, err := f.polls.Tally(f.ctx, alice, poll.ID)
	require.NoError(t, err)
	assert.True(t, tally.Closed)

	_, err = f.polls.VoteOnPoll(f.ctx, Actor{}, poll.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestClosedPollIgnoresEarlierVotes(t *testing.T) {
	f := newFixture(t)
	poll := f.newPoll(t, carol, []string{"A", "B"}, false)
	_, err := f.polls.VoteOnPoll(f.ctx, bob, poll.ID, 0)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	_, err = f.polls.VoteOnPoll(f.ctx, bob, poll.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrPollClosed, "repeating the same option")
	_, err = f.polls.VoteOnPoll(f.ctx, bob, poll.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrPollClosed, "switching options")

	tally, err := f.polls.Tally(f.ctx, bob, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.TotalVotes)
	assert.Equal(t, []int{1, 0}, []int{tally.Options[0].Votes, tally.Options[1].Votes})
	assert.Equal(t, []int{0}, tally.ActorChoices)
}

func TestTallyPollPercentages(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := &models.Poll{
		Question: "Pick one",
		EndsAt:   now.Add(time.Hour),
		Options: []models.PollOption{
			{Text: "A", Voters: []string{"u1"}},
			{Text: "B", Voters: []string{"u2"}},
			{Text: "C", Voters: []string{"u3"}},
		},
	}
	tally := TallyPoll(p, now, "u2")
	for _, o := range tally.Options {
		assert.Equal(t, 33, o.Percentage)
		assert.GreaterOrEqual(t, o.Percentage, 0)
		assert.LessOrEqual(t, o.Percentage, 100)
	}
	assert.Equal(t, []int{1}, tally.ActorChoices)
	assert.False(t, tally.Closed)

	empty := TallyPoll(&models.Poll{Question: "Pick one", EndsAt: now, Options: []models.PollOption{{Text: "A"}, {Text: "B"}}}, now, "")
	assert.Equal(t, 0, empty.TotalVotes)
	assert.Equal(t, 0, empty.Options[0].Percentage)
	assert.True(t, empty.Closed, "a poll is closed at its end time")
}

func TestContentTreeIncludesPoll(t *testing.T) {
	f := newFixture(t)
	post := f.newPoll(t, carol, []string{"Kibera", "Langata"}, false)
	_, err := f.polls.VoteOnPoll(f.ctx, bob, post.ID, 1)
	require.NoError(t, err)

	tree, err := f.content.GetContentTree(f.ctx, alice, post.ID)
	require.NoError(t, err)
	require.NotNil(t, tree.Poll)
	assert.Equal(t, 1, tree.Poll.TotalVotes)
	assert.Equal(t, 100, tree.Poll.Options[1].Percentage)
	assert.Empty(t, tree.Poll.ActorChoices, "cached trees carry no viewer state")
}
