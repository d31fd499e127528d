package services

import (
	"sync"
	"testing"

	"jukwaa/internal/apperr"
	"jukwaa/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleVoteAddsThenRemoves(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t, alice)
	c := f.comment(t, alice, post.ID, nil)

	tally, err := f.votes.ToggleVote(f.ctx, bob, models.KindComment, c.ID, models.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Score)
	assert.Equal(t, VoteAdded, tally.Outcome)
	require.NotNil(t, tally.ActorVote)
	assert.Equal(t, models.DirectionUp, *tally.ActorVote)

	tally, err = f.votes.ToggleVote(f.ctx, bob, models.KindComment, c.ID, models.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, 0, tally.Score)
	assert.Equal(t, VoteRemoved, tally.Outcome)
	assert.Nil(t, tally.ActorVote)
}

func TestToggleVoteSwitchesInOneCall(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t, alice)
	c := f.comment(t, alice, post.ID, nil)

	_, err := f.votes.ToggleVote(f.ctx, bob, models.KindComment, c.ID, models.DirectionUp)
	require.NoError(t, err)

	tally, err := f.votes.ToggleVote(f.ctx, bob, models.KindComment, c.ID, models.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, -1, tally.Score)
	assert.Equal(t, 0, tally.Upvotes)
	assert.Equal(t, 1, tally.Downvotes)
	assert.Equal(t, VoteSwitched, tally.Outcome)

	ev := f.events.Last()
	assert.Equal(t, EventVoteChanged, ev.Type)
	assert.Equal(t, "switched", ev.Metadata["outcome"])
	assert.Equal(t, "down", ev.Metadata["direction"])
}

func TestToggleVoteTwiceRestoresState(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t, alice)
	_, err := f.votes.ToggleVote(f.ctx, carol, models.KindPost, post.ID, models.DirectionDown)
	require.NoError(t, err)

	before, err := f.votes.GetTally(f.ctx, bob, models.KindPost, post.ID)
	require.NoError(t, err)
	for _, dir := range []models.Direction{models.DirectionUp, models.DirectionDown} {
		_, err := f.votes.ToggleVote(f.ctx, bob, models.KindPost, post.ID, dir)
		require.NoError(t, err)
		_, err = f.votes.ToggleVote(f.ctx, bob, models.KindPost, post.ID, dir)
		require.NoError(t, err)

		after, err := f.votes.GetTally(f.ctx, bob, models.KindPost, post.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Score, after.Score, dir)
		assert.Nil(t, after.ActorVote, dir)
	}
}

func TestConcurrentVotesKeepOneVotePerActor(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t, alice)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dir := models.DirectionUp
			if i%2 == 1 {
				dir = models.DirectionDown
			}
			_, err := f.votes.ToggleVote(f.ctx, bob, models.KindPost, post.ID, dir)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	tally, err := f.votes.GetTally(f.ctx, bob, models.KindPost, post.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, tally.Upvotes+tally.Downvotes, 1)
	assert.Equal(t, tally.Upvotes-tally.Downvotes, tally.Score)
}

func TestSetVoteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t, alice)
	up := models.DirectionUp

	for i := 0; i < 3; i++ {
		tally, err := f.votes.SetVote(f.ctx, bob, models.KindPost, post.ID, &up)
		require.NoError(t, err)
		assert.Equal(t, 1, tally.Score)
	}
	assert.Equal(t, []EventType{EventPostCreated, EventVoteChanged}, f.events.Types(), "repeats emit nothing")

	tally, err := f.votes.SetVote(f.ctx, bob, models.KindPost, post.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, VoteRemoved, tally.Outcome)
	assert.Equal(t, 0, tally.Score)

	tally, err = f.votes.SetVote(f.ctx, bob, models.KindPost, post.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, VoteUnchanged, tally.Outcome)
}

func TestVoteRejections(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t, alice)
	c := f.comment(t, bob, post.ID, nil)
	require.NoError(t, f.content.DeleteComment(f.ctx, bob, c.ID))

	_, err := f.votes.ToggleVote(f.ctx, Actor{}, models.KindPost, post.ID, models.DirectionUp)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.votes.ToggleVote(f.ctx, bob, models.KindComment, c.ID, models.DirectionUp)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "deleted comment")

	_, err = f.votes.ToggleVote(f.ctx, bob, models.KindPost, "missing", models.DirectionUp)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.votes.ToggleVote(f.ctx, bob, models.KindUser, "alice", models.DirectionUp)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, f.content.DeletePost(f.ctx, alice, post.ID))
	_, err = f.votes.ToggleVote(f.ctx, bob, models.KindPost, post.ID, models.DirectionUp)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "deleted post")
}

func TestVoteInvalidatesTreeAndSchedulesRanking(t *testing.T) {
	f := newFixture(t)
	post := f.newPost(t, alice)
	c := f.comment(t, alice, post.ID, nil)
	_, err := f.content.GetContentTree(f.ctx, bob, post.ID)
	require.NoError(t, err)

	_, err = f.votes.ToggleVote(f.ctx, bob, models.KindComment, c.ID, models.DirectionUp)
	require.NoError(t, err)
	_, cached := f.cache.Get(post.ID)
	assert.False(t, cached)

	tree, err := f.content.GetContentTree(f.ctx, bob, post.ID)
	require.NoError(t, err)
	require.Len(t, tree.Comments, 1)
	assert.Equal(t, 1, tree.Comments[0].Score)
	assert.Contains(t, f.ranker.ids, post.ID)
}
