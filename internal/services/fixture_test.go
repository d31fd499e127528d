package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"jukwaa/internal/apperr"
	"jukwaa/internal/config"
	"jukwaa/internal/models"
	"jukwaa/internal/store"

	"github.com/stretchr/testify/require"
)

var (
	alice = Actor{ID: "alice", Role: models.RoleCitizen, Constituency: "Kibra"}
	bob   = Actor{ID: "bob", Role: models.RoleCitizen, Constituency: "Westlands"}
	carol = Actor{ID: "carol", Role: models.RoleRepresentative}
	mod   = Actor{ID: "mod1", Role: models.RoleModerator}
	admin = Actor{ID: "root", Role: models.RoleAdmin}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(events ...Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) Types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) Last() Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type fakeAccounts struct {
	mu        sync.Mutex
	suspended []string
	activated []string
	err       error
}

func (a *fakeAccounts) Suspend(_ context.Context, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.suspended = append(a.suspended, userID)
	return nil
}

func (a *fakeAccounts) Activate(_ context.Context, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.activated = append(a.activated, userID)
	return nil
}

type recordingRanker struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingRanker) ScheduleUpdate(postID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, postID)
}

type fixture struct {
	ctx        context.Context
	store      *store.Memory
	events     *recordingPublisher
	ranker     *recordingRanker
	clock      *testClock
	cache      *TreeCache
	accounts   *fakeAccounts
	content    *ContentService
	votes      *VoteLedger
	polls      *PollEngine
	reports    *ReportAggregator
	moderation *ModerationEngine
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithPolicy(t, config.DepthPolicyReject)
}

func newFixtureWithPolicy(t *testing.T, policy config.DepthPolicy) *fixture {
	t.Helper()
	cache, err := NewTreeCache(64, time.Minute)
	require.NoError(t, err)

	f := &fixture{
		ctx:      context.Background(),
		store:    store.NewMemory(),
		events:   &recordingPublisher{},
		ranker:   &recordingRanker{},
		clock:    &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		cache:    cache,
		accounts: &fakeAccounts{},
	}
	deps := Deps{
		Store:   f.store,
		Events:  f.events,
		Ranking: f.ranker,
		Cache:   f.cache,
		Clock:   f.clock.Now,
	}
	f.content = NewContentService(deps, ContentConfig{MaxDepth: 5, DepthPolicy: policy})
	f.votes = NewVoteLedger(deps)
	f.polls = NewPollEngine(deps)
	f.reports = NewReportAggregator(deps)
	f.moderation = NewModerationEngine(deps, f.accounts, ModerationConfig{Concurrency: 4, AccountTimeout: time.Second})
	return f
}

func (f *fixture) newPost(t *testing.T, author Actor) *models.Post {
	t.Helper()
	post, err := f.content.CreatePost(f.ctx, author, CreatePostInput{
		Title:    "Borehole repairs in Kibra",
		Body:     "The ward borehole has been **dry** for a week.",
		Category: "infrastructure",
		Tags:     []string{"water"},
	})
	require.NoError(t, err)
	return post
}

func (f *fixture) newPoll(t *testing.T, author Actor, options []string, multiple bool) *models.Post {
	t.Helper()
	post, err := f.content.CreatePost(f.ctx, author, CreatePostInput{
		Title:    "Where should the new clinic go?",
		Body:     "Vote below.",
		Category: "health",
		Poll: &PollInput{
			Question:           "Pick a site",
			Options:            options,
			EndsAt:             f.clock.Now().Add(24 * time.Hour),
			AllowMultipleVotes: multiple,
		},
	})
	require.NoError(t, err)
	return post
}

func (f *fixture) comment(t *testing.T, author Actor, postID string, parent *models.Comment) *models.Comment {
	t.Helper()
	in := CommentInput{Body: "Agreed, this needs attention."}
	if parent != nil {
		in.ParentID = &parent.ID
	}
	c, err := f.content.CreateComment(f.ctx, author, postID, in)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return c
}

func errCode(err error) string {
	if err == nil {
		return ""
	}
	return apperr.From(err).Code
}
