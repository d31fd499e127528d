package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jukwaa/internal/apperr"
	"jukwaa/internal/models"
	"jukwaa/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	name  string
	mu    sync.Mutex
	got   []Event
	errs  []error
	block bool
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Deliver(ctx context.Context, ev Event) error {
	if s.block {
		<-ctx.Done()
		s.mu.Lock()
		s.errs = append(s.errs, ctx.Err())
		s.mu.Unlock()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, ev)
	return nil
}

func (s *captureSink) events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.got...)
}

func TestDispatcherDeliversToEverySink(t *testing.T) {
	a := &captureSink{name: "a"}
	b := &captureSink{name: "b"}
	d := NewDispatcher([]EventSink{a, b}, 10, time.Second, nil)
	d.Start()

	d.Publish(
		Event{Type: EventPostCreated, ContentID: "p1"},
		Event{Type: EventVoteChanged, ContentID: "p1"},
	)
	require.NoError(t, d.Close(context.Background()))

	for _, sink := range []*captureSink{a, b} {
		got := sink.events()
		require.Len(t, got, 2, sink.name)
		assert.Equal(t, EventPostCreated, got[0].Type)
		assert.Equal(t, EventVoteChanged, got[1].Type)
		assert.False(t, got[0].OccurredAt.IsZero(), "stamped on publish")
	}

	d.Publish(Event{Type: EventPostDeleted})
	assert.Len(t, a.events(), 2, "publish after close is ignored")
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &captureSink{name: "slow"}
	d := NewDispatcher([]EventSink{sink}, 2, time.Second, nil)

	// worker not started, so the queue fills up
	done := make(chan struct{})
	go func() {
		d.Publish(Event{Type: EventPostCreated}, Event{Type: EventPostEdited}, Event{Type: EventPostDeleted})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	d.Start()
	require.NoError(t, d.Close(context.Background()))
	got := sink.events()
	require.Len(t, got, 2)
	assert.Equal(t, EventPostEdited, got[1].Type)
}

func TestDispatcherBoundsSlowSinks(t *testing.T) {
	slow := &captureSink{name: "slow", block: true}
	fast := &captureSink{name: "fast"}
	d := NewDispatcher([]EventSink{slow, fast}, 10, 20*time.Millisecond, nil)
	d.Start()

	d.Publish(Event{Type: EventReportFiled})
	require.NoError(t, d.Close(context.Background()))

	require.Len(t, slow.errs, 1)
	assert.True(t, errors.Is(slow.errs[0], context.DeadlineExceeded))
	assert.Len(t, fast.events(), 1, "a failing sink does not stop the others")
}

func TestNotificationsFor(t *testing.T) {
	cases := []struct {
		name  string
		event Event
		want  []string
	}{
		{
			name:  "reply notifies parent then post author",
			event: Event{Type: EventCommentCreated, ActorID: "carol", Metadata: map[string]any{"post_author_id": "alice", "parent_author_id": "bob"}},
			want:  []string{"bob", "alice"},
		},
		{
			name:  "reply on own post notifies once",
			event: Event{Type: EventCommentCreated, ActorID: "carol", Metadata: map[string]any{"post_author_id": "alice", "parent_author_id": "alice"}},
			want:  []string{"alice"},
		},
		{
			name:  "no self notification",
			event: Event{Type: EventCommentCreated, ActorID: "alice", Metadata: map[string]any{"post_author_id": "alice"}},
		},
		{
			name:  "suspension notifies the user",
			event: Event{Type: EventAccountSuspended, ActorID: "mod1", Metadata: map[string]any{"target_author_id": "troll"}},
			want:  []string{"troll"},
		},
		{
			name:  "votes are silent",
			event: Event{Type: EventVoteChanged, ActorID: "bob", Metadata: map[string]any{"post_author_id": "alice"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got []string
			for _, n := range notificationsFor(tc.event) {
				got = append(got, n.RecipientID)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNotificationSinkWritesRows(t *testing.T) {
	st := store.NewMemory()
	sink := NewNotificationSink(st)
	err := sink.Deliver(context.Background(), Event{
		Type:        EventCommentCreated,
		ContentKind: models.KindComment,
		ContentID:   "c1",
		ActorID:     "bob",
		Metadata:    map[string]any{"post_author_id": "alice", "post_id": "p1"},
	})
	require.NoError(t, err)

	rows := st.Notifications()
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].RecipientID)
	assert.Equal(t, models.NotificationTypeCommentPost, rows[0].Type)
	assert.Equal(t, "c1", rows[0].ContentID)
}

func TestStoreAccountSink(t *testing.T) {
	st := store.NewMemory()
	sink := NewStoreAccountSink(st)
	ctx := context.Background()

	assert.ErrorIs(t, sink.Activate(ctx, "troll"), apperr.ErrNotFound, "never suspended")
	require.NoError(t, sink.Suspend(ctx, "troll"))
	status, err := st.GetAccountStatus(ctx, "troll")
	require.NoError(t, err)
	assert.True(t, status.Suspended)

	require.NoError(t, sink.Activate(ctx, "troll"))
	status, err = st.GetAccountStatus(ctx, "troll")
	require.NoError(t, err)
	assert.False(t, status.Suspended)
	assert.ErrorIs(t, sink.Activate(ctx, "troll"), apperr.ErrNotFound, "already active")
}
