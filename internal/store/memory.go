package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"jukwaa/internal/models"
)

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

type voteKey struct {
	actor   string
	kind    models.ContentKind
	content string
}

type reportKey struct {
	reporter string
	record   string
}

type storedComment struct {
	comment *models.Comment
	seq     int64
}

// Memory keeps everything in maps. Reads hand out clones so callers never
// share slices with the stored copy.
type Memory struct {
	locks *keyedMutex

	mu            sync.RWMutex
	seq           int64
	posts         map[string]*models.Post
	postSeq       map[string]int64
	comments      map[string]storedComment
	votes         map[voteKey]*models.Vote
	records       map[string]*models.ModerationRecord
	reports       map[reportKey]*models.Report
	notifications []*models.Notification
	accounts      map[string]*models.AccountStatus
}

func NewMemory() *Memory {
	return &Memory{
		locks:    &keyedMutex{locks: make(map[string]*refLock)},
		posts:    make(map[string]*models.Post),
		postSeq:  make(map[string]int64),
		comments: make(map[string]storedComment),
		votes:    make(map[voteKey]*models.Vote),
		records:  make(map[string]*models.ModerationRecord),
		reports:  make(map[reportKey]*models.Report),
		accounts: make(map[string]*models.AccountStatus),
	}
}

func (m *Memory) Atomic(ctx context.Context, key string, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := m.locks.lock(key)
	defer unlock()
	return fn(m)
}

func (m *Memory) CreatePost(_ context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.posts[post.ID]; exists {
		return ErrConflict
	}
	stamp(&post.CreatedAt, &post.UpdatedAt)
	m.seq++
	m.postSeq[post.ID] = m.seq
	m.posts[post.ID] = post.Clone()
	return nil
}

func (m *Memory) GetPost(_ context.Context, id string) (*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *Memory) UpdatePost(_ context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.posts[post.ID]
	if !ok {
		return ErrNotFound
	}
	post.UpdatedAt = time.Now()
	next := post.Clone()
	// hot_score 只由排名服务写入
	next.CreatedAt, next.HotScore = prev.CreatedAt, prev.HotScore
	m.posts[post.ID] = next
	return nil
}

func (m *Memory) ListPosts(_ context.Context, filter PostFilter) ([]*models.Post, error) {
	m.mu.RLock()
	matched := make([]*models.Post, 0)
	for _, p := range m.posts {
		if filter.Matches(p) {
			matched = append(matched, p.Clone())
		}
	}
	seqs := make(map[string]int64, len(matched))
	for _, p := range matched {
		seqs[p.ID] = m.postSeq[p.ID]
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if filter.Sort == SortHot && a.HotScore != b.HotScore {
			return a.HotScore > b.HotScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return seqs[a.ID] > seqs[b.ID]
	})

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	if offset >= len(matched) {
		return []*models.Post{}, nil
	}
	end := min(offset+limit, len(matched))
	return matched[offset:end], nil
}

func (m *Memory) SetHotScore(_ context.Context, postID string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return ErrNotFound
	}
	p.HotScore = score
	return nil
}

func (m *Memory) CreateComment(_ context.Context, comment *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.comments[comment.ID]; exists {
		return ErrConflict
	}
	stamp(&comment.CreatedAt, &comment.UpdatedAt)
	m.seq++
	m.comments[comment.ID] = storedComment{comment: comment.Clone(), seq: m.seq}
	return nil
}

func (m *Memory) GetComment(_ context.Context, id string) (*models.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.comment.Clone(), nil
}

func (m *Memory) UpdateComment(_ context.Context, comment *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[comment.ID]
	if !ok {
		return ErrNotFound
	}
	comment.UpdatedAt = time.Now()
	m.comments[comment.ID] = storedComment{comment: comment.Clone(), seq: c.seq}
	return nil
}

func (m *Memory) ListComments(_ context.Context, postID string) ([]*models.Comment, error) {
	m.mu.RLock()
	rows := make([]storedComment, 0)
	for _, c := range m.comments {
		if c.comment.PostID == postID {
			rows = append(rows, storedComment{comment: c.comment.Clone(), seq: c.seq})
		}
	}
	m.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.comment.CreatedAt.Equal(b.comment.CreatedAt) {
			return a.comment.CreatedAt.Before(b.comment.CreatedAt)
		}
		return a.seq < b.seq
	})
	out := make([]*models.Comment, len(rows))
	for i, r := range rows {
		out[i] = r.comment
	}
	return out, nil
}

func (m *Memory) CountComments(_ context.Context, postID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.comments {
		if c.comment.PostID == postID && !c.comment.Removed() {
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetVote(_ context.Context, actorID string, kind models.ContentKind, contentID string) (*models.Vote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.votes[voteKey{actorID, kind, contentID}]
	if !ok {
		return nil, ErrNotFound
	}
	out := *v
	return &out, nil
}

func (m *Memory) SaveVote(_ context.Context, vote *models.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := voteKey{vote.ActorID, vote.ContentKind, vote.ContentID}
	if existing, ok := m.votes[k]; ok {
		vote.ID = existing.ID
		vote.CreatedAt = existing.CreatedAt
	}
	stamp(&vote.CreatedAt, &vote.UpdatedAt)
	vote.UpdatedAt = time.Now()
	out := *vote
	m.votes[k] = &out
	return nil
}

func (m *Memory) DeleteVote(_ context.Context, actorID string, kind models.ContentKind, contentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.votes, voteKey{actorID, kind, contentID})
	return nil
}

func (m *Memory) CountVotes(_ context.Context, kind models.ContentKind, contentID string) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	up, down := 0, 0
	for k, v := range m.votes {
		if k.kind != kind || k.content != contentID {
			continue
		}
		if v.Direction == models.DirectionUp {
			up++
		} else {
			down++
		}
	}
	return up, down, nil
}

func (m *Memory) LatestRecord(_ context.Context, kind models.ContentKind, targetID string) (*models.ModerationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *models.ModerationRecord
	for _, r := range m.records {
		if r.TargetKind != kind || r.TargetID != targetID {
			continue
		}
		if latest == nil || r.Cycle > latest.Cycle {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest.Clone(), nil
}

func (m *Memory) ListRecords(_ context.Context, kind models.ContentKind, targetID string) ([]*models.ModerationRecord, error) {
	m.mu.RLock()
	out := make([]*models.ModerationRecord, 0)
	for _, r := range m.records {
		if r.TargetKind == kind && r.TargetID == targetID {
			out = append(out, r.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Cycle < out[j].Cycle })
	return out, nil
}

func (m *Memory) SaveRecord(_ context.Context, record *models.ModerationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[record.ID]; ok {
		record.CreatedAt = existing.CreatedAt
	}
	stamp(&record.CreatedAt, &record.UpdatedAt)
	record.UpdatedAt = time.Now()
	m.records[record.ID] = record.Clone()
	return nil
}

func (m *Memory) ListQueue(_ context.Context, filter QueueFilter) ([]*models.ModerationRecord, error) {
	m.mu.RLock()
	out := make([]*models.ModerationRecord, 0)
	for _, r := range m.records {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && r.Severity != filter.Severity {
			continue
		}
		out = append(out, r.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	if offset >= len(out) {
		return []*models.ModerationRecord{}, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

func (m *Memory) GetReport(_ context.Context, reporterID string, recordID string) (*models.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[reportKey{reporterID, recordID}]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	return &out, nil
}

func (m *Memory) SaveReport(_ context.Context, report *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := reportKey{report.ReporterID, report.RecordID}
	if existing, ok := m.reports[k]; ok {
		report.ID = existing.ID
		report.CreatedAt = existing.CreatedAt
	}
	stamp(&report.CreatedAt, &report.UpdatedAt)
	report.UpdatedAt = time.Now()
	out := *report
	m.reports[k] = &out
	return nil
}

func (m *Memory) ListReports(_ context.Context, recordID string) ([]*models.Report, error) {
	m.mu.RLock()
	out := make([]*models.Report, 0)
	for k, r := range m.reports {
		if k.record == recordID {
			cp := *r
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CreateNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = uint(len(m.notifications) + 1)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	cp := *n
	m.notifications = append(m.notifications, &cp)
	return nil
}

// Notifications returns what the notification sink wrote, oldest first.
func (m *Memory) Notifications() []models.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Notification, len(m.notifications))
	for i, n := range m.notifications {
		out[i] = *n
	}
	return out
}

func (m *Memory) SaveAccountStatus(_ context.Context, status *models.AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	status.UpdatedAt = time.Now()
	cp := *status
	m.accounts[status.UserID] = &cp
	return nil
}

func (m *Memory) GetAccountStatus(_ context.Context, userID string) (*models.AccountStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.accounts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func stamp(created, updated *time.Time) {
	now := time.Now()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = *created
	}
}

var _ Store = (*Memory)(nil)
