// Package store persists the engagement aggregates. Services depend only on
// the Store interface; the memory adapter backs tests and STORAGE=memory, the
// gorm adapter backs postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"jukwaa/internal/models"
)

var (
	ErrNotFound = errors.New("store: record not found")
	ErrConflict = errors.New("store: conflicting record")
)

// Store is the persistence port shared by every service.
type Store interface {
	// Atomic runs fn as one unit against the aggregate named by key. Calls
	// with the same key never interleave; different keys run in parallel.
	// fn must use the Store it is handed, not the outer one.
	Atomic(ctx context.Context, key string, fn func(tx Store) error) error

	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	UpdatePost(ctx context.Context, post *models.Post) error
	ListPosts(ctx context.Context, filter PostFilter) ([]*models.Post, error)
	SetHotScore(ctx context.Context, postID string, score float64) error

	CreateComment(ctx context.Context, comment *models.Comment) error
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	UpdateComment(ctx context.Context, comment *models.Comment) error
	// ListComments returns every comment of a post ordered by creation.
	ListComments(ctx context.Context, postID string) ([]*models.Comment, error)
	CountComments(ctx context.Context, postID string) (int, error)

	GetVote(ctx context.Context, actorID string, kind models.ContentKind, contentID string) (*models.Vote, error)
	// SaveVote inserts or overwrites the vote for (actor, kind, content).
	SaveVote(ctx context.Context, vote *models.Vote) error
	DeleteVote(ctx context.Context, actorID string, kind models.ContentKind, contentID string) error
	CountVotes(ctx context.Context, kind models.ContentKind, contentID string) (up int, down int, err error)

	// LatestRecord returns the highest cycle recorded for the target.
	LatestRecord(ctx context.Context, kind models.ContentKind, targetID string) (*models.ModerationRecord, error)
	ListRecords(ctx context.Context, kind models.ContentKind, targetID string) ([]*models.ModerationRecord, error)
	SaveRecord(ctx context.Context, record *models.ModerationRecord) error
	ListQueue(ctx context.Context, filter QueueFilter) ([]*models.ModerationRecord, error)

	GetReport(ctx context.Context, reporterID string, recordID string) (*models.Report, error)
	// SaveReport upserts on (reporter, record).
	SaveReport(ctx context.Context, report *models.Report) error
	ListReports(ctx context.Context, recordID string) ([]*models.Report, error)

	CreateNotification(ctx context.Context, n *models.Notification) error
	SaveAccountStatus(ctx context.Context, status *models.AccountStatus) error
	GetAccountStatus(ctx context.Context, userID string) (*models.AccountStatus, error)
}

// Key names the lock scope of one aggregate.
func Key(kind models.ContentKind, id string) string {
	return fmt.Sprintf("%s:%s", kind, id)
}

type SortOrder string

const (
	SortNew SortOrder = "new"
	SortHot SortOrder = "hot"
)

// PostFilter selects listed posts. Viewer fields decide which private and
// constituency posts are included.
type PostFilter struct {
	Category     models.Category
	Tag          string
	County       string
	Constituency string
	Ward         string
	Sort         SortOrder
	Limit        int
	Offset       int

	ViewerID           string
	ViewerConstituency string
	ViewerModerator    bool
}

// Matches applies the filter to one post, mirroring the SQL the gorm
// adapter builds.
func (f PostFilter) Matches(p *models.Post) bool {
	if p.Hidden() {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Tag != "" && !slices.Contains(p.Tags, f.Tag) {
		return false
	}
	if f.County != "" && p.Location.County != f.County {
		return false
	}
	if f.Constituency != "" && p.Location.Constituency != f.Constituency {
		return false
	}
	if f.Ward != "" && p.Location.Ward != f.Ward {
		return false
	}
	return f.Visible(p)
}

// Visible reports whether the viewer may read the post at all.
func (f PostFilter) Visible(p *models.Post) bool {
	if f.ViewerID != "" && p.AuthorID == f.ViewerID {
		return true
	}
	switch p.Visibility {
	case models.VisibilityPrivate:
		return false
	case models.VisibilityConstituency:
		if f.ViewerModerator {
			return true
		}
		return f.ViewerConstituency != "" && f.ViewerConstituency == p.Location.Constituency
	}
	return true
}

type QueueFilter struct {
	Status   models.ModerationStatus
	Severity models.Severity
	Limit    int
	Offset   int
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
