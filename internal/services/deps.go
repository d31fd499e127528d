package services

import (
	"log/slog"
	"time"

	"jukwaa/internal/apperr"
	"jukwaa/internal/models"
	"jukwaa/internal/store"
)

// Actor is the caller as resolved from the session. The zero value is an
// anonymous caller.
type Actor struct {
	ID           string
	Role         models.Role
	Constituency string
}

func (a Actor) Anonymous() bool { return a.ID == "" }

func (a Actor) CanModerate() bool { return !a.Anonymous() && a.Role.CanModerate() }

func (a Actor) filter() store.PostFilter {
	return store.PostFilter{
		ViewerID:           a.ID,
		ViewerConstituency: a.Constituency,
		ViewerModerator:    a.CanModerate(),
	}
}

func requireActor(a Actor) error {
	if a.Anonymous() {
		return apperr.ErrUnauthorized
	}
	return nil
}

func requireModerator(a Actor) error {
	if a.Anonymous() {
		return apperr.ErrUnauthorized
	}
	if !a.Role.CanModerate() {
		return apperr.Forbidden("moderator role required")
	}
	return nil
}

// Ranker schedules an asynchronous hot score recomputation.
type Ranker interface {
	ScheduleUpdate(postID string)
}

type nopRanker struct{}

func (nopRanker) ScheduleUpdate(string) {}

// Deps is what every service is built from.
type Deps struct {
	Store   store.Store
	Events  Publisher
	Ranking Ranker
	Cache   *TreeCache
	Clock   func() time.Time
	Logger  *slog.Logger
}

func (d Deps) resolve() Deps {
	if d.Events == nil {
		d.Events = discardPublisher{}
	}
	if d.Ranking == nil {
		d.Ranking = nopRanker{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	d.Logger = ResolveLogger(d.Logger)
	return d
}

// ResolveLogger guarantees a non-nil logger for service code paths.
func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
