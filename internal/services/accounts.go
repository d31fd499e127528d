package services

import (
	"context"

	"jukwaa/internal/apperr"
	"jukwaa/internal/models"
	"jukwaa/internal/store"
)

// AccountSink is the user-account collaborator the ban transition reports to.
type AccountSink interface {
	Suspend(ctx context.Context, userID string) error
	Activate(ctx context.Context, userID string) error
}

// StoreAccountSink records suspensions in the account_statuses table, which
// the account service reads at sign-in.
type StoreAccountSink struct {
	store store.Store
}

func NewStoreAccountSink(st store.Store) *StoreAccountSink {
	return &StoreAccountSink{store: st}
}

func (s *StoreAccountSink) Suspend(ctx context.Context, userID string) error {
	return s.store.SaveAccountStatus(ctx, &models.AccountStatus{UserID: userID, Suspended: true})
}

// Activate lifts a suspension. Accounts with no suspension on record are
// NotFound.
func (s *StoreAccountSink) Activate(ctx context.Context, userID string) error {
	status, err := s.store.GetAccountStatus(ctx, userID)
	if err != nil {
		return notFound(err, "suspended account")
	}
	if !status.Suspended {
		return apperr.NotFound("suspended account")
	}
	return s.store.SaveAccountStatus(ctx, &models.AccountStatus{UserID: userID, Suspended: false})
}
