package repository

import (
	"context"
	"time"

	"gpurental-backend/internal/domain"
)

// RentalRepository is the local persistence behind the reconciliation store:
// a mapping from rental id to the serialized record, plus the gated-action
// timestamps cooldowns are derived from. It is a best-effort mirror of the
// canonical copy, not a source of truth.
type RentalRepository interface {
	Create(ctx context.Context, rec *domain.RentalRecord) error
	GetByID(ctx context.Context, rentalID string) (*domain.RentalRecord, error)
	// Update replaces the stored record wholesale. Reconciliation uses it to
	// adopt a canonical copy that is ahead of the local one.
	Update(ctx context.Context, rec *domain.RentalRecord) error
	// List returns all records ordered by creation time descending.
	List(ctx context.Context) ([]domain.RentalRecord, error)
	// ListUnresolved returns records not yet RESOLVED, for reconciliation sweeps.
	ListUnresolved(ctx context.Context) ([]domain.RentalRecord, error)

	GetActionTimes(ctx context.Context, rentalID string) (domain.ActionTimes, error)
	SetActionTime(ctx context.Context, rentalID, action string, at time.Time) error
}
