// Package memory provides an in-memory RentalRepository for local
// development and tests, mirroring the postgres implementation's behavior.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gpurental-backend/internal/domain"
	"gpurental-backend/internal/repository"
)

type rentalRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.RentalRecord
	times   map[string]domain.ActionTimes
}

func NewRentalRepository() repository.RentalRepository {
	return &rentalRepository{
		records: make(map[string]*domain.RentalRecord),
		times:   make(map[string]domain.ActionTimes),
	}
}

func (r *rentalRepository) Create(ctx context.Context, rec *domain.RentalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[rec.RentalID]; exists {
		return fmt.Errorf("rental %s already exists", rec.RentalID)
	}
	r.records[rec.RentalID] = rec.Clone()
	return nil
}

func (r *rentalRepository) GetByID(ctx context.Context, rentalID string) (*domain.RentalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[rentalID]
	if !ok {
		return nil, fmt.Errorf("rental %s: %w", rentalID, domain.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (r *rentalRepository) Update(ctx context.Context, rec *domain.RentalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.RentalID]; !ok {
		return fmt.Errorf("rental %s: %w", rec.RentalID, domain.ErrNotFound)
	}
	r.records[rec.RentalID] = rec.Clone()
	return nil
}

func (r *rentalRepository) List(ctx context.Context) ([]domain.RentalRecord, error) {
	return r.list(func(*domain.RentalRecord) bool { return true })
}

func (r *rentalRepository) ListUnresolved(ctx context.Context) ([]domain.RentalRecord, error) {
	return r.list(func(rec *domain.RentalRecord) bool {
		return rec.Status != domain.RentalStatusResolved
	})
}

func (r *rentalRepository) list(keep func(*domain.RentalRecord) bool) ([]domain.RentalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.RentalRecord
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, *rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *rentalRepository) GetActionTimes(ctx context.Context, rentalID string) (domain.ActionTimes, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.records[rentalID]; !ok {
		return domain.ActionTimes{}, fmt.Errorf("rental %s: %w", rentalID, domain.ErrNotFound)
	}
	return r.times[rentalID], nil
}

func (r *rentalRepository) SetActionTime(ctx context.Context, rentalID, action string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rentalID]; !ok {
		return fmt.Errorf("rental %s: %w", rentalID, domain.ErrNotFound)
	}
	times := r.times[rentalID]
	switch action {
	case domain.ActionDeposit:
		times.DepositAt = at
	case domain.ActionVerify:
		times.VerifyAt = at
	case domain.ActionResolve:
		times.ResolveAt = at
	default:
		return &domain.ValidationError{Field: "action", Err: domain.ErrOutOfRange, Detail: "unknown gated action " + action}
	}
	r.times[rentalID] = times
	return nil
}
