package service

import (
	"context"
	"time"

	"gpurental-backend/internal/domain"
	"gpurental-backend/internal/lifecycle"
	"gpurental-backend/internal/logger"
	"gpurental-backend/internal/payout"
	"gpurental-backend/internal/reconcile"
)

type rentalService struct {
	machine  *lifecycle.Machine
	store    *reconcile.Store
	catalog  CatalogService
	emailSvc EmailService
}

func NewRentalService(machine *lifecycle.Machine, store *reconcile.Store, catalog CatalogService, emailSvc EmailService) RentalService {
	return &rentalService{
		machine:  machine,
		store:    store,
		catalog:  catalog,
		emailSvc: emailSvc,
	}
}

func (s *rentalService) CreateRental(ctx context.Context, gpuID string, hours int32, renterEmail string) (*domain.RentalRecord, error) {
	gpu, err := s.catalog.GetGPU(ctx, gpuID)
	if err != nil {
		return nil, err
	}

	rec, err := s.machine.Create(ctx, *gpu, hours)
	if err != nil {
		return nil, err
	}

	// Notification failures never fail the rental itself.
	if renterEmail != "" {
		if err := s.emailSvc.SendRentalCreatedNotification(ctx, renterEmail, rec.RentalID,
			gpu.Model, hours, rec.TotalPrice.String()); err != nil {
			logger.Warn("Rental confirmation email failed", "rental_id", rec.RentalID, "error", err)
		}
	}

	return rec, nil
}

func (s *rentalService) GetRental(ctx context.Context, rentalID string) (*domain.RentalRecord, error) {
	return s.store.Get(ctx, rentalID)
}

func (s *rentalService) ListRentals(ctx context.Context) ([]domain.RentalRecord, error) {
	return s.store.List(ctx)
}

func (s *rentalService) VerifyRental(ctx context.Context, rentalID string) (*domain.RentalRecord, error) {
	return s.machine.Verify(ctx, rentalID)
}

func (s *rentalService) ResolveRental(ctx context.Context, rentalID, renterEmail string) (*domain.RentalRecord, *payout.Distribution, error) {
	rec, dist, err := s.machine.Resolve(ctx, rentalID)
	if err != nil {
		return nil, nil, err
	}

	if renterEmail != "" {
		if err := s.emailSvc.SendRentalResolvedNotification(ctx, renterEmail, rec.RentalID,
			rec.GPU.Model, dist.ProviderShare.String(), dist.RenterShare.String()); err != nil {
			logger.Warn("Rental settlement email failed", "rental_id", rec.RentalID, "error", err)
		}
	}

	return rec, dist, nil
}

func (s *rentalService) GetCooldowns(ctx context.Context, rentalID string) (time.Duration, time.Duration, error) {
	return s.machine.Cooldowns(ctx, rentalID)
}

func (s *rentalService) ReconcileRental(ctx context.Context, rentalID string) (*domain.RentalRecord, error) {
	rec, err := s.store.Get(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if rec.CanonicalAddress == "" {
		// Nothing canonical to compare against yet.
		return rec, nil
	}
	return s.store.Reconcile(ctx, rentalID, rec.CanonicalAddress)
}
