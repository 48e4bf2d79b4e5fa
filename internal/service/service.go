package service

import (
	"context"
	"time"

	"gpurental-backend/internal/domain"
	"gpurental-backend/internal/payout"
)

type RentalService interface {
	CreateRental(ctx context.Context, gpuID string, hours int32, renterEmail string) (*domain.RentalRecord, error)
	GetRental(ctx context.Context, rentalID string) (*domain.RentalRecord, error)
	ListRentals(ctx context.Context) ([]domain.RentalRecord, error)
	VerifyRental(ctx context.Context, rentalID string) (*domain.RentalRecord, error)
	ResolveRental(ctx context.Context, rentalID, renterEmail string) (*domain.RentalRecord, *payout.Distribution, error)
	GetCooldowns(ctx context.Context, rentalID string) (verifyRemaining, resolveRemaining time.Duration, err error)
	ReconcileRental(ctx context.Context, rentalID string) (*domain.RentalRecord, error)
}

type CatalogService interface {
	ListGPUs(ctx context.Context) ([]domain.GPU, error)
	GetGPU(ctx context.Context, gpuID string) (*domain.GPU, error)
}

type EmailService interface {
	SendRentalCreatedNotification(ctx context.Context, email, rentalID, gpuModel string, hours int32, totalPrice string) error
	SendRentalResolvedNotification(ctx context.Context, email, rentalID, gpuModel, providerShare, renterShare string) error
}
