package jobs

import (
	"context"
	"errors"

	"gpurental-backend/internal/domain"
	"gpurental-backend/internal/logger"
)

// ReconcileOpenRentals compares every unresolved rental against its canonical
// copy. Divergent records are repaired or flagged; the sweep never stops on a
// single bad rental.
func (jr *JobRunner) ReconcileOpenRentals() {
	jr.runWithRecovery("ReconcileOpenRentals", func() {
		ctx := context.Background()

		rentals, err := jr.store.ListUnresolved(ctx)
		if err != nil {
			logger.Error("Failed to list unresolved rentals", "error", err)
			return
		}

		reconciled, flagged, failed := 0, 0, 0
		for i := range rentals {
			rec := &rentals[i]
			if rec.CanonicalAddress == "" || rec.IntegrityFlagged {
				continue
			}

			if _, err := jr.store.Reconcile(ctx, rec.RentalID, rec.CanonicalAddress); err != nil {
				if errors.Is(err, domain.ErrIntegrityFault) {
					flagged++
					logger.Warn("Rental flagged during sweep", "rental_id", rec.RentalID, "error", err)
					continue
				}
				failed++
				logger.Error("Failed to reconcile rental", "rental_id", rec.RentalID, "error", err)
				continue
			}
			reconciled++
		}

		logger.Info("Reconciliation sweep finished",
			"checked", len(rentals), "reconciled", reconciled, "flagged", flagged, "failed", failed)
	})
}

// RepublishCanonical publishes rentals that have no canonical copy yet, such
// as after a publish failure during a transition.
func (jr *JobRunner) RepublishCanonical() {
	jr.runWithRecovery("RepublishCanonical", func() {
		ctx := context.Background()

		rentals, err := jr.store.List(ctx)
		if err != nil {
			logger.Error("Failed to list rentals", "error", err)
			return
		}

		published := 0
		for i := range rentals {
			rec := &rentals[i]
			if rec.CanonicalAddress != "" || rec.IntegrityFlagged {
				continue
			}

			if _, err := jr.store.Publish(ctx, rec); err != nil {
				logger.Error("Failed to republish rental", "rental_id", rec.RentalID, "error", err)
				continue
			}
			published++
			logger.Debug("Republished rental", "rental_id", rec.RentalID)
		}

		if published > 0 {
			logger.Info("Republished canonical copies", "count", published)
		}
	})
}
