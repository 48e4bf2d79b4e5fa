// Package lifecycle implements the rental state machine. It owns the rules
// for when a rental may move between states, gates transitions behind
// cooldowns, and merges confirmed external results into the record. A
// transition is never taken on local intent alone; every one requires a
// confirmed ledger result as evidence.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gpurental-backend/internal/cooldown"
	"gpurental-backend/internal/domain"
	"gpurental-backend/internal/external"
	"gpurental-backend/internal/logger"
	"gpurental-backend/internal/payout"
	"gpurental-backend/internal/reconcile"
	"gpurental-backend/internal/repository"
)

// Config carries the machine's tunables.
type Config struct {
	VerifyCooldown  time.Duration
	ResolveCooldown time.Duration
	// ContractRef identifies the escrow contract instance backing new rentals.
	ContractRef string
	// Clock overrides wall-clock time in tests. Nil means time.Now.
	Clock func() time.Time
}

// Machine drives one rental at a time through PENDING -> VERIFIED ->
// RESOLVED. It serializes gated actions per rental: a second attempt while
// one is outstanding fails with domain.ErrRentalBusy rather than queueing.
type Machine struct {
	store  *reconcile.Store
	repo   repository.RentalRepository
	ledger external.EscrowLedger
	wallet external.Wallet

	verifyGate  cooldown.Gate
	resolveGate cooldown.Gate
	contractRef string
	now         func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewMachine(store *reconcile.Store, repo repository.RentalRepository, ledger external.EscrowLedger, wallet external.Wallet, cfg Config) *Machine {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Machine{
		store:       store,
		repo:        repo,
		ledger:      ledger,
		wallet:      wallet,
		verifyGate:  cooldown.NewGateWithClock(cfg.VerifyCooldown, now),
		resolveGate: cooldown.NewGateWithClock(cfg.ResolveCooldown, now),
		contractRef: cfg.ContractRef,
		now:         now,
		inflight:    make(map[string]struct{}),
	}
}

// Create escrows funds for a new rental. On any failure before the deposit
// is confirmed, no record is created anywhere.
func (m *Machine) Create(ctx context.Context, gpu domain.GPU, hours int32) (*domain.RentalRecord, error) {
	if hours < gpu.MinimumRental {
		return nil, &domain.ValidationError{
			Field: "hours",
			Err:   domain.ErrOutOfRange,
			Detail: fmt.Sprintf("minimum rental for %s is %d hour(s)", gpu.Model, gpu.MinimumRental),
		}
	}

	rec := &domain.RentalRecord{
		RentalID:          domain.NewRentalID(),
		GPU:               gpu,
		Hours:             hours,
		TotalPrice:        gpu.PricePerHour.Mul(decimal.NewFromInt32(hours)),
		CreatedAt:         m.now(),
		Status:            domain.RentalStatusPending,
		LedgerReferences:  make(map[string]string),
		EscrowContractRef: m.contractRef,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	if _, err := m.wallet.RequestAuthorization(ctx); err != nil {
		return nil, err
	}

	txRef, err := m.ledger.Deposit(ctx, rec.RentalID, gpu.ProviderAddress, rec.TotalPrice)
	if err != nil {
		return nil, err
	}

	rec, err = rec.Merge(domain.RecordPatch{LedgerAction: domain.ActionDeposit, LedgerReference: txRef})
	if err != nil {
		return nil, err
	}
	if err := m.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	if err := m.repo.SetActionTime(ctx, rec.RentalID, domain.ActionDeposit, m.now()); err != nil {
		return nil, err
	}

	logger.Info("Rental created", "rental_id", rec.RentalID, "gpu", gpu.Model,
		"hours", hours, "total_price", rec.TotalPrice.String(), "deposit_ref", txRef)

	return m.publishBestEffort(ctx, rec), nil
}

// Verify runs the verify transition: PENDING -> VERIFIED. The oracle's score
// and the confirmed transaction reference are merged atomically; on any
// failure the record remains exactly as before the attempt.
func (m *Machine) Verify(ctx context.Context, rentalID string) (*domain.RentalRecord, error) {
	if err := m.acquire(rentalID); err != nil {
		return nil, err
	}
	defer m.release(rentalID)

	rec, err := m.loadReconciled(ctx, rentalID)
	if err != nil {
		return nil, err
	}

	// Guard first: a verify on an already verified rental is rejected here,
	// before any external call, so duplicates are never even submitted.
	if rec.Status != domain.RentalStatusPending {
		return nil, fmt.Errorf("verify requires status %s, rental %s is %s: %w",
			domain.RentalStatusPending, rentalID, rec.Status, domain.ErrIllegalTransition)
	}

	times, err := m.repo.GetActionTimes(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if remaining := m.verifyGate.Remaining(times.DepositAt); remaining > 0 {
		return nil, &domain.CooldownError{Action: domain.ActionVerify, Remaining: remaining}
	}

	if _, err := m.wallet.RequestAuthorization(ctx); err != nil {
		return nil, err
	}

	oracleParams := map[string]string{
		"rental_id": rec.RentalID,
		"hours":     strconv.Itoa(int(rec.Hours)),
	}
	txRef, err := m.ledger.Verify(ctx, rec.RentalID, oracleParams)
	if err != nil {
		return nil, m.handleLedgerFailure(ctx, rec, domain.ActionVerify, err)
	}
	score, err := m.ledger.ReadResult(ctx, rec.RentalID)
	if err != nil {
		return nil, m.handleLedgerFailure(ctx, rec, domain.ActionVerify, err)
	}

	merged, err := rec.Merge(domain.RecordPatch{
		Status:            domain.RentalStatusVerified,
		LedgerAction:      domain.ActionVerify,
		LedgerReference:   txRef,
		VerificationScore: &score,
	})
	if err != nil {
		return nil, err
	}
	if err := m.store.Put(ctx, merged); err != nil {
		return nil, err
	}
	// Restart the resolve cooldown from this confirmation.
	if err := m.repo.SetActionTime(ctx, rentalID, domain.ActionVerify, m.now()); err != nil {
		return nil, err
	}

	logger.Info("Rental verified", "rental_id", rentalID, "score", score, "verify_ref", txRef)
	return m.publishBestEffort(ctx, merged), nil
}

// Resolve runs the terminal transition: VERIFIED -> RESOLVED. The payment
// distribution for the recorded score is computed and returned alongside the
// final record.
func (m *Machine) Resolve(ctx context.Context, rentalID string) (*domain.RentalRecord, *payout.Distribution, error) {
	if err := m.acquire(rentalID); err != nil {
		return nil, nil, err
	}
	defer m.release(rentalID)

	rec, err := m.loadReconciled(ctx, rentalID)
	if err != nil {
		return nil, nil, err
	}

	if rec.Status != domain.RentalStatusVerified {
		return nil, nil, fmt.Errorf("resolve requires status %s, rental %s is %s: %w",
			domain.RentalStatusVerified, rentalID, rec.Status, domain.ErrIllegalTransition)
	}

	times, err := m.repo.GetActionTimes(ctx, rentalID)
	if err != nil {
		return nil, nil, err
	}
	if remaining := m.resolveGate.Remaining(times.VerifyAt); remaining > 0 {
		return nil, nil, &domain.CooldownError{Action: domain.ActionResolve, Remaining: remaining}
	}

	if _, err := m.wallet.RequestAuthorization(ctx); err != nil {
		return nil, nil, err
	}

	txRef, err := m.ledger.Resolve(ctx, rec.RentalID)
	if err != nil {
		return nil, nil, m.handleLedgerFailure(ctx, rec, domain.ActionResolve, err)
	}

	merged, err := rec.Merge(domain.RecordPatch{
		Status:          domain.RentalStatusResolved,
		LedgerAction:    domain.ActionResolve,
		LedgerReference: txRef,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := m.store.Put(ctx, merged); err != nil {
		return nil, nil, err
	}
	if err := m.repo.SetActionTime(ctx, rentalID, domain.ActionResolve, m.now()); err != nil {
		return nil, nil, err
	}

	dist, err := payout.Distribute(merged.TotalPrice, *merged.VerificationScore)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Rental resolved", "rental_id", rentalID, "resolve_ref", txRef,
		"provider_share", dist.ProviderShare.String(), "renter_share", dist.RenterShare.String())
	return m.publishBestEffort(ctx, merged), &dist, nil
}

// Cooldowns reports the remaining wait for each gated action on the rental.
func (m *Machine) Cooldowns(ctx context.Context, rentalID string) (verifyRemaining, resolveRemaining time.Duration, err error) {
	times, err := m.repo.GetActionTimes(ctx, rentalID)
	if err != nil {
		return 0, 0, err
	}
	return m.verifyGate.Remaining(times.DepositAt), m.resolveGate.Remaining(times.VerifyAt), nil
}

// loadReconciled loads the record and, when a canonical copy exists,
// reconciles against it before the record is trusted for a gated action.
func (m *Machine) loadReconciled(ctx context.Context, rentalID string) (*domain.RentalRecord, error) {
	rec, err := m.store.Get(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	if rec.IntegrityFlagged {
		return nil, fmt.Errorf("rental %s is flagged for manual review: %w", rentalID, domain.ErrIntegrityFault)
	}
	if rec.CanonicalAddress == "" {
		return rec, nil
	}
	return m.store.Reconcile(ctx, rentalID, rec.CanonicalAddress)
}

// handleLedgerFailure maps an external failure onto the recovery policy: a
// permanent rejection means local state may be stale, so a reconcile is
// triggered before the error is surfaced; everything else is returned as-is
// with the record untouched.
func (m *Machine) handleLedgerFailure(ctx context.Context, rec *domain.RentalRecord, action string, err error) error {
	if errors.Is(err, domain.ErrExternalRejected) && rec.CanonicalAddress != "" {
		if _, rerr := m.store.Reconcile(ctx, rec.RentalID, rec.CanonicalAddress); rerr != nil {
			logger.Error("Reconcile after ledger rejection failed",
				"rental_id", rec.RentalID, "action", action, "error", rerr)
		}
	}
	return fmt.Errorf("%s on rental %s: %w", action, rec.RentalID, err)
}

// publishBestEffort republishes the canonical copy after a successful
// transition. A publish failure does not undo the transition; the local copy
// is ahead and the reconciliation sweep will republish it.
func (m *Machine) publishBestEffort(ctx context.Context, rec *domain.RentalRecord) *domain.RentalRecord {
	published, err := m.store.Publish(ctx, rec)
	if err != nil {
		logger.Warn("Canonical publish failed, local copy is ahead",
			"rental_id", rec.RentalID, "error", err)
		return rec
	}
	return published
}

func (m *Machine) acquire(rentalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[rentalID]; busy {
		return fmt.Errorf("rental %s: %w", rentalID, domain.ErrRentalBusy)
	}
	m.inflight[rentalID] = struct{}{}
	return nil
}

func (m *Machine) release(rentalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, rentalID)
}
