// Package reconcile owns the local mirror of rental records and its
// divergence resolution against the canonical copies in content-addressed
// storage. Reconcile is the only operation allowed to resolve divergence,
// and it must run before a freshly loaded record is trusted for a gated
// action.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"gpurental-backend/internal/domain"
	"gpurental-backend/internal/external"
	"gpurental-backend/internal/logger"
	"gpurental-backend/internal/repository"
)

// Store pairs the local repository with the content store. The local copy is
// a best-effort mirror; when the two disagree, the higher-status record wins.
type Store struct {
	repo    repository.RentalRepository
	content external.ContentStore
	// Canonical copies are content-addressed and therefore immutable, so
	// fetched bytes are cached by address.
	fetchCache *gocache.Cache
	now        func() time.Time
}

func NewStore(repo repository.RentalRepository, content external.ContentStore) *Store {
	return NewStoreWithClock(repo, content, time.Now)
}

// NewStoreWithClock is NewStore with an overridable clock for tests.
func NewStoreWithClock(repo repository.RentalRepository, content external.ContentStore, now func() time.Time) *Store {
	return &Store{
		repo:       repo,
		content:    content,
		fetchCache: gocache.New(30*time.Minute, 10*time.Minute),
		now:        now,
	}
}

// Put validates and writes the record to local persistence, creating it if
// this is the first write for its rental id.
func (s *Store) Put(ctx context.Context, rec *domain.RentalRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	err := s.repo.Update(ctx, rec)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return err
	}
	return s.repo.Create(ctx, rec)
}

// Get returns the locally persisted record.
func (s *Store) Get(ctx context.Context, rentalID string) (*domain.RentalRecord, error) {
	return s.repo.GetByID(ctx, rentalID)
}

// List returns all local records, newest first.
func (s *Store) List(ctx context.Context) ([]domain.RentalRecord, error) {
	return s.repo.List(ctx)
}

// ListUnresolved returns local records that have not reached RESOLVED.
func (s *Store) ListUnresolved(ctx context.Context) ([]domain.RentalRecord, error) {
	return s.repo.ListUnresolved(ctx)
}

// Publish writes the record to content-addressed storage and persists the
// returned address on the local copy.
func (s *Store) Publish(ctx context.Context, rec *domain.RentalRecord) (*domain.RentalRecord, error) {
	addr, err := s.PublishContent(ctx, rec)
	if err != nil {
		return nil, err
	}
	updated, err := rec.Merge(domain.RecordPatch{CanonicalAddress: addr})
	if err != nil {
		return nil, err
	}
	if err := s.Put(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// PublishContent publishes the record to content-addressed storage without
// touching local persistence. The published bytes never embed the address
// itself; a content hash cannot contain itself.
func (s *Store) PublishContent(ctx context.Context, rec *domain.RentalRecord) (string, error) {
	data, err := marshalCanonical(rec)
	if err != nil {
		return "", err
	}
	addr, err := s.content.Publish(ctx, data)
	if err != nil {
		return "", err
	}
	s.fetchCache.Set(addr, data, gocache.DefaultExpiration)
	return addr, nil
}

// Reconcile fetches the canonical copy at canonicalAddress and resolves any
// divergence with the local record:
//   - local behind canonical: local copy replaced wholesale
//   - local ahead of canonical: local wins and is republished as the new
//     canonical copy
//   - same status, different ledger references: integrity fault; the rental
//     is flagged and the conflict surfaced, never silently merged
//
// The returned record is the authoritative one after reconciliation.
func (s *Store) Reconcile(ctx context.Context, rentalID, canonicalAddress string) (*domain.RentalRecord, error) {
	canonical, err := s.fetchCanonical(ctx, canonicalAddress)
	if err != nil {
		return nil, err
	}
	if canonical.RentalID != rentalID {
		return nil, fmt.Errorf("canonical copy at %s holds rental %s, expected %s: %w",
			canonicalAddress, canonical.RentalID, rentalID, domain.ErrIntegrityFault)
	}

	local, err := s.repo.GetByID(ctx, rentalID)
	if isNotFound(err) {
		// Nothing mirrored yet; adopt the canonical copy.
		canonical.CanonicalAddress = canonicalAddress
		if err := s.repo.Create(ctx, canonical); err != nil {
			return nil, err
		}
		s.backfillGateOrigin(ctx, canonical)
		return canonical, nil
	}
	if err != nil {
		return nil, err
	}

	localRank, canonRank := local.Status.Rank(), canonical.Status.Rank()
	switch {
	case localRank < canonRank:
		logger.Info("Local rental behind canonical copy, replacing",
			"rental_id", rentalID, "local_status", local.Status, "canonical_status", canonical.Status)
		canonical.CanonicalAddress = canonicalAddress
		if err := s.repo.Update(ctx, canonical); err != nil {
			return nil, err
		}
		s.backfillGateOrigin(ctx, canonical)
		return canonical, nil

	case localRank > canonRank:
		// The local copy has observed a more recent confirmed action; it
		// becomes the next canonical copy.
		logger.Info("Local rental ahead of canonical copy, republishing",
			"rental_id", rentalID, "local_status", local.Status, "canonical_status", canonical.Status)
		return s.Publish(ctx, local)

	default:
		if !sameLedgerReferences(local, canonical) {
			local.IntegrityFlagged = true
			if err := s.repo.Update(ctx, local); err != nil {
				logger.Error("Failed to flag conflicting rental", "rental_id", rentalID, "error", err)
			}
			return nil, fmt.Errorf("rental %s: conflicting ledger references at status %s: %w",
				rentalID, local.Status, domain.ErrIntegrityFault)
		}
		return local, nil
	}
}

// backfillGateOrigin records the adoption time as the confirmation timestamp
// of the action that produced the adopted status. The transition was confirmed
// elsewhere, so no local timestamp exists; without one the next cooldown gate
// would be open immediately. Best effort, the adopted record is already
// persisted.
func (s *Store) backfillGateOrigin(ctx context.Context, rec *domain.RentalRecord) {
	action := actionForStatus(rec.Status)
	if action == "" {
		return
	}
	times, err := s.repo.GetActionTimes(ctx, rec.RentalID)
	if err != nil {
		logger.Warn("Failed to read action times for adopted rental",
			"rental_id", rec.RentalID, "error", err)
		return
	}
	if !times.ForAction(action).IsZero() {
		return
	}
	if err := s.repo.SetActionTime(ctx, rec.RentalID, action, s.now()); err != nil {
		logger.Warn("Failed to record adoption time for adopted rental",
			"rental_id", rec.RentalID, "action", action, "error", err)
	}
}

func actionForStatus(status domain.RentalStatus) string {
	switch status {
	case domain.RentalStatusPending:
		return domain.ActionDeposit
	case domain.RentalStatusVerified:
		return domain.ActionVerify
	case domain.RentalStatusResolved:
		return domain.ActionResolve
	default:
		return ""
	}
}

func (s *Store) fetchCanonical(ctx context.Context, address string) (*domain.RentalRecord, error) {
	var data []byte
	if cached, ok := s.fetchCache.Get(address); ok {
		data = cached.([]byte)
	} else {
		fetched, err := s.content.Fetch(ctx, address)
		if err != nil {
			return nil, err
		}
		s.fetchCache.Set(address, fetched, gocache.DefaultExpiration)
		data = fetched
	}

	var rec domain.RentalRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("canonical copy at %s is not a rental record: %w", address, domain.ErrIntegrityFault)
	}
	return &rec, nil
}

func marshalCanonical(rec *domain.RentalRecord) ([]byte, error) {
	clone := rec.Clone()
	clone.CanonicalAddress = ""
	return json.Marshal(clone)
}

func sameLedgerReferences(a, b *domain.RentalRecord) bool {
	if len(a.LedgerReferences) != len(b.LedgerReferences) {
		return false
	}
	for action, ref := range a.LedgerReferences {
		if other, ok := b.LedgerReferences[action]; !ok || other != ref {
			return false
		}
	}
	return true
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
