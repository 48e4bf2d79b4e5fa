package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RentalStatus string

const (
	RentalStatusPending  RentalStatus = "PENDING"
	RentalStatusVerified RentalStatus = "VERIFIED"
	RentalStatusResolved RentalStatus = "RESOLVED"
)

// Rank returns the position of the status in the lifecycle order
// PENDING < VERIFIED < RESOLVED. Unknown statuses rank as -1.
func (s RentalStatus) Rank() int {
	switch s {
	case RentalStatusPending:
		return 0
	case RentalStatusVerified:
		return 1
	case RentalStatusResolved:
		return 2
	default:
		return -1
	}
}

// Ledger action names used as keys of RentalRecord.LedgerReferences.
const (
	ActionDeposit = "deposit"
	ActionVerify  = "verify"
	ActionResolve = "resolve"
)

// GPU describes a rentable resource. The descriptor is snapshotted into the
// rental record at creation time; later catalog edits never affect an
// existing rental.
type GPU struct {
	ID              string            `json:"id"`
	Model           string            `json:"model"`
	Provider        string            `json:"provider"`
	ProviderAddress string            `json:"provider_address"`
	Description     string            `json:"description,omitempty"`
	PricePerHour    decimal.Decimal   `json:"price_per_hour"`
	MinimumRental   int32             `json:"minimum_rental_hours"`
	Specs           map[string]string `json:"specs,omitempty"`
}

// RentalRecord is the canonical record of one escrow-backed rental. It is
// created once, mutated only by the lifecycle machine through Merge, and
// never deleted. Resolved records remain as audit artifacts.
type RentalRecord struct {
	RentalID string `json:"rental_id"`
	GPU      GPU    `json:"gpu"`
	Hours    int32  `json:"hours"`
	// TotalPrice is price_per_hour * hours captured at creation. It is stored
	// rather than recomputed so a catalog price change can never drift the
	// agreed amount.
	TotalPrice        decimal.Decimal   `json:"total_price"`
	CreatedAt         time.Time         `json:"created_at"`
	Status            RentalStatus      `json:"status"`
	LedgerReferences  map[string]string `json:"ledger_references"`
	VerificationScore *int32            `json:"verification_score,omitempty"`
	EscrowContractRef string            `json:"escrow_contract_ref"`
	// CanonicalAddress is the content address of the most recently published
	// canonical copy. Empty until the first publish succeeds.
	CanonicalAddress string `json:"canonical_address,omitempty"`
	// IntegrityFlagged marks a rental whose local and canonical copies
	// conflict at the same status. Flagged rentals refuse gated actions
	// until cleared manually.
	IntegrityFlagged bool `json:"integrity_flagged,omitempty"`
}

// NewRentalID generates a rental identifier in the form GPU-XXXXXXXX. The
// suffix is taken from a v4 UUID so identifiers are globally unique and
// never reused.
func NewRentalID() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "GPU-" + raw[:8]
}

// Clone returns a deep copy of the record. Merge operates on clones so a
// failed merge never leaves a partially patched record behind.
func (r *RentalRecord) Clone() *RentalRecord {
	out := *r
	out.LedgerReferences = make(map[string]string, len(r.LedgerReferences))
	for k, v := range r.LedgerReferences {
		out.LedgerReferences[k] = v
	}
	if r.VerificationScore != nil {
		score := *r.VerificationScore
		out.VerificationScore = &score
	}
	if r.GPU.Specs != nil {
		out.GPU.Specs = make(map[string]string, len(r.GPU.Specs))
		for k, v := range r.GPU.Specs {
			out.GPU.Specs[k] = v
		}
	}
	return &out
}

// Validate checks every record invariant. It is called before any state
// transition is persisted.
func (r *RentalRecord) Validate() error {
	if r.RentalID == "" {
		return &ValidationError{Field: "rental_id", Err: ErrOutOfRange, Detail: "rental id is required"}
	}
	if r.Status.Rank() < 0 {
		return &ValidationError{Field: "status", Err: ErrOutOfRange, Detail: "unknown status " + string(r.Status)}
	}
	if r.Hours <= 0 {
		return &ValidationError{Field: "hours", Err: ErrOutOfRange, Detail: "hours must be positive"}
	}
	if r.Hours < r.GPU.MinimumRental {
		return &ValidationError{Field: "hours", Err: ErrOutOfRange, Detail: "below minimum rental duration"}
	}
	if !r.TotalPrice.IsPositive() {
		return &ValidationError{Field: "total_price", Err: ErrOutOfRange, Detail: "total price must be positive"}
	}
	minPrice := r.GPU.PricePerHour.Mul(decimal.NewFromInt32(r.GPU.MinimumRental))
	if r.TotalPrice.LessThan(minPrice) {
		return &ValidationError{Field: "total_price", Err: ErrOutOfRange, Detail: "total price below resource minimum"}
	}
	if r.CreatedAt.IsZero() {
		return &ValidationError{Field: "created_at", Err: ErrOutOfRange, Detail: "created_at is required"}
	}

	// The score is present exactly when the verify action has completed.
	if r.VerificationScore != nil {
		if *r.VerificationScore < 0 || *r.VerificationScore > 100 {
			return &ValidationError{Field: "verification_score", Err: ErrOutOfRange, Detail: "score must be in [0,100]"}
		}
		if r.Status == RentalStatusPending {
			return &ValidationError{Field: "verification_score", Err: ErrOutOfRange, Detail: "score set before verification"}
		}
	} else if r.Status.Rank() >= RentalStatusVerified.Rank() {
		return &ValidationError{Field: "verification_score", Err: ErrOutOfRange, Detail: "verified rental is missing its score"}
	}

	_, hasResolve := r.LedgerReferences[ActionResolve]
	if hasResolve != (r.Status == RentalStatusResolved) {
		return &ValidationError{Field: "ledger_references", Err: ErrOutOfRange, Detail: "resolve reference must be present exactly when resolved"}
	}
	return nil
}

// RecordPatch carries the whitelisted mutable fields a lifecycle transition
// may apply. Everything else on the record is immutable after creation.
type RecordPatch struct {
	Status            RentalStatus
	LedgerAction      string
	LedgerReference   string
	VerificationScore *int32
	CanonicalAddress  string
}

// Merge returns a new record with the patch applied. Ledger references are
// append-only and the verification score is write-once; violating either
// fails with ErrImmutableFieldWrite. Status may only advance one step at a
// time and never regress.
func (r *RentalRecord) Merge(patch RecordPatch) (*RentalRecord, error) {
	out := r.Clone()

	if patch.Status != "" && patch.Status != r.Status {
		if patch.Status.Rank() < 0 {
			return nil, &ValidationError{Field: "status", Err: ErrOutOfRange, Detail: "unknown status " + string(patch.Status)}
		}
		if patch.Status.Rank() != r.Status.Rank()+1 {
			return nil, &ValidationError{Field: "status", Err: ErrImmutableFieldWrite, Detail: "status may not regress or skip from " + string(r.Status)}
		}
		out.Status = patch.Status
	}

	if patch.LedgerAction != "" {
		if patch.LedgerReference == "" {
			return nil, &ValidationError{Field: "ledger_references", Err: ErrOutOfRange, Detail: "empty ledger reference"}
		}
		if existing, ok := r.LedgerReferences[patch.LedgerAction]; ok && existing != patch.LedgerReference {
			return nil, &ValidationError{Field: "ledger_references", Err: ErrImmutableFieldWrite, Detail: "ledger reference for " + patch.LedgerAction + " already recorded"}
		}
		out.LedgerReferences[patch.LedgerAction] = patch.LedgerReference
	}

	if patch.VerificationScore != nil {
		if r.VerificationScore != nil && *r.VerificationScore != *patch.VerificationScore {
			return nil, &ValidationError{Field: "verification_score", Err: ErrImmutableFieldWrite, Detail: "verification score already recorded"}
		}
		score := *patch.VerificationScore
		out.VerificationScore = &score
	}

	if patch.CanonicalAddress != "" {
		out.CanonicalAddress = patch.CanonicalAddress
	}

	return out, nil
}
