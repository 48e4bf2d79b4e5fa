// Package external defines the fixed interfaces of the collaborators the
// rental lifecycle consumes, plus their HTTP client implementations. The
// lifecycle never reasons about how funds are locked or how the oracle
// measures performance; it only consumes confirmed results.
package external

import (
	"context"

	"github.com/shopspring/decimal"
)

// Identity is a ledger identity authorized by the wallet subsystem.
type Identity struct {
	Address string `json:"address"`
}

// Wallet is the signing subsystem. Authorization must precede any ledger
// write; the user declining is a distinct condition
// (domain.ErrAuthorizationDeclined), never a generic failure.
type Wallet interface {
	RequestAuthorization(ctx context.Context) (Identity, error)
}

// EscrowLedger is the escrow contract behind a gateway. Every operation
// returns only after network confirmation; the returned reference is the
// proof a transition may be merged on. Duplicate submissions are rejected by
// the contract itself (domain.ErrExternalRejected); the ledger, not the
// local state machine, is the final arbiter.
type EscrowLedger interface {
	Deposit(ctx context.Context, recordRef, providerAddress string, amount decimal.Decimal) (string, error)
	Verify(ctx context.Context, recordRef string, oracleParams map[string]string) (string, error)
	Resolve(ctx context.Context, recordRef string) (string, error)
	// ReadResult returns the verification score the oracle reported for the
	// rental. How the score is produced is opaque to this system.
	ReadResult(ctx context.Context, recordRef string) (int32, error)
}

// ContentStore is the content-addressed storage holding canonical rental
// records. Publish of identical bytes yields the same address; Fetch of an
// unknown address fails with domain.ErrNotFound.
type ContentStore interface {
	Publish(ctx context.Context, record []byte) (string, error)
	Fetch(ctx context.Context, address string) ([]byte, error)
}
