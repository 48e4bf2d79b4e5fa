package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() *RentalRecord {
	return &RentalRecord{
		RentalID: "GPU-TEST0001",
		GPU: GPU{
			ID:              "rtx4090",
			Model:           "NVIDIA RTX 4090",
			Provider:        "Quantum Computing Services",
			ProviderAddress: "0x475235a4D3180210980FdB4ccF7B5c86DE8232fa",
			PricePerHour:    decimal.RequireFromString("0.0005"),
			MinimumRental:   1,
		},
		Hours:             4,
		TotalPrice:        decimal.RequireFromString("0.0020"),
		CreatedAt:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:            RentalStatusPending,
		LedgerReferences:  map[string]string{ActionDeposit: "0xdeadbeef"},
		EscrowContractRef: "0xescrow",
	}
}

func TestNewRentalID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRentalID()
		assert.True(t, strings.HasPrefix(id, "GPU-"))
		assert.Len(t, id, 12)
		assert.False(t, seen[id], "id %s generated twice", id)
		seen[id] = true
	}
}

func TestStatusRank(t *testing.T) {
	assert.Equal(t, 0, RentalStatusPending.Rank())
	assert.Equal(t, 1, RentalStatusVerified.Rank())
	assert.Equal(t, 2, RentalStatusResolved.Rank())
	assert.Equal(t, -1, RentalStatus("ACTIVE").Rank())
}

func TestValidate(t *testing.T) {
	t.Run("Valid pending record", func(t *testing.T) {
		assert.NoError(t, testRecord().Validate())
	})

	t.Run("Hours below minimum", func(t *testing.T) {
		rec := testRecord()
		rec.GPU.MinimumRental = 8
		err := rec.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrOutOfRange)
	})

	t.Run("Score without verified status", func(t *testing.T) {
		rec := testRecord()
		score := int32(80)
		rec.VerificationScore = &score
		assert.ErrorIs(t, rec.Validate(), ErrOutOfRange)
	})

	t.Run("Verified status without score", func(t *testing.T) {
		rec := testRecord()
		rec.Status = RentalStatusVerified
		assert.ErrorIs(t, rec.Validate(), ErrOutOfRange)
	})

	t.Run("Score out of range", func(t *testing.T) {
		rec := testRecord()
		rec.Status = RentalStatusVerified
		score := int32(101)
		rec.VerificationScore = &score
		assert.ErrorIs(t, rec.Validate(), ErrOutOfRange)
	})

	t.Run("Resolve reference only when resolved", func(t *testing.T) {
		rec := testRecord()
		rec.LedgerReferences[ActionResolve] = "0xres"
		assert.ErrorIs(t, rec.Validate(), ErrOutOfRange)

		rec = testRecord()
		score := int32(80)
		rec.Status = RentalStatusResolved
		rec.VerificationScore = &score
		// resolved but no resolve reference
		assert.ErrorIs(t, rec.Validate(), ErrOutOfRange)
	})

	t.Run("Resolved record with full trail", func(t *testing.T) {
		rec := testRecord()
		score := int32(80)
		rec.Status = RentalStatusResolved
		rec.VerificationScore = &score
		rec.LedgerReferences[ActionVerify] = "0xver"
		rec.LedgerReferences[ActionResolve] = "0xres"
		assert.NoError(t, rec.Validate())
	})
}

func TestMerge(t *testing.T) {
	t.Run("Verify patch applies whitelisted fields", func(t *testing.T) {
		rec := testRecord()
		score := int32(80)
		merged, err := rec.Merge(RecordPatch{
			Status:            RentalStatusVerified,
			LedgerAction:      ActionVerify,
			LedgerReference:   "0xver",
			VerificationScore: &score,
		})
		require.NoError(t, err)

		assert.Equal(t, RentalStatusVerified, merged.Status)
		assert.Equal(t, "0xver", merged.LedgerReferences[ActionVerify])
		require.NotNil(t, merged.VerificationScore)
		assert.Equal(t, int32(80), *merged.VerificationScore)

		// original untouched
		assert.Equal(t, RentalStatusPending, rec.Status)
		assert.Nil(t, rec.VerificationScore)
		assert.NotContains(t, rec.LedgerReferences, ActionVerify)
	})

	t.Run("Status regression rejected", func(t *testing.T) {
		rec := testRecord()
		score := int32(50)
		rec.Status = RentalStatusVerified
		rec.VerificationScore = &score

		_, err := rec.Merge(RecordPatch{Status: RentalStatusPending})
		assert.ErrorIs(t, err, ErrImmutableFieldWrite)
	})

	t.Run("Status skip rejected", func(t *testing.T) {
		_, err := testRecord().Merge(RecordPatch{Status: RentalStatusResolved})
		assert.ErrorIs(t, err, ErrImmutableFieldWrite)
	})

	t.Run("Ledger reference overwrite rejected", func(t *testing.T) {
		_, err := testRecord().Merge(RecordPatch{LedgerAction: ActionDeposit, LedgerReference: "0xother"})
		assert.ErrorIs(t, err, ErrImmutableFieldWrite)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "ledger_references", verr.Field)
	})

	t.Run("Identical ledger reference is idempotent", func(t *testing.T) {
		merged, err := testRecord().Merge(RecordPatch{LedgerAction: ActionDeposit, LedgerReference: "0xdeadbeef"})
		require.NoError(t, err)
		assert.Equal(t, "0xdeadbeef", merged.LedgerReferences[ActionDeposit])
	})

	t.Run("Score overwrite rejected", func(t *testing.T) {
		rec := testRecord()
		old := int32(80)
		rec.Status = RentalStatusVerified
		rec.VerificationScore = &old

		newScore := int32(90)
		_, err := rec.Merge(RecordPatch{VerificationScore: &newScore})
		assert.ErrorIs(t, err, ErrImmutableFieldWrite)
	})
}
