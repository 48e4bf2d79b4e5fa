package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"gpurental-backend/internal/domain"
	"gpurental-backend/internal/repository"
)

type rentalRepository struct {
	db *sql.DB
}

func NewRentalRepository(db *sql.DB) repository.RentalRepository {
	return &rentalRepository{db: db}
}

const rentalColumns = `rental_id, gpu, hours, total_price, created_at, status, verification_score, escrow_contract_ref, canonical_address, integrity_flagged, deposited_on, verified_on, resolved_on`

func (r *rentalRepository) Create(ctx context.Context, rec *domain.RentalRecord) error {
	gpuJSON, err := json.Marshal(rec.GPU)
	if err != nil {
		return fmt.Errorf("marshal gpu snapshot: %w", err)
	}
	query := `INSERT INTO rentals (rental_id, gpu, hours, total_price, created_at, status, verification_score, escrow_contract_ref, canonical_address, integrity_flagged)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = r.db.ExecContext(ctx, query,
		rec.RentalID, gpuJSON, rec.Hours, rec.TotalPrice.String(), rec.CreatedAt,
		rec.Status, scoreArg(rec.VerificationScore), rec.EscrowContractRef,
		rec.CanonicalAddress, rec.IntegrityFlagged)
	if err != nil {
		return err
	}
	return r.replaceLedgerRefs(ctx, rec)
}

func (r *rentalRepository) GetByID(ctx context.Context, rentalID string) (*domain.RentalRecord, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE rental_id = $1`
	rec, err := scanRental(r.db.QueryRowContext(ctx, query, rentalID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rental %s: %w", rentalID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if rec.LedgerReferences, err = r.loadLedgerRefs(ctx, rentalID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *rentalRepository) Update(ctx context.Context, rec *domain.RentalRecord) error {
	query := `UPDATE rentals SET status=$1, verification_score=$2, canonical_address=$3, integrity_flagged=$4 WHERE rental_id=$5`
	res, err := r.db.ExecContext(ctx, query,
		rec.Status, scoreArg(rec.VerificationScore), rec.CanonicalAddress,
		rec.IntegrityFlagged, rec.RentalID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rental %s: %w", rec.RentalID, domain.ErrNotFound)
	}
	return r.replaceLedgerRefs(ctx, rec)
}

func (r *rentalRepository) List(ctx context.Context) ([]domain.RentalRecord, error) {
	return r.list(ctx, `SELECT `+rentalColumns+` FROM rentals ORDER BY created_at DESC`)
}

func (r *rentalRepository) ListUnresolved(ctx context.Context) ([]domain.RentalRecord, error) {
	return r.list(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE status <> 'RESOLVED' ORDER BY created_at DESC`)
}

func (r *rentalRepository) list(ctx context.Context, query string) ([]domain.RentalRecord, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rentals []domain.RentalRecord
	for rows.Next() {
		rec, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		if rec.LedgerReferences, err = r.loadLedgerRefs(ctx, rec.RentalID); err != nil {
			return nil, err
		}
		rentals = append(rentals, *rec)
	}
	return rentals, rows.Err()
}

func (r *rentalRepository) GetActionTimes(ctx context.Context, rentalID string) (domain.ActionTimes, error) {
	query := `SELECT deposited_on, verified_on, resolved_on FROM rentals WHERE rental_id = $1`
	var deposited, verified, resolved sql.NullTime
	err := r.db.QueryRowContext(ctx, query, rentalID).Scan(&deposited, &verified, &resolved)
	if err == sql.ErrNoRows {
		return domain.ActionTimes{}, fmt.Errorf("rental %s: %w", rentalID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ActionTimes{}, err
	}
	return domain.ActionTimes{
		DepositAt: deposited.Time,
		VerifyAt:  verified.Time,
		ResolveAt: resolved.Time,
	}, nil
}

func (r *rentalRepository) SetActionTime(ctx context.Context, rentalID, action string, at time.Time) error {
	var column string
	switch action {
	case domain.ActionDeposit:
		column = "deposited_on"
	case domain.ActionVerify:
		column = "verified_on"
	case domain.ActionResolve:
		column = "resolved_on"
	default:
		return &domain.ValidationError{Field: "action", Err: domain.ErrOutOfRange, Detail: "unknown gated action " + action}
	}
	query := fmt.Sprintf(`UPDATE rentals SET %s=$1 WHERE rental_id=$2`, column)
	res, err := r.db.ExecContext(ctx, query, at, rentalID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rental %s: %w", rentalID, domain.ErrNotFound)
	}
	return nil
}

// replaceLedgerRefs upserts the append-only reference trail. Existing rows
// are never updated to a different value by the ON CONFLICT clause; the
// record layer already refuses overwrites before we get here.
func (r *rentalRepository) replaceLedgerRefs(ctx context.Context, rec *domain.RentalRecord) error {
	for action, ref := range rec.LedgerReferences {
		query := `INSERT INTO rental_ledger_refs (rental_id, action, tx_ref, recorded_on)
		          VALUES ($1, $2, $3, $4)
		          ON CONFLICT (rental_id, action) DO NOTHING`
		if _, err := r.db.ExecContext(ctx, query, rec.RentalID, action, ref, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

func (r *rentalRepository) loadLedgerRefs(ctx context.Context, rentalID string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT action, tx_ref FROM rental_ledger_refs WHERE rental_id = $1`, rentalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make(map[string]string)
	for rows.Next() {
		var action, ref string
		if err := rows.Scan(&action, &ref); err != nil {
			return nil, err
		}
		refs[action] = ref
	}
	return refs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRental(row rowScanner) (*domain.RentalRecord, error) {
	var (
		rec        domain.RentalRecord
		gpuJSON    []byte
		totalPrice string
		score      sql.NullInt32
		deposited  sql.NullTime
		verified   sql.NullTime
		resolved   sql.NullTime
	)
	err := row.Scan(&rec.RentalID, &gpuJSON, &rec.Hours, &totalPrice, &rec.CreatedAt,
		&rec.Status, &score, &rec.EscrowContractRef, &rec.CanonicalAddress,
		&rec.IntegrityFlagged, &deposited, &verified, &resolved)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(gpuJSON, &rec.GPU); err != nil {
		return nil, fmt.Errorf("unmarshal gpu snapshot: %w", err)
	}
	if rec.TotalPrice, err = decimal.NewFromString(totalPrice); err != nil {
		return nil, fmt.Errorf("parse total price: %w", err)
	}
	if score.Valid {
		s := score.Int32
		rec.VerificationScore = &s
	}
	return &rec, nil
}

func scoreArg(score *int32) interface{} {
	if score == nil {
		return nil
	}
	return *score
}
