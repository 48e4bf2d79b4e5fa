// Package payout computes how escrowed funds are split between provider and
// renter once a verification score is known.
package payout

import (
	"github.com/shopspring/decimal"

	"gpurental-backend/internal/domain"
)

// ShareScale is the fixed number of fractional digits the provider share is
// rounded to. The renter share is derived by subtraction so the two shares
// always sum exactly to the total, whatever the rounding did.
const ShareScale = 6

var hundred = decimal.NewFromInt(100)

// Distribution is the outcome of splitting an escrowed total.
type Distribution struct {
	TotalPrice    decimal.Decimal `json:"total_price"`
	Score         int32           `json:"score"`
	ProviderShare decimal.Decimal `json:"provider_share"`
	RenterShare   decimal.Decimal `json:"renter_share"`
}

// Distribute splits totalPrice according to the verification score.
// providerShare = totalPrice * score / 100, rounded half away from zero at
// ShareScale digits; renterShare = totalPrice - providerShare.
func Distribute(totalPrice decimal.Decimal, score int32) (Distribution, error) {
	if score < 0 || score > 100 {
		return Distribution{}, &domain.ValidationError{Field: "score", Err: domain.ErrOutOfRange, Detail: "score must be in [0,100]"}
	}
	if !totalPrice.IsPositive() {
		return Distribution{}, &domain.ValidationError{Field: "total_price", Err: domain.ErrOutOfRange, Detail: "total price must be positive"}
	}

	provider := totalPrice.Mul(decimal.NewFromInt32(score)).Div(hundred).Round(ShareScale)
	// Rounding half away from zero can push the provider share past the total
	// when the total itself is finer than ShareScale. Clamp so the renter
	// share never goes negative and score 100 pays out exactly the total.
	if provider.GreaterThan(totalPrice) {
		provider = totalPrice
	}
	renter := totalPrice.Sub(provider)

	return Distribution{
		TotalPrice:    totalPrice,
		Score:         score,
		ProviderShare: provider,
		RenterShare:   renter,
	}, nil
}
