package pricing

import (
	"errors"
	"math"
)

var (
	ErrNonPositivePrice = errors.New("resolved session price is not positive")
	ErrInvalidDuration  = errors.New("session duration must be 10 or 20 minutes")
)

const (
	Duration10Min = 10
	Duration20Min = 20
)

// MinimumPayoutGBP is the threshold below which accrued expert earnings are
// held back from transfer.
const MinimumPayoutGBP = 50.0

// Split is the settled economics of one session. PriceGBP always equals
// PlatformFeeGBP + ExpertPayoutGBP exactly.
type Split struct {
	PriceGBP        float64
	PlatformFeeGBP  float64
	ExpertPayoutGBP float64
}

// Calculator fixes the price and the platform/expert split for a session.
// It is the only writer of fee and payout figures.
type Calculator struct {
	CommissionRate   float64
	DefaultRate10Min float64
	DefaultRate20Min float64
}

func NewCalculator(commissionRate, defaultRate10Min, defaultRate20Min float64) *Calculator {
	return &Calculator{
		CommissionRate:   commissionRate,
		DefaultRate10Min: defaultRate10Min,
		DefaultRate20Min: defaultRate20Min,
	}
}

// ResolvePrice picks the expert's rate for the duration, falling back to the
// platform default when the expert has not set one.
func (calculator *Calculator) ResolvePrice(durationMinutes int, rate10Min, rate20Min float64) (float64, error) {
	var price float64

	switch durationMinutes {
	case Duration10Min:
		price = rate10Min
		if price == 0 {
			price = calculator.DefaultRate10Min
		}
	case Duration20Min:
		price = rate20Min
		if price == 0 {
			price = calculator.DefaultRate20Min
		}
	default:
		return 0, ErrInvalidDuration
	}

	if price <= 0 {
		return 0, ErrNonPositivePrice
	}

	return price, nil
}

// SplitPrice divides a price into platform fee and expert payout. The fee is
// rounded to pence; the payout is the remainder, not a second rounding, so
// the sum invariant holds exactly.
func (calculator *Calculator) SplitPrice(priceGBP float64) (Split, error) {
	if priceGBP <= 0 {
		return Split{}, ErrNonPositivePrice
	}

	fee := round2(priceGBP * calculator.CommissionRate)

	return Split{
		PriceGBP:        priceGBP,
		PlatformFeeGBP:  fee,
		ExpertPayoutGBP: priceGBP - fee,
	}, nil
}

// Quote resolves the price for an expert's rates and splits it in one step.
func (calculator *Calculator) Quote(durationMinutes int, rate10Min, rate20Min float64) (Split, error) {
	price, err := calculator.ResolvePrice(durationMinutes, rate10Min, rate20Min)
	if err != nil {
		return Split{}, err
	}

	return calculator.SplitPrice(price)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
