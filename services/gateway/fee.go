package gateway

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type FeeBreakdown struct {
	Fixed      int64 `json:"fixed"`
	Percentage int64 `json:"percentage"`
	Total      int64 `json:"total"`
}

// FeeTable computes fees as fixed plus percentage, in that order, with the
// percentage part rounded half-up to the minor currency unit.
type FeeTable struct {
	fixed int64
	rate  decimal.Decimal
}

func NewFeeTable(fixed int64, percent string) (*FeeTable, error) {
	if fixed < 0 {
		return nil, fmt.Errorf("fixed fee must not be negative")
	}

	rate, err := decimal.NewFromString(percent)
	if err != nil {
		return nil, fmt.Errorf("invalid fee percent %q: %w", percent, err)
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("fee percent must not be negative")
	}

	return &FeeTable{fixed: fixed, rate: rate}, nil
}

func (t *FeeTable) Calculate(amount int64) FeeBreakdown {
	if amount <= 0 {
		return FeeBreakdown{}
	}

	// decimal.Round rounds half away from zero, which for non-negative
	// amounts is round-half-up.
	pct := decimal.NewFromInt(amount).
		Mul(t.rate).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()

	return FeeBreakdown{
		Fixed:      t.fixed,
		Percentage: pct,
		Total:      t.fixed + pct,
	}
}

// Fees bundles the platform fee (charged on ticket sales) and the payout fee
// (charged on disbursements).
type Fees struct {
	Platform *FeeTable
	Payout   *FeeTable
}
