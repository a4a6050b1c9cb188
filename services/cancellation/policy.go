package cancellation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"eventpay/pkg/config"
)

// Policy maps how far ahead of the event start a cancellation happens to the
// refunded percentage. Tier boundaries are inclusive: cancelling exactly
// HoursBefore hours ahead still earns that tier.
type Policy struct {
	tiers []config.RefundTier
}

func NewPolicy(tiers []config.RefundTier) Policy {
	if len(tiers) == 0 {
		tiers = config.DefaultRefundPolicy()
	}

	sorted := make([]config.RefundTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].HoursBefore > sorted[j].HoursBefore
	})

	return Policy{tiers: sorted}
}

// Percent returns the refund percentage for a cancellation happening
// untilStart before the event begins. Events already started, or closer than
// the lowest tier, refund nothing.
func (p Policy) Percent(untilStart time.Duration) int {
	for _, tier := range p.tiers {
		if untilStart >= time.Duration(tier.HoursBefore)*time.Hour {
			return tier.Percent
		}
	}
	return 0
}

// RefundAmount applies percent to amount, rounding half-up to the minor
// currency unit.
func RefundAmount(amount int64, percent int) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	if percent >= 100 {
		return amount
	}

	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
