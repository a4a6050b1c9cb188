package cancellation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"eventpay/pkg/config"
)

func TestPolicyTierBoundaries(t *testing.T) {
	policy := NewPolicy(config.DefaultRefundPolicy())

	cases := []struct {
		until time.Duration
		want  int
	}{
		{200 * time.Hour, 100},
		{168 * time.Hour, 100}, // boundary is inclusive
		{168*time.Hour - time.Minute, 50},
		{100 * time.Hour, 50},
		{72 * time.Hour, 50}, // boundary is inclusive
		{72*time.Hour - time.Minute, 0},
		{time.Hour, 0},
		{0, 0},
		{-3 * time.Hour, 0}, // already started
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, policy.Percent(tc.until), tc.until.String())
	}
}

func TestPolicyOrdersTiers(t *testing.T) {
	// Tiers given in any order are evaluated highest first.
	policy := NewPolicy([]config.RefundTier{
		{HoursBefore: 24, Percent: 25},
		{HoursBefore: 336, Percent: 100},
		{HoursBefore: 72, Percent: 50},
	})

	require.Equal(t, 100, policy.Percent(400*time.Hour))
	require.Equal(t, 50, policy.Percent(100*time.Hour))
	require.Equal(t, 25, policy.Percent(48*time.Hour))
	require.Equal(t, 0, policy.Percent(12*time.Hour))
}

func TestPolicyDefaultsWhenEmpty(t *testing.T) {
	policy := NewPolicy(nil)

	require.Equal(t, 100, policy.Percent(168*time.Hour))
	require.Equal(t, 50, policy.Percent(72*time.Hour))
	require.Equal(t, 0, policy.Percent(71*time.Hour))
}

func TestRefundAmount(t *testing.T) {
	require.Equal(t, int64(100_000), RefundAmount(100_000, 100))
	require.Equal(t, int64(50_000), RefundAmount(100_000, 50))
	require.Equal(t, int64(0), RefundAmount(100_000, 0))
	require.Equal(t, int64(0), RefundAmount(0, 100))

	// Half-up rounding on odd amounts.
	require.Equal(t, int64(38), RefundAmount(75, 50))
	require.Equal(t, int64(50), RefundAmount(99, 50))
}
