package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ntduong/agentpay/internal/models"
)

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	settings := models.DefaultWithdrawalSettings()

	tests := []struct {
		name       string
		amount     int64
		violations int
	}{
		{name: "below minimum", amount: 49_999, violations: 1},
		{name: "at minimum", amount: 50_000, violations: 0},
		{name: "in range", amount: 500_000, violations: 0},
		{name: "at maximum", amount: 100_000_000, violations: 0},
		{name: "above maximum", amount: 100_000_001, violations: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateAmount(settings, decimal.NewFromInt(tt.amount))
			require.Len(t, got, tt.violations)
		})
	}
}

func TestCalculateFee(t *testing.T) {
	t.Parallel()

	t.Run("zero fees by default", func(t *testing.T) {
		fee := CalculateFee(models.DefaultWithdrawalSettings(), decimal.NewFromInt(100_000))
		require.True(t, fee.IsZero(), "default settings must not charge a fee, got %s", fee)
	})

	t.Run("percentage plus fixed", func(t *testing.T) {
		settings := models.WithdrawalSettings{
			FeePercentage: decimal.NewFromInt(2),
			FeeFixed:      decimal.NewFromInt(5_000),
		}

		fee := CalculateFee(settings, decimal.NewFromInt(100_000))

		// 100_000 * 2% + 5_000
		require.True(t, fee.Equal(decimal.NewFromInt(7_000)), "expected 7000, got %s", fee)
	})

	t.Run("fixed only", func(t *testing.T) {
		settings := models.WithdrawalSettings{FeeFixed: decimal.NewFromInt(1_000)}

		fee := CalculateFee(settings, decimal.NewFromInt(100_000))

		require.True(t, fee.Equal(decimal.NewFromInt(1_000)))
	})
}

func TestCanAutoApprove(t *testing.T) {
	t.Parallel()

	settings := models.DefaultWithdrawalSettings()

	require.True(t, CanAutoApprove(settings, decimal.NewFromInt(30_000)))
	require.True(t, CanAutoApprove(settings, decimal.NewFromInt(1_000_000)), "threshold boundary is inclusive")
	require.False(t, CanAutoApprove(settings, decimal.NewFromInt(1_000_001)))
}

func TestNewReferenceCode(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)

	for range 100 {
		code, err := NewReferenceCode()
		require.NoError(t, err)

		require.Len(t, code, 15)
		require.Equal(t, "TXN", code[:3])
		for _, r := range code[3:] {
			require.Contains(t, referenceCodeAlphabet, string(r))
		}

		require.False(t, seen[code], "collision within 100 generated codes: %s", code)
		seen[code] = true
	}
}
