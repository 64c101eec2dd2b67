package models

import (
	"github.com/shopspring/decimal"
)

// WithdrawalSettings is the single policy row driving withdrawal validation,
// fees and auto-approval. Mutated only by explicit admin updates.
type WithdrawalSettings struct {
	AutoApproveThreshold decimal.Decimal
	MinWithdrawal        decimal.Decimal
	MaxWithdrawal        decimal.Decimal
	FeePercentage        decimal.Decimal // 0..100
	FeeFixed             decimal.Decimal
}

// DefaultWithdrawalSettings are written on first access if the row is absent.
func DefaultWithdrawalSettings() WithdrawalSettings {
	return WithdrawalSettings{
		AutoApproveThreshold: decimal.NewFromInt(1_000_000),
		MinWithdrawal:        decimal.NewFromInt(50_000),
		MaxWithdrawal:        decimal.NewFromInt(100_000_000),
		FeePercentage:        decimal.Zero,
		FeeFixed:             decimal.Zero,
	}
}
