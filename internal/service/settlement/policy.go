package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ntduong/agentpay/internal/models"
)

var hundred = decimal.NewFromInt(100)

// ValidateAmount returns the policy violations for a withdrawal amount,
// empty when the amount is within bounds.
func ValidateAmount(s models.WithdrawalSettings, amount decimal.Decimal) []string {
	var violations []string

	if amount.LessThan(s.MinWithdrawal) {
		violations = append(violations, fmt.Sprintf("minimum withdrawal amount is %s", s.MinWithdrawal))
	}
	if amount.GreaterThan(s.MaxWithdrawal) {
		violations = append(violations, fmt.Sprintf("maximum withdrawal amount is %s", s.MaxWithdrawal))
	}

	return violations
}

// CalculateFee returns amount * fee_percentage / 100 + fee_fixed.
func CalculateFee(s models.WithdrawalSettings, amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.FeePercentage).Div(hundred).Add(s.FeeFixed)
}

// CanAutoApprove reports whether the amount is within the auto-approval
// threshold. The boundary is inclusive.
func CanAutoApprove(s models.WithdrawalSettings, amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(s.AutoApproveThreshold)
}
