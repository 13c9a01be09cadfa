package payouts

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	"github.com/angelmondragon/earnings-ledger/pkg/money"
)

type feeRule struct {
	fixed   decimal.Decimal
	percent decimal.Decimal
}

var feeRules = map[enums.PayoutMethod]feeRule{
	enums.PayoutMethodBankTransfer: {fixed: money.MustParse("5.00")},
	enums.PayoutMethodPayPal:       {percent: money.MustParse("2.90")},
	enums.PayoutMethodStripe:       {percent: money.MustParse("2.90")},
	enums.PayoutMethodCheck:        {fixed: money.MustParse("10.00")},
	enums.PayoutMethodOther:        {fixed: money.MustParse("5.00")},
}

// CalculateFee returns the processing fee for a payout. The fee never exceeds
// the payout amount.
func CalculateFee(method enums.PayoutMethod, amount decimal.Decimal) decimal.Decimal {
	rule, ok := feeRules[method]
	if !ok {
		rule = feeRules[enums.PayoutMethodOther]
	}
	fee := rule.fixed
	if rule.percent.IsPositive() {
		fee = money.Percent(amount, rule.percent)
	}
	if fee.GreaterThan(amount) {
		fee = amount
	}
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	return money.Round(fee)
}

// NextPayoutDate returns this month's payout day while it has not passed,
// today included, and next month's otherwise.
func NextPayoutDate(now time.Time, day int) time.Time {
	if day < 1 || day > 28 {
		day = 15
	}
	y, m, d := now.UTC().Date()
	if d <= day {
		return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(y, m+1, day, 0, 0, 0, 0, time.UTC)
}
