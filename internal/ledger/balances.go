package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/money"
)

// The four balance movements below are the only way the ledger changes a
// reseller's counters. Callers hold the reseller row lock and persist the
// reseller in the same transaction as the entity that caused the movement.
//
//	reserve  pending += A                       commission created
//	release  pending -= A                       commission rejected, payout requested
//	restore  pending += A                       payout failed or cancelled
//	convert  pending -= A, paid += A, earned += A   commission paid directly or via invoice
//	settle   paid += A, earned += A             payout completed (pending already released)

// Reserve adds amount to the pending balance.
func Reserve(r *models.Reseller, amount decimal.Decimal) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	r.PendingCommission = money.Round(r.PendingCommission.Add(amount))
	return nil
}

// Restore returns a previously released amount to the pending balance.
func Restore(r *models.Reseller, amount decimal.Decimal) error {
	return Reserve(r, amount)
}

// Release takes amount out of the pending balance.
func Release(r *models.Reseller, amount decimal.Decimal) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	if r.PendingCommission.LessThan(amount) {
		return insufficient(r, amount)
	}
	r.PendingCommission = money.Round(r.PendingCommission.Sub(amount))
	return nil
}

// Convert moves amount from pending into the paid and earned totals.
func Convert(r *models.Reseller, amount decimal.Decimal) error {
	if err := Release(r, amount); err != nil {
		return err
	}
	return Settle(r, amount)
}

// Settle records amount as paid and earned without touching pending.
func Settle(r *models.Reseller, amount decimal.Decimal) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	r.TotalCommissionPaid = money.Round(r.TotalCommissionPaid.Add(amount))
	r.TotalCommissionEarned = money.Round(r.TotalCommissionEarned.Add(amount))
	return nil
}

func requirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "amount must be positive, got %s", money.Format(amount))
	}
	return nil
}

func insufficient(r *models.Reseller, amount decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "amount exceeds available balance").
		WithDetails(map[string]any{
			"reseller_id": r.ID.String(),
			"requested":   money.Format(amount),
			"available":   money.Format(r.PendingCommission),
		})
}
