package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/money"
)

func newReseller(pending string) *models.Reseller {
	return &models.Reseller{
		ID:                    uuid.New(),
		PendingCommission:     money.MustParse(pending),
		TotalCommissionEarned: decimal.Zero,
		TotalCommissionPaid:   decimal.Zero,
	}
}

func TestReserveThenReleaseRestoresPending(t *testing.T) {
	r := newReseller("12.50")
	require.NoError(t, Reserve(r, money.MustParse("100.00")))
	assert.Equal(t, "112.50", money.Format(r.PendingCommission))

	require.NoError(t, Release(r, money.MustParse("100.00")))
	assert.Equal(t, "12.50", money.Format(r.PendingCommission))
	assert.True(t, r.TotalCommissionPaid.IsZero())
	assert.True(t, r.TotalCommissionEarned.IsZero())
}

func TestReleaseRefusesToGoNegative(t *testing.T) {
	r := newReseller("10.00")
	err := Release(r, money.MustParse("10.01"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientBalance))
	assert.Equal(t, "10.00", money.Format(r.PendingCommission), "failed release must not mutate the balance")
}

func TestConvertMovesPendingIntoPaidAndEarned(t *testing.T) {
	r := newReseller("100.00")
	require.NoError(t, Convert(r, money.MustParse("100.00")))
	assert.True(t, r.PendingCommission.IsZero())
	assert.Equal(t, "100.00", money.Format(r.TotalCommissionPaid))
	assert.Equal(t, "100.00", money.Format(r.TotalCommissionEarned))
}

func TestSettleLeavesPendingAlone(t *testing.T) {
	r := newReseller("5.00")
	require.NoError(t, Settle(r, money.MustParse("40.00")))
	assert.Equal(t, "5.00", money.Format(r.PendingCommission))
	assert.Equal(t, "40.00", money.Format(r.TotalCommissionPaid))
}

func TestMovementsRejectNonPositiveAmounts(t *testing.T) {
	for _, amount := range []decimal.Decimal{decimal.Zero, money.MustParse("-1")} {
		r := newReseller("10.00")
		assert.True(t, pkgerrors.IsCode(Reserve(r, amount), pkgerrors.CodeValidation))
		assert.True(t, pkgerrors.IsCode(Release(r, amount), pkgerrors.CodeValidation))
		assert.True(t, pkgerrors.IsCode(Settle(r, amount), pkgerrors.CodeValidation))
	}
}
