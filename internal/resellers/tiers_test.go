package resellers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	"github.com/angelmondragon/earnings-ledger/pkg/money"
)

func TestTierForSales(t *testing.T) {
	cases := []struct {
		sales string
		tier  enums.ResellerTier
		rate  string
	}{
		{sales: "0", tier: enums.ResellerTierBronze, rate: "10.00"},
		{sales: "4999.99", tier: enums.ResellerTierBronze, rate: "10.00"},
		{sales: "5000", tier: enums.ResellerTierSilver, rate: "15.00"},
		{sales: "14999.99", tier: enums.ResellerTierSilver, rate: "15.00"},
		{sales: "15000", tier: enums.ResellerTierGold, rate: "20.00"},
		{sales: "50000", tier: enums.ResellerTierPlatinum, rate: "25.00"},
		{sales: "1000000", tier: enums.ResellerTierPlatinum, rate: "25.00"},
	}
	for _, tc := range cases {
		t.Run(tc.sales, func(t *testing.T) {
			tier := TierForSales(money.MustParse(tc.sales))
			assert.Equal(t, tc.tier, tier)
			assert.Equal(t, tc.rate, money.Format(RateForTier(tier)))
		})
	}
}

func TestTierBonus(t *testing.T) {
	amount := money.MustParse("200.00")
	assert.Equal(t, "0.00", money.Format(TierBonus(enums.ResellerTierBronze, amount)))
	assert.Equal(t, "10.00", money.Format(TierBonus(enums.ResellerTierSilver, amount)))
	assert.Equal(t, "20.00", money.Format(TierBonus(enums.ResellerTierGold, amount)))
	assert.Equal(t, "30.00", money.Format(TierBonus(enums.ResellerTierPlatinum, amount)))
}

func TestNextTier(t *testing.T) {
	next, remaining, ok := NextTier(enums.ResellerTierSilver, money.MustParse("12000"))
	assert.True(t, ok)
	assert.Equal(t, enums.ResellerTierGold, next)
	assert.Equal(t, "3000.00", money.Format(remaining))

	_, _, ok = NextTier(enums.ResellerTierPlatinum, money.MustParse("90000"))
	assert.False(t, ok)
}
