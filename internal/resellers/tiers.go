package resellers

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	"github.com/angelmondragon/earnings-ledger/pkg/money"
)

type tierRule struct {
	tier      enums.ResellerTier
	minSales  decimal.Decimal
	rate      decimal.Decimal
	bonusRate decimal.Decimal
}

// ordered from the highest threshold down
var tierRules = []tierRule{
	{tier: enums.ResellerTierPlatinum, minSales: money.MustParse("50000"), rate: money.MustParse("25.00"), bonusRate: money.MustParse("0.15")},
	{tier: enums.ResellerTierGold, minSales: money.MustParse("15000"), rate: money.MustParse("20.00"), bonusRate: money.MustParse("0.10")},
	{tier: enums.ResellerTierSilver, minSales: money.MustParse("5000"), rate: money.MustParse("15.00"), bonusRate: money.MustParse("0.05")},
	{tier: enums.ResellerTierBronze, minSales: decimal.Zero, rate: money.MustParse("10.00"), bonusRate: decimal.Zero},
}

// TierForSales derives the tier earned by lifetime sales.
func TierForSales(totalSales decimal.Decimal) enums.ResellerTier {
	for _, rule := range tierRules {
		if totalSales.GreaterThanOrEqual(rule.minSales) {
			return rule.tier
		}
	}
	return enums.ResellerTierBronze
}

// RateForTier is the default commission percentage of a tier.
func RateForTier(tier enums.ResellerTier) decimal.Decimal {
	return ruleFor(tier).rate
}

// TierBonus is the extra amount a tier earns on top of a commission amount.
func TierBonus(tier enums.ResellerTier, amount decimal.Decimal) decimal.Decimal {
	return money.Round(amount.Mul(ruleFor(tier).bonusRate))
}

// NextTier returns the tier above the given one and the sales needed to reach
// it from totalSales. ok is false at the top tier.
func NextTier(tier enums.ResellerTier, totalSales decimal.Decimal) (next enums.ResellerTier, remaining decimal.Decimal, ok bool) {
	for i := len(tierRules) - 1; i > 0; i-- {
		if tierRules[i].tier != tier {
			continue
		}
		up := tierRules[i-1]
		remaining = up.minSales.Sub(totalSales)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		return up.tier, remaining, true
	}
	return "", decimal.Zero, false
}

func ruleFor(tier enums.ResellerTier) tierRule {
	for _, rule := range tierRules {
		if rule.tier == tier {
			return rule
		}
	}
	return tierRules[len(tierRules)-1]
}
