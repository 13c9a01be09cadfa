package enums

import "fmt"

// ResellerTier ranks a reseller by lifetime sales; it drives the default commission rate.
type ResellerTier string

const (
	ResellerTierBronze   ResellerTier = "bronze"
	ResellerTierSilver   ResellerTier = "silver"
	ResellerTierGold     ResellerTier = "gold"
	ResellerTierPlatinum ResellerTier = "platinum"
)

var validResellerTiers = []ResellerTier{
	ResellerTierBronze,
	ResellerTierSilver,
	ResellerTierGold,
	ResellerTierPlatinum,
}

// String implements fmt.Stringer.
func (r ResellerTier) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ResellerTier.
func (r ResellerTier) IsValid() bool {
	for _, candidate := range validResellerTiers {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseResellerTier converts raw input into a ResellerTier.
func ParseResellerTier(value string) (ResellerTier, error) {
	for _, candidate := range validResellerTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reseller tier %q", value)
}
