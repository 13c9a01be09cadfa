package enums

import "fmt"

// PayoutStatus tracks a withdrawal request against a reseller balance.
type PayoutStatus string

const (
	PayoutStatusRequested  PayoutStatus = "requested"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusCancelled  PayoutStatus = "cancelled"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusRequested,
	PayoutStatusProcessing,
	PayoutStatusCompleted,
	PayoutStatusFailed,
	PayoutStatusCancelled,
}

// String implements fmt.Stringer.
func (p PayoutStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutStatus.
func (p PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}

// HoldsReservation reports whether a payout in this status still holds the
// amount it took out of the reseller's pending balance.
func (p PayoutStatus) HoldsReservation() bool {
	return p == PayoutStatusRequested || p == PayoutStatusProcessing
}

// PayoutStatusValues lists every known PayoutStatus in lifecycle order.
func PayoutStatusValues() []PayoutStatus {
	return append([]PayoutStatus(nil), validPayoutStatuses...)
}
