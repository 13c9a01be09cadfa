package enums

import "testing"

func TestParseRoundTrips(t *testing.T) {
	if got, err := ParseCommissionStatus("approved"); err != nil || got != CommissionStatusApproved {
		t.Fatalf("unexpected commission status %q err=%v", got, err)
	}
	if _, err := ParseInvoiceStatus("void"); err == nil {
		t.Fatal("expected unknown invoice status to fail")
	}
	if got, err := ParsePayoutMethod("bank_transfer"); err != nil || got != PayoutMethodBankTransfer {
		t.Fatalf("unexpected payout method %q err=%v", got, err)
	}
	if ResellerTier("diamond").IsValid() {
		t.Fatal("diamond is not a tier")
	}
}

func TestPayoutStatusHoldsReservation(t *testing.T) {
	cases := map[PayoutStatus]bool{
		PayoutStatusRequested:  true,
		PayoutStatusProcessing: true,
		PayoutStatusCompleted:  false,
		PayoutStatusFailed:     false,
		PayoutStatusCancelled:  false,
	}
	for status, want := range cases {
		if got := status.HoldsReservation(); got != want {
			t.Fatalf("%s: expected %v got %v", status, want, got)
		}
	}
}
