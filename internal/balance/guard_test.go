package balance

import "testing"

func TestValidate(t *testing.T) {
	cases := []struct {
		name        string
		amount      float64
		minNotional float64
		available   float64
		wantOK      bool
		wantReason  RejectReason
	}{
		{"below minimum", 4.99, 5.00, 100, false, RejectBelowMinimum},
		{"insufficient funds", 10, 5, 5, false, RejectInsufficientFunds},
		{"exact boundary passes", 5, 5, 5, true, ""},
		{"comfortable pass", 20, 5, 100, true, ""},
		{"minimum checked before funds", 1, 5, 0, false, RejectBelowMinimum},
		{"zero amount", 0, 5, 100, false, RejectBelowMinimum},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Validate(tc.amount, tc.minNotional, tc.available)
			if got.OK != tc.wantOK {
				t.Fatalf("Validate(%.2f, %.2f, %.2f): OK=%v, want %v",
					tc.amount, tc.minNotional, tc.available, got.OK, tc.wantOK)
			}
			if got.Reason != tc.wantReason {
				t.Errorf("reason=%q, want %q", got.Reason, tc.wantReason)
			}
		})
	}
}
