package billing

import (
	"testing"

	stripe "github.com/stripe/stripe-go/v82"
)

func TestFormatBillingDate(t *testing.T) {
	cases := []struct {
		unix int64
		want string
	}{
		{1735689600, "January 1, 2025"},
		{1767225600, "January 1, 2026"},
		{1753920000, "July 31, 2025"},
	}
	for _, tc := range cases {
		if got := FormatBillingDate(tc.unix); got != tc.want {
			t.Errorf("FormatBillingDate(%d) = %q, want %q", tc.unix, got, tc.want)
		}
	}
}

func TestSubscriptionPeriodEnd(t *testing.T) {
	if got := subscriptionPeriodEnd(nil); got != 0 {
		t.Errorf("nil subscription period end = %d, want 0", got)
	}
	if got := subscriptionPeriodEnd(&stripe.Subscription{}); got != 0 {
		t.Errorf("empty subscription period end = %d, want 0", got)
	}

	sub := &stripe.Subscription{
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{CurrentPeriodEnd: 0},
				{CurrentPeriodEnd: 1735689600},
			},
		},
	}
	if got := subscriptionPeriodEnd(sub); got != 1735689600 {
		t.Errorf("period end = %d, want 1735689600", got)
	}
}

func TestClientSecretFromSubscription(t *testing.T) {
	if got := clientSecretFromSubscription(nil); got != "" {
		t.Errorf("nil subscription secret = %q, want empty", got)
	}
	if got := clientSecretFromSubscription(&stripe.Subscription{LatestInvoice: &stripe.Invoice{}}); got != "" {
		t.Errorf("invoice without secret = %q, want empty", got)
	}

	sub := &stripe.Subscription{
		LatestInvoice: &stripe.Invoice{
			ConfirmationSecret: &stripe.InvoiceConfirmationSecret{ClientSecret: "pi_secret"},
		},
	}
	if got := clientSecretFromSubscription(sub); got != "pi_secret" {
		t.Errorf("secret = %q, want pi_secret", got)
	}
}
