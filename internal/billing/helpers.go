package billing

import (
	"time"

	stripe "github.com/stripe/stripe-go/v82"
)

// FormatBillingDate renders a unix timestamp as a human-readable billing
// date, e.g. "January 1, 2025".
func FormatBillingDate(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("January 2, 2006")
}

// subscriptionPeriodEnd extracts the current billing-period boundary. The
// processor reports period ends per subscription item; with a single-plan
// subscription the first item carries it. Returns 0 when absent.
func subscriptionPeriodEnd(sub *stripe.Subscription) int64 {
	if sub == nil || sub.Items == nil {
		return 0
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.CurrentPeriodEnd > 0 {
			return item.CurrentPeriodEnd
		}
	}
	return 0
}

// clientSecretFromSubscription extracts the payment-confirmation secret from
// an expanded latest invoice, if one is pending.
func clientSecretFromSubscription(sub *stripe.Subscription) string {
	if sub == nil || sub.LatestInvoice == nil || sub.LatestInvoice.ConfirmationSecret == nil {
		return ""
	}
	return sub.LatestInvoice.ConfirmationSecret.ClientSecret
}
