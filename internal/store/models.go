package store

import "time"

// SubscriptionStatusInactive is the local status for users that have never
// subscribed. Every other status value mirrors the billing processor's
// subscription status verbatim (active, incomplete, past_due, canceled, ...).
const SubscriptionStatusInactive = "inactive"

// User is the local mirror of an authenticated user. The profile fields are
// overwritten on every login; the billing fields cache externally-owned state
// and are only ever used for display, never for billing decisions.
type User struct {
	ID                   string     `json:"id"`
	Email                string     `json:"email"`
	FirstName            string     `json:"firstName"`
	LastName             string     `json:"lastName"`
	ProfileImageURL      string     `json:"profileImageUrl"`
	StripeCustomerID     string     `json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string     `json:"stripeSubscriptionId,omitempty"`
	SubscriptionStatus   string     `json:"subscriptionStatus"`
	CurrentPeriodEnd     *time.Time `json:"currentPeriodEnd,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Profile carries the identity-provider fields upserted on each login.
type Profile struct {
	ID              string
	Email           string
	FirstName       string
	LastName        string
	ProfileImageURL string
}
