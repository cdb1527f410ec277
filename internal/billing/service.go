package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gatekit/gatekit/internal/metrics"
	"github.com/gatekit/gatekit/internal/store"
	"github.com/rs/zerolog/log"
	stripe "github.com/stripe/stripe-go/v82"
	"golang.org/x/sync/singleflight"
)

// PlanConfig describes the single supported subscription plan.
type PlanConfig struct {
	Name       string
	Currency   string
	UnitAmount int64 // smallest currency unit
	Interval   string
}

// UserStore is the subset of the user record store the billing service needs.
// Implemented by *store.UserStore.
type UserStore interface {
	Get(id string) (*store.User, error)
	UpdateStripeInfo(id, customerID, subscriptionID string) error
	UpdateSubscriptionStatus(id, status string, periodEnd *time.Time) error
}

// Service reconciles local subscription state with the billing processor and
// orchestrates subscription creation. Local fields are a display cache; the
// processor remains the source of truth.
type Service struct {
	users   UserStore
	client  *Client
	plan    PlanConfig
	baseURL string
	group   singleflight.Group
}

// NewService creates a billing service bound to a user store and a configured
// processor client.
func NewService(users UserStore, client *Client, plan PlanConfig, baseURL string) *Service {
	return &Service{
		users:   users,
		client:  client,
		plan:    plan,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Status is the reconciled subscription state returned to callers.
type Status struct {
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"currentPeriodEnd,omitempty"`
	NextBillingDate  string `json:"nextBillingDate,omitempty"`
}

// CreateResult is the outcome of a subscription creation. ClientSecret is
// empty when no client-side payment confirmation is pending.
type CreateResult struct {
	SubscriptionID string
	ClientSecret   string
}

// SubscriptionStatus returns the user's current subscription status.
//
// A user with no recorded subscription is authoritatively inactive and costs
// no external call. Otherwise the processor is queried; on drift between the
// fetched and cached status, the local record is updated best-effort — a
// failed write is logged and the response still reflects the fetched status.
func (s *Service) SubscriptionStatus(ctx context.Context, userID string) (Status, error) {
	timer := time.Now()
	st, err := s.subscriptionStatus(ctx, userID)
	observe("subscription_status", timer, err)
	return st, err
}

func (s *Service) subscriptionStatus(ctx context.Context, userID string) (Status, error) {
	u, err := s.users.Get(userID)
	if err != nil {
		return Status{}, fmt.Errorf("load user: %w", err)
	}
	if u == nil || u.StripeSubscriptionID == "" {
		return Status{Status: store.SubscriptionStatusInactive}, nil
	}

	sub, err := s.client.getSubscription(u.StripeSubscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return Status{}, &UpstreamError{Op: "retrieve subscription", Err: err}
	}

	status := string(sub.Status)
	periodEnd := subscriptionPeriodEnd(sub)

	if status != u.SubscriptionStatus {
		metrics.StatusDriftTotal.Inc()
		var pe *time.Time
		if periodEnd > 0 {
			t := time.Unix(periodEnd, 0).UTC()
			pe = &t
		}
		if err := s.users.UpdateSubscriptionStatus(u.ID, status, pe); err != nil {
			// Best-effort write-through. The cached value will converge on a
			// later query; the response carries the fetched status either way.
			log.Error().Err(err).
				Str("user_id", u.ID).
				Str("status", status).
				Msg("Failed to write through subscription status")
		}
	}

	out := Status{Status: status}
	if periodEnd > 0 {
		out.CurrentPeriodEnd = periodEnd
		out.NextBillingDate = FormatBillingDate(periodEnd)
	}
	return out, nil
}

// CreateSubscription creates (or idempotently returns) the user's
// subscription. Concurrent calls for the same user collapse into one
// processor-side creation.
func (s *Service) CreateSubscription(ctx context.Context, userID string) (CreateResult, error) {
	timer := time.Now()
	v, err, _ := s.group.Do(userID, func() (any, error) {
		res, err := s.createSubscription(ctx, userID)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	observe("create_subscription", timer, err)
	if err != nil {
		return CreateResult{}, err
	}
	return v.(CreateResult), nil
}

func (s *Service) createSubscription(ctx context.Context, userID string) (CreateResult, error) {
	u, err := s.users.Get(userID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return CreateResult{}, ErrUserNotFound
	}

	// Idempotent short-circuit: an already-active subscriber gets the same
	// subscription id back with no pending payment confirmation.
	if u.StripeSubscriptionID != "" {
		sub, err := s.client.getSubscription(u.StripeSubscriptionID, &stripe.SubscriptionParams{
			Params: stripe.Params{Context: ctx},
		})
		if err != nil {
			return CreateResult{}, &UpstreamError{Op: "retrieve subscription", Err: err}
		}
		if sub.Status == stripe.SubscriptionStatusActive {
			return CreateResult{SubscriptionID: sub.ID}, nil
		}
	}

	if strings.TrimSpace(u.Email) == "" {
		return CreateResult{}, ErrEmailRequired
	}

	customerID := u.StripeCustomerID
	if customerID == "" {
		name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
		if name == "" {
			name = u.Email
		}
		cus, err := s.client.createCustomer(&stripe.CustomerParams{
			Params: stripe.Params{Context: ctx},
			Email:  stripe.String(u.Email),
			Name:   stripe.String(name),
		})
		if err != nil {
			return CreateResult{}, &UpstreamError{Op: "create customer", Err: err}
		}
		customerID = cus.ID
	}

	prod, err := s.client.createProduct(&stripe.ProductParams{
		Params: stripe.Params{Context: ctx},
		Name:   stripe.String(s.plan.Name),
	})
	if err != nil {
		return CreateResult{}, &UpstreamError{Op: "create product", Err: err}
	}

	pr, err := s.client.createPrice(&stripe.PriceParams{
		Params:     stripe.Params{Context: ctx},
		Currency:   stripe.String(s.plan.Currency),
		UnitAmount: stripe.Int64(s.plan.UnitAmount),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(s.plan.Interval),
		},
		Product: stripe.String(prod.ID),
	})
	if err != nil {
		return CreateResult{}, &UpstreamError{Op: "create price", Err: err}
	}

	subParams := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(pr.ID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	subParams.AddExpand("latest_invoice.confirmation_secret")

	sub, err := s.client.createSubscription(subParams)
	if err != nil {
		return CreateResult{}, &UpstreamError{Op: "create subscription", Err: err}
	}

	// The stored id is the only way later requests find this subscription, so
	// the write must land before responding.
	if err := s.users.UpdateStripeInfo(u.ID, customerID, sub.ID); err != nil {
		return CreateResult{}, fmt.Errorf("persist billing linkage: %w", err)
	}

	log.Info().
		Str("user_id", u.ID).
		Str("customer_id", customerID).
		Str("subscription_id", sub.ID).
		Msg("Subscription created")

	return CreateResult{
		SubscriptionID: sub.ID,
		ClientSecret:   clientSecretFromSubscription(sub),
	}, nil
}

// PortalSessionURL asks the processor for a hosted billing-management URL for
// the user's customer record. No local state is touched.
func (s *Service) PortalSessionURL(ctx context.Context, userID string) (string, error) {
	timer := time.Now()
	url, err := s.portalSessionURL(ctx, userID)
	observe("create_portal_session", timer, err)
	return url, err
}

func (s *Service) portalSessionURL(ctx context.Context, userID string) (string, error) {
	u, err := s.users.Get(userID)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	if u == nil || u.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}

	ps, err := s.client.createPortalSession(&stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(u.StripeCustomerID),
		ReturnURL: stripe.String(s.baseURL + "/"),
	})
	if err != nil {
		return "", &UpstreamError{Op: "create portal session", Err: err}
	}
	return ps.URL, nil
}

func observe(op string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.BillingOpsTotal.WithLabelValues(op, outcome).Inc()
	metrics.BillingOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
