package billing

import (
	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/product"
	"github.com/stripe/stripe-go/v82/subscription"
)

// Client is the single configured entry point to the billing processor,
// constructed once at startup and passed into the handlers that need it.
// The call sites are function fields so tests can substitute fakes without
// touching the network.
type Client struct {
	createCustomer      func(params *stripe.CustomerParams) (*stripe.Customer, error)
	createProduct       func(params *stripe.ProductParams) (*stripe.Product, error)
	createPrice         func(params *stripe.PriceParams) (*stripe.Price, error)
	createSubscription  func(params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	getSubscription     func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	createPortalSession func(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

// NewClient configures the Stripe SDK with the given API key and returns a
// client bound to the real endpoints.
func NewClient(apiKey string) *Client {
	stripe.Key = apiKey
	return &Client{
		createCustomer:      customer.New,
		createProduct:       product.New,
		createPrice:         price.New,
		createSubscription:  subscription.New,
		getSubscription:     subscription.Get,
		createPortalSession: portalsession.New,
	}
}
