package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"

	"github.com/ananthuhari/servicehub-backend/internal/payments"
	"github.com/ananthuhari/servicehub-backend/pkg/config"
	pkgerrors "github.com/ananthuhari/servicehub-backend/pkg/errors"
	"github.com/ananthuhari/servicehub-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client implements payments.Gateway on top of Stripe checkout sessions.
type Client struct {
	environment string
	logger      *logger.Logger
}

var _ payments.Gateway = (*Client)(nil)

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{environment: env, logger: logg}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreateSession opens a hosted checkout session in payment mode. Line items
// are snapshotted into price data so later catalog edits cannot change what
// the client pays.
func (c *Client) CreateSession(ctx context.Context, input payments.CreateSessionInput) (*payments.SessionOutcome, error) {
	if len(input.LineItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(input.SuccessURL),
		CancelURL:  stripe.String(input.CancelURL),
	}
	params.Context = ctx

	for _, item := range input.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		// Stripe rejects an empty description outright.
		if item.Description != "" {
			product.Description = stripe.String(item.Description)
		}
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(string(stripe.CurrencyINR)),
				UnitAmount:  stripe.Int64(int64(item.AmountCents)),
				ProductData: product,
			},
			Quantity: stripe.Int64(int64(quantity)),
		})
	}
	for key, value := range input.Metadata {
		params.AddMetadata(key, value)
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, mapStripeError(err, "create checkout session")
	}

	return &payments.SessionOutcome{
		SessionRef: sess.ID,
		URL:        sess.URL,
	}, nil
}

// ConfirmSession retrieves the checkout session with its payment intent
// expanded and maps it onto the gateway contract.
func (c *Client) ConfirmSession(ctx context.Context, sessionRef string) (*payments.PaymentOutcome, error) {
	if strings.TrimSpace(sessionRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session ref required")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	sess, err := session.Get(sessionRef, params)
	if err != nil {
		return nil, mapStripeError(err, "retrieve checkout session")
	}
	if sess == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}

	outcome := &payments.PaymentOutcome{
		SessionRef:       sess.ID,
		Paid:             sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		RawStatus:        string(sess.PaymentStatus),
		AmountTotalCents: int(sess.AmountTotal),
		Metadata:         sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		outcome.PaymentRef = sess.PaymentIntent.ID
	}
	return outcome, nil
}

// Refund reverses the captured payment. Declines surface as ok=false rather
// than an error so callers can decide whether the failure blocks them.
func (c *Client) Refund(ctx context.Context, paymentRef string) (*payments.RefundOutcome, error) {
	if strings.TrimSpace(paymentRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment ref required")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentRef),
	}
	params.Context = ctx

	ref, err := refund.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode < 500 {
			if c.logger != nil {
				c.logger.Warn(ctx, fmt.Sprintf("stripe refund rejected: %s", stripeErr.Code))
			}
			return &payments.RefundOutcome{OK: false}, nil
		}
		return nil, mapStripeError(err, "create refund")
	}

	return &payments.RefundOutcome{
		OK:        ref.Status != stripe.RefundStatusFailed,
		RefundRef: ref.ID,
	}, nil
}

func mapStripeError(err error, action string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == 404 {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, action)
		}
		if stripeErr.HTTPStatusCode >= 500 {
			return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, action)
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func normalizeEnv(env string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(env)) {
	case testEnv:
		return testEnv, nil
	case liveEnv:
		return liveEnv, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	if env == liveEnv && strings.HasPrefix(key, "sk_test_") {
		return fmt.Errorf("test api key provided for live environment")
	}
	if env == testEnv && strings.HasPrefix(key, "sk_live_") {
		return fmt.Errorf("live api key provided for test environment")
	}
	return nil
}
