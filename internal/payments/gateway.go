package payments

import "context"

// SessionLineItem is one purchasable line snapshotted into a gateway
// checkout session at creation time.
type SessionLineItem struct {
	Name        string
	Description string
	AmountCents int
	Quantity    int
}

// CreateSessionInput carries everything the gateway needs to host a checkout
// page. Metadata is echoed back verbatim on confirmation, so callers use it
// to stamp the ownership and scheduling contract settlement relies on.
type CreateSessionInput struct {
	LineItems  []SessionLineItem
	Metadata   map[string]string
	SuccessURL string
	CancelURL  string
}

// SessionOutcome identifies a freshly created checkout session.
type SessionOutcome struct {
	SessionRef string
	URL        string
}

// PaymentOutcome reports the state of one gateway checkout session.
type PaymentOutcome struct {
	SessionRef string
	Paid       bool
	// RawStatus carries the gateway's own status string for logging.
	RawStatus string
	// PaymentRef identifies the captured payment for later refunds.
	PaymentRef       string
	AmountTotalCents int
	Metadata         map[string]string
}

// RefundOutcome reports whether the gateway accepted a refund.
type RefundOutcome struct {
	OK        bool
	RefundRef string
}

// Gateway is the external payment capability consumed by checkout and the
// request state machine. Implementations must be safe for concurrent use.
type Gateway interface {
	// CreateSession opens a hosted checkout session for the given line items.
	CreateSession(ctx context.Context, input CreateSessionInput) (*SessionOutcome, error)
	// ConfirmSession retrieves the session and reports whether it is paid.
	ConfirmSession(ctx context.Context, sessionRef string) (*PaymentOutcome, error)
	// Refund reverses the captured payment identified by paymentRef.
	Refund(ctx context.Context, paymentRef string) (*RefundOutcome, error)
}
