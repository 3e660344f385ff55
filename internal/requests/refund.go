package requests

import (
	"context"
	"fmt"

	"github.com/ananthuhari/servicehub-backend/internal/payments"
	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
)

// refundCoordinator is a thin wrapper over the gateway refund primitive. It
// resolves a payment reference for the request and reports the outcome
// without deciding whether a failure blocks the caller's transition.
type refundCoordinator struct {
	gateway payments.Gateway
}

type refundResult struct {
	OK        bool
	RefundRef string
	Reason    string
}

func (c *refundCoordinator) Refund(ctx context.Context, request *models.ServiceRequest) refundResult {
	paymentRef, err := c.resolvePaymentRef(ctx, request)
	if err != nil {
		return refundResult{OK: false, Reason: err.Error()}
	}

	outcome, err := c.gateway.Refund(ctx, paymentRef)
	if err != nil {
		return refundResult{OK: false, Reason: err.Error()}
	}
	if !outcome.OK {
		return refundResult{OK: false, Reason: "gateway declined the refund"}
	}
	return refundResult{OK: true, RefundRef: outcome.RefundRef}
}

// resolvePaymentRef prefers the stored payment reference and falls back to
// confirming the session, which carries the payment reference once paid.
func (c *refundCoordinator) resolvePaymentRef(ctx context.Context, request *models.ServiceRequest) (string, error) {
	if request.PaymentRef != nil && *request.PaymentRef != "" {
		return *request.PaymentRef, nil
	}
	if request.SessionRef == nil || *request.SessionRef == "" {
		return "", fmt.Errorf("request %s has no payment or session reference", request.ID)
	}

	outcome, err := c.gateway.ConfirmSession(ctx, *request.SessionRef)
	if err != nil {
		return "", fmt.Errorf("resolve payment ref via session: %w", err)
	}
	if outcome.PaymentRef == "" {
		return "", fmt.Errorf("session %s carries no payment reference", *request.SessionRef)
	}
	return outcome.PaymentRef, nil
}
