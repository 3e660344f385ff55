package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ananthuhari/servicehub-backend/internal/notifications"
	"github.com/ananthuhari/servicehub-backend/internal/payments"
	"github.com/ananthuhari/servicehub-backend/internal/providers"
	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	"github.com/ananthuhari/servicehub-backend/pkg/enums"
	pkgerrors "github.com/ananthuhari/servicehub-backend/pkg/errors"
	"github.com/ananthuhari/servicehub-backend/pkg/logger"
	"github.com/ananthuhari/servicehub-backend/pkg/metrics"
	"github.com/ananthuhari/servicehub-backend/pkg/pagination"
	"github.com/ananthuhari/servicehub-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type earningsLedger interface {
	SettleToPaid(ctx context.Context, tx *gorm.DB, providerID uuid.UUID, amountCents int) error
	ReverseOnRefund(ctx context.Context, tx *gorm.DB, providerID uuid.UUID, amountCents int, payoutSettled bool) error
}

type providerCatalog interface {
	GetService(ctx context.Context, serviceID uuid.UUID) (*models.Service, error)
	ResolveOwningProvider(ctx context.Context, serviceID uuid.UUID) (*models.Provider, error)
	ApplyRating(ctx context.Context, tx *gorm.DB, providerID uuid.UUID, rating int) error
}

type notifier interface {
	Emit(ctx context.Context, input notifications.EmitInput)
}

// Actor identifies who invokes a lifecycle operation. For providers the ID is
// the provider id, not the underlying user id.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// CreateRequestInput captures a direct (non-checkout) request creation.
type CreateRequestInput struct {
	ClientID      uuid.UUID
	ServiceID     uuid.UUID
	PreferredDate time.Time
	PreferredTime string
	Address       *types.Address
	Description   string
	PaymentMethod enums.PaymentMethod
}

// TransitionResult reports a committed transition plus the outcome of its
// best-effort refund. A failed refund never rolls back the status change; the
// caller surfaces the warning for manual reconciliation.
type TransitionResult struct {
	Request             *models.ServiceRequest `json:"request"`
	RefundAttempted     bool                   `json:"refund_attempted"`
	RefundFailed        bool                   `json:"refund_failed"`
	RefundFailureReason string                 `json:"refund_failure_reason,omitempty"`
}

// ListResult wraps returned requests and the cursor for the next page.
type ListResult struct {
	Items  []models.ServiceRequest `json:"items"`
	Cursor string                  `json:"cursor"`
}

// Service drives a service request through its lifecycle. Every transition
// runs in one transaction holding a row lock on the request, so concurrent
// actions on the same request serialize and financial side effects execute
// at most once.
type Service interface {
	Create(ctx context.Context, input CreateRequestInput) (*models.ServiceRequest, error)
	Get(ctx context.Context, actor Actor, requestID uuid.UUID) (*models.ServiceRequest, error)
	ListForClient(ctx context.Context, clientID uuid.UUID, params pagination.Params) (*ListResult, error)
	ListForProvider(ctx context.Context, providerID uuid.UUID, params pagination.Params) (*ListResult, error)
	Accept(ctx context.Context, providerID, requestID uuid.UUID) (*models.ServiceRequest, error)
	Decline(ctx context.Context, providerID, requestID uuid.UUID, reason string) (*TransitionResult, error)
	Start(ctx context.Context, providerID, requestID uuid.UUID) (*models.ServiceRequest, error)
	MarkCompleted(ctx context.Context, actor Actor, requestID uuid.UUID) (*models.ServiceRequest, error)
	Cancel(ctx context.Context, actor Actor, requestID uuid.UUID) (*TransitionResult, error)
	Rate(ctx context.Context, clientID, requestID uuid.UUID, rating int, review string) (*models.ServiceRequest, error)
}

type service struct {
	tx       txRunner
	repo     Repository
	ledger   earningsLedger
	catalog  providerCatalog
	notifier notifier
	refunds  *refundCoordinator
	log      *logger.Logger
	metrics  *metrics.LifecycleMetrics
}

// NewService wires the request state machine. Metrics are optional.
func NewService(
	tx txRunner,
	repo Repository,
	ledgerSvc earningsLedger,
	catalog providerCatalog,
	notifierSvc notifier,
	gateway payments.Gateway,
	log *logger.Logger,
	lifecycle *metrics.LifecycleMetrics,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("request repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("earnings ledger required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("provider catalog required")
	}
	if notifierSvc == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:       tx,
		repo:     repo,
		ledger:   ledgerSvc,
		catalog:  catalog,
		notifier: notifierSvc,
		refunds:  &refundCoordinator{gateway: gateway},
		log:      log,
		metrics:  lifecycle,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateRequestInput) (*models.ServiceRequest, error) {
	if input.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if input.ServiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service id required")
	}
	if input.PaymentMethod == "" {
		input.PaymentMethod = enums.PaymentMethodCash
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}

	catalogEntry, err := s.catalog.GetService(ctx, input.ServiceID)
	if err != nil {
		return nil, err
	}
	provider, err := s.catalog.ResolveOwningProvider(ctx, input.ServiceID)
	if err != nil {
		if errors.Is(err, providers.ErrNoOwningProvider) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service has no owning provider")
		}
		return nil, err
	}
	if provider.Verification != enums.VerificationStatusVerified {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "provider is not verified yet")
	}
	if !provider.IsActive || !provider.IsAvailable {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "provider is not taking requests")
	}

	request := &models.ServiceRequest{
		ID:            uuid.New(),
		ClientID:      input.ClientID,
		ProviderID:    provider.ID,
		ServiceID:     input.ServiceID,
		RequestedAt:   time.Now().UTC(),
		PreferredDate: input.PreferredDate,
		PreferredTime: input.PreferredTime,
		Address:       input.Address,
		Description:   input.Description,
		TotalCents:    catalogEntry.PriceCents,
		PaymentMethod: input.PaymentMethod,
		Status:        enums.RequestStatusPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create service request")
	}

	s.notifier.Emit(ctx, notifications.EmitInput{
		RecipientID:   provider.ID,
		RecipientRole: enums.ActorRoleProvider,
		Type:          enums.NotificationTypeRequestReceived,
		Title:         "New service request",
		Message:       fmt.Sprintf("You received a new request for %s", catalogEntry.Title),
		RelatedID:     &request.ID,
	})
	return request, nil
}

func (s *service) Get(ctx context.Context, actor Actor, requestID uuid.UUID) (*models.ServiceRequest, error) {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, request); err != nil {
		return nil, err
	}
	return request, nil
}

func (s *service) ListForClient(ctx context.Context, clientID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	return s.list(ctx, params, func(cursor *pagination.Cursor) ([]models.ServiceRequest, *pagination.Cursor, error) {
		return s.repo.ListByClientID(ctx, clientID, params.Limit, cursor)
	})
}

func (s *service) ListForProvider(ctx context.Context, providerID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if providerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider id required")
	}
	return s.list(ctx, params, func(cursor *pagination.Cursor) ([]models.ServiceRequest, *pagination.Cursor, error) {
		return s.repo.ListByProviderID(ctx, providerID, params.Limit, cursor)
	})
}

func (s *service) list(ctx context.Context, params pagination.Params, fetch func(*pagination.Cursor) ([]models.ServiceRequest, *pagination.Cursor, error)) (*ListResult, error) {
	var cursor *pagination.Cursor
	if params.Cursor != "" {
		parsed, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		cursor = parsed
	}

	rows, next, err := fetch(cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list service requests")
	}
	encoded := ""
	if next != nil {
		encoded = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: encoded}, nil
}

func (s *service) Accept(ctx context.Context, providerID, requestID uuid.UUID) (*models.ServiceRequest, error) {
	var result *models.ServiceRequest
	alreadyAccepted := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		request, err := s.lockRow(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request.ProviderID != providerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "request targets another provider")
		}
		if request.Status == enums.RequestStatusAccepted {
			result = request
			alreadyAccepted = true
			return nil
		}
		if request.Status != enums.RequestStatusPending {
			return transitionError("accept", request.Status)
		}

		request.Status = enums.RequestStatusAccepted
		request.ProviderResponse = enums.ProviderResponseAccepted
		if err := s.repo.WithTx(tx).Save(ctx, request); err != nil {
			return err
		}
		result = request
		return nil
	})
	if err != nil {
		s.incTransition("accept", "failed")
		return nil, err
	}
	if alreadyAccepted {
		s.incTransition("accept", "replayed")
		return result, nil
	}
	s.incTransition("accept", "ok")

	s.notifier.Emit(ctx, notifications.EmitInput{
		RecipientID:   result.ClientID,
		RecipientRole: enums.ActorRoleClient,
		Type:          enums.NotificationTypeRequestAccepted,
		Title:         "Request accepted",
		Message:       "Your service request was accepted by the provider",
		RelatedID:     &result.ID,
	})
	return result, nil
}

func (s *service) Decline(ctx context.Context, providerID, requestID uuid.UUID, reason string) (*TransitionResult, error) {
	result := &TransitionResult{}
	alreadyTerminal := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		request, err := s.lockRow(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request.ProviderID != providerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "request targets another provider")
		}
		if request.Status == enums.RequestStatusDeclined {
			result.Request = request
			alreadyTerminal = true
			return nil
		}
		if request.Status != enums.RequestStatusPending {
			return transitionError("decline", request.Status)
		}

		request.Status = enums.RequestStatusDeclined
		request.ProviderResponse = enums.ProviderResponseDeclined
		request.DeclinedReason = reason

		s.applyRefund(ctx, tx, request, result)
		if err := s.repo.WithTx(tx).Save(ctx, request); err != nil {
			return err
		}
		result.Request = request
		return nil
	})
	if err != nil {
		s.incTransition("decline", "failed")
		return nil, err
	}
	if alreadyTerminal {
		s.incTransition("decline", "replayed")
		return result, nil
	}
	s.incTransition("decline", "ok")

	s.notifier.Emit(ctx, notifications.EmitInput{
		RecipientID:   result.Request.ClientID,
		RecipientRole: enums.ActorRoleClient,
		Type:          enums.NotificationTypeRequestDeclined,
		Title:         "Request declined",
		Message:       fmt.Sprintf("Your service request was declined: %s", reason),
		RelatedID:     &result.Request.ID,
	})
	return result, nil
}

func (s *service) Start(ctx context.Context, providerID, requestID uuid.UUID) (*models.ServiceRequest, error) {
	var result *models.ServiceRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		request, err := s.lockRow(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request.ProviderID != providerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "request targets another provider")
		}
		if request.Status == enums.RequestStatusInProgress {
			result = request
			return nil
		}
		if request.Status != enums.RequestStatusAccepted {
			return transitionError("start", request.Status)
		}

		request.Status = enums.RequestStatusInProgress
		if err := s.repo.WithTx(tx).Save(ctx, request); err != nil {
			return err
		}
		result = request
		return nil
	})
	if err != nil {
		s.incTransition("start", "failed")
		return nil, err
	}
	s.incTransition("start", "ok")

	s.notifier.Emit(ctx, notifications.EmitInput{
		RecipientID:   result.ClientID,
		RecipientRole: enums.ActorRoleClient,
		Type:          enums.NotificationTypeRequestUpdated,
		Title:         "Work started",
		Message:       "The provider started working on your request",
		RelatedID:     &result.ID,
	})
	return result, nil
}

func (s *service) MarkCompleted(ctx context.Context, actor Actor, requestID uuid.UUID) (*models.ServiceRequest, error) {
	var result *models.ServiceRequest
	alreadyCompleted := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		request, err := s.lockRow(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := authorize(actor, request); err != nil {
			return err
		}
		if request.Status == enums.RequestStatusCompleted {
			result = request
			alreadyCompleted = true
			return nil
		}
		if request.Status == enums.RequestStatusDeclined || request.Status == enums.RequestStatusCancelled {
			return transitionError("complete", request.Status)
		}

		request.Status = enums.RequestStatusCompleted
		if request.CompletedAt == nil {
			now := time.Now().UTC()
			request.CompletedAt = &now
		}

		// The payout settles exactly once, gated on the pending payout of a
		// paid request.
		if request.PaymentStatus == enums.PaymentStatusPaid && request.PayoutStatus == enums.PayoutStatusPending {
			if err := s.ledger.SettleToPaid(ctx, tx, request.ProviderID, request.TotalCents); err != nil {
				return err
			}
			request.PayoutStatus = enums.PayoutStatusPaid
		}

		if err := s.repo.WithTx(tx).Save(ctx, request); err != nil {
			return err
		}
		result = request
		return nil
	})
	if err != nil {
		s.incTransition("complete", "failed")
		return nil, err
	}
	if alreadyCompleted {
		s.incTransition("complete", "replayed")
		return result, nil
	}
	s.incTransition("complete", "ok")

	// The counterpart of whoever confirmed gets notified.
	recipient := result.ProviderID
	recipientRole := enums.ActorRoleProvider
	if actor.Role == enums.ActorRoleProvider {
		recipient = result.ClientID
		recipientRole = enums.ActorRoleClient
	}
	s.notifier.Emit(ctx, notifications.EmitInput{
		RecipientID:   recipient,
		RecipientRole: recipientRole,
		Type:          enums.NotificationTypeRequestCompleted,
		Title:         "Request completed",
		Message:       "The service request was marked completed",
		RelatedID:     &result.ID,
	})
	return result, nil
}

func (s *service) Cancel(ctx context.Context, actor Actor, requestID uuid.UUID) (*TransitionResult, error) {
	result := &TransitionResult{}
	alreadyCancelled := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		request, err := s.lockRow(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := authorize(actor, request); err != nil {
			return err
		}
		if request.Status == enums.RequestStatusCancelled {
			result.Request = request
			alreadyCancelled = true
			return nil
		}
		if request.Status == enums.RequestStatusCompleted || request.Status == enums.RequestStatusDeclined {
			return transitionError("cancel", request.Status)
		}

		request.Status = enums.RequestStatusCancelled

		s.applyRefund(ctx, tx, request, result)
		if err := s.repo.WithTx(tx).Save(ctx, request); err != nil {
			return err
		}
		result.Request = request
		return nil
	})
	if err != nil {
		s.incTransition("cancel", "failed")
		return nil, err
	}
	if alreadyCancelled {
		s.incTransition("cancel", "replayed")
		return result, nil
	}
	s.incTransition("cancel", "ok")

	recipient := result.Request.ProviderID
	recipientRole := enums.ActorRoleProvider
	if actor.Role == enums.ActorRoleProvider {
		recipient = result.Request.ClientID
		recipientRole = enums.ActorRoleClient
	}
	s.notifier.Emit(ctx, notifications.EmitInput{
		RecipientID:   recipient,
		RecipientRole: recipientRole,
		Type:          enums.NotificationTypeRequestCancelled,
		Title:         "Request cancelled",
		Message:       "The service request was cancelled",
		RelatedID:     &result.Request.ID,
	})
	return result, nil
}

func (s *service) Rate(ctx context.Context, clientID, requestID uuid.UUID, rating int, review string) (*models.ServiceRequest, error) {
	if rating < 1 || rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}

	var result *models.ServiceRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		request, err := s.lockRow(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request.ClientID != clientID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "request belongs to another client")
		}
		if request.Status != enums.RequestStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only completed requests can be rated")
		}
		if request.ClientRating != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "request already rated")
		}

		request.ClientRating = &rating
		if review != "" {
			request.ClientReview = &review
		}
		if err := s.catalog.ApplyRating(ctx, tx, request.ProviderID, rating); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Save(ctx, request); err != nil {
			return err
		}
		result = request
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyRefund runs the best-effort refund path shared by decline and cancel.
// On gateway success it flips the payment fields and reverses the earnings
// credit; on failure it leaves them untouched and records the warning, so the
// status change still commits.
func (s *service) applyRefund(ctx context.Context, tx *gorm.DB, request *models.ServiceRequest, result *TransitionResult) {
	if request.PaymentStatus != enums.PaymentStatusPaid || request.PayoutStatus == enums.PayoutStatusRefunded {
		return
	}
	result.RefundAttempted = true

	refund := s.refunds.Refund(ctx, request)
	if !refund.OK {
		result.RefundFailed = true
		result.RefundFailureReason = refund.Reason
		s.incRefund("failed")
		s.log.Warn(ctx, fmt.Sprintf("refund failed for request %s, manual reconciliation required: %s", request.ID, refund.Reason))
		return
	}

	payoutSettled := request.PayoutStatus == enums.PayoutStatusPaid
	if err := s.ledger.ReverseOnRefund(ctx, tx, request.ProviderID, request.TotalCents, payoutSettled); err != nil {
		// The gateway already refunded; failing the transaction now would
		// leave the client refunded but the request active. Record the
		// refund anyway and flag the ledger gap.
		result.RefundFailed = true
		result.RefundFailureReason = fmt.Sprintf("refund succeeded but ledger reversal failed: %v", err)
		s.incRefund("ledger_failed")
		s.log.Error(ctx, "ledger reversal failed after refund", err)
	} else {
		s.incRefund("ok")
	}
	request.PaymentStatus = enums.PaymentStatusRefunded
	request.PayoutStatus = enums.PayoutStatusRefunded
	if refund.RefundRef != "" && request.PaymentRef == nil {
		request.PaymentRef = &refund.RefundRef
	}
}

func (s *service) lockRow(ctx context.Context, tx *gorm.DB, requestID uuid.UUID) (*models.ServiceRequest, error) {
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	request, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service request not found")
		}
		return nil, err
	}
	return request, nil
}

func (s *service) load(ctx context.Context, requestID uuid.UUID) (*models.ServiceRequest, error) {
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service request not found")
		}
		return nil, err
	}
	return request, nil
}

func (s *service) incTransition(action, outcome string) {
	if s.metrics != nil {
		s.metrics.IncTransition(action, outcome)
	}
}

func (s *service) incRefund(outcome string) {
	if s.metrics != nil {
		s.metrics.IncRefund(outcome)
	}
}

func authorize(actor Actor, request *models.ServiceRequest) error {
	switch actor.Role {
	case enums.ActorRoleAdmin:
		return nil
	case enums.ActorRoleClient:
		if request.ClientID == actor.ID {
			return nil
		}
	case enums.ActorRoleProvider:
		if request.ProviderID == actor.ID {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "actor is not a party to this request")
}

func transitionError(action string, status enums.RequestStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("cannot %s a request in status %s", action, status))
}
