package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ananthuhari/servicehub-backend/internal/bookings"
	"github.com/ananthuhari/servicehub-backend/internal/cart"
	"github.com/ananthuhari/servicehub-backend/internal/notifications"
	"github.com/ananthuhari/servicehub-backend/internal/payments"
	"github.com/ananthuhari/servicehub-backend/internal/providers"
	"github.com/ananthuhari/servicehub-backend/internal/requests"
	"github.com/ananthuhari/servicehub-backend/pkg/config"
	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	"github.com/ananthuhari/servicehub-backend/pkg/enums"
	pkgerrors "github.com/ananthuhari/servicehub-backend/pkg/errors"
	"github.com/ananthuhari/servicehub-backend/pkg/logger"
	"github.com/ananthuhari/servicehub-backend/pkg/metrics"
	"github.com/ananthuhari/servicehub-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const lockScope = "settle"

// Session metadata keys. CreateSession stamps them, Settle reads them back,
// so both sides of the gateway round trip share one contract.
const (
	metaClientID      = "client_id"
	metaCartID        = "cart_id"
	metaPreferredDate = "preferred_date"
	metaPreferredTime = "preferred_time"
	metaAddress       = "address"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type providerCatalog interface {
	GetService(ctx context.Context, serviceID uuid.UUID) (*models.Service, error)
	ResolveOwningProvider(ctx context.Context, serviceID uuid.UUID) (*models.Provider, error)
}

type earningsLedger interface {
	CreditPending(ctx context.Context, tx *gorm.DB, providerID uuid.UUID, amountCents int) error
}

type notifier interface {
	Emit(ctx context.Context, input notifications.EmitInput)
}

type settleLocker interface {
	Acquire(ctx context.Context, scope, id string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, scope, id string) error
}

// errAlreadySettled aborts the settlement transaction when another settle won
// the unique insert race; the caller re-reads the winner's records.
var errAlreadySettled = errors.New("session already settled")

// CreateSessionInput carries the scheduling details the client picked before
// paying. They ride on the gateway session metadata and land on every service
// request created at settlement.
type CreateSessionInput struct {
	PreferredDate time.Time
	PreferredTime string
	Address       *types.Address
}

// Service opens gateway checkout sessions for a client's cart and converts a
// paid session into bookings and service requests exactly once per
// (session, client) pair.
type Service interface {
	CreateSession(ctx context.Context, clientID uuid.UUID, input CreateSessionInput) (*payments.SessionOutcome, error)
	Settle(ctx context.Context, sessionRef string, callerClientID uuid.UUID) ([]models.ServiceRequest, error)
}

type service struct {
	tx          txRunner
	settlements Repository
	carts       cart.Repository
	bookings    bookings.Repository
	requests    requests.Repository
	catalog     providerCatalog
	ledger      earningsLedger
	notifier    notifier
	gateway     payments.Gateway
	locker      settleLocker
	cfg         config.CheckoutConfig
	log         *logger.Logger
	metrics     *metrics.LifecycleMetrics
}

// NewService builds the checkout reconciler. Metrics are optional.
func NewService(
	tx txRunner,
	settlements Repository,
	carts cart.Repository,
	bookingsRepo bookings.Repository,
	requestsRepo requests.Repository,
	catalog providerCatalog,
	ledgerSvc earningsLedger,
	notifierSvc notifier,
	gateway payments.Gateway,
	locker settleLocker,
	cfg config.CheckoutConfig,
	log *logger.Logger,
	lifecycle *metrics.LifecycleMetrics,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if settlements == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if bookingsRepo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if requestsRepo == nil {
		return nil, fmt.Errorf("request repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("provider catalog required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("earnings ledger required")
	}
	if notifierSvc == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:          tx,
		settlements: settlements,
		carts:       carts,
		bookings:    bookingsRepo,
		requests:    requestsRepo,
		catalog:     catalog,
		ledger:      ledgerSvc,
		notifier:    notifierSvc,
		gateway:     gateway,
		locker:      locker,
		cfg:         cfg,
		log:         log,
		metrics:     lifecycle,
	}, nil
}

// CreateSession snapshots the client's cart into gateway line items and opens
// a hosted checkout session. The session metadata records who is paying and
// what the client scheduled, so settlement can reconstruct both without
// trusting the caller.
func (s *service) CreateSession(ctx context.Context, clientID uuid.UUID, input CreateSessionInput) (*payments.SessionOutcome, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}

	record, err := s.carts.FindByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "no cart to check out for this client")
		}
		return nil, err
	}
	if len(record.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart contains no services")
	}

	lines := make([]payments.SessionLineItem, 0, len(record.Items))
	for _, item := range record.Items {
		catalogService, err := s.catalog.GetService(ctx, item.ServiceID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, payments.SessionLineItem{
			Name:        catalogService.Title,
			Description: catalogService.Description,
			AmountCents: item.PriceCents,
			Quantity:    1,
		})
	}

	metadata := map[string]string{
		metaClientID: clientID.String(),
		metaCartID:   record.ID.String(),
	}
	if !input.PreferredDate.IsZero() {
		metadata[metaPreferredDate] = input.PreferredDate.UTC().Format(time.RFC3339)
	}
	if input.PreferredTime != "" {
		metadata[metaPreferredTime] = input.PreferredTime
	}
	if input.Address != nil && !input.Address.IsZero() {
		if encoded, err := json.Marshal(input.Address); err == nil {
			metadata[metaAddress] = string(encoded)
		}
	}

	outcome, err := s.gateway.CreateSession(ctx, payments.CreateSessionInput{
		LineItems:  lines,
		Metadata:   metadata,
		SuccessURL: s.cfg.SuccessURL(),
		CancelURL:  s.cfg.CancelURL(),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, fmt.Sprintf("checkout session %s opened for client %s with %d lines", outcome.SessionRef, clientID, len(lines)))
	return outcome, nil
}

func (s *service) Settle(ctx context.Context, sessionRef string, callerClientID uuid.UUID) ([]models.ServiceRequest, error) {
	if sessionRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session ref required")
	}

	// Fast idempotency path: a settlement row means the work is already done.
	if callerClientID != uuid.Nil {
		if existing, ok, err := s.findSettled(ctx, sessionRef, callerClientID); err != nil {
			return nil, err
		} else if ok {
			s.incSettlement("replayed")
			return existing, nil
		}
	}

	// The lock keeps concurrent retries from hitting the gateway and the
	// write path at once; the DB unique constraint stays the backstop, so a
	// lost or unavailable lock is only logged.
	acquired, err := s.locker.Acquire(ctx, lockScope, sessionRef, s.cfg.SettleLockTTL)
	if err != nil {
		s.log.Warn(ctx, fmt.Sprintf("settle lock unavailable for session %s, relying on unique constraint", sessionRef))
		acquired = true
	} else if !acquired {
		if callerClientID != uuid.Nil {
			if existing, ok, findErr := s.findSettled(ctx, sessionRef, callerClientID); findErr == nil && ok {
				s.incSettlement("replayed")
				return existing, nil
			}
		}
		return nil, pkgerrors.New(pkgerrors.CodeSettleInProgress, "settlement already in progress for this session")
	}
	if acquired {
		defer func() {
			if releaseErr := s.locker.Release(context.WithoutCancel(ctx), lockScope, sessionRef); releaseErr != nil {
				s.log.Warn(ctx, fmt.Sprintf("release settle lock for session %s: %v", sessionRef, releaseErr))
			}
		}()
	}

	outcome, err := s.gateway.ConfirmSession(ctx, sessionRef)
	if err != nil {
		s.incSettlement("failed")
		return nil, err
	}
	if !outcome.Paid {
		s.incSettlement("failed")
		return nil, pkgerrors.New(pkgerrors.CodePaymentNotCompleted,
			fmt.Sprintf("session is not paid yet (gateway status %q)", outcome.RawStatus)).
			WithDetails(map[string]string{"session_ref": sessionRef})
	}

	clientID, err := resolveClient(callerClientID, outcome)
	if err != nil {
		s.incSettlement("failed")
		return nil, err
	}

	var (
		created       []models.ServiceRequest
		pendingEmails []notifications.EmitInput
	)
	settledAt := time.Now().UTC()
	preferredDate, preferredTime, address := scheduleFromMetadata(outcome.Metadata, settledAt)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.carts.WithTx(tx)
		record, err := cartRepo.FindByClientID(ctx, clientID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeEmptyCart, "no cart to settle for this client")
			}
			return err
		}
		if len(record.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart contains no services")
		}

		settlement := &models.CheckoutSettlement{
			ID:         uuid.New(),
			SessionRef: sessionRef,
			ClientID:   clientID,
			LineCount:  len(record.Items),
			TotalCents: record.TotalCents,
			SettledAt:  settledAt,
		}
		if err := s.settlements.WithTx(tx).Create(ctx, settlement); err != nil {
			if pkgerrors.IsUniqueViolation(err) {
				return errAlreadySettled
			}
			return err
		}

		bookingRepo := s.bookings.WithTx(tx)
		requestRepo := s.requests.WithTx(tx)
		for _, item := range record.Items {
			booking := &models.Booking{
				ID:            uuid.New(),
				ClientID:      clientID,
				ServiceID:     item.ServiceID,
				BookingDate:   settledAt,
				PaymentMethod: enums.PaymentMethodOnline,
				TotalCents:    item.PriceCents,
				Status:        enums.BookingStatusConfirmed,
				PaymentStatus: enums.PaymentStatusPaid,
				SessionRef:    &sessionRef,
			}
			if outcome.PaymentRef != "" {
				booking.PaymentRef = &outcome.PaymentRef
			}
			if err := bookingRepo.Create(ctx, booking); err != nil {
				return err
			}

			provider, err := s.catalog.ResolveOwningProvider(ctx, item.ServiceID)
			if err != nil {
				if errors.Is(err, providers.ErrNoOwningProvider) {
					// The line degrades to a booking-only record.
					s.log.Warn(ctx, fmt.Sprintf("service %s has no owning provider, settling as booking only", item.ServiceID))
					continue
				}
				return err
			}

			request := &models.ServiceRequest{
				ID:            uuid.New(),
				ClientID:      clientID,
				ProviderID:    provider.ID,
				ServiceID:     item.ServiceID,
				RequestedAt:   settledAt,
				PreferredDate: preferredDate,
				PreferredTime: preferredTime,
				Address:       address,
				TotalCents:    item.PriceCents,
				PaymentMethod: enums.PaymentMethodOnline,
				Status:        enums.RequestStatusPending,
				PaymentStatus: enums.PaymentStatusPaid,
				PayoutStatus:  enums.PayoutStatusPending,
				SessionRef:    &sessionRef,
			}
			if outcome.PaymentRef != "" {
				request.PaymentRef = &outcome.PaymentRef
			}
			if err := requestRepo.Create(ctx, request); err != nil {
				return err
			}
			if err := s.ledger.CreditPending(ctx, tx, provider.ID, item.PriceCents); err != nil {
				return err
			}

			created = append(created, *request)
			pendingEmails = append(pendingEmails, notifications.EmitInput{
				RecipientID:   provider.ID,
				RecipientRole: enums.ActorRoleProvider,
				Type:          enums.NotificationTypeRequestReceived,
				Title:         "New service request",
				Message:       "A paid booking request is waiting for your response",
				RelatedID:     &request.ID,
			})
		}

		return cartRepo.Clear(ctx, record.ID)
	})
	if err != nil {
		if errors.Is(err, errAlreadySettled) {
			existing, err := s.requests.FindBySessionAndClient(ctx, sessionRef, clientID)
			if err != nil {
				return nil, err
			}
			s.incSettlement("replayed")
			return existing, nil
		}
		s.incSettlement("failed")
		return nil, err
	}

	for _, email := range pendingEmails {
		s.notifier.Emit(ctx, email)
	}
	s.incSettlement("created")
	return created, nil
}

func (s *service) findSettled(ctx context.Context, sessionRef string, clientID uuid.UUID) ([]models.ServiceRequest, bool, error) {
	_, err := s.settlements.FindBySessionAndClient(ctx, sessionRef, clientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	existing, err := s.requests.FindBySessionAndClient(ctx, sessionRef, clientID)
	if err != nil {
		return nil, false, err
	}
	return existing, true, nil
}

// scheduleFromMetadata recovers the scheduling choices stamped on the session
// at creation. Missing or malformed values degrade to the settlement time
// rather than failing a paid settlement.
func scheduleFromMetadata(meta map[string]string, settledAt time.Time) (time.Time, string, *types.Address) {
	preferredDate := settledAt
	if raw := meta[metaPreferredDate]; raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			preferredDate = parsed.UTC()
		} else if parsed, err := time.Parse(time.DateOnly, raw); err == nil {
			preferredDate = parsed.UTC()
		}
	}

	var address *types.Address
	if raw := meta[metaAddress]; raw != "" {
		parsed := &types.Address{}
		if err := json.Unmarshal([]byte(raw), parsed); err != nil {
			// A session stamped with a plain string keeps it as the street line.
			address = &types.Address{Street: raw}
		} else if !parsed.IsZero() {
			address = parsed
		}
	}

	return preferredDate, meta[metaPreferredTime], address
}

// resolveClient cross-checks the caller against the session owner recorded in
// the gateway metadata at session creation.
func resolveClient(callerClientID uuid.UUID, outcome *payments.PaymentOutcome) (uuid.UUID, error) {
	metaClient := uuid.Nil
	if raw, ok := outcome.Metadata[metaClientID]; ok && raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeDependency, "session carries a malformed client id")
		}
		metaClient = parsed
	}

	switch {
	case callerClientID == uuid.Nil && metaClient == uuid.Nil:
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot determine the client for this session")
	case callerClientID == uuid.Nil:
		return metaClient, nil
	case metaClient != uuid.Nil && metaClient != callerClientID:
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "session belongs to another client")
	default:
		return callerClientID, nil
	}
}

func (s *service) incSettlement(outcome string) {
	if s.metrics != nil {
		s.metrics.IncSettlement(outcome)
	}
}
