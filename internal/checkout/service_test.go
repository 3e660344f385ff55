package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
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
	"github.com/ananthuhari/servicehub-backend/pkg/pagination"
	"github.com/ananthuhari/servicehub-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type settlementKey struct {
	sessionRef string
	clientID   uuid.UUID
}

type fakeSettlementRepo struct {
	rows map[settlementKey]*models.CheckoutSettlement
	// missFinds makes that many lookups report not-found, simulating the
	// window where a concurrent settle commits between the pre-check and
	// the insert.
	missFinds int
}

func newFakeSettlementRepo() *fakeSettlementRepo {
	return &fakeSettlementRepo{rows: map[settlementKey]*models.CheckoutSettlement{}}
}

func (f *fakeSettlementRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeSettlementRepo) Create(ctx context.Context, settlement *models.CheckoutSettlement) error {
	key := settlementKey{settlement.SessionRef, settlement.ClientID}
	if _, ok := f.rows[key]; ok {
		return &pgconn.PgError{Code: "23505", ConstraintName: "idx_settlements_session_client"}
	}
	f.rows[key] = settlement
	return nil
}

func (f *fakeSettlementRepo) FindBySessionAndClient(ctx context.Context, sessionRef string, clientID uuid.UUID) (*models.CheckoutSettlement, error) {
	if f.missFinds > 0 {
		f.missFinds--
		return nil, gorm.ErrRecordNotFound
	}
	row, ok := f.rows[settlementKey{sessionRef, clientID}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

type fakeCartRepo struct {
	mu         sync.Mutex
	record     *models.CartRecord
	clearCalls int
}

func (f *fakeCartRepo) WithTx(tx *gorm.DB) cart.Repository { return f }

func (f *fakeCartRepo) FindByClientID(ctx context.Context, clientID uuid.UUID) (*models.CartRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.record == nil || f.record.ClientID != clientID {
		return nil, gorm.ErrRecordNotFound
	}
	snapshot := *f.record
	return &snapshot, nil
}

func (f *fakeCartRepo) FindOrCreateByClientID(ctx context.Context, clientID uuid.UUID) (*models.CartRecord, error) {
	return f.FindByClientID(ctx, clientID)
}

func (f *fakeCartRepo) AddItem(ctx context.Context, item *models.CartItem) error { return nil }

func (f *fakeCartRepo) RemoveItems(ctx context.Context, cartID, serviceID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeCartRepo) RecalculateTotal(ctx context.Context, cartID uuid.UUID) error { return nil }

func (f *fakeCartRepo) Clear(ctx context.Context, cartID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	if f.record != nil && f.record.ID == cartID {
		f.record.Items = nil
		f.record.TotalCents = 0
	}
	return nil
}

type fakeBookingRepo struct {
	mu      sync.Mutex
	created []*models.Booking
}

func (f *fakeBookingRepo) WithTx(tx *gorm.DB) bookings.Repository { return f }

func (f *fakeBookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, booking)
	return nil
}

func (f *fakeBookingRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBookingRepo) FindBySessionAndClient(ctx context.Context, sessionRef string, clientID uuid.UUID) ([]models.Booking, error) {
	return nil, nil
}

func (f *fakeBookingRepo) ListByClientID(ctx context.Context, clientID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Booking, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeBookingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus) (bool, error) {
	return false, nil
}

type fakeRequestRepo struct {
	mu      sync.Mutex
	created []*models.ServiceRequest
}

func (f *fakeRequestRepo) WithTx(tx *gorm.DB) requests.Repository { return f }

func (f *fakeRequestRepo) Create(ctx context.Context, request *models.ServiceRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, request)
	return nil
}

func (f *fakeRequestRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRequestRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRequestRepo) FindBySessionAndClient(ctx context.Context, sessionRef string, clientID uuid.UUID) ([]models.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []models.ServiceRequest
	for _, row := range f.created {
		if row.SessionRef != nil && *row.SessionRef == sessionRef && row.ClientID == clientID {
			matched = append(matched, *row)
		}
	}
	return matched, nil
}

func (f *fakeRequestRepo) ListByClientID(ctx context.Context, clientID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ServiceRequest, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeRequestRepo) ListByProviderID(ctx context.Context, providerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ServiceRequest, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeRequestRepo) Save(ctx context.Context, request *models.ServiceRequest) error { return nil }

type fakeCatalog struct {
	owners   map[uuid.UUID]*models.Provider
	services map[uuid.UUID]*models.Service
}

func (f *fakeCatalog) GetService(ctx context.Context, serviceID uuid.UUID) (*models.Service, error) {
	service, ok := f.services[serviceID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service not found")
	}
	return service, nil
}

func (f *fakeCatalog) ResolveOwningProvider(ctx context.Context, serviceID uuid.UUID) (*models.Provider, error) {
	provider, ok := f.owners[serviceID]
	if !ok {
		return nil, providers.ErrNoOwningProvider
	}
	return provider, nil
}

type fakeLedger struct {
	mu          sync.Mutex
	credits     []int
	providerIDs []uuid.UUID
}

func (f *fakeLedger) CreditPending(ctx context.Context, tx *gorm.DB, providerID uuid.UUID, amountCents int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits = append(f.credits, amountCents)
	f.providerIDs = append(f.providerIDs, providerID)
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	emitted []notifications.EmitInput
}

func (f *fakeNotifier) Emit(ctx context.Context, input notifications.EmitInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, input)
}

type fakeGateway struct {
	mu             sync.Mutex
	confirmOutcome *payments.PaymentOutcome
	confirmErr     error
	confirmCalls   int
	createInput    *payments.CreateSessionInput
	createErr      error
}

func (f *fakeGateway) CreateSession(ctx context.Context, input payments.CreateSessionInput) (*payments.SessionOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createInput = &input
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &payments.SessionOutcome{SessionRef: "cs_new", URL: "https://gateway.test/pay/cs_new"}, nil
}

func (f *fakeGateway) ConfirmSession(ctx context.Context, sessionRef string) (*payments.PaymentOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmCalls++
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return f.confirmOutcome, nil
}

func (f *fakeGateway) Refund(ctx context.Context, paymentRef string) (*payments.RefundOutcome, error) {
	return &payments.RefundOutcome{OK: true, RefundRef: "re_test"}, nil
}

type fakeLocker struct {
	mu           sync.Mutex
	acquired     bool
	acquireErr   error
	releaseCalls int
	// exclusive makes the fake behave like the real SetNX lock: one holder
	// per (scope, id) until released.
	exclusive bool
	held      map[string]bool
}

func (f *fakeLocker) Acquire(ctx context.Context, scope, id string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if !f.exclusive {
		return f.acquired, nil
	}
	key := scope + ":" + id
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeLocker) Release(ctx context.Context, scope, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	if f.exclusive {
		delete(f.held, scope+":"+id)
	}
	return nil
}

type harness struct {
	svc         Service
	settlements *fakeSettlementRepo
	carts       *fakeCartRepo
	bookings    *fakeBookingRepo
	requests    *fakeRequestRepo
	catalog     *fakeCatalog
	ledger      *fakeLedger
	notifier    *fakeNotifier
	gateway     *fakeGateway
	locker      *fakeLocker
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		settlements: newFakeSettlementRepo(),
		carts:       &fakeCartRepo{},
		bookings:    &fakeBookingRepo{},
		requests:    &fakeRequestRepo{},
		catalog: &fakeCatalog{
			owners:   map[uuid.UUID]*models.Provider{},
			services: map[uuid.UUID]*models.Service{},
		},
		ledger:   &fakeLedger{},
		notifier: &fakeNotifier{},
		gateway:  &fakeGateway{},
		locker:   &fakeLocker{acquired: true},
	}
	log := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(
		fakeTxRunner{}, h.settlements, h.carts, h.bookings, h.requests,
		h.catalog, h.ledger, h.notifier, h.gateway, h.locker,
		config.CheckoutConfig{SettleLockTTL: time.Second, FrontendURL: "https://app.test"}, log, nil,
	)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	h.svc = svc
	return h
}

// seedCart loads the harness with a client, a paid session and one cart item
// per price, each owned by its own provider.
func (h *harness) seedCart(clientID uuid.UUID, sessionRef string, prices ...int) {
	record := &models.CartRecord{ID: uuid.New(), ClientID: clientID}
	for i, price := range prices {
		serviceID := uuid.New()
		record.Items = append(record.Items, models.CartItem{
			ID:         uuid.New(),
			CartID:     record.ID,
			ServiceID:  serviceID,
			PriceCents: price,
		})
		record.TotalCents += price
		h.catalog.owners[serviceID] = &models.Provider{ID: uuid.New(), Verification: enums.VerificationStatusVerified}
		h.catalog.services[serviceID] = &models.Service{
			ID:         serviceID,
			Title:      fmt.Sprintf("service %d", i+1),
			PriceCents: price,
		}
	}
	h.carts.record = record
	h.gateway.confirmOutcome = &payments.PaymentOutcome{
		SessionRef:       sessionRef,
		Paid:             true,
		RawStatus:        "complete",
		PaymentRef:       "pi_test",
		AmountTotalCents: record.TotalCents,
		Metadata:         map[string]string{"client_id": clientID.String()},
	}
}

func TestService_SettleCreatesRequestsAndBookings(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	h.seedCart(clientID, "cs_happy", 500, 300)

	created, err := h.svc.Settle(context.Background(), "cs_happy", clientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(created))
	}
	for _, request := range created {
		if request.Status != enums.RequestStatusPending ||
			request.PaymentStatus != enums.PaymentStatusPaid ||
			request.PayoutStatus != enums.PayoutStatusPending {
			t.Fatalf("unexpected request state %s/%s/%s",
				request.Status, request.PaymentStatus, request.PayoutStatus)
		}
		if request.SessionRef == nil || *request.SessionRef != "cs_happy" {
			t.Fatal("expected session ref on request")
		}
		if request.PaymentRef == nil || *request.PaymentRef != "pi_test" {
			t.Fatal("expected payment ref on request")
		}
	}
	if len(h.bookings.created) != 2 {
		t.Fatalf("expected 2 bookings, got %d", len(h.bookings.created))
	}
	for _, booking := range h.bookings.created {
		if booking.Status != enums.BookingStatusConfirmed || booking.PaymentStatus != enums.PaymentStatusPaid {
			t.Fatalf("unexpected booking state %s/%s", booking.Status, booking.PaymentStatus)
		}
	}
	if len(h.ledger.credits) != 2 || h.ledger.credits[0] != 500 || h.ledger.credits[1] != 300 {
		t.Fatalf("unexpected ledger credits %v", h.ledger.credits)
	}
	if h.carts.clearCalls != 1 || h.carts.record.TotalCents != 0 {
		t.Fatal("expected the cart to be cleared")
	}
	if len(h.notifier.emitted) != 2 || h.notifier.emitted[0].Type != enums.NotificationTypeRequestReceived {
		t.Fatalf("unexpected notifications %v", h.notifier.emitted)
	}
	if h.locker.releaseCalls != 1 {
		t.Fatal("expected the settle lock to be released")
	}
}

func TestService_SettleReplaysExistingSettlement(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	h.seedCart(clientID, "cs_replay", 500)

	first, err := h.svc.Settle(context.Background(), "cs_replay", clientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	confirms := h.gateway.confirmCalls

	second, err := h.svc.Settle(context.Background(), "cs_replay", clientID)
	if err != nil {
		t.Fatalf("unexpected replay error: %v", err)
	}
	if len(second) != len(first) || second[0].ID != first[0].ID {
		t.Fatal("expected the replay to return the original requests")
	}
	if h.gateway.confirmCalls != confirms {
		t.Fatal("replay must not hit the gateway again")
	}
	if len(h.bookings.created) != 1 || len(h.ledger.credits) != 1 {
		t.Fatal("replay must not create new records")
	}
}

func TestService_SettleRejectsUnpaidSession(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	h.seedCart(clientID, "cs_open", 500)
	h.gateway.confirmOutcome.Paid = false
	h.gateway.confirmOutcome.RawStatus = "open"

	_, err := h.svc.Settle(context.Background(), "cs_open", clientID)
	if pkgerrors.As(err).Code() != pkgerrors.CodePaymentNotCompleted {
		t.Fatalf("expected payment-not-completed, got %v", err)
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatal("an unpaid session must be retryable")
	}
	if len(h.bookings.created) != 0 || len(h.ledger.credits) != 0 {
		t.Fatal("unpaid session must not write anything")
	}
}

func TestService_SettleRejectsEmptyCart(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	h.gateway.confirmOutcome = &payments.PaymentOutcome{
		SessionRef: "cs_empty",
		Paid:       true,
		Metadata:   map[string]string{"client_id": clientID.String()},
	}

	_, err := h.svc.Settle(context.Background(), "cs_empty", clientID)
	if pkgerrors.As(err).Code() != pkgerrors.CodeEmptyCart {
		t.Fatalf("expected empty-cart, got %v", err)
	}

	h.carts.record = &models.CartRecord{ID: uuid.New(), ClientID: clientID}
	_, err = h.svc.Settle(context.Background(), "cs_empty", clientID)
	if pkgerrors.As(err).Code() != pkgerrors.CodeEmptyCart {
		t.Fatalf("expected empty-cart for itemless record, got %v", err)
	}
}

func TestService_SettleDegradesProviderlessLine(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	h.seedCart(clientID, "cs_orphan", 500, 300)
	// Orphan the second line.
	h.catalog.owners = map[uuid.UUID]*models.Provider{
		h.carts.record.Items[0].ServiceID: {ID: uuid.New(), Verification: enums.VerificationStatusVerified},
	}

	created, err := h.svc.Settle(context.Background(), "cs_orphan", clientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 request, got %d", len(created))
	}
	if len(h.bookings.created) != 2 {
		t.Fatalf("expected 2 bookings, got %d", len(h.bookings.created))
	}
	if len(h.ledger.credits) != 1 || h.ledger.credits[0] != 500 {
		t.Fatalf("unexpected ledger credits %v", h.ledger.credits)
	}
}

func TestService_SettleUniqueRaceReplays(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	h.seedCart(clientID, "cs_race", 500)

	// A concurrent settle already inserted the marker and its request.
	h.settlements.rows[settlementKey{"cs_race", clientID}] = &models.CheckoutSettlement{
		ID: uuid.New(), SessionRef: "cs_race", ClientID: clientID,
	}
	sessionRef := "cs_race"
	winner := &models.ServiceRequest{ID: uuid.New(), ClientID: clientID, SessionRef: &sessionRef}
	h.requests.created = append(h.requests.created, winner)
	h.settlements.missFinds = 1

	got, err := h.svc.Settle(context.Background(), "cs_race", clientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != winner.ID {
		t.Fatal("expected the winner's request back")
	}
	if len(h.bookings.created) != 0 || len(h.ledger.credits) != 0 || h.carts.clearCalls != 0 {
		t.Fatal("losing the insert race must not write anything")
	}
}

func TestService_SettleLockHeld(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	h.seedCart(clientID, "cs_locked", 500)
	h.locker.acquired = false

	_, err := h.svc.Settle(context.Background(), "cs_locked", clientID)
	if pkgerrors.As(err).Code() != pkgerrors.CodeSettleInProgress {
		t.Fatalf("expected settle-in-progress, got %v", err)
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatal("lock contention must be retryable")
	}
	if h.locker.releaseCalls != 0 {
		t.Fatal("a lock we never held must not be released")
	}
}

func TestService_SettleLockOutageFallsBackToConstraint(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	h.seedCart(clientID, "cs_redis_down", 500)
	h.locker.acquireErr = errors.New("redis unavailable")

	created, err := h.svc.Settle(context.Background(), "cs_redis_down", clientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 request, got %d", len(created))
	}
}

func TestService_SettleRejectsForeignSession(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	h.seedCart(clientID, "cs_foreign", 500)
	h.gateway.confirmOutcome.Metadata["client_id"] = uuid.NewString()

	_, err := h.svc.Settle(context.Background(), "cs_foreign", clientID)
	if pkgerrors.As(err).Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(h.bookings.created) != 0 {
		t.Fatal("foreign session must not write anything")
	}
}

// TestService_ConcurrentSettlesCreateOnce drives parallel settles for one
// session through the real SQLite-backed settlement repository. Whatever the
// interleaving, exactly one settlement commits.
func TestService_ConcurrentSettlesCreateOnce(t *testing.T) {
	db := setupSettlementTestDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unexpected db error: %v", err)
	}
	// A single pooled connection keeps every goroutine on the same
	// in-memory database.
	sqlDB.SetMaxOpenConns(1)

	h := newHarness(t)
	clientID := uuid.New()
	h.seedCart(clientID, "cs_parallel", 500)
	h.locker.exclusive = true

	log := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(
		fakeTxRunner{}, NewRepository(db), h.carts, h.bookings, h.requests,
		h.catalog, h.ledger, h.notifier, h.gateway, h.locker,
		config.CheckoutConfig{SettleLockTTL: time.Second}, log, nil,
	)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	const settlers = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, settlers)
	for i := 0; i < settlers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, settleErr := svc.Settle(context.Background(), "cs_parallel", clientID)
			errs <- settleErr
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	// Losers either observe the in-flight lock, replay the winner, or find
	// the drained cart. What must never happen is a second settlement.
	for settleErr := range errs {
		if settleErr == nil {
			continue
		}
		code := pkgerrors.As(settleErr).Code()
		if code != pkgerrors.CodeSettleInProgress && code != pkgerrors.CodeEmptyCart {
			t.Fatalf("unexpected settle error: %v", settleErr)
		}
	}
	if len(h.bookings.created) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(h.bookings.created))
	}
	if len(h.ledger.credits) != 1 {
		t.Fatalf("expected 1 ledger credit, got %v", h.ledger.credits)
	}
	var rows int64
	if err := db.Model(&models.CheckoutSettlement{}).Count(&rows).Error; err != nil {
		t.Fatalf("count settlements: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected 1 settlement row, got %d", rows)
	}
}

func TestService_CreateSessionSnapshotsCartAndSchedule(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	h.seedCart(clientID, "cs_new", 500, 300)

	address := &types.Address{Street: "12 MG Road", City: "Kochi", Pincode: "682001"}
	outcome, err := h.svc.CreateSession(context.Background(), clientID, CreateSessionInput{
		PreferredDate: time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		PreferredTime: "10:00 AM",
		Address:       address,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.SessionRef == "" || outcome.URL == "" {
		t.Fatal("expected a session ref and payment url")
	}

	input := h.gateway.createInput
	if input == nil {
		t.Fatal("expected the gateway to receive a session")
	}
	if len(input.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(input.LineItems))
	}
	if input.LineItems[0].Name != "service 1" || input.LineItems[0].AmountCents != 500 {
		t.Fatalf("unexpected first line %+v", input.LineItems[0])
	}
	if input.LineItems[1].Name != "service 2" || input.LineItems[1].AmountCents != 300 {
		t.Fatalf("unexpected second line %+v", input.LineItems[1])
	}
	if input.SuccessURL != "https://app.test/checkout/success?session_id={CHECKOUT_SESSION_ID}" ||
		input.CancelURL != "https://app.test/checkout/cancel" {
		t.Fatalf("unexpected redirect urls %s / %s", input.SuccessURL, input.CancelURL)
	}

	meta := input.Metadata
	if meta["client_id"] != clientID.String() {
		t.Fatalf("expected the client stamped on metadata, got %q", meta["client_id"])
	}
	if meta["cart_id"] != h.carts.record.ID.String() {
		t.Fatalf("expected the cart stamped on metadata, got %q", meta["cart_id"])
	}
	if meta["preferred_date"] != "2026-09-15T00:00:00Z" {
		t.Fatalf("unexpected preferred date %q", meta["preferred_date"])
	}
	if meta["preferred_time"] != "10:00 AM" {
		t.Fatalf("unexpected preferred time %q", meta["preferred_time"])
	}
	var roundTripped types.Address
	if err := json.Unmarshal([]byte(meta["address"]), &roundTripped); err != nil {
		t.Fatalf("address metadata did not round trip: %v", err)
	}
	if roundTripped != *address {
		t.Fatalf("unexpected address %+v", roundTripped)
	}
}

func TestService_CreateSessionRejectsEmptyCart(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()

	_, err := h.svc.CreateSession(context.Background(), clientID, CreateSessionInput{})
	if pkgerrors.As(err).Code() != pkgerrors.CodeEmptyCart {
		t.Fatalf("expected empty-cart, got %v", err)
	}

	h.carts.record = &models.CartRecord{ID: uuid.New(), ClientID: clientID}
	_, err = h.svc.CreateSession(context.Background(), clientID, CreateSessionInput{})
	if pkgerrors.As(err).Code() != pkgerrors.CodeEmptyCart {
		t.Fatalf("expected empty-cart for itemless record, got %v", err)
	}
	if h.gateway.createInput != nil {
		t.Fatal("an empty cart must not reach the gateway")
	}
}

func TestService_SettleAppliesScheduleMetadata(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	h.seedCart(clientID, "cs_sched", 500)
	h.gateway.confirmOutcome.Metadata["preferred_date"] = "2026-09-15T00:00:00Z"
	h.gateway.confirmOutcome.Metadata["preferred_time"] = "10:00 AM"
	h.gateway.confirmOutcome.Metadata["address"] = `{"street":"12 MG Road","city":"Kochi"}`

	created, err := h.svc.Settle(context.Background(), "cs_sched", clientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 request, got %d", len(created))
	}
	request := created[0]
	want := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	if !request.PreferredDate.Equal(want) {
		t.Fatalf("unexpected preferred date %s", request.PreferredDate)
	}
	if request.PreferredTime != "10:00 AM" {
		t.Fatalf("unexpected preferred time %q", request.PreferredTime)
	}
	if request.Address == nil || request.Address.City != "Kochi" || request.Address.Street != "12 MG Road" {
		t.Fatalf("unexpected address %+v", request.Address)
	}
}

func TestService_SettleDefaultsScheduleWhenMetadataDegrades(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	h.seedCart(clientID, "cs_sched_bad", 500)
	h.gateway.confirmOutcome.Metadata["preferred_date"] = "sometime next week"
	h.gateway.confirmOutcome.Metadata["address"] = "12 MG Road, Kochi"
	before := time.Now().UTC()

	created, err := h.svc.Settle(context.Background(), "cs_sched_bad", clientID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	request := created[0]
	if request.PreferredDate.Before(before) {
		t.Fatalf("expected the settlement time fallback, got %s", request.PreferredDate)
	}
	if request.PreferredTime != "" {
		t.Fatalf("unexpected preferred time %q", request.PreferredTime)
	}
	// A non-JSON address survives as the street line.
	if request.Address == nil || request.Address.Street != "12 MG Road, Kochi" {
		t.Fatalf("unexpected address %+v", request.Address)
	}
}

func TestService_SettleDerivesClientFromMetadata(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	h.seedCart(clientID, "cs_webhook", 500)

	// Webhook-style callers settle without an authenticated client.
	created, err := h.svc.Settle(context.Background(), "cs_webhook", uuid.Nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 1 || created[0].ClientID != clientID {
		t.Fatal("expected the session owner from metadata")
	}
}
