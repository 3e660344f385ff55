package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ananthuhari/servicehub-backend/internal/requests"
	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	"github.com/ananthuhari/servicehub-backend/pkg/enums"
	"github.com/ananthuhari/servicehub-backend/pkg/pagination"
)

type testRequestService struct {
	createFn func(ctx context.Context, input requests.CreateRequestInput) (*models.ServiceRequest, error)
	cancelFn func(ctx context.Context, actor requests.Actor, requestID uuid.UUID) (*requests.TransitionResult, error)
	rateFn   func(ctx context.Context, clientID, requestID uuid.UUID, rating int, review string) (*models.ServiceRequest, error)
}

func (s *testRequestService) Create(ctx context.Context, input requests.CreateRequestInput) (*models.ServiceRequest, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return nil, nil
}

func (s *testRequestService) Get(ctx context.Context, actor requests.Actor, requestID uuid.UUID) (*models.ServiceRequest, error) {
	return nil, nil
}

func (s *testRequestService) ListForClient(ctx context.Context, clientID uuid.UUID, params pagination.Params) (*requests.ListResult, error) {
	return &requests.ListResult{}, nil
}

func (s *testRequestService) ListForProvider(ctx context.Context, providerID uuid.UUID, params pagination.Params) (*requests.ListResult, error) {
	return &requests.ListResult{}, nil
}

func (s *testRequestService) Accept(ctx context.Context, providerID, requestID uuid.UUID) (*models.ServiceRequest, error) {
	return nil, nil
}

func (s *testRequestService) Decline(ctx context.Context, providerID, requestID uuid.UUID, reason string) (*requests.TransitionResult, error) {
	return nil, nil
}

func (s *testRequestService) Start(ctx context.Context, providerID, requestID uuid.UUID) (*models.ServiceRequest, error) {
	return nil, nil
}

func (s *testRequestService) MarkCompleted(ctx context.Context, actor requests.Actor, requestID uuid.UUID) (*models.ServiceRequest, error) {
	return nil, nil
}

func (s *testRequestService) Cancel(ctx context.Context, actor requests.Actor, requestID uuid.UUID) (*requests.TransitionResult, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, actor, requestID)
	}
	return &requests.TransitionResult{Request: &models.ServiceRequest{ID: requestID}}, nil
}

func (s *testRequestService) Rate(ctx context.Context, clientID, requestID uuid.UUID, rating int, review string) (*models.ServiceRequest, error) {
	if s.rateFn != nil {
		return s.rateFn(ctx, clientID, requestID, rating, review)
	}
	return &models.ServiceRequest{ID: requestID}, nil
}

func TestRequestCreateParsesPaymentMethod(t *testing.T) {
	clientID := uuid.New()
	serviceID := uuid.New()
	svc := &testRequestService{
		createFn: func(ctx context.Context, input requests.CreateRequestInput) (*models.ServiceRequest, error) {
			if input.ClientID != clientID {
				t.Fatalf("unexpected client %s", input.ClientID)
			}
			if input.ServiceID != serviceID {
				t.Fatalf("unexpected service %s", input.ServiceID)
			}
			if input.PaymentMethod != enums.PaymentMethodCash {
				t.Fatalf("unexpected method %s", input.PaymentMethod)
			}
			return &models.ServiceRequest{ID: uuid.New(), ClientID: clientID}, nil
		},
	}

	body := `{"service_id":"` + serviceID.String() + `","preferred_date":"2026-09-10T09:00:00Z","payment_method":"cash"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", strings.NewReader(body))
	req = withClient(req, clientID)

	resp := doJSON(RequestCreate(svc, testLogger()), req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRequestCreateRejectsUnknownMethod(t *testing.T) {
	body := `{"service_id":"` + uuid.NewString() + `","preferred_date":"2026-09-10T09:00:00Z","payment_method":"barter"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", strings.NewReader(body))
	req = withClient(req, uuid.New())

	resp := doJSON(RequestCreate(&testRequestService{}, testLogger()), req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRequestCancelUsesProviderActor(t *testing.T) {
	providerID := uuid.New()
	requestID := uuid.New()
	svc := &testRequestService{
		cancelFn: func(ctx context.Context, actor requests.Actor, id uuid.UUID) (*requests.TransitionResult, error) {
			if actor.Role != enums.ActorRoleProvider {
				t.Fatalf("unexpected role %s", actor.Role)
			}
			if actor.ID != providerID {
				t.Fatalf("expected provider id actor got %s", actor.ID)
			}
			return &requests.TransitionResult{
				Request:         &models.ServiceRequest{ID: id, Status: enums.RequestStatusCancelled},
				RefundAttempted: true,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/provider/requests/"+requestID.String()+"/cancel", nil)
	req = withProvider(req, uuid.New(), providerID)
	req = addRouteParam(req, "requestId", requestID.String())

	resp := doJSON(RequestCancel(svc, testLogger()), req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data transitionResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !envelope.Data.RefundAttempted {
		t.Fatal("expected refund attempt surfaced")
	}
}

func TestRequestRateRejectsOutOfRangeRating(t *testing.T) {
	requestID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests/"+requestID.String()+"/rate", strings.NewReader(`{"rating":9}`))
	req = withClient(req, uuid.New())
	req = addRouteParam(req, "requestId", requestID.String())

	resp := doJSON(RequestRate(&testRequestService{}, testLogger()), req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRequestDetailRejectsBadID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/not-a-uuid", nil)
	req = withClient(req, uuid.New())
	req = addRouteParam(req, "requestId", "not-a-uuid")

	resp := doJSON(RequestDetail(&testRequestService{}, testLogger()), req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
