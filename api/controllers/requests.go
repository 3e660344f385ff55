package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ananthuhari/servicehub-backend/api/middleware"
	"github.com/ananthuhari/servicehub-backend/api/responses"
	"github.com/ananthuhari/servicehub-backend/api/validators"
	"github.com/ananthuhari/servicehub-backend/internal/requests"
	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	"github.com/ananthuhari/servicehub-backend/pkg/enums"
	pkgerrors "github.com/ananthuhari/servicehub-backend/pkg/errors"
	"github.com/ananthuhari/servicehub-backend/pkg/logger"
	"github.com/ananthuhari/servicehub-backend/pkg/types"
)

type createRequestPayload struct {
	ServiceID     uuid.UUID      `json:"service_id" validate:"required"`
	PreferredDate time.Time      `json:"preferred_date" validate:"required"`
	PreferredTime string         `json:"preferred_time" validate:"omitempty,max=32"`
	Address       *types.Address `json:"address,omitempty"`
	Description   string         `json:"description" validate:"omitempty,max=2000"`
	PaymentMethod string         `json:"payment_method" validate:"required,oneof=cash card online"`
}

type declinePayload struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type ratePayload struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Review string `json:"review" validate:"omitempty,max=2000"`
}

type requestResponse struct {
	ID               uuid.UUID      `json:"id"`
	ClientID         uuid.UUID      `json:"client_id"`
	ProviderID       uuid.UUID      `json:"provider_id"`
	ServiceID        uuid.UUID      `json:"service_id"`
	RequestedAt      time.Time      `json:"requested_at"`
	PreferredDate    time.Time      `json:"preferred_date"`
	PreferredTime    string         `json:"preferred_time,omitempty"`
	Address          *types.Address `json:"address,omitempty"`
	Description      string         `json:"description,omitempty"`
	TotalCents       int            `json:"total_cents"`
	PaymentMethod    string         `json:"payment_method"`
	Status           string         `json:"status"`
	ProviderResponse string         `json:"provider_response"`
	DeclinedReason   string         `json:"declined_reason,omitempty"`
	PaymentStatus    string         `json:"payment_status"`
	PayoutStatus     string         `json:"payout_status"`
	SessionRef       *string        `json:"session_ref,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	ClientRating     *int           `json:"client_rating,omitempty"`
	ClientReview     *string        `json:"client_review,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

type requestListResponse struct {
	Items  []requestResponse `json:"items"`
	Cursor string            `json:"cursor,omitempty"`
}

type transitionResponse struct {
	Request             requestResponse `json:"request"`
	RefundAttempted     bool            `json:"refund_attempted"`
	RefundFailed        bool            `json:"refund_failed"`
	RefundFailureReason string          `json:"refund_failure_reason,omitempty"`
}

func newRequestResponse(request *models.ServiceRequest) requestResponse {
	if request == nil {
		return requestResponse{}
	}
	return requestResponse{
		ID:               request.ID,
		ClientID:         request.ClientID,
		ProviderID:       request.ProviderID,
		ServiceID:        request.ServiceID,
		RequestedAt:      request.RequestedAt,
		PreferredDate:    request.PreferredDate,
		PreferredTime:    request.PreferredTime,
		Address:          request.Address,
		Description:      request.Description,
		TotalCents:       request.TotalCents,
		PaymentMethod:    string(request.PaymentMethod),
		Status:           string(request.Status),
		ProviderResponse: string(request.ProviderResponse),
		DeclinedReason:   request.DeclinedReason,
		PaymentStatus:    string(request.PaymentStatus),
		PayoutStatus:     string(request.PayoutStatus),
		SessionRef:       request.SessionRef,
		CompletedAt:      request.CompletedAt,
		ClientRating:     request.ClientRating,
		ClientReview:     request.ClientReview,
		CreatedAt:        request.CreatedAt,
	}
}

func newRequestListResponse(result *requests.ListResult) requestListResponse {
	resp := requestListResponse{Items: make([]requestResponse, 0, len(result.Items))}
	for i := range result.Items {
		resp.Items = append(resp.Items, newRequestResponse(&result.Items[i]))
	}
	resp.Cursor = result.Cursor
	return resp
}

func newTransitionResponse(result *requests.TransitionResult) transitionResponse {
	return transitionResponse{
		Request:             newRequestResponse(result.Request),
		RefundAttempted:     result.RefundAttempted,
		RefundFailed:        result.RefundFailed,
		RefundFailureReason: result.RefundFailureReason,
	}
}

// RequestCreate places a direct request against a provider's service.
func RequestCreate(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createRequestPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		created, err := svc.Create(r.Context(), requests.CreateRequestInput{
			ClientID:      clientID,
			ServiceID:     payload.ServiceID,
			PreferredDate: payload.PreferredDate,
			PreferredTime: validators.SanitizeString(payload.PreferredTime, 32),
			Address:       payload.Address,
			Description:   validators.SanitizeString(payload.Description, 2000),
			PaymentMethod: method,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newRequestResponse(created))
	}
}

// RequestList returns the caller's requests, newest first.
func RequestList(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListForClient(r.Context(), clientID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRequestListResponse(result))
	}
}

// RequestDetail returns one request if the caller is a party to it.
func RequestDetail(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := pathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Get(r.Context(), actor, requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRequestResponse(request))
	}
}

// RequestComplete marks the work done and settles the provider payout.
func RequestComplete(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := pathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.MarkCompleted(r.Context(), actor, requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRequestResponse(request))
	}
}

// RequestCancel cancels a non-terminal request and refunds online payment.
func RequestCancel(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := pathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Cancel(r.Context(), actor, requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransitionResponse(result))
	}
}

// RequestRate records the client's rating and review on a completed request.
func RequestRate(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := pathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload ratePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Rate(r.Context(), clientID, requestID, payload.Rating, validators.SanitizeString(payload.Review, 2000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRequestResponse(request))
	}
}

// actorFromRequest builds the lifecycle actor for the authenticated caller.
// Providers act under their provider id; clients and admins under the user id.
func actorFromRequest(r *http.Request) (requests.Actor, error) {
	role, err := enums.ParseActorRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return requests.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown actor role")
	}

	if role == enums.ActorRoleProvider {
		providerID, err := providerIDFromRequest(r)
		if err != nil {
			return requests.Actor{}, err
		}
		return requests.Actor{ID: providerID, Role: role}, nil
	}

	userID, err := userIDFromRequest(r)
	if err != nil {
		return requests.Actor{}, err
	}
	return requests.Actor{ID: userID, Role: role}, nil
}
