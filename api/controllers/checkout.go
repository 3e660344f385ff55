package controllers

import (
	"net/http"
	"time"

	"github.com/ananthuhari/servicehub-backend/api/responses"
	"github.com/ananthuhari/servicehub-backend/api/validators"
	checkoutsvc "github.com/ananthuhari/servicehub-backend/internal/checkout"
	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	"github.com/ananthuhari/servicehub-backend/pkg/logger"
	"github.com/ananthuhari/servicehub-backend/pkg/types"
)

type createSessionRequest struct {
	PreferredDate time.Time      `json:"preferred_date"`
	PreferredTime string         `json:"preferred_time" validate:"max=64"`
	Address       *types.Address `json:"address"`
}

type createSessionResponse struct {
	SessionRef string `json:"session_ref"`
	URL        string `json:"url"`
}

// CheckoutSessionCreate snapshots the caller's cart into a hosted gateway
// checkout session and returns the payment URL. The scheduling details ride
// on the session metadata until settlement.
func CheckoutSessionCreate(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.CreateSession(r.Context(), clientID, checkoutsvc.CreateSessionInput{
			PreferredDate: payload.PreferredDate,
			PreferredTime: payload.PreferredTime,
			Address:       payload.Address,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, createSessionResponse{
			SessionRef: outcome.SessionRef,
			URL:        outcome.URL,
		})
	}
}

type settleRequest struct {
	SessionRef string `json:"session_ref" validate:"required,min=1,max=255"`
}

type settleResponse struct {
	Requests []requestResponse `json:"requests"`
}

// CheckoutSettle converts a paid gateway session into bookings and service
// requests. Safe to retry: a session that already settled replays the
// original records.
func CheckoutSettle(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload settleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Settle(r.Context(), payload.SessionRef, clientID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newSettleResponse(created))
	}
}

func newSettleResponse(created []models.ServiceRequest) settleResponse {
	items := make([]requestResponse, 0, len(created))
	for i := range created {
		items = append(items, newRequestResponse(&created[i]))
	}
	return settleResponse{Requests: items}
}
