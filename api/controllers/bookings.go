package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ananthuhari/servicehub-backend/api/responses"
	"github.com/ananthuhari/servicehub-backend/internal/bookings"
	"github.com/ananthuhari/servicehub-backend/pkg/db/models"
	"github.com/ananthuhari/servicehub-backend/pkg/logger"
)

type bookingResponse struct {
	ID            uuid.UUID `json:"id"`
	ClientID      uuid.UUID `json:"client_id"`
	ServiceID     uuid.UUID `json:"service_id"`
	BookingDate   time.Time `json:"booking_date"`
	PaymentMethod string    `json:"payment_method"`
	TotalCents    int       `json:"total_cents"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	SessionRef    *string   `json:"session_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type bookingListResponse struct {
	Items  []bookingResponse `json:"items"`
	Cursor string            `json:"cursor,omitempty"`
}

func newBookingResponse(booking *models.Booking) bookingResponse {
	if booking == nil {
		return bookingResponse{}
	}
	return bookingResponse{
		ID:            booking.ID,
		ClientID:      booking.ClientID,
		ServiceID:     booking.ServiceID,
		BookingDate:   booking.BookingDate,
		PaymentMethod: string(booking.PaymentMethod),
		TotalCents:    booking.TotalCents,
		Status:        string(booking.Status),
		PaymentStatus: string(booking.PaymentStatus),
		SessionRef:    booking.SessionRef,
		CreatedAt:     booking.CreatedAt,
	}
}

// BookingList returns the caller's bookings, newest first.
func BookingList(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
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

		result, err := svc.List(r.Context(), clientID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := bookingListResponse{Items: make([]bookingResponse, 0, len(result.Items))}
		for i := range result.Items {
			resp.Items = append(resp.Items, newBookingResponse(&result.Items[i]))
		}
		resp.Cursor = result.Cursor
		responses.WriteSuccess(w, resp)
	}
}

// BookingDetail returns one booking owned by the caller.
func BookingDetail(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := pathUUID(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.Get(r.Context(), clientID, bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBookingResponse(booking))
	}
}

// BookingCancel cancels a booking that has not completed yet.
func BookingCancel(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := pathUUID(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.Cancel(r.Context(), clientID, bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newBookingResponse(booking))
	}
}
