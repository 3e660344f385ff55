package middleware

import (
	"context"
	"net/http"

	"github.com/ananthuhari/servicehub-backend/api/responses"
	"github.com/ananthuhari/servicehub-backend/internal/providers"
	"github.com/ananthuhari/servicehub-backend/pkg/enums"
	pkgerrors "github.com/ananthuhari/servicehub-backend/pkg/errors"
	"github.com/ananthuhari/servicehub-backend/pkg/logger"
	"github.com/google/uuid"
)

// ProviderContext resolves the provider profile owned by the authenticated
// user and seeds its id into the context. Non-provider tokens pass through
// untouched; provider tokens without a profile are rejected.
func ProviderContext(svc providers.Service, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RoleFromContext(r.Context()) != string(enums.ActorRoleProvider) {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := uuid.Parse(UserIDFromContext(r.Context()))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context"))
				return
			}

			provider, err := svc.GetByUserID(r.Context(), userID)
			if err != nil {
				if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "no provider profile for this user"))
					return
				}
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxProviderID, provider.ID.String())
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{"provider_id": provider.ID.String()})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
