package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/virtuline/virtuline-backend/api/responses"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
	"github.com/virtuline/virtuline-backend/pkg/logger"
)

const userIDHeader = "X-User-Id"

// Identity resolves the calling user from the X-User-Id header set by the
// upstream gateway. The gateway terminates real authentication; this service
// only needs the identity it attests to.
func Identity(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(userIDHeader))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
				return
			}
			userID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user identity"))
				return
			}

			ctx := WithUserID(r.Context(), userID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, userID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
