package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/virtuline/virtuline-backend/api/responses"
	esimwebhook "github.com/virtuline/virtuline-backend/internal/webhooks/esim"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
	"github.com/virtuline/virtuline-backend/pkg/logger"
)

type EsimWebhookService interface {
	HandleEvent(ctx context.Context, event *esimwebhook.Event) error
}

// EsimWebhook receives provisioning callbacks from the eSIM vendor.
//
// The vendor treats any non-2xx as a delivery failure and retries with
// backoff, so processing errors are logged and acknowledged rather than
// surfaced: our own polling and the expiry sweep will converge the order
// either way, and a retry storm helps nobody. Only an authentication failure
// is rejected.
func EsimWebhook(svc EsimWebhookService, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// The vendor probes the endpoint with GET/HEAD before enabling
		// delivery.
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			responses.WriteSuccess(w, map[string]string{"status": "ok"})
			return
		}

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		if secret == "" {
			if logg != nil {
				logg.Warn(ctx, "esim webhook secret not configured, accepting unauthenticated callback")
			}
		} else if !authorized(r, secret) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook credentials"))
			return
		}

		var event esimwebhook.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			if logg != nil {
				logg.Warn(ctx, "esim webhook body undecodable, acknowledging")
			}
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if logg != nil {
				logg.Error(ctx, "esim webhook processing failed, acknowledging", err)
			}
		}
		responses.WriteSuccess(w, nil)
	}
}

func authorized(r *http.Request, secret string) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) == 1
}
