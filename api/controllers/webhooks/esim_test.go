package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	esimwebhook "github.com/virtuline/virtuline-backend/internal/webhooks/esim"
)

type fakeEsimWebhookService struct {
	calls  int
	events []*esimwebhook.Event
	err    error
}

func (f *fakeEsimWebhookService) HandleEvent(ctx context.Context, event *esimwebhook.Event) error {
	f.calls++
	f.events = append(f.events, event)
	return f.err
}

func postEsimEvent(handler http.HandlerFunc, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/esim", bytes.NewReader([]byte(body)))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestEsimWebhook_ProcessesAuthorizedEvent(t *testing.T) {
	service := &fakeEsimWebhookService{}
	handler := EsimWebhook(service, "hook-secret", nil)

	rec := postEsimEvent(handler, `{"orderReference":"txn-1","status":"INSTALLED"}`, "hook-secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}
	if service.events[0].OrderReference != "txn-1" {
		t.Fatalf("unexpected event: %+v", service.events[0])
	}
}

func TestEsimWebhook_RejectsBadCredentials(t *testing.T) {
	service := &fakeEsimWebhookService{}
	handler := EsimWebhook(service, "hook-secret", nil)

	rec := postEsimEvent(handler, `{"orderReference":"txn-1"}`, "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not run on auth failure, got %d calls", service.calls)
	}

	rec = postEsimEvent(handler, `{"orderReference":"txn-1"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", rec.Code)
	}
}

func TestEsimWebhook_MissingSecretStillAccepts(t *testing.T) {
	service := &fakeEsimWebhookService{}
	handler := EsimWebhook(service, "", nil)

	rec := postEsimEvent(handler, `{"orderReference":"txn-2","status":"PROCESSING"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 in degraded mode, got %d", rec.Code)
	}
	if service.calls != 1 {
		t.Fatalf("expected service called, got %d", service.calls)
	}
}

func TestEsimWebhook_AcksProcessingFailure(t *testing.T) {
	service := &fakeEsimWebhookService{err: errors.New("db down")}
	handler := EsimWebhook(service, "hook-secret", nil)

	rec := postEsimEvent(handler, `{"orderReference":"txn-3","status":"INSTALLED"}`, "hook-secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("processing failures must still ack, got %d", rec.Code)
	}
}

func TestEsimWebhook_AcksUndecodableBody(t *testing.T) {
	service := &fakeEsimWebhookService{}
	handler := EsimWebhook(service, "hook-secret", nil)

	rec := postEsimEvent(handler, `not-json`, "hook-secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("garbage bodies must still ack, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not see undecodable bodies")
	}
}

func TestEsimWebhook_LivenessProbe(t *testing.T) {
	handler := EsimWebhook(&fakeEsimWebhookService{}, "hook-secret", nil)

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		req := httptest.NewRequest(method, "/api/v1/webhooks/esim", strings.NewReader(""))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s probe expected 200, got %d", method, rec.Code)
		}
	}
}
