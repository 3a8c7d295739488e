package smmstone

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtuline/virtuline-backend/internal/providers"
	"github.com/virtuline/virtuline-backend/pkg/config"
	"github.com/virtuline/virtuline-backend/pkg/enums"
	pkgerrors "github.com/virtuline/virtuline-backend/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(config.SmmStoneConfig{
		Enabled:      true,
		BaseURL:      server.URL,
		APIKey:       "key-789",
		ServiceCodes: "ig-likes=2214",
	}, providers.DefaultCallTimeouts())
	require.NoError(t, err)
	return client
}

func target(s string) *string { return &s }

func TestPlaceOrderSignsForm(t *testing.T) {
	var gotForm map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for key := range r.PostForm {
			gotForm[key] = r.PostForm.Get(key)
		}
		w.Write([]byte(`{"order": 23501}`))
	}))

	result, err := client.PlaceOrder(context.Background(), providers.PlaceOrderInput{
		SelectorCode: "ig-likes",
		Quantity:     500,
		Target:       target("https://instagram.com/p/abc"),
	})
	require.NoError(t, err)
	assert.Equal(t, "23501", result.VendorOrderID)

	assert.Equal(t, "key-789", gotForm["key"])
	assert.Equal(t, "add", gotForm["action"])
	assert.Equal(t, "2214", gotForm["service"])
	assert.Equal(t, "500", gotForm["quantity"])
	wantSign := md5.Sum([]byte("key-789add"))
	assert.Equal(t, hex.EncodeToString(wantSign[:]), gotForm["sign"])
}

func TestPlaceOrderRequiresTarget(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())
	_, err := client.PlaceOrder(context.Background(), providers.PlaceOrderInput{SelectorCode: "ig-likes"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeVendorRejected, pkgerrors.As(err).Code())
}

func TestPlaceOrderPanelError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "not enough funds"}`))
	}))

	_, err := client.PlaceOrder(context.Background(), providers.PlaceOrderInput{
		SelectorCode: "ig-likes",
		Target:       target("https://instagram.com/p/abc"),
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeVendorRejected, pkgerrors.As(err).Code())
	assert.Contains(t, err.Error(), "not enough funds")
}

func TestCheckStatusBuildsDeliveryPayload(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "status", r.PostForm.Get("action"))
		assert.Equal(t, "23501", r.PostForm.Get("order"))
		w.Write([]byte(`{"charge":"0.27819","start_count":"3572","status":"Completed","remains":"0"}`))
	}))

	result, err := client.CheckStatus(context.Background(), "23501")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, result.Status)
	assert.Equal(t, "Completed", result.VendorStatus)
	assert.JSONEq(t, `{"start_count":3572,"remains":0,"delivered":3572,"charge":0.27819}`, string(result.Payload))
}

func TestCheckStatusParseFailureIsAmbiguous(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`service temporarily busy`))
	}))

	_, err := client.CheckStatus(context.Background(), "23501")
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	// not a vendor verdict, callers retry later
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
}

func TestTerminate(t *testing.T) {
	var gotAction string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotAction = r.PostForm.Get("action")
		w.Write([]byte(`{"cancel": 1}`))
	}))

	require.NoError(t, client.Terminate(context.Background(), "23501", enums.TerminalActionCancel))
	assert.Equal(t, "cancel", gotAction)

	require.NoError(t, client.Terminate(context.Background(), "23501", enums.TerminalActionRefill))
	assert.Equal(t, "refill", gotAction)

	err := client.Terminate(context.Background(), "23501", enums.TerminalActionBan)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeVendorRejected, pkgerrors.As(err).Code())
}

func TestMapStatusTotality(t *testing.T) {
	assert.Equal(t, enums.OrderStatusProcessing, MapStatus("In progress"))
	assert.Equal(t, enums.OrderStatusCompleted, MapStatus("Partial"))
	assert.Equal(t, enums.OrderStatusFailed, MapStatus("Refunded"))
	assert.Equal(t, enums.OrderStatusCancelled, MapStatus("Canceled"))
	assert.Equal(t, enums.OrderStatusProcessing, MapStatus("Queued"))
	assert.False(t, MapStatus("Queued").IsFinal())
}

func TestBalance(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "balance", r.Form.Get("action"))
		w.Write([]byte(`{"balance": "100.24", "currency": "USD"}`))
	}))

	balance, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "100.24", balance.String())
}

func TestCatalog(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "services", r.Form.Get("action"))
		// the panel mixes numeric and quoted encodings within one listing
		w.Write([]byte(`[
			{"service": 2214, "name": "Instagram Likes", "rate": "0.90", "category": "Instagram"},
			{"service": "3301", "name": "TikTok Views", "rate": 0.12, "category": "TikTok"}
		]`))
	}))

	items, err := client.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2214", items[0].Code)
	assert.Equal(t, "Instagram Likes", items[0].Name)
	assert.Equal(t, "0.9", items[0].Price.String())
	assert.Equal(t, "3301", items[1].Code)
	assert.Equal(t, "0.12", items[1].Price.String())
}
