package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop_backend/internal/pkg/config"
	"shop_backend/pkg/cache"
)

type fakeProvider struct {
	logins    int32
	calls     int32
	failFirst int32 // 前 N 次业务请求返回 failStatus
	failCode  int
	token     string
	lastBody  map[string]interface{}
}

func (f *fakeProvider) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.logins, 1)
		f.token = "tok-" + string(rune('0'+n))
		_ = json.NewEncoder(w).Encode(map[string]string{"token": f.token})
	})
	business := func(w http.ResponseWriter, r *http.Request, resp interface{}) {
		n := atomic.AddInt32(&f.calls, 1)
		if n <= f.failFirst {
			w.WriteHeader(f.failCode)
			_, _ = w.Write([]byte(`{"message":"fail"}`))
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+f.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Body != nil {
			f.lastBody = map[string]interface{}{}
			_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
	mux.HandleFunc("/orders/create/adhoc", func(w http.ResponseWriter, r *http.Request) {
		business(w, r, map[string]interface{}{"order_id": 1001, "shipment_id": 2002, "status": "NEW"})
	})
	mux.HandleFunc("/orders/cancel", func(w http.ResponseWriter, r *http.Request) {
		business(w, r, map[string]interface{}{"message": "cancelled"})
	})
	mux.HandleFunc("/courier/track/awb/AWB123", func(w http.ResponseWriter, r *http.Request) {
		business(w, r, map[string]interface{}{"tracking_data": map[string]interface{}{
			"track_url":      "https://track/AWB123",
			"shipment_track": []map[string]string{{"current_status": "In Transit", "courier_name": "Delhivery"}},
			"shipment_track_activities": []map[string]string{
				{"date": "2024-01-02 10:00:00", "status": "X-PPOM", "activity": "Picked up", "location": "Mumbai"},
			},
		}})
	})
	return mux
}

func newTestClient(t *testing.T, srv *httptest.Server, store cache.CacheService) *Client {
	cfg := config.ShippingConfig{
		BaseURL:        srv.URL,
		Email:          "ops@shop.test",
		Password:       "secret",
		Timeout:        time.Second,
		MaxRetries:     3,
		TokenTTL:       time.Hour,
		PickupLocation: "Primary",
	}
	if store == nil {
		store = cache.NewMemoryCache()
	}
	return NewClient(cfg, store, WithBaseDelay(time.Millisecond))
}

func sampleRequest() ShipmentRequest {
	return ShipmentRequest{
		OrderCode:     "ORDABC123XYZ",
		OrderDate:     time.Date(2024, 1, 2, 15, 4, 0, 0, time.UTC),
		CustomerName:  "Asha",
		Email:         "asha@example.com",
		Phone:         "9999999999",
		Address:       Address{Line1: "12 MG Road", City: "Pune", State: "MH", Pincode: "411001"},
		PaymentMethod: "cod",
		SubTotal:      decimal.RequireFromString("1551"),
		Items: []ShipmentItem{
			{Name: "Shirt", SKU: "SH-1", Units: 2, SellingPrice: decimal.RequireFromString("1000")},
		},
	}
}

func TestCreateShipmentMapsPayload(t *testing.T) {
	fp := &fakeProvider{}
	srv := httptest.NewServer(fp.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	sh, err := c.CreateShipment(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "1001", sh.ProviderOrderID)
	assert.Equal(t, "2002", sh.ShipmentID)

	body := fp.lastBody
	assert.Equal(t, "ORDABC123XYZ", body["order_id"])
	assert.Equal(t, "2024-01-02 15:04", body["order_date"])
	assert.Equal(t, "Asha", body["billing_customer_name"])
	assert.Equal(t, ".", body["billing_last_name"])
	assert.Equal(t, "COD", body["payment_method"])
	assert.Equal(t, "India", body["billing_country"])
	assert.EqualValues(t, 10, body["length"])
	assert.EqualValues(t, 15, body["breadth"])
	assert.EqualValues(t, 5, body["height"])
	assert.EqualValues(t, 0.5, body["weight"])
}

func TestTokenCachedAcrossCalls(t *testing.T) {
	fp := &fakeProvider{}
	srv := httptest.NewServer(fp.handler(t))
	defer srv.Close()

	mr := miniredis.RunT(t)
	store := cache.NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")

	// 两个客户端共享同一份 token
	a := newTestClient(t, srv, store)
	b := newTestClient(t, srv, store)
	require.NoError(t, a.CancelShipment(context.Background(), "1001"))
	require.NoError(t, b.CancelShipment(context.Background(), "1002"))

	assert.EqualValues(t, 1, atomic.LoadInt32(&fp.logins))
	assert.True(t, mr.Exists("test:"+tokenCacheKey))
}

func TestReloginOnUnauthorized(t *testing.T) {
	fp := &fakeProvider{}
	srv := httptest.NewServer(fp.handler(t))
	defer srv.Close()

	store := cache.NewMemoryCache()
	require.NoError(t, store.Set(context.Background(), tokenCacheKey, "stale", time.Hour))
	c := newTestClient(t, srv, store)

	require.NoError(t, c.CancelShipment(context.Background(), "1001"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&fp.logins))
	assert.EqualValues(t, 2, atomic.LoadInt32(&fp.calls))
}

func TestRetriesTransientFailures(t *testing.T) {
	fp := &fakeProvider{failFirst: 2, failCode: http.StatusBadGateway}
	srv := httptest.NewServer(fp.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	require.NoError(t, c.CancelShipment(context.Background(), "1001"))
	assert.EqualValues(t, 3, atomic.LoadInt32(&fp.calls))
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	fp := &fakeProvider{failFirst: 10, failCode: http.StatusUnprocessableEntity}
	srv := httptest.NewServer(fp.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	err := c.CancelShipment(context.Background(), "1001")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fp.calls))
}

func TestRetryBudgetExhausted(t *testing.T) {
	fp := &fakeProvider{failFirst: 100, failCode: http.StatusServiceUnavailable}
	srv := httptest.NewServer(fp.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	err := c.CancelShipment(context.Background(), "1001")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	// 首次 + 3 次重试
	assert.EqualValues(t, 4, atomic.LoadInt32(&fp.calls))
}

func TestCreateNotReplayedOnUndecodableSuccess(t *testing.T) {
	var creates int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc("/orders/create/adhoc", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&creates, 1)
		_, _ = w.Write([]byte("<html>created</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	_, err := c.CreateShipment(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
	assert.False(t, IsRetryable(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&creates))
}

func TestCreateWithoutShipmentIDNotRetryable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc("/orders/create/adhoc", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"order_id": 1001, "status": "NEW"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	_, err := c.CreateShipment(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestTransportErrorsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newTestClient(t, srv, nil)
	srv.Close()

	err := c.CancelShipment(context.Background(), "1001")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(context.Canceled))
}

func TestRejectsNonNumericIDs(t *testing.T) {
	fp := &fakeProvider{}
	srv := httptest.NewServer(fp.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	err := c.CancelShipment(context.Background(), "1001", "SHP-7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHP-7")
	assert.False(t, IsRetryable(err))

	_, err = c.GenerateLabel(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 0, atomic.LoadInt32(&fp.calls))
}

func TestTrack(t *testing.T) {
	fp := &fakeProvider{}
	srv := httptest.NewServer(fp.handler(t))
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	tr, err := c.Track(context.Background(), "AWB123")
	require.NoError(t, err)
	assert.Equal(t, "In Transit", tr.CurrentStatus)
	assert.Equal(t, "Delhivery", tr.Courier)
	require.Len(t, tr.Activities, 1)
	assert.Equal(t, "Mumbai", tr.Activities[0].Location)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in          string
		first, last string
	}{
		{"", "", "."},
		{"Asha", "Asha", "."},
		{"Asha Rao", "Asha", "Rao"},
		{"  Asha  Devi Rao ", "Asha", "Devi Rao"},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}

func TestPaymentMode(t *testing.T) {
	assert.Equal(t, "COD", PaymentMode("COD"))
	assert.Equal(t, "COD", PaymentMode("cash_on_delivery"))
	assert.Equal(t, "Prepaid", PaymentMode("upi"))
	assert.Equal(t, "Prepaid", PaymentMode(""))
}
