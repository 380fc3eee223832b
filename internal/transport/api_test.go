package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) *API {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAPI(APIConfig{BaseURL: server.URL})
}

func TestListCarsSkipsBrokenRecords(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/cars/live" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("Expected a request id header")
		}
		w.Write([]byte(`[{"id":1,"make":"Tata"},{"id":{"nested":true}},{"id":"2","bidCarId":"b2"}]`))
	})

	items, err := api.ListCars(context.Background(), "tok")
	if err != nil {
		t.Fatalf("ListCars returned error: %v", err)
	}
	if len(items) != 2 || items[0].ID != "1" || items[1].BidCarID != "b2" {
		t.Errorf("Unexpected items: %+v", items)
	}
}

func TestListCarsMalformedBody(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	})

	if _, err := api.ListCars(context.Background(), ""); !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed, got %v", err)
	}
}

func TestFetchPrice(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/cars/77/price" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"object":{"price":150000,"remainingTime":"00:10:00"}}`))
	})

	price, err := api.FetchPrice(context.Background(), "", "77")
	if err != nil {
		t.Fatalf("FetchPrice returned error: %v", err)
	}
	if price.Price != 150000 || price.RemainingTime != "00:10:00" {
		t.Errorf("Unexpected price: %+v", price)
	}
}

func TestFetchPriceServerError(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := api.FetchPrice(context.Background(), "", "1"); !errors.Is(err, ErrNetwork) {
		t.Errorf("Expected ErrNetwork, got %v", err)
	}
}

func TestFetchPriceUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	api := NewAPI(APIConfig{BaseURL: server.URL})
	server.Close()

	if _, err := api.FetchPrice(context.Background(), "", "1"); !errors.Is(err, ErrNetwork) {
		t.Errorf("Expected ErrNetwork for closed server, got %v", err)
	}
}

func TestSubmitBid(t *testing.T) {
	var got models.BidRequest
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/bids" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode bid: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})

	req := models.BidRequest{UserID: "u1", BidCarID: "c1", DateTime: "2024-05-01T12:00:00", Amount: 102000}
	res, err := api.SubmitBid(context.Background(), "tok", req)
	if err != nil {
		t.Fatalf("SubmitBid returned error: %v", err)
	}
	if !res.Success {
		t.Errorf("Expected success")
	}
	if got != req {
		t.Errorf("Server received %+v, want %+v", got, req)
	}
}

func TestSubmitBidRejected(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"json message", http.StatusBadRequest, `{"message":"Bid too low"}`, "Bid too low"},
		{"json error field", http.StatusConflict, `{"error":"Auction closed"}`, "Auction closed"},
		{"plain text", http.StatusInternalServerError, `oops`, ""},
		{"explicit failure on 200", http.StatusOK, `{"success":false,"message":"Outbid"}`, "Outbid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := api.SubmitBid(context.Background(), "tok", models.BidRequest{Amount: 1})
			var rejected *RejectedError
			if !errors.As(err, &rejected) {
				t.Fatalf("Expected *RejectedError, got %v", err)
			}
			if rejected.Message != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, rejected.Message)
			}
		})
	}
}
