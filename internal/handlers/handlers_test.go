package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/bidding"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/service"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/transport"
	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
	"github.com/gorilla/mux"
)

type stubAPI struct {
	mu      sync.Mutex
	price   int64
	lastBid models.BidRequest
	token   string
	reject  string
}

func (s *stubAPI) ListCars(ctx context.Context, token string) ([]models.AuctionItem, error) {
	return []models.AuctionItem{{ID: "7", BidCarID: "b7", Make: "Hyundai", Model: "i20"}}, nil
}

func (s *stubAPI) FetchPrice(ctx context.Context, token, itemID string) (models.LivePrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.LivePrice{Price: s.price}, nil
}

func (s *stubAPI) SubmitBid(ctx context.Context, token string, req models.BidRequest) (models.BidResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBid, s.token = req, token
	if s.reject != "" {
		return models.BidResult{}, &transport.RejectedError{StatusCode: 400, Message: s.reject}
	}
	return models.BidResult{Success: true, Message: "Bid placed"}, nil
}

func setupRouter(t *testing.T) (*mux.Router, *service.Engine, *stubAPI) {
	t.Helper()
	api := &stubAPI{price: 200000}
	engine := service.New(service.Config{API: api})
	ctx, cancel := context.WithCancel(context.Background())
	engine.Start(ctx)
	t.Cleanup(func() {
		engine.Stop()
		cancel()
	})
	return NewHandler(engine).SetupRoutes(), engine, api
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body == nil {
		req.ContentLength = 0
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func waitForCars(t *testing.T, engine *service.Engine, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for len(engine.LiveCars()) != n {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %d cars", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealthCheck(t *testing.T) {
	router, _, _ := setupRouter(t)
	rr := do(t, router, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["status"] != "healthy" || body["connection"] != "disconnected" {
		t.Errorf("Unexpected body: %v", body)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected CORS header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _, _ := setupRouter(t)
	rr := do(t, router, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("livesync_connection_status")) {
		t.Errorf("Expected livesync metrics to be exported")
	}
}

func TestConnectAndBidFlow(t *testing.T) {
	router, engine, api := setupRouter(t)

	rr := do(t, router, http.MethodPost, "/api/v1/connect", map[string]string{"token": "tok"})
	if rr.Code != http.StatusOK {
		t.Fatalf("connect returned %v: %s", rr.Code, rr.Body.String())
	}
	var st service.StatusView
	json.NewDecoder(rr.Body).Decode(&st)
	if !st.Connected {
		t.Fatalf("Expected connected status, got %+v", st)
	}
	waitForCars(t, engine, 1)

	rr = do(t, router, http.MethodGet, "/api/v1/cars/7/countdown", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("countdown returned %v", rr.Code)
	}
	rr = do(t, router, http.MethodGet, "/api/v1/cars/999/countdown", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown car, got %v", rr.Code)
	}

	rr = do(t, router, http.MethodPost, "/api/v1/bid/open", map[string]string{"itemId": "7"})
	if rr.Code != http.StatusOK {
		t.Fatalf("open returned %v: %s", rr.Code, rr.Body.String())
	}
	var d bidding.Draft
	json.NewDecoder(rr.Body).Decode(&d)
	if d.OpenPrice != 200000 || d.Candidate != 202000 {
		t.Fatalf("Unexpected draft %+v", d)
	}

	rr = do(t, router, http.MethodPost, "/api/v1/bid/adjust", map[string]string{"direction": "sideways"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad direction, got %v", rr.Code)
	}

	rr = do(t, router, http.MethodPut, "/api/v1/bid/text", map[string]string{"text": "200000"})
	if rr.Code != http.StatusOK {
		t.Fatalf("set text returned %v", rr.Code)
	}
	rr = do(t, router, http.MethodPost, "/api/v1/bid/submit", map[string]string{"userId": "u1"}, "Authorization", "Bearer tok")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for bid at the open price, got %v", rr.Code)
	}

	rr = do(t, router, http.MethodPost, "/api/v1/bid/submit", map[string]string{"userId": "u1"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %v", rr.Code)
	}

	do(t, router, http.MethodPost, "/api/v1/bid/adjust", map[string]string{"direction": "up"})
	rr = do(t, router, http.MethodPost, "/api/v1/bid/submit", map[string]string{"userId": "u1"}, "Authorization", "Bearer tok")
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %v: %s", rr.Code, rr.Body.String())
	}
	api.mu.Lock()
	if api.lastBid.Amount != 202000 || api.lastBid.BidCarID != "b7" || api.token != "tok" {
		t.Errorf("Unexpected bid sent: %+v token=%q", api.lastBid, api.token)
	}
	api.mu.Unlock()

	rr = do(t, router, http.MethodGet, "/api/v1/bid", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected dialog to be closed, got %v", rr.Code)
	}
}

func TestRejectedBidSurfacesServerMessage(t *testing.T) {
	router, engine, api := setupRouter(t)
	api.reject = "Auction already closed"

	do(t, router, http.MethodPost, "/api/v1/connect", map[string]string{"token": "tok"})
	waitForCars(t, engine, 1)
	do(t, router, http.MethodPost, "/api/v1/bid/open", map[string]string{"itemId": "7"})

	rr := do(t, router, http.MethodPost, "/api/v1/bid/submit", map[string]string{"userId": "u1"}, "Authorization", "Bearer tok")
	if rr.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %v", rr.Code)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["error"] != "Auction already closed" {
		t.Errorf("Expected server message, got %v", body)
	}

	rr = do(t, router, http.MethodGet, "/api/v1/bid", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected dialog to stay open, got %v", rr.Code)
	}
}

func TestSubmitWithoutDialog(t *testing.T) {
	router, _, _ := setupRouter(t)
	rr := do(t, router, http.MethodPost, "/api/v1/bid/submit", nil, "Authorization", "Bearer tok")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %v", rr.Code)
	}
}

func TestHistoryDisabled(t *testing.T) {
	router, _, _ := setupRouter(t)
	rr := do(t, router, http.MethodGet, "/api/v1/history/results", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without an archive, got %v", rr.Code)
	}
	rr = do(t, router, http.MethodGet, "/api/v1/history/bids", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without userId, got %v", rr.Code)
	}
}

func TestDisconnect(t *testing.T) {
	router, engine, _ := setupRouter(t)
	do(t, router, http.MethodPost, "/api/v1/connect", map[string]string{"token": "tok"})
	waitForCars(t, engine, 1)

	rr := do(t, router, http.MethodPost, "/api/v1/disconnect", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("disconnect returned %v", rr.Code)
	}
	rr = do(t, router, http.MethodGet, "/api/v1/cars", nil)
	var cars []service.CarView
	json.NewDecoder(rr.Body).Decode(&cars)
	if len(cars) != 0 {
		t.Errorf("Expected no cars after disconnect, got %d", len(cars))
	}
}
