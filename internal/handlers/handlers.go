// Package handlers serves the engine's collaborator operations over a local
// HTTP API so screens in other processes can drive it.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/bidding"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/service"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/session"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/transport"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultHistoryLimit = 20

// Handler contains HTTP request handlers
type Handler struct {
	engine *service.Engine
	log    *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(engine *service.Engine) *Handler {
	return &Handler{
		engine: engine,
		log:    slog.With("component", "http"),
	}
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", h.Status).Methods("GET")
	api.HandleFunc("/connect", h.Connect).Methods("POST")
	api.HandleFunc("/disconnect", h.Disconnect).Methods("POST")
	api.HandleFunc("/session", h.SignIn).Methods("POST")
	api.HandleFunc("/session", h.SignOut).Methods("DELETE")

	api.HandleFunc("/cars", h.LiveCars).Methods("GET")
	api.HandleFunc("/cars/refresh", h.RefreshCars).Methods("POST")
	api.HandleFunc("/cars/{id}/countdown", h.Countdown).Methods("GET")
	api.HandleFunc("/cars/{id}/price", h.Price).Methods("GET")

	api.HandleFunc("/bid", h.GetBid).Methods("GET")
	api.HandleFunc("/bid", h.CloseBid).Methods("DELETE")
	api.HandleFunc("/bid/open", h.OpenBid).Methods("POST")
	api.HandleFunc("/bid/adjust", h.AdjustBid).Methods("POST")
	api.HandleFunc("/bid/text", h.SetBidText).Methods("PUT")
	api.HandleFunc("/bid/refresh", h.RefreshBid).Methods("POST")
	api.HandleFunc("/bid/submit", h.PlaceBid).Methods("POST")

	api.HandleFunc("/wishlist", h.Wishlist).Methods("GET")
	api.HandleFunc("/wishlist/{id}", h.AddWishlist).Methods("PUT")
	api.HandleFunc("/wishlist/{id}", h.RemoveWishlist).Methods("DELETE")

	api.HandleFunc("/history/bids", h.BidHistory).Methods("GET")
	api.HandleFunc("/history/results", h.Results).Methods("GET")

	router.Use(h.loggingMiddleware)
	router.Use(corsMiddleware)

	return router
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":     "healthy",
		"service":    "livesync",
		"connection": string(h.engine.Status().Status),
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}

// Status returns the connection state
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Status())
}

type connectRequest struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// Connect connects with the given token, or the stored one
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	if req.Token == "" {
		req.Token = bearerToken(r)
	}

	if err := h.engine.ConnectWebSocket(r.Context(), req.Token); err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.engine.Status())
}

// Disconnect tears the connection down
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.engine.DisconnectWebSocket()
	respondJSON(w, http.StatusOK, h.engine.Status())
}

// SignIn stores credentials and connects
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Token == "" {
		respondError(w, http.StatusBadRequest, "Token is required")
		return
	}

	if err := h.engine.SignIn(r.Context(), req.Token, req.UserID); err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.engine.Status())
}

// SignOut disconnects and clears credentials
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.SignOut(r.Context()); err != nil {
		h.respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LiveCars returns the live view
func (h *Handler) LiveCars(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.LiveCars())
}

// RefreshCars triggers a background car list refresh
func (h *Handler) RefreshCars(w http.ResponseWriter, r *http.Request) {
	h.engine.GetLiveCars(r.Context())
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

// Countdown returns the countdown of one car
func (h *Handler) Countdown(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	cd, ok := h.engine.GetCountdown(itemID)
	if !ok {
		respondError(w, http.StatusNotFound, "Car is not live")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": itemID, "countdown": cd})
}

// Price fetches one car's live price
func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	price, err := h.engine.FetchLivePrice(r.Context(), itemID)
	if err != nil {
		h.log.Warn("price unavailable", "item", itemID, "error", err)
		respondError(w, http.StatusServiceUnavailable, "Could not load current price, try again")
		return
	}
	respondJSON(w, http.StatusOK, price)
}

// GetBid returns the open draft
func (h *Handler) GetBid(w http.ResponseWriter, r *http.Request) {
	d, ok := h.engine.BidDraft()
	if !ok {
		respondError(w, http.StatusNotFound, bidding.ErrNoDialog.Error())
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// CloseBid discards the draft
func (h *Handler) CloseBid(w http.ResponseWriter, r *http.Request) {
	h.engine.CloseBidModal()
	w.WriteHeader(http.StatusNoContent)
}

type openBidRequest struct {
	ItemID string `json:"itemId"`
}

// OpenBid opens the bid dialog
func (h *Handler) OpenBid(w http.ResponseWriter, r *http.Request) {
	var req openBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "Item ID is required")
		return
	}
	d, err := h.engine.OpenBidModal(r.Context(), req.ItemID)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

type adjustRequest struct {
	Direction string `json:"direction"` // "up" or "down"
}

// AdjustBid moves the candidate by one increment
func (h *Handler) AdjustBid(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	var up bool
	switch req.Direction {
	case "up", "+":
		up = true
	case "down", "-":
	default:
		respondError(w, http.StatusBadRequest, `Direction must be "up" or "down"`)
		return
	}

	d, err := h.engine.AdjustBid(up)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

type textRequest struct {
	Text string `json:"text"`
}

// SetBidText stores the typed amount
func (h *Handler) SetBidText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	d, err := h.engine.SetBidText(req.Text)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// RefreshBid re-fetches the price for the open dialog
func (h *Handler) RefreshBid(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.RefreshBid(r.Context())
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

type submitRequest struct {
	UserID string `json:"userId"`
}

// PlaceBid submits the open draft
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	result, err := h.engine.PlaceBid(r.Context(), req.UserID, bearerToken(r))
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// Wishlist returns the wishlisted ids
func (h *Handler) Wishlist(w http.ResponseWriter, r *http.Request) {
	ids, err := h.engine.Wishlist(r.Context())
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondJSON(w, http.StatusOK, ids)
}

// AddWishlist adds a car to the wishlist
func (h *Handler) AddWishlist(w http.ResponseWriter, r *http.Request) {
	h.setWishlisted(w, r, true)
}

// RemoveWishlist removes a car from the wishlist
func (h *Handler) RemoveWishlist(w http.ResponseWriter, r *http.Request) {
	h.setWishlisted(w, r, false)
}

func (h *Handler) setWishlisted(w http.ResponseWriter, r *http.Request, on bool) {
	if err := h.engine.SetWishlisted(r.Context(), mux.Vars(r)["id"], on); err != nil {
		h.respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BidHistory returns archived bids of a user
func (h *Handler) BidHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "User ID is required")
		return
	}
	bids, err := h.engine.RecentBids(r.Context(), userID, limitParam(r))
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bids)
}

// Results returns archived auction results
func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.engine.Results(r.Context(), limitParam(r))
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

// respondEngineError maps engine errors to status codes
func (h *Handler) respondEngineError(w http.ResponseWriter, err error) {
	var rejected *transport.RejectedError
	switch {
	case errors.Is(err, bidding.ErrAuthRequired), errors.Is(err, session.ErrTokenExpired):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, bidding.ErrInvalidBid), errors.Is(err, bidding.ErrBadIncrement):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, bidding.ErrNoDialog), errors.Is(err, service.ErrArchiveDisabled):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, bidding.ErrSubmitInFlight):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, bidding.ErrPriceUnavailable):
		respondError(w, http.StatusServiceUnavailable, bidding.ErrPriceUnavailable.Error())
	case errors.As(err, &rejected):
		msg := rejected.Message
		if msg == "" {
			msg = "Server error"
		}
		respondError(w, http.StatusConflict, msg)
	default:
		h.log.Error("request failed", "error", err)
		respondError(w, http.StatusBadGateway, bidding.GenericFailure)
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// decodeOptional decodes a JSON body when one is present
func decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > 200 {
		return defaultHistoryLimit
	}
	return n
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs all HTTP requests
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.log.Debug("request",
			"method", r.Method,
			"uri", r.RequestURI,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}

// corsMiddleware adds CORS headers for browser-based screens
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
