// Package transport talks to the auction backend: a REST API for the fixed
// request/response protocol and interchangeable push feeds for live updates.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
	"github.com/google/uuid"
)

var (
	// ErrNetwork covers unreachable hosts, timeouts and non-2xx answers
	ErrNetwork = errors.New("network error")
	// ErrMalformed is returned when the server answered with unusable JSON
	ErrMalformed = errors.New("malformed response")
)

// RejectedError is a bid the server refused. Message is the server-supplied
// reason and may be empty.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bid rejected by server (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("bid rejected by server: %s", e.Message)
}

// APIConfig configures the REST client
type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	CarsPath  string // default /api/v1/cars/live
	PricePath string // default /api/v1/cars/%s/price
	BidPath   string // default /api/v1/bids
}

// API is the REST client for the auction backend
type API struct {
	cfg  APIConfig
	http *http.Client
	log  *slog.Logger
}

// NewAPI creates a REST client
func NewAPI(cfg APIConfig) *API {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CarsPath == "" {
		cfg.CarsPath = "/api/v1/cars/live"
	}
	if cfg.PricePath == "" {
		cfg.PricePath = "/api/v1/cars/%s/price"
	}
	if cfg.BidPath == "" {
		cfg.BidPath = "/api/v1/bids"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &API{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  slog.With("component", "api"),
	}
}

// ListCars fetches the live car list. Records that fail to decode are
// skipped; a body that is not a list at all is ErrMalformed.
func (a *API) ListCars(ctx context.Context, token string) ([]models.AuctionItem, error) {
	body, status, err := a.do(ctx, http.MethodGet, a.cfg.CarsPath, token, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: list cars returned status %d", ErrNetwork, status)
	}

	items, err := DecodeCars(body)
	if err != nil {
		a.log.Warn("failed to decode car list", "error", err)
		return nil, err
	}
	return items, nil
}

// FetchPrice fetches the live price of one car
func (a *API) FetchPrice(ctx context.Context, token, itemID string) (models.LivePrice, error) {
	path := fmt.Sprintf(a.cfg.PricePath, url.PathEscape(itemID))
	body, status, err := a.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return models.LivePrice{}, err
	}
	if status < 200 || status > 299 {
		return models.LivePrice{}, fmt.Errorf("%w: price for %s returned status %d", ErrNetwork, itemID, status)
	}

	obj, err := DecodePrice(body)
	if err != nil {
		a.log.Warn("failed to decode price", "item_id", itemID, "error", err)
		return models.LivePrice{}, err
	}
	return obj.ToLivePrice(time.Now()), nil
}

// SubmitBid posts a bid. A non-2xx answer, or a 2xx body with
// "success": false, is a *RejectedError.
func (a *API) SubmitBid(ctx context.Context, token string, req models.BidRequest) (models.BidResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return models.BidResult{}, fmt.Errorf("failed to marshal bid: %w", err)
	}

	body, status, err := a.do(ctx, http.MethodPost, a.cfg.BidPath, token, payload)
	if err != nil {
		return models.BidResult{}, err
	}

	msg, explicitFailure := parseBidBody(body)
	if status < 200 || status > 299 || explicitFailure {
		return models.BidResult{Success: false, Message: msg}, &RejectedError{StatusCode: status, Message: msg}
	}
	return models.BidResult{Success: true, Message: msg}, nil
}

func (a *API) do(ctx context.Context, method, path, token string, payload []byte) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: failed to read body: %v", ErrNetwork, err)
	}
	return body, resp.StatusCode, nil
}

// parseBidBody extracts a server message and whether the body explicitly
// reports failure. Non-JSON bodies carry no message.
func parseBidBody(body []byte) (string, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", false
	}
	var parsed struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false
	}
	msg := parsed.Message
	if msg == "" {
		msg = parsed.Error
	}
	return msg, parsed.Success != nil && !*parsed.Success
}
