package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"github.com/subvault/subvault/internal/domain"
	"github.com/subvault/subvault/internal/service"
	"github.com/subvault/subvault/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	purchasesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_purchases_completed_total",
		Help: "Completed purchases",
	})

	credentialsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_credentials_delivered_total",
		Help: "Credentials delivered to buyers",
	})

	purchasesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_purchases_rejected_total",
		Help: "Rejected purchases, labeled by failed precondition",
	}, []string{"reason"})
)

type Handler struct {
	store     store.Store
	purchases *service.PurchaseService
}

func NewHandler(s store.Store, purchases *service.PurchaseService) *Handler {
	return &Handler{store: s, purchases: purchases}
}

// RegisterRoutes mounts the API under the given router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/products", h.ListProductsHandler).Methods("GET")
	r.HandleFunc("/products/{id}", h.GetProductHandler).Methods("GET")
	r.HandleFunc("/products/{id}/credentials", h.ImportCredentialsHandler).Methods("POST")
	r.HandleFunc("/purchases", h.CreatePurchaseHandler).Methods("POST")
	r.HandleFunc("/users/{id}/balance", h.GetBalanceHandler).Methods("GET")
	r.HandleFunc("/users/{id}/purchases", h.GetPurchaseHistoryHandler).Methods("GET")
	r.HandleFunc("/users/{id}/credit", h.CreditUserHandler).Methods("POST")
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.ListCatalog(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "System error listing catalog", "GET", "/products")
		return
	}
	respondWithJSON(w, http.StatusOK, entries, "GET", "/products")
}

func (h *Handler) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	entry, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownProduct) {
			respondWithError(w, http.StatusNotFound, "Product not found", "GET", "/products/{id}")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error", "GET", "/products/{id}")
		return
	}
	respondWithJSON(w, http.StatusOK, entry, "GET", "/products/{id}")
}

// PurchaseRequest is the payload from the client.
type PurchaseRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) CreatePurchaseHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/purchases"))
	defer timer.ObserveDuration()

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/purchases")
		return
	}
	if req.UserID == "" || req.ProductID == "" {
		respondWithError(w, http.StatusBadRequest, "user_id and product_id are required", "POST", "/purchases")
		return
	}

	record, err := h.purchases.Purchase(r.Context(), req.UserID, req.ProductID, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidQuantity):
			purchasesRejected.WithLabelValues("invalid_quantity").Inc()
			respondWithError(w, http.StatusUnprocessableEntity, "Quantity must be positive", "POST", "/purchases")
		case errors.Is(err, domain.ErrUnknownProduct):
			purchasesRejected.WithLabelValues("unknown_product").Inc()
			respondWithError(w, http.StatusNotFound, "Product not found", "POST", "/purchases")
		case errors.Is(err, domain.ErrUnknownUser):
			purchasesRejected.WithLabelValues("unknown_user").Inc()
			respondWithError(w, http.StatusNotFound, "User not found", "POST", "/purchases")
		case errors.Is(err, domain.ErrInsufficientStock):
			purchasesRejected.WithLabelValues("insufficient_stock").Inc()
			respondWithError(w, http.StatusUnprocessableEntity, "Out of stock", "POST", "/purchases")
		case errors.Is(err, domain.ErrInsufficientFunds):
			purchasesRejected.WithLabelValues("insufficient_funds").Inc()
			respondWithError(w, http.StatusUnprocessableEntity, "Insufficient balance", "POST", "/purchases")
		case errors.Is(err, domain.ErrAllocationConflict):
			purchasesRejected.WithLabelValues("allocation_conflict").Inc()
			respondWithError(w, http.StatusConflict, "Allocation conflict, retry the purchase", "POST", "/purchases")
		default:
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error", "POST", "/purchases")
		}
		return
	}

	purchasesCompleted.Inc()
	credentialsDelivered.Add(float64(len(record.Credentials)))
	respondWithJSON(w, http.StatusCreated, record, "POST", "/purchases")
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	balance, err := h.store.BalanceOf(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownUser) {
			respondWithError(w, http.StatusNotFound, "User not found", "GET", "/users/{id}/balance")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error", "GET", "/users/{id}/balance")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"user_id": id, "balance": balance}, "GET", "/users/{id}/balance")
}

func (h *Handler) GetPurchaseHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	records, err := h.store.PurchasesByUser(r.Context(), id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error", "GET", "/users/{id}/purchases")
		return
	}
	if records == nil {
		records = []domain.PurchaseRecord{}
	}
	respondWithJSON(w, http.StatusOK, records, "GET", "/users/{id}/purchases")
}

// CreditRequest tops up a user's balance. Admin-only by deployment
// convention; the core trusts the caller's identity.
type CreditRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) CreditUserHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/users/{id}/credit")
		return
	}
	if !req.Amount.IsPositive() {
		respondWithError(w, http.StatusUnprocessableEntity, "Positive amount required", "POST", "/users/{id}/credit")
		return
	}

	balance, err := h.store.Credit(r.Context(), id, req.Amount)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownUser) {
			respondWithError(w, http.StatusNotFound, "User not found", "POST", "/users/{id}/credit")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error", "POST", "/users/{id}/credit")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"user_id": id, "balance": balance}, "POST", "/users/{id}/credit")
}

// ImportRequest is the admin inventory upload payload.
type ImportRequest struct {
	Credentials []domain.CredentialImport `json:"credentials"`
}

func (h *Handler) ImportCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/products/{id}/credentials")
		return
	}
	if len(req.Credentials) == 0 {
		respondWithError(w, http.StatusUnprocessableEntity, "At least one credential required", "POST", "/products/{id}/credentials")
		return
	}
	for _, c := range req.Credentials {
		if c.Email == "" || c.Password == "" {
			respondWithError(w, http.StatusUnprocessableEntity, "Credentials need email and password", "POST", "/products/{id}/credentials")
			return
		}
	}

	added, err := h.store.ImportCredentials(r.Context(), id, req.Credentials)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownProduct) {
			respondWithError(w, http.StatusNotFound, "Product not found", "POST", "/products/{id}/credentials")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error", "POST", "/products/{id}/credentials")
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]int{"imported": len(added)}, "POST", "/products/{id}/credentials")
}

// Helpers
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondWithError(w http.ResponseWriter, code int, message, method, endpoint string) {
	respondWithJSON(w, code, map[string]string{"error": message}, method, endpoint)
}
