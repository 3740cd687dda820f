package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subvault/subvault/internal/domain"
	"github.com/subvault/subvault/internal/seed"
	"github.com/subvault/subvault/internal/service"
	"github.com/subvault/subvault/internal/store"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	s, err := store.NewSnapshotStore(store.NewMemoryBackend(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Bootstrap(seed.Products(), seed.Users()))

	purchases := service.NewPurchaseService(s, s, service.NewDeliveryEngine(s), s, zap.NewNop())
	handler := NewHandler(s, purchases)

	r := mux.NewRouter()
	r.HandleFunc("/health", handler.HealthCheckHandler).Methods("GET")
	handler.RegisterRoutes(r.PathPrefix("/api/v1").Subrouter())
	return r
}

func doJSON(t *testing.T, r *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListProducts(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, "GET", "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []domain.CatalogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "spotify", entries[0].ID)
	assert.Equal(t, 5, entries[0].AvailableStock)
	assert.Equal(t, "3.99", entries[0].UnitPrice.String())
}

func TestGetProductNotFound(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, "GET", "/api/v1/products/netflix", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePurchase(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, "POST", "/api/v1/purchases", PurchaseRequest{
		UserID: "2", ProductID: "spotify", Quantity: 2,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var record domain.PurchaseRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, 2, record.Quantity)
	assert.Equal(t, "7.98", record.TotalPrice.String())
	require.Len(t, record.Credentials, 2)
	assert.Equal(t, "spotify1@premium.com", record.Credentials[0].Email)

	// Balance reflects the debit: 15.50 - 7.98.
	w = doJSON(t, r, "GET", "/api/v1/users/2/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bal struct {
		Balance decimal.Decimal `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bal))
	assert.Equal(t, "7.52", bal.Balance.String())

	// And the purchase shows up in history.
	w = doJSON(t, r, "GET", "/api/v1/users/2/purchases", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []domain.PurchaseRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, record.ID, history[0].ID)
}

func TestCreatePurchaseRejections(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name     string
		req      PurchaseRequest
		wantCode int
		wantMsg  string
	}{
		{"unknown product", PurchaseRequest{UserID: "2", ProductID: "netflix", Quantity: 1}, http.StatusNotFound, "Product not found"},
		{"unknown user", PurchaseRequest{UserID: "999", ProductID: "spotify", Quantity: 1}, http.StatusNotFound, "User not found"},
		{"zero quantity", PurchaseRequest{UserID: "2", ProductID: "spotify", Quantity: 0}, http.StatusUnprocessableEntity, "Quantity must be positive"},
		{"out of stock", PurchaseRequest{UserID: "1", ProductID: "youtube", Quantity: 4}, http.StatusUnprocessableEntity, "Out of stock"},
		{"insufficient balance", PurchaseRequest{UserID: "3", ProductID: "spotify", Quantity: 1}, http.StatusUnprocessableEntity, "Insufficient balance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, "POST", "/api/v1/purchases", tt.req)
			assert.Equal(t, tt.wantCode, w.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantMsg, resp["error"])
		})
	}
}

func TestCreditUser(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, "POST", "/api/v1/users/3/credit", map[string]string{"amount": "25.00"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "25", resp.Balance.String())

	w = doJSON(t, r, "POST", "/api/v1/users/3/credit", map[string]string{"amount": "-5"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestImportCredentials(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, "POST", "/api/v1/products/youtube/credentials", ImportRequest{
		Credentials: []domain.CredentialImport{
			{Email: "youtube4@premium.com", Password: "YouTubePass101"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, "GET", "/api/v1/products/youtube", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entry domain.CatalogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, 4, entry.AvailableStock)

	w = doJSON(t, r, "POST", "/api/v1/products/netflix/credentials", ImportRequest{
		Credentials: []domain.CredentialImport{{Email: "x@y.com", Password: "pw"}},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(t, r, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
