package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"partner-service/internal/cache"
	"partner-service/internal/models"
	"partner-service/internal/services"
)

// stubAccountStore holds accounts in a map for handler tests.
type stubAccountStore struct {
	accounts map[uuid.UUID]*models.Account
}

func newStubAccountStore() *stubAccountStore {
	return &stubAccountStore{accounts: make(map[uuid.UUID]*models.Account)}
}

func (s *stubAccountStore) CreateAccount(account *models.Account) error {
	for _, existing := range s.accounts {
		if existing.Email == account.Email {
			return models.ErrEmailTaken
		}
	}
	stored := *account
	s.accounts[account.ID] = &stored
	return nil
}

func (s *stubAccountStore) GetAccount(id uuid.UUID) (*models.Account, error) {
	stored, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	copied := *stored
	return &copied, nil
}

func (s *stubAccountStore) GetAccountByEmail(email string) (*models.Account, error) {
	for _, account := range s.accounts {
		if account.Email == email {
			copied := *account
			return &copied, nil
		}
	}
	return nil, models.ErrAccountNotFound
}

func (s *stubAccountStore) ListAccounts() ([]models.Account, error) {
	result := make([]models.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		result = append(result, *account)
	}
	return result, nil
}

func (s *stubAccountStore) ListPartners() ([]models.Account, error) {
	var result []models.Account
	for _, account := range s.accounts {
		if account.Role == models.RolePartner {
			result = append(result, *account)
		}
	}
	return result, nil
}

func (s *stubAccountStore) UpdateTotals(id uuid.UUID, totalPurchases, totalResold float64) error {
	stored, ok := s.accounts[id]
	if !ok {
		return models.ErrAccountNotFound
	}
	stored.TotalPurchases = totalPurchases
	stored.TotalResold = totalResold
	return nil
}

func (s *stubAccountStore) UpdateStatus(id uuid.UUID, status string) error {
	stored, ok := s.accounts[id]
	if !ok {
		return models.ErrAccountNotFound
	}
	stored.Status = status
	return nil
}

func newAccountRouter(store *stubAccountStore) *gin.Engine {
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	statsCache := cache.NewNetworkCache(nil, logger, time.Second)
	referrals := services.NewReferralService(store, &stubCodeStore{}, statsCache, logger)
	h := NewAccountHandlers(store, referrals, logger)

	router := gin.New()
	admin := router.Group("/api/v1/admin/accounts")
	admin.GET("", h.ListAccounts)
	admin.POST("", h.CreateAccount)
	admin.PATCH("/:id/status", h.UpdateStatus)
	admin.PUT("/:id/totals", h.UpdateTotals)
	return router
}

func postJSON(router *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAccount_StoresHashedPassword(t *testing.T) {
	store := newStubAccountStore()
	router := newAccountRouter(store)

	w := postJSON(router, http.MethodPost, "/api/v1/admin/accounts", gin.H{
		"name":     "Direct Partner",
		"email":    "Direct@Example.com",
		"password": "hunter2hunter2",
		"role":     models.RolePartner,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	stored, err := store.GetAccountByEmail("direct@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RolePartner, stored.Role)
	assert.Equal(t, models.StatusActive, stored.Status)
	assert.NotEqual(t, "hunter2hunter2", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("hunter2hunter2")))
}

func TestCreateAccount_LinksReferrer(t *testing.T) {
	store := newStubAccountStore()
	referrer := &models.Account{ID: uuid.New(), Email: "upline@example.com", Name: "Upline Partner", Role: models.RolePartner}
	require.NoError(t, store.CreateAccount(referrer))
	router := newAccountRouter(store)

	w := postJSON(router, http.MethodPost, "/api/v1/admin/accounts", gin.H{
		"name":        "Downline Customer",
		"email":       "downline@example.com",
		"password":    "hunter2hunter2",
		"role":        models.RoleCustomer,
		"referred_by": referrer.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	stored, err := store.GetAccountByEmail("downline@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.ReferredBy)
	assert.Equal(t, referrer.ID, *stored.ReferredBy)
	require.NotNil(t, stored.ReferredByName)
	assert.Equal(t, "Upline Partner", *stored.ReferredByName)
}

func TestCreateAccount_UnknownReferrer(t *testing.T) {
	router := newAccountRouter(newStubAccountStore())

	w := postJSON(router, http.MethodPost, "/api/v1/admin/accounts", gin.H{
		"name":        "Orphan",
		"email":       "orphan@example.com",
		"password":    "hunter2hunter2",
		"role":        models.RoleCustomer,
		"referred_by": uuid.New(),
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateAccount_RejectsUnknownRole(t *testing.T) {
	router := newAccountRouter(newStubAccountStore())

	w := postJSON(router, http.MethodPost, "/api/v1/admin/accounts", gin.H{
		"name":     "Mystery",
		"email":    "mystery@example.com",
		"password": "hunter2hunter2",
		"role":     "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_ROLE", body["code"])
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	store := newStubAccountStore()
	require.NoError(t, store.CreateAccount(&models.Account{ID: uuid.New(), Email: "taken@example.com", Name: "First"}))
	router := newAccountRouter(store)

	w := postJSON(router, http.MethodPost, "/api/v1/admin/accounts", gin.H{
		"name":     "Second",
		"email":    "taken@example.com",
		"password": "hunter2hunter2",
		"role":     models.RoleCustomer,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateStatus(t *testing.T) {
	store := newStubAccountStore()
	account := &models.Account{ID: uuid.New(), Email: "toggle@example.com", Name: "Toggle", Status: models.StatusActive}
	require.NoError(t, store.CreateAccount(account))
	router := newAccountRouter(store)

	w := postJSON(router, http.MethodPatch, "/api/v1/admin/accounts/"+account.ID.String()+"/status", gin.H{
		"status": models.StatusInactive,
	})
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := store.GetAccount(account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, stored.Status)
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	store := newStubAccountStore()
	account := &models.Account{ID: uuid.New(), Email: "toggle@example.com", Name: "Toggle"}
	require.NoError(t, store.CreateAccount(account))
	router := newAccountRouter(store)

	w := postJSON(router, http.MethodPatch, "/api/v1/admin/accounts/"+account.ID.String()+"/status", gin.H{
		"status": "banned",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStatus_AccountNotFound(t *testing.T) {
	router := newAccountRouter(newStubAccountStore())

	w := postJSON(router, http.MethodPatch, "/api/v1/admin/accounts/"+uuid.NewString()+"/status", gin.H{
		"status": models.StatusInactive,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateTotals(t *testing.T) {
	store := newStubAccountStore()
	account := &models.Account{ID: uuid.New(), Email: "sums@example.com", Name: "Sums"}
	require.NoError(t, store.CreateAccount(account))
	router := newAccountRouter(store)

	w := postJSON(router, http.MethodPut, "/api/v1/admin/accounts/"+account.ID.String()+"/totals", gin.H{
		"total_purchases": 1200.50,
		"total_resold":    1800.0,
	})
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := store.GetAccount(account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1200.50, stored.TotalPurchases)
	assert.Equal(t, 1800.0, stored.TotalResold)
}

func TestUpdateTotals_RejectsNegative(t *testing.T) {
	store := newStubAccountStore()
	account := &models.Account{ID: uuid.New(), Email: "sums@example.com", Name: "Sums"}
	require.NoError(t, store.CreateAccount(account))
	router := newAccountRouter(store)

	w := postJSON(router, http.MethodPut, "/api/v1/admin/accounts/"+account.ID.String()+"/totals", gin.H{
		"total_purchases": -5.0,
		"total_resold":    0.0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_TOTALS", body["code"])
}

func TestUpdateTotals_InvalidID(t *testing.T) {
	router := newAccountRouter(newStubAccountStore())

	w := postJSON(router, http.MethodPut, "/api/v1/admin/accounts/not-a-uuid/totals", gin.H{
		"total_purchases": 1.0,
		"total_resold":    1.0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
