package handlers

import (
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

	"partner-service/internal/models"
	"partner-service/internal/services"
)

// stubCodeStore serves a fixed set of codes for handler tests. redeemErr
// scripts the outcome of Redeem calls.
type stubCodeStore struct {
	codes     map[string]models.InvitationCode
	redeemErr error
	redeemed  []string
}

func (s *stubCodeStore) CreateCode(code *models.InvitationCode) error { return nil }

func (s *stubCodeStore) GetCode(code string) (*models.InvitationCode, error) {
	stored, ok := s.codes[code]
	if !ok {
		return nil, models.ErrCodeNotFound
	}
	return &stored, nil
}

func (s *stubCodeStore) GetCodeWithRedemptions(code string) (*models.InvitationCode, error) {
	return s.GetCode(code)
}

func (s *stubCodeStore) ListCodes(filter models.CodeFilter) ([]models.InvitationCode, int, error) {
	return nil, 0, nil
}

func (s *stubCodeStore) DeactivateCode(code string) error { return nil }

func (s *stubCodeStore) Redeem(code string, accountID uuid.UUID, accountName string, now time.Time) error {
	if s.redeemErr != nil {
		return s.redeemErr
	}
	s.redeemed = append(s.redeemed, code)
	return nil
}

func (s *stubCodeStore) DeactivateExpired(now time.Time) (int64, error) { return 0, nil }

func (s *stubCodeStore) PartnerCodeStats(partnerID uuid.UUID) (int, int, error) { return 0, 0, nil }

func newValidateRouter(store *stubCodeStore) *gin.Engine {
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	codeService := services.NewCodeService(store, nil, logger, "GT", 8)
	h := NewRegistrationHandlers(nil, codeService, nil, logger)

	router := gin.New()
	router.GET("/api/v1/codes/validate", h.ValidateCode)
	return router
}

func TestValidateCode_MissingParam(t *testing.T) {
	router := newValidateRouter(&stubCodeStore{codes: map[string]models.InvitationCode{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/codes/validate", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateCode_NotFound(t *testing.T) {
	router := newValidateRouter(&stubCodeStore{codes: map[string]models.InvitationCode{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/codes/validate?code=GTNOPE1234", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CODE_NOT_FOUND", body["code"])
}

func TestValidateCode_Usable(t *testing.T) {
	router := newValidateRouter(&stubCodeStore{codes: map[string]models.InvitationCode{
		"GTPARTNER001": {
			Code:      "GTPARTNER001",
			Type:      models.CodeTypeAdminPartner,
			IssuedBy:  uuid.New(),
			MaxUses:   3,
			UsedCount: 1,
			IsActive:  true,
		},
	}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/codes/validate?code=GTPARTNER001", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, models.RolePartner, body["role"])
	assert.Equal(t, float64(2), body["remaining_uses"])
	assert.Equal(t, models.DefaultPartnerDiscountRate, body["default_discount_rate"])
}

func TestValidateCode_PartnerCodeReportsExplicitRate(t *testing.T) {
	rate := 25.0
	router := newValidateRouter(&stubCodeStore{codes: map[string]models.InvitationCode{
		"GTQUARTER1": {
			Code:                "GTQUARTER1",
			Type:                models.CodeTypeAdminPartner,
			IssuedBy:            uuid.New(),
			MaxUses:             1,
			IsActive:            true,
			DefaultDiscountRate: &rate,
		},
	}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/codes/validate?code=GTQUARTER1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 25.0, body["default_discount_rate"])
}

func TestValidateCode_CustomerCodeOmitsRate(t *testing.T) {
	router := newValidateRouter(&stubCodeStore{codes: map[string]models.InvitationCode{
		"GTWELCOME1": {
			Code:     "GTWELCOME1",
			Type:     models.CodeTypeAdminUser,
			IssuedBy: uuid.New(),
			MaxUses:  10,
			IsActive: true,
		},
	}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/codes/validate?code=GTWELCOME1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.RoleCustomer, body["role"])
	_, hasRate := body["default_discount_rate"]
	assert.False(t, hasRate)
}

func TestValidateCode_Exhausted(t *testing.T) {
	router := newValidateRouter(&stubCodeStore{codes: map[string]models.InvitationCode{
		"GTALLGONE1": {
			Code:      "GTALLGONE1",
			Type:      models.CodeTypeAdminUser,
			IssuedBy:  uuid.New(),
			MaxUses:   2,
			UsedCount: 2,
			IsActive:  true,
		},
	}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/codes/validate?code=GTALLGONE1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CODE_EXHAUSTED", body["code"])
}

func TestValidateCode_Expired(t *testing.T) {
	expired := time.Now().Add(-time.Minute)
	router := newValidateRouter(&stubCodeStore{codes: map[string]models.InvitationCode{
		"GTBYGONE01": {
			Code:      "GTBYGONE01",
			Type:      models.CodeTypeAdminUser,
			IssuedBy:  uuid.New(),
			MaxUses:   5,
			IsActive:  true,
			ExpiresAt: &expired,
		},
	}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/codes/validate?code=GTBYGONE01", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CODE_EXPIRED", body["code"])
}
