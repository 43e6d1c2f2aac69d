package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"partner-service/internal/models"
	"partner-service/internal/repository"
	"partner-service/internal/services"
)

// AccountHandlers covers the admin account surface: direct account creation
// for staff onboarding, status toggles, and the running-totals hook the
// order pipeline feeds.
type AccountHandlers struct {
	accounts  repository.AccountStore
	referrals *services.ReferralService
	logger    *logrus.Logger
}

func NewAccountHandlers(accounts repository.AccountStore, referrals *services.ReferralService, logger *logrus.Logger) *AccountHandlers {
	return &AccountHandlers{
		accounts:  accounts,
		referrals: referrals,
		logger:    logger,
	}
}

// CreateAccountRequest represents an admin creating an account without an
// invitation code
type CreateAccountRequest struct {
	Name         string     `json:"name" binding:"required"`
	Email        string     `json:"email" binding:"required,email"`
	Password     string     `json:"password" binding:"required,min=8"`
	Role         string     `json:"role" binding:"required"`
	DiscountRate *float64   `json:"discount_rate"`
	ReferredBy   *uuid.UUID `json:"referred_by"`
}

// UpdateStatusRequest represents an account status change
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateTotalsRequest carries the running sums computed from order events
type UpdateTotalsRequest struct {
	TotalPurchases float64 `json:"total_purchases"`
	TotalResold    float64 `json:"total_resold"`
}

// ListAccounts returns every account (admin)
func (h *AccountHandlers) ListAccounts(c *gin.Context) {
	accounts, err := h.accounts.ListAccounts()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list accounts")
		respondInternalError(c, "Failed to list accounts")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accounts": accounts,
		"total":    len(accounts),
	})
}

// CreateAccount creates an account directly, bypassing invitation codes.
// Used for staff and for partners onboarded outside the storefront.
func (h *AccountHandlers) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	if req.Role != models.RoleCustomer && req.Role != models.RolePartner && req.Role != models.RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown role",
			"code":  "INVALID_ROLE",
		})
		return
	}

	account := &models.Account{
		ID:           uuid.New(),
		Email:        strings.ToLower(req.Email),
		Name:         req.Name,
		Role:         req.Role,
		Status:       models.StatusActive,
		DiscountRate: req.DiscountRate,
		JoinedAt:     time.Now(),
	}

	if req.ReferredBy != nil {
		referrer, err := h.accounts.GetAccount(*req.ReferredBy)
		if err != nil {
			if respondDomainError(c, err) {
				return
			}
			respondInternalError(c, "Failed to load referrer account")
			return
		}
		account.ReferredBy = &referrer.ID
		account.ReferredByName = &referrer.Name
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.WithError(err).Error("Failed to hash password")
		respondInternalError(c, "Failed to create account")
		return
	}
	account.Password = string(hashed)

	if err := h.accounts.CreateAccount(account); err != nil {
		if respondDomainError(c, err) {
			return
		}
		h.logger.WithError(err).Error("Failed to create account")
		respondInternalError(c, "Failed to create account")
		return
	}

	h.referrals.Invalidate()

	h.logger.WithFields(logrus.Fields{
		"account_id": account.ID,
		"role":       account.Role,
	}).Info("Account created by admin")

	c.JSON(http.StatusCreated, gin.H{"account": account})
}

// UpdateStatus activates or deactivates an account (admin)
func (h *AccountHandlers) UpdateStatus(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	if req.Status != models.StatusActive && req.Status != models.StatusInactive && req.Status != models.StatusPending {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown status",
			"code":  "INVALID_STATUS",
		})
		return
	}

	if err := h.accounts.UpdateStatus(accountID, req.Status); err != nil {
		if respondDomainError(c, err) {
			return
		}
		h.logger.WithError(err).Error("Failed to update account status")
		respondInternalError(c, "Failed to update account status")
		return
	}

	// Conversion rollups read the status snapshot from the referral index
	h.referrals.Invalidate()

	c.JSON(http.StatusOK, gin.H{
		"message": "Account status updated",
		"status":  req.Status,
	})
}

// UpdateTotals overwrites an account's purchase and resale sums (admin).
// Called by the order pipeline after it aggregates settled orders.
func (h *AccountHandlers) UpdateTotals(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	var req UpdateTotalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	if req.TotalPurchases < 0 || req.TotalResold < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Totals cannot be negative",
			"code":  "INVALID_TOTALS",
		})
		return
	}

	if err := h.accounts.UpdateTotals(accountID, req.TotalPurchases, req.TotalResold); err != nil {
		if respondDomainError(c, err) {
			return
		}
		h.logger.WithError(err).Error("Failed to update account totals")
		respondInternalError(c, "Failed to update account totals")
		return
	}

	h.referrals.Invalidate()

	c.JSON(http.StatusOK, gin.H{
		"message": "Account totals updated",
	})
}

func parseAccountID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid account ID",
			"code":  "INVALID_ACCOUNT_ID",
		})
		return uuid.Nil, false
	}
	return id, true
}
