package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"partner-service/internal/middleware"
	"partner-service/internal/models"
	"partner-service/internal/repository"
	"partner-service/internal/services"
)

type CodeHandlers struct {
	codes    *services.CodeService
	accounts repository.AccountStore
	maxBulk  int
	logger   *logrus.Logger
}

func NewCodeHandlers(codes *services.CodeService, accounts repository.AccountStore, maxBulk int, logger *logrus.Logger) *CodeHandlers {
	if maxBulk <= 0 {
		maxBulk = 100
	}
	return &CodeHandlers{
		codes:    codes,
		accounts: accounts,
		maxBulk:  maxBulk,
		logger:   logger,
	}
}

// CreateCodeRequest represents an admin code creation request
type CreateCodeRequest struct {
	Code                string     `json:"code"`
	Type                string     `json:"type" binding:"required"`
	MaxUses             int        `json:"max_uses" binding:"required,min=1"`
	ExpiresAt           *time.Time `json:"expires_at"`
	DefaultDiscountRate *float64   `json:"default_discount_rate"`
	Notes               string     `json:"notes"`
}

// BulkCreateCodesRequest represents a bulk code creation request
type BulkCreateCodesRequest struct {
	CreateCodeRequest
	Count int `json:"count" binding:"required,min=1"`
}

// CreatePartnerCodeRequest represents a partner issuing a code for their
// own customers
type CreatePartnerCodeRequest struct {
	MaxUses   int        `json:"max_uses" binding:"required,min=1"`
	ExpiresAt *time.Time `json:"expires_at"`
	Notes     string     `json:"notes"`
}

// RedeemCodeRequest represents an existing account attaching a code
type RedeemCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// CreateCode creates a single invitation code (admin)
func (h *CodeHandlers) CreateCode(c *gin.Context) {
	var req CreateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	issuer, ok := h.caller(c)
	if !ok {
		return
	}

	code, err := h.codes.IssueCode(c.Request.Context(), issuer, services.IssueCodeInput{
		Code:                req.Code,
		Type:                req.Type,
		MaxUses:             req.MaxUses,
		ExpiresAt:           req.ExpiresAt,
		DefaultDiscountRate: req.DefaultDiscountRate,
		Notes:               req.Notes,
	})
	if err != nil {
		if respondDomainError(c, err) {
			return
		}
		h.logger.WithError(err).Error("Failed to create invitation code")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Failed to create invitation code",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"code": code})
}

// BulkCreateCodes creates a batch of generated codes (admin)
func (h *CodeHandlers) BulkCreateCodes(c *gin.Context) {
	var req BulkCreateCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	if req.Count > h.maxBulk {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("A single request can create at most %d codes", h.maxBulk),
			"code":  "BULK_LIMIT_EXCEEDED",
		})
		return
	}

	issuer, ok := h.caller(c)
	if !ok {
		return
	}

	codes, err := h.codes.BulkIssue(c.Request.Context(), issuer, services.IssueCodeInput{
		Type:                req.Type,
		MaxUses:             req.MaxUses,
		ExpiresAt:           req.ExpiresAt,
		DefaultDiscountRate: req.DefaultDiscountRate,
		Notes:               req.Notes,
	}, req.Count)
	if err != nil {
		if respondDomainError(c, err) {
			return
		}
		h.logger.WithError(err).Error("Failed to bulk create invitation codes")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Failed to create invitation codes",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"codes": codes,
		"count": len(codes),
	})
}

// ListCodes lists invitation codes with filters (admin)
func (h *CodeHandlers) ListCodes(c *gin.Context) {
	filter := models.CodeFilter{
		Search:     c.Query("search"),
		Type:       c.Query("type"),
		ActiveOnly: c.Query("active") == "true",
		Limit:      parseIntQuery(c, "limit", 50),
		Offset:     parseIntQuery(c, "offset", 0),
	}

	h.listWithFilter(c, filter)
}

// GetCode returns a single code with its redemption history (admin)
func (h *CodeHandlers) GetCode(c *gin.Context) {
	code, err := h.codes.GetWithHistory(c.Param("code"))
	if err != nil {
		if respondDomainError(c, err) {
			return
		}
		h.logger.WithError(err).Error("Failed to load invitation code")
		respondInternalError(c, "Failed to load invitation code")
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": code})
}

// DeactivateCode disables a code without deleting it, so its redemption
// history stays queryable (admin)
func (h *CodeHandlers) DeactivateCode(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}

	if err := h.codes.Deactivate(c.Request.Context(), actor, c.Param("code")); err != nil {
		if respondDomainError(c, err) {
			return
		}
		h.logger.WithError(err).Error("Failed to deactivate invitation code")
		respondInternalError(c, "Failed to deactivate invitation code")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Invitation code deactivated",
	})
}

// CreatePartnerCode lets a partner issue a customer code. The type is always
// partner_user and the code is attributed to the caller, whatever the
// request says.
func (h *CodeHandlers) CreatePartnerCode(c *gin.Context) {
	var req CreatePartnerCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	issuer, ok := h.caller(c)
	if !ok {
		return
	}

	code, err := h.codes.IssueCode(c.Request.Context(), issuer, services.IssueCodeInput{
		Type:      models.CodeTypePartnerUser,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
		Notes:     req.Notes,
	})
	if err != nil {
		if respondDomainError(c, err) {
			return
		}
		h.logger.WithError(err).Error("Failed to create partner code")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Failed to create invitation code",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"code": code})
}

// RedeemCode consumes one use of a code for the already-registered caller,
// for customers who received a partner code after signing up. Each account
// can use a given code once.
func (h *CodeHandlers) RedeemCode(c *gin.Context) {
	var req RedeemCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	actor, ok := h.caller(c)
	if !ok {
		return
	}

	codeStr := strings.ToUpper(req.Code)
	if err := h.codes.Redeem(c.Request.Context(), codeStr, actor, time.Now()); err != nil {
		if respondDomainError(c, err) {
			return
		}
		h.logger.WithError(err).WithField("code", codeStr).Error("Failed to redeem invitation code")
		respondInternalError(c, "Failed to redeem invitation code")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Invitation code redeemed",
		"code":    codeStr,
	})
}

// ListOwnCodes lists the caller's codes (partner)
func (h *CodeHandlers) ListOwnCodes(c *gin.Context) {
	callerID, err := middleware.GetAccountID(c)
	if err != nil {
		respondInternalError(c, "Missing caller identity")
		return
	}

	filter := models.CodeFilter{
		IssuedBy:   &callerID,
		ActiveOnly: c.Query("active") == "true",
		Limit:      parseIntQuery(c, "limit", 50),
		Offset:     parseIntQuery(c, "offset", 0),
	}

	h.listWithFilter(c, filter)
}

// DeactivateOwnCode disables one of the caller's own codes (partner)
func (h *CodeHandlers) DeactivateOwnCode(c *gin.Context) {
	actor, ok := h.caller(c)
	if !ok {
		return
	}

	codeStr := c.Param("code")
	code, err := h.codes.GetWithHistory(codeStr)
	if err != nil {
		if respondDomainError(c, err) {
			return
		}
		respondInternalError(c, "Failed to load invitation code")
		return
	}

	if code.IssuedBy != actor.ID && actor.Role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "You can only deactivate codes you issued",
			"code":  "NOT_CODE_OWNER",
		})
		return
	}

	if err := h.codes.Deactivate(c.Request.Context(), actor, codeStr); err != nil {
		if respondDomainError(c, err) {
			return
		}
		h.logger.WithError(err).Error("Failed to deactivate invitation code")
		respondInternalError(c, "Failed to deactivate invitation code")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Invitation code deactivated",
	})
}

func (h *CodeHandlers) listWithFilter(c *gin.Context, filter models.CodeFilter) {
	codes, total, err := h.codes.List(filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list invitation codes")
		respondInternalError(c, "Failed to list invitation codes")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"codes":  codes,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// caller loads the authenticated account. Handlers need the full account,
// not just the token claims, because issuance attributes codes to it.
func (h *CodeHandlers) caller(c *gin.Context) (*models.Account, bool) {
	callerID, err := middleware.GetAccountID(c)
	if err != nil {
		respondInternalError(c, "Missing caller identity")
		return nil, false
	}

	account, err := h.accounts.GetAccount(callerID)
	if err != nil {
		if respondDomainError(c, err) {
			return nil, false
		}
		h.logger.WithError(err).WithField("account_id", callerID).Error("Failed to load caller account")
		respondInternalError(c, "Failed to load caller account")
		return nil, false
	}

	return account, true
}

func parseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
