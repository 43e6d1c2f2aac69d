package handlers

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"partner-service/internal/services"
)

type RegistrationHandlers struct {
	registration *services.RegistrationService
	codes        *services.CodeService
	db           *sql.DB
	logger       *logrus.Logger
}

func NewRegistrationHandlers(registration *services.RegistrationService, codes *services.CodeService, db *sql.DB, logger *logrus.Logger) *RegistrationHandlers {
	return &RegistrationHandlers{
		registration: registration,
		codes:        codes,
		db:           db,
		logger:       logger,
	}
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=8"`
	InvitationCode string `json:"invitation_code" binding:"required"`
}

// Register creates an account from an invitation code
func (h *RegistrationHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	account, err := h.registration.Register(c.Request.Context(), req.Name, strings.ToLower(req.Email), req.Password, req.InvitationCode)
	if err != nil {
		if respondDomainError(c, err) {
			return
		}
		h.logger.WithError(err).Error("Registration failed")
		respondInternalError(c, "Registration failed")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"account": account,
	})
}

// ValidateCode checks an invitation code without consuming a use. The
// storefront calls this as the user types, before the registration form is
// submitted.
func (h *RegistrationHandlers) ValidateCode(c *gin.Context) {
	codeStr := c.Query("code")
	if codeStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query parameter 'code' is required",
			"code":  "MISSING_CODE",
		})
		return
	}

	code, err := h.codes.Validate(codeStr, time.Now())
	if err != nil {
		if respondDomainError(c, err) {
			return
		}
		h.logger.WithError(err).Error("Code validation failed")
		respondInternalError(c, "Code validation failed")
		return
	}

	template, err := services.ResolveTemplate(code)
	if err != nil {
		h.logger.WithError(err).WithField("code", code.Code).Error("Code has unknown type")
		respondInternalError(c, "Code validation failed")
		return
	}

	response := gin.H{
		"valid":          true,
		"code":           code.Code,
		"type":           code.Type,
		"role":           template.Role,
		"remaining_uses": code.MaxUses - code.UsedCount,
	}
	if template.DiscountRate != nil {
		response["default_discount_rate"] = *template.DiscountRate
	}

	c.JSON(http.StatusOK, response)
}

// Health reports liveness
func (h *RegistrationHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "partner-service",
	})
}

// Ready reports readiness, including database connectivity
func (h *RegistrationHandlers) Ready(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "database unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}
