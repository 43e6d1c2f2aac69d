package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"partner-service/internal/models"
)

// respondDomainError maps domain sentinel errors to HTTP responses. Each
// failure gets its own code so the storefront can show a specific message.
// Returns false when the error was not a domain error and the caller should
// report a generic failure.
func respondDomainError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, models.ErrCodeNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Invitation code not found",
			"code":  "CODE_NOT_FOUND",
		})
	case errors.Is(err, models.ErrCodeInactive):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "This invitation code has been deactivated",
			"code":  "CODE_INACTIVE",
		})
	case errors.Is(err, models.ErrCodeExpired):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "This invitation code has expired",
			"code":  "CODE_EXPIRED",
		})
	case errors.Is(err, models.ErrCodeExhausted):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "This invitation code has reached its usage limit",
			"code":  "CODE_EXHAUSTED",
		})
	case errors.Is(err, models.ErrDuplicateRedemption):
		c.JSON(http.StatusConflict, gin.H{
			"error": "This account has already used this invitation code",
			"code":  "DUPLICATE_REDEMPTION",
		})
	case errors.Is(err, models.ErrDuplicateCode):
		c.JSON(http.StatusConflict, gin.H{
			"error": "An invitation code with this value already exists",
			"code":  "DUPLICATE_CODE",
		})
	case errors.Is(err, models.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{
			"error": "An account with this email already exists",
			"code":  "EMAIL_TAKEN",
		})
	case errors.Is(err, models.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Account not found",
			"code":  "ACCOUNT_NOT_FOUND",
		})
	case errors.Is(err, models.ErrCycleDetected):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Referral data contains a cycle, contact support",
			"code":  "REFERRAL_CYCLE",
		})
	default:
		return false
	}
	return true
}

func respondInternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": message,
		"code":  "INTERNAL_ERROR",
	})
}
