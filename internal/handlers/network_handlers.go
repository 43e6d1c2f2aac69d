package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"partner-service/internal/middleware"
	"partner-service/internal/models"
	"partner-service/internal/services"
)

type NetworkHandlers struct {
	referrals *services.ReferralService
	economics *services.EconomicsService
	logger    *logrus.Logger
}

func NewNetworkHandlers(referrals *services.ReferralService, economics *services.EconomicsService, logger *logrus.Logger) *NetworkHandlers {
	return &NetworkHandlers{
		referrals: referrals,
		economics: economics,
		logger:    logger,
	}
}

// Children returns a partner's direct referrals
func (h *NetworkHandlers) Children(c *gin.Context) {
	partnerID, ok := h.targetPartner(c)
	if !ok {
		return
	}

	children, err := h.referrals.Children(partnerID)
	if err != nil {
		h.respondReferralError(c, err, "Failed to load referrals")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"partner_id": partnerID,
		"referrals":  children,
		"count":      len(children),
	})
}

// Subtree returns a partner's full downline
func (h *NetworkHandlers) Subtree(c *gin.Context) {
	partnerID, ok := h.targetPartner(c)
	if !ok {
		return
	}

	subtree, err := h.referrals.Subtree(partnerID)
	if err != nil {
		h.respondReferralError(c, err, "Failed to load downline")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"partner_id": partnerID,
		"downline":   subtree,
		"count":      len(subtree),
	})
}

// Ancestors returns the referral chain above an account
func (h *NetworkHandlers) Ancestors(c *gin.Context) {
	partnerID, ok := h.targetPartner(c)
	if !ok {
		return
	}

	ancestors, err := h.referrals.Ancestors(partnerID)
	if err != nil {
		h.respondReferralError(c, err, "Failed to load referral chain")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id": partnerID,
		"ancestors":  ancestors,
	})
}

// Roots returns top-level partners with no referrer (admin)
func (h *NetworkHandlers) Roots(c *gin.Context) {
	roots, err := h.referrals.Roots()
	if err != nil {
		h.respondReferralError(c, err, "Failed to load root partners")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"partners": roots,
		"count":    len(roots),
	})
}

// Stats returns a partner's network statistics
func (h *NetworkHandlers) Stats(c *gin.Context) {
	partnerID, ok := h.targetPartner(c)
	if !ok {
		return
	}

	stats, err := h.referrals.NetworkStats(c.Request.Context(), partnerID)
	if err != nil {
		h.respondReferralError(c, err, "Failed to compute network statistics")
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Profit returns a partner's estimated profit
func (h *NetworkHandlers) Profit(c *gin.Context) {
	partnerID, ok := h.targetPartner(c)
	if !ok {
		return
	}

	profit, err := h.economics.EstimatedProfit(partnerID)
	if err != nil {
		h.respondReferralError(c, err, "Failed to compute profit")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"partner_id":       partnerID,
		"estimated_profit": profit,
	})
}

// Revenue returns the purchase volume of a partner's downline
func (h *NetworkHandlers) Revenue(c *gin.Context) {
	partnerID, ok := h.targetPartner(c)
	if !ok {
		return
	}

	revenue, err := h.economics.SubtreeRevenue(partnerID)
	if err != nil {
		h.respondReferralError(c, err, "Failed to compute network revenue")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"partner_id":      partnerID,
		"network_revenue": revenue,
	})
}

// ConversionRate returns the active fraction of a partner's direct referrals
func (h *NetworkHandlers) ConversionRate(c *gin.Context) {
	partnerID, ok := h.targetPartner(c)
	if !ok {
		return
	}

	rate, err := h.economics.ConversionRate(partnerID)
	if err != nil {
		h.respondReferralError(c, err, "Failed to compute conversion rate")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"partner_id":      partnerID,
		"conversion_rate": rate,
	})
}

// TopPerformers ranks partners by resold volume (admin)
func (h *NetworkHandlers) TopPerformers(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 10)

	performers, err := h.economics.TopPerformers(limit)
	if err != nil {
		h.respondReferralError(c, err, "Failed to rank partners")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"performers": performers,
		"count":      len(performers),
	})
}

// targetPartner resolves which partner a query is about. Admins may name any
// account via the id parameter; everyone else gets their own.
func (h *NetworkHandlers) targetPartner(c *gin.Context) (uuid.UUID, bool) {
	callerID, err := middleware.GetAccountID(c)
	if err != nil {
		respondInternalError(c, "Missing caller identity")
		return uuid.Nil, false
	}

	idParam := c.Param("id")
	if idParam == "" || idParam == "me" {
		return callerID, true
	}

	targetID, err := uuid.Parse(idParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid account ID",
			"code":  "INVALID_ACCOUNT_ID",
		})
		return uuid.Nil, false
	}

	if targetID != callerID && middleware.GetAccountRole(c) != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "You can only view your own network",
			"code":  "NOT_NETWORK_OWNER",
		})
		return uuid.Nil, false
	}

	return targetID, true
}

func (h *NetworkHandlers) respondReferralError(c *gin.Context, err error, message string) {
	if respondDomainError(c, err) {
		return
	}
	h.logger.WithError(err).Error(message)
	respondInternalError(c, message)
}
