package services

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"partner-service/internal/models"
	"partner-service/internal/repository"
)

// EconomicsService derives financial figures from account running totals.
// All amounts come from the accounts table; nothing here touches orders.
type EconomicsService struct {
	accounts  repository.AccountStore
	referrals *ReferralService
	logger    *logrus.Logger
}

func NewEconomicsService(accounts repository.AccountStore, referrals *ReferralService, logger *logrus.Logger) *EconomicsService {
	return &EconomicsService{
		accounts:  accounts,
		referrals: referrals,
		logger:    logger,
	}
}

// EstimatedProfit returns a partner's resold total minus their own purchase
// total. Negative values are reported as-is; a partner who bought more stock
// than they moved is in the red and the dashboard shows that.
func (s *EconomicsService) EstimatedProfit(partnerID uuid.UUID) (float64, error) {
	account, err := s.accounts.GetAccount(partnerID)
	if err != nil {
		return 0, err
	}
	return account.TotalResold - account.TotalPurchases, nil
}

// SubtreeRevenue sums purchase totals across a partner's whole downline.
// The partner's own purchases are excluded; this measures what the network
// underneath them generates.
func (s *EconomicsService) SubtreeRevenue(partnerID uuid.UUID) (float64, error) {
	subtree, err := s.referrals.Subtree(partnerID)
	if err != nil {
		return 0, fmt.Errorf("failed to collect downline for revenue: %w", err)
	}

	var total float64
	for _, account := range subtree {
		total += account.TotalPurchases
	}
	return total, nil
}

// ConversionRate returns the fraction of a partner's direct referrals that
// are active accounts, 0 for partners with no referrals yet.
func (s *EconomicsService) ConversionRate(partnerID uuid.UUID) (float64, error) {
	children, err := s.referrals.Children(partnerID)
	if err != nil {
		return 0, err
	}
	if len(children) == 0 {
		return 0, nil
	}

	active := 0
	for _, child := range children {
		if child.Status == models.StatusActive {
			active++
		}
	}
	return float64(active) / float64(len(children)), nil
}

// TopPerformers returns up to limit partners ranked by resold volume.
func (s *EconomicsService) TopPerformers(limit int) ([]models.PartnerPerformance, error) {
	if limit <= 0 {
		limit = 10
	}

	partners, err := s.accounts.ListPartners()
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}

	performances := make([]models.PartnerPerformance, 0, len(partners))
	for _, partner := range partners {
		subtree, err := s.referrals.Subtree(partner.ID)
		if err != nil {
			s.logger.WithError(err).WithField("partner_id", partner.ID).Warn("Skipping partner with broken referral data in ranking")
			continue
		}

		performances = append(performances, models.PartnerPerformance{
			PartnerID:       partner.ID,
			Name:            partner.Name,
			Email:           partner.Email,
			TotalResold:     partner.TotalResold,
			TotalPurchases:  partner.TotalPurchases,
			EstimatedProfit: partner.TotalResold - partner.TotalPurchases,
			TotalReferrals:  len(subtree),
		})
	}

	sort.Slice(performances, func(i, j int) bool {
		if performances[i].TotalResold != performances[j].TotalResold {
			return performances[i].TotalResold > performances[j].TotalResold
		}
		return performances[i].Name < performances[j].Name
	})

	if len(performances) > limit {
		performances = performances[:limit]
	}
	return performances, nil
}
