package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"partner-service/internal/cache"
	"partner-service/internal/models"
	"partner-service/internal/repository"
)

// ReferralService answers hierarchy queries over the referral forest implied
// by accounts' referred_by links. The parent→children index is built lazily
// from a full account snapshot and reused until an account changes, instead
// of re-scanning the account list on every query.
type ReferralService struct {
	accounts repository.AccountStore
	codes    repository.CodeStore
	cache    *cache.NetworkCache
	logger   *logrus.Logger

	mu    sync.RWMutex
	index *referralIndex
}

type referralIndex struct {
	byID     map[uuid.UUID]models.Account
	children map[uuid.UUID][]uuid.UUID
}

func NewReferralService(accounts repository.AccountStore, codes repository.CodeStore, statsCache *cache.NetworkCache, logger *logrus.Logger) *ReferralService {
	return &ReferralService{
		accounts: accounts,
		codes:    codes,
		cache:    statsCache,
		logger:   logger,
	}
}

// Invalidate drops the cached index. Called whenever accounts change.
func (s *ReferralService) Invalidate() {
	s.mu.Lock()
	s.index = nil
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.Purge()
	}
}

// Children returns a partner's direct referrals
func (s *ReferralService) Children(partnerID uuid.UUID) ([]models.Account, error) {
	idx, err := s.getIndex()
	if err != nil {
		return nil, err
	}

	return idx.resolve(idx.children[partnerID]), nil
}

// Subtree returns the full descendant closure of a partner, breadth first.
// A revisited account means the referred_by links contain a cycle, which is
// a data-integrity fault: it is reported, never silently truncated.
func (s *ReferralService) Subtree(partnerID uuid.UUID) ([]models.Account, error) {
	idx, err := s.getIndex()
	if err != nil {
		return nil, err
	}

	visited := map[uuid.UUID]bool{partnerID: true}
	var result []uuid.UUID
	queue := append([]uuid.UUID(nil), idx.children[partnerID]...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if visited[id] {
			s.logger.WithFields(logrus.Fields{
				"partner_id": partnerID,
				"account_id": id,
			}).Error("Referral cycle detected while walking subtree")
			return nil, fmt.Errorf("%w: account %s appears twice in the downline of %s", models.ErrCycleDetected, id, partnerID)
		}
		visited[id] = true
		result = append(result, id)
		queue = append(queue, idx.children[id]...)
	}

	return idx.resolve(result), nil
}

// Ancestors returns the chain from an account's immediate referrer up to a
// root, in that order.
func (s *ReferralService) Ancestors(accountID uuid.UUID) ([]models.Account, error) {
	idx, err := s.getIndex()
	if err != nil {
		return nil, err
	}

	account, ok := idx.byID[accountID]
	if !ok {
		return nil, models.ErrAccountNotFound
	}

	visited := map[uuid.UUID]bool{accountID: true}
	var chain []models.Account

	current := account
	for current.ReferredBy != nil {
		parentID := *current.ReferredBy
		if visited[parentID] {
			s.logger.WithFields(logrus.Fields{
				"account_id": accountID,
				"ancestor":   parentID,
			}).Error("Referral cycle detected while walking ancestors")
			return nil, fmt.Errorf("%w: ancestor chain of %s does not terminate", models.ErrCycleDetected, accountID)
		}
		visited[parentID] = true

		parent, ok := idx.byID[parentID]
		if !ok {
			// Dangling referred_by; chain ends here.
			break
		}
		chain = append(chain, parent)
		current = parent
	}

	return chain, nil
}

// Roots returns the partners with no referrer, the tops of the forest
func (s *ReferralService) Roots() ([]models.Account, error) {
	idx, err := s.getIndex()
	if err != nil {
		return nil, err
	}

	var roots []models.Account
	for _, account := range idx.byID {
		if account.Role == models.RolePartner && account.ReferredBy == nil {
			roots = append(roots, account)
		}
	}
	return roots, nil
}

// NetworkStats aggregates a partner's downline and code usage. Results are
// cached briefly; dashboards poll these.
func (s *ReferralService) NetworkStats(ctx context.Context, partnerID uuid.UUID) (*models.NetworkStats, error) {
	if s.cache != nil {
		if stats, ok := s.cache.GetStats(ctx, partnerID); ok {
			return stats, nil
		}
	}

	children, err := s.Children(partnerID)
	if err != nil {
		return nil, err
	}
	subtree, err := s.Subtree(partnerID)
	if err != nil {
		return nil, err
	}

	activeCodes, totalUses, err := s.codes.PartnerCodeStats(partnerID)
	if err != nil {
		return nil, err
	}

	stats := &models.NetworkStats{
		PartnerID:         partnerID,
		DirectReferrals:   len(children),
		IndirectReferrals: len(subtree) - len(children),
		TotalReferrals:    len(subtree),
		ActiveCodes:       activeCodes,
		TotalCodeUses:     totalUses,
	}

	if s.cache != nil {
		s.cache.SetStats(ctx, stats)
	}

	return stats, nil
}

// getIndex returns the current index, building it from a fresh account
// snapshot if it was invalidated.
func (s *ReferralService) getIndex() (*referralIndex, error) {
	s.mu.RLock()
	idx := s.index
	s.mu.RUnlock()
	if idx != nil {
		return idx, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		return s.index, nil
	}

	accounts, err := s.accounts.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts for referral index: %w", err)
	}

	idx = &referralIndex{
		byID:     make(map[uuid.UUID]models.Account, len(accounts)),
		children: make(map[uuid.UUID][]uuid.UUID),
	}
	for _, account := range accounts {
		idx.byID[account.ID] = account
		if account.ReferredBy != nil {
			parent := *account.ReferredBy
			idx.children[parent] = append(idx.children[parent], account.ID)
		}
	}

	s.index = idx
	return idx, nil
}

func (idx *referralIndex) resolve(ids []uuid.UUID) []models.Account {
	accounts := make([]models.Account, 0, len(ids))
	for _, id := range ids {
		if account, ok := idx.byID[id]; ok {
			accounts = append(accounts, account)
		}
	}
	return accounts
}
