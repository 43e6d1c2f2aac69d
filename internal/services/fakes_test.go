package services

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"partner-service/internal/models"
)

// fakeCodeStore is an in-memory CodeStore that mirrors the conditional
// redeem semantics of the SQL repository, including the single-winner
// behavior under concurrent redemption.
type fakeCodeStore struct {
	mu          sync.Mutex
	codes       map[string]*models.InvitationCode
	redemptions map[string]map[uuid.UUID]time.Time
}

func newFakeCodeStore() *fakeCodeStore {
	return &fakeCodeStore{
		codes:       make(map[string]*models.InvitationCode),
		redemptions: make(map[string]map[uuid.UUID]time.Time),
	}
}

func (s *fakeCodeStore) CreateCode(code *models.InvitationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[code.Code]; exists {
		return models.ErrDuplicateCode
	}

	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}
	code.UsedCount = 0
	code.IsActive = true

	stored := *code
	s.codes[code.Code] = &stored
	return nil
}

// seed inserts a code as-is, without the creation defaults, so tests can
// plant exhausted or inactive codes directly.
func (s *fakeCodeStore) seed(code models.InvitationCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code.Code] = &code
}

func (s *fakeCodeStore) GetCode(code string) (*models.InvitationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(code)
}

func (s *fakeCodeStore) getLocked(code string) (*models.InvitationCode, error) {
	stored, ok := s.codes[code]
	if !ok {
		return nil, models.ErrCodeNotFound
	}
	copied := *stored
	return &copied, nil
}

func (s *fakeCodeStore) GetCodeWithRedemptions(code string) (*models.InvitationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied, err := s.getLocked(code)
	if err != nil {
		return nil, err
	}
	for accountID, usedAt := range s.redemptions[code] {
		copied.UsedBy = append(copied.UsedBy, models.Redemption{
			Code:      code,
			AccountID: accountID,
			UsedAt:    usedAt,
		})
	}
	return copied, nil
}

func (s *fakeCodeStore) ListCodes(filter models.CodeFilter) ([]models.InvitationCode, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.InvitationCode
	for _, code := range s.codes {
		if filter.Type != "" && code.Type != filter.Type {
			continue
		}
		if filter.IssuedBy != nil && code.IssuedBy != *filter.IssuedBy {
			continue
		}
		if filter.ActiveOnly && (!code.IsActive || code.UsedCount >= code.MaxUses) {
			continue
		}
		if filter.Search != "" && !strings.Contains(code.Code, strings.ToUpper(filter.Search)) {
			continue
		}
		result = append(result, *code)
	}
	return result, len(result), nil
}

func (s *fakeCodeStore) DeactivateCode(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.codes[code]
	if !ok {
		return models.ErrCodeNotFound
	}
	stored.IsActive = false
	return nil
}

func (s *fakeCodeStore) Redeem(code string, accountID uuid.UUID, accountName string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.codes[code]
	if !ok {
		return models.ErrCodeNotFound
	}

	if _, already := s.redemptions[code][accountID]; already {
		return models.ErrDuplicateRedemption
	}

	if !stored.IsActive || stored.UsedCount >= stored.MaxUses ||
		(stored.ExpiresAt != nil && !now.Before(*stored.ExpiresAt)) {
		switch {
		case stored.UsedCount >= stored.MaxUses:
			return models.ErrCodeExhausted
		case !stored.IsActive:
			return models.ErrCodeInactive
		default:
			return models.ErrCodeExpired
		}
	}

	if s.redemptions[code] == nil {
		s.redemptions[code] = make(map[uuid.UUID]time.Time)
	}
	s.redemptions[code][accountID] = now
	stored.UsedCount++
	if stored.UsedCount >= stored.MaxUses {
		stored.IsActive = false
	}
	return nil
}

func (s *fakeCodeStore) DeactivateExpired(now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, code := range s.codes {
		if code.IsActive && code.ExpiresAt != nil && !now.Before(*code.ExpiresAt) {
			code.IsActive = false
			count++
		}
	}
	return count, nil
}

func (s *fakeCodeStore) PartnerCodeStats(partnerID uuid.UUID) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active, uses int
	for _, code := range s.codes {
		if code.AttributedPartnerID == nil || *code.AttributedPartnerID != partnerID {
			continue
		}
		if code.IsActive && code.UsedCount < code.MaxUses {
			active++
		}
		uses += code.UsedCount
	}
	return active, uses, nil
}

// fakeAccountStore is an in-memory AccountStore.
type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
	byEmail  map[string]uuid.UUID
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{
		accounts: make(map[uuid.UUID]*models.Account),
		byEmail:  make(map[string]uuid.UUID),
	}
}

func (s *fakeAccountStore) CreateAccount(account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(account)
}

func (s *fakeAccountStore) createLocked(account *models.Account) error {
	if _, taken := s.byEmail[account.Email]; taken {
		return models.ErrEmailTaken
	}
	stored := *account
	s.accounts[account.ID] = &stored
	s.byEmail[account.Email] = account.ID
	return nil
}

func (s *fakeAccountStore) GetAccount(id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	copied := *stored
	return &copied, nil
}

func (s *fakeAccountStore) GetAccountByEmail(email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	copied := *s.accounts[id]
	return &copied, nil
}

func (s *fakeAccountStore) ListAccounts() ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]models.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		result = append(result, *account)
	}
	return result, nil
}

func (s *fakeAccountStore) ListPartners() ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []models.Account
	for _, account := range s.accounts {
		if account.Role == models.RolePartner {
			result = append(result, *account)
		}
	}
	return result, nil
}

func (s *fakeAccountStore) UpdateTotals(id uuid.UUID, totalPurchases, totalResold float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.accounts[id]
	if !ok {
		return models.ErrAccountNotFound
	}
	stored.TotalPurchases = totalPurchases
	stored.TotalResold = totalResold
	return nil
}

func (s *fakeAccountStore) UpdateStatus(id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.accounts[id]
	if !ok {
		return models.ErrAccountNotFound
	}
	stored.Status = status
	return nil
}

// fakeRegistrationStore couples the two fakes the way the SQL transaction
// does: the account insert is undone when the redemption fails.
type fakeRegistrationStore struct {
	accounts *fakeAccountStore
	codes    *fakeCodeStore
}

func (s *fakeRegistrationStore) CreateAccountWithCode(account *models.Account, code string, now time.Time) error {
	s.accounts.mu.Lock()
	err := s.accounts.createLocked(account)
	s.accounts.mu.Unlock()
	if err != nil {
		return err
	}
	account.InvitationCodeUsed = code

	if err := s.codes.Redeem(code, account.ID, account.Name, now); err != nil {
		s.accounts.mu.Lock()
		delete(s.accounts.accounts, account.ID)
		delete(s.accounts.byEmail, account.Email)
		s.accounts.mu.Unlock()
		return err
	}
	return nil
}
