package repository

import (
	"time"

	"github.com/google/uuid"

	"partner-service/internal/models"
)

// CodeStore is the single source of truth for invitation codes and their
// redemption counters.
type CodeStore interface {
	CreateCode(code *models.InvitationCode) error
	GetCode(code string) (*models.InvitationCode, error)
	GetCodeWithRedemptions(code string) (*models.InvitationCode, error)
	ListCodes(filter models.CodeFilter) ([]models.InvitationCode, int, error)
	DeactivateCode(code string) error
	// Redeem performs the validate-and-increment as one atomic conditional
	// update. It never leaves a partially redeemed code.
	Redeem(code string, accountID uuid.UUID, accountName string, now time.Time) error
	DeactivateExpired(now time.Time) (int64, error)
	PartnerCodeStats(partnerID uuid.UUID) (activeCodes int, totalUses int, err error)
}

// AccountStore persists accounts and exposes the reads the referral graph
// and economics rollups are built from.
type AccountStore interface {
	CreateAccount(account *models.Account) error
	GetAccount(id uuid.UUID) (*models.Account, error)
	GetAccountByEmail(email string) (*models.Account, error)
	ListAccounts() ([]models.Account, error)
	ListPartners() ([]models.Account, error)
	UpdateTotals(id uuid.UUID, totalPurchases, totalResold float64) error
	UpdateStatus(id uuid.UUID, status string) error
}

// RegistrationStore creates an account and redeems its invitation code as a
// single transaction: either both happen or neither does.
type RegistrationStore interface {
	CreateAccountWithCode(account *models.Account, code string, now time.Time) error
}
