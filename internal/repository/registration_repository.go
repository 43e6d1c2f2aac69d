package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"partner-service/internal/models"
)

// RegistrationRepository ties account creation and code redemption into one
// transaction. The source flow this replaces redeemed the code first and
// created the account afterwards with no rollback, which could consume a
// code without producing an account; here either both writes land or neither.
type RegistrationRepository struct {
	db    *sql.DB
	codes *CodeRepository
}

func NewRegistrationRepository(db *sql.DB, codes *CodeRepository) *RegistrationRepository {
	return &RegistrationRepository{
		db:    db,
		codes: codes,
	}
}

// CreateAccountWithCode inserts the account, appends the redemption entry and
// increments the code's usage counter atomically. Any failure rolls the whole
// registration back: no orphan account, no silently consumed code.
func (r *RegistrationRepository) CreateAccountWithCode(account *models.Account, code string, now time.Time) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.Status == "" {
		account.Status = models.StatusActive
	}
	if account.JoinedAt.IsZero() {
		account.JoinedAt = now
	}
	account.InvitationCodeUsed = code

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin registration transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO accounts (id, email, name, role, status, password, discount_rate,
			referred_by, referred_by_name, invitation_code_used, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.Exec(insert, account.ID, account.Email, account.Name, account.Role,
		account.Status, account.Password, account.DiscountRate, account.ReferredBy,
		account.ReferredByName, account.InvitationCodeUsed, account.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrEmailTaken
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	if err := redeemInTx(tx, code, account.ID, account.Name, now); err != nil {
		tx.Rollback()
		if err == errRedeemConditionFailed {
			return r.codes.classifyRedeemFailure(code, now)
		}
		return err
	}

	return tx.Commit()
}
