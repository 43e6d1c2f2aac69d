package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"partner-service/internal/models"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{
		db: db,
	}
}

// CreateAccount creates a new account
func (r *AccountRepository) CreateAccount(account *models.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.Role == "" {
		account.Role = models.RoleCustomer
	}
	if account.Status == "" {
		account.Status = models.StatusActive
	}
	if account.JoinedAt.IsZero() {
		account.JoinedAt = time.Now()
	}

	query := `
		INSERT INTO accounts (id, email, name, role, status, password, discount_rate,
			referred_by, referred_by_name, invitation_code_used, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Exec(query, account.ID, account.Email, account.Name, account.Role,
		account.Status, account.Password, account.DiscountRate, account.ReferredBy,
		account.ReferredByName, account.InvitationCodeUsed, account.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrEmailTaken
		}
		return err
	}
	return nil
}

// GetAccount retrieves an account by ID
func (r *AccountRepository) GetAccount(id uuid.UUID) (*models.Account, error) {
	query := selectAccountQuery + " WHERE id = $1"
	return r.getAccountByQuery(query, id)
}

// GetAccountByEmail retrieves an account by email
func (r *AccountRepository) GetAccountByEmail(email string) (*models.Account, error) {
	query := selectAccountQuery + " WHERE email = $1 LIMIT 1"
	return r.getAccountByQuery(query, email)
}

// ListAccounts returns every account. The referral graph is built from this
// snapshot rather than per-query scans.
func (r *AccountRepository) ListAccounts() ([]models.Account, error) {
	return r.listByQuery(selectAccountQuery + " ORDER BY joined_at")
}

// ListPartners returns all partner accounts
func (r *AccountRepository) ListPartners() ([]models.Account, error) {
	return r.listByQuery(selectAccountQuery+" WHERE role = $1 ORDER BY joined_at", models.RolePartner)
}

// UpdateTotals overwrites the externally maintained running sums
func (r *AccountRepository) UpdateTotals(id uuid.UUID, totalPurchases, totalResold float64) error {
	result, err := r.db.Exec(
		"UPDATE accounts SET total_purchases = $2, total_resold = $3 WHERE id = $1",
		id, totalPurchases, totalResold,
	)
	if err != nil {
		return err
	}
	return requireAccountAffected(result)
}

// UpdateStatus updates an account's status
func (r *AccountRepository) UpdateStatus(id uuid.UUID, status string) error {
	result, err := r.db.Exec("UPDATE accounts SET status = $2 WHERE id = $1", id, status)
	if err != nil {
		return err
	}
	return requireAccountAffected(result)
}

const selectAccountQuery = `
	SELECT id, email, name, role, status, password, discount_rate,
		referred_by, referred_by_name, invitation_code_used,
		total_purchases, total_resold, joined_at
	FROM accounts`

func (r *AccountRepository) getAccountByQuery(query string, args ...interface{}) (*models.Account, error) {
	account := &models.Account{}
	var discountRate sql.NullFloat64
	var referredBy sql.NullString
	var referredByName sql.NullString

	err := r.db.QueryRow(query, args...).Scan(
		&account.ID, &account.Email, &account.Name, &account.Role, &account.Status,
		&account.Password, &discountRate, &referredBy, &referredByName,
		&account.InvitationCodeUsed, &account.TotalPurchases, &account.TotalResold,
		&account.JoinedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrAccountNotFound
		}
		return nil, err
	}

	applyNullableAccountFields(account, discountRate, referredBy, referredByName)
	return account, nil
}

func (r *AccountRepository) listByQuery(query string, args ...interface{}) ([]models.Account, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var account models.Account
		var discountRate sql.NullFloat64
		var referredBy sql.NullString
		var referredByName sql.NullString

		err := rows.Scan(
			&account.ID, &account.Email, &account.Name, &account.Role, &account.Status,
			&account.Password, &discountRate, &referredBy, &referredByName,
			&account.InvitationCodeUsed, &account.TotalPurchases, &account.TotalResold,
			&account.JoinedAt,
		)
		if err != nil {
			return nil, err
		}

		applyNullableAccountFields(&account, discountRate, referredBy, referredByName)
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

func applyNullableAccountFields(account *models.Account, discountRate sql.NullFloat64, referredBy, referredByName sql.NullString) {
	if discountRate.Valid {
		account.DiscountRate = &discountRate.Float64
	}
	if referredBy.Valid {
		if id, err := uuid.Parse(referredBy.String); err == nil {
			account.ReferredBy = &id
		}
	}
	if referredByName.Valid {
		account.ReferredByName = &referredByName.String
	}
}

func requireAccountAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}
