package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"partner-service/internal/models"
)

type CodeRepository struct {
	db *sql.DB
}

func NewCodeRepository(db *sql.DB) *CodeRepository {
	return &CodeRepository{
		db: db,
	}
}

// CreateCode inserts a new invitation code
func (r *CodeRepository) CreateCode(code *models.InvitationCode) error {
	query := `
		INSERT INTO invitation_codes (code, type, issued_by, issued_by_name, attributed_partner_id,
			created_at, expires_at, max_uses, used_count, is_active, default_discount_rate, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}
	code.UsedCount = 0
	code.IsActive = true

	_, err := r.db.Exec(query, code.Code, code.Type, code.IssuedBy, code.IssuedByName,
		code.AttributedPartnerID, code.CreatedAt, code.ExpiresAt, code.MaxUses,
		code.UsedCount, code.IsActive, code.DefaultDiscountRate, code.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateCode
		}
		return err
	}
	return nil
}

// GetCode retrieves an invitation code by its code string
func (r *CodeRepository) GetCode(code string) (*models.InvitationCode, error) {
	query := `
		SELECT code, type, issued_by, issued_by_name, attributed_partner_id,
			created_at, expires_at, max_uses, used_count, is_active, default_discount_rate, notes
		FROM invitation_codes WHERE code = $1
	`

	return r.scanCode(r.db.QueryRow(query, code))
}

// GetCodeWithRedemptions retrieves a code together with its usage history
func (r *CodeRepository) GetCodeWithRedemptions(code string) (*models.InvitationCode, error) {
	invCode, err := r.GetCode(code)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT code, account_id, account_name, used_at
		FROM code_redemptions
		WHERE code = $1
		ORDER BY used_at, id
	`

	rows, err := r.db.Query(query, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var red models.Redemption
		if err := rows.Scan(&red.Code, &red.AccountID, &red.AccountName, &red.UsedAt); err != nil {
			return nil, err
		}
		invCode.UsedBy = append(invCode.UsedBy, red)
	}

	return invCode, rows.Err()
}

// ListCodes lists codes matching the filter with pagination
func (r *CodeRepository) ListCodes(filter models.CodeFilter) ([]models.InvitationCode, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(code ILIKE $%d OR notes ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argPos))
		args = append(args, filter.Type)
		argPos++
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "is_active = TRUE AND used_count < max_uses")
	}
	if filter.IssuedBy != nil {
		conditions = append(conditions, fmt.Sprintf("issued_by = $%d", argPos))
		args = append(args, *filter.IssuedBy)
		argPos++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM invitation_codes"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT code, type, issued_by, issued_by_name, attributed_partner_id,
			created_at, expires_at, max_uses, used_count, is_active, default_discount_rate, notes
		FROM invitation_codes%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var codes []models.InvitationCode
	for rows.Next() {
		code, err := r.scanCodeRows(rows)
		if err != nil {
			return nil, 0, err
		}
		codes = append(codes, *code)
	}

	return codes, total, rows.Err()
}

// DeactivateCode deactivates a code. Codes are never deleted, so the
// redemption history stays intact.
func (r *CodeRepository) DeactivateCode(code string) error {
	result, err := r.db.Exec("UPDATE invitation_codes SET is_active = FALSE WHERE code = $1", code)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrCodeNotFound
	}
	return nil
}

// Redeem consumes one use of a code for the given account. The increment and
// the usability checks run as a single conditional UPDATE so that two
// concurrent redemptions of a code with one use left produce exactly one
// success. On failure the transaction rolls back and the exact reason is
// classified from a fresh read.
func (r *CodeRepository) Redeem(code string, accountID uuid.UUID, accountName string, now time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin redeem transaction: %w", err)
	}
	defer tx.Rollback()

	if err := redeemInTx(tx, code, accountID, accountName, now); err != nil {
		tx.Rollback()
		if err == errRedeemConditionFailed {
			return r.classifyRedeemFailure(code, now)
		}
		return err
	}

	return tx.Commit()
}

// errRedeemConditionFailed signals that the conditional update matched no
// row; the caller decides the user-facing reason.
var errRedeemConditionFailed = fmt.Errorf("redeem condition not met")

// redeemInTx appends the redemption entry and increments the counter inside
// an existing transaction. Shared with the registration repository so the
// whole registration is one transaction.
func redeemInTx(tx *sql.Tx, code string, accountID uuid.UUID, accountName string, now time.Time) error {
	insert := `
		INSERT INTO code_redemptions (code, account_id, account_name, used_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(insert, code, accountID, accountName, now); err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateRedemption
		}
		if isForeignKeyViolation(err) {
			return models.ErrCodeNotFound
		}
		return fmt.Errorf("failed to record redemption: %w", err)
	}

	// The WHERE clause is the authoritative check: used_count beats the
	// is_active flag, and the flag flips automatically on exhaustion.
	update := `
		UPDATE invitation_codes
		SET used_count = used_count + 1,
			is_active = CASE WHEN used_count + 1 >= max_uses THEN FALSE ELSE is_active END
		WHERE code = $1
			AND is_active = TRUE
			AND used_count < max_uses
			AND (expires_at IS NULL OR expires_at > $2)
	`
	result, err := tx.Exec(update, code, now)
	if err != nil {
		return fmt.Errorf("failed to increment code usage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return errRedeemConditionFailed
	}
	return nil
}

// classifyRedeemFailure re-reads the code to report the precise reason the
// conditional update did not match. Exhaustion is checked before the active
// flag: the update flips is_active when the last use goes, so a code that is
// both inactive and at max_uses ran out rather than being switched off.
func (r *CodeRepository) classifyRedeemFailure(code string, now time.Time) error {
	invCode, err := r.GetCode(code)
	if err != nil {
		return err
	}

	switch {
	case invCode.UsedCount >= invCode.MaxUses:
		return models.ErrCodeExhausted
	case !invCode.IsActive:
		return models.ErrCodeInactive
	case invCode.ExpiresAt != nil && !now.Before(*invCode.ExpiresAt):
		return models.ErrCodeExpired
	default:
		// Lost a race that has since resolved; exhaustion is the safe answer
		// for the caller to report.
		return models.ErrCodeExhausted
	}
}

// DeactivateExpired flips is_active on codes whose expiry has passed. The
// flag is derived state; the redeem path never trusts it alone.
func (r *CodeRepository) DeactivateExpired(now time.Time) (int64, error) {
	result, err := r.db.Exec(`
		UPDATE invitation_codes
		SET is_active = FALSE
		WHERE is_active = TRUE AND expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// PartnerCodeStats returns the active code count and cumulative uses across
// a partner's referral codes
func (r *CodeRepository) PartnerCodeStats(partnerID uuid.UUID) (int, int, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE is_active = TRUE AND used_count < max_uses),
			COALESCE(SUM(used_count), 0)
		FROM invitation_codes
		WHERE attributed_partner_id = $1
	`

	var activeCodes, totalUses int
	if err := r.db.QueryRow(query, partnerID).Scan(&activeCodes, &totalUses); err != nil {
		return 0, 0, err
	}
	return activeCodes, totalUses, nil
}

// scanCode scans a single code row
func (r *CodeRepository) scanCode(row *sql.Row) (*models.InvitationCode, error) {
	code := &models.InvitationCode{}
	var attributedPartnerID sql.NullString
	var expiresAt sql.NullTime
	var discountRate sql.NullFloat64

	err := row.Scan(
		&code.Code, &code.Type, &code.IssuedBy, &code.IssuedByName, &attributedPartnerID,
		&code.CreatedAt, &expiresAt, &code.MaxUses, &code.UsedCount, &code.IsActive,
		&discountRate, &code.Notes,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrCodeNotFound
		}
		return nil, err
	}

	applyNullableCodeFields(code, attributedPartnerID, expiresAt, discountRate)
	return code, nil
}

func (r *CodeRepository) scanCodeRows(rows *sql.Rows) (*models.InvitationCode, error) {
	code := &models.InvitationCode{}
	var attributedPartnerID sql.NullString
	var expiresAt sql.NullTime
	var discountRate sql.NullFloat64

	err := rows.Scan(
		&code.Code, &code.Type, &code.IssuedBy, &code.IssuedByName, &attributedPartnerID,
		&code.CreatedAt, &expiresAt, &code.MaxUses, &code.UsedCount, &code.IsActive,
		&discountRate, &code.Notes,
	)
	if err != nil {
		return nil, err
	}

	applyNullableCodeFields(code, attributedPartnerID, expiresAt, discountRate)
	return code, nil
}

func applyNullableCodeFields(code *models.InvitationCode, partnerID sql.NullString, expiresAt sql.NullTime, discountRate sql.NullFloat64) {
	if partnerID.Valid {
		if id, err := uuid.Parse(partnerID.String); err == nil {
			code.AttributedPartnerID = &id
		}
	}
	if expiresAt.Valid {
		code.ExpiresAt = &expiresAt.Time
	}
	if discountRate.Valid {
		code.DefaultDiscountRate = &discountRate.Float64
	}
}

// isUniqueViolation reports whether err is a Postgres unique constraint violation
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// isForeignKeyViolation reports whether err is a Postgres foreign key violation
func isForeignKeyViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23503"
	}
	return false
}
