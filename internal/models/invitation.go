package models

import (
	"time"

	"github.com/google/uuid"
)

// Invitation code types. The type of the code consumed at signup is the only
// thing that determines the role and referral attribution of the new account.
const (
	// CodeTypeAdminUser creates a customer account referred by the issuing admin.
	CodeTypeAdminUser = "admin_user"
	// CodeTypeAdminPartner creates a partner account with a discount tier.
	CodeTypeAdminPartner = "admin_partner"
	// CodeTypePartnerUser is a partner-issued referral code; signups land in
	// the issuing partner's network.
	CodeTypePartnerUser = "partner_user"
)

// DefaultPartnerDiscountRate is applied when an admin_partner code carries no
// explicit discount tier.
const DefaultPartnerDiscountRate = 20.0

// InvitationCode represents a single-use or multi-use invitation code.
// The code string itself is the primary key. Codes are never deleted, only
// deactivated, so that redemption history stays auditable.
type InvitationCode struct {
	Code                string       `json:"code" db:"code"`
	Type                string       `json:"type" db:"type"`
	IssuedBy            uuid.UUID    `json:"issued_by" db:"issued_by"`
	IssuedByName        string       `json:"issued_by_name" db:"issued_by_name"`
	AttributedPartnerID *uuid.UUID   `json:"attributed_partner_id,omitempty" db:"attributed_partner_id"`
	CreatedAt           time.Time    `json:"created_at" db:"created_at"`
	ExpiresAt           *time.Time   `json:"expires_at,omitempty" db:"expires_at"`
	MaxUses             int          `json:"max_uses" db:"max_uses"`
	UsedCount           int          `json:"used_count" db:"used_count"`
	IsActive            bool         `json:"is_active" db:"is_active"`
	DefaultDiscountRate *float64     `json:"default_discount_rate,omitempty" db:"default_discount_rate"`
	Notes               string       `json:"notes" db:"notes"`
	UsedBy              []Redemption `json:"used_by,omitempty"`
}

// Redemption is one append-only entry in a code's usage history.
type Redemption struct {
	Code        string    `json:"code" db:"code"`
	AccountID   uuid.UUID `json:"account_id" db:"account_id"`
	AccountName string    `json:"account_name" db:"account_name"`
	UsedAt      time.Time `json:"used_at" db:"used_at"`
}

// IsValidCodeType reports whether t is one of the known code types.
func IsValidCodeType(t string) bool {
	switch t {
	case CodeTypeAdminUser, CodeTypeAdminPartner, CodeTypePartnerUser:
		return true
	}
	return false
}

// CodeFilter narrows code listings for the management endpoints.
type CodeFilter struct {
	Search     string
	Type       string
	ActiveOnly bool
	IssuedBy   *uuid.UUID
	Limit      int
	Offset     int
}
