package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles
const (
	RoleCustomer = "customer"
	RolePartner  = "partner"
	RoleAdmin    = "admin"
)

// Account statuses
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusPending  = "pending"
)

// Account is a customer or partner created through invitation-gated
// registration. ReferredBy links the account into the referral forest; it is
// set once at registration and never rewritten by this service.
type Account struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	Email              string     `json:"email" db:"email"`
	Name               string     `json:"name" db:"name"`
	Role               string     `json:"role" db:"role"`
	Status             string     `json:"status" db:"status"`
	Password           string     `json:"-" db:"password"`
	DiscountRate       *float64   `json:"discount_rate,omitempty" db:"discount_rate"`
	ReferredBy         *uuid.UUID `json:"referred_by,omitempty" db:"referred_by"`
	ReferredByName     *string    `json:"referred_by_name,omitempty" db:"referred_by_name"`
	InvitationCodeUsed string     `json:"invitation_code_used" db:"invitation_code_used"`
	// Running sums maintained from order events by an external process;
	// this service only reads them for profit/revenue rollups.
	TotalPurchases float64   `json:"total_purchases" db:"total_purchases"`
	TotalResold    float64   `json:"total_resold" db:"total_resold"`
	JoinedAt       time.Time `json:"joined_at" db:"joined_at"`
}

// AccountTemplate is the deterministic output of role resolution: what kind
// of account a given invitation code produces.
type AccountTemplate struct {
	Role           string
	DiscountRate   *float64
	ReferredBy     *uuid.UUID
	ReferredByName string
}

// NetworkStats summarizes a partner's referral network.
type NetworkStats struct {
	PartnerID         uuid.UUID `json:"partner_id"`
	DirectReferrals   int       `json:"direct_referrals"`
	IndirectReferrals int       `json:"indirect_referrals"`
	TotalReferrals    int       `json:"total_referrals"`
	ActiveCodes       int       `json:"active_codes"`
	TotalCodeUses     int       `json:"total_code_uses"`
}

// PartnerPerformance is one row in the admin top-performers view.
type PartnerPerformance struct {
	PartnerID       uuid.UUID `json:"partner_id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	TotalPurchases  float64   `json:"total_purchases"`
	TotalResold     float64   `json:"total_resold"`
	EstimatedProfit float64   `json:"estimated_profit"`
	TotalReferrals  int       `json:"total_referrals"`
}
