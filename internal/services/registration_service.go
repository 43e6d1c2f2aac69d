package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"partner-service/internal/events"
	"partner-service/internal/models"
	"partner-service/internal/repository"
)

// RegistrationService runs the invitation-gated signup flow: validate the
// code, resolve the account template it produces, then create the account
// and consume the code in one transaction.
type RegistrationService struct {
	codes     *CodeService
	store     repository.RegistrationStore
	accounts  repository.AccountStore
	referrals *ReferralService
	publisher *events.Publisher
	logger    *logrus.Logger
}

func NewRegistrationService(
	codes *CodeService,
	store repository.RegistrationStore,
	accounts repository.AccountStore,
	referrals *ReferralService,
	publisher *events.Publisher,
	logger *logrus.Logger,
) *RegistrationService {
	return &RegistrationService{
		codes:     codes,
		store:     store,
		accounts:  accounts,
		referrals: referrals,
		publisher: publisher,
		logger:    logger,
	}
}

// ResolveTemplate maps an invitation code to the account it produces. This
// table is the only place code types branch; a new code type is added here
// and nowhere else.
func ResolveTemplate(code *models.InvitationCode) (models.AccountTemplate, error) {
	switch code.Type {
	case models.CodeTypeAdminUser:
		issuer := code.IssuedBy
		return models.AccountTemplate{
			Role:           models.RoleCustomer,
			ReferredBy:     &issuer,
			ReferredByName: code.IssuedByName,
		}, nil

	case models.CodeTypeAdminPartner:
		rate := models.DefaultPartnerDiscountRate
		if code.DefaultDiscountRate != nil {
			rate = *code.DefaultDiscountRate
		}
		issuer := code.IssuedBy
		return models.AccountTemplate{
			Role:           models.RolePartner,
			DiscountRate:   &rate,
			ReferredBy:     &issuer,
			ReferredByName: code.IssuedByName,
		}, nil

	case models.CodeTypePartnerUser:
		referrer := code.IssuedBy
		if code.AttributedPartnerID != nil {
			referrer = *code.AttributedPartnerID
		}
		return models.AccountTemplate{
			Role:           models.RoleCustomer,
			ReferredBy:     &referrer,
			ReferredByName: code.IssuedByName,
		}, nil

	default:
		return models.AccountTemplate{}, fmt.Errorf("no account template for code type %q", code.Type)
	}
}

// Register creates an account from an invitation code. The account insert and
// the code redemption either both commit or both roll back; a failed
// registration never consumes a code and a consumed code always has its
// account.
func (s *RegistrationService) Register(ctx context.Context, name, email, password, codeStr string) (*models.Account, error) {
	now := time.Now()

	code, err := s.codes.Validate(codeStr, now)
	if err != nil {
		return nil, err
	}

	template, err := ResolveTemplate(code)
	if err != nil {
		return nil, err
	}

	// Taken emails are rejected before any code use is attempted; the unique
	// constraint inside the transaction backstops concurrent signups.
	if _, err := s.accounts.GetAccountByEmail(email); err == nil {
		return nil, models.ErrEmailTaken
	} else if err != models.ErrAccountNotFound {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	referredByName := template.ReferredByName
	account := &models.Account{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		Role:         template.Role,
		Status:       models.StatusActive,
		Password:     string(hashed),
		DiscountRate: template.DiscountRate,
		ReferredBy:   template.ReferredBy,
		JoinedAt:     now,
	}
	if referredByName != "" {
		account.ReferredByName = &referredByName
	}

	if err := s.store.CreateAccountWithCode(account, code.Code, now); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"email": email,
			"code":  code.Code,
		}).Warn("Registration rolled back")
		return nil, err
	}

	s.referrals.Invalidate()

	s.logger.WithFields(logrus.Fields{
		"account_id": account.ID,
		"role":       account.Role,
		"code":       code.Code,
	}).Info("Account registered")

	if s.publisher != nil {
		details := map[string]interface{}{
			"account_id": account.ID.String(),
			"role":       account.Role,
		}
		if err := s.publisher.PublishCodeEvent(ctx, account.ID.String(), account.Name, events.ActionCodeRedeemed, code.Code, details); err != nil {
			s.logger.WithError(err).Warn("Failed to publish redemption event")
		}
		if err := s.publisher.PublishCodeEvent(ctx, account.ID.String(), account.Name, events.ActionAccountRegistered, code.Code, details); err != nil {
			s.logger.WithError(err).Warn("Failed to publish registration event")
		}
	}

	return account, nil
}
