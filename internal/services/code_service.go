package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"partner-service/internal/events"
	"partner-service/internal/models"
	"partner-service/internal/repository"
)

// codeCharset matches the shape of the shared codes: uppercase alphanumerics,
// no embedded semantics.
const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxGenerateAttempts bounds the regenerate-and-retry loop on code collisions.
const maxGenerateAttempts = 5

// IssueCodeInput describes a code creation request after handler validation.
type IssueCodeInput struct {
	// Code is the explicit code string; empty means generate one.
	Code                string
	Type                string
	MaxUses             int
	ExpiresAt           *time.Time
	DefaultDiscountRate *float64
	Notes               string
}

type CodeService struct {
	repo         repository.CodeStore
	publisher    *events.Publisher
	logger       *logrus.Logger
	prefix       string
	suffixLength int
}

func NewCodeService(repo repository.CodeStore, publisher *events.Publisher, logger *logrus.Logger, prefix string, suffixLength int) *CodeService {
	if suffixLength <= 0 {
		suffixLength = 8
	}
	return &CodeService{
		repo:         repo,
		publisher:    publisher,
		logger:       logger,
		prefix:       prefix,
		suffixLength: suffixLength,
	}
}

// Validate reports whether a code is usable right now. Checks run in a fixed
// order and the first failure wins: exists, active, not expired, uses left.
// Purely advisory: it reserves nothing, the redeemer re-checks atomically.
func (s *CodeService) Validate(code string, now time.Time) (*models.InvitationCode, error) {
	invCode, err := s.repo.GetCode(code)
	if err != nil {
		return nil, err
	}

	if !invCode.IsActive {
		return nil, models.ErrCodeInactive
	}
	if invCode.ExpiresAt != nil && !now.Before(*invCode.ExpiresAt) {
		return nil, models.ErrCodeExpired
	}
	if invCode.UsedCount >= invCode.MaxUses {
		return nil, models.ErrCodeExhausted
	}

	return invCode, nil
}

// IssueCode creates a new invitation code on behalf of the issuer. Generated
// codes are collision-checked against the store and regenerated on conflict;
// explicit codes surface the conflict to the caller.
func (s *CodeService) IssueCode(ctx context.Context, issuer *models.Account, input IssueCodeInput) (*models.InvitationCode, error) {
	if !models.IsValidCodeType(input.Type) {
		return nil, fmt.Errorf("unknown code type %q", input.Type)
	}
	if input.MaxUses <= 0 {
		return nil, fmt.Errorf("max_uses must be positive")
	}

	code := &models.InvitationCode{
		Type:                input.Type,
		IssuedBy:            issuer.ID,
		IssuedByName:        issuer.Name,
		ExpiresAt:           input.ExpiresAt,
		MaxUses:             input.MaxUses,
		DefaultDiscountRate: input.DefaultDiscountRate,
		Notes:               input.Notes,
	}
	if input.Type == models.CodeTypePartnerUser {
		// Partner referral codes are always attributed to the partner that
		// owns the signups they produce.
		partnerID := issuer.ID
		code.AttributedPartnerID = &partnerID
	}

	if input.Code != "" {
		code.Code = strings.ToUpper(input.Code)
		if err := s.repo.CreateCode(code); err != nil {
			return nil, err
		}
	} else {
		if err := s.createWithGeneratedCode(code); err != nil {
			return nil, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"code":      code.Code,
		"type":      code.Type,
		"max_uses":  code.MaxUses,
		"issued_by": issuer.ID,
	}).Info("Invitation code issued")

	s.publishCodeEvent(ctx, issuer, events.ActionCodeIssued, code.Code, map[string]interface{}{
		"type":     code.Type,
		"max_uses": code.MaxUses,
	})

	return code, nil
}

// BulkIssue creates count generated codes with identical settings
func (s *CodeService) BulkIssue(ctx context.Context, issuer *models.Account, input IssueCodeInput, count int) ([]models.InvitationCode, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive")
	}

	input.Code = ""
	codes := make([]models.InvitationCode, 0, count)
	for i := 0; i < count; i++ {
		code, err := s.IssueCode(ctx, issuer, input)
		if err != nil {
			return codes, fmt.Errorf("bulk issue stopped after %d of %d codes: %w", i, count, err)
		}
		codes = append(codes, *code)
	}
	return codes, nil
}

// Redeem consumes one use of a code for an account. Exposed for collaborators
// that create accounts outside the registration transaction.
func (s *CodeService) Redeem(ctx context.Context, code string, account *models.Account, now time.Time) error {
	if err := s.repo.Redeem(code, account.ID, account.Name, now); err != nil {
		return err
	}

	s.publishCodeEvent(ctx, account, events.ActionCodeRedeemed, code, map[string]interface{}{
		"account_id": account.ID.String(),
	})
	return nil
}

// Deactivate turns a code off. The code and its redemption history remain.
func (s *CodeService) Deactivate(ctx context.Context, actor *models.Account, code string) error {
	if err := s.repo.DeactivateCode(code); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"code":  code,
		"actor": actor.ID,
	}).Info("Invitation code deactivated")

	s.publishCodeEvent(ctx, actor, events.ActionCodeDeactivated, code, nil)
	return nil
}

// GetWithHistory returns a code together with its redemption entries
func (s *CodeService) GetWithHistory(code string) (*models.InvitationCode, error) {
	return s.repo.GetCodeWithRedemptions(code)
}

// List returns codes matching the filter
func (s *CodeService) List(filter models.CodeFilter) ([]models.InvitationCode, int, error) {
	return s.repo.ListCodes(filter)
}

// DeactivateExpired flips the active flag on codes past their expiry
func (s *CodeService) DeactivateExpired(now time.Time) (int64, error) {
	return s.repo.DeactivateExpired(now)
}

// createWithGeneratedCode generates code strings until one does not collide
func (s *CodeService) createWithGeneratedCode(code *models.InvitationCode) error {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		generated, err := s.generateCode()
		if err != nil {
			return err
		}

		code.Code = generated
		err = s.repo.CreateCode(code)
		if err == nil {
			return nil
		}
		if err != models.ErrDuplicateCode {
			return err
		}

		s.logger.WithField("code", generated).Warn("Generated code collided, retrying")
	}
	return fmt.Errorf("failed to generate a unique code after %d attempts: %w", maxGenerateAttempts, models.ErrDuplicateCode)
}

// generateCode produces prefix + N random uppercase alphanumerics
func (s *CodeService) generateCode() (string, error) {
	var b strings.Builder
	b.WriteString(s.prefix)
	for i := 0; i < s.suffixLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		b.WriteByte(codeCharset[n.Int64()])
	}
	return b.String(), nil
}

func (s *CodeService) publishCodeEvent(ctx context.Context, actor *models.Account, action, code string, details map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishCodeEvent(ctx, actor.ID.String(), actor.Name, action, code, details); err != nil {
		s.logger.WithError(err).WithField("code", code).Warn("Failed to publish code event")
	}
}
