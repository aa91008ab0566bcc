package referral

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// maxGenerateAttempts bounds the collision-retry loop when issuing codes.
const maxGenerateAttempts = 5

// Service issues referral codes and drives the pending -> completed referral
// lifecycle, posting both bonuses through the repository so they commit
// atomically with referral state.
type Service struct {
	repo Repository
	gen  *Generator
}

func NewService(repo Repository, gen *Generator) *Service {
	return &Service{repo: repo, gen: gen}
}

// IssueCode returns the account's referral code, generating one on first
// call. Idempotent: repeat calls return the same code.
func (s *Service) IssueCode(ctx context.Context, accountID uuid.UUID) (string, error) {
	existing, err := s.repo.CodeByAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.Code, nil
	}

	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		code := s.gen.Code()
		err := s.repo.InsertCode(ctx, accountID, code)
		if err == nil {
			log.Info().Str("account_id", accountID.String()).Str("code", code).Msg("referral code issued")
			return code, nil
		}
		if !errors.Is(err, ErrCodeTaken) {
			return "", err
		}

		// Either a code collision or a concurrent issue for this account won
		// the insert; in the latter case return the winner's code.
		existing, lookupErr := s.repo.CodeByAccount(ctx, accountID)
		if lookupErr != nil {
			return "", lookupErr
		}
		if existing != nil {
			return existing.Code, nil
		}
	}

	return "", ErrCodeGenerationFailed
}

// ApplyCode records a pending referral for (code, identity) and immediately
// posts the welcome bonus to the referred account. The welcome bonus does not
// depend on the referral ever completing. Re-applying an already-recorded
// pair is a no-op.
func (s *Service) ApplyCode(ctx context.Context, code string, referredAccount uuid.UUID, referredIdentity string) error {
	if !ValidFormat(code) {
		return ErrInvalidCodeFormat
	}

	owner, err := s.repo.CodeOwner(ctx, code)
	if err != nil {
		return err
	}
	if owner == referredAccount {
		return ErrSelfReferral
	}

	created, err := s.repo.CreatePending(ctx, code, referredAccount, referredIdentity)
	if err != nil {
		return err
	}
	if created {
		log.Info().
			Str("code", code).
			Str("referred_identity", referredIdentity).
			Int("welcome_points", WelcomePoints).
			Msg("referral recorded, welcome bonus posted")
	}
	return nil
}

// Complete marks the identity's pending referral completed and pays the
// referrer bonus exactly once. No pending referral is not an error; the
// order-placement flow calls this for every first order.
func (s *Service) Complete(ctx context.Context, referredIdentity string) error {
	completed, referrer, err := s.repo.Complete(ctx, referredIdentity)
	if err != nil {
		return err
	}
	if completed {
		log.Info().
			Str("referred_identity", referredIdentity).
			Str("referrer", referrer.String()).
			Int("bonus_points", BonusPoints).
			Msg("referral completed, referrer bonus posted")
	}
	return nil
}
