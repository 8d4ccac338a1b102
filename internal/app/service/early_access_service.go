package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"preecode/internal/common"
	"preecode/internal/domain/model"
	"preecode/internal/domain/repository"
)

// shareBonusMonths is added to early access the first time a user shares.
const shareBonusMonths = 1

type EarlyAccessStatus struct {
	Active             bool       `json:"active"`
	ExpiresAt          *time.Time `json:"expiresAt"`
	MonthsGranted      int        `json:"monthsGranted"`
	HasShared          bool       `json:"hasShared"`
	FoundingBadgeLevel *string    `json:"foundingBadgeLevel"`
}

type EarlyAccessService struct {
	userRepo      repository.UserRepository
	initialMonths int
	log           *zap.Logger
	now           func() time.Time
}

func NewEarlyAccessService(userRepo repository.UserRepository, initialMonths int, log *zap.Logger) *EarlyAccessService {
	if log == nil {
		log = zap.NewNop()
	}
	return &EarlyAccessService{userRepo: userRepo, initialMonths: initialMonths, log: log, now: time.Now}
}

func (s *EarlyAccessService) Status(ctx context.Context, userID string) (*EarlyAccessStatus, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.statusFor(user), nil
}

func (s *EarlyAccessService) statusFor(user *model.User) *EarlyAccessStatus {
	months := s.initialMonths
	if user.SharedAt != nil {
		months += shareBonusMonths
	}
	return &EarlyAccessStatus{
		Active:             user.EarlyAccessUntil != nil && s.now().Before(*user.EarlyAccessUntil),
		ExpiresAt:          user.EarlyAccessUntil,
		MonthsGranted:      months,
		HasShared:          user.SharedAt != nil,
		FoundingBadgeLevel: user.FoundingBadgeLevel,
	}
}

// ConfirmShare grants the one-time share reward: a month more access and the
// founding badge. A second call returns common.ErrConflict.
func (s *EarlyAccessService) ConfirmShare(ctx context.Context, userID string) (*EarlyAccessStatus, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.SharedAt != nil {
		return nil, common.Errorf("share already recorded: %w", common.ErrConflict)
	}

	now := s.now().UTC()
	// Extend from whichever is later so an expired grant still gains a month.
	base := now
	if user.EarlyAccessUntil != nil && user.EarlyAccessUntil.After(now) {
		base = *user.EarlyAccessUntil
	}
	until := base.AddDate(0, shareBonusMonths, 0)

	if err := s.userRepo.ExtendEarlyAccess(ctx, userID, until, model.BadgeElite, now); err != nil {
		return nil, err
	}
	badge := model.BadgeElite
	user.EarlyAccessUntil = &until
	user.FoundingBadgeLevel = &badge
	user.SharedAt = &now

	s.log.Info("early access share recorded", zap.String("user_id", userID), zap.Time("until", until))
	return s.statusFor(user), nil
}

// HasAccess backs the enforcement middleware.
func (s *EarlyAccessService) HasAccess(ctx context.Context, userID string) (bool, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.statusFor(user).Active, nil
}
