package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"preecode/internal/common"
	"preecode/internal/common/security"
	"preecode/internal/domain/model"
	"preecode/internal/domain/repository"
	"preecode/internal/platform/metrics"
)

type UserService struct {
	userRepo          repository.UserRepository
	tokens            *security.TokenIssuer
	cache             StatsCache
	earlyAccessMonths int
	metrics           *metrics.Metrics
	log               *zap.Logger
	now               func() time.Time
}

func NewUserService(
	userRepo repository.UserRepository,
	tokens *security.TokenIssuer,
	cache StatsCache,
	earlyAccessMonths int,
	m *metrics.Metrics,
	log *zap.Logger,
) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{
		userRepo:          userRepo,
		tokens:            tokens,
		cache:             cache,
		earlyAccessMonths: earlyAccessMonths,
		metrics:           m,
		log:               log,
		now:               time.Now,
	}
}

type SignupRequest struct {
	Name     string `json:"name" validate:"max=100"`
	Username string `json:"username" validate:"required,min=3,max=30"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Login    string `json:"login" validate:"required_without_all=Email Username"` // email or username
	Email    string `json:"email" validate:"omitempty,max=254"`
	Username string `json:"username" validate:"omitempty,max=30"`
	Password string `json:"password" validate:"required"`
}

func (r LoginRequest) identifier() string {
	for _, v := range []string{r.Login, r.Email, r.Username} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type UpdateProfileRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	Username *string `json:"username" validate:"omitempty,min=3,max=30"`
	Avatar   *string `json:"avatar" validate:"omitempty,max=2048"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72"`
}

type NotificationPrefsRequest struct {
	NotifEmail     *bool `json:"notifEmail"`
	NotifStreak    *bool `json:"notifStreak"`
	NotifAnnounce  *bool `json:"notifAnnounce"`
	NotifMarketing *bool `json:"notifMarketing"`
}

func (s *UserService) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if username == "" || email == "" || req.Password == "" {
		return nil, common.ErrBadRequest
	}
	if err := checkPassword(req.Password); err != nil {
		return nil, err
	}

	hashedPassword, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, common.Errorf("failed to hash password: %w", err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = username
	}
	user := &model.User{
		ID:                uuid.NewString(),
		Name:              name,
		Username:          username,
		Email:             email,
		HashedPassword:    hashedPassword,
		Provider:          model.ProviderLocal,
		NotificationPrefs: model.DefaultNotificationPrefs(),
		EarlyAccessUntil:  earlyAccessUntil(s.now(), s.earlyAccessMonths),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// Repo returns common.ErrConflict on duplicates
		return nil, common.Errorf("failed to create user: %w", err)
	}
	return s.issue(user)
}

func (s *UserService) Login(ctx context.Context, req LoginRequest) (resp *AuthResponse, err error) {
	defer func() { s.metrics.ObserveLogin(LoginMethodPassword, err) }()

	ident := req.identifier()
	if ident == "" || req.Password == "" {
		return nil, common.ErrBadRequest
	}

	// Try finding by email first, then by username
	user, err := s.userRepo.FindByEmail(ctx, ident)
	if errors.Is(err, common.ErrNotFound) {
		user, err = s.userRepo.FindByUsername(ctx, ident)
	}
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.Errorf("invalid credentials: %w", common.ErrUnauthorized)
		}
		return nil, err
	}
	if !security.CheckPasswordHash(req.Password, user.HashedPassword) {
		return nil, common.Errorf("invalid credentials: %w", common.ErrUnauthorized)
	}
	return s.issue(user)
}

// checkPassword maps bcrypt's bounds onto a 400. The byte limit matters for
// multi-byte passwords that pass the rune-based max tag.
func checkPassword(pw string) error {
	switch err := security.CheckPasswordLength(pw); {
	case errors.Is(err, security.ErrPasswordTooShort):
		return common.Errorf("password must be at least %d characters: %w", security.MinPasswordLength, common.ErrValidation)
	case errors.Is(err, security.ErrPasswordTooLong):
		return common.Errorf("password must be at most %d bytes: %w", security.MaxPasswordBytes, common.ErrValidation)
	}
	return nil
}

func (s *UserService) issue(user *model.User) (*AuthResponse, error) {
	issued, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, common.Errorf("failed to generate token: %w", err)
	}
	user.HashedPassword = "" // Clear password before returning
	return &AuthResponse{User: user, Token: issued.Token, ExpiresAt: issued.ExpiresAt}, nil
}

func (s *UserService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.HashedPassword = ""
	return user, nil
}

// GetUser returns the public profile; account details stay private.
func (s *UserService) GetUser(ctx context.Context, userID string) (*model.PublicProfile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := user.PublicProfile()
	return &profile, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if len(username) < 3 {
			return nil, common.Errorf("username must be at least 3 characters: %w", common.ErrValidation)
		}
		user.Username = username
	}
	if req.Avatar != nil {
		user.Avatar = strings.TrimSpace(*req.Avatar)
	}
	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, common.Errorf("failed to update profile: %w", err)
	}
	user.HashedPassword = ""
	return user, nil
}

// ChangePassword requires the current password unless the account has none
// yet (Google sign-up), in which case it sets one.
func (s *UserService) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	if err := checkPassword(req.NewPassword); err != nil {
		return err
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.HashedPassword != "" && !security.CheckPasswordHash(req.CurrentPassword, user.HashedPassword) {
		return common.Errorf("current password is incorrect: %w", common.ErrUnauthorized)
	}
	hashed, err := security.HashPassword(req.NewPassword)
	if err != nil {
		return common.Errorf("failed to hash password: %w", err)
	}
	return s.userRepo.UpdatePassword(ctx, userID, hashed)
}

// UpdateNotificationPrefs applies only the flags present in req.
func (s *UserService) UpdateNotificationPrefs(ctx context.Context, userID string, req NotificationPrefsRequest) (*model.NotificationPrefs, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	prefs := user.NotificationPrefs
	if req.NotifEmail != nil {
		prefs.Email = *req.NotifEmail
	}
	if req.NotifStreak != nil {
		prefs.Streak = *req.NotifStreak
	}
	if req.NotifAnnounce != nil {
		prefs.Announce = *req.NotifAnnounce
	}
	if req.NotifMarketing != nil {
		prefs.Marketing = *req.NotifMarketing
	}
	if err := s.userRepo.UpdateNotificationPrefs(ctx, userID, prefs); err != nil {
		return nil, common.Errorf("failed to update notification preferences: %w", err)
	}
	return &prefs, nil
}

func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		return common.Errorf("failed to delete account: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			s.log.Warn("stats cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	s.log.Info("account deleted", zap.String("user_id", userID))
	return nil
}
