package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"preecode/internal/common"
	"preecode/internal/common/security"
	"preecode/internal/domain/model"
	"preecode/internal/domain/repository"
	"preecode/internal/platform/metrics"
	"preecode/internal/platform/oauth"
)

const (
	LoginMethodPassword      = "password"
	LoginMethodGoogle        = "google"
	LoginMethodGoogleIDToken = "google_id_token"
	LoginMethodDev           = "dev"

	maxUsernameAttempts = 50
)

type OAuthProvider interface {
	Configured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (oauth.Identity, error)
	VerifyIDToken(ctx context.Context, idToken string) (oauth.Identity, error)
}

type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	SetCutoff(ctx context.Context, userID string, at time.Time, ttl time.Duration) error
}

type AuthConfig struct {
	FrontendURL       string
	Development       bool
	EarlyAccessMonths int
}

type AuthResponse struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

type AuthService struct {
	userRepo  repository.UserRepository
	provider  OAuthProvider
	tokens    *security.TokenIssuer
	redirects *security.RedirectPolicy
	revoker   TokenRevoker
	cfg       AuthConfig
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

func NewAuthService(
	userRepo repository.UserRepository,
	provider OAuthProvider,
	tokens *security.TokenIssuer,
	redirects *security.RedirectPolicy,
	revoker TokenRevoker,
	cfg AuthConfig,
	m *metrics.Metrics,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		userRepo:  userRepo,
		provider:  provider,
		tokens:    tokens,
		redirects: redirects,
		revoker:   revoker,
		cfg:       cfg,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// DefaultRedirectURL is where the browser lands after login when no usable
// redirect was requested.
func DefaultRedirectURL(frontendURL string) string {
	return strings.TrimRight(frontendURL, "/") + "/dashboard.html"
}

func (s *AuthService) failureRedirectURL() string {
	return strings.TrimRight(s.cfg.FrontendURL, "/") + "/login.html?error=oauth_failed"
}

// BeginGoogleLogin returns the consent screen URL, carrying redirect in the
// OAuth state when one is given.
func (s *AuthService) BeginGoogleLogin(redirect string) (string, error) {
	if !s.provider.Configured() {
		return "", common.Errorf("google sign-in unavailable: %w", common.ErrServiceUnavailable)
	}
	return s.provider.AuthCodeURL(security.EncodeState(redirect)), nil
}

// CompleteGoogleLogin finishes the callback leg and always yields a URL to
// redirect to: the resolved target with the token, or the login failure page.
func (s *AuthService) CompleteGoogleLogin(ctx context.Context, code, state string) string {
	if code == "" {
		s.metrics.ObserveLogin(LoginMethodGoogle, errors.New("missing code"))
		return s.failureRedirectURL()
	}
	identity, err := s.provider.Exchange(ctx, code)
	if err != nil {
		s.log.Warn("google code exchange failed", zap.Error(err))
		s.metrics.ObserveLogin(LoginMethodGoogle, err)
		return s.failureRedirectURL()
	}
	user, err := s.findOrCreateGoogleUser(ctx, identity)
	if err != nil {
		s.log.Error("google user provisioning failed", zap.String("email", identity.Email), zap.Error(err))
		s.metrics.ObserveLogin(LoginMethodGoogle, err)
		return s.failureRedirectURL()
	}
	issued, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.log.Error("token issue failed", zap.String("user_id", user.ID), zap.Error(err))
		s.metrics.ObserveLogin(LoginMethodGoogle, err)
		return s.failureRedirectURL()
	}
	s.metrics.ObserveLogin(LoginMethodGoogle, nil)

	res := s.redirects.Resolve(state, issued.Token)
	if res.Rejected {
		s.metrics.ObserveRedirectRejected()
		s.log.Warn("redirect target rejected", zap.String("user_id", user.ID), zap.String("requested", res.Requested))
	} else if state != "" && res.Requested == "" {
		s.log.Debug("undecodable oauth state ignored", zap.String("user_id", user.ID))
	}
	return res.URL
}

// LoginWithGoogleIDToken signs in the editor extension with an ID token it
// obtained from Google directly.
func (s *AuthService) LoginWithGoogleIDToken(ctx context.Context, idToken string) (resp *AuthResponse, err error) {
	defer func() { s.metrics.ObserveLogin(LoginMethodGoogleIDToken, err) }()

	identity, err := s.provider.VerifyIDToken(ctx, idToken)
	if err != nil {
		if errors.Is(err, oauth.ErrNotConfigured) {
			return nil, common.Errorf("google sign-in unavailable: %w", common.ErrServiceUnavailable)
		}
		s.log.Info("google id token rejected", zap.Error(err))
		return nil, common.Errorf("invalid google id token: %w", common.ErrUnauthorized)
	}
	user, err := s.findOrCreateGoogleUser(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.respond(user)
}

// DevLogin issues a token for the oldest account. Development only.
func (s *AuthService) DevLogin(ctx context.Context) (resp *AuthResponse, err error) {
	if !s.cfg.Development {
		return nil, common.ErrNotFound
	}
	defer func() { s.metrics.ObserveLogin(LoginMethodDev, err) }()

	user, err := s.userRepo.FindFirst(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.Errorf("no user exists in DB: %w", common.ErrNotFound)
		}
		return nil, err
	}
	return s.respond(user)
}

// Logout revokes the presented token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, claims security.Claims) error {
	if claims.TokenID == "" {
		return common.Errorf("token has no id: %w", common.ErrBadRequest)
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if err := s.revoker.Revoke(ctx, claims.TokenID, ttl); err != nil {
		return common.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// LogoutAllDevices invalidates every token for userID issued up to now.
func (s *AuthService) LogoutAllDevices(ctx context.Context, userID string) error {
	if err := s.revoker.SetCutoff(ctx, userID, s.now(), s.tokens.TTL()); err != nil {
		return common.Errorf("failed to log out devices: %w", err)
	}
	s.log.Info("logged out all devices", zap.String("user_id", userID))
	return nil
}

func (s *AuthService) respond(user *model.User) (*AuthResponse, error) {
	issued, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, common.Errorf("failed to generate token: %w", err)
	}
	user.HashedPassword = "" // Clear password before returning
	return &AuthResponse{User: user, Token: issued.Token, ExpiresAt: issued.ExpiresAt}, nil
}

func (s *AuthService) findOrCreateGoogleUser(ctx context.Context, id oauth.Identity) (*model.User, error) {
	user, err := s.userRepo.FindByProviderID(ctx, model.ProviderGoogle, id.ProviderID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	// An existing account with the same email is linked only when Google
	// vouches for the address.
	user, err = s.userRepo.FindByEmail(ctx, id.Email)
	if err == nil {
		if !id.EmailVerified {
			s.log.Warn("refusing to link unverified google email",
				zap.String("user_id", user.ID), zap.String("provider_id", id.ProviderID))
			return nil, common.Errorf("google email %s is not verified: %w", id.Email, common.ErrConflict)
		}
		if err := s.userRepo.LinkProvider(ctx, user.ID, model.ProviderGoogle, id.ProviderID, id.Avatar); err != nil {
			return nil, common.Errorf("failed to link google account: %w", err)
		}
		user.Provider = model.ProviderGoogle
		if user.Avatar == "" {
			user.Avatar = id.Avatar
		}
		return user, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	name := strings.TrimSpace(id.Name)
	if name == "" {
		name, _, _ = strings.Cut(id.Email, "@")
	}
	username, err := uniqueUsername(ctx, s.userRepo, name)
	if err != nil {
		return nil, err
	}
	providerID := id.ProviderID
	user = &model.User{
		ID:                uuid.NewString(),
		Name:              name,
		Username:          username,
		Email:             id.Email,
		Provider:          model.ProviderGoogle,
		ProviderID:        &providerID,
		Avatar:            id.Avatar,
		NotificationPrefs: model.DefaultNotificationPrefs(),
		EarlyAccessUntil:  earlyAccessUntil(s.now(), s.cfg.EarlyAccessMonths),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, common.Errorf("failed to create user: %w", err)
	}
	s.log.Info("created google user", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// UsernameBase turns a display name into a username stem: lowercase ASCII
// with underscores.
func UsernameBase(name string) string {
	base := strings.ReplaceAll(slug.Make(name), "-", "_")
	if base == "" {
		return "user"
	}
	if len(base) > 24 {
		base = strings.TrimRight(base[:24], "_")
	}
	return base
}

// uniqueUsername tries base, base_1, base_2 ... until one is free.
func uniqueUsername(ctx context.Context, repo repository.UserRepository, name string) (string, error) {
	base := UsernameBase(name)
	candidate := base
	for i := 1; i <= maxUsernameAttempts; i++ {
		exists, err := repo.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
	return fmt.Sprintf("%s_%s", base, uuid.NewString()[:8]), nil
}

func earlyAccessUntil(now time.Time, months int) *time.Time {
	if months <= 0 {
		return nil
	}
	until := now.UTC().AddDate(0, months, 0)
	return &until
}
