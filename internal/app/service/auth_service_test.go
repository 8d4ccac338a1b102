package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"preecode/internal/common"
	"preecode/internal/common/security"
	"preecode/internal/domain/model"
	"preecode/internal/platform/metrics"
	"preecode/internal/platform/oauth"
)

const testFrontend = "http://localhost:5500"

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type authFixture struct {
	svc      *AuthService
	users    *fakeUserRepo
	provider *fakeProvider
	revoker  *fakeRevoker
	tokens   *security.TokenIssuer
}

func newAuthFixture(dev bool, users ...*model.User) authFixture {
	repo := newFakeUserRepo(users...)
	provider := &fakeProvider{
		configured: true,
		identity: oauth.Identity{
			ProviderID:    "g-123",
			Email:         "grace@example.com",
			EmailVerified: true,
			Name:          "Grace Hopper",
			Avatar:        "https://img/g.png",
		},
	}
	revoker := &fakeRevoker{}
	tokens := security.NewTokenIssuer(testSecret, security.DefaultTokenTTL)
	svc := NewAuthService(
		repo, provider, tokens,
		security.NewRedirectPolicy(security.DefaultRedirectSchemes, DefaultRedirectURL(testFrontend)),
		revoker,
		AuthConfig{FrontendURL: testFrontend, Development: dev, EarlyAccessMonths: 3},
		metrics.New(), nil,
	)
	return authFixture{svc: svc, users: repo, provider: provider, revoker: revoker, tokens: tokens}
}

func tokenFrom(t *testing.T, redirect string) string {
	t.Helper()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok, redirect)
	return tok
}

func TestBeginGoogleLoginEncodesRedirect(t *testing.T) {
	f := newAuthFixture(false)

	loginURL, err := f.svc.BeginGoogleLogin("vscode://pub.ext/auth")
	require.NoError(t, err)
	assert.Contains(t, loginURL, "state=")
	decoded, ok := security.DecodeState(f.provider.lastState)
	require.True(t, ok)
	assert.Equal(t, "vscode://pub.ext/auth", decoded)

	loginURL, err = f.svc.BeginGoogleLogin("")
	require.NoError(t, err)
	assert.NotContains(t, loginURL, "state=")
}

func TestBeginGoogleLoginUnconfigured(t *testing.T) {
	f := newAuthFixture(false)
	f.provider.configured = false

	_, err := f.svc.BeginGoogleLogin("")
	assert.ErrorIs(t, err, common.ErrServiceUnavailable)
}

func TestCompleteGoogleLoginDeepLink(t *testing.T) {
	f := newAuthFixture(false)

	redirect := f.svc.CompleteGoogleLogin(context.Background(), "code", security.EncodeState("vscode://pub.ext/auth"))

	require.True(t, strings.HasPrefix(redirect, "vscode://pub.ext/auth?token="), redirect)
	claims, err := f.tokens.Verify(tokenFrom(t, redirect))
	require.NoError(t, err)

	user, err := f.users.FindByID(context.Background(), claims.UserID)
	require.NoError(t, err)
	assert.Equal(t, "grace_hopper", user.Username)
	assert.Equal(t, model.ProviderGoogle, user.Provider)
	require.NotNil(t, user.EarlyAccessUntil)
	assert.True(t, user.EarlyAccessUntil.After(time.Now().AddDate(0, 2, 0)))
}

func TestCompleteGoogleLoginRejectsJavascriptScheme(t *testing.T) {
	f := newAuthFixture(false)

	redirect := f.svc.CompleteGoogleLogin(context.Background(), "code", security.EncodeState("javascript:alert(1)"))

	assert.True(t, strings.HasPrefix(redirect, testFrontend+"/dashboard.html?token="), redirect)
	tokenFrom(t, redirect)
}

func TestCompleteGoogleLoginGarbageStateFallsBack(t *testing.T) {
	f := newAuthFixture(false)

	redirect := f.svc.CompleteGoogleLogin(context.Background(), "code", "%%%")

	assert.True(t, strings.HasPrefix(redirect, testFrontend+"/dashboard.html?token="), redirect)
}

func TestCompleteGoogleLoginExchangeFailure(t *testing.T) {
	f := newAuthFixture(false)
	f.provider.exchangeErr = errors.New("bad code")

	redirect := f.svc.CompleteGoogleLogin(context.Background(), "code", "")
	assert.Equal(t, testFrontend+"/login.html?error=oauth_failed", redirect)

	redirect = f.svc.CompleteGoogleLogin(context.Background(), "", "")
	assert.Equal(t, testFrontend+"/login.html?error=oauth_failed", redirect)
}

func TestGoogleLoginLinksExistingEmailAccount(t *testing.T) {
	existing := &model.User{ID: "u1", Username: "grace", Email: "grace@example.com", Provider: model.ProviderLocal}
	f := newAuthFixture(false, existing)

	resp, err := f.svc.LoginWithGoogleIDToken(context.Background(), "id-token")
	require.NoError(t, err)

	assert.Equal(t, "u1", resp.User.ID)
	linked, err := f.users.FindByProviderID(context.Background(), model.ProviderGoogle, "g-123")
	require.NoError(t, err)
	assert.Equal(t, "u1", linked.ID)
	assert.Equal(t, "https://img/g.png", linked.Avatar)
}

func TestGoogleLoginRefusesUnverifiedEmailMatch(t *testing.T) {
	victim := &model.User{ID: "u1", Username: "victim", Email: "victim@corp.example", Provider: model.ProviderLocal}
	f := newAuthFixture(false, victim)
	f.provider.identity = oauth.Identity{ProviderID: "other-sub", Email: "victim@corp.example", Name: "Mallory"}

	resp, err := f.svc.LoginWithGoogleIDToken(context.Background(), "id-token")
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Nil(t, resp)

	_, err = f.users.FindByProviderID(context.Background(), model.ProviderGoogle, "other-sub")
	assert.ErrorIs(t, err, common.ErrNotFound)

	redirect := f.svc.CompleteGoogleLogin(context.Background(), "code", security.EncodeState("vscode://pub.ext/auth"))
	assert.Equal(t, testFrontend+"/login.html?error=oauth_failed", redirect)
}

func TestGoogleLoginUnverifiedEmailCreatesNewAccount(t *testing.T) {
	f := newAuthFixture(false)
	f.provider.identity.EmailVerified = false

	resp, err := f.svc.LoginWithGoogleIDToken(context.Background(), "id-token")
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", resp.User.Email)
}

func TestGoogleLoginPicksFreeUsername(t *testing.T) {
	f := newAuthFixture(false,
		&model.User{ID: "a", Username: "grace_hopper", Email: "a@example.com"},
		&model.User{ID: "b", Username: "grace_hopper_1", Email: "b@example.com"},
	)

	resp, err := f.svc.LoginWithGoogleIDToken(context.Background(), "id-token")
	require.NoError(t, err)
	assert.Equal(t, "grace_hopper_2", resp.User.Username)
}

func TestLoginWithGoogleIDTokenErrors(t *testing.T) {
	f := newAuthFixture(false)

	f.provider.verifyErr = oauth.ErrInvalidToken
	_, err := f.svc.LoginWithGoogleIDToken(context.Background(), "bad")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	f.provider.verifyErr = oauth.ErrNotConfigured
	_, err = f.svc.LoginWithGoogleIDToken(context.Background(), "bad")
	assert.ErrorIs(t, err, common.ErrServiceUnavailable)
}

func TestDevLogin(t *testing.T) {
	f := newAuthFixture(false, &model.User{ID: "u1", Username: "ada", Email: "ada@example.com"})
	_, err := f.svc.DevLogin(context.Background())
	assert.ErrorIs(t, err, common.ErrNotFound)

	f = newAuthFixture(true)
	_, err = f.svc.DevLogin(context.Background())
	assert.ErrorIs(t, err, common.ErrNotFound)

	f = newAuthFixture(true, &model.User{ID: "u1", Username: "ada", Email: "ada@example.com", HashedPassword: "secret"})
	resp, err := f.svc.DevLogin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Empty(t, resp.User.HashedPassword)
	assert.NotEmpty(t, resp.Token)
}

func TestLogoutRevokesUntilExpiry(t *testing.T) {
	f := newAuthFixture(false)
	now := time.Now()
	f.svc.now = func() time.Time { return now }

	err := f.svc.Logout(context.Background(), security.Claims{UserID: "u1", TokenID: "jti-1", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, f.revoker.revoked, 1)
	assert.Equal(t, "jti-1", f.revoker.revoked[0].id)
	assert.Equal(t, time.Hour, f.revoker.revoked[0].ttl)

	err = f.svc.Logout(context.Background(), security.Claims{UserID: "u1"})
	assert.ErrorIs(t, err, common.ErrBadRequest)
}

func TestLogoutAllDevicesSetsCutoff(t *testing.T) {
	f := newAuthFixture(false)
	now := time.Now()
	f.svc.now = func() time.Time { return now }

	require.NoError(t, f.svc.LogoutAllDevices(context.Background(), "u1"))
	assert.Equal(t, now, f.revoker.cutoffs["u1"])
}

func TestUsernameBase(t *testing.T) {
	assert.Equal(t, "grace_hopper", UsernameBase("Grace Hopper"))
	assert.Equal(t, "user", UsernameBase("   "))
	assert.LessOrEqual(t, len(UsernameBase(strings.Repeat("long name ", 10))), 24)
}
