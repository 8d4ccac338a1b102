package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ClaimUserID = "user_id"
	ClaimJTI    = "jti"
	ClaimIAT    = "iat"
	ClaimEXP    = "exp"
	// ClaimIssuedAtMillis refines iat so a logout-all cutoff can tell apart
	// tokens minted within the same second.
	ClaimIssuedAtMillis = "iat_ms"

	DefaultTokenTTL = 7 * 24 * time.Hour
)

var ErrInvalidClaims = errors.New("invalid token claims")

// Claims is the decoded subset of a session token we rely on.
type Claims struct {
	UserID    string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type IssuedToken struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenIssuer mints and verifies HS256 session tokens.
type TokenIssuer struct {
	auth *jwtauth.JWTAuth
	ttl  time.Duration
	now  func() time.Time
}

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		auth: jwtauth.New("HS256", secret, nil),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Auth exposes the underlying jwtauth instance for jwtauth.Verifier.
func (i *TokenIssuer) Auth() *jwtauth.JWTAuth {
	return i.auth
}

func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

func (i *TokenIssuer) Issue(userID string) (IssuedToken, error) {
	if userID == "" {
		return IssuedToken{}, errors.New("security.Issue: empty user id")
	}
	now := i.now()
	exp := now.Add(i.ttl)
	jti := uuid.NewString()

	claims := jwt.MapClaims{
		ClaimUserID: userID,
		ClaimJTI:    jti,
		ClaimEXP:    exp.Unix(),
		ClaimIAT:    now.Unix(),

		ClaimIssuedAtMillis: now.UnixMilli(),
	}
	_, tokenString, err := i.auth.Encode(claims)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("security.Issue: %w", err)
	}
	return IssuedToken{Token: tokenString, TokenID: jti, ExpiresAt: time.Unix(exp.Unix(), 0)}, nil
}

// Verify checks signature and expiry and returns the claims.
func (i *TokenIssuer) Verify(tokenString string) (Claims, error) {
	token, err := jwtauth.VerifyToken(i.auth, tokenString)
	if err != nil {
		return Claims{}, err
	}
	userID, _ := token.PrivateClaims()[ClaimUserID].(string)
	if userID == "" {
		return Claims{}, ErrInvalidClaims
	}
	issuedAt := token.IssuedAt()
	if ms, ok := millis(token.PrivateClaims()[ClaimIssuedAtMillis]); ok {
		issuedAt = ms
	}
	return Claims{
		UserID:    userID,
		TokenID:   token.JwtID(),
		IssuedAt:  issuedAt,
		ExpiresAt: token.Expiration(),
	}, nil
}

// ClaimsFromMap reads claims as returned by jwtauth.FromContext.
func ClaimsFromMap(claims map[string]interface{}) (Claims, error) {
	userID, err := GetUserIDFromClaims(claims)
	if err != nil {
		return Claims{}, err
	}
	jti, _ := claims[ClaimJTI].(string)
	issuedAt := claimTime(claims[ClaimIAT])
	if ms, ok := millis(claims[ClaimIssuedAtMillis]); ok {
		issuedAt = ms
	}
	return Claims{
		UserID:    userID,
		TokenID:   jti,
		IssuedAt:  issuedAt,
		ExpiresAt: claimTime(claims[ClaimEXP]),
	}, nil
}

func GetUserIDFromClaims(claims map[string]interface{}) (string, error) {
	id, ok := claims[ClaimUserID].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("user_id claim is missing or not a string: %w", ErrInvalidClaims)
	}
	return id, nil
}

func claimTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case float64:
		return time.Unix(int64(t), 0)
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}

// millis decodes ClaimIssuedAtMillis, which arrives as float64 after a JSON
// round trip.
func millis(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		return time.UnixMilli(int64(t)), t > 0
	case int64:
		return time.UnixMilli(t), t > 0
	case int:
		return time.UnixMilli(int64(t)), t > 0
	default:
		return time.Time{}, false
	}
}
