package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"go.uber.org/zap"

	"preecode/internal/common"
	"preecode/internal/common/security"
)

type contextKey string

const (
	UserIDCtxKey contextKey = "userID"
	ClaimsCtxKey contextKey = "claims"
)

// RevocationChecker is satisfied by the Redis revocation store.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Cutoff(ctx context.Context, userID string) (time.Time, error)
}

// Auth turns a verified bearer token into a user id on the request context.
// It runs after jwtauth.Verifier.
type Auth struct {
	revocations RevocationChecker
	log         *zap.Logger
}

func NewAuth(revocations RevocationChecker, log *zap.Logger) *Auth {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auth{revocations: revocations, log: log}
}

func (a *Auth) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, rawClaims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			if err == nil || errors.Is(err, jwtauth.ErrNoTokenFound) {
				common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
				return
			}
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		claims, err := security.ClaimsFromMap(rawClaims)
		if err != nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims")
			return
		}

		if a.revocations != nil {
			revoked, err := a.isRevoked(r.Context(), claims)
			if err != nil {
				// Fail closed: a token we cannot check is not trusted.
				a.log.Error("token revocation check failed", zap.String("user_id", claims.UserID), zap.Error(err))
				common.RespondWithError(w, http.StatusServiceUnavailable, "Unable to verify session")
				return
			}
			if revoked {
				common.RespondWithError(w, http.StatusUnauthorized, "Session has been logged out")
				return
			}
		}

		ctx := context.WithValue(r.Context(), UserIDCtxKey, claims.UserID)
		ctx = context.WithValue(ctx, ClaimsCtxKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isRevoked checks the single-token deny list and the per-user cutoff. A
// token issued in the same second as the cutoff counts as revoked.
func (a *Auth) isRevoked(ctx context.Context, claims security.Claims) (bool, error) {
	if claims.TokenID != "" {
		revoked, err := a.revocations.IsRevoked(ctx, claims.TokenID)
		if err != nil || revoked {
			return revoked, err
		}
	}
	cutoff, err := a.revocations.Cutoff(ctx, claims.UserID)
	if err != nil {
		return false, err
	}
	return !cutoff.IsZero() && !claims.IssuedAt.After(cutoff), nil
}

// Helper to get user ID from context
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDCtxKey).(string)
	return userID, ok
}

func GetClaimsFromContext(ctx context.Context) (security.Claims, bool) {
	claims, ok := ctx.Value(ClaimsCtxKey).(security.Claims)
	return claims, ok
}

// WithUserID is used by handler tests to skip token plumbing.
func WithUserID(ctx context.Context, userID string) context.Context {
	ctx = context.WithValue(ctx, UserIDCtxKey, userID)
	return context.WithValue(ctx, ClaimsCtxKey, security.Claims{UserID: userID})
}
