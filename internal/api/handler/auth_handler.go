package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"preecode/internal/api/middleware"
	"preecode/internal/app/service"
	"preecode/internal/common"
	"preecode/internal/common/security"
	"preecode/internal/platform/logger"
)

type AuthService interface {
	BeginGoogleLogin(redirect string) (string, error)
	CompleteGoogleLogin(ctx context.Context, code, state string) string
	LoginWithGoogleIDToken(ctx context.Context, idToken string) (*service.AuthResponse, error)
	DevLogin(ctx context.Context) (*service.AuthResponse, error)
	Logout(ctx context.Context, claims security.Claims) error
}

type AuthHandler struct {
	authService AuthService
	log         *zap.Logger
}

func NewAuthHandler(authService AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: logger.OrNop(log)}
}

type googleTokenRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

func (h *AuthHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Get("/google", h.googleLogin)
	r.Get("/google/callback", h.googleCallback)
	r.Post("/google/token", h.googleToken)
	r.Get("/dev-login", h.devLogin)
	r.With(g.authed()...).Post("/logout", h.logout)
}

// googleLogin sends the browser to Google's consent screen. ?redirect= is
// carried through the OAuth state.
func (h *AuthHandler) googleLogin(w http.ResponseWriter, r *http.Request) {
	target, err := h.authService.BeginGoogleLogin(r.URL.Query().Get("redirect"))
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *AuthHandler) googleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if q.Get("error") != "" {
		h.log.Info("google consent denied", zap.String("error", q.Get("error")))
		code = ""
	}
	http.Redirect(w, r, h.authService.CompleteGoogleLogin(r.Context(), code, q.Get("state")), http.StatusFound)
}

func (h *AuthHandler) googleToken(w http.ResponseWriter, r *http.Request) {
	var req googleTokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	resp, err := h.authService.LoginWithGoogleIDToken(r.Context(), req.IDToken)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) devLogin(w http.ResponseWriter, r *http.Request) {
	resp, err := h.authService.DevLogin(r.Context())
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}
	if err := h.authService.Logout(r.Context(), claims); err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}
