package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"preecode/internal/app/service"
	"preecode/internal/common"
	"preecode/internal/domain/model"
	"preecode/internal/domain/stats"
	"preecode/internal/platform/logger"
)

type UserService interface {
	Signup(ctx context.Context, req service.SignupRequest) (*service.AuthResponse, error)
	Login(ctx context.Context, req service.LoginRequest) (*service.AuthResponse, error)
	Me(ctx context.Context, userID string) (*model.User, error)
	GetUser(ctx context.Context, userID string) (*model.PublicProfile, error)
	UpdateProfile(ctx context.Context, userID string, req service.UpdateProfileRequest) (*model.User, error)
	ChangePassword(ctx context.Context, userID string, req service.ChangePasswordRequest) error
	UpdateNotificationPrefs(ctx context.Context, userID string, req service.NotificationPrefsRequest) (*model.NotificationPrefs, error)
	DeleteAccount(ctx context.Context, userID string) error
}

type StatsService interface {
	Get(ctx context.Context, requesterID, userID string) (*stats.View, error)
}

type DeviceLogout interface {
	LogoutAllDevices(ctx context.Context, userID string) error
}

type UserHandler struct {
	users   UserService
	stats   StatsService
	devices DeviceLogout
	log     *zap.Logger
}

func NewUserHandler(users UserService, statsService StatsService, devices DeviceLogout, log *zap.Logger) *UserHandler {
	return &UserHandler{users: users, stats: statsService, devices: devices, log: logger.OrNop(log)}
}

func (h *UserHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Post("/", h.signup)
	r.Post("/login", h.login)

	r.Group(func(pr chi.Router) {
		pr.Use(g.authed()...)
		pr.Patch("/me", h.updateProfile)
		pr.Put("/me/password", h.changePassword)
		pr.Put("/me/notifications", h.updateNotifications)
		pr.Post("/me/logout-all", h.logoutAll)
		pr.Delete("/me", h.deleteAccount)
		pr.Get("/{id}", h.getUser)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(g.gated()...)
		pr.Get("/me", h.me)
		pr.Get("/stats/{id}", h.getStats)
	})
}

func (h *UserHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	resp, err := h.users.Signup(r.Context(), req)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, resp)
}

func (h *UserHandler) login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	resp, err := h.users.Login(r.Context(), req)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *UserHandler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	user, err := h.users.Me(r.Context(), userID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, user)
}

func (h *UserHandler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	profile, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, profile)
}

func (h *UserHandler) getStats(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	view, err := h.stats.Get(r.Context(), requesterID, id)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, view)
}

func (h *UserHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req service.UpdateProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), userID, req)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, user)
}

func (h *UserHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req service.ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.users.ChangePassword(r.Context(), userID, req); err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

func (h *UserHandler) updateNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req service.NotificationPrefsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	prefs, err := h.users.UpdateNotificationPrefs(r.Context(), userID, req)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, prefs)
}

func (h *UserHandler) logoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.devices.LogoutAllDevices(r.Context(), userID); err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out of all devices"})
}

func (h *UserHandler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.users.DeleteAccount(r.Context(), userID); err != nil {
		respondError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
