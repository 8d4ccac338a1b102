package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"preecode/internal/app/service"
	"preecode/internal/common"
	"preecode/internal/platform/logger"
)

type EarlyAccessService interface {
	Status(ctx context.Context, userID string) (*service.EarlyAccessStatus, error)
	ConfirmShare(ctx context.Context, userID string) (*service.EarlyAccessStatus, error)
}

type EarlyAccessHandler struct {
	earlyAccess EarlyAccessService
	log         *zap.Logger
}

func NewEarlyAccessHandler(ea EarlyAccessService, log *zap.Logger) *EarlyAccessHandler {
	return &EarlyAccessHandler{earlyAccess: ea, log: logger.OrNop(log)}
}

// Both routes stay reachable after expiry so users can see and extend
// their grant.
func (h *EarlyAccessHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Use(g.authed()...)
	r.Get("/status", h.status)
	r.Post("/share", h.share)
}

func (h *EarlyAccessHandler) status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	status, err := h.earlyAccess.Status(r.Context(), userID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, status)
}

func (h *EarlyAccessHandler) share(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	status, err := h.earlyAccess.ConfirmShare(r.Context(), userID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, status)
}
