package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"preecode/internal/app/service"
	"preecode/internal/common"
	"preecode/internal/domain/model"
	"preecode/internal/platform/logger"
)

type PracticeService interface {
	Record(ctx context.Context, userID string, req service.RecordPracticeRequest) (*model.PracticeSession, error)
	List(ctx context.Context, userID string) ([]model.PracticeSession, error)
}

type PracticeHandler struct {
	practice PracticeService
	log      *zap.Logger
}

func NewPracticeHandler(practice PracticeService, log *zap.Logger) *PracticeHandler {
	return &PracticeHandler{practice: practice, log: logger.OrNop(log)}
}

func (h *PracticeHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Use(g.authed()...)
	r.Post("/", h.record)
	r.Get("/", h.list)
}

func (h *PracticeHandler) record(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req service.RecordPracticeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	session, err := h.practice.Record(r.Context(), userID, req)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, session)
}

func (h *PracticeHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	sessions, err := h.practice.List(r.Context(), userID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, sessions)
}
