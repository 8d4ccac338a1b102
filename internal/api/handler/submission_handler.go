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

type SubmissionService interface {
	Add(ctx context.Context, userID string, req service.AddSubmissionRequest) (*model.Submission, error)
	ListForUser(ctx context.Context, requesterID, userID string) ([]model.Submission, error)
}

type SubmissionHandler struct {
	submissionService SubmissionService
	log               *zap.Logger
}

func NewSubmissionHandler(ss SubmissionService, log *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{submissionService: ss, log: logger.OrNop(log)}
}

func (h *SubmissionHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Use(g.authed()...) // All submission routes require auth
	r.Post("/", h.createSubmission)
	r.Get("/user/{id}", h.listForUser)
}

func (h *SubmissionHandler) createSubmission(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req service.AddSubmissionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	submission, err := h.submissionService.Add(r.Context(), userID, req)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, submission)
}

func (h *SubmissionHandler) listForUser(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	subs, err := h.submissionService.ListForUser(r.Context(), requesterID, id)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, subs)
}
