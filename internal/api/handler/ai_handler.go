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

type AIService interface {
	Chat(ctx context.Context, req service.ChatRequest) (*service.AIResponse, error)
	Hint(ctx context.Context, req service.HintRequest) (*service.AIResponse, error)
	Review(ctx context.Context, req service.ReviewRequest) (*service.AIResponse, error)
}

type AIHandler struct {
	ai  AIService
	log *zap.Logger
}

func NewAIHandler(ai AIService, log *zap.Logger) *AIHandler {
	return &AIHandler{ai: ai, log: logger.OrNop(log)}
}

func (h *AIHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Use(g.authed()...)
	r.Post("/chat", h.chat)
	r.Post("/hint", h.hint)
	r.Post("/review", h.review)
}

func (h *AIHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req service.ChatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.respond(w, func() (*service.AIResponse, error) { return h.ai.Chat(r.Context(), req) })
}

func (h *AIHandler) hint(w http.ResponseWriter, r *http.Request) {
	var req service.HintRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.respond(w, func() (*service.AIResponse, error) { return h.ai.Hint(r.Context(), req) })
}

func (h *AIHandler) review(w http.ResponseWriter, r *http.Request) {
	var req service.ReviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.respond(w, func() (*service.AIResponse, error) { return h.ai.Review(r.Context(), req) })
}

func (h *AIHandler) respond(w http.ResponseWriter, call func() (*service.AIResponse, error)) {
	resp, err := call()
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}
