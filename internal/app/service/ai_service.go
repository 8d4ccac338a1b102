package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"preecode/internal/common"
	"preecode/internal/platform/llm"
	"preecode/internal/platform/metrics"
)

const (
	AIKindChat   = "chat"
	AIKindHint   = "hint"
	AIKindReview = "review"
)

type AIService struct {
	llm     llm.Completer
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewAIService accepts a nil completer; every call then fails with
// common.ErrServiceUnavailable.
func NewAIService(completer llm.Completer, m *metrics.Metrics, log *zap.Logger) *AIService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AIService{llm: completer, metrics: m, log: log}
}

type ChatRequest struct {
	Message string `json:"message" validate:"required,max=8000"`
	Context string `json:"context" validate:"max=16000"`
}

type HintRequest struct {
	ProblemDescription string `json:"problemDescription" validate:"required,max=16000"`
	Language           string `json:"language" validate:"max=32"`
}

type ReviewRequest struct {
	Code               string `json:"code" validate:"required,max=50000"`
	Language           string `json:"language" validate:"max=32"`
	ProblemDescription string `json:"problemDescription" validate:"max=16000"`
}

type AIResponse struct {
	Response string `json:"response"`
}

func (s *AIService) Chat(ctx context.Context, req ChatRequest) (*AIResponse, error) {
	var b strings.Builder
	b.WriteString("You are Preecode AI, a helpful coding assistant.\n")
	b.WriteString("You help users with programming questions, debugging, and learning concepts.\n")
	b.WriteString("Be concise and practical. Use code examples when helpful.\n")
	if c := strings.TrimSpace(req.Context); c != "" {
		b.WriteString("Context: " + c + "\n")
	}
	b.WriteString("\nUser: " + req.Message)
	return s.complete(ctx, AIKindChat, b.String(), 0.7)
}

func (s *AIService) Hint(ctx context.Context, req HintRequest) (*AIResponse, error) {
	prompt := fmt.Sprintf(`Given this programming problem, provide a helpful hint that guides the student toward the solution without giving away the answer.

Problem: %s
Language: %s

Provide:
1. A conceptual hint about the approach
2. The key data structure or algorithm to consider
3. A small nudge about the first step

Do NOT provide the full solution.`, req.ProblemDescription, orDefault(req.Language, "any"))
	return s.complete(ctx, AIKindHint, prompt, 0.6)
}

func (s *AIService) Review(ctx context.Context, req ReviewRequest) (*AIResponse, error) {
	problem := ""
	if p := strings.TrimSpace(req.ProblemDescription); p != "" {
		problem = "Problem: " + p
	}
	prompt := fmt.Sprintf(`You are a code reviewer. Analyze this %s and provide a concise review.

%s

Code:
%s

Respond in this format:

Correctness:
<2 sentences max>

Edge Cases:
<2 sentences max>

Time Complexity:
<1-2 sentences>

Code Quality:
<2 sentences max>

Suggestions:
<2-3 bullet points for improvement, or "No improvements needed">

Final Verdict:
<Correct / Partially Correct / Needs Improvement>`, orDefault(req.Language, "code"), problem, req.Code)
	return s.complete(ctx, AIKindReview, prompt, 0.4)
}

func (s *AIService) complete(ctx context.Context, kind, prompt string, temperature float64) (resp *AIResponse, err error) {
	defer func() { s.metrics.ObserveAI(kind, err) }()

	if s.llm == nil {
		return nil, common.Errorf("AI is not configured: %w", common.ErrServiceUnavailable)
	}
	out, err := s.llm.Complete(ctx, prompt, llm.Options{Temperature: temperature, MaxTokens: llm.DefaultMaxTokens})
	if err != nil {
		s.log.Error("ai completion failed", zap.String("kind", kind), zap.Error(err))
		return nil, common.Errorf("AI service error: %w", common.ErrServiceUnavailable)
	}
	return &AIResponse{Response: out}, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
