package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"preecode/internal/common"
	"preecode/internal/domain/model"
	"preecode/internal/domain/repository"
	"preecode/internal/platform/metrics"
)

type SubmissionService struct {
	submissionRepo repository.SubmissionRepository
	cache          StatsCache
	queue          RefreshQueue
	metrics        *metrics.Metrics
	log            *zap.Logger
	now            func() time.Time
}

func NewSubmissionService(
	subRepo repository.SubmissionRepository,
	cache StatsCache,
	queue RefreshQueue,
	m *metrics.Metrics,
	log *zap.Logger,
) *SubmissionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SubmissionService{
		submissionRepo: subRepo,
		cache:          cache,
		queue:          queue,
		metrics:        m,
		log:            log,
		now:            time.Now,
	}
}

// AddSubmissionRequest is what the editor extension posts after a run.
// Difficulty and Status are free text and normalised on the way in.
type AddSubmissionRequest struct {
	ProblemName string `json:"problemName" validate:"required,max=200"`
	Difficulty  string `json:"difficulty" validate:"max=32"`
	Status      string `json:"status" validate:"max=64"`
	Topic       string `json:"topic" validate:"max=64"`
	TimeTaken   string `json:"timeTaken" validate:"max=16"`
}

func (s *SubmissionService) Add(ctx context.Context, userID string, req AddSubmissionRequest) (*model.Submission, error) {
	problemName := strings.TrimSpace(req.ProblemName)
	if userID == "" || problemName == "" {
		return nil, common.Errorf("problem name required: %w", common.ErrBadRequest)
	}

	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = model.DefaultTopic
	}
	timeTaken := strings.TrimSpace(req.TimeTaken)
	if timeTaken == "" {
		timeTaken = model.DefaultTimeTaken
	}

	sub := &model.Submission{
		ID:          uuid.NewString(),
		UserID:      userID,
		ProblemName: problemName,
		Difficulty:  model.ParseDifficulty(req.Difficulty),
		Status:      model.ParseStatus(req.Status),
		Topic:       topic,
		TimeTaken:   timeTaken,
		SubmittedAt: s.now().UTC(),
	}

	if err := s.submissionRepo.CreateWithCounters(ctx, sub); err != nil {
		return nil, common.Errorf("failed to record submission: %w", err)
	}
	s.metrics.ObserveSubmission(string(sub.Difficulty), string(sub.Status))
	s.statsChanged(ctx, userID)

	s.log.Info("submission recorded",
		zap.String("user_id", userID),
		zap.String("submission_id", sub.ID),
		zap.String("difficulty", string(sub.Difficulty)),
		zap.String("status", string(sub.Status)),
	)
	return sub, nil
}

// ListForUser returns userID's submissions, newest first. Only the owner may
// list them.
func (s *SubmissionService) ListForUser(ctx context.Context, requesterID, userID string) ([]model.Submission, error) {
	if requesterID != userID {
		return nil, common.Errorf("submissions belong to another user: %w", common.ErrForbidden)
	}
	subs, err := s.submissionRepo.ListByUser(ctx, userID, 0)
	if err != nil {
		return nil, common.Errorf("failed to list submissions: %w", err)
	}
	return subs, nil
}

// statsChanged drops the cached view and asks the worker for a fresh one.
// Failures only delay the refresh, so they are logged, not returned.
func (s *SubmissionService) statsChanged(ctx context.Context, userID string) {
	invalidateAndEnqueue(ctx, s.cache, s.queue, s.log, userID)
}

func invalidateAndEnqueue(ctx context.Context, cache StatsCache, queue RefreshQueue, log *zap.Logger, userID string) {
	if cache != nil {
		if err := cache.Invalidate(ctx, userID); err != nil {
			log.Warn("stats cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if queue != nil {
		if err := queue.Enqueue(ctx, userID); err != nil {
			log.Warn("stats refresh enqueue failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}
