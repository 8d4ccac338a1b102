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
)

const practiceListLimit = 100

type PracticeService struct {
	practiceRepo repository.PracticeRepository
	cache        StatsCache
	queue        RefreshQueue
	log          *zap.Logger
	now          func() time.Time
}

func NewPracticeService(repo repository.PracticeRepository, cache StatsCache, queue RefreshQueue, log *zap.Logger) *PracticeService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PracticeService{practiceRepo: repo, cache: cache, queue: queue, log: log, now: time.Now}
}

type RecordPracticeRequest struct {
	Question       string     `json:"question" validate:"required,max=500"`
	Language       string     `json:"language" validate:"max=32"`
	TimeTaken      string     `json:"timeTaken" validate:"max=16"`
	HintsUsed      int        `json:"hintsUsed" validate:"gte=0,lte=1000"`
	SolutionViewed bool       `json:"solutionViewed"`
	Date           *time.Time `json:"date"`
}

func (s *PracticeService) Record(ctx context.Context, userID string, req RecordPracticeRequest) (*model.PracticeSession, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, common.Errorf("question required: %w", common.ErrBadRequest)
	}
	if req.HintsUsed < 0 {
		return nil, common.Errorf("hintsUsed must be non-negative: %w", common.ErrBadRequest)
	}

	date := s.now().UTC()
	if req.Date != nil && !req.Date.IsZero() {
		date = req.Date.UTC()
	}
	timeTaken := strings.TrimSpace(req.TimeTaken)
	if timeTaken == "" {
		timeTaken = model.DefaultTimeTaken
	}

	p := &model.PracticeSession{
		ID:             uuid.NewString(),
		UserID:         userID,
		Question:       question,
		Language:       strings.TrimSpace(req.Language),
		TimeTaken:      timeTaken,
		HintsUsed:      req.HintsUsed,
		SolutionViewed: req.SolutionViewed,
		Date:           date,
	}
	if err := s.practiceRepo.Create(ctx, p); err != nil {
		return nil, common.Errorf("failed to record practice session: %w", err)
	}
	invalidateAndEnqueue(ctx, s.cache, s.queue, s.log, userID)
	return p, nil
}

func (s *PracticeService) List(ctx context.Context, userID string) ([]model.PracticeSession, error) {
	sessions, err := s.practiceRepo.ListByUser(ctx, userID, practiceListLimit)
	if err != nil {
		return nil, common.Errorf("failed to list practice sessions: %w", err)
	}
	return sessions, nil
}
