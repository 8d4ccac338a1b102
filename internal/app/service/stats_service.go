package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"preecode/internal/common"
	"preecode/internal/domain/repository"
	"preecode/internal/domain/stats"
)

const (
	// Accuracy and streak are derived from this many most recent submissions.
	statsSubmissionWindow = 1000
	statsPracticeWindow   = 200
	weakTopicLimit        = 5
)

// StatsCache stores derived views. Every Invalidate bumps a per-user
// generation, and SetIfGeneration refuses views computed before the bump.
type StatsCache interface {
	Get(ctx context.Context, userID string) (*stats.View, bool, error)
	Generation(ctx context.Context, userID string) (int64, error)
	SetIfGeneration(ctx context.Context, userID string, gen int64, view *stats.View) (bool, error)
	Invalidate(ctx context.Context, userID string) error
}

type RefreshQueue interface {
	Enqueue(ctx context.Context, userID string) error
}

type StatsService struct {
	userRepo       repository.UserRepository
	submissionRepo repository.SubmissionRepository
	practiceRepo   repository.PracticeRepository
	cache          StatsCache
	log            *zap.Logger
	now            func() time.Time
}

func NewStatsService(
	userRepo repository.UserRepository,
	subRepo repository.SubmissionRepository,
	practiceRepo repository.PracticeRepository,
	cache StatsCache,
	log *zap.Logger,
) *StatsService {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatsService{
		userRepo:       userRepo,
		submissionRepo: subRepo,
		practiceRepo:   practiceRepo,
		cache:          cache,
		log:            log,
		now:            time.Now,
	}
}

// Get returns the stats view for userID. Only the owner may read it.
func (s *StatsService) Get(ctx context.Context, requesterID, userID string) (*stats.View, error) {
	if userID == "" {
		return nil, common.Errorf("user id required: %w", common.ErrBadRequest)
	}
	if requesterID != userID {
		return nil, common.Errorf("stats belong to another user: %w", common.ErrForbidden)
	}

	if s.cache != nil {
		view, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.log.Warn("stats cache read failed", zap.String("user_id", userID), zap.Error(err))
		} else if ok {
			return view, nil
		}
	}
	return s.Refresh(ctx, userID)
}

// Refresh recomputes the view and caches it, unless a write invalidated the
// user while it was being computed.
func (s *StatsService) Refresh(ctx context.Context, userID string) (*stats.View, error) {
	var gen int64
	cacheable := s.cache != nil
	if cacheable {
		var err error
		if gen, err = s.cache.Generation(ctx, userID); err != nil {
			s.log.Warn("stats cache generation read failed", zap.String("user_id", userID), zap.Error(err))
			cacheable = false
		}
	}

	view, err := s.Compute(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cacheable {
		stored, err := s.cache.SetIfGeneration(ctx, userID, gen, view)
		switch {
		case err != nil:
			s.log.Warn("stats cache write failed", zap.String("user_id", userID), zap.Error(err))
		case !stored:
			s.log.Debug("stale stats view not cached", zap.String("user_id", userID), zap.Int64("generation", gen))
		}
	}
	return view, nil
}

// Compute loads every input and runs the aggregator. Any upstream failure
// fails the whole computation; there are no partial views.
func (s *StatsService) Compute(ctx context.Context, userID string) (*stats.View, error) {
	agg, err := s.userRepo.GetAggregate(ctx, userID)
	if err != nil {
		return nil, common.Errorf("load aggregate: %w", err)
	}
	subs, err := s.submissionRepo.ListByUser(ctx, userID, statsSubmissionWindow)
	if err != nil {
		return nil, common.Errorf("load submissions: %w", err)
	}
	practices, err := s.practiceRepo.ListByUser(ctx, userID, statsPracticeWindow)
	if err != nil {
		return nil, common.Errorf("load practice sessions: %w", err)
	}
	weak, err := s.submissionRepo.WeakTopics(ctx, userID, weakTopicLimit)
	if err != nil {
		return nil, common.Errorf("load weak topics: %w", err)
	}

	now := s.now()
	view := stats.Compute(stats.Input{
		Submissions: subs,
		Practices:   practices,
		Aggregate:   agg,
		Streak:      stats.CurrentStreak(subs, now),
		WeakTopics:  weak,
		Now:         now,
	})
	return &view, nil
}
