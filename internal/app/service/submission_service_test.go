package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"preecode/internal/common"
	"preecode/internal/domain/model"
	"preecode/internal/platform/metrics"
)

func newSubmissionFixture() (*SubmissionService, *fakeUserRepo, *fakeSubmissionRepo, *fakeStatsCache, *fakeQueue) {
	users := newFakeUserRepo(&model.User{ID: "u1", Username: "ada", Email: "ada@example.com"})
	subs := &fakeSubmissionRepo{users: users}
	cache := newFakeStatsCache()
	queue := &fakeQueue{}
	svc := NewSubmissionService(subs, cache, queue, metrics.New(), nil)
	return svc, users, subs, cache, queue
}

func TestAddSubmissionNormalisesInput(t *testing.T) {
	svc, users, _, cache, queue := newSubmissionFixture()
	ctx := context.Background()

	sub, err := svc.Add(ctx, "u1", AddSubmissionRequest{
		ProblemName: "  Two Sum ",
		Difficulty:  "MEDIUM",
		Status:      "Accepted",
	})
	require.NoError(t, err)

	assert.Equal(t, "Two Sum", sub.ProblemName)
	assert.Equal(t, model.DifficultyMedium, sub.Difficulty)
	assert.Equal(t, model.StatusAccepted, sub.Status)
	assert.Equal(t, model.DefaultTopic, sub.Topic)
	assert.Equal(t, model.DefaultTimeTaken, sub.TimeTaken)
	assert.False(t, sub.SubmittedAt.IsZero())

	agg, err := users.GetAggregate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.UserAggregate{TotalSolved: 1, MediumSolved: 1}, agg)

	assert.Equal(t, []string{"u1"}, cache.invalidated)
	assert.Equal(t, []string{"u1"}, queue.ids)
}

func TestAddSubmissionCountsOnlyAccepted(t *testing.T) {
	svc, users, _, _, _ := newSubmissionFixture()
	ctx := context.Background()

	reqs := []AddSubmissionRequest{
		{ProblemName: "a", Difficulty: "easy", Status: "accepted"},
		{ProblemName: "b", Difficulty: "hard", Status: "wrong answer"},
		{ProblemName: "c", Difficulty: "hard", Status: "Correct"},
		{ProblemName: "d", Difficulty: "unknown", Status: "ACCEPTED"},
	}
	for _, req := range reqs {
		_, err := svc.Add(ctx, "u1", req)
		require.NoError(t, err)
	}

	agg, err := users.GetAggregate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, agg.TotalSolved)
	assert.Equal(t, 2, agg.EasySolved)
	assert.Equal(t, 1, agg.HardSolved)
	assert.Equal(t, agg.TotalSolved, agg.EasySolved+agg.MediumSolved+agg.HardSolved)
}

func TestAddSubmissionRejectsEmptyProblem(t *testing.T) {
	svc, _, subs, _, queue := newSubmissionFixture()

	_, err := svc.Add(context.Background(), "u1", AddSubmissionRequest{ProblemName: "   "})

	assert.ErrorIs(t, err, common.ErrBadRequest)
	assert.Empty(t, subs.subs)
	assert.Empty(t, queue.ids)
}

func TestAddSubmissionUnknownUser(t *testing.T) {
	svc, _, _, _, _ := newSubmissionFixture()

	_, err := svc.Add(context.Background(), "ghost", AddSubmissionRequest{ProblemName: "x"})

	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAddSubmissionSurvivesQueueFailure(t *testing.T) {
	svc, _, _, _, queue := newSubmissionFixture()
	queue.err = errors.New("redis down")

	_, err := svc.Add(context.Background(), "u1", AddSubmissionRequest{ProblemName: "x", Status: "accepted"})

	assert.NoError(t, err)
}

func TestListForUserIsSelfOnly(t *testing.T) {
	svc, _, _, _, _ := newSubmissionFixture()
	ctx := context.Background()
	_, err := svc.Add(ctx, "u1", AddSubmissionRequest{ProblemName: "x"})
	require.NoError(t, err)

	subs, err := svc.ListForUser(ctx, "u1", "u1")
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	_, err = svc.ListForUser(ctx, "u2", "u1")
	assert.ErrorIs(t, err, common.ErrForbidden)
}
