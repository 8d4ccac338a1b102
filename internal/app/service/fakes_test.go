package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"preecode/internal/common"
	"preecode/internal/domain/model"
	"preecode/internal/domain/stats"
	"preecode/internal/platform/llm"
	"preecode/internal/platform/oauth"
)

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
	opts    []llm.Options
}

func (c *fakeCompleter) Complete(_ context.Context, prompt string, opts llm.Options) (string, error) {
	c.prompts = append(c.prompts, prompt)
	c.opts = append(c.opts, opts)
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
	err   error
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	r := &fakeUserRepo{users: map[string]*model.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) clone(u *model.User) *model.User {
	c := *u
	return &c
}

func (r *fakeUserRepo) find(match func(*model.User) bool) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, u := range r.users {
		if match(u) {
			return r.clone(u), nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username || strings.EqualFold(u.Email, user.Email) {
			return common.ErrConflict
		}
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = r.clone(user)
	return nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id })
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *fakeUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Username == username })
}

func (r *fakeUserRepo) FindByProviderID(_ context.Context, provider, providerID string) (*model.User, error) {
	return r.find(func(u *model.User) bool {
		return u.Provider == provider && u.ProviderID != nil && *u.ProviderID == providerID
	})
}

func (r *fakeUserRepo) FindFirst(_ context.Context) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first *model.User
	for _, u := range r.users {
		if first == nil || u.CreatedAt.Before(first.CreatedAt) {
			first = u
		}
	}
	if first == nil {
		return nil, common.ErrNotFound
	}
	return r.clone(first), nil
}

func (r *fakeUserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := r.FindByUsername(ctx, username)
	if err == common.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r *fakeUserRepo) update(id string, fn func(*model.User) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return common.ErrNotFound
	}
	return fn(u)
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, user *model.User) error {
	r.mu.Lock()
	for id, u := range r.users {
		if id != user.ID && u.Username == user.Username {
			r.mu.Unlock()
			return common.ErrConflict
		}
	}
	r.mu.Unlock()
	return r.update(user.ID, func(u *model.User) error {
		u.Name, u.Username, u.Avatar = user.Name, user.Username, user.Avatar
		return nil
	})
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id, hashed string) error {
	return r.update(id, func(u *model.User) error { u.HashedPassword = hashed; return nil })
}

func (r *fakeUserRepo) UpdateNotificationPrefs(_ context.Context, id string, prefs model.NotificationPrefs) error {
	return r.update(id, func(u *model.User) error { u.NotificationPrefs = prefs; return nil })
}

func (r *fakeUserRepo) LinkProvider(_ context.Context, id, provider, providerID, avatar string) error {
	return r.update(id, func(u *model.User) error {
		u.Provider = provider
		u.ProviderID = &providerID
		if u.Avatar == "" {
			u.Avatar = avatar
		}
		return nil
	})
}

func (r *fakeUserRepo) ExtendEarlyAccess(_ context.Context, id string, until time.Time, badge string, sharedAt time.Time) error {
	return r.update(id, func(u *model.User) error {
		if u.SharedAt != nil {
			return common.ErrConflict
		}
		u.EarlyAccessUntil, u.FoundingBadgeLevel, u.SharedAt = &until, &badge, &sharedAt
		return nil
	})
}

func (r *fakeUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) GetAggregate(ctx context.Context, id string) (model.UserAggregate, error) {
	u, err := r.FindByID(ctx, id)
	if err != nil {
		return model.UserAggregate{}, err
	}
	return u.Aggregate(), nil
}

// fakeSubmissionRepo bumps counters on the shared user repo like the
// transactional Postgres version does.
type fakeSubmissionRepo struct {
	mu    sync.Mutex
	users *fakeUserRepo
	subs  []model.Submission
	err   error
}

func (r *fakeSubmissionRepo) CreateWithCounters(_ context.Context, sub *model.Submission) error {
	if r.err != nil {
		return r.err
	}
	if r.users != nil {
		err := r.users.update(sub.UserID, func(u *model.User) error {
			if sub.Status != model.StatusAccepted {
				return nil
			}
			u.TotalSolved++
			switch sub.Difficulty {
			case model.DifficultyMedium:
				u.MediumSolved++
			case model.DifficultyHard:
				u.HardSolved++
			default:
				u.EasySolved++
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, *sub)
	return nil
}

func (r *fakeSubmissionRepo) ListByUser(_ context.Context, userID string, limit int) ([]model.Submission, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Submission{}
	for _, s := range r.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeSubmissionRepo) WeakTopics(_ context.Context, userID string, limit int) ([]model.WeakTopic, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int{}
	for _, s := range r.subs {
		if s.UserID == userID && s.Status == model.StatusWrong {
			counts[s.Topic]++
		}
	}
	out := []model.WeakTopic{}
	for topic, n := range counts {
		out = append(out, model.WeakTopic{Topic: topic, WrongCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WrongCount != out[j].WrongCount {
			return out[i].WrongCount > out[j].WrongCount
		}
		return out[i].Topic < out[j].Topic
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakePracticeRepo struct {
	mu       sync.Mutex
	sessions []model.PracticeSession
	err      error
}

func (r *fakePracticeRepo) Create(_ context.Context, p *model.PracticeSession) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p.CreatedAt = time.Now()
	r.sessions = append(r.sessions, *p)
	return nil
}

func (r *fakePracticeRepo) ListByUser(_ context.Context, userID string, limit int) ([]model.PracticeSession, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.PracticeSession{}
	for _, p := range r.sessions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeStatsCache struct {
	mu          sync.Mutex
	views       map[string]*stats.View
	gens        map[string]int64
	gets        int
	invalidated []string
	err         error
	// afterGeneration runs once the generation has been read, standing in
	// for a write that lands while the view is being computed.
	afterGeneration func()
}

func newFakeStatsCache() *fakeStatsCache {
	return &fakeStatsCache{views: map[string]*stats.View{}, gens: map[string]int64{}}
}

func (c *fakeStatsCache) Get(_ context.Context, userID string) (*stats.View, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.views[userID]
	return v, ok, nil
}

func (c *fakeStatsCache) Generation(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	gen, err := c.gens[userID], c.err
	hook := c.afterGeneration
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if hook != nil {
		hook()
	}
	return gen, nil
}

func (c *fakeStatsCache) SetIfGeneration(_ context.Context, userID string, gen int64, view *stats.View) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if c.gens[userID] != gen {
		return false, nil
	}
	c.views[userID] = view
	return true, nil
}

func (c *fakeStatsCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, userID)
	c.gens[userID]++
	delete(c.views, userID)
	return c.err
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *fakeQueue) Enqueue(_ context.Context, userID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, userID)
	return nil
}

type fakeProvider struct {
	configured  bool
	identity    oauth.Identity
	exchangeErr error
	verifyErr   error
	lastState   string
}

func (p *fakeProvider) Configured() bool { return p.configured }

func (p *fakeProvider) AuthCodeURL(state string) string {
	p.lastState = state
	u := "https://accounts.google.com/o/oauth2/auth?client_id=test"
	if state != "" {
		u += "&state=" + state
	}
	return u
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (oauth.Identity, error) {
	if p.exchangeErr != nil {
		return oauth.Identity{}, p.exchangeErr
	}
	return p.identity, nil
}

func (p *fakeProvider) VerifyIDToken(_ context.Context, idToken string) (oauth.Identity, error) {
	if p.verifyErr != nil {
		return oauth.Identity{}, p.verifyErr
	}
	return p.identity, nil
}

type revokeCall struct {
	id  string
	ttl time.Duration
}

type fakeRevoker struct {
	revoked []revokeCall
	cutoffs map[string]time.Time
}

func (r *fakeRevoker) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	r.revoked = append(r.revoked, revokeCall{id: tokenID, ttl: ttl})
	return nil
}

func (r *fakeRevoker) SetCutoff(_ context.Context, userID string, at time.Time, _ time.Duration) error {
	if r.cutoffs == nil {
		r.cutoffs = map[string]time.Time{}
	}
	r.cutoffs[userID] = at
	return nil
}
