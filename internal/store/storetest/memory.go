// Package storetest provides an in-memory store.Repository for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/store"
)

var _ store.Repository = (*Memory)(nil)

// Memory is a concurrency-safe in-memory repository. Failures can be injected
// per method name with Fail.
type Memory struct {
	mu          sync.Mutex
	users       map[string]*domain.User
	profiles    map[string]*domain.Profile
	selections  []*domain.SelectionResult
	results     []*domain.AssessmentResult
	preferences []*domain.CareerPreference
	completed   map[string]map[string]domain.CompletedResource
	revoked     map[string]time.Time
	failures    map[string]error
	calls       map[string]int
	block       map[string]chan struct{}
}

// NewMemory returns an empty repository.
func NewMemory() *Memory {
	return &Memory{
		users:     make(map[string]*domain.User),
		profiles:  make(map[string]*domain.Profile),
		completed: make(map[string]map[string]domain.CompletedResource),
		revoked:   make(map[string]time.Time),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
		block:     make(map[string]chan struct{}),
	}
}

// Fail makes every call of method return err until cleared with a nil err.
func (m *Memory) Fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// Block makes calls of method wait until the returned func is called.
func (m *Memory) Block(method string) (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.block[method] = ch
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.block, method)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns how many times method was invoked.
func (m *Memory) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *Memory) enter(ctx context.Context, method string) error {
	m.mu.Lock()
	m.calls[method]++
	ch := m.block[method]
	err := m.failures[method]
	m.mu.Unlock()

	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// CreateUser implements store.Repository.
func (m *Memory) CreateUser(ctx context.Context, user *domain.User, profile *domain.Profile) error {
	if err := m.enter(ctx, "CreateUser"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return fmt.Errorf("insert user %s: %w", user.Email, domain.ErrConflict)
		}
	}
	u := *user
	m.users[user.UserID] = &u
	if profile != nil {
		p := *profile
		m.profiles[profile.UserID] = &p
	}
	return nil
}

// GetUser implements store.Repository.
func (m *Memory) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if err := m.enter(ctx, "GetUser"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	if u == nil {
		return nil, nil
	}
	copy := *u
	return &copy, nil
}

// GetUserByEmail implements store.Repository.
func (m *Memory) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := m.enter(ctx, "GetUserByEmail"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, nil
}

// GetProfile implements store.Repository.
func (m *Memory) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if err := m.enter(ctx, "GetProfile"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profiles[userID]
	if p == nil {
		return nil, nil
	}
	copy := *p
	return &copy, nil
}

// UpsertProfile implements store.Repository.
func (m *Memory) UpsertProfile(ctx context.Context, profile *domain.Profile) error {
	if err := m.enter(ctx, "UpsertProfile"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := *profile
	m.profiles[profile.UserID] = &p
	return nil
}

// InsertCareerSelection implements store.Repository.
func (m *Memory) InsertCareerSelection(ctx context.Context, sel *domain.SelectionResult) error {
	if err := m.enter(ctx, "InsertCareerSelection"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *sel
	m.selections = append(m.selections, &s)
	return nil
}

// LatestCareerSelection implements store.Repository.
func (m *Memory) LatestCareerSelection(ctx context.Context, userID string) (*domain.SelectionResult, error) {
	if err := m.enter(ctx, "LatestCareerSelection"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.selections) - 1; i >= 0; i-- {
		if m.selections[i].UserID == userID {
			s := *m.selections[i]
			return &s, nil
		}
	}
	return nil, nil
}

// InsertTestResult implements store.Repository.
func (m *Memory) InsertTestResult(ctx context.Context, result *domain.AssessmentResult) error {
	if err := m.enter(ctx, "InsertTestResult"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *result
	m.results = append(m.results, &r)
	return nil
}

// ListTestResults implements store.Repository.
func (m *Memory) ListTestResults(ctx context.Context, userID string) ([]*domain.AssessmentResult, error) {
	if err := m.enter(ctx, "ListTestResults"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.AssessmentResult
	for i := len(m.results) - 1; i >= 0; i-- {
		if m.results[i].UserID == userID {
			r := *m.results[i]
			out = append(out, &r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out, nil
}

// InsertCareerPreference implements store.Repository.
func (m *Memory) InsertCareerPreference(ctx context.Context, pref *domain.CareerPreference) error {
	if err := m.enter(ctx, "InsertCareerPreference"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := *pref
	m.preferences = append(m.preferences, &p)
	return nil
}

// LatestCareerPreference implements store.Repository.
func (m *Memory) LatestCareerPreference(ctx context.Context, userID string) (*domain.CareerPreference, error) {
	if err := m.enter(ctx, "LatestCareerPreference"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.preferences) - 1; i >= 0; i-- {
		if m.preferences[i].UserID == userID {
			p := *m.preferences[i]
			return &p, nil
		}
	}
	return nil, nil
}

// InsertCompletedResource implements store.Repository.
func (m *Memory) InsertCompletedResource(ctx context.Context, completed *domain.CompletedResource) error {
	if err := m.enter(ctx, "InsertCompletedResource"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser := m.completed[completed.UserID]
	if byUser == nil {
		byUser = make(map[string]domain.CompletedResource)
		m.completed[completed.UserID] = byUser
	}
	if _, exists := byUser[completed.ResourceID]; !exists {
		byUser[completed.ResourceID] = *completed
	}
	return nil
}

// ListCompletedResources implements store.Repository.
func (m *Memory) ListCompletedResources(ctx context.Context, userID string) ([]domain.CompletedResource, error) {
	if err := m.enter(ctx, "ListCompletedResources"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CompletedResource
	for _, c := range m.completed[userID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out, nil
}

// RevokeToken implements store.Repository.
func (m *Memory) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if err := m.enter(ctx, "RevokeToken"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[tokenID] = expiresAt
	return nil
}

// IsTokenRevoked implements store.Repository.
func (m *Memory) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	if err := m.enter(ctx, "IsTokenRevoked"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[tokenID]
	return ok, nil
}

// CleanupRevokedTokens implements store.Repository.
func (m *Memory) CleanupRevokedTokens(ctx context.Context, now time.Time) (int64, error) {
	if err := m.enter(ctx, "CleanupRevokedTokens"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, exp := range m.revoked {
		if exp.Before(now) {
			delete(m.revoked, id)
			n++
		}
	}
	return n, nil
}

// Ping implements store.Repository.
func (m *Memory) Ping(ctx context.Context) error { return m.enter(ctx, "Ping") }

// Close implements store.Repository.
func (m *Memory) Close() error { return nil }

// SeedUser adds a user and profile directly.
func (m *Memory) SeedUser(userID, email, fullName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.users[userID] = &domain.User{UserID: userID, Email: email, PasswordHash: "x", CreatedAt: now, UpdatedAt: now}
	m.profiles[userID] = &domain.Profile{UserID: userID, FullName: fullName, Age: 18, EducationLevel: "high-school", UpdatedAt: now}
}
