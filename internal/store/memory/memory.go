// Package memory implements every store port in process memory. It backs
// the "memory" data backend and the tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"foodbudget/internal/core"
	"foodbudget/internal/store"
)

type Store struct {
	mu       sync.Mutex
	records  map[string]core.Expense
	settings *core.Settings
	users    map[string]*core.User
	pending  map[string]store.PendingExpense
	now      func() time.Time
}

var (
	_ store.RecordStore   = (*Store)(nil)
	_ store.SettingsStore = (*Store)(nil)
	_ store.UserStore     = (*Store)(nil)
	_ store.PendingCache  = (*Store)(nil)
)

func New() *Store {
	return &Store{
		records: make(map[string]core.Expense),
		users:   make(map[string]*core.User),
		pending: make(map[string]store.PendingExpense),
		now:     time.Now,
	}
}

// QueryByDateRange returns records dated start..end inclusive, oldest first.
func (s *Store) QueryByDateRange(_ context.Context, start, end core.Date) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0)
	for _, e := range s.records {
		if e.Date.Before(start) || e.Date.After(end) {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b core.Expense) int {
		if c := a.Date.Compare(b.Date.Time); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) Get(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, store.ErrNotFound)
	}
	return e, nil
}

func (s *Store) Create(_ context.Context, e core.Expense) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, exists := s.records[e.ID]; exists {
		return "", fmt.Errorf("expense %s: %w", e.ID, store.ErrConflict)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	s.records[e.ID] = e
	return e.ID, nil
}

func (s *Store) Update(_ context.Context, id string, patch core.ExpensePatch) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, store.ErrNotFound)
	}
	e = patch.Apply(e)
	s.records[id] = e
	return e, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("expense %s: %w", id, store.ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

func (s *Store) ReadSettings(_ context.Context) (core.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return core.DefaultSettings(), nil
	}
	return *s.settings, nil
}

func (s *Store) WriteSettings(_ context.Context, settings core.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &settings
	return nil
}

func (s *Store) CreateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("user %s: %w", u.Email, store.ErrConflict)
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, store.ErrNotFound)
}

func (s *Store) GetUserByID(_ context.Context, id string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

// Put stores e as unsynced, replacing any previous copy.
func (s *Store) Put(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		return store.ErrMissingID
	}
	s.pending[e.ID] = store.PendingExpense{Expense: e}
	return nil
}

func (s *Store) GetPending(_ context.Context, id string) (store.PendingExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return store.PendingExpense{}, fmt.Errorf("pending expense %s: %w", id, store.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]store.PendingExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.PendingExpense
	for _, p := range s.pending {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sortPending(out)
	return out, nil
}

// ListUnsynced returns up to limit unsynced entries, oldest first. A
// non-positive limit returns all of them.
func (s *Store) ListUnsynced(_ context.Context, limit int) ([]store.PendingExpense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.PendingExpense
	for _, p := range s.pending {
		if !p.Synced {
			out = append(out, p)
		}
	}
	sortPending(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkSynced(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return fmt.Errorf("pending expense %s: %w", id, store.ErrNotFound)
	}
	p.Synced = true
	p.LastError = ""
	p.SyncedAt = s.now().UTC()
	s.pending[id] = p
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return fmt.Errorf("pending expense %s: %w", id, store.ErrNotFound)
	}
	p.Attempts++
	p.LastError = reason
	s.pending[id] = p
	return nil
}

func sortPending(ps []store.PendingExpense) {
	slices.SortFunc(ps, func(a, b store.PendingExpense) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
