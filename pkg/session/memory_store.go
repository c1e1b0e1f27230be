package session

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory. It is meant for tests and
// single-instance deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]map[string]struct{}
}

// NewMemoryStore creates an empty in-process Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

// Create inserts a copy of s. It fails with ErrAlreadyExists if the ID is taken.
func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return ErrInvalidSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return ErrAlreadyExists
	}

	stored := s.Clone()
	stored.Version = 1
	m.sessions[s.ID] = stored

	ids, ok := m.byUser[s.UserID]
	if !ok {
		ids = make(map[string]struct{})
		m.byUser[s.UserID] = ids
	}
	ids[s.ID] = struct{}{}

	s.Version = stored.Version
	return nil
}

// Get returns a copy of the stored session or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// Update runs fn without holding the lock and swaps the result in only if
// the stored version is unchanged.
func (m *MemoryStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	current, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.UserID = current.UserID
	next.Version = current.Version + 1

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if stored.Version != current.Version {
		return nil, ErrConflict
	}

	m.sessions[id] = next.Clone()
	return next, nil
}

// ListActive returns the user's sessions that have not been revoked, oldest first.
func (m *MemoryStore) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Session, 0, len(m.byUser[userID]))
	for id := range m.byUser[userID] {
		if s := m.sessions[id]; s != nil && s.IsActive {
			result = append(result, s.Clone())
		}
	}

	SortByCreation(result)
	return result, nil
}

// Delete removes the session. Missing IDs are not an error.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)

	if ids := m.byUser[s.UserID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(m.byUser, s.UserID)
		}
	}
	return nil
}

// ListExpiredBefore returns the IDs of sessions whose purge time is before ts.
func (m *MemoryStore) ListExpiredBefore(ctx context.Context, ts time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, s := range m.sessions {
		if s.PurgeAt().Before(ts) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Len returns the number of stored records, active or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SortByCreation orders sessions oldest first with ties broken by id.
func SortByCreation(sessions []*Session) {
	slices.SortFunc(sessions, func(a, b *Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
