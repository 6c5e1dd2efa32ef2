package session

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store keeps sessions in memory for the lifetime of the process.
//
// The store only guards its map. Two requests for the same session id must
// be serialized by the caller (see Locks); otherwise the later Commit wins.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the stored snapshot for id, creating an empty session
// on a miss. An empty id gets a fresh uuid.
func (st *Store) GetOrCreate(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}

	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s
	}
	s = New(id)
	st.sessions[id] = s
	return s
}

// Get returns the stored snapshot for id.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Commit stores s as the current snapshot of its session. s must not be
// modified afterwards.
func (st *Store) Commit(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

// Clear removes the session. Clearing an unknown id is a no-op.
func (st *Store) Clear(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Summary returns the summary of a stored session.
func (st *Store) Summary(id string) (Summary, bool) {
	s, ok := st.Get(id)
	if !ok {
		return Summary{}, false
	}
	return s.Summary(), true
}

// List returns summaries of all sessions, oldest first.
func (st *Store) List() []Summary {
	st.mu.RLock()
	out := make([]Summary, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s.Summary())
	}
	st.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of stored sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
