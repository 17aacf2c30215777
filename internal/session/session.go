// Package session keeps per-visitor state: which uploaded database the next
// question runs against.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sqlask/sqlask/internal/query"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	database *query.Source
	lastSeen time.Time
	inFlight int
}

// Database returns the current upload reference, or false before the first upload.
func (s *Session) Database() (query.Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.database == nil {
		return query.Source{}, false
	}
	return *s.database, true
}

// SetDatabase replaces the upload reference and returns the one it replaced.
func (s *Session) SetDatabase(source query.Source) (query.Source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.database
	s.database = &source
	if previous == nil {
		return query.Source{}, false
	}
	return *previous, true
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// idleBefore reports whether the session is unused and was last seen before cutoff.
func (s *Session) idleBefore(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight == 0 && s.lastSeen.Before(cutoff)
}

// Manager is an in-memory session registry.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewManager() *Manager {
	return &Manager{sessions: map[string]*Session{}, now: time.Now}
}

func (m *Manager) Create() *Session {
	now := m.now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(now)
}

func (m *Manager) Get(id string) (*Session, error) {
	now := m.now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	sess.touch(now)
	return sess, nil
}

// GetOrCreate returns the session for id, or a new session when id is empty,
// malformed or unknown. created reports whether a new session was made.
func (m *Manager) GetOrCreate(id string) (sess *Session, created bool) {
	now := m.now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(id, now)
}

// Checkout is GetOrCreate for the duration of a request: the session is
// marked in use and Sweep skips it until the matching Checkin.
func (m *Manager) Checkout(id string) (sess *Session, created bool) {
	now := m.now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, created = m.getOrCreateLocked(id, now)
	sess.mu.Lock()
	sess.inFlight++
	sess.mu.Unlock()
	return sess, created
}

// Checkin ends a Checkout. The idle clock restarts from now.
func (m *Manager) Checkin(sess *Session) {
	if sess == nil {
		return
	}
	now := m.now().UTC()
	sess.mu.Lock()
	if sess.inFlight > 0 {
		sess.inFlight--
	}
	sess.lastSeen = now
	sess.mu.Unlock()
}

func (m *Manager) getOrCreateLocked(id string, now time.Time) (*Session, bool) {
	if _, err := uuid.Parse(id); err == nil {
		if sess, ok := m.sessions[id]; ok {
			sess.touch(now)
			return sess, false
		}
	}
	return m.createLocked(now), true
}

func (m *Manager) createLocked(now time.Time) *Session {
	sess := &Session{ID: uuid.NewString(), CreatedAt: now, lastSeen: now}
	m.sessions[sess.ID] = sess
	return sess
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than maxIdle and returns them, oldest first,
// so the caller can release their uploads. Checked-out sessions are never idle.
func (m *Manager) Sweep(maxIdle time.Duration) []*Session {
	cutoff := m.now().UTC().Add(-maxIdle)

	m.mu.Lock()
	var removed []*Session
	for id, sess := range m.sessions {
		if sess.idleBefore(cutoff) {
			removed = append(removed, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	sort.Slice(removed, func(i, j int) bool {
		return removed[i].LastSeen().Before(removed[j].LastSeen())
	})
	return removed
}
