// Package ownership enforces single-session-per-user both within one
// gateway instance (LocalMap) and across a fleet of instances (SessionManager,
// backed by Redis).
package ownership

import (
	"sync"

	"github.com/chirp-im/chirp/internal/transport"
)

// LocalMap tracks the single active session for each logged-in user within
// this process, plus the reverse index needed to clean up on a session's
// close callback without the caller having to remember which user it was.
type LocalMap struct {
	mu     sync.Mutex
	byUser map[string]transport.Session
	bySess map[transport.Session]string
}

// NewLocalMap builds an empty LocalMap.
func NewLocalMap() *LocalMap {
	return &LocalMap{
		byUser: make(map[string]transport.Session),
		bySess: make(map[transport.Session]string),
	}
}

// Set records sess as userID's active session, evicting any prior session
// for that user and returning it (nil if there was none).
func (m *LocalMap) Set(userID string, sess transport.Session) transport.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.byUser[userID]
	if prev != nil {
		delete(m.bySess, prev)
	}
	m.byUser[userID] = sess
	m.bySess[sess] = userID
	return prev
}

// Get returns the current session for userID, if any.
func (m *LocalMap) Get(userID string) (transport.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byUser[userID]
	return sess, ok
}

// RemoveSession drops sess from both indices if it is still the current
// session for its user; it is a no-op if a later login already replaced it.
// Returns the user ID it was associated with, if any.
func (m *LocalMap) RemoveSession(sess transport.Session) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.bySess[sess]
	if !ok {
		return "", false
	}
	delete(m.bySess, sess)
	if m.byUser[userID] == sess {
		delete(m.byUser, userID)
	}
	return userID, true
}

// Count returns the number of locally tracked sessions.
func (m *LocalMap) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byUser)
}
