// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/wfunc/territory/network"
)

// Session is one live connection as seen by a room.
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	lastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
	}
}

func (s *Session) Send(data []byte) error {
	s.Touch()
	return s.Conn.Send(data)
}

func (s *Session) GetID() string {
	return s.ID
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Manager is the connection registry of a single room: the live set plus a
// session<->nickname binding kept in lockstep in both directions.
type Manager struct {
	sessions  map[string]*Session // session ID -> session
	nicknames map[string]string   // session ID -> nickname
	owners    map[string]string   // nickname -> session ID
	mutex     sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		nicknames: make(map[string]string),
		owners:    make(map[string]string),
	}
}

// Add registers a live session with no binding.
func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

// Remove drops a session from the live set. Bindings are left to Unbind.
func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// Bind associates a session with a nickname, replacing the session's previous
// nickname and detaching the nickname from any other session.
func (m *Manager) Bind(sessionID, nickname string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if prev, ok := m.nicknames[sessionID]; ok {
		delete(m.owners, prev)
	}
	if other, ok := m.owners[nickname]; ok {
		delete(m.nicknames, other)
	}

	m.nicknames[sessionID] = nickname
	m.owners[nickname] = sessionID
}

// Unbind removes and returns the nickname bound to a session.
func (m *Manager) Unbind(sessionID string) (string, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	nickname, ok := m.nicknames[sessionID]
	if !ok {
		return "", false
	}
	delete(m.nicknames, sessionID)
	delete(m.owners, nickname)
	return nickname, true
}

func (m *Manager) NicknameOf(sessionID string) (string, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	nickname, ok := m.nicknames[sessionID]
	return nickname, ok
}

func (m *Manager) SessionOf(nickname string) (string, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	sessionID, ok := m.owners[nickname]
	return sessionID, ok
}

func (m *Manager) LiveCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// Sessions returns a snapshot of the live set.
func (m *Manager) Sessions() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return lo.Values(m.sessions)
}

// SendTo delivers one frame to a single live session.
func (m *Manager) SendTo(sessionID string, data []byte) error {
	session, ok := m.Get(sessionID)
	if !ok {
		return network.ErrConnectionClosed
	}
	return session.Send(data)
}

// Broadcast sends data to every live session. A session whose send fails is
// removed from the live set and closed; delivery to the others continues.
// The IDs of evicted sessions are returned.
func (m *Manager) Broadcast(data []byte) []string {
	return m.forEachEvicting(func(s *Session) error {
		return s.Send(data)
	})
}

// PingAll sends a keepalive to every live session, evicting the ones that fail.
func (m *Manager) PingAll() []string {
	return m.forEachEvicting(func(s *Session) error {
		return s.Conn.Ping()
	})
}

func (m *Manager) forEachEvicting(fn func(*Session) error) []string {
	var evicted []string
	for _, s := range m.Sessions() {
		if err := fn(s); err != nil {
			m.Remove(s.ID)
			s.Close()
			evicted = append(evicted, s.ID)
		}
	}
	return evicted
}
