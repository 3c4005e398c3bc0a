package room

import (
	"sync"

	"github.com/samber/lo"
	"github.com/wfunc/territory/logger"
)

// Manager is the directory of rooms keyed by name.
type Manager struct {
	rooms    map[string]*Room
	options  Options
	maxRooms int
	pinned   map[string]bool
	closed   bool
	mutex    sync.RWMutex
}

// NewRoomManager creates a directory. maxRooms <= 0 means no limit. Rooms
// other than the pinned ones are released once their last session leaves.
func NewRoomManager(opts Options, maxRooms int, pinned ...string) *Manager {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Manager{
		rooms:    make(map[string]*Room),
		options:  opts,
		maxRooms: maxRooms,
		pinned:   lo.SliceToMap(pinned, func(name string) (string, bool) { return name, true }),
	}
}

// GetOrCreate returns the named room, starting it on first use.
func (m *Manager) GetOrCreate(name string) (*Room, error) {
	if room, ok := m.GetRoom(name); ok {
		return room, nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if room, ok := m.rooms[name]; ok {
		return room, nil
	}
	if m.closed {
		return nil, ErrRoomClosed
	}
	if m.maxRooms > 0 && len(m.rooms) >= m.maxRooms {
		return nil, ErrTooManyRooms
	}

	room := newRoom(name, m.options, m.release)
	m.rooms[name] = room
	m.options.Observer.SetActiveRooms(len(m.rooms))
	logger.Log.Infof("Room %s opened", name)
	return room, nil
}

func (m *Manager) GetRoom(name string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[name]
	return room, exists
}

// RemoveRoom closes a room and drops it from the directory.
func (m *Manager) RemoveRoom(name string) {
	m.mutex.Lock()
	room, exists := m.rooms[name]
	if exists {
		delete(m.rooms, name)
		m.options.Observer.SetActiveRooms(len(m.rooms))
	}
	m.mutex.Unlock()

	if exists {
		room.Close()
		logger.Log.Infof("Room %s closed", name)
	}
}

// release drops an idle room from the directory. A room that gained a session
// in the meantime is kept.
func (m *Manager) release(room *Room) {
	m.mutex.Lock()
	if m.pinned[room.Name] || m.rooms[room.Name] != room || !room.retire() {
		m.mutex.Unlock()
		return
	}
	delete(m.rooms, room.Name)
	m.options.Observer.SetActiveRooms(len(m.rooms))
	m.mutex.Unlock()

	room.Close()
	logger.Log.Infof("Room %s released after its last player left", room.Name)
}

// Rooms returns a snapshot of the directory.
func (m *Manager) Rooms() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return lo.Values(m.rooms)
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Close shuts down every room.
func (m *Manager) Close() {
	m.mutex.Lock()
	rooms := lo.Values(m.rooms)
	m.rooms = make(map[string]*Room)
	m.closed = true
	m.options.Observer.SetActiveRooms(0)
	m.mutex.Unlock()

	for _, room := range rooms {
		room.Close()
	}
}
