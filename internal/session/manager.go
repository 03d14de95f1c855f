package session

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/greenfelt/greenfelt/internal/lobby"
)

// Binding maps a transport connection to its authenticated user and lobby
// membership.
type Binding struct {
	ConnID    string
	UserID    string
	GameType  lobby.GameType
	LobbyCode string
}

type userKey struct {
	game lobby.GameType
	user string
}

type membership struct {
	game lobby.GameType
	code string
}

// Manager owns the session indices: connection to binding, (game, user) to
// connection, and user to active lobby. The last index enforces at most one
// active lobby per user across both games. All updates are atomic per key.
type Manager struct {
	mu     sync.Mutex
	clock  quartz.Clock
	logger *log.Logger
	grace  time.Duration

	byConn      map[string]Binding
	byUser      map[userKey]string
	active      map[string]membership
	graceTimers map[userKey]*quartz.Timer
}

// NewManager creates a session manager with the given reconnect grace window.
func NewManager(clock quartz.Clock, grace time.Duration, logger *log.Logger) *Manager {
	return &Manager{
		clock:       clock,
		logger:      logger.WithPrefix("session"),
		grace:       grace,
		byConn:      make(map[string]Binding),
		byUser:      make(map[userKey]string),
		active:      make(map[string]membership),
		graceTimers: make(map[userKey]*quartz.Timer),
	}
}

// Bind records a connection's lobby membership. Joining a different lobby
// while one is active is rejected; rebinding to the same lobby is a
// reconnect and cancels any pending grace timer. Returns whether this bind
// was a reconnect.
func (m *Manager) Bind(connID, userID string, gt lobby.GameType, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.active[userID]; ok && (cur.game != gt || cur.code != code) {
		return false, lobby.E(lobby.ErrAlreadyInLobby, "user %s already active in %s lobby %s", userID, cur.game, cur.code)
	}

	k := userKey{game: gt, user: userID}
	reconnect := false
	if timer, ok := m.graceTimers[k]; ok {
		timer.Stop()
		delete(m.graceTimers, k)
		reconnect = true
	}
	if old, ok := m.byUser[k]; ok && old != connID {
		// A newer connection replaces the old mapping.
		delete(m.byConn, old)
		reconnect = true
	}

	m.byConn[connID] = Binding{ConnID: connID, UserID: userID, GameType: gt, LobbyCode: code}
	m.byUser[k] = connID
	m.active[userID] = membership{game: gt, code: code}
	return reconnect, nil
}

// Lookup returns the binding for a connection.
func (m *Manager) Lookup(connID string) (Binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byConn[connID]
	return b, ok
}

// ActiveLobby returns the user's current lobby membership, if any.
func (m *Manager) ActiveLobby(userID string) (lobby.GameType, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.active[userID]
	return cur.game, cur.code, ok
}

// ConnIDs returns the connection ids of every bound member of a lobby.
func (m *Manager) ConnIDs(gt lobby.GameType, code string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, b := range m.byConn {
		if b.GameType == gt && b.LobbyCode == code {
			out = append(out, id)
		}
	}
	return out
}

// ConnFor returns the live connection id for a lobby member.
func (m *Manager) ConnFor(gt lobby.GameType, userID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byUser[userKey{game: gt, user: userID}]
	return id, ok
}

// Disconnect handles a transport drop. If the connection still owns the
// user mapping, a grace timer is armed; onExpire runs if it fires while the
// mapping is still stale. A disconnect from a connection that has already
// been replaced no-ops. Returns the binding and whether a timer was armed.
func (m *Manager) Disconnect(connID string, onExpire func(Binding)) (Binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.byConn[connID]
	if !ok {
		return Binding{}, false
	}
	delete(m.byConn, connID)

	k := userKey{game: b.GameType, user: b.UserID}
	if m.byUser[k] != connID {
		// A newer connection already took over; stale disconnect.
		return b, false
	}

	if timer, ok := m.graceTimers[k]; ok {
		timer.Stop()
	}
	m.graceTimers[k] = m.clock.AfterFunc(m.grace, func() {
		m.expire(k, connID, onExpire)
	})
	m.logger.Debug("Grace timer armed", "user", b.UserID, "lobby", b.LobbyCode)
	return b, true
}

// expire finalizes a leave after the grace window, unless the user
// reconnected in the meantime.
func (m *Manager) expire(k userKey, staleConnID string, onExpire func(Binding)) {
	m.mu.Lock()
	if m.byUser[k] != staleConnID {
		// Reconnected on a newer connection; nothing to do.
		m.mu.Unlock()
		return
	}
	delete(m.graceTimers, k)
	delete(m.byUser, k)
	cur, ok := m.active[k.user]
	if ok && cur.game == k.game {
		delete(m.active, k.user)
	}
	b := Binding{ConnID: staleConnID, UserID: k.user, GameType: k.game, LobbyCode: cur.code}
	m.mu.Unlock()

	m.logger.Info("Grace window expired", "user", k.user, "lobby", cur.code)
	if onExpire != nil {
		onExpire(b)
	}
}

// Clear removes a user's membership outright: explicit leave, kick, or
// lobby teardown. Any pending grace timer is cancelled.
func (m *Manager) Clear(userID string, gt lobby.GameType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := userKey{game: gt, user: userID}
	if timer, ok := m.graceTimers[k]; ok {
		timer.Stop()
		delete(m.graceTimers, k)
	}
	if connID, ok := m.byUser[k]; ok {
		delete(m.byConn, connID)
		delete(m.byUser, k)
	}
	if cur, ok := m.active[userID]; ok && cur.game == gt {
		delete(m.active, userID)
	}
}

// Shutdown cancels all pending grace timers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, timer := range m.graceTimers {
		timer.Stop()
		delete(m.graceTimers, k)
	}
}
