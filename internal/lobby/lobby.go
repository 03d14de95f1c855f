package lobby

import (
	"time"
)

// GameType identifies which engine owns a lobby.
type GameType string

const (
	Poker GameType = "poker"
	Uno   GameType = "uno"
)

// Phase is the lifecycle state of a lobby.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// Cosmetics holds the opaque equipped cosmetic identifiers for a player.
type Cosmetics struct {
	CardBack   string `json:"cardBack,omitempty"`
	TableTheme string `json:"tableTheme,omitempty"`
}

// Player is a seated lobby member. Game-specific state (stacks, hands) lives
// in the owning engine.
type Player struct {
	ID        string
	Seat      int
	Nickname  string
	Avatar    string
	Connected bool
	LastSeen  time.Time
	Cosmetics Cosmetics
}

// Celebration describes a one-shot win effect. The ID is stable so broadcast
// can dedupe emission per viewer.
type Celebration struct {
	ID        string    `json:"id"`
	WinnerID  string    `json:"winnerId"`
	EffectID  string    `json:"effectId"`
	CreatedAt time.Time `json:"createdAt"`
}

// OneShot is a server-pushed event that must reach each viewer at most once.
// The ID is stable across rebroadcasts so the emitter can dedupe.
type OneShot struct {
	ID      string      `json:"id"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// fxCap bounds retained one-shot events per lobby.
const fxCap = 16

// Lobby is the state shared by both game engines: membership, phase,
// versioning and the bounded action log.
type Lobby struct {
	Code         string
	GameType     GameType
	HostID       string
	Players      []*Player
	Phase        Phase
	MaxPlayers   int
	Public       bool
	Version      uint64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Log          ActionLog
	RewardIssued bool
	Celebration  *Celebration
	FX           []OneShot
}

// PushFX records a one-shot event for broadcast, discarding the oldest past
// the cap.
func (l *Lobby) PushFX(fx OneShot) {
	l.FX = append(l.FX, fx)
	if len(l.FX) > fxCap {
		l.FX = l.FX[len(l.FX)-fxCap:]
	}
}

// New creates an empty lobby in the lobby phase.
func New(code string, gt GameType, hostID string, maxPlayers int, public bool) *Lobby {
	now := time.Now()
	return &Lobby{
		Code:       code,
		GameType:   gt,
		HostID:     hostID,
		Phase:      PhaseLobby,
		MaxPlayers: maxPlayers,
		Public:     public,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Bump advances the monotonic version. Every observable mutation must call it.
func (l *Lobby) Bump() uint64 {
	l.Version++
	l.UpdatedAt = time.Now()
	return l.Version
}

// PlayerByID returns the seated player with the given identity, or nil.
func (l *Lobby) PlayerByID(id string) *Player {
	for _, p := range l.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// IsFull reports whether the lobby is at its player cap.
func (l *Lobby) IsFull() bool {
	return len(l.Players) >= l.MaxPlayers
}

// ConnectedCount returns the number of connected seated players.
func (l *Lobby) ConnectedCount() int {
	n := 0
	for _, p := range l.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// AddPlayer seats a player at the next dense seat index.
func (l *Lobby) AddPlayer(p *Player) error {
	if l.IsFull() {
		return E(ErrCapacity, "lobby %s is full", l.Code)
	}
	if l.PlayerByID(p.ID) != nil {
		return E(ErrInvalidAction, "player %s already seated", p.ID)
	}
	p.Seat = len(l.Players)
	p.Connected = true
	p.LastSeen = time.Now()
	l.Players = append(l.Players, p)
	return nil
}

// RemovePlayer unseats a player and re-densifies seat indices. Only legal in
// the lobby phase; during a hand seats are frozen and the engine decides how
// to retire the seat.
func (l *Lobby) RemovePlayer(id string) bool {
	for i, p := range l.Players {
		if p.ID == id {
			l.Players = append(l.Players[:i], l.Players[i+1:]...)
			for seat, q := range l.Players {
				q.Seat = seat
			}
			return true
		}
	}
	return false
}

// Reset returns a public lobby to an empty lobby phase with fresh state.
func (l *Lobby) Reset() {
	l.Players = nil
	l.Phase = PhaseLobby
	l.HostID = ""
	l.RewardIssued = false
	l.Celebration = nil
	l.Log = ActionLog{}
	l.FX = nil
	l.Bump()
}
