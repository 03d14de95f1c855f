package server

import (
	"context"
	"encoding/json"
	"fmt"
	rand "math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/greenfelt/greenfelt/internal/lobby"
	"github.com/greenfelt/greenfelt/internal/poker"
	"github.com/greenfelt/greenfelt/internal/session"
	"github.com/greenfelt/greenfelt/internal/uno"
)

// Sender delivers a message to a connection. The websocket server implements
// it; tests substitute a recorder.
type Sender interface {
	Send(connID string, msg *Message) error
}

// RewardSink receives terminal game transitions. The SQLite store implements
// it; awards run off the lobby lock.
type RewardSink interface {
	AwardPokerWin(ctx context.Context, userIDs []string) error
	AwardUnoWin(ctx context.Context, userIDs []string) error
	Cosmetics(ctx context.Context, userID string) lobby.Cosmetics
}

// Options carries dispatcher tunables.
type Options struct {
	Poker         poker.Config
	GraceWindow   time.Duration
	MaxPlayers    int
	PublicPerGame int
}

func (o Options) withDefaults() Options {
	if o.Poker.SmallBlind == 0 {
		o.Poker.SmallBlind = 5
	}
	if o.Poker.BigBlind == 0 {
		o.Poker.BigBlind = 10
	}
	if o.Poker.StartingStack == 0 {
		o.Poker.StartingStack = 1000
	}
	if o.Poker.TurnTimeout == 0 {
		o.Poker.TurnTimeout = 30 * time.Second
	}
	if o.GraceWindow == 0 {
		o.GraceWindow = 15 * time.Second
	}
	if o.MaxPlayers == 0 {
		o.MaxPlayers = 8
	}
	if o.PublicPerGame == 0 {
		o.PublicPerGame = 3
	}
	return o
}

// lobbyEntry pairs a lobby with its engine and broadcast bookkeeping. The
// mutex serializes every command against the lobby; engines are unguarded.
type lobbyEntry struct {
	mu         sync.Mutex
	gt         lobby.GameType
	core       *lobby.Lobby
	pg         *poker.Game
	ug         *uno.Game
	fxSent     map[string]map[string]bool // event id -> user id -> delivered
	choiceSent int                        // hand number the showdown choice went out for
	ended      bool
}

// Dispatcher validates command envelopes, executes them serially per lobby
// and fans out per-viewer snapshots after each accepted mutation.
type Dispatcher struct {
	mu      sync.RWMutex
	entries map[string]*lobbyEntry

	registry *lobby.Registry
	sessions *session.Manager
	sink     RewardSink
	sender   Sender
	clock    quartz.Clock
	newRNG   func() *rand.Rand
	logger   *log.Logger
	opts     Options
}

// NewDispatcher wires the dispatcher. sink may be nil when rewards are
// disabled. newRNG supplies a fresh source per lobby so seeded runs are
// reproducible per table.
func NewDispatcher(opts Options, registry *lobby.Registry, sessions *session.Manager, sink RewardSink, sender Sender, clock quartz.Clock, newRNG func() *rand.Rand, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		entries:  make(map[string]*lobbyEntry),
		registry: registry,
		sessions: sessions,
		sink:     sink,
		sender:   sender,
		clock:    clock,
		newRNG:   newRNG,
		logger:   logger.WithPrefix("dispatch"),
		opts:     opts.withDefaults(),
	}
}

// Bootstrap reserves and creates the fixed public lobbies. Their codes are
// never released and the lobbies are reset, not deleted, when emptied.
func (d *Dispatcher) Bootstrap() {
	for i := 1; i <= d.opts.PublicPerGame; i++ {
		d.bootstrapPublic(fmt.Sprintf("POKER_PUBLIC_%d", i), lobby.Poker)
		d.bootstrapPublic(fmt.Sprintf("UNO_PUBLIC_%d", i), lobby.Uno)
	}
}

func (d *Dispatcher) bootstrapPublic(code string, gt lobby.GameType) {
	if !d.registry.Reserve(code, gt) {
		return
	}
	d.mu.Lock()
	d.entries[code] = d.newEntry(code, gt, "", true)
	d.mu.Unlock()
	d.logger.Info("Public lobby ready", "code", code, "game", gt)
}

func (d *Dispatcher) newEntry(code string, gt lobby.GameType, hostID string, public bool) *lobbyEntry {
	l := lobby.New(code, gt, hostID, d.opts.MaxPlayers, public)
	e := &lobbyEntry{gt: gt, core: l, fxSent: make(map[string]map[string]bool)}
	if gt == lobby.Poker {
		e.pg = poker.NewGame(l, d.opts.Poker, d.newRNG(), d.clock, d.logger)
		e.pg.SetTimeoutHandler(func(seq int) {
			go d.handleTurnTimeout(code, seq)
		})
	} else {
		e.ug = uno.NewGame(l, d.newRNG(), d.logger)
	}
	return e
}

func (d *Dispatcher) entry(code string) (*lobbyEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[code]
	return e, ok
}

// Dispatch routes one command. A panicking handler is recovered into a
// failed ack; the process never dies on a bad command.
func (d *Dispatcher) Dispatch(connID, userID string, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Command panicked", "type", msg.Type, "user", userID, "panic", r)
			d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrInternal, "internal error")))
		}
	}()

	switch msg.Type {
	case CmdListPublicRooms:
		d.handleListRooms(connID, msg)
	case CmdCreateLobby:
		d.handleCreateLobby(connID, userID, msg)
	case CmdJoinLobby:
		d.handleJoinLobby(connID, userID, msg)
	case CmdLeaveLobby:
		d.handleLeaveLobby(connID, userID, msg)
	case CmdStartGame:
		d.handleStartGame(connID, userID, msg)
	case CmdPlayerAction:
		d.handlePlayerAction(connID, userID, msg)
	case CmdRequestState:
		d.handleRequestState(connID, userID, msg)
	case CmdEndLobby:
		d.handleEndLobby(connID, userID, msg)
	case CmdRevealCards:
		d.handleRevealCards(connID, userID, msg)
	default:
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrInvalidAction, "unknown command %q", msg.Type)))
	}
}

func (d *Dispatcher) ack(connID string, req *Message, data AckData) {
	msg, err := NewMessage(MsgAck, data)
	if err != nil {
		d.logger.Error("Failed to encode ack", "error", err)
		return
	}
	msg.RequestID = req.RequestID
	if err := d.sender.Send(connID, msg); err != nil {
		d.logger.Debug("Ack send failed", "conn", connID, "error", err)
	}
}

func ackFailure(err error) AckData {
	return AckData{Success: false, Error: err.Error(), Reason: lobby.KindOf(err)}
}

func decode(msg *Message, v interface{}) error {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return lobby.E(lobby.ErrInvalidAction, "malformed payload: %v", err)
	}
	return nil
}

func (d *Dispatcher) handleListRooms(connID string, msg *Message) {
	var data ListPublicRoomsData
	if err := decode(msg, &data); err != nil {
		d.ack(connID, msg, ackFailure(err))
		return
	}

	d.mu.RLock()
	codes := make([]string, 0, len(d.entries))
	for code := range d.entries {
		codes = append(codes, code)
	}
	d.mu.RUnlock()

	rooms := make([]RoomInfo, 0, len(codes))
	for _, code := range codes {
		e, ok := d.entry(code)
		if !ok {
			continue
		}
		e.mu.Lock()
		if e.core.Public && (data.GameType == "" || e.gt == data.GameType) {
			rooms = append(rooms, RoomInfo{
				Code:        e.core.Code,
				GameType:    e.gt,
				Phase:       e.core.Phase,
				PlayerCount: len(e.core.Players),
				MaxPlayers:  e.core.MaxPlayers,
			})
		}
		e.mu.Unlock()
	}
	d.ack(connID, msg, AckData{Success: true, Result: rooms})
}

func (d *Dispatcher) handleCreateLobby(connID, userID string, msg *Message) {
	var data CreateLobbyData
	if err := decode(msg, &data); err != nil {
		d.ack(connID, msg, ackFailure(err))
		return
	}
	if data.GameType != lobby.Poker && data.GameType != lobby.Uno {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrInvalidAction, "unknown game type %q", data.GameType)))
		return
	}

	code := d.registry.Allocate(data.GameType)
	e := d.newEntry(code, data.GameType, userID, false)
	if data.MaxPlayers > 0 && data.MaxPlayers <= d.opts.MaxPlayers {
		e.core.MaxPlayers = data.MaxPlayers
	}

	// Cosmetics hit the database; fetch before taking the lobby lock.
	cos := d.cosmetics(userID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := d.sessions.Bind(connID, userID, data.GameType, code); err != nil {
		d.registry.Release(code)
		d.ack(connID, msg, ackFailure(err))
		return
	}

	player := &lobby.Player{ID: userID, Nickname: data.Nickname, Avatar: data.Avatar, Cosmetics: cos}
	if err := e.core.AddPlayer(player); err != nil {
		d.sessions.Clear(userID, data.GameType)
		d.registry.Release(code)
		d.ack(connID, msg, ackFailure(err))
		return
	}
	if e.pg != nil {
		e.pg.BuyIn(userID)
	}
	e.core.Bump()

	d.mu.Lock()
	d.entries[code] = e
	d.mu.Unlock()

	d.logger.Info("Lobby created", "code", code, "game", data.GameType, "host", userID)
	d.ack(connID, msg, AckData{Success: true, Version: e.core.Version, Result: CreatedLobbyResult{Code: code}})
	d.broadcast(e)
}

func (d *Dispatcher) handleJoinLobby(connID, userID string, msg *Message) {
	var data JoinLobbyData
	if err := decode(msg, &data); err != nil {
		d.ack(connID, msg, ackFailure(err))
		return
	}

	e, ok := d.entry(data.LobbyCode)
	if !ok || e.gt != data.GameType {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotFound, "lobby %s not found", data.LobbyCode)))
		return
	}

	// Cosmetics hit the database; fetch before taking the lobby lock.
	cos := d.cosmetics(userID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ended {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotFound, "lobby %s not found", data.LobbyCode)))
		return
	}

	if p := e.core.PlayerByID(userID); p != nil {
		// Reconnect by the same identity, possibly within the grace window.
		if _, err := d.sessions.Bind(connID, userID, data.GameType, data.LobbyCode); err != nil {
			d.ack(connID, msg, ackFailure(err))
			return
		}
		p.Connected = true
		p.LastSeen = time.Now()
		e.core.Bump()
		d.logger.Info("Player reconnected", "lobby", data.LobbyCode, "user", userID)
		d.ack(connID, msg, AckData{Success: true, Version: e.core.Version, Result: d.project(e, userID)})
		d.broadcast(e)
		d.sendRoster(e)
		return
	}

	if e.core.Phase != lobby.PhaseLobby {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrPhase, "game already in progress")))
		return
	}
	if e.core.IsFull() {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrCapacity, "lobby %s is full", data.LobbyCode)))
		return
	}

	if _, err := d.sessions.Bind(connID, userID, data.GameType, data.LobbyCode); err != nil {
		d.ack(connID, msg, ackFailure(err))
		return
	}

	player := &lobby.Player{ID: userID, Nickname: data.Nickname, Avatar: data.Avatar, Cosmetics: cos}
	if err := e.core.AddPlayer(player); err != nil {
		d.sessions.Clear(userID, data.GameType)
		d.ack(connID, msg, ackFailure(err))
		return
	}
	if e.core.HostID == "" {
		// First seat in a public lobby acts as host for display purposes.
		e.core.HostID = userID
	}
	if e.pg != nil {
		e.pg.BuyIn(userID)
	}
	e.core.Log.Append("player_joined", userID, "")
	e.core.Bump()

	d.logger.Info("Player joined", "lobby", data.LobbyCode, "user", userID)
	d.ack(connID, msg, AckData{Success: true, Version: e.core.Version, Result: d.project(e, userID)})
	d.broadcast(e)
	d.sendRoster(e)
}

func (d *Dispatcher) handleLeaveLobby(connID, userID string, msg *Message) {
	var data LobbyRefData
	if err := decode(msg, &data); err != nil {
		d.ack(connID, msg, ackFailure(err))
		return
	}

	e, ok := d.entry(data.LobbyCode)
	if !ok {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotFound, "lobby %s not found", data.LobbyCode)))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.core.PlayerByID(userID) == nil {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotFound, "not a member of lobby %s", data.LobbyCode)))
		return
	}

	d.sessions.Clear(userID, e.gt)
	d.removeParticipant(e, userID)
	d.ack(connID, msg, AckData{Success: true, Version: e.core.Version})
	if !e.ended {
		d.broadcast(e)
		d.sendRoster(e)
	}
}

// removeParticipant executes the engine side of a leave. During a hand the
// seat is kept but fully disconnected (poker additionally folds it); in the
// lobby or finished phase the seat is removed. Emptied public lobbies reset,
// emptied private lobbies are deleted. Caller holds e.mu.
func (d *Dispatcher) removeParticipant(e *lobbyEntry, userID string) {
	p := e.core.PlayerByID(userID)
	if p == nil {
		return
	}

	if e.core.Phase == lobby.PhasePlaying {
		p.Connected = false
		p.LastSeen = time.Now()
		if e.pg != nil {
			e.pg.ForceFold(userID)
		} else {
			e.core.Bump()
		}
		e.core.Log.Append("player_left", userID, "seat retained")
		d.maybeAward(e)
		// The fold may have ended the hand, releasing departed seats.
		d.sweepDeparted(e)
		d.logger.Info("Player left mid-game", "lobby", e.core.Code, "user", userID)
		return
	}

	e.core.RemovePlayer(userID)
	e.core.Log.Append("player_left", userID, "")

	if len(e.core.Players) == 0 {
		if e.core.Public {
			e.core.Reset()
			e.fxSent = make(map[string]map[string]bool)
			e.choiceSent = 0
			d.logger.Info("Public lobby reset", "code", e.core.Code)
		} else {
			d.deleteLobbyLocked(e)
		}
		return
	}

	if e.core.HostID == userID {
		e.core.HostID = e.core.Players[0].ID
	}
	e.core.Bump()
	d.logger.Info("Player left", "lobby", e.core.Code, "user", userID)
}

// sweepDeparted unseats players who left or grace-expired during a hand, once
// the phase is no longer playing. Disconnected seats still inside the grace
// window are kept. Applies the empty-lobby reset/delete rules and the host
// handoff afterwards. Caller holds e.mu.
func (d *Dispatcher) sweepDeparted(e *lobbyEntry) {
	if e.ended || e.core.Phase == lobby.PhasePlaying {
		return
	}
	var gone []string
	for _, p := range e.core.Players {
		if p.Connected {
			continue
		}
		gt, code, ok := d.sessions.ActiveLobby(p.ID)
		if ok && gt == e.gt && code == e.core.Code {
			continue
		}
		gone = append(gone, p.ID)
	}
	if len(gone) == 0 {
		return
	}
	for _, id := range gone {
		e.core.RemovePlayer(id)
		e.core.Log.Append("player_left", id, "")
		d.logger.Info("Departed seat removed", "lobby", e.core.Code, "user", id)
	}

	if len(e.core.Players) == 0 {
		if e.core.Public {
			e.core.Reset()
			e.fxSent = make(map[string]map[string]bool)
			e.choiceSent = 0
			d.logger.Info("Public lobby reset", "code", e.core.Code)
		} else {
			d.deleteLobbyLocked(e)
		}
		return
	}
	if e.core.PlayerByID(e.core.HostID) == nil {
		e.core.HostID = e.core.Players[0].ID
	}
	e.core.Bump()
}

// deleteLobbyLocked tears a private lobby down. Caller holds e.mu.
func (d *Dispatcher) deleteLobbyLocked(e *lobbyEntry) {
	e.ended = true
	if e.pg != nil {
		e.pg.CancelTurnTimer()
	}
	d.mu.Lock()
	delete(d.entries, e.core.Code)
	d.mu.Unlock()
	d.registry.Release(e.core.Code)
	d.logger.Info("Lobby deleted", "code", e.core.Code)
}

func (d *Dispatcher) handleStartGame(connID, userID string, msg *Message) {
	var data LobbyRefData
	if err := decode(msg, &data); err != nil {
		d.ack(connID, msg, ackFailure(err))
		return
	}

	e, ok := d.entry(data.LobbyCode)
	if !ok {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotFound, "lobby %s not found", data.LobbyCode)))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.core.PlayerByID(userID) == nil {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotFound, "not a member of lobby %s", data.LobbyCode)))
		return
	}
	// Public lobbies start by any participant; private lobbies are host-only.
	if !e.core.Public && e.core.HostID != userID {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotAuthorized, "only the host can start")))
		return
	}

	// Departed seats must not be dealt into the new hand.
	d.sweepDeparted(e)

	var err error
	if e.pg != nil {
		err = e.pg.StartHand()
	} else {
		err = e.ug.Start()
	}
	if err != nil {
		d.ack(connID, msg, ackFailure(err))
		return
	}

	// Posting the blinds can put everyone all-in and run the hand out
	// immediately, so the terminal transition is possible right here.
	d.maybeAward(e)
	d.ack(connID, msg, AckData{Success: true, Version: e.core.Version})
	d.broadcast(e)
}

func (d *Dispatcher) handlePlayerAction(connID, userID string, msg *Message) {
	var data PlayerActionData
	if err := decode(msg, &data); err != nil {
		d.ack(connID, msg, ackFailure(err))
		return
	}

	e, ok := d.entry(data.LobbyCode)
	if !ok {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotFound, "lobby %s not found", data.LobbyCode)))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.core.PlayerByID(userID) == nil {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotFound, "not a member of lobby %s", data.LobbyCode)))
		return
	}

	var err error
	if e.pg != nil {
		err = e.pg.Act(userID, data.Action, data.Amount)
	} else {
		switch data.Action {
		case "play":
			err = e.ug.Play(userID, data.CardID, data.ChosenColor)
		case "draw":
			err = e.ug.Draw(userID)
		case "pass":
			err = e.ug.Pass(userID)
		case "callUno":
			err = e.ug.CallUno(userID)
		case "catchUno":
			err = e.ug.CatchUno(userID)
		default:
			err = lobby.E(lobby.ErrInvalidAction, "unknown action %q", data.Action)
		}
	}
	if err != nil {
		d.ack(connID, msg, ackFailure(err))
		return
	}

	d.maybeAward(e)
	d.sweepDeparted(e)
	d.ack(connID, msg, AckData{Success: true, Version: e.core.Version})
	d.broadcast(e)
}

func (d *Dispatcher) handleRequestState(connID, userID string, msg *Message) {
	var data LobbyRefData
	if err := decode(msg, &data); err != nil {
		d.ack(connID, msg, ackFailure(err))
		return
	}

	e, ok := d.entry(data.LobbyCode)
	if !ok {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotFound, "lobby %s not found", data.LobbyCode)))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.core.PlayerByID(userID) == nil {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotFound, "not a member of lobby %s", data.LobbyCode)))
		return
	}
	d.ack(connID, msg, AckData{Success: true, Version: e.core.Version, Result: d.project(e, userID)})
}

func (d *Dispatcher) handleEndLobby(connID, userID string, msg *Message) {
	var data LobbyRefData
	if err := decode(msg, &data); err != nil {
		d.ack(connID, msg, ackFailure(err))
		return
	}

	e, ok := d.entry(data.LobbyCode)
	if !ok {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotFound, "lobby %s not found", data.LobbyCode)))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.core.Public {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotAuthorized, "public lobbies cannot be ended")))
		return
	}
	if e.core.HostID != userID {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotAuthorized, "only the host can end the lobby")))
		return
	}

	ended, encErr := NewMessage(MsgLobbyEnded, LobbyEndedData{LobbyCode: e.core.Code, Reason: "host_ended"})
	for _, p := range e.core.Players {
		if encErr == nil {
			if connFor, ok := d.sessions.ConnFor(e.gt, p.ID); ok {
				_ = d.sender.Send(connFor, ended)
			}
		}
		d.sessions.Clear(p.ID, e.gt)
	}
	d.deleteLobbyLocked(e)
	d.ack(connID, msg, AckData{Success: true})
}

func (d *Dispatcher) handleRevealCards(connID, userID string, msg *Message) {
	var data RevealCardsData
	if err := decode(msg, &data); err != nil {
		d.ack(connID, msg, ackFailure(err))
		return
	}

	e, ok := d.entry(data.LobbyCode)
	if !ok || e.pg == nil {
		d.ack(connID, msg, ackFailure(lobby.E(lobby.ErrNotFound, "poker lobby %s not found", data.LobbyCode)))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.pg.Reveal(userID, data.Reveal); err != nil {
		d.ack(connID, msg, ackFailure(err))
		return
	}
	d.ack(connID, msg, AckData{Success: true, Version: e.core.Version})
	d.broadcast(e)
}

// HandleDisconnect reacts to a dropped transport. The seat is marked
// disconnected immediately; the actual leave waits out the grace window and
// no-ops if the user reconnects first.
func (d *Dispatcher) HandleDisconnect(connID string) {
	b, armed := d.sessions.Disconnect(connID, d.finalizeLeave)
	if !armed {
		return
	}
	e, ok := d.entry(b.LobbyCode)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.core.PlayerByID(b.UserID)
	if p == nil || !p.Connected {
		return
	}
	p.Connected = false
	p.LastSeen = time.Now()
	e.core.Bump()
	d.logger.Info("Player disconnected", "lobby", b.LobbyCode, "user", b.UserID)
	d.broadcast(e)
}

// finalizeLeave runs when a grace timer expires without a reconnect.
func (d *Dispatcher) finalizeLeave(b session.Binding) {
	e, ok := d.entry(b.LobbyCode)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return
	}
	d.removeParticipant(e, b.UserID)
	if !e.ended {
		d.broadcast(e)
		d.sendRoster(e)
	}
}

// handleTurnTimeout re-enters the poker engine for a fired turn timer,
// serialized through the lobby mutex. Stale sequences no-op inside the
// engine.
func (d *Dispatcher) handleTurnTimeout(code string, seq int) {
	e, ok := d.entry(code)
	if !ok || e.pg == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	before := e.core.Version
	e.pg.TimeoutTurn(seq)
	if e.core.Version != before {
		d.maybeAward(e)
		d.sweepDeparted(e)
		if !e.ended {
			d.broadcast(e)
		}
	}
}

// maybeAward invokes the reward sink once per terminal transition. The
// RewardIssued flag is flipped under the lobby lock; the write itself runs
// in a goroutine so database latency never blocks the engine.
func (d *Dispatcher) maybeAward(e *lobbyEntry) {
	if e.core.Phase != lobby.PhaseFinished || e.core.RewardIssued {
		return
	}

	var winners []string
	if e.pg != nil {
		seen := map[string]bool{}
		for _, award := range e.pg.LastAwards {
			for _, id := range award.WinnerIDs {
				if !seen[id] {
					seen[id] = true
					winners = append(winners, id)
				}
			}
		}
	} else if e.ug.WinnerID != "" {
		winners = []string{e.ug.WinnerID}
	}
	if len(winners) == 0 {
		return
	}

	e.core.RewardIssued = true
	if d.sink == nil {
		return
	}
	isPoker := e.pg != nil
	go func() {
		var err error
		if isPoker {
			err = d.sink.AwardPokerWin(context.Background(), winners)
		} else {
			err = d.sink.AwardUnoWin(context.Background(), winners)
		}
		if err != nil {
			d.logger.Error("Reward write failed", "winners", winners, "error", err)
		}
	}()
}

func (d *Dispatcher) cosmetics(userID string) lobby.Cosmetics {
	if d.sink == nil {
		return lobby.Cosmetics{}
	}
	return d.sink.Cosmetics(context.Background(), userID)
}

func (d *Dispatcher) project(e *lobbyEntry, viewerID string) *GameStateView {
	if e.pg != nil {
		return projectPoker(e.pg, viewerID)
	}
	return projectUno(e.ug, viewerID)
}

// broadcast pushes a per-viewer snapshot to every connected member, then
// delivers pending one-shot events at most once per identity. Caller holds
// e.mu.
func (d *Dispatcher) broadcast(e *lobbyEntry) {
	for _, p := range e.core.Players {
		if !p.Connected {
			continue
		}
		connID, ok := d.sessions.ConnFor(e.gt, p.ID)
		if !ok {
			continue
		}
		msg, err := NewMessage(MsgGameState, d.project(e, p.ID))
		if err != nil {
			d.logger.Error("Failed to encode snapshot", "lobby", e.core.Code, "error", err)
			continue
		}
		if err := d.sender.Send(connID, msg); err != nil {
			d.logger.Debug("Snapshot send failed", "user", p.ID, "error", err)
		}
	}

	d.emitOneShots(e)
	d.emitShowdownChoice(e)
}

// emitOneShots delivers retained one-shot events, deduped per event id and
// viewer identity so rebroadcasts and reconnects never duplicate effects.
func (d *Dispatcher) emitOneShots(e *lobbyEntry) {
	live := make(map[string]bool, len(e.core.FX))
	for _, fx := range e.core.FX {
		live[fx.ID] = true
		sent := e.fxSent[fx.ID]
		if sent == nil {
			sent = make(map[string]bool)
			e.fxSent[fx.ID] = sent
		}
		for _, p := range e.core.Players {
			if !p.Connected || sent[p.ID] {
				continue
			}
			connID, ok := d.sessions.ConnFor(e.gt, p.ID)
			if !ok {
				continue
			}
			msg, err := NewMessage(MessageType(fx.Event), fx.Payload)
			if err != nil {
				d.logger.Error("Failed to encode one-shot", "event", fx.Event, "error", err)
				continue
			}
			if err := d.sender.Send(connID, msg); err != nil {
				continue
			}
			sent[p.ID] = true
		}
	}
	// Drop bookkeeping for events that aged out of the FX ring.
	for id := range e.fxSent {
		if !live[id] {
			delete(e.fxSent, id)
		}
	}
}

// emitShowdownChoice prompts non-folded showdown participants to show or
// muck, once per finished hand.
func (d *Dispatcher) emitShowdownChoice(e *lobbyEntry) {
	if e.pg == nil || e.core.Phase != lobby.PhaseFinished || e.pg.HandNum == e.choiceSent {
		return
	}
	if e.pg.CurrentStreet != poker.Showdown || len(e.pg.LastAwards) == 0 {
		return
	}
	e.choiceSent = e.pg.HandNum

	msg, err := NewMessage(MsgShowdownChoice, ShowdownChoiceData{LobbyCode: e.core.Code, HandNum: e.pg.HandNum})
	if err != nil {
		return
	}
	for _, hp := range e.pg.HandPlayers {
		if hp.Folded {
			continue
		}
		if connID, ok := d.sessions.ConnFor(e.gt, hp.ID); ok {
			_ = d.sender.Send(connID, msg)
		}
	}
}

// sendRoster pushes the lobby-phase roster event for UNO lobbies.
func (d *Dispatcher) sendRoster(e *lobbyEntry) {
	if e.ug == nil {
		return
	}
	msg, err := NewMessage(MsgRoster, RosterData{LobbyCode: e.core.Code, Players: projectPlayers(e.core)})
	if err != nil {
		return
	}
	for _, p := range e.core.Players {
		if !p.Connected {
			continue
		}
		if connID, ok := d.sessions.ConnFor(e.gt, p.ID); ok {
			_ = d.sender.Send(connID, msg)
		}
	}
}

// Shutdown cancels timers across all lobbies.
func (d *Dispatcher) Shutdown() {
	d.sessions.Shutdown()
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, e := range d.entries {
		e.mu.Lock()
		if e.pg != nil {
			e.pg.CancelTurnTimer()
		}
		e.mu.Unlock()
	}
}
