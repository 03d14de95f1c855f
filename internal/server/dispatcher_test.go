package server

import (
	"context"
	"encoding/json"
	"io"
	rand "math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenfelt/greenfelt/internal/lobby"
	"github.com/greenfelt/greenfelt/internal/randutil"
	"github.com/greenfelt/greenfelt/internal/session"
	"github.com/greenfelt/greenfelt/internal/uno"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs map[string][]*Message
}

func newRecordingSender() *recordingSender {
	return &recordingSender{msgs: make(map[string][]*Message)}
}

func (r *recordingSender) Send(connID string, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[connID] = append(r.msgs[connID], msg)
	return nil
}

func (r *recordingSender) countType(connID string, mt MessageType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs[connID] {
		if m.Type == mt {
			n++
		}
	}
	return n
}

type ackView struct {
	Success bool            `json:"success"`
	Version uint64          `json:"version"`
	Error   string          `json:"error"`
	Reason  lobby.ErrorKind `json:"reason"`
	Result  json.RawMessage `json:"result"`
}

func (r *recordingSender) lastAck(t *testing.T, connID string) ackView {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs[connID]) - 1; i >= 0; i-- {
		if r.msgs[connID][i].Type == MsgAck {
			var v ackView
			require.NoError(t, json.Unmarshal(r.msgs[connID][i].Data, &v))
			return v
		}
	}
	t.Fatalf("no ack recorded for %s", connID)
	return ackView{}
}

type fakeSink struct {
	mu        sync.Mutex
	pokerWins [][]string
	unoWins   [][]string
	awarded   chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{awarded: make(chan struct{}, 8)}
}

func (f *fakeSink) AwardPokerWin(ctx context.Context, ids []string) error {
	f.mu.Lock()
	f.pokerWins = append(f.pokerWins, ids)
	f.mu.Unlock()
	f.awarded <- struct{}{}
	return nil
}

func (f *fakeSink) AwardUnoWin(ctx context.Context, ids []string) error {
	f.mu.Lock()
	f.unoWins = append(f.unoWins, ids)
	f.mu.Unlock()
	f.awarded <- struct{}{}
	return nil
}

func (f *fakeSink) Cosmetics(ctx context.Context, userID string) lobby.Cosmetics {
	return lobby.Cosmetics{CardBack: "weave"}
}

type fixture struct {
	d      *Dispatcher
	sender *recordingSender
	clock  *quartz.Mock
	sink   *fakeSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := quartz.NewMock(t)
	logger := log.New(io.Discard)
	sender := newRecordingSender()
	sink := newFakeSink()
	sessions := session.NewManager(clock, 15*time.Second, logger)
	registry := lobby.NewRegistry(lobby.NewCodeGenerator(nil))
	seed := int64(0)
	d := NewDispatcher(Options{}, registry, sessions, sink, sender, clock, func() *rand.Rand {
		seed++
		return randutil.New(42 + seed)
	}, logger)
	d.Bootstrap()
	return &fixture{d: d, sender: sender, clock: clock, sink: sink}
}

func cmd(t *testing.T, mt MessageType, payload interface{}) *Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &Message{Type: mt, Data: raw, RequestID: "req", Timestamp: time.Now()}
}

// createPokerLobby creates a private poker lobby hosted by alice on conn
// c-alice and returns its code.
func (f *fixture) createPokerLobby(t *testing.T) string {
	t.Helper()
	f.d.Dispatch("c-alice", "alice", cmd(t, CmdCreateLobby, CreateLobbyData{GameType: lobby.Poker, Nickname: "Alice"}))
	ack := f.sender.lastAck(t, "c-alice")
	require.True(t, ack.Success, ack.Error)
	var res CreatedLobbyResult
	require.NoError(t, json.Unmarshal(ack.Result, &res))
	require.Len(t, res.Code, lobby.CodeLength)
	return res.Code
}

func (f *fixture) join(t *testing.T, connID, userID string, gt lobby.GameType, code string) ackView {
	t.Helper()
	f.d.Dispatch(connID, userID, cmd(t, CmdJoinLobby, JoinLobbyData{GameType: gt, LobbyCode: code, Nickname: userID}))
	return f.sender.lastAck(t, connID)
}

func TestCreateLobby_HostSeated(t *testing.T) {
	f := newFixture(t)
	code := f.createPokerLobby(t)

	e, ok := f.d.entry(code)
	require.True(t, ok)
	assert.Equal(t, "alice", e.core.HostID)
	require.Len(t, e.core.Players, 1)
	assert.True(t, e.core.Players[0].Connected)
	assert.Equal(t, f.d.opts.Poker.StartingStack, e.pg.Stacks["alice"])

	// The host received a snapshot broadcast.
	assert.Equal(t, 1, f.sender.countType("c-alice", MsgGameState))
}

func TestJoinLobby_SecondLobbyRejected(t *testing.T) {
	f := newFixture(t)
	code := f.createPokerLobby(t)

	ack := f.join(t, "c-alice2", "alice", lobby.Uno, "UNO_PUBLIC_1")
	assert.False(t, ack.Success)
	assert.Equal(t, lobby.ErrAlreadyInLobby, ack.Reason)

	// Rejoining the same lobby stays allowed.
	ack = f.join(t, "c-alice2", "alice", lobby.Poker, code)
	assert.True(t, ack.Success, ack.Error)
}

func TestJoinLobby_UnknownCode(t *testing.T) {
	f := newFixture(t)
	ack := f.join(t, "c-bob", "bob", lobby.Poker, "ZZZZZZ")
	assert.False(t, ack.Success)
	assert.Equal(t, lobby.ErrNotFound, ack.Reason)
}

func TestStartGame_PrivateLobbyHostOnly(t *testing.T) {
	f := newFixture(t)
	code := f.createPokerLobby(t)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Poker, code).Success)

	f.d.Dispatch("c-bob", "bob", cmd(t, CmdStartGame, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))
	ack := f.sender.lastAck(t, "c-bob")
	assert.False(t, ack.Success)
	assert.Equal(t, lobby.ErrNotAuthorized, ack.Reason)

	f.d.Dispatch("c-alice", "alice", cmd(t, CmdStartGame, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))
	ack = f.sender.lastAck(t, "c-alice")
	require.True(t, ack.Success, ack.Error)

	e, _ := f.d.entry(code)
	assert.Equal(t, lobby.PhasePlaying, e.core.Phase)
}

func TestStartGame_PublicLobbyAnyParticipant(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.join(t, "c-alice", "alice", lobby.Uno, "UNO_PUBLIC_1").Success)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Uno, "UNO_PUBLIC_1").Success)

	// bob is not the host but the lobby is public.
	f.d.Dispatch("c-bob", "bob", cmd(t, CmdStartGame, LobbyRefData{GameType: lobby.Uno, LobbyCode: "UNO_PUBLIC_1"}))
	ack := f.sender.lastAck(t, "c-bob")
	require.True(t, ack.Success, ack.Error)

	e, _ := f.d.entry("UNO_PUBLIC_1")
	assert.Equal(t, lobby.PhasePlaying, e.core.Phase)
	// The start card may have penalized a hand past the initial seven.
	assert.GreaterOrEqual(t, len(e.ug.Hands["alice"]), 7)
	assert.GreaterOrEqual(t, len(e.ug.Hands["bob"]), 7)
}

func TestListPublicRooms(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.join(t, "c-alice", "alice", lobby.Uno, "UNO_PUBLIC_2").Success)

	f.d.Dispatch("c-alice", "alice", cmd(t, CmdListPublicRooms, ListPublicRoomsData{GameType: lobby.Uno}))
	ack := f.sender.lastAck(t, "c-alice")
	require.True(t, ack.Success)

	var rooms []RoomInfo
	require.NoError(t, json.Unmarshal(ack.Result, &rooms))
	require.Len(t, rooms, 3)
	byCode := map[string]RoomInfo{}
	for _, r := range rooms {
		assert.Equal(t, lobby.Uno, r.GameType)
		byCode[r.Code] = r
	}
	assert.Equal(t, 1, byCode["UNO_PUBLIC_2"].PlayerCount)
	assert.Equal(t, 0, byCode["UNO_PUBLIC_1"].PlayerCount)
}

func TestPlayerAction_PokerFoldEndsHandAndAwardsOnce(t *testing.T) {
	f := newFixture(t)
	code := f.createPokerLobby(t)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Poker, code).Success)
	f.d.Dispatch("c-alice", "alice", cmd(t, CmdStartGame, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)

	e, _ := f.d.entry(code)
	// Heads-up: the dealer (alice, first hand) acts first preflop.
	require.Equal(t, "alice", e.pg.HandPlayers[e.pg.Current].ID)

	f.d.Dispatch("c-alice", "alice", cmd(t, CmdPlayerAction, PlayerActionData{
		GameType: lobby.Poker, LobbyCode: code, Action: "fold",
	}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)
	assert.Equal(t, lobby.PhaseFinished, e.core.Phase)
	assert.True(t, e.core.RewardIssued)

	select {
	case <-f.sink.awarded:
	case <-time.After(time.Second):
		t.Fatal("reward sink never invoked")
	}
	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	require.Len(t, f.sink.pokerWins, 1)
	assert.Equal(t, []string{"bob"}, f.sink.pokerWins[0])
}

func TestPlayerAction_OutOfTurnSurfacesAck(t *testing.T) {
	f := newFixture(t)
	code := f.createPokerLobby(t)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Poker, code).Success)
	f.d.Dispatch("c-alice", "alice", cmd(t, CmdStartGame, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))

	e, _ := f.d.entry(code)
	before := e.core.Version
	broadcastsBefore := f.sender.countType("c-bob", MsgGameState)

	f.d.Dispatch("c-bob", "bob", cmd(t, CmdPlayerAction, PlayerActionData{
		GameType: lobby.Poker, LobbyCode: code, Action: "call",
	}))
	ack := f.sender.lastAck(t, "c-bob")
	assert.False(t, ack.Success)
	assert.Equal(t, lobby.ErrNotYourTurn, ack.Reason)

	// Rejected commands produce no version change and no broadcast.
	assert.Equal(t, before, e.core.Version)
	assert.Equal(t, broadcastsBefore, f.sender.countType("c-bob", MsgGameState))
}

func TestReconnectWithinGrace_SeatAndStackSurvive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.createPokerLobby(t)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Poker, code).Success)
	require.True(t, f.join(t, "c-carol", "carol", lobby.Poker, code).Success)
	f.d.Dispatch("c-alice", "alice", cmd(t, CmdStartGame, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)

	e, _ := f.d.entry(code)
	base := e.core.Version
	seat := e.core.PlayerByID("bob").Seat
	var stack int
	for _, hp := range e.pg.HandPlayers {
		if hp.ID == "bob" {
			stack = hp.Stack
		}
	}

	f.d.HandleDisconnect("c-bob")
	assert.False(t, e.core.PlayerByID("bob").Connected)
	assert.Equal(t, base+1, e.core.Version)

	f.clock.Advance(5 * time.Second).MustWait(ctx)

	ack := f.join(t, "c-bob2", "bob", lobby.Poker, code)
	require.True(t, ack.Success, ack.Error)
	assert.True(t, e.core.PlayerByID("bob").Connected)
	assert.Equal(t, base+2, e.core.Version)
	assert.Equal(t, seat, e.core.PlayerByID("bob").Seat)
	for _, hp := range e.pg.HandPlayers {
		if hp.ID == "bob" {
			assert.Equal(t, stack, hp.Stack)
			assert.False(t, hp.Folded)
		}
	}

	// The stale grace timer must not fire a leave later.
	f.clock.Advance(f.d.opts.GraceWindow).MustWait(ctx)
	assert.NotNil(t, e.core.PlayerByID("bob"))
	assert.True(t, e.core.PlayerByID("bob").Connected)
}

func TestGraceExpiry_MidHandFoldsSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.createPokerLobby(t)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Poker, code).Success)
	require.True(t, f.join(t, "c-carol", "carol", lobby.Poker, code).Success)
	f.d.Dispatch("c-alice", "alice", cmd(t, CmdStartGame, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))

	f.d.HandleDisconnect("c-carol")
	f.clock.Advance(f.d.opts.GraceWindow).MustWait(ctx)

	e, _ := f.d.entry(code)
	e.mu.Lock()
	defer e.mu.Unlock()
	// Seat retained but folded and disconnected.
	p := e.core.PlayerByID("carol")
	require.NotNil(t, p)
	assert.False(t, p.Connected)
	for _, hp := range e.pg.HandPlayers {
		if hp.ID == "carol" {
			assert.True(t, hp.Folded)
		}
	}
}

func TestGraceExpiry_LobbyPhaseRemovesSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.createPokerLobby(t)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Poker, code).Success)

	f.d.HandleDisconnect("c-bob")
	f.clock.Advance(f.d.opts.GraceWindow).MustWait(ctx)

	e, _ := f.d.entry(code)
	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Nil(t, e.core.PlayerByID("bob"))
	require.Len(t, e.core.Players, 1)
	assert.Equal(t, 0, e.core.Players[0].Seat)
}

func TestLeaveLobby_LastPlayerDeletesPrivate(t *testing.T) {
	f := newFixture(t)
	code := f.createPokerLobby(t)

	f.d.Dispatch("c-alice", "alice", cmd(t, CmdLeaveLobby, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)

	_, ok := f.d.entry(code)
	assert.False(t, ok)
	_, found := f.d.registry.Lookup(code)
	assert.False(t, found)
}

func TestLeaveLobby_HostHandoff(t *testing.T) {
	f := newFixture(t)
	code := f.createPokerLobby(t)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Poker, code).Success)

	f.d.Dispatch("c-alice", "alice", cmd(t, CmdLeaveLobby, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)

	e, _ := f.d.entry(code)
	assert.Equal(t, "bob", e.core.HostID)
}

func TestPublicLobby_ResetOnLastLeave(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.join(t, "c-alice", "alice", lobby.Uno, "UNO_PUBLIC_1").Success)

	f.d.Dispatch("c-alice", "alice", cmd(t, CmdLeaveLobby, LobbyRefData{GameType: lobby.Uno, LobbyCode: "UNO_PUBLIC_1"}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)

	e, ok := f.d.entry("UNO_PUBLIC_1")
	require.True(t, ok)
	assert.Empty(t, e.core.Players)
	assert.Equal(t, lobby.PhaseLobby, e.core.Phase)
	assert.False(t, e.core.RewardIssued)
}

func TestEndLobby_HostOnlyAndPublicNonEndable(t *testing.T) {
	f := newFixture(t)
	code := f.createPokerLobby(t)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Poker, code).Success)

	f.d.Dispatch("c-bob", "bob", cmd(t, CmdEndLobby, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))
	assert.Equal(t, lobby.ErrNotAuthorized, f.sender.lastAck(t, "c-bob").Reason)

	f.d.Dispatch("c-alice", "alice", cmd(t, CmdEndLobby, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)
	_, ok := f.d.entry(code)
	assert.False(t, ok)
	assert.Equal(t, 1, f.sender.countType("c-bob", MsgLobbyEnded))

	// Public lobbies cannot be ended even by their nominal host.
	require.True(t, f.join(t, "c-alice3", "alice", lobby.Uno, "UNO_PUBLIC_1").Success)
	f.d.Dispatch("c-alice3", "alice", cmd(t, CmdEndLobby, LobbyRefData{GameType: lobby.Uno, LobbyCode: "UNO_PUBLIC_1"}))
	assert.Equal(t, lobby.ErrNotAuthorized, f.sender.lastAck(t, "c-alice3").Reason)
}

func TestCelebration_EmittedOncePerViewer(t *testing.T) {
	f := newFixture(t)
	code := f.createPokerLobby(t)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Poker, code).Success)
	f.d.Dispatch("c-alice", "alice", cmd(t, CmdStartGame, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))
	f.d.Dispatch("c-alice", "alice", cmd(t, CmdPlayerAction, PlayerActionData{
		GameType: lobby.Poker, LobbyCode: code, Action: "fold",
	}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)

	assert.Equal(t, 1, f.sender.countType("c-alice", MsgCelebration))
	assert.Equal(t, 1, f.sender.countType("c-bob", MsgCelebration))

	// Further broadcasts must not replay the one-shot.
	e, _ := f.d.entry(code)
	e.mu.Lock()
	f.d.broadcast(e)
	e.mu.Unlock()
	assert.Equal(t, 1, f.sender.countType("c-alice", MsgCelebration))
	assert.Equal(t, 1, f.sender.countType("c-bob", MsgCelebration))
}

func TestShowdownChoice_SentToNonFoldedOnce(t *testing.T) {
	f := newFixture(t)
	code := f.createPokerLobby(t)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Poker, code).Success)
	f.d.Dispatch("c-alice", "alice", cmd(t, CmdStartGame, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))

	e, _ := f.d.entry(code)
	// Check and call through every street to reach showdown.
	for e.core.Phase == lobby.PhasePlaying {
		e.mu.Lock()
		id := e.pg.HandPlayers[e.pg.Current].ID
		owed := e.pg.CurrentBet - e.pg.HandPlayers[e.pg.Current].Bet
		e.mu.Unlock()
		action := "check"
		if owed > 0 {
			action = "call"
		}
		conn := "c-alice"
		if id == "bob" {
			conn = "c-bob"
		}
		f.d.Dispatch(conn, id, cmd(t, CmdPlayerAction, PlayerActionData{
			GameType: lobby.Poker, LobbyCode: code, Action: action,
		}))
		require.True(t, f.sender.lastAck(t, conn).Success)
	}

	assert.Equal(t, 1, f.sender.countType("c-alice", MsgShowdownChoice))
	assert.Equal(t, 1, f.sender.countType("c-bob", MsgShowdownChoice))

	// Reveal choices are accepted after the hand and rebroadcast state
	// without a second prompt.
	f.d.Dispatch("c-alice", "alice", cmd(t, CmdRevealCards, RevealCardsData{LobbyCode: code, Reveal: false}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)
	assert.Equal(t, 1, f.sender.countType("c-alice", MsgShowdownChoice))
}

func TestLeaveMidHand_AbandonedPublicLobbyResets(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.join(t, "c-alice", "alice", lobby.Poker, "POKER_PUBLIC_1").Success)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Poker, "POKER_PUBLIC_1").Success)
	f.d.Dispatch("c-alice", "alice", cmd(t, CmdStartGame, LobbyRefData{GameType: lobby.Poker, LobbyCode: "POKER_PUBLIC_1"}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)

	e, _ := f.d.entry("POKER_PUBLIC_1")
	f.d.Dispatch("c-alice", "alice", cmd(t, CmdLeaveLobby, LobbyRefData{GameType: lobby.Poker, LobbyCode: "POKER_PUBLIC_1"}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)

	// The forced fold ended the hand heads-up; the departed seat must not
	// linger into the finished phase.
	assert.Equal(t, lobby.PhaseFinished, e.core.Phase)
	assert.Nil(t, e.core.PlayerByID("alice"))
	assert.Equal(t, "bob", e.core.HostID)

	f.d.Dispatch("c-bob", "bob", cmd(t, CmdLeaveLobby, LobbyRefData{GameType: lobby.Poker, LobbyCode: "POKER_PUBLIC_1"}))
	require.True(t, f.sender.lastAck(t, "c-bob").Success)

	e, ok := f.d.entry("POKER_PUBLIC_1")
	require.True(t, ok)
	assert.Empty(t, e.core.Players)
	assert.Equal(t, lobby.PhaseLobby, e.core.Phase)
}

func TestLeaveMidHand_AbandonedPrivateLobbyDeleted(t *testing.T) {
	f := newFixture(t)
	code := f.createPokerLobby(t)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Poker, code).Success)
	f.d.Dispatch("c-alice", "alice", cmd(t, CmdStartGame, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)

	f.d.Dispatch("c-alice", "alice", cmd(t, CmdLeaveLobby, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)
	f.d.Dispatch("c-bob", "bob", cmd(t, CmdLeaveLobby, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))
	require.True(t, f.sender.lastAck(t, "c-bob").Success)

	_, ok := f.d.entry(code)
	assert.False(t, ok)
	_, reserved := f.d.registry.Lookup(code)
	assert.False(t, reserved)
}

func TestStartGame_InstantShowdownAwardsReward(t *testing.T) {
	f := newFixture(t)
	code := f.createPokerLobby(t)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Poker, code).Success)

	e, _ := f.d.entry(code)
	e.mu.Lock()
	// Both stacks cover only the small blind, so posting puts everyone
	// all-in and the board runs out inside the start.
	e.pg.Stacks["alice"] = 5
	e.pg.Stacks["bob"] = 5
	e.mu.Unlock()

	f.d.Dispatch("c-alice", "alice", cmd(t, CmdStartGame, LobbyRefData{GameType: lobby.Poker, LobbyCode: code}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)

	assert.Equal(t, lobby.PhaseFinished, e.core.Phase)
	assert.True(t, e.core.RewardIssued)
	select {
	case <-f.sink.awarded:
	case <-time.After(time.Second):
		t.Fatal("reward sink never invoked")
	}
	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	require.Len(t, f.sink.pokerWins, 1)
}

func TestJoinLobby_CosmeticsEquippedAtSeat(t *testing.T) {
	f := newFixture(t)
	code := f.createPokerLobby(t)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Poker, code).Success)

	e, _ := f.d.entry(code)
	assert.Equal(t, "weave", e.core.PlayerByID("alice").Cosmetics.CardBack)
	assert.Equal(t, "weave", e.core.PlayerByID("bob").Cosmetics.CardBack)
}

func TestUnoWin_RewardAndCelebration(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.join(t, "c-alice", "alice", lobby.Uno, "UNO_PUBLIC_3").Success)
	require.True(t, f.join(t, "c-bob", "bob", lobby.Uno, "UNO_PUBLIC_3").Success)
	f.d.Dispatch("c-alice", "alice", cmd(t, CmdStartGame, LobbyRefData{GameType: lobby.Uno, LobbyCode: "UNO_PUBLIC_3"}))
	require.True(t, f.sender.lastAck(t, "c-alice").Success)

	e, _ := f.d.entry("UNO_PUBLIC_3")
	e.mu.Lock()
	// Shrink the current player's hand to a single playable colored card so
	// the next play wins. Cards are moved, never forged, to keep ids unique.
	curID := e.core.Players[e.ug.Current].ID
	var winning *uno.Card
	for i, c := range e.ug.DrawPile {
		if !c.IsWild() && c.Color == e.ug.CurrentColor {
			card := c
			winning = &card
			e.ug.DrawPile = append(e.ug.DrawPile[:i], e.ug.DrawPile[i+1:]...)
			break
		}
	}
	require.NotNil(t, winning, "draw pile should hold a card of the current color")
	e.ug.DrawPile = append(e.ug.DrawPile, e.ug.Hands[curID]...)
	e.ug.Hands[curID] = []uno.Card{*winning}
	e.mu.Unlock()

	conn := "c-alice"
	if curID == "bob" {
		conn = "c-bob"
	}
	f.d.Dispatch(conn, curID, cmd(t, CmdPlayerAction, PlayerActionData{
		GameType: lobby.Uno, LobbyCode: "UNO_PUBLIC_3", Action: "play", CardID: winning.ID,
	}))
	require.True(t, f.sender.lastAck(t, conn).Success)

	assert.Equal(t, lobby.PhaseFinished, e.core.Phase)
	assert.Equal(t, curID, e.ug.WinnerID)
	assert.True(t, e.core.RewardIssued)

	select {
	case <-f.sink.awarded:
	case <-time.After(time.Second):
		t.Fatal("reward sink never invoked")
	}
	f.sink.mu.Lock()
	require.Len(t, f.sink.unoWins, 1)
	assert.Equal(t, []string{curID}, f.sink.unoWins[0])
	f.sink.mu.Unlock()

	assert.Equal(t, 1, f.sender.countType("c-alice", MsgCelebration))
	assert.Equal(t, 1, f.sender.countType("c-bob", MsgCelebration))
}
