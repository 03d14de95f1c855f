package server

import (
	"encoding/json"
	"time"

	"github.com/greenfelt/greenfelt/internal/lobby"
	"github.com/greenfelt/greenfelt/internal/uno"
)

// MessageType discriminates the wire envelope.
type MessageType string

// Client → server commands.
const (
	CmdListPublicRooms MessageType = "listPublicRooms"
	CmdCreateLobby     MessageType = "createLobby"
	CmdJoinLobby       MessageType = "joinLobby"
	CmdLeaveLobby      MessageType = "leaveLobby"
	CmdStartGame       MessageType = "startGame"
	CmdPlayerAction    MessageType = "playerAction"
	CmdRequestState    MessageType = "requestState"
	CmdEndLobby        MessageType = "endLobby"
	CmdRevealCards     MessageType = "poker:revealCards"
)

// Server → client messages.
const (
	MsgAck            MessageType = "ack"
	MsgGameState      MessageType = "gameState"
	MsgCelebration    MessageType = "game:celebration"
	MsgDrawFx         MessageType = "uno:drawFx"
	MsgRoster         MessageType = "uno:roster"
	MsgLobbyEnded     MessageType = "lobbyEnded"
	MsgShowdownChoice MessageType = "poker:showdownChoice"
)

// Message is the wire envelope. Commands carry a RequestID which is echoed
// on the ack so clients can correlate replies.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage builds an envelope with the current timestamp.
func NewMessage(mt MessageType, data interface{}) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{Type: mt, Data: raw, Timestamp: time.Now()}, nil
}

// Command payloads.

type ListPublicRoomsData struct {
	GameType lobby.GameType `json:"gameType"`
}

type CreateLobbyData struct {
	GameType   lobby.GameType `json:"gameType"`
	Nickname   string         `json:"nickname"`
	Avatar     string         `json:"avatar,omitempty"`
	MaxPlayers int            `json:"maxPlayers,omitempty"`
}

type JoinLobbyData struct {
	GameType  lobby.GameType `json:"gameType"`
	LobbyCode string         `json:"lobbyCode"`
	Nickname  string         `json:"nickname"`
	Avatar    string         `json:"avatar,omitempty"`
}

type LobbyRefData struct {
	GameType  lobby.GameType `json:"gameType"`
	LobbyCode string         `json:"lobbyCode"`
}

// PlayerActionData is the action union for both games. Poker uses Action and
// Amount; UNO uses Action plus CardID / ChosenColor for plays.
type PlayerActionData struct {
	GameType    lobby.GameType `json:"gameType"`
	LobbyCode   string         `json:"lobbyCode"`
	Action      string         `json:"action"`
	Amount      int            `json:"amount,omitempty"`
	CardID      int            `json:"cardId,omitempty"`
	ChosenColor uno.Color      `json:"chosenColor,omitempty"`
}

type RevealCardsData struct {
	LobbyCode string `json:"lobbyCode"`
	Reveal    bool   `json:"reveal"`
}

// AckData is the reply to every command. Reason carries the stable error
// kind when Success is false; Result carries command-specific output.
type AckData struct {
	Success bool            `json:"success"`
	Version uint64          `json:"version,omitempty"`
	Error   string          `json:"error,omitempty"`
	Reason  lobby.ErrorKind `json:"reason,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
}

// RoomInfo is one public lobby in a listPublicRooms reply.
type RoomInfo struct {
	Code        string         `json:"code"`
	GameType    lobby.GameType `json:"gameType"`
	Phase       lobby.Phase    `json:"phase"`
	PlayerCount int            `json:"playerCount"`
	MaxPlayers  int            `json:"maxPlayers"`
}

type CreatedLobbyResult struct {
	Code string `json:"code"`
}

type LobbyEndedData struct {
	LobbyCode string `json:"lobbyCode"`
	Reason    string `json:"reason"`
}

type RosterData struct {
	LobbyCode string       `json:"lobbyCode"`
	Players   []PlayerView `json:"players"`
}

type ShowdownChoiceData struct {
	LobbyCode string `json:"lobbyCode"`
	HandNum   int    `json:"handNum"`
}
