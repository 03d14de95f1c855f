package server

import (
	"time"

	"github.com/greenfelt/greenfelt/internal/deck"
	"github.com/greenfelt/greenfelt/internal/lobby"
	"github.com/greenfelt/greenfelt/internal/poker"
	"github.com/greenfelt/greenfelt/internal/uno"
)

// PlayerView is the shared seat projection.
type PlayerView struct {
	ID        string          `json:"id"`
	Seat      int             `json:"seat"`
	Nickname  string          `json:"nickname"`
	Avatar    string          `json:"avatar,omitempty"`
	Connected bool            `json:"connected"`
	Cosmetics lobby.Cosmetics `json:"cosmetics"`
}

// GameStateView is the per-viewer snapshot pushed after every mutation.
// Exactly one of Poker or Uno is set.
type GameStateView struct {
	LobbyCode   string             `json:"lobbyCode"`
	GameType    lobby.GameType     `json:"gameType"`
	Phase       lobby.Phase        `json:"phase"`
	HostID      string             `json:"hostId"`
	Public      bool               `json:"public"`
	Version     uint64             `json:"version"`
	MaxPlayers  int                `json:"maxPlayers"`
	Players     []PlayerView       `json:"players"`
	Log         []lobby.LogEntry   `json:"log"`
	Celebration *lobby.Celebration `json:"celebration,omitempty"`
	Poker       *PokerView         `json:"poker,omitempty"`
	Uno         *UnoView           `json:"uno,omitempty"`
}

// PokerSeatView is one hand participant. HoleCards is nil unless the viewer
// owns the seat or the cards are revealed at showdown.
type PokerSeatView struct {
	ID         string      `json:"id"`
	Stack      int         `json:"stack"`
	Bet        int         `json:"bet"`
	TotalBet   int         `json:"totalBet"`
	Folded     bool        `json:"folded"`
	AllIn      bool        `json:"allIn"`
	LastAction string      `json:"lastAction,omitempty"`
	LastBet    int         `json:"lastBet"`
	HoleCards  []deck.Card `json:"holeCards,omitempty"`
}

// PotView is a pot layer with winner eligibility by identity.
type PotView struct {
	Amount      int      `json:"amount"`
	EligibleIDs []string `json:"eligibleIds"`
}

// PokerView carries the hand state. The deck is never exposed, not even as
// a count.
type PokerView struct {
	HandNum       int              `json:"handNum"`
	Street        string           `json:"street"`
	Board         []deck.Card      `json:"board"`
	Pots          []PotView        `json:"pots"`
	PotTotal      int              `json:"potTotal"`
	CurrentBet    int              `json:"currentBet"`
	MinRaise      int              `json:"minRaise"`
	Button        int              `json:"button"`
	CurrentID     string           `json:"currentId,omitempty"`
	TurnStartedAt time.Time        `json:"turnStartedAt,omitempty"`
	Seats         []PokerSeatView  `json:"seats"`
	Stacks        map[string]int   `json:"stacks"`
	LastAwards    []poker.PotAward `json:"lastAwards,omitempty"`
}

// UnoCardView is a hand card. Opponents' cards are hidden placeholders with
// synthetic negative ids; real ids map to faces so they must not leak.
type UnoCardView struct {
	ID     int       `json:"id"`
	Hidden bool      `json:"hidden,omitempty"`
	Kind   uno.Kind  `json:"kind,omitempty"`
	Color  uno.Color `json:"color,omitempty"`
	Value  int       `json:"value,omitempty"`
}

// UnoHandView preserves the card count for every player; faces only for the
// viewer's own hand.
type UnoHandView struct {
	PlayerID string        `json:"playerId"`
	Count    int           `json:"count"`
	Cards    []UnoCardView `json:"cards"`
}

// UnoView carries the game state. The draw pile is a count only.
type UnoView struct {
	Hands         []UnoHandView      `json:"hands"`
	DrawCount     int                `json:"drawCount"`
	DiscardTop    *uno.Card          `json:"discardTop,omitempty"`
	DiscardCount  int                `json:"discardCount"`
	CurrentColor  uno.Color          `json:"currentColor,omitempty"`
	Direction     int                `json:"direction"`
	CurrentID     string             `json:"currentId,omitempty"`
	DealerID      string             `json:"dealerId,omitempty"`
	DrawnPlayable *uno.DrawnPlayable `json:"drawnPlayable,omitempty"`
	MustCallUno   string             `json:"mustCallUno,omitempty"`
	Prompt        *uno.Prompt        `json:"unoPrompt,omitempty"`
	WinnerID      string             `json:"winnerId,omitempty"`
}

func projectPlayers(l *lobby.Lobby) []PlayerView {
	out := make([]PlayerView, len(l.Players))
	for i, p := range l.Players {
		out[i] = PlayerView{
			ID:        p.ID,
			Seat:      p.Seat,
			Nickname:  p.Nickname,
			Avatar:    p.Avatar,
			Connected: p.Connected,
			Cosmetics: p.Cosmetics,
		}
	}
	return out
}

func projectCommon(l *lobby.Lobby) *GameStateView {
	return &GameStateView{
		LobbyCode:   l.Code,
		GameType:    l.GameType,
		Phase:       l.Phase,
		HostID:      l.HostID,
		Public:      l.Public,
		Version:     l.Version,
		MaxPlayers:  l.MaxPlayers,
		Players:     projectPlayers(l),
		Log:         l.Log.Tail(lobby.WireLogTail),
		Celebration: l.Celebration,
	}
}

// projectPoker builds the viewer snapshot of a poker lobby.
func projectPoker(g *poker.Game, viewerID string) *GameStateView {
	view := projectCommon(g.Lobby)
	if g.HandNum == 0 {
		// No hand dealt yet; stacks only.
		view.Poker = &PokerView{Stacks: copyStacks(g.Stacks), Button: g.Button}
		return view
	}

	seats := make([]PokerSeatView, len(g.HandPlayers))
	for i, p := range g.HandPlayers {
		sv := PokerSeatView{
			ID:         p.ID,
			Stack:      p.Stack,
			Bet:        p.Bet,
			TotalBet:   p.TotalBet,
			Folded:     p.Folded,
			AllIn:      p.AllIn,
			LastAction: p.LastAction,
			LastBet:    p.LastBet,
		}
		if p.ID == viewerID || (p.Revealed != nil && *p.Revealed) {
			sv.HoleCards = p.HoleCards
		}
		seats[i] = sv
	}

	pots := g.Pots()
	potViews := make([]PotView, len(pots))
	potTotal := 0
	for i, pot := range pots {
		pv := PotView{Amount: pot.Amount}
		for _, idx := range pot.Eligible {
			pv.EligibleIDs = append(pv.EligibleIDs, g.HandPlayers[idx].ID)
		}
		potViews[i] = pv
		potTotal += pot.Amount
	}

	currentID := ""
	if g.Current >= 0 && g.Current < len(g.HandPlayers) {
		currentID = g.HandPlayers[g.Current].ID
	}

	view.Poker = &PokerView{
		HandNum:       g.HandNum,
		Street:        g.CurrentStreet.String(),
		Board:         g.Board,
		Pots:          potViews,
		PotTotal:      potTotal,
		CurrentBet:    g.CurrentBet,
		MinRaise:      g.CurrentBet + g.LastRaise,
		Button:        g.Button,
		CurrentID:     currentID,
		TurnStartedAt: g.TurnStartedAt,
		Seats:         seats,
		Stacks:        copyStacks(g.Stacks),
		LastAwards:    g.LastAwards,
	}
	return view
}

// projectUno builds the viewer snapshot of an UNO lobby. Opponent hands keep
// their count behind placeholder cards.
func projectUno(g *uno.Game, viewerID string) *GameStateView {
	view := projectCommon(g.Lobby)

	hands := make([]UnoHandView, 0, len(g.Players))
	for _, p := range g.Players {
		hand := g.Hands[p.ID]
		hv := UnoHandView{PlayerID: p.ID, Count: len(hand)}
		if len(hand) > 0 {
			hv.Cards = make([]UnoCardView, len(hand))
			for i, c := range hand {
				if p.ID == viewerID {
					hv.Cards[i] = UnoCardView{ID: c.ID, Kind: c.Kind, Color: c.Color, Value: c.Value}
				} else {
					hv.Cards[i] = UnoCardView{ID: -(p.Seat*200 + i + 1), Hidden: true}
				}
			}
		}
		hands = append(hands, hv)
	}

	var discardTop *uno.Card
	if len(g.Discard) > 0 {
		top := g.Discard[len(g.Discard)-1]
		discardTop = &top
	}

	currentID := ""
	if g.Current >= 0 && g.Current < len(g.Players) {
		currentID = g.Players[g.Current].ID
	}
	dealerID := ""
	if g.Dealer >= 0 && g.Dealer < len(g.Players) {
		dealerID = g.Players[g.Dealer].ID
	}

	drawn := g.DrawnPlayable
	if drawn != nil && drawn.PlayerID != viewerID {
		// The card id maps to a face; other viewers only learn who drew.
		drawn = &uno.DrawnPlayable{PlayerID: drawn.PlayerID}
	}

	view.Uno = &UnoView{
		Hands:         hands,
		DrawCount:     len(g.DrawPile),
		DiscardTop:    discardTop,
		DiscardCount:  len(g.Discard),
		CurrentColor:  g.CurrentColor,
		Direction:     g.Direction,
		CurrentID:     currentID,
		DealerID:      dealerID,
		DrawnPlayable: drawn,
		MustCallUno:   g.MustCallUno,
		Prompt:        g.UnoPrompt,
		WinnerID:      g.WinnerID,
	}
	return view
}

func copyStacks(stacks map[string]int) map[string]int {
	out := make(map[string]int, len(stacks))
	for id, n := range stacks {
		out[id] = n
	}
	return out
}
