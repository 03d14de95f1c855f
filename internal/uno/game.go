package uno

import (
	"fmt"
	rand "math/rand/v2"

	"github.com/charmbracelet/log"

	"github.com/greenfelt/greenfelt/internal/lobby"
)

// DrawnPlayable marks a drawn card the current player may still play or pass on.
type DrawnPlayable struct {
	PlayerID string `json:"playerId"`
	CardID   int    `json:"cardId"`
}

// Prompt is the UNO-call challenge target shown to all clients. ButtonX/Y are
// percent units so every client renders the identical position.
type Prompt struct {
	TargetPlayerID string `json:"targetPlayerId"`
	ButtonX        int    `json:"buttonX"`
	ButtonY        int    `json:"buttonY"`
	CreatedAt      int64  `json:"createdAt"`
}

// Game is the authoritative per-lobby UNO state machine. Callers must
// serialize access; the dispatcher holds a per-lobby lock.
type Game struct {
	*lobby.Lobby

	rng    *rand.Rand
	logger *log.Logger
	fxSeq  int

	Hands         map[string][]Card
	DrawPile      []Card
	Discard       []Card
	CurrentColor  Color
	Direction     int
	Current       int
	Dealer        int
	DrawnPlayable *DrawnPlayable
	MustCallUno   string
	UnoPrompt     *Prompt
	WinnerID      string
}

// NewGame creates an UNO lobby in the lobby phase.
func NewGame(l *lobby.Lobby, rng *rand.Rand, logger *log.Logger) *Game {
	return &Game{
		Lobby:  l,
		rng:    rng,
		logger: logger.WithPrefix("uno").With("lobby", l.Code),
	}
}

// Start deals a new game. Allowed from the lobby or finished phase with at
// least two connected players.
func (g *Game) Start() error {
	if g.Phase == lobby.PhasePlaying {
		return lobby.E(lobby.ErrPhase, "game already in progress")
	}
	if g.ConnectedCount() < 2 {
		return lobby.E(lobby.ErrPhase, "need at least 2 connected players")
	}

	if g.Phase == lobby.PhaseFinished {
		g.Dealer = (g.Dealer + 1) % len(g.Players)
	} else {
		g.Dealer = 0
	}

	deckCards := NewDeck()
	g.rng.Shuffle(len(deckCards), func(i, j int) {
		deckCards[i], deckCards[j] = deckCards[j], deckCards[i]
	})
	g.DrawPile = deckCards
	g.Discard = nil
	g.Hands = make(map[string][]Card, len(g.Players))
	g.DrawnPlayable = nil
	g.MustCallUno = ""
	g.UnoPrompt = nil
	g.WinnerID = ""
	g.Celebration = nil
	g.RewardIssued = false
	g.Direction = 1

	for _, p := range g.Players {
		g.Hands[p.ID] = g.drawFromPile(7)
	}

	// Starting discard must not be a wild; put wilds back and reshuffle.
	for attempt := 0; attempt < 108; attempt++ {
		cards := g.drawFromPile(1)
		if len(cards) == 0 {
			break
		}
		c := cards[0]
		if !c.IsWild() {
			g.Discard = append(g.Discard, c)
			g.CurrentColor = c.Color
			break
		}
		g.DrawPile = append(g.DrawPile, c)
		g.rng.Shuffle(len(g.DrawPile), func(i, j int) {
			g.DrawPile[i], g.DrawPile[j] = g.DrawPile[j], g.DrawPile[i]
		})
	}

	g.Phase = lobby.PhasePlaying
	g.Current = g.Dealer
	if top := g.top(); top != nil {
		// The start card acts as if the dealer had played it.
		g.applyEffect(*top)
	}
	g.Log.Append("game_started", "", "")
	g.Bump()
	g.logger.Info("Game started", "players", len(g.Players), "dealer", g.Dealer)
	return nil
}

// top returns the current discard face, or nil before the opening card.
func (g *Game) top() *Card {
	if len(g.Discard) == 0 {
		return nil
	}
	return &g.Discard[len(g.Discard)-1]
}

// playableOn checks the face rule only; the Wild Draw Four hand restriction
// is layered on by canPlay.
func playableOn(c Card, top *Card, current Color) bool {
	if c.IsWild() {
		return true
	}
	if top == nil {
		return true
	}
	if c.Color == current {
		return true
	}
	if top.Kind == Number && c.Kind == Number && c.Value == top.Value {
		return true
	}
	if top.isAction() && c.Kind == top.Kind {
		return true
	}
	return false
}

// canPlay applies the full server-enforced playability rule for a card held
// in the given hand.
func (g *Game) canPlay(c Card, hand []Card) bool {
	if !playableOn(c, g.top(), g.CurrentColor) {
		return false
	}
	if c.Kind == Wild4 {
		for _, h := range hand {
			if h.Color == g.CurrentColor && h.Color != "" {
				return false
			}
		}
	}
	return true
}

// hasPlayable reports whether any card in the hand is currently playable.
func (g *Game) hasPlayable(hand []Card) bool {
	for _, c := range hand {
		if g.canPlay(c, hand) {
			return true
		}
	}
	return false
}

// Play plays a card from the current player's hand.
func (g *Game) Play(playerID string, cardID int, chosenColor Color) error {
	if err := g.requireTurn(playerID); err != nil {
		return err
	}

	hand := g.Hands[playerID]
	idx := -1
	for i, c := range hand {
		if c.ID == cardID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return lobby.E(lobby.ErrNotFound, "card %d not in hand", cardID)
	}
	card := hand[idx]

	if g.DrawnPlayable != nil && g.DrawnPlayable.PlayerID == playerID && g.DrawnPlayable.CardID != cardID {
		return lobby.E(lobby.ErrInvalidAction, "must play the drawn card or pass")
	}
	if !g.canPlay(card, hand) {
		return lobby.E(lobby.ErrInvalidAction, "card is not playable")
	}
	if card.IsWild() {
		if !chosenColor.Valid() {
			return lobby.E(lobby.ErrInvalidAction, "wild requires a chosen color")
		}
	}

	// Validation complete; mutate.
	hadMandate := g.MustCallUno != ""
	g.Hands[playerID] = append(hand[:idx:idx], hand[idx+1:]...)
	g.Discard = append(g.Discard, card)
	if card.IsWild() {
		g.CurrentColor = chosenColor
	} else {
		g.CurrentColor = card.Color
	}
	g.DrawnPlayable = nil
	if hadMandate {
		g.clearUnoMandate()
	}
	g.Log.Append("played", playerID, cardDetail(card))

	switch len(g.Hands[playerID]) {
	case 1:
		g.setUnoMandate(playerID)
	case 0:
		g.finish(playerID)
		g.Bump()
		return nil
	}

	g.applyEffect(card)
	g.Bump()
	return nil
}

// Draw draws one card for the current player. Rejected while any held card is
// playable.
func (g *Game) Draw(playerID string) error {
	if err := g.requireTurn(playerID); err != nil {
		return err
	}
	if g.DrawnPlayable != nil && g.DrawnPlayable.PlayerID == playerID {
		return lobby.E(lobby.ErrInvalidAction, "already drew a playable card; play it or pass")
	}
	hand := g.Hands[playerID]
	if g.hasPlayable(hand) {
		return lobby.E(lobby.ErrInvalidAction, "a playable card is in hand")
	}

	hadMandate := g.MustCallUno != ""
	cards := g.drawFromPile(1)
	if hadMandate {
		g.clearUnoMandate()
	}
	g.Log.Append("drew", playerID, "")

	if len(cards) == 1 {
		g.Hands[playerID] = append(hand, cards[0])
		g.pushDrawFx(playerID, 1)
		if g.canPlay(cards[0], g.Hands[playerID]) {
			g.DrawnPlayable = &DrawnPlayable{PlayerID: playerID, CardID: cards[0].ID}
			g.Bump()
			return nil
		}
	}

	g.advanceBy(1)
	g.Bump()
	return nil
}

// Pass ends the turn without playing a drawn playable card.
func (g *Game) Pass(playerID string) error {
	if err := g.requireTurn(playerID); err != nil {
		return err
	}
	if g.DrawnPlayable == nil || g.DrawnPlayable.PlayerID != playerID {
		return lobby.E(lobby.ErrInvalidAction, "nothing to pass on")
	}

	hadMandate := g.MustCallUno != ""
	g.DrawnPlayable = nil
	if hadMandate {
		g.clearUnoMandate()
	}
	g.Log.Append("passed", playerID, "")
	g.advanceBy(1)
	g.Bump()
	return nil
}

// CallUno clears the caller's own UNO obligation. Valid from any seat at any
// time while mandated.
func (g *Game) CallUno(playerID string) error {
	if g.Phase != lobby.PhasePlaying {
		return lobby.E(lobby.ErrPhase, "no game in progress")
	}
	if g.MustCallUno != playerID {
		return lobby.E(lobby.ErrInvalidAction, "no UNO call pending for player")
	}
	g.clearUnoMandate()
	g.Log.Append("uno_called", playerID, "")
	g.Bump()
	return nil
}

// CatchUno penalizes a mandated player who has not called UNO. Any opponent
// may catch.
func (g *Game) CatchUno(playerID string) error {
	if g.Phase != lobby.PhasePlaying {
		return lobby.E(lobby.ErrPhase, "no game in progress")
	}
	if g.MustCallUno == "" || g.MustCallUno == playerID {
		return lobby.E(lobby.ErrInvalidAction, "nobody to catch")
	}

	violator := g.MustCallUno
	cards := g.drawFromPile(2)
	g.Hands[violator] = append(g.Hands[violator], cards...)
	if len(cards) > 0 {
		g.pushDrawFx(violator, len(cards))
	}
	g.clearUnoMandate()
	g.Log.Append("uno_caught", playerID, fmt.Sprintf("caught %s", violator))
	g.Bump()
	return nil
}

func (g *Game) requireTurn(playerID string) error {
	if g.Phase != lobby.PhasePlaying {
		return lobby.E(lobby.ErrPhase, "no game in progress")
	}
	if g.WinnerID != "" {
		return lobby.E(lobby.ErrPhase, "game is over")
	}
	p := g.PlayerByID(playerID)
	if p == nil {
		return lobby.E(lobby.ErrNotFound, "player %s not in lobby", playerID)
	}
	if g.Players[g.Current].ID != playerID {
		return lobby.E(lobby.ErrNotYourTurn, "not %s's turn", playerID)
	}
	return nil
}

// next returns the seat index one step from `from` in the current direction.
func (g *Game) next(from int) int {
	n := len(g.Players)
	return ((from+g.Direction)%n + n) % n
}

func (g *Game) advanceBy(steps int) {
	for i := 0; i < steps; i++ {
		g.Current = g.next(g.Current)
	}
}

// applyEffect applies a just-played card's effect relative to the actor at
// g.Current, including the turn advance for plain cards.
func (g *Game) applyEffect(c Card) {
	switch c.Kind {
	case Skip:
		g.advanceBy(2)
	case Reverse:
		g.Direction = -g.Direction
		if len(g.Players) > 2 {
			g.advanceBy(1)
		}
		// Heads-up a reverse acts as a skip: the actor plays again.
	case Draw2:
		g.penalize(g.next(g.Current), 2)
		g.advanceBy(2)
	case Wild4:
		g.penalize(g.next(g.Current), 4)
		g.advanceBy(2)
	default:
		g.advanceBy(1)
	}
}

// penalize deals n penalty cards to the seat at idx.
func (g *Game) penalize(idx int, n int) {
	p := g.Players[idx]
	cards := g.drawFromPile(n)
	g.Hands[p.ID] = append(g.Hands[p.ID], cards...)
	if len(cards) > 0 {
		g.pushDrawFx(p.ID, len(cards))
	}
}

// drawFromPile draws up to n cards, reshuffling the discard (minus its top)
// into a fresh draw pile when needed. Returns fewer than n when both piles
// are exhausted.
func (g *Game) drawFromPile(n int) []Card {
	out := make([]Card, 0, n)
	for len(out) < n {
		if len(g.DrawPile) == 0 {
			if len(g.Discard) <= 1 {
				break
			}
			top := g.Discard[len(g.Discard)-1]
			g.DrawPile = append(g.DrawPile, g.Discard[:len(g.Discard)-1]...)
			g.Discard = []Card{top}
			g.rng.Shuffle(len(g.DrawPile), func(i, j int) {
				g.DrawPile[i], g.DrawPile[j] = g.DrawPile[j], g.DrawPile[i]
			})
		}
		out = append(out, g.DrawPile[0])
		g.DrawPile = g.DrawPile[1:]
	}
	return out
}

func (g *Game) setUnoMandate(playerID string) {
	g.MustCallUno = playerID
	g.UnoPrompt = &Prompt{
		TargetPlayerID: playerID,
		ButtonX:        15 + g.rng.IntN(71), // [15,85]
		ButtonY:        20 + g.rng.IntN(56), // [20,75]
		CreatedAt:      g.UpdatedAt.UnixMilli(),
	}
}

func (g *Game) clearUnoMandate() {
	g.MustCallUno = ""
	g.UnoPrompt = nil
}

func (g *Game) finish(winnerID string) {
	g.WinnerID = winnerID
	g.Phase = lobby.PhaseFinished
	g.fxSeq++
	g.Celebration = &lobby.Celebration{
		ID:        fmt.Sprintf("%s-celebration-%d", g.Code, g.fxSeq),
		WinnerID:  winnerID,
		EffectID:  "uno_win",
		CreatedAt: g.UpdatedAt,
	}
	g.PushFX(lobby.OneShot{
		ID:    g.Celebration.ID,
		Event: "game:celebration",
		Payload: map[string]string{
			"id":       g.Celebration.ID,
			"winnerId": winnerID,
			"effectId": g.Celebration.EffectID,
		},
	})
	g.Log.Append("won", winnerID, "")
	g.logger.Info("Game finished", "winner", winnerID)
}

// pushDrawFx emits the one-shot draw effect. The payload carries only the
// count, never card faces.
func (g *Game) pushDrawFx(playerID string, count int) {
	g.fxSeq++
	g.PushFX(lobby.OneShot{
		ID:    fmt.Sprintf("%s-drawfx-%d", g.Code, g.fxSeq),
		Event: "uno:drawFx",
		Payload: map[string]interface{}{
			"playerId": playerID,
			"count":    count,
		},
	})
}

// CardCount returns the total number of cards across hands and piles,
// used to assert conservation in tests.
func (g *Game) CardCount() int {
	n := len(g.DrawPile) + len(g.Discard)
	for _, h := range g.Hands {
		n += len(h)
	}
	return n
}

func cardDetail(c Card) string {
	switch c.Kind {
	case Number:
		return fmt.Sprintf("%s %d", c.Color, c.Value)
	case Wild, Wild4:
		return string(c.Kind)
	default:
		return fmt.Sprintf("%s %s", c.Color, c.Kind)
	}
}
