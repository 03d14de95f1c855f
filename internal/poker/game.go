package poker

import (
	"fmt"
	rand "math/rand/v2"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/greenfelt/greenfelt/internal/deck"
	"github.com/greenfelt/greenfelt/internal/evaluator"
	"github.com/greenfelt/greenfelt/internal/lobby"
)

// PotAward summarizes one resolved pot for the hand result.
type PotAward struct {
	Amount    int      `json:"amount"`
	WinnerIDs []string `json:"winnerIds"`
	HandName  string   `json:"handName,omitempty"`
}

// Game is the authoritative per-lobby hold'em state machine. Callers must
// serialize access; the dispatcher holds a per-lobby lock. The turn timer
// callback re-enters through the dispatcher, guarded by a turn sequence
// number so stale expiries no-op.
type Game struct {
	*lobby.Lobby

	rng    *rand.Rand
	logger *log.Logger
	clock  quartz.Clock

	SmallBlind    int
	BigBlind      int
	StartingStack int
	TurnTimeout   time.Duration

	// Stacks persists chip counts across hands for every seated player.
	Stacks map[string]int

	HandNum       int
	HandPlayers   []*HandPlayer
	Button        int
	CurrentStreet Street
	Board         []deck.Card
	CurrentBet    int
	LastRaise     int
	Acted         map[string]bool
	Current       int // index into HandPlayers, -1 when nobody acts
	TurnStartedAt time.Time
	LastAwards    []PotAward

	cards     *deck.Deck
	turnSeq   int
	turnTimer *quartz.Timer
	timeoutFn func(seq int)
	fxSeq     int
}

// Config carries the table parameters for a poker lobby.
type Config struct {
	SmallBlind    int
	BigBlind      int
	StartingStack int
	TurnTimeout   time.Duration
}

// NewGame creates a poker lobby in the lobby phase.
func NewGame(l *lobby.Lobby, cfg Config, rng *rand.Rand, clock quartz.Clock, logger *log.Logger) *Game {
	return &Game{
		Lobby:         l,
		rng:           rng,
		clock:         clock,
		logger:        logger.WithPrefix("poker").With("lobby", l.Code),
		SmallBlind:    cfg.SmallBlind,
		BigBlind:      cfg.BigBlind,
		StartingStack: cfg.StartingStack,
		TurnTimeout:   cfg.TurnTimeout,
		Stacks:        make(map[string]int),
		Button:        -1,
		Current:       -1,
	}
}

// SetTimeoutHandler installs the callback invoked when a turn timer fires.
// The handler receives the turn sequence it was armed for and must route
// back through the lobby's serialized executor before calling TimeoutTurn.
func (g *Game) SetTimeoutHandler(fn func(seq int)) {
	g.timeoutFn = fn
}

// BuyIn grants the starting stack to a newly seated player.
func (g *Game) BuyIn(playerID string) {
	if _, ok := g.Stacks[playerID]; !ok {
		g.Stacks[playerID] = g.StartingStack
	}
}

// StartHand deals a fresh hand. Allowed from the lobby or finished phase with
// at least two funded, connected players.
func (g *Game) StartHand() error {
	if g.Phase == lobby.PhasePlaying {
		return lobby.E(lobby.ErrPhase, "hand already in progress")
	}

	var eligible []*lobby.Player
	for _, p := range g.Players {
		if p.Connected && g.Stacks[p.ID] > 0 {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) < 2 {
		return lobby.E(lobby.ErrPhase, "need at least 2 funded connected players")
	}

	g.HandNum++
	g.Phase = lobby.PhasePlaying
	g.Celebration = nil
	g.RewardIssued = false
	g.LastAwards = nil
	g.Board = nil
	g.CurrentStreet = Preflop
	g.cards = deck.NewShuffled(g.rng)

	g.HandPlayers = make([]*HandPlayer, len(eligible))
	for i, p := range eligible {
		g.HandPlayers[i] = &HandPlayer{
			ID:        p.ID,
			LobbySeat: p.Seat,
			Stack:     g.Stacks[p.ID],
		}
	}

	n := len(g.HandPlayers)
	g.Button = (g.Button + 1) % n

	var sbPos, bbPos int
	if n == 2 {
		// Heads-up: the dealer posts the small blind and acts first preflop.
		sbPos = g.Button
		bbPos = (g.Button + 1) % n
	} else {
		sbPos = (g.Button + 1) % n
		bbPos = (g.Button + 2) % n
	}

	sb := g.HandPlayers[sbPos]
	bb := g.HandPlayers[bbPos]
	g.Log.Append(actionSmallBlind, sb.ID, fmt.Sprintf("%d", sb.commit(g.SmallBlind)))
	g.Log.Append(actionBigBlind, bb.ID, fmt.Sprintf("%d", bb.commit(g.BigBlind)))
	g.CurrentBet = g.BigBlind
	g.LastRaise = g.BigBlind
	g.Acted = make(map[string]bool)

	for _, p := range g.HandPlayers {
		p.HoleCards = g.cards.DealN(2)
	}

	first := (bbPos + 1) % n
	if n == 2 {
		first = g.Button
	}
	g.setTurn(g.nextToAct(first))
	if g.Current == -1 {
		// Both blinds went all-in posting; nothing to do but run the board.
		g.advanceStreet()
	}
	g.Log.Append("hand_started", "", fmt.Sprintf("hand %d", g.HandNum))
	g.Bump()
	g.logger.Info("Hand started", "hand", g.HandNum, "players", n, "button", g.Button)
	return nil
}

// Act processes a betting action from a player. For bet and raise, amount is
// the raise-to total for the street.
func (g *Game) Act(playerID, action string, amount int) error {
	if g.Phase != lobby.PhasePlaying {
		return lobby.E(lobby.ErrPhase, "no hand in progress")
	}
	if g.Current < 0 || g.CurrentStreet == Showdown {
		return lobby.E(lobby.ErrInvalidAction, "no action pending")
	}
	p := g.HandPlayers[g.Current]
	if p.ID != playerID {
		return lobby.E(lobby.ErrNotYourTurn, "not %s's turn", playerID)
	}

	toCall := g.CurrentBet - p.Bet

	switch action {
	case ActionFold:
		p.Folded = true

	case ActionCheck:
		if toCall > 0 {
			return lobby.E(lobby.ErrInvalidAction, "cannot check, %d to call", toCall)
		}

	case ActionCall:
		p.commit(toCall)

	case ActionBet, ActionRaise:
		if err := g.applyRaise(p, amount); err != nil {
			return err
		}

	case ActionAllIn:
		target := p.Bet + p.Stack
		if target > g.CurrentBet {
			if g.Acted[p.ID] {
				return lobby.E(lobby.ErrInvalidAction, "action not reopened, call or fold")
			}
			// All-in raises skip the minimum; short raises do not reopen.
			g.registerRaise(p, target)
		}
		p.commit(p.Stack)

	default:
		return lobby.E(lobby.ErrInvalidAction, "unknown action %q", action)
	}

	p.LastAction = action
	p.LastBet = p.Bet
	g.Acted[p.ID] = true
	g.Log.Append(action, p.ID, fmt.Sprintf("%d", p.Bet))
	g.afterAction()
	g.Bump()
	return nil
}

// applyRaise validates and applies a bet or raise to the given total. A
// player whose prior action still stands (a short all-in did not reopen the
// round) may only call or fold.
func (g *Game) applyRaise(p *HandPlayer, target int) error {
	if g.Acted[p.ID] {
		return lobby.E(lobby.ErrInvalidAction, "action not reopened, call or fold")
	}
	maxTotal := p.Bet + p.Stack
	if target > maxTotal {
		return lobby.E(lobby.ErrInvalidAction, "insufficient chips")
	}
	if target <= g.CurrentBet {
		return lobby.E(lobby.ErrInvalidAction, "raise must exceed current bet %d", g.CurrentBet)
	}
	minTarget := g.BigBlind
	if g.CurrentBet > 0 {
		minTarget = g.CurrentBet + g.LastRaise
	}
	if target < minTarget && target < maxTotal {
		return lobby.E(lobby.ErrInvalidAction, "raise too small, minimum %d", minTarget)
	}

	g.registerRaise(p, target)
	p.commit(target - p.Bet)
	return nil
}

// registerRaise updates betting state for a raise to the given total. A full
// raise reopens the action; an all-in short raise does not.
func (g *Game) registerRaise(p *HandPlayer, target int) {
	raiseSize := target - g.CurrentBet
	if raiseSize >= g.LastRaise {
		g.LastRaise = raiseSize
		g.Acted = map[string]bool{p.ID: true}
	}
	g.CurrentBet = target
}

// afterAction advances the turn, closes the round, or ends the hand.
func (g *Game) afterAction() {
	if g.countNonFolded() <= 1 {
		g.endHand(false)
		return
	}
	if g.roundComplete() {
		g.advanceStreet()
		return
	}
	g.setTurn(g.nextToAct(g.Current + 1))
}

func (g *Game) countNonFolded() int {
	n := 0
	for _, p := range g.HandPlayers {
		if !p.Folded {
			n++
		}
	}
	return n
}

func (g *Game) countCanAct() int {
	n := 0
	for _, p := range g.HandPlayers {
		if p.CanAct() {
			n++
		}
	}
	return n
}

// roundComplete reports whether the betting round is closed: every player
// able to act has acted and every non-folded player is matched or all-in.
func (g *Game) roundComplete() bool {
	for _, p := range g.HandPlayers {
		if p.Folded {
			continue
		}
		if p.CanAct() && !g.Acted[p.ID] {
			return false
		}
		if !p.AllIn && p.Bet != g.CurrentBet {
			return false
		}
	}
	return true
}

// nextToAct returns the first player able to act at or after `from`, or -1.
func (g *Game) nextToAct(from int) int {
	n := len(g.HandPlayers)
	for i := 0; i < n; i++ {
		pos := (from + i) % n
		if g.HandPlayers[pos].CanAct() {
			return pos
		}
	}
	return -1
}

// advanceStreet closes the betting round and moves to the next street,
// running out the board when at most one player can still act.
func (g *Game) advanceStreet() {
	for _, p := range g.HandPlayers {
		p.Bet = 0
	}
	g.CurrentBet = 0
	g.LastRaise = g.BigBlind
	g.Acted = make(map[string]bool)

	switch g.CurrentStreet {
	case Preflop:
		g.CurrentStreet = Flop
		g.Board = append(g.Board, g.cards.DealN(3)...)
	case Flop:
		g.CurrentStreet = Turn
		g.Board = append(g.Board, g.cards.DealN(1)...)
	case Turn:
		g.CurrentStreet = River
		g.Board = append(g.Board, g.cards.DealN(1)...)
	case River:
		g.endHand(true)
		return
	case Showdown:
		return
	}
	g.Log.Append("street", "", g.CurrentStreet.String())

	if g.countCanAct() <= 1 {
		// Everyone else is all-in: no more betting, run out the board.
		g.setTurn(-1)
		g.advanceStreet()
		return
	}
	g.setTurn(g.nextToAct((g.Button + 1) % len(g.HandPlayers)))
}

// endHand resolves pots and finishes the hand. showdown is false when the
// hand ended by folds and hole cards stay hidden.
func (g *Game) endHand(showdown bool) {
	g.setTurn(-1)
	g.CurrentStreet = Showdown

	pots := buildPots(g.HandPlayers)
	n := len(g.HandPlayers)
	var awards []PotAward

	for _, pot := range pots {
		winners := pot.Eligible
		handName := ""
		if showdown && len(pot.Eligible) > 1 {
			evals := make([]evaluator.Evaluated, len(pot.Eligible))
			for i, idx := range pot.Eligible {
				p := g.HandPlayers[idx]
				evals[i] = evaluator.Evaluate(append(append([]deck.Card{}, p.HoleCards...), g.Board...))
			}
			best := evaluator.FindWinners(evals)
			winners = make([]int, len(best))
			for i, b := range best {
				winners[i] = pot.Eligible[b]
			}
			handName = evals[best[0]].Class.String()
		}

		// Odd chips go to the earliest seat clockwise from the dealer.
		sort.Slice(winners, func(a, b int) bool {
			return (winners[a]-g.Button-1+2*n)%n < (winners[b]-g.Button-1+2*n)%n
		})

		share := pot.Amount / len(winners)
		remainder := pot.Amount % len(winners)
		award := PotAward{Amount: pot.Amount, HandName: handName}
		for i, idx := range winners {
			amt := share
			if i < remainder {
				amt++
			}
			g.HandPlayers[idx].Stack += amt
			award.WinnerIDs = append(award.WinnerIDs, g.HandPlayers[idx].ID)
		}
		awards = append(awards, award)
	}
	g.LastAwards = awards

	for _, p := range g.HandPlayers {
		p.TotalBet = 0
		p.Bet = 0
		g.Stacks[p.ID] = p.Stack
		if showdown && !p.Folded && p.Revealed == nil {
			shown := true
			p.Revealed = &shown
		}
	}

	g.Phase = lobby.PhaseFinished
	if len(awards) > 0 && len(awards[0].WinnerIDs) > 0 {
		winnerID := awards[0].WinnerIDs[0]
		g.fxSeq++
		g.Celebration = &lobby.Celebration{
			ID:        fmt.Sprintf("%s-celebration-%d-%d", g.Code, g.HandNum, g.fxSeq),
			WinnerID:  winnerID,
			EffectID:  "poker_win",
			CreatedAt: time.Now(),
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
	}
	g.Log.Append("hand_ended", "", "")
	g.logger.Info("Hand ended", "hand", g.HandNum, "showdown", showdown, "pots", len(awards))
}

// TimeoutTurn handles a fired turn timer. Stale sequences no-op; otherwise
// the player auto-checks when nothing is owed and auto-folds otherwise.
func (g *Game) TimeoutTurn(seq int) {
	if seq != g.turnSeq || g.Phase != lobby.PhasePlaying || g.Current < 0 {
		return
	}
	p := g.HandPlayers[g.Current]
	if g.CurrentBet > p.Bet {
		p.Folded = true
		p.LastAction = ActionFold
		g.Log.Append(actionTimeoutFold, p.ID, "")
	} else {
		p.LastAction = ActionCheck
		g.Log.Append(actionAutoCheck, p.ID, "")
	}
	g.Acted[p.ID] = true
	g.afterAction()
	g.Bump()
	g.logger.Info("Turn timed out", "player", p.ID)
}

// ForceFold folds a seat out of turn, used when a leave finalizes mid-hand.
func (g *Game) ForceFold(playerID string) {
	if g.Phase != lobby.PhasePlaying {
		return
	}
	var idx int = -1
	for i, p := range g.HandPlayers {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx == -1 || g.HandPlayers[idx].Folded {
		return
	}

	p := g.HandPlayers[idx]
	p.Folded = true
	p.LastAction = ActionFold
	g.Acted[p.ID] = true
	g.Log.Append(ActionFold, p.ID, "disconnected")

	if g.countNonFolded() <= 1 {
		g.endHand(false)
	} else if idx == g.Current {
		if g.roundComplete() {
			g.advanceStreet()
		} else {
			g.setTurn(g.nextToAct(idx + 1))
		}
	} else if g.roundComplete() {
		g.advanceStreet()
	}
	g.Bump()
}

// Reveal records a showdown participant's choice to show or muck. Only valid
// after the hand has finished and before the next hand starts.
func (g *Game) Reveal(playerID string, reveal bool) error {
	if g.Phase != lobby.PhaseFinished {
		return lobby.E(lobby.ErrPhase, "no finished hand")
	}
	for _, p := range g.HandPlayers {
		if p.ID == playerID {
			if p.Folded {
				return lobby.E(lobby.ErrInvalidAction, "folded players have nothing to reveal")
			}
			p.Revealed = &reveal
			g.Bump()
			return nil
		}
	}
	return lobby.E(lobby.ErrNotFound, "player %s not in hand", playerID)
}

// Pots returns the live pot layering including uncollected street bets.
func (g *Game) Pots() []Pot {
	return buildPots(g.HandPlayers)
}

// ChipTotal sums working stacks and commitments, for invariant checks.
func (g *Game) ChipTotal() int {
	total := 0
	for _, p := range g.HandPlayers {
		total += p.Stack + p.TotalBet
	}
	return total
}

// TurnSeq exposes the current turn sequence for timer plumbing.
func (g *Game) TurnSeq() int {
	return g.turnSeq
}

// CancelTurnTimer stops any pending turn timer, e.g. on lobby teardown.
func (g *Game) CancelTurnTimer() {
	if g.turnTimer != nil {
		g.turnTimer.Stop()
		g.turnTimer = nil
	}
}

// setTurn hands the action to the seat at idx and re-arms the turn timer.
func (g *Game) setTurn(idx int) {
	g.CancelTurnTimer()
	g.turnSeq++
	g.Current = idx
	if idx < 0 {
		return
	}
	g.TurnStartedAt = g.clock.Now()
	if g.TurnTimeout > 0 && g.timeoutFn != nil {
		seq := g.turnSeq
		g.turnTimer = g.clock.AfterFunc(g.TurnTimeout, func() {
			g.timeoutFn(seq)
		})
	}
}
