package poker

import (
	"github.com/greenfelt/greenfelt/internal/deck"
)

// HandPlayer is a seat participating in the current hand. Stack is the
// working stack; it is written back to the lobby-level stack map at award.
type HandPlayer struct {
	ID         string
	LobbySeat  int
	Stack      int
	Bet        int // committed this street
	TotalBet   int // committed this hand
	HoleCards  []deck.Card
	Folded     bool
	AllIn      bool
	LastAction string
	LastBet    int
	Revealed   *bool // showdown override; nil means default reveal policy
}

// CanAct reports whether the player can still make betting decisions.
func (p *HandPlayer) CanAct() bool {
	return !p.Folded && !p.AllIn
}

// commit moves up to amount chips from stack into the current street bet.
// Returns the amount actually committed.
func (p *HandPlayer) commit(amount int) int {
	if amount > p.Stack {
		amount = p.Stack
	}
	p.Stack -= amount
	p.Bet += amount
	p.TotalBet += amount
	if p.Stack == 0 {
		p.AllIn = true
	}
	return amount
}
