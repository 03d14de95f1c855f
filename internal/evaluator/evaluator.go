package evaluator

import (
	"sort"

	"github.com/greenfelt/greenfelt/internal/deck"
)

// HandClass ranks hand categories from weakest to strongest.
type HandClass int

const (
	HighCard HandClass = iota + 1
	OnePair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

// String returns the readable name of the hand class
func (c HandClass) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case OnePair:
		return "One Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	case RoyalFlush:
		return "Royal Flush"
	default:
		return "Unknown"
	}
}

// Evaluated is the result of evaluating up to seven cards: the best five-card
// hand, its class, and the high-to-low tiebreak vector for that class.
type Evaluated struct {
	Class     HandClass
	Tiebreaks []int
	Cards     []deck.Card
}

// Compare returns >0 if a beats b, <0 if b beats a, 0 on an exact tie.
func Compare(a, b Evaluated) int {
	if a.Class != b.Class {
		return int(a.Class) - int(b.Class)
	}
	for i := 0; i < len(a.Tiebreaks) && i < len(b.Tiebreaks); i++ {
		if a.Tiebreaks[i] != b.Tiebreaks[i] {
			return a.Tiebreaks[i] - b.Tiebreaks[i]
		}
	}
	return 0
}

// Evaluate selects the best five-card hand from up to seven cards.
func Evaluate(cards []deck.Card) Evaluated {
	byRank := make(map[int][]deck.Card)
	bySuit := make(map[deck.Suit][]deck.Card)
	for _, c := range cards {
		byRank[c.Value()] = append(byRank[c.Value()], c)
		bySuit[c.Suit] = append(bySuit[c.Suit], c)
	}

	var flushCards []deck.Card
	for _, sc := range bySuit {
		if len(sc) >= 5 {
			flushCards = sc
			break
		}
	}

	// Straight flush first: a straight confined to the flush suit.
	if flushCards != nil {
		if high, run := findStraight(flushCards); high > 0 {
			if high == int(deck.Ace) {
				return Evaluated{Class: RoyalFlush, Tiebreaks: []int{high}, Cards: run}
			}
			return Evaluated{Class: StraightFlush, Tiebreaks: []int{high}, Cards: run}
		}
	}

	// Rank groups sorted by count desc, then rank desc.
	type group struct {
		rank  int
		cards []deck.Card
	}
	var groups []group
	for r, gc := range byRank {
		groups = append(groups, group{rank: r, cards: gc})
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].cards) != len(groups[j].cards) {
			return len(groups[i].cards) > len(groups[j].cards)
		}
		return groups[i].rank > groups[j].rank
	})

	kickers := func(exclude map[int]bool, n int) []deck.Card {
		rest := make([]deck.Card, 0, len(cards))
		for _, c := range cards {
			if !exclude[c.Value()] {
				rest = append(rest, c)
			}
		}
		sort.Slice(rest, func(i, j int) bool { return rest[i].Value() > rest[j].Value() })
		if n > len(rest) {
			n = len(rest)
		}
		return rest[:n]
	}

	if len(groups[0].cards) == 4 {
		quad := groups[0]
		ks := kickers(map[int]bool{quad.rank: true}, 1)
		hand := append(append([]deck.Card{}, quad.cards...), ks...)
		return Evaluated{Class: FourOfAKind, Tiebreaks: []int{quad.rank, ks[0].Value()}, Cards: hand}
	}

	if len(groups[0].cards) == 3 {
		trips := groups[0]
		// A second trips set serves as the pair using its top two cards.
		for _, g := range groups[1:] {
			if len(g.cards) >= 2 {
				pair := g.cards[:2]
				hand := append(append([]deck.Card{}, trips.cards...), pair...)
				return Evaluated{Class: FullHouse, Tiebreaks: []int{trips.rank, g.rank}, Cards: hand}
			}
		}
	}

	if flushCards != nil {
		sorted := append([]deck.Card{}, flushCards...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value() > sorted[j].Value() })
		hand := sorted[:5]
		tb := make([]int, 5)
		for i, c := range hand {
			tb[i] = c.Value()
		}
		return Evaluated{Class: Flush, Tiebreaks: tb, Cards: hand}
	}

	if high, run := findStraight(cards); high > 0 {
		return Evaluated{Class: Straight, Tiebreaks: []int{high}, Cards: run}
	}

	if len(groups[0].cards) == 3 {
		trips := groups[0]
		ks := kickers(map[int]bool{trips.rank: true}, 2)
		hand := append(append([]deck.Card{}, trips.cards...), ks...)
		tb := []int{trips.rank}
		for _, k := range ks {
			tb = append(tb, k.Value())
		}
		return Evaluated{Class: ThreeOfAKind, Tiebreaks: tb, Cards: hand}
	}

	if len(groups[0].cards) == 2 && len(groups) > 1 && len(groups[1].cards) == 2 {
		hi, lo := groups[0], groups[1]
		ks := kickers(map[int]bool{hi.rank: true, lo.rank: true}, 1)
		hand := append(append(append([]deck.Card{}, hi.cards...), lo.cards...), ks...)
		tb := []int{hi.rank, lo.rank}
		if len(ks) > 0 {
			tb = append(tb, ks[0].Value())
		}
		return Evaluated{Class: TwoPair, Tiebreaks: tb, Cards: hand}
	}

	if len(groups[0].cards) == 2 {
		pair := groups[0]
		ks := kickers(map[int]bool{pair.rank: true}, 3)
		hand := append(append([]deck.Card{}, pair.cards...), ks...)
		tb := []int{pair.rank}
		for _, k := range ks {
			tb = append(tb, k.Value())
		}
		return Evaluated{Class: OnePair, Tiebreaks: tb, Cards: hand}
	}

	ks := kickers(map[int]bool{}, 5)
	tb := make([]int, len(ks))
	for i, c := range ks {
		tb[i] = c.Value()
	}
	return Evaluated{Class: HighCard, Tiebreaks: tb, Cards: ks}
}

// findStraight locates the highest five-card run in the given cards, counting
// the Ace as 1 for the wheel. Returns the high card value (5 for the wheel)
// and one representative card per rank in high-to-low order.
func findStraight(cards []deck.Card) (int, []deck.Card) {
	byValue := make(map[int]deck.Card)
	for _, c := range cards {
		if _, ok := byValue[c.Value()]; !ok {
			byValue[c.Value()] = c
		}
		if c.IsAce() {
			if _, ok := byValue[1]; !ok {
				byValue[1] = c
			}
		}
	}

	for high := int(deck.Ace); high >= 5; high-- {
		run := make([]deck.Card, 0, 5)
		ok := true
		for v := high; v > high-5; v-- {
			c, present := byValue[v]
			if !present {
				ok = false
				break
			}
			run = append(run, c)
		}
		if ok {
			return high, run
		}
	}
	return 0, nil
}

// FindWinners returns the indices of the strongest hands among evals.
// Every index sharing the maximal (class, tiebreaks) is included.
func FindWinners(evals []Evaluated) []int {
	if len(evals) == 0 {
		return nil
	}
	best := []int{0}
	for i := 1; i < len(evals); i++ {
		cmp := Compare(evals[i], evals[best[0]])
		if cmp > 0 {
			best = []int{i}
		} else if cmp == 0 {
			best = append(best, i)
		}
	}
	return best
}
