package poker

import "sort"

// Pot is a main or side pot with the set of hand-player indices eligible to
// win it.
type Pot struct {
	Amount   int
	Eligible []int
}

// buildPots constructs the main pot and side pots from total commitments,
// layered at each distinct commitment level of a non-folded player. Folded
// players' chips are forfeited into the layers they contributed to; only
// non-folded contributors at or above a layer's level are eligible for it.
func buildPots(players []*HandPlayer) []Pot {
	levels := map[int]bool{}
	for _, p := range players {
		if !p.Folded && p.TotalBet > 0 {
			levels[p.TotalBet] = true
		}
	}
	if len(levels) == 0 {
		return nil
	}

	sorted := make([]int, 0, len(levels))
	for lv := range levels {
		sorted = append(sorted, lv)
	}
	sort.Ints(sorted)

	var pots []Pot
	prev := 0
	for _, level := range sorted {
		pot := Pot{}
		for i, p := range players {
			contribution := p.TotalBet - prev
			if contribution > level-prev {
				contribution = level - prev
			}
			if contribution > 0 {
				pot.Amount += contribution
			}
			if !p.Folded && p.TotalBet >= level {
				pot.Eligible = append(pot.Eligible, i)
			}
		}
		if pot.Amount > 0 {
			pots = append(pots, pot)
		}
		prev = level
	}

	// A force-folded seat can be committed above every live level (e.g. a
	// disconnect fold after raising). Sweep the excess into the last pot so
	// chips stay conserved.
	excess := 0
	for _, p := range players {
		if p.TotalBet > prev {
			excess += p.TotalBet - prev
		}
	}
	if excess > 0 && len(pots) > 0 {
		pots[len(pots)-1].Amount += excess
	}
	return pots
}

// potTotal sums all pot amounts.
func potTotal(pots []Pot) int {
	total := 0
	for _, pot := range pots {
		total += pot.Amount
	}
	return total
}
