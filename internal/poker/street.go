package poker

// Street represents the betting round
type Street int

const (
	Preflop Street = iota
	Flop
	Turn
	River
	Showdown
)

func (s Street) String() string {
	return [...]string{"preflop", "flop", "turn", "river", "showdown"}[s]
}

// Action names accepted by Act.
const (
	ActionFold  = "fold"
	ActionCheck = "check"
	ActionCall  = "call"
	ActionBet   = "bet"
	ActionRaise = "raise"
	ActionAllIn = "all-in"
)

// Blind post and timeout pseudo-actions recorded in the action log.
const (
	actionSmallBlind  = "post_small_blind"
	actionBigBlind    = "post_big_blind"
	actionTimeoutFold = "timeout_fold"
	actionAutoCheck   = "timeout_check"
)
