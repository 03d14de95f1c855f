package uno

// Color is one of the four UNO colors. Wild cards carry no color.
type Color string

const (
	Red    Color = "red"
	Green  Color = "green"
	Blue   Color = "blue"
	Yellow Color = "yellow"
)

// Colors lists the four playable colors.
var Colors = []Color{Red, Green, Blue, Yellow}

// Valid reports whether c is one of the four playable colors.
func (c Color) Valid() bool {
	switch c {
	case Red, Green, Blue, Yellow:
		return true
	}
	return false
}

// Kind is the face variant of a card.
type Kind string

const (
	Number  Kind = "number"
	Skip    Kind = "skip"
	Reverse Kind = "reverse"
	Draw2   Kind = "draw2"
	Wild    Kind = "wild"
	Wild4   Kind = "wild4"
)

// Card is a single UNO card. The ID is unique within a lobby's deck for the
// lobby's lifetime; Value is meaningful only for Number cards.
type Card struct {
	ID    int   `json:"id"`
	Kind  Kind  `json:"kind"`
	Color Color `json:"color,omitempty"`
	Value int   `json:"value,omitempty"`
}

// IsWild reports whether the card is a Wild or Wild Draw Four.
func (c Card) IsWild() bool {
	return c.Kind == Wild || c.Kind == Wild4
}

// isAction reports whether the card is a colored action card.
func (c Card) isAction() bool {
	return c.Kind == Skip || c.Kind == Reverse || c.Kind == Draw2
}

// NewDeck builds the canonical 108-card UNO deck in order, with stable ids
// 1..108. Per color: one 0, two each of 1-9, two Skip, two Reverse, two Draw2;
// plus four Wild and four Wild Draw Four.
func NewDeck() []Card {
	cards := make([]Card, 0, 108)
	id := 0
	next := func(kind Kind, color Color, value int) {
		id++
		cards = append(cards, Card{ID: id, Kind: kind, Color: color, Value: value})
	}

	for _, color := range Colors {
		next(Number, color, 0)
		for v := 1; v <= 9; v++ {
			next(Number, color, v)
			next(Number, color, v)
		}
		for i := 0; i < 2; i++ {
			next(Skip, color, 0)
			next(Reverse, color, 0)
			next(Draw2, color, 0)
		}
	}
	for i := 0; i < 4; i++ {
		next(Wild, "", 0)
		next(Wild4, "", 0)
	}
	return cards
}
