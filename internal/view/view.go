package view

import (
	"fmt"

	"github.com/DoyleJ11/liars-table/internal/table"
)

const WaitingStatus = "Waiting for game to start..."

type Visual string

const (
	VisualIdle    Visual = "idle"
	VisualAlive   Visual = "alive"
	VisualCurrent Visual = "current"
	VisualDead    Visual = "dead"
)

type Seat struct {
	Index   int        `json:"index"`
	Name    string     `json:"name"`
	Seat    table.Seat `json:"seat"`
	Visual  Visual     `json:"visual"`
	Alive   bool       `json:"alive"`
	Current bool       `json:"current"`
	Local   bool       `json:"local"`
}

type Card struct {
	Symbol   string `json:"symbol"`
	Face     string `json:"face"`
	Selected bool   `json:"selected"`
}

type Affordances struct {
	CanStart    bool `json:"canStart"`
	CanSubmit   bool `json:"canSubmit"`
	CanBluff    bool `json:"canBluff"`
	CanSelect   bool `json:"canSelect"`
	CanPlayCard bool `json:"canPlayCard"`
}

// View is the read-only projection handed to the renderer.
type View struct {
	Seats        []Seat      `json:"seats"`
	Status       string      `json:"status"`
	TurnBanner   string      `json:"turnBanner,omitempty"`
	YourTurn     bool        `json:"yourTurn"`
	RequiredCard string      `json:"requiredCard,omitempty"`
	Round        int         `json:"round"`
	Started      bool        `json:"started"`
	Hand         []Card      `json:"hand"`
	DraftActual  string      `json:"draftActual"`
	DraftFake    string      `json:"draftFake"`
	Identity     *int        `json:"identity,omitempty"`
	Link         string      `json:"link"`
	Actions      Affordances `json:"actions"`
}

// Project derives the view from the state alone.
func Project(s table.State) View {
	v := View{
		Status:       StatusLine(s),
		RequiredCard: s.RequiredCard,
		Round:        s.Round,
		Started:      s.Started,
		DraftActual:  s.Draft.Actual,
		DraftFake:    s.Draft.Fake,
		Link:         string(s.Session.Link),
		Seats:        make([]Seat, len(s.Players)),
		Hand:         make([]Card, len(s.Hand)),
	}

	registered := s.Session.Registered
	if registered {
		id := s.Session.Identity
		v.Identity = &id
	}

	for i, p := range s.Players {
		current := s.HasCurrent() && s.Current == i
		v.Seats[i] = Seat{
			Index:   i,
			Name:    p.Name,
			Seat:    p.Seat,
			Visual:  seatVisual(s, p, current),
			Alive:   p.Alive,
			Current: current,
			Local:   registered && p.ID == s.Session.Identity,
		}
	}

	if s.HasCurrent() {
		p := s.Players[s.Current]
		v.TurnBanner = fmt.Sprintf("It's %s's turn!", p.Name)
		v.YourTurn = registered && p.ID == s.Session.Identity
	}

	for i, symbol := range s.Hand {
		v.Hand[i] = Card{Symbol: symbol, Face: CardFace(symbol), Selected: symbol == s.Selected}
	}

	v.Actions = Affordances{
		CanStart:    !s.Started,
		CanSubmit:   s.Started && registered,
		CanBluff:    registered,
		CanSelect:   s.Started && len(s.Hand) > 0,
		CanPlayCard: s.Started && s.Selected != "",
	}
	return v
}

// StatusLine picks the server message, then the round, then the default.
func StatusLine(s table.State) string {
	switch {
	case s.Status != "":
		return s.Status
	case s.RequiredCard != "":
		return fmt.Sprintf("Round %d: Need to play a: %s", s.Round, s.RequiredCard)
	default:
		return WaitingStatus
	}
}

func seatVisual(s table.State, p table.Player, current bool) Visual {
	switch {
	case !p.Alive:
		return VisualDead
	case current:
		return VisualCurrent
	case s.Started:
		return VisualAlive
	default:
		return VisualIdle
	}
}

// CardFace maps a card symbol to its face name; unknown symbols show the back.
func CardFace(symbol string) string {
	switch symbol {
	case "A":
		return "ace"
	case "K":
		return "king"
	case "Q":
		return "queen"
	case "J":
		return "joker"
	default:
		return "card-back"
	}
}
