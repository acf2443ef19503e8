package table

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrUnknownPlayer = errors.New("unknown player")
var ErrCardNotInHand = errors.New("card not in hand")
var ErrUnsupportedEvent = errors.New("unsupported event")

const SeatCount = 4

// NoPlayer marks an unset current-player index.
const NoPlayer = -1

type Seat string

const (
	SeatTop    Seat = "top"
	SeatRight  Seat = "right"
	SeatBottom Seat = "bottom"
	SeatLeft   Seat = "left"
)

// SeatOrder is the fixed roster layout, index i holds player i+1.
var SeatOrder = [SeatCount]Seat{SeatTop, SeatRight, SeatBottom, SeatLeft}

type LinkState string

const (
	LinkDisconnected LinkState = "disconnected"
	LinkConnecting   LinkState = "connecting"
	LinkOpen         LinkState = "open"
	LinkClosed       LinkState = "closed"
)

type Player struct {
	ID    int
	Name  string
	Seat  Seat
	Alive bool
}

type Draft struct {
	Actual string
	Fake   string
}

type Session struct {
	Identity   int
	Registered bool
	Attempts   int
	Link       LinkState
}

type State struct {
	Players      []Player
	Current      int
	RequiredCard string
	Round        int
	Started      bool
	Status       string
	Hand         []string
	Selected     string
	Draft        Draft
	Session      Session
}

func NewState() State {
	s := State{
		Players: make([]Player, SeatCount),
		Current: NoPlayer,
		Session: Session{Link: LinkDisconnected},
	}
	for i, seat := range SeatOrder {
		s.Players[i] = Player{ID: i + 1, Name: fmt.Sprintf("Player %d", i+1), Seat: seat, Alive: true}
	}
	return s
}

// HasCurrent reports whether a current player is set.
func (s State) HasCurrent() bool {
	return s.Current >= 0 && s.Current < len(s.Players)
}

// Apply folds one event into the state. On error the input state is
// returned unchanged.
func Apply(s State, evt Event) (State, error) {
	next := s.clone()

	switch e := evt.(type) {
	case Registered:
		next.Session.Identity = e.Identity
		next.Session.Registered = true
		return next, nil

	case Turn:
		idx, err := seatIndex(next, e.PlayerID)
		if err != nil {
			return s, err
		}
		// Applied even if the seat is already dead, the authority decides turns.
		next.Current = idx
		return next, nil

	case GameState:
		next.RequiredCard = e.RequiredCard
		next.Started = true
		next.Round++
		// Legacy round text carries no message; keep the last one.
		if !e.Partial {
			next.Status = e.Message
		}
		return next, nil

	case Dead:
		idx, err := seatIndex(next, e.PlayerID)
		if err != nil {
			return s, err
		}
		next.Players[idx].Alive = false
		return next, nil

	case Hand:
		next.Hand = slices.Clone(e.Cards)
		if next.Hand == nil {
			next.Hand = []string{}
		}
		if next.Selected != "" && !slices.Contains(next.Hand, next.Selected) {
			next.Selected = ""
		}
		return next, nil

	case Snapshot:
		return applySnapshot(s, next, e)

	case SelectCard:
		if e.Card == "" {
			next.Selected = ""
			return next, nil
		}
		if !slices.Contains(next.Hand, e.Card) {
			return s, fmt.Errorf("%w: %q", ErrCardNotInHand, e.Card)
		}
		next.Selected = e.Card
		return next, nil

	case DraftMove:
		next.Draft = Draft{Actual: e.Actual, Fake: e.Fake}
		return next, nil

	case ClearDraft:
		next.Draft = Draft{}
		return next, nil

	case LinkChanged:
		if e.State == LinkOpen && next.Session.Link != LinkOpen {
			next.Session.Attempts++
		}
		// A dropped link needs a fresh REGISTERED; the identity stays as a hint.
		if e.State != LinkOpen && next.Session.Link == LinkOpen {
			next.Session.Registered = false
		}
		next.Session.Link = e.State
		return next, nil

	default:
		return s, ErrUnsupportedEvent
	}
}

func applySnapshot(s, next State, e Snapshot) (State, error) {
	if e.CurrentPlayer != nil {
		idx := *e.CurrentPlayer
		if idx < 0 || idx >= len(next.Players) {
			return s, fmt.Errorf("%w: current index %d", ErrUnknownPlayer, idx)
		}
		next.Current = idx
	}

	for name, alive := range e.PlayerStatus {
		idx, ok := playerByName(next, name)
		if !ok {
			// Entries for unseated names are ignored; the rest still applies.
			continue
		}
		next.Players[idx].Alive = alive
	}

	if e.RequiredCard != "" {
		next.RequiredCard = e.RequiredCard
	}
	if e.Started != nil && *e.Started {
		next.Started = true
	}
	return next, nil
}

// Reduce replays events from a fresh state, skipping the ones that fail.
func Reduce(events []Event) State {
	s := NewState()
	for _, evt := range events {
		if next, err := Apply(s, evt); err == nil {
			s = next
		}
	}
	return s
}

func (s State) clone() State {
	c := s
	c.Players = slices.Clone(s.Players)
	c.Hand = slices.Clone(s.Hand)
	return c
}

func seatIndex(s State, playerID string) (int, error) {
	n, ok := parsePlayerNumber(playerID)
	if !ok || n < 1 || n > len(s.Players) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPlayer, playerID)
	}
	return n - 1, nil
}

func playerByName(s State, name string) (int, bool) {
	want := normalizeName(name)
	for i, p := range s.Players {
		if normalizeName(p.Name) == want {
			return i, true
		}
	}
	return 0, false
}

// "Player 1", "player1" and "PLAYER 1" name the same seat.
func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}
