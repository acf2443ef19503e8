package table

import "github.com/DoyleJ11/liars-table/pkg/protocol"

// Event is the closed set of inputs the reducer understands.
type Event interface{ isTableEvent() }

type EventType string

const (
	EvtRegistered  EventType = "REGISTERED"
	EvtTurn        EventType = "TURN"
	EvtGameState   EventType = "GAME_STATE"
	EvtDead        EventType = "DEAD"
	EvtHand        EventType = "HAND"
	EvtSnapshot    EventType = "SNAPSHOT"
	EvtSelectCard  EventType = "SELECT_CARD"
	EvtDraftMove   EventType = "DRAFT_MOVE"
	EvtClearDraft  EventType = "CLEAR_DRAFT"
	EvtLinkChanged EventType = "LINK_CHANGED"
)

// Authority events.

type Registered struct {
	Identity int
}

type Turn struct {
	PlayerID string
}

// GameState announces a round. Partial is set when it came from a legacy
// text frame that only carried the required card.
type GameState struct {
	RequiredCard string
	Message      string
	Partial      bool
}

type Dead struct {
	PlayerID string
}

type Hand struct {
	Cards []string
}

// Snapshot is a pull-transport state body. Nil fields were absent.
type Snapshot struct {
	PlayerStatus  map[string]bool
	CurrentPlayer *int
	RequiredCard  string
	Started       *bool
}

// Local events.

type SelectCard struct {
	Card string
}

type DraftMove struct {
	Actual string
	Fake   string
}

type ClearDraft struct{}

type LinkChanged struct {
	State LinkState
}

func (Registered) isTableEvent()  {}
func (Turn) isTableEvent()        {}
func (GameState) isTableEvent()   {}
func (Dead) isTableEvent()        {}
func (Hand) isTableEvent()        {}
func (Snapshot) isTableEvent()    {}
func (SelectCard) isTableEvent()  {}
func (DraftMove) isTableEvent()   {}
func (ClearDraft) isTableEvent()  {}
func (LinkChanged) isTableEvent() {}

// TypeOf names an event for logs and diagnostics.
func TypeOf(evt Event) EventType {
	switch evt.(type) {
	case Registered:
		return EvtRegistered
	case Turn:
		return EvtTurn
	case GameState:
		return EvtGameState
	case Dead:
		return EvtDead
	case Hand:
		return EvtHand
	case Snapshot:
		return EvtSnapshot
	case SelectCard:
		return EvtSelectCard
	case DraftMove:
		return EvtDraftMove
	case ClearDraft:
		return EvtClearDraft
	case LinkChanged:
		return EvtLinkChanged
	default:
		return ""
	}
}

func parsePlayerNumber(id string) (int, bool) {
	return protocol.PlayerRef(id).Number()
}
