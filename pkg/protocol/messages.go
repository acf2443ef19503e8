package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Client -> Authority
// REGISTER:
//   playerId?: number   (omitted on first registration)
//
// MOVE:
//   playerId: number
//   actual: number
//   fake: number
//
// BLUFF:
//   playerId: number
//
// Legacy plain-text commands (pull transport):
//   START_GAME
//   PLAY_CARD:<symbol>

// Outbound type identifiers.
const (
	TypeRegister  = "REGISTER"
	TypeMove      = "MOVE"
	TypeBluff     = "BLUFF"
	TypeStartGame = "START_GAME"
	TypePlayCard  = "PLAY_CARD"
)

// Authority -> Client
// REGISTERED: playerId: number
// TURN:       playerId: "player<N>" (1-based)
// GAME_STATE: currentRound: string, message?: string
// DEAD:       playerId: "player<N>"
// HAND:       cards: string[]

// Inbound type identifiers.
const (
	TypeRegistered = "REGISTERED"
	TypeTurn       = "TURN"
	TypeGameState  = "GAME_STATE"
	TypeDead       = "DEAD"
	TypeHand       = "HAND"
)

// Outbound is a message sent to the authority. START_GAME and PLAY_CARD are
// legacy commands and serialize as plain text; the rest are JSON objects.
type Outbound struct {
	Type     string `json:"type" jsonschema:"enum=REGISTER,enum=MOVE,enum=BLUFF"`
	PlayerID *int   `json:"playerId,omitempty" jsonschema:"minimum=1"`
	Actual   *int   `json:"actual,omitempty" jsonschema:"minimum=0"`
	Fake     *int   `json:"fake,omitempty" jsonschema:"minimum=0"`
	Card     string `json:"-" jsonschema:"-"`
}

// Legacy reports whether the message uses the plain-text command form.
func (o Outbound) Legacy() bool {
	return o.Type == TypeStartGame || o.Type == TypePlayCard
}

// Marshal renders the message in its wire form.
func (o Outbound) Marshal() ([]byte, error) {
	switch o.Type {
	case TypeStartGame:
		return []byte(TypeStartGame), nil
	case TypePlayCard:
		if o.Card == "" {
			return nil, fmt.Errorf("%s without card", TypePlayCard)
		}
		return []byte(TypePlayCard + ":" + o.Card), nil
	case TypeRegister, TypeMove, TypeBluff:
		return json.Marshal(o)
	default:
		return nil, fmt.Errorf("unknown outbound type %q", o.Type)
	}
}

// Envelope carries only the discriminator of an inbound frame.
type Envelope struct {
	Type string `json:"type"`
}

type Registered struct {
	Type     string `json:"type"`
	PlayerID int    `json:"playerId"`
}

type Turn struct {
	Type     string    `json:"type"`
	PlayerID PlayerRef `json:"playerId"`
}

type GameState struct {
	Type         string `json:"type"`
	CurrentRound string `json:"currentRound"`
	Message      string `json:"message,omitempty"`
}

type Dead struct {
	Type     string    `json:"type"`
	PlayerID PlayerRef `json:"playerId"`
}

type Hand struct {
	Type  string   `json:"type"`
	Cards []string `json:"cards"`
}

// Snapshot is the body served by the pull transport's state endpoint.
type Snapshot struct {
	PlayerStatus  map[string]bool `json:"playerStatus,omitempty"`
	CurrentPlayer *int            `json:"currentPlayer,omitempty"`
	RequiredCard  string          `json:"requiredCard,omitempty"`
	IsGameStarted *bool           `json:"isGameStarted,omitempty"`
}

// PlayerRef is a player reference as sent by the authority. It accepts
// "player<N>", "<N>" or a bare JSON number.
type PlayerRef string

func (p *PlayerRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PlayerRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("player ref: %w", err)
	}
	*p = PlayerRef(n.String())
	return nil
}

// Number returns the 1-based player number.
func (p PlayerRef) Number() (int, bool) {
	s := strings.TrimSpace(strings.ToLower(string(p)))
	s = strings.TrimPrefix(s, "player")
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// PlayerTag formats a 1-based player number the way the authority does.
func PlayerTag(n int) string {
	return "player" + strconv.Itoa(n)
}
