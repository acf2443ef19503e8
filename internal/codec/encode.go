package codec

import (
	"errors"
	"strconv"
	"strings"

	"github.com/DoyleJ11/liars-table/internal/table"
	"github.com/DoyleJ11/liars-table/pkg/protocol"
)

var ErrMissingCounts = errors.New("missing card counts")
var ErrInvalidCount = errors.New("invalid card count")
var ErrNotStarted = errors.New("game not started")
var ErrNotRegistered = errors.New("not registered")
var ErrNoSelection = errors.New("no card selected")

// ValidationError is an intent the encoder refused to turn into a message.
// Message is meant for the player.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error, message string) *ValidationError {
	return &ValidationError{Message: message, Err: err}
}

func BuildRegister(identity int, known bool) protocol.Outbound {
	msg := protocol.Outbound{Type: protocol.TypeRegister}
	if known {
		msg.PlayerID = &identity
	}
	return msg
}

// BuildStart returns false once the game has started; the intent is then a no-op.
func BuildStart(s table.State) (protocol.Outbound, bool) {
	if s.Started {
		return protocol.Outbound{}, false
	}
	return protocol.Outbound{Type: protocol.TypeStartGame}, true
}

func BuildMove(s table.State, actual, fake string) (protocol.Outbound, error) {
	actual, fake = strings.TrimSpace(actual), strings.TrimSpace(fake)
	if actual == "" || fake == "" {
		return protocol.Outbound{}, invalid(ErrMissingCounts, "Please enter both actual and fake card counts")
	}
	a, err := parseCount(actual)
	if err != nil {
		return protocol.Outbound{}, invalid(err, "Actual count must be a whole number of zero or more")
	}
	f, err := parseCount(fake)
	if err != nil {
		return protocol.Outbound{}, invalid(err, "Fake count must be a whole number of zero or more")
	}
	if !s.Started {
		return protocol.Outbound{}, invalid(ErrNotStarted, "The game has not started yet")
	}
	if !s.Session.Registered {
		return protocol.Outbound{}, invalid(ErrNotRegistered, "Still waiting for the table to register you")
	}

	id := s.Session.Identity
	return protocol.Outbound{Type: protocol.TypeMove, PlayerID: &id, Actual: &a, Fake: &f}, nil
}

func BuildBluffCall(s table.State) (protocol.Outbound, error) {
	if !s.Session.Registered {
		return protocol.Outbound{}, invalid(ErrNotRegistered, "Still waiting for the table to register you")
	}
	id := s.Session.Identity
	return protocol.Outbound{Type: protocol.TypeBluff, PlayerID: &id}, nil
}

// BuildPlayCard emits the legacy PLAY_CARD command for the selected card.
func BuildPlayCard(s table.State) (protocol.Outbound, error) {
	if !s.Started {
		return protocol.Outbound{}, invalid(ErrNotStarted, "The game has not started yet")
	}
	if s.Selected == "" {
		return protocol.Outbound{}, invalid(ErrNoSelection, "Select a card first")
	}
	return protocol.Outbound{Type: protocol.TypePlayCard, Card: s.Selected}, nil
}

func parseCount(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, ErrInvalidCount
	}
	return n, nil
}
