package codec

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/DoyleJ11/liars-table/internal/table"
	"github.com/DoyleJ11/liars-table/pkg/protocol"
)

// Decoder turns raw authority frames into table events. It never fails:
// anything it cannot make sense of is dropped.
type Decoder struct {
	log *zap.Logger
}

func NewDecoder(log *zap.Logger) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{log: log}
}

// Decode parses a push-transport frame. Structured JSON is tried first and
// the legacy text extractor only runs when that fails.
func (d *Decoder) Decode(raw []byte) (table.Event, bool) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		return d.legacy(raw)
	}

	evt, err := decodeTyped(env.Type, raw)
	if err != nil {
		d.log.Debug("dropping malformed frame", zap.String("type", env.Type), zap.Error(err))
		return nil, false
	}
	if evt == nil {
		d.log.Debug("dropping unrecognized frame type", zap.String("type", env.Type))
		return nil, false
	}
	return evt, true
}

// DecodeSnapshot parses a pull-transport state body.
func (d *Decoder) DecodeSnapshot(raw []byte) (table.Event, bool) {
	var snap protocol.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		d.log.Debug("dropping malformed snapshot", zap.Error(err))
		return nil, false
	}
	return table.Snapshot{
		PlayerStatus:  snap.PlayerStatus,
		CurrentPlayer: snap.CurrentPlayer,
		RequiredCard:  snap.RequiredCard,
		Started:       snap.IsGameStarted,
	}, true
}

func (d *Decoder) legacy(raw []byte) (table.Event, bool) {
	evt, ok := ExtractLegacy(string(raw))
	if ok {
		d.log.Debug("decoded legacy frame", zap.String("event", string(table.TypeOf(evt))))
	}
	return evt, ok
}

// decodeTyped returns a nil event for unknown types.
func decodeTyped(typ string, raw []byte) (table.Event, error) {
	switch typ {
	case protocol.TypeRegistered:
		var m protocol.Registered
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return table.Registered{Identity: m.PlayerID}, nil

	case protocol.TypeTurn:
		var m protocol.Turn
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return table.Turn{PlayerID: string(m.PlayerID)}, nil

	case protocol.TypeGameState:
		var m protocol.GameState
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return table.GameState{RequiredCard: m.CurrentRound, Message: m.Message}, nil

	case protocol.TypeDead:
		var m protocol.Dead
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return table.Dead{PlayerID: string(m.PlayerID)}, nil

	case protocol.TypeHand:
		var m protocol.Hand
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		cards := m.Cards
		if cards == nil {
			cards = []string{}
		}
		return table.Hand{Cards: cards}, nil

	default:
		return nil, nil
	}
}
