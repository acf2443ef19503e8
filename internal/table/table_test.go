package table

import (
	"testing"

	"github.com/DoyleJ11/liars-table/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apply(t *testing.T, s State, events ...Event) State {
	t.Helper()
	for _, evt := range events {
		next, err := Apply(s, evt)
		require.NoError(t, err, "apply %s", TypeOf(evt))
		s = next
	}
	return s
}

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func TestNewState_RosterSeatsAreDistinct(t *testing.T) {
	s := NewState()
	require.Len(t, s.Players, SeatCount)

	seen := map[Seat]bool{}
	for i, p := range s.Players {
		assert.Equal(t, i+1, p.ID)
		assert.True(t, p.Alive)
		assert.False(t, seen[p.Seat], "seat %s used twice", p.Seat)
		seen[p.Seat] = true
	}
	assert.Equal(t, NoPlayer, s.Current)
	assert.False(t, s.HasCurrent())
	assert.Equal(t, 0, s.Round)
	assert.False(t, s.Started)
}

func TestScenario_RegisterRoundTurnHand(t *testing.T) {
	s := apply(t, NewState(),
		Registered{Identity: 2},
		GameState{RequiredCard: "Q", Message: "Round started"},
		Turn{PlayerID: "player2"},
		Hand{Cards: []string{"Q", "Q", "K"}},
	)

	assert.Equal(t, 2, s.Session.Identity)
	assert.True(t, s.Session.Registered)
	assert.True(t, s.Started)
	assert.Equal(t, 1, s.Round)
	assert.Equal(t, "Q", s.RequiredCard)
	assert.Equal(t, "Round started", s.Status)
	assert.Equal(t, 1, s.Current)
	assert.Equal(t, []string{"Q", "Q", "K"}, s.Hand)
}

func TestDeadWhileCurrent_KeepsCurrentIndex(t *testing.T) {
	s := apply(t, NewState(), Turn{PlayerID: "player3"})
	require.Equal(t, 2, s.Current)

	s = apply(t, s, Dead{PlayerID: "player3"})
	assert.Equal(t, 2, s.Current)
	assert.False(t, s.Players[2].Alive)
}

func TestDead_OnlyTouchesTargetSeat(t *testing.T) {
	for i := 0; i < SeatCount; i++ {
		before := NewState()
		after := apply(t, before, Dead{PlayerID: protocol.PlayerTag(i + 1)})
		for j := range after.Players {
			if j == i {
				assert.False(t, after.Players[j].Alive)
				continue
			}
			assert.Equal(t, before.Players[j], after.Players[j])
		}
	}
}

func TestTurn_OnDeadPlayerStillApplies(t *testing.T) {
	s := apply(t, NewState(), Dead{PlayerID: "player4"}, Turn{PlayerID: "player4"})
	assert.Equal(t, 3, s.Current)
}

func TestRound_IncreasesByOnePerGameState(t *testing.T) {
	events := []Event{
		GameState{RequiredCard: "A"},
		Turn{PlayerID: "player1"},
		Hand{Cards: []string{"A"}},
		GameState{RequiredCard: "K", Partial: true},
		Dead{PlayerID: "player2"},
		Snapshot{RequiredCard: "Q", Started: boolPtr(true)},
		GameState{RequiredCard: "Q"},
	}

	s := NewState()
	rounds := 0
	for _, evt := range events {
		prev := s.Round
		s = apply(t, s, evt)
		if _, ok := evt.(GameState); ok {
			rounds++
			assert.Equal(t, prev+1, s.Round)
		} else {
			assert.Equal(t, prev, s.Round)
		}
	}
	assert.Equal(t, rounds, s.Round)
}

func TestHand_ReplacesWholesale(t *testing.T) {
	cases := []struct {
		name  string
		prior []string
		next  []string
	}{
		{name: "empty to cards", prior: nil, next: []string{"A", "K"}},
		{name: "cards to fewer", prior: []string{"Q", "Q", "K", "J"}, next: []string{"J"}},
		{name: "cards to empty", prior: []string{"A"}, next: []string{}},
		{name: "same size different", prior: []string{"A", "A"}, next: []string{"K", "Q"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := apply(t, NewState(), Hand{Cards: tc.prior}, Hand{Cards: tc.next})
			assert.Equal(t, tc.next, s.Hand)
		})
	}
}

func TestHand_DoesNotAliasEventSlice(t *testing.T) {
	cards := []string{"A", "K"}
	s := apply(t, NewState(), Hand{Cards: cards})
	cards[0] = "J"
	assert.Equal(t, []string{"A", "K"}, s.Hand)
}

func TestHand_ClearsStaleSelection(t *testing.T) {
	s := apply(t, NewState(), Hand{Cards: []string{"A", "K"}}, SelectCard{Card: "K"})
	require.Equal(t, "K", s.Selected)

	kept := apply(t, s, Hand{Cards: []string{"K", "Q"}})
	assert.Equal(t, "K", kept.Selected)

	cleared := apply(t, s, Hand{Cards: []string{"A", "Q"}})
	assert.Empty(t, cleared.Selected)
}

func TestRegistered_IdempotentAndOverwrites(t *testing.T) {
	s := apply(t, NewState(), Registered{Identity: 3})
	again := apply(t, s, Registered{Identity: 3})
	assert.Equal(t, s, again)

	moved := apply(t, s, Registered{Identity: 1})
	assert.Equal(t, 1, moved.Session.Identity)
}

func TestUnknownPlayer_Rejected(t *testing.T) {
	cases := []struct {
		name string
		evt  Event
	}{
		{name: "turn player0", evt: Turn{PlayerID: "player0"}},
		{name: "turn player5", evt: Turn{PlayerID: "player5"}},
		{name: "turn garbage", evt: Turn{PlayerID: "dealer"}},
		{name: "dead negative", evt: Dead{PlayerID: "-1"}},
		{name: "dead empty", evt: Dead{PlayerID: ""}},
		{name: "snapshot index", evt: Snapshot{CurrentPlayer: intPtr(4)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := apply(t, NewState(), Turn{PlayerID: "player1"})
			after, err := Apply(before, tc.evt)
			require.ErrorIs(t, err, ErrUnknownPlayer)
			assert.Equal(t, before, after)
			assert.Len(t, after.Players, SeatCount)
		})
	}
}

func TestCurrent_AlwaysInRange(t *testing.T) {
	events := []Event{
		Turn{PlayerID: "player9"},
		Turn{PlayerID: "player4"},
		Snapshot{CurrentPlayer: intPtr(-2)},
		Snapshot{CurrentPlayer: intPtr(0)},
		Turn{PlayerID: "2"},
		Dead{PlayerID: "player2"},
	}
	s := NewState()
	for _, evt := range events {
		if next, err := Apply(s, evt); err == nil {
			s = next
		}
		assert.True(t, s.Current == NoPlayer || (s.Current >= 0 && s.Current < SeatCount))
	}
	assert.Equal(t, 1, s.Current)
}

func TestSnapshot_AppliesLivenessAndStart(t *testing.T) {
	s := apply(t, NewState(), Snapshot{
		PlayerStatus:  map[string]bool{"Player 1": true, "Player2": false, "player 4": false, "Ghost": false},
		CurrentPlayer: intPtr(2),
		RequiredCard:  "K",
		Started:       boolPtr(true),
	})

	assert.True(t, s.Players[0].Alive)
	assert.False(t, s.Players[1].Alive)
	assert.True(t, s.Players[2].Alive)
	assert.False(t, s.Players[3].Alive)
	assert.Equal(t, 2, s.Current)
	assert.Equal(t, "K", s.RequiredCard)
	assert.True(t, s.Started)
	assert.Equal(t, 0, s.Round)

	// started never reverts
	s = apply(t, s, Snapshot{Started: boolPtr(false)})
	assert.True(t, s.Started)
}

func TestSelectCard(t *testing.T) {
	s := apply(t, NewState(), Hand{Cards: []string{"Q", "J"}})

	_, err := Apply(s, SelectCard{Card: "A"})
	require.ErrorIs(t, err, ErrCardNotInHand)

	s = apply(t, s, SelectCard{Card: "J"})
	assert.Equal(t, "J", s.Selected)

	s = apply(t, s, SelectCard{})
	assert.Empty(t, s.Selected)
}

func TestDraftMove(t *testing.T) {
	s := apply(t, NewState(), DraftMove{Actual: "2", Fake: "x"})
	assert.Equal(t, Draft{Actual: "2", Fake: "x"}, s.Draft)

	s = apply(t, s, ClearDraft{})
	assert.Equal(t, Draft{}, s.Draft)
}

func TestLinkChanged_CountsRegistrationAttempts(t *testing.T) {
	s := apply(t, NewState(),
		LinkChanged{State: LinkConnecting},
		LinkChanged{State: LinkOpen},
		LinkChanged{State: LinkOpen},
		LinkChanged{State: LinkClosed},
		LinkChanged{State: LinkConnecting},
		LinkChanged{State: LinkOpen},
	)
	assert.Equal(t, 2, s.Session.Attempts)
	assert.Equal(t, LinkOpen, s.Session.Link)
}

func TestLinkDrop_RequiresFreshRegistration(t *testing.T) {
	s := apply(t, NewState(),
		LinkChanged{State: LinkOpen},
		Registered{Identity: 2},
		LinkChanged{State: LinkClosed},
		LinkChanged{State: LinkConnecting},
		LinkChanged{State: LinkOpen},
	)
	assert.False(t, s.Session.Registered)
	assert.Equal(t, 2, s.Session.Identity, "identity kept as the re-register hint")

	s = apply(t, s, Registered{Identity: 3})
	assert.True(t, s.Session.Registered)
	assert.Equal(t, 3, s.Session.Identity)
}

func TestLinkChanged_RegistrationSurvivesWhileOpen(t *testing.T) {
	s := apply(t, NewState(),
		Registered{Identity: 1},
		LinkChanged{State: LinkOpen},
		LinkChanged{State: LinkOpen},
	)
	assert.True(t, s.Session.Registered)
}

func TestGameState_PartialKeepsStatus(t *testing.T) {
	s := apply(t, NewState(),
		GameState{RequiredCard: "Q", Message: "Player 2 called bluff!"},
		GameState{RequiredCard: "K", Partial: true},
	)
	assert.Equal(t, "Player 2 called bluff!", s.Status)
	assert.Equal(t, "K", s.RequiredCard)
	assert.Equal(t, 2, s.Round)

	s = apply(t, s, GameState{RequiredCard: "A"})
	assert.Empty(t, s.Status, "full GAME_STATE replaces the message")
}

func TestReduce_SkipsRejectedEvents(t *testing.T) {
	s := Reduce([]Event{
		GameState{RequiredCard: "A"},
		Turn{PlayerID: "player7"},
		Turn{PlayerID: "player3"},
		GameState{RequiredCard: "K"},
	})
	assert.Equal(t, 2, s.Round)
	assert.Equal(t, 2, s.Current)
	assert.Equal(t, "K", s.RequiredCard)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	before := apply(t, NewState(), Hand{Cards: []string{"A"}})
	_ = apply(t, before, Dead{PlayerID: "player1"}, Hand{Cards: []string{"K"}})
	assert.True(t, before.Players[0].Alive)
	assert.Equal(t, []string{"A"}, before.Hand)
}
