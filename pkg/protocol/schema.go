package protocol

import (
	"sort"

	"github.com/invopop/jsonschema"
)

// Schemas reflects a JSON schema for every structured wire message, keyed by
// type identifier. The pull snapshot is keyed as "SNAPSHOT".
func Schemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	describe := func(v any, title, description string) *jsonschema.Schema {
		s := reflector.Reflect(v)
		s.Title = title
		s.Description = description
		return s
	}

	return map[string]*jsonschema.Schema{
		TypeRegister:   describe(new(Outbound), "Outbound command", "REGISTER, MOVE and BLUFF sent to the authority"),
		TypeRegistered: describe(new(Registered), "Registration confirmed", "Identity assigned by the authority"),
		TypeTurn:       describe(new(Turn), "Turn", "Player whose turn it is, as player<N>"),
		TypeGameState:  describe(new(GameState), "Game state", "Round announcement with the required card"),
		TypeDead:       describe(new(Dead), "Player eliminated", "Player marked dead by the authority"),
		TypeHand:       describe(new(Hand), "Hand", "Local player's full hand"),
		"SNAPSHOT":     describe(new(Snapshot), "Table snapshot", "Body of the pull transport state endpoint"),
	}
}

// SchemaNames returns the keys of Schemas in a stable order.
func SchemaNames() []string {
	names := make([]string, 0, 7)
	for name := range Schemas() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
