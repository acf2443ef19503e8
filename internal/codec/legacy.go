package codec

import (
	"regexp"
	"strings"

	"github.com/DoyleJ11/liars-table/internal/table"
)

// Older authorities send plain text lines such as
//
//	Your hand: [Q, Q, K, K, J]
//	Round: A
//	Your turn! Round is: K
var (
	handPattern  = regexp.MustCompile(`Your hand:\s*\[([^\]]*)\]`)
	roundPattern = regexp.MustCompile(`Round(?: is)?:\s*([A-Za-z0-9]+)`)
)

// ExtractLegacy scans a free-text frame for a hand or round announcement.
// A hand announcement wins when both are present.
func ExtractLegacy(text string) (table.Event, bool) {
	if m := handPattern.FindStringSubmatch(text); m != nil {
		return table.Hand{Cards: splitCards(m[1])}, true
	}
	if m := roundPattern.FindStringSubmatch(text); m != nil {
		return table.GameState{RequiredCard: m[1], Partial: true}, true
	}
	return nil, false
}

func splitCards(list string) []string {
	cards := []string{}
	for _, part := range strings.Split(list, ",") {
		if card := strings.TrimSpace(part); card != "" {
			cards = append(cards, card)
		}
	}
	return cards
}
