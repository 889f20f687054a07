package domino

import (
	"fmt"
	"strings"
)

// maxMoveHints bounds the move previews shown to the player on turn.
const maxMoveHints = 3

// Render produces the board view for one player: the table chain with its
// open ends, opponents' hand sizes, the player's own hand and, on their
// turn, up to three playable move hints. Output is deterministic for a
// given state so repeated renders of the same turn match.
func (g *Game) Render(forPlayer string) string {
	s := g.state
	var b strings.Builder

	b.WriteString("Table: ")
	if len(s.Table) == 0 {
		b.WriteString("(empty)")
	} else {
		pieces := make([]string, len(s.Table))
		for i, p := range s.Table {
			pieces[i] = p.String()
		}
		b.WriteString(strings.Join(pieces, " "))
		fmt.Fprintf(&b, "\nOpen ends: %d / %d", *s.LeftEnd, *s.RightEnd)
	}
	b.WriteByte('\n')

	for _, p := range s.Players {
		if p == forPlayer {
			continue
		}
		fmt.Fprintf(&b, "Player %s holds %d piece(s)\n", p, len(s.Hands[p]))
	}

	if hand, ok := s.hand(forPlayer); ok {
		b.WriteString("Your hand: ")
		if len(hand) == 0 {
			b.WriteString("(empty)")
		} else {
			pieces := make([]string, len(hand))
			for i, p := range hand {
				pieces[i] = fmt.Sprintf("%s %s", p.ID, p)
			}
			b.WriteString(strings.Join(pieces, "  "))
		}
		b.WriteByte('\n')
	}

	if g.over() {
		b.WriteString("Round over.")
		return b.String()
	}

	if s.CurrentPlayer == forPlayer {
		moves := g.AvailableMoves(forPlayer)
		if len(moves) == 0 {
			b.WriteString("Your turn: no playable piece, you must pass.")
		} else {
			b.WriteString("Your turn. Playable:")
			for i, m := range moves {
				if i == maxMoveHints {
					fmt.Fprintf(&b, " (+%d more)", len(moves)-maxMoveHints)
					break
				}
				fmt.Fprintf(&b, " %s %s", m.Piece, m.Side)
			}
		}
	} else {
		fmt.Fprintf(&b, "Waiting for player %s to move.", s.CurrentPlayer)
	}
	return b.String()
}
