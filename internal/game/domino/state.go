package domino

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Side names an open end of the table chain.
type Side string

// The two ends a piece can be played against.
const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Valid reports whether s is left or right.
func (s Side) Valid() bool {
	return s == SideLeft || s == SideRight
}

// Piece is one domino: an unordered pair of pip values 0-6 plus a stable
// id. A piece may be stored flipped (values swapped) to match the chain
// it was placed into; flipping never changes its identity.
type Piece struct {
	ID    string `json:"id"`
	Left  int    `json:"left"`
	Right int    `json:"right"`
}

// Pips returns the point value of the piece.
func (p Piece) Pips() int {
	return p.Left + p.Right
}

// Matches reports whether either half of the piece carries value v.
func (p Piece) Matches(v int) bool {
	return p.Left == v || p.Right == v
}

// flipped returns the piece with its halves swapped.
func (p Piece) flipped() Piece {
	return Piece{ID: p.ID, Left: p.Right, Right: p.Left}
}

// String renders the piece as [l|r].
func (p Piece) String() string {
	return fmt.Sprintf("[%d|%d]", p.Left, p.Right)
}

// Move records one placement.
type Move struct {
	Player string `json:"player"`
	Piece  Piece  `json:"piece"`
	Side   Side   `json:"side"`
}

// State is the complete, serializable state of one domino round. It is
// plain data: the engine operates on it, the orchestration service round-
// trips it through the match record between turns.
//
// Players fixes the circular turn order established at deal time; Hands
// is keyed by the same player keys. Every piece lives in exactly one of
// Deck, Table or a hand.
type State struct {
	Deck          []Piece            `json:"deck"`
	Table         []Piece            `json:"table"`
	Hands         map[string][]Piece `json:"hands"`
	Players       []string           `json:"players"`
	LeftEnd       *int               `json:"left_end"`
	RightEnd      *int               `json:"right_end"`
	CurrentPlayer string             `json:"current_player"`
	Scores        map[string]int     `json:"scores"`
	Started       bool               `json:"started"`
	Blocked       bool               `json:"blocked"`
	LastMove      *Move              `json:"last_move,omitempty"`
}

// PlayerKey converts a participant id to the key used in Hands/Players.
func PlayerKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Marshal serializes the state for persistence.
func (s *State) Marshal() (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal domino state: %w", err)
	}
	return data, nil
}

// UnmarshalState restores a state persisted by Marshal.
func UnmarshalState(data json.RawMessage) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal domino state: %w", err)
	}
	return &s, nil
}

// hand returns the player's hand and whether the player is part of the game.
func (s *State) hand(player string) ([]Piece, bool) {
	h, ok := s.Hands[player]
	return h, ok
}

// endValue returns the open value for the requested side.
func (s *State) endValue(side Side) int {
	if side == SideLeft {
		return *s.LeftEnd
	}
	return *s.RightEnd
}

// nextPlayer returns the player after p in the fixed circular order.
func (s *State) nextPlayer(p string) string {
	for i, id := range s.Players {
		if id == p {
			return s.Players[(i+1)%len(s.Players)]
		}
	}
	return p
}
