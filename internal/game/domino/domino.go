// Package domino implements the double-six blocking dominoes engine.
//
// The engine is deterministic given a state: it deals, validates and
// applies moves, detects the block condition and names a winner. It never
// touches balances; settlement amounts are computed through the shared
// wagering math and returned to the caller.
package domino

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"telegram-wager-bot/internal/game"
)

// Player count bounds for one round.
const (
	MinPlayers = 2
	MaxPlayers = 4
)

// Hand sizes by player count.
const (
	handSizeTwoPlayers  = 7
	handSizeMorePlayers = 6
)

// Errors for the domino engine.
var (
	ErrPlayerCount     = errors.New("domino requires 2 to 4 players")
	ErrDuplicatePlayer = errors.New("duplicate player")
	ErrUnknownPlayer   = errors.New("player is not in this game")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrPieceNotInHand  = errors.New("piece is not in your hand")
	ErrPieceDoesNotFit = errors.New("piece does not match that end")
	ErrInvalidSide     = errors.New("side must be left or right")
	ErrGameOver        = errors.New("game is already over")
	ErrHasLegalMove    = errors.New("cannot pass with a playable piece")
	ErrGameNotStarted  = errors.New("game has not started")
	ErrGameNotFinished = errors.New("game is not finished")
)

// Game wraps a State with the rules that operate on it.
type Game struct {
	state *State
	bet   decimal.Decimal
	rake  decimal.Decimal
	rng   *rand.Rand
}

// Option configures a Game at construction.
type Option func(*Game)

// WithRand replaces the random source used for shuffling, used by tests
// to force deals.
func WithRand(rng *rand.Rand) Option {
	return func(g *Game) {
		g.rng = rng
	}
}

// New deals a fresh round for the given players in the given turn order.
// The wager is validated against limits; the deal draws from a shuffled
// 28-piece double-six deck, 7 pieces each for two players and 6 each for
// three or four.
func New(bet decimal.Decimal, limits game.Limits, players []string, opts ...Option) (*Game, error) {
	if err := limits.ValidateBet(bet); err != nil {
		return nil, err
	}
	if len(players) < MinPlayers || len(players) > MaxPlayers {
		return nil, fmt.Errorf("%w: got %d", ErrPlayerCount, len(players))
	}
	seen := make(map[string]struct{}, len(players))
	for _, p := range players {
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlayer, p)
		}
		seen[p] = struct{}{}
	}

	g := &Game{
		bet:  bet,
		rake: limits.RakePercent,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.state = g.deal(players)
	return g, nil
}

// FromState rebinds the rules to a previously persisted state.
func FromState(state *State, bet decimal.Decimal, limits game.Limits) (*Game, error) {
	if !state.Started {
		return nil, ErrGameNotStarted
	}
	return &Game{state: state, bet: bet, rake: limits.RakePercent}, nil
}

// State exposes the underlying state for persistence and rendering.
func (g *Game) State() *State {
	return g.state
}

// newDeck builds the 28 double-six pieces with stable ids assigned in
// enumeration order, before shuffling.
func newDeck() []Piece {
	deck := make([]Piece, 0, 28)
	id := 1
	for left := 0; left <= 6; left++ {
		for right := left; right <= 6; right++ {
			deck = append(deck, Piece{
				ID:    fmt.Sprintf("%d", id),
				Left:  left,
				Right: right,
			})
			id++
		}
	}
	return deck
}

// deal shuffles a fresh deck and hands out pieces in player order.
func (g *Game) deal(players []string) *State {
	deck := newDeck()
	g.rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	handSize := handSizeTwoPlayers
	if len(players) > 2 {
		handSize = handSizeMorePlayers
	}

	s := &State{
		Table:         []Piece{},
		Hands:         make(map[string][]Piece, len(players)),
		Players:       append([]string(nil), players...),
		CurrentPlayer: players[0],
		Scores:        make(map[string]int, len(players)),
		Started:       true,
	}
	for _, p := range players {
		s.Hands[p] = append([]Piece(nil), deck[:handSize]...)
		deck = deck[handSize:]
		s.Scores[p] = 0
	}
	s.Deck = deck
	return s
}

// ValidateMove checks a move without applying it.
func (g *Game) ValidateMove(player, pieceID string, side Side) error {
	s := g.state
	if g.over() {
		return ErrGameOver
	}
	hand, ok := s.hand(player)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, player)
	}
	if s.CurrentPlayer != player {
		return ErrNotYourTurn
	}
	if !side.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}

	piece, found := findPiece(hand, pieceID)
	if !found {
		return fmt.Errorf("%w: %s", ErrPieceNotInHand, pieceID)
	}

	// The first piece of the round fits anywhere.
	if len(s.Table) == 0 {
		return nil
	}
	if !piece.Matches(s.endValue(side)) {
		return fmt.Errorf("%w: %s against open %d", ErrPieceDoesNotFit, piece, s.endValue(side))
	}
	return nil
}

// MakeMove validates and applies a placement, then advances the turn and
// re-evaluates the end-of-round conditions.
func (g *Game) MakeMove(player, pieceID string, side Side) error {
	if err := g.ValidateMove(player, pieceID, side); err != nil {
		return err
	}
	s := g.state

	hand := s.Hands[player]
	piece, idx := pieceAt(hand, pieceID)
	s.Hands[player] = append(hand[:idx:idx], hand[idx+1:]...)

	g.place(piece, side)
	s.LastMove = &Move{Player: player, Piece: piece, Side: side}

	if g.IsGameOver() {
		return nil
	}
	s.CurrentPlayer = s.nextPlayer(player)
	return nil
}

// place orients the piece against the chosen end and updates the open
// values. The first piece establishes both ends.
func (g *Game) place(piece Piece, side Side) {
	s := g.state
	if len(s.Table) == 0 {
		s.Table = append(s.Table, piece)
		left, right := piece.Left, piece.Right
		s.LeftEnd, s.RightEnd = &left, &right
		return
	}

	if side == SideLeft {
		// The piece's right half must kiss the open left end.
		if piece.Right != *s.LeftEnd {
			piece = piece.flipped()
		}
		s.Table = append([]Piece{piece}, s.Table...)
		*s.LeftEnd = piece.Left
		return
	}

	if piece.Left != *s.RightEnd {
		piece = piece.flipped()
	}
	s.Table = append(s.Table, piece)
	*s.RightEnd = piece.Right
}

// PassTurn advances the turn for a player who has no playable piece.
// Passing with a legal move available is rejected.
func (g *Game) PassTurn(player string) error {
	s := g.state
	if g.over() {
		return ErrGameOver
	}
	if _, ok := s.hand(player); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, player)
	}
	if s.CurrentPlayer != player {
		return ErrNotYourTurn
	}
	if len(g.AvailableMoves(player)) > 0 {
		return ErrHasLegalMove
	}

	s.CurrentPlayer = s.nextPlayer(player)
	g.IsGameOver()
	return nil
}

// AvailableMoves lists every legal placement for a player. A piece that
// fits both ends produces two entries.
func (g *Game) AvailableMoves(player string) []Move {
	s := g.state
	hand, ok := s.hand(player)
	if !ok {
		return nil
	}

	var moves []Move
	for _, piece := range hand {
		if len(s.Table) == 0 {
			moves = append(moves, Move{Player: player, Piece: piece, Side: SideLeft})
			continue
		}
		if piece.Matches(*s.LeftEnd) {
			moves = append(moves, Move{Player: player, Piece: piece, Side: SideLeft})
		}
		if piece.Matches(*s.RightEnd) {
			moves = append(moves, Move{Player: player, Piece: piece, Side: SideRight})
		}
	}
	return moves
}

// over reports whether the round has already ended.
func (g *Game) over() bool {
	if g.state.Blocked {
		return true
	}
	for _, hand := range g.state.Hands {
		if len(hand) == 0 {
			return true
		}
	}
	return false
}

// IsGameOver evaluates the end-of-round conditions: a player going out by
// emptying their hand, or a block where no player at the table holds a
// playable piece. A detected block is recorded in the state.
func (g *Game) IsGameOver() bool {
	s := g.state
	if s.Blocked {
		return true
	}
	for _, hand := range s.Hands {
		if len(hand) == 0 {
			return true
		}
	}
	if len(s.Table) == 0 {
		return false
	}

	// The round is blocked only when every participant is stuck, not just
	// the current player and the next one.
	for _, p := range s.Players {
		if len(g.AvailableMoves(p)) > 0 {
			return false
		}
	}
	s.Blocked = true
	return true
}

// Outcome is the result of a finished round.
type Outcome struct {
	// Winner is the winning player key; empty on a tie.
	Winner string
	// Blocked is true when the round ended by block rather than by a
	// player going out.
	Blocked bool
	// Tie is true when a blocked round has no unique lowest pip count.
	Tie bool
	// PipCounts holds each player's remaining pip total at round end.
	PipCounts map[string]int
	// Settlement carries the money movement: a prize less rake for a
	// decided round, a full refund for a tie.
	Settlement game.Settlement
}

// Winner resolves the outcome of a finished round. A player who went out
// wins outright; a blocked round goes to the unique lowest remaining pip
// count, and equal lowest counts tie the round for a full refund.
func (g *Game) Winner() (*Outcome, error) {
	s := g.state
	if !g.over() {
		return nil, ErrGameNotFinished
	}

	counts := make(map[string]int, len(s.Players))
	for _, p := range s.Players {
		total := 0
		for _, piece := range s.Hands[p] {
			total += piece.Pips()
		}
		counts[p] = total
	}

	out := &Outcome{
		Blocked:   s.Blocked,
		PipCounts: counts,
	}

	for _, p := range s.Players {
		if len(s.Hands[p]) == 0 {
			out.Winner = p
			out.Settlement = game.Settle(g.bet, g.rake)
			return out, nil
		}
	}

	// Blocked round: lowest pip count takes the pot, shared lowest ties.
	best := s.Players[0]
	tied := false
	for _, p := range s.Players[1:] {
		switch {
		case counts[p] < counts[best]:
			best, tied = p, false
		case counts[p] == counts[best]:
			tied = true
		}
	}

	if tied {
		out.Tie = true
		out.Settlement = game.Refund(g.bet)
		return out, nil
	}
	out.Winner = best
	out.Settlement = game.Settle(g.bet, g.rake)
	return out, nil
}

// findPiece returns the piece with the given id from a hand.
func findPiece(hand []Piece, id string) (Piece, bool) {
	p, idx := pieceAt(hand, id)
	return p, idx >= 0
}

// pieceAt returns the piece and its index, or -1 when absent.
func pieceAt(hand []Piece, id string) (Piece, int) {
	for i, p := range hand {
		if p.ID == id {
			return p, i
		}
	}
	return Piece{}, -1
}
