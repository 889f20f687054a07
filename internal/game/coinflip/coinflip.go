// Package coinflip implements the heads-or-tails engine.
//
// The primary path is the player-versus-player duel resolved by
// ResolveDuel; the player-versus-house Play path is kept as a secondary
// capability with its fixed 1.95 multiplier.
package coinflip

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"telegram-wager-bot/internal/game"
)

// Choice is one face of the coin.
type Choice string

// The two legal choices.
const (
	Heads Choice = "heads"
	Tails Choice = "tails"
)

// Valid reports whether c is heads or tails.
func (c Choice) Valid() bool {
	return c == Heads || c == Tails
}

// ParseChoice converts user input into a Choice.
func ParseChoice(s string) (Choice, error) {
	c := Choice(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
	}
	return c, nil
}

// Errors for the coin flip engine.
var (
	ErrInvalidChoice = errors.New("choice must be heads or tails")
)

// HouseMultiplier is the fixed payout for the house mode; it encodes a 5%
// house edge on an even-money flip.
var HouseMultiplier = decimal.RequireFromString("1.95")

// Flip resolves coin flip decisions for a fixed wager. Construction
// validates the wager; the engine itself has no side effects beyond the
// random draw, all ledger work belongs to the orchestration service.
type Flip struct {
	bet    decimal.Decimal
	limits game.Limits
	rng    *rand.Rand
}

// Option configures a Flip.
type Option func(*Flip)

// WithRand replaces the random source, used by tests to force outcomes.
func WithRand(rng *rand.Rand) Option {
	return func(f *Flip) {
		f.rng = rng
	}
}

// New creates a Flip for the given wager, validating it against limits.
func New(bet decimal.Decimal, limits game.Limits, opts ...Option) (*Flip, error) {
	if err := limits.ValidateBet(bet); err != nil {
		return nil, err
	}
	f := &Flip{
		bet:    bet,
		limits: limits,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Bet returns the wager the engine was constructed with.
func (f *Flip) Bet() decimal.Decimal {
	return f.bet
}

// Draw produces one uniformly random coin outcome.
func (f *Flip) Draw() Choice {
	if f.rng.Intn(2) == 0 {
		return Heads
	}
	return Tails
}

// Result is the outcome of a house-mode flip.
type Result struct {
	PlayerWon    bool
	PlayerChoice Choice
	Outcome      Choice
	Prize        decimal.Decimal
}

// Play resolves a house-mode flip: the player wins when their choice
// matches the drawn outcome and is paid bet x 1.95, otherwise the prize
// is zero and the wager is lost to the house.
func (f *Flip) Play(choice Choice) (*Result, error) {
	if !choice.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}

	outcome := f.Draw()
	result := &Result{
		PlayerChoice: choice,
		Outcome:      outcome,
		Prize:        decimal.Zero,
	}
	if choice == outcome {
		result.PlayerWon = true
		result.Prize = game.HousePrize(f.bet, HouseMultiplier)
	}
	return result, nil
}

// DuelResult is the outcome of a player-versus-player flip.
type DuelResult struct {
	// CreatorWon is true when the match creator takes the pot.
	CreatorWon bool
	// TieBreak is true when both players picked the same face and the
	// creator won by the tie rule rather than by matching the coin.
	TieBreak   bool
	Outcome    Choice
	Settlement game.Settlement
}

// ResolveDuel resolves a duel from both players' choices. One outcome is
// drawn; whichever player matched it wins the pot less rake. Equal
// choices are settled by the tie rule: the match creator wins.
func (f *Flip) ResolveDuel(creatorChoice, opponentChoice Choice) (*DuelResult, error) {
	if !creatorChoice.Valid() {
		return nil, fmt.Errorf("%w: creator chose %q", ErrInvalidChoice, creatorChoice)
	}
	if !opponentChoice.Valid() {
		return nil, fmt.Errorf("%w: opponent chose %q", ErrInvalidChoice, opponentChoice)
	}

	outcome := f.Draw()
	result := &DuelResult{
		Outcome:    outcome,
		Settlement: game.Settle(f.bet, f.limits.RakePercent),
	}

	if creatorChoice == opponentChoice {
		// Tie rule: the match creator wins when both picked the same face.
		result.CreatorWon = true
		result.TieBreak = true
		return result, nil
	}

	result.CreatorWon = creatorChoice == outcome
	return result, nil
}
