// Package game defines the wagering contract shared by all game engines:
// bet limits, settlement math and the engine registry. Engines are
// independent tagged implementations of one game type; the money math
// lives here so no engine carries its own prize arithmetic.
package game

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Bet validation errors.
var (
	ErrBetTooLow  = errors.New("bet below minimum")
	ErrBetTooHigh = errors.New("bet above maximum")
	ErrBetInvalid = errors.New("bet must be positive")
)

var two = decimal.NewFromInt(2)

// Limits bounds acceptable wagers and carries the house rake for one game
// type. A Limits value is handed to engines and the orchestration service
// at construction time; nothing reads wagering knobs from global state.
type Limits struct {
	MinBet      decimal.Decimal
	MaxBet      decimal.Decimal
	RakePercent decimal.Decimal
}

// ValidateBet checks a wager against the configured bounds.
func (l Limits) ValidateBet(bet decimal.Decimal) error {
	if bet.LessThanOrEqual(decimal.Zero) {
		return ErrBetInvalid
	}
	if bet.LessThan(l.MinBet) {
		return fmt.Errorf("%w: minimum is %s", ErrBetTooLow, l.MinBet.StringFixed(2))
	}
	if bet.GreaterThan(l.MaxBet) {
		return fmt.Errorf("%w: maximum is %s", ErrBetTooHigh, l.MaxBet.StringFixed(2))
	}
	return nil
}

// Settlement is the financial outcome of a completed match.
// Prize + Rake always equals the pot for a decided match; a refund carries
// zero rake because the house only takes a cut from a clear winner.
type Settlement struct {
	Pot    decimal.Decimal
	Prize  decimal.Decimal
	Rake   decimal.Decimal
	Refund bool
}

// Settle computes the payout for a two-participant match with a clear
// winner: pot = 2 x bet, rake = pot x rakePercent, prize = pot - rake.
// The rake is rounded to cents first so prize + rake reproduces the pot
// exactly.
func Settle(bet decimal.Decimal, rakePercent decimal.Decimal) Settlement {
	pot := bet.Mul(two)
	rake := pot.Mul(rakePercent).Div(decimal.NewFromInt(100)).Round(2)
	return Settlement{
		Pot:   pot,
		Prize: pot.Sub(rake),
		Rake:  rake,
	}
}

// Refund computes the settlement for a tied match: every participant gets
// their own wager back and the house takes nothing.
func Refund(bet decimal.Decimal) Settlement {
	return Settlement{
		Pot:    bet.Mul(two),
		Prize:  decimal.Zero,
		Rake:   decimal.Zero,
		Refund: true,
	}
}

// HousePrize computes the payout for the secondary player-versus-house
// mode: the fixed multiplier already encodes the house edge (1.95 pays a
// 5% edge on an even-money flip).
func HousePrize(bet decimal.Decimal, multiplier decimal.Decimal) decimal.Decimal {
	return bet.Mul(multiplier).Round(2)
}
