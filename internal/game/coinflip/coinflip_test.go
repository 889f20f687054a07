package coinflip

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"telegram-wager-bot/internal/game"
)

// fixedSource forces the coin: Int63 of 0 draws heads, 1<<32 draws tails.
type fixedSource struct{ v int64 }

func (s fixedSource) Int63() int64 { return s.v }
func (s fixedSource) Seed(int64)   {}

func headsRand() *rand.Rand { return rand.New(fixedSource{0}) }
func tailsRand() *rand.Rand { return rand.New(fixedSource{1 << 32}) }

func testLimits() game.Limits {
	return game.Limits{
		MinBet:      decimal.RequireFromString("5.00"),
		MaxBet:      decimal.RequireFromString("1000.00"),
		RakePercent: decimal.RequireFromString("5"),
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		input   string
		want    Choice
		wantErr bool
	}{
		{"heads", Heads, false},
		{"tails", Tails, false},
		{"HEADS", "", true},
		{"edge", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseChoice(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidChoice)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_ValidatesBet(t *testing.T) {
	_, err := New(decimal.RequireFromString("1.00"), testLimits())
	assert.ErrorIs(t, err, game.ErrBetTooLow)

	_, err = New(decimal.RequireFromString("5000.00"), testLimits())
	assert.ErrorIs(t, err, game.ErrBetTooHigh)

	f, err := New(decimal.RequireFromString("50.00"), testLimits())
	require.NoError(t, err)
	assert.True(t, f.Bet().Equal(decimal.RequireFromString("50.00")))
}

func TestPlay_HouseMode(t *testing.T) {
	bet := decimal.RequireFromString("10.00")

	t.Run("matching choice wins 1.95x", func(t *testing.T) {
		f, err := New(bet, testLimits(), WithRand(headsRand()))
		require.NoError(t, err)

		result, err := f.Play(Heads)
		require.NoError(t, err)
		assert.True(t, result.PlayerWon)
		assert.Equal(t, Heads, result.Outcome)
		assert.True(t, result.Prize.Equal(decimal.RequireFromString("19.50")),
			"want 19.50, got %s", result.Prize)
	})

	t.Run("losing choice pays nothing", func(t *testing.T) {
		f, err := New(bet, testLimits(), WithRand(tailsRand()))
		require.NoError(t, err)

		result, err := f.Play(Heads)
		require.NoError(t, err)
		assert.False(t, result.PlayerWon)
		assert.Equal(t, Tails, result.Outcome)
		assert.True(t, result.Prize.IsZero())
	})

	t.Run("invalid choice rejected", func(t *testing.T) {
		f, err := New(bet, testLimits())
		require.NoError(t, err)

		_, err = f.Play("edge")
		assert.ErrorIs(t, err, ErrInvalidChoice)
	})
}

func TestResolveDuel(t *testing.T) {
	bet := decimal.RequireFromString("50.00")

	t.Run("creator matches the coin", func(t *testing.T) {
		f, err := New(bet, testLimits(), WithRand(headsRand()))
		require.NoError(t, err)

		result, err := f.ResolveDuel(Heads, Tails)
		require.NoError(t, err)
		assert.True(t, result.CreatorWon)
		assert.False(t, result.TieBreak)
		assert.Equal(t, Heads, result.Outcome)
		assert.True(t, result.Settlement.Prize.Equal(decimal.RequireFromString("95.00")))
		assert.True(t, result.Settlement.Rake.Equal(decimal.RequireFromString("5.00")))
	})

	t.Run("opponent matches the coin", func(t *testing.T) {
		f, err := New(bet, testLimits(), WithRand(tailsRand()))
		require.NoError(t, err)

		result, err := f.ResolveDuel(Heads, Tails)
		require.NoError(t, err)
		assert.False(t, result.CreatorWon)
		assert.False(t, result.TieBreak)
	})

	t.Run("equal choices go to the creator", func(t *testing.T) {
		for _, rng := range []*rand.Rand{headsRand(), tailsRand()} {
			f, err := New(bet, testLimits(), WithRand(rng))
			require.NoError(t, err)

			result, err := f.ResolveDuel(Tails, Tails)
			require.NoError(t, err)
			assert.True(t, result.CreatorWon)
			assert.True(t, result.TieBreak)
		}
	})

	t.Run("invalid choices rejected", func(t *testing.T) {
		f, err := New(bet, testLimits())
		require.NoError(t, err)

		_, err = f.ResolveDuel("edge", Tails)
		assert.ErrorIs(t, err, ErrInvalidChoice)
		_, err = f.ResolveDuel(Heads, "")
		assert.ErrorIs(t, err, ErrInvalidChoice)
	})
}

// Exactly one of the two players wins every duel, and the settlement
// always carries the full pot.
func TestDuelAlwaysHasOneWinnerProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(500, 100000).Draw(t, "cents")
		bet := decimal.New(cents, -2)
		seed := rapid.Int64().Draw(t, "seed")
		choices := []Choice{Heads, Tails}
		creator := choices[rapid.IntRange(0, 1).Draw(t, "creator")]
		opponent := choices[rapid.IntRange(0, 1).Draw(t, "opponent")]

		f, err := New(bet, testLimits(), WithRand(rand.New(rand.NewSource(seed))))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		result, err := f.ResolveDuel(creator, opponent)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if creator == opponent && !result.CreatorWon {
			t.Fatal("equal choices must go to the creator")
		}
		if creator != opponent {
			wantCreatorWin := creator == result.Outcome
			if result.CreatorWon != wantCreatorWin {
				t.Fatalf("outcome %s, creator chose %s: CreatorWon=%v", result.Outcome, creator, result.CreatorWon)
			}
		}
		if !result.Settlement.Prize.Add(result.Settlement.Rake).Equal(bet.Mul(decimal.NewFromInt(2))) {
			t.Fatalf("settlement does not reproduce the pot")
		}
	})
}

func TestDuelStateRoundTrip(t *testing.T) {
	state := &DuelState{CreatorChoice: Heads}
	assert.False(t, state.Ready())

	data, err := state.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalDuelState(data)
	require.NoError(t, err)
	assert.Equal(t, state, restored)

	restored.OpponentChoice = Tails
	assert.True(t, restored.Ready())
}

func TestUnmarshalDuelState_Empty(t *testing.T) {
	state, err := UnmarshalDuelState(nil)
	require.NoError(t, err)
	assert.False(t, state.Ready())

	state, err = UnmarshalDuelState([]byte(`{}`))
	require.NoError(t, err)
	assert.False(t, state.Ready())
}
