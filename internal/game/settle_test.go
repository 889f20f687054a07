package game

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLimits_ValidateBet(t *testing.T) {
	limits := Limits{
		MinBet:      dec("5.00"),
		MaxBet:      dec("1000.00"),
		RakePercent: dec("5"),
	}

	tests := []struct {
		name    string
		bet     string
		wantErr error
	}{
		{"valid bet", "50.00", nil},
		{"minimum bet", "5.00", nil},
		{"maximum bet", "1000.00", nil},
		{"below minimum", "4.99", ErrBetTooLow},
		{"above maximum", "1000.01", ErrBetTooHigh},
		{"zero bet", "0", ErrBetInvalid},
		{"negative bet", "-10.00", ErrBetInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := limits.ValidateBet(dec(tt.bet))
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSettle(t *testing.T) {
	tests := []struct {
		name        string
		bet         string
		rakePercent string
		wantPot     string
		wantPrize   string
		wantRake    string
	}{
		{"standard five percent", "50.00", "5", "100.00", "95.00", "5.00"},
		{"small wager", "5.00", "5", "10.00", "9.50", "0.50"},
		{"max wager", "1000.00", "5", "2000.00", "1900.00", "100.00"},
		{"zero rake", "50.00", "0", "100.00", "100.00", "0.00"},
		{"odd cents round", "33.33", "5", "66.66", "63.33", "3.33"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Settle(dec(tt.bet), dec(tt.rakePercent))
			assert.True(t, st.Pot.Equal(dec(tt.wantPot)), "pot: want %s got %s", tt.wantPot, st.Pot)
			assert.True(t, st.Prize.Equal(dec(tt.wantPrize)), "prize: want %s got %s", tt.wantPrize, st.Prize)
			assert.True(t, st.Rake.Equal(dec(tt.wantRake)), "rake: want %s got %s", tt.wantRake, st.Rake)
			assert.False(t, st.Refund)
		})
	}
}

// The prize plus rake must reproduce the pot to the cent for any wager,
// so no money is created or destroyed by a settlement.
func TestSettleConservationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(1, 100000000).Draw(t, "cents")
		bet := decimal.New(cents, -2)
		rakePercent := decimal.NewFromInt(rapid.Int64Range(0, 50).Draw(t, "rakePercent"))

		st := Settle(bet, rakePercent)

		if !st.Prize.Add(st.Rake).Equal(st.Pot) {
			t.Fatalf("prize %s + rake %s != pot %s", st.Prize, st.Rake, st.Pot)
		}
		if !st.Pot.Equal(bet.Mul(decimal.NewFromInt(2))) {
			t.Fatalf("pot %s != 2 x bet %s", st.Pot, bet)
		}
		if st.Prize.LessThan(decimal.Zero) || st.Rake.LessThan(decimal.Zero) {
			t.Fatalf("negative settlement: prize %s rake %s", st.Prize, st.Rake)
		}
		if st.Rake.Exponent() < -2 {
			t.Fatalf("rake %s has sub-cent precision", st.Rake)
		}
	})
}

// A five percent rake pays out exactly 1.9 times the wager.
func TestSettleFivePercentPaysNineteenTenthsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(100, 100000000).Draw(t, "cents")
		bet := decimal.New(cents, -2)

		st := Settle(bet, dec("5"))

		want := bet.Mul(dec("1.9")).Round(2)
		if !st.Prize.Equal(want) {
			t.Fatalf("prize for bet %s: want %s, got %s", bet, want, st.Prize)
		}
	})
}

func TestRefund(t *testing.T) {
	st := Refund(dec("50.00"))
	require.True(t, st.Refund)
	assert.True(t, st.Pot.Equal(dec("100.00")))
	assert.True(t, st.Prize.IsZero())
	assert.True(t, st.Rake.IsZero())
}

func TestHousePrize(t *testing.T) {
	prize := HousePrize(dec("10.00"), dec("1.95"))
	assert.True(t, prize.Equal(dec("19.50")), "want 19.50, got %s", prize)
}
