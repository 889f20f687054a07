package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"telegram-wager-bot/internal/pkg/lock"
)

// The ledger enforces its own amount contract: a zero or negative amount
// is rejected before anything touches the database, so a deposit can
// never debit and a withdrawal can never credit.
func TestAccountService_RejectsNonPositiveAmounts(t *testing.T) {
	svc := NewAccountService(nil, nil, nil, lock.NewKeyedLock())
	ctx := context.Background()

	tests := []struct {
		name   string
		amount string
	}{
		{"zero", "0"},
		{"negative", "-10.00"},
		{"negative cents", "-0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)

			_, err := svc.Deposit(ctx, 1, amount, "test deposit")
			assert.ErrorIs(t, err, ErrInvalidAmount)

			_, err = svc.Withdraw(ctx, 1, amount, "test withdrawal")
			assert.ErrorIs(t, err, ErrInvalidAmount)
		})
	}
}
