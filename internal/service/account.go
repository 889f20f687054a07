// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"telegram-wager-bot/internal/model"
	"telegram-wager-bot/internal/pkg/db"
	"telegram-wager-bot/internal/pkg/lock"
	"telegram-wager-bot/internal/repository"
)

// AccountService handles user accounts and the ledger around them:
// registration, balance reads, admin balance adjustments and the
// transaction history.
type AccountService struct {
	pool      *db.Pool
	userRepo  *repository.UserRepository
	txRepo    *repository.TransactionRepository
	userLocks *lock.KeyedLock
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	pool *db.Pool,
	userRepo *repository.UserRepository,
	txRepo *repository.TransactionRepository,
	userLocks *lock.KeyedLock,
) *AccountService {
	return &AccountService{
		pool:      pool,
		userRepo:  userRepo,
		txRepo:    txRepo,
		userLocks: userLocks,
	}
}

// EnsureUser ensures a user exists, creating one with a zero balance if
// necessary. Returns the user and whether it was newly created. A changed
// username or private chat id is refreshed on the way through.
func (s *AccountService) EnsureUser(ctx context.Context, telegramID int64, username string, chatID int64) (*model.User, bool, error) {
	user, created, err := s.userRepo.GetOrCreate(ctx, telegramID, username, chatID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	// The refreshes run under the user's lock like every other write to
	// the account, so they cannot interleave with a concurrent adjust.
	if !created && ((username != "" && user.Username != username) || (chatID != 0 && user.ChatID != chatID)) {
		_ = s.userLocks.WithLock(telegramID, func() error {
			if username != "" && user.Username != username {
				if err := s.userRepo.UpdateUsername(ctx, telegramID, username); err != nil {
					log.Warn().Err(err).Int64("user_id", telegramID).Msg("failed to refresh username")
				} else {
					user.Username = username
				}
			}
			if chatID != 0 && user.ChatID != chatID {
				if err := s.userRepo.UpdateChatID(ctx, telegramID, chatID); err != nil {
					log.Warn().Err(err).Int64("user_id", telegramID).Msg("failed to refresh chat id")
				} else {
					user.ChatID = chatID
				}
			}
			return nil
		})
	}

	return user, created, nil
}

// GetUser retrieves a user by their Telegram ID.
func (s *AccountService) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetBalance retrieves a user's current balance.
func (s *AccountService) GetBalance(ctx context.Context, telegramID int64) (decimal.Decimal, error) {
	user, err := s.GetUser(ctx, telegramID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

// Deposit adds a positive amount to a user's balance, recording a deposit
// transaction. The balance change and its audit record commit together.
// A zero or negative amount is rejected with ErrInvalidAmount.
func (s *AccountService) Deposit(ctx context.Context, telegramID int64, amount decimal.Decimal, description string) (*model.User, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	return s.adjust(ctx, telegramID, amount, model.TxTypeDeposit, description)
}

// Withdraw removes a positive amount from a user's balance, recording a
// withdrawal transaction. A zero or negative amount is rejected with
// ErrInvalidAmount; a withdrawal that would drive the balance negative is
// rejected and the balance is left untouched.
func (s *AccountService) Withdraw(ctx context.Context, telegramID int64, amount decimal.Decimal, description string) (*model.User, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	return s.adjust(ctx, telegramID, amount.Neg(), model.TxTypeWithdrawal, description)
}

// adjust applies a signed delta to a balance and writes the matching
// audit record in one database transaction, serialized per user.
func (s *AccountService) adjust(ctx context.Context, telegramID int64, delta decimal.Decimal, txType, description string) (*model.User, error) {
	if delta.IsZero() {
		return nil, ErrInvalidAmount
	}

	var user *model.User
	err := s.userLocks.WithLock(telegramID, func() error {
		return s.pool.RunInTx(ctx, func(tx pgx.Tx) error {
			users := s.userRepo.WithTx(tx)
			txs := s.txRepo.WithTx(tx)

			before, after, err := users.AdjustBalance(ctx, telegramID, delta)
			if err != nil {
				return err
			}
			if _, err := txs.Create(ctx, telegramID, txType, delta, before, after, &description); err != nil {
				return err
			}

			user, err = users.GetByID(ctx, telegramID)
			return err
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrUserNotFound
		case errors.Is(err, repository.ErrInsufficientBalance):
			return nil, ErrInsufficientBalance
		}
		return nil, fmt.Errorf("failed to adjust balance: %w", err)
	}

	log.Info().
		Int64("user_id", telegramID).
		Str("type", txType).
		Str("delta", delta.StringFixed(2)).
		Str("balance", user.Balance.StringFixed(2)).
		Msg("balance adjusted")

	return user, nil
}

// GetTransactions retrieves a user's transaction history, newest first.
func (s *AccountService) GetTransactions(ctx context.Context, telegramID int64, limit int) ([]*model.Transaction, error) {
	txs, err := s.txRepo.GetByUserID(ctx, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return txs, nil
}

// GetTopUsers retrieves the top users by balance.
func (s *AccountService) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	users, err := s.userRepo.TopByBalance(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	return users, nil
}
