package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"telegram-wager-bot/internal/model"
)

// UserRepository handles user account persistence. Balances live in a
// NUMERIC(12, 2) column and cross the SQL boundary as decimal strings so
// no floating-point rounding can creep into the ledger.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

const userColumns = `telegram_id, username, chat_id, balance::text, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		user    model.User
		balance string
	)
	err := row.Scan(
		&user.TelegramID,
		&user.Username,
		&user.ChatID,
		&balance,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance %q: %w", balance, err)
	}
	return &user, nil
}

// Create creates a new user with a zero balance.
func (r *UserRepository) Create(ctx context.Context, telegramID int64, username string, chatID int64) (*model.User, error) {
	const query = `
		INSERT INTO users (telegram_id, username, chat_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, 0, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, telegramID, username, chatID))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by their Telegram ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, telegramID int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetOrCreate retrieves a user by Telegram ID, creating one if it doesn't
// exist. Returns the user and whether it was newly created.
func (r *UserRepository) GetOrCreate(ctx context.Context, telegramID int64, username string, chatID int64) (*model.User, bool, error) {
	user, err := r.GetByID(ctx, telegramID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = r.Create(ctx, telegramID, username, chatID)
	if err != nil {
		// Handle race condition: another request might have created the user.
		user, err = r.GetByID(ctx, telegramID)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	return user, true, nil
}

// AdjustBalance atomically applies a signed delta to a user's balance.
// The guard clause keeps the update conditional in-database: a delta that
// would drive the balance negative matches no row and the balance is left
// untouched, reported as ErrInsufficientBalance. Returns the balance
// before and after the change for the audit record.
func (r *UserRepository) AdjustBalance(ctx context.Context, telegramID int64, delta decimal.Decimal) (before, after decimal.Decimal, err error) {
	const query = `
		UPDATE users
		SET balance = balance + $2::numeric, updated_at = NOW()
		WHERE telegram_id = $1 AND balance + $2::numeric >= 0
		RETURNING (balance - $2::numeric)::text, balance::text
	`

	var beforeStr, afterStr string
	err = r.db.QueryRow(ctx, query, telegramID, delta.String()).Scan(&beforeStr, &afterStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the user is missing or the guard rejected the delta.
			if _, getErr := r.GetByID(ctx, telegramID); getErr != nil {
				return decimal.Zero, decimal.Zero, getErr
			}
			return decimal.Zero, decimal.Zero, ErrInsufficientBalance
		}
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to adjust balance: %w", err)
	}

	before, err = decimal.NewFromString(beforeStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to parse balance %q: %w", beforeStr, err)
	}
	after, err = decimal.NewFromString(afterStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to parse balance %q: %w", afterStr, err)
	}
	return before, after, nil
}

// UpdateChatID stores the private chat a user can be notified in.
func (r *UserRepository) UpdateChatID(ctx context.Context, telegramID int64, chatID int64) error {
	const query = `
		UPDATE users
		SET chat_id = $2, updated_at = NOW()
		WHERE telegram_id = $1
	`

	result, err := r.db.Exec(ctx, query, telegramID, chatID)
	if err != nil {
		return fmt.Errorf("failed to update chat id: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateUsername updates a user's username.
func (r *UserRepository) UpdateUsername(ctx context.Context, telegramID int64, username string) error {
	const query = `
		UPDATE users
		SET username = $2, updated_at = NOW()
		WHERE telegram_id = $1
	`

	result, err := r.db.Exec(ctx, query, telegramID, username)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// TopByBalance retrieves the top N users by balance.
func (r *UserRepository) TopByBalance(ctx context.Context, limit int) ([]*model.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY balance DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}
