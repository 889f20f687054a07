package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"telegram-wager-bot/internal/model"
)

// TransactionRepository handles the append-only ledger audit trail.
// Records are never updated or deleted once written.
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *TransactionRepository) WithTx(tx pgx.Tx) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

const txColumns = `id, user_id, type, amount::text, balance_before::text, balance_after::text, description, created_at`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		tx                    model.Transaction
		amount, before, after string
	)
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Type,
		&amount,
		&before,
		&after,
		&tx.Description,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
	}
	if tx.BalanceBefore, err = decimal.NewFromString(before); err != nil {
		return nil, fmt.Errorf("failed to parse balance_before %q: %w", before, err)
	}
	if tx.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		return nil, fmt.Errorf("failed to parse balance_after %q: %w", after, err)
	}
	return &tx, nil
}

// Create appends one audit record for a balance mutation.
func (r *TransactionRepository) Create(ctx context.Context, userID int64, txType string, amount, balanceBefore, balanceAfter decimal.Decimal, description *string) (*model.Transaction, error) {
	const query = `
		INSERT INTO transactions (user_id, type, amount, balance_before, balance_after, description, created_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, NOW())
		RETURNING ` + txColumns

	tx, err := scanTransaction(r.db.QueryRow(ctx, query,
		userID, txType, amount.String(), balanceBefore.String(), balanceAfter.String(), description))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// GetByUserID retrieves a user's transactions, newest first.
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	const query = `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}
