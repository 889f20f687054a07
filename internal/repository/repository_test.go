// Package repository provides data access layer implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"telegram-wager-bot/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, applySchema(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// applySchema creates the tables the repositories work against.
func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			chat_id BIGINT NOT NULL DEFAULT 0,
			balance NUMERIC(12, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			type VARCHAR(50) NOT NULL,
			amount NUMERIC(12, 2) NOT NULL,
			balance_before NUMERIC(12, 2) NOT NULL,
			balance_after NUMERIC(12, 2) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS matches (
			id BIGSERIAL PRIMARY KEY,
			creator_id BIGINT NOT NULL REFERENCES users(telegram_id),
			opponent_id BIGINT REFERENCES users(telegram_id),
			game_type VARCHAR(20) NOT NULL,
			bet_amount NUMERIC(12, 2) NOT NULL CHECK (bet_amount > 0),
			status VARCHAR(20) NOT NULL DEFAULT 'waiting',
			game_data JSONB NOT NULL DEFAULT '{}',
			winner_id BIGINT,
			prize NUMERIC(12, 2),
			rake NUMERIC(12, 2),
			expires_at TIMESTAMPTZ,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ============================================================================
// UserRepository Tests
// ============================================================================

func TestUserRepository_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, err := repo.Create(ctx, 12345, "alice", 777)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), user.TelegramID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, int64(777), user.ChatID)
	assert.True(t, user.Balance.IsZero())

	got, err := repo.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, user.TelegramID, got.TelegramID)
	assert.True(t, got.Balance.Equal(user.Balance))

	_, err = repo.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, created, err := repo.GetOrCreate(ctx, 111, "bob", 0)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "bob", user.Username)

	again, created, err := repo.GetOrCreate(ctx, 111, "bob", 0)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.TelegramID, again.TelegramID)
}

func TestUserRepository_AdjustBalance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 222, "carol", 0)
	require.NoError(t, err)

	before, after, err := repo.AdjustBalance(ctx, 222, dec("100.00"))
	require.NoError(t, err)
	assert.True(t, before.IsZero())
	assert.True(t, after.Equal(dec("100.00")))

	before, after, err = repo.AdjustBalance(ctx, 222, dec("-30.50"))
	require.NoError(t, err)
	assert.True(t, before.Equal(dec("100.00")))
	assert.True(t, after.Equal(dec("69.50")))

	// The guard leaves the balance untouched when the delta would drive
	// it negative.
	_, _, err = repo.AdjustBalance(ctx, 222, dec("-69.51"))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	user, err := repo.GetByID(ctx, 222)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(dec("69.50")))

	_, _, err = repo.AdjustBalance(ctx, 99999, dec("10.00"))
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_TopByBalance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	for i, amount := range []string{"10.00", "300.00", "200.00"} {
		id := int64(1000 + i)
		_, err := repo.Create(ctx, id, "user", 0)
		require.NoError(t, err)
		_, _, err = repo.AdjustBalance(ctx, id, dec(amount))
		require.NoError(t, err)
	}

	top, err := repo.TopByBalance(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(1001), top[0].TelegramID)
	assert.Equal(t, int64(1002), top[1].TelegramID)
}

// ============================================================================
// TransactionRepository Tests
// ============================================================================

func TestTransactionRepository_CreateAndList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserRepository(pool)
	txs := NewTransactionRepository(pool)
	ctx := context.Background()

	_, err := users.Create(ctx, 333, "dave", 0)
	require.NoError(t, err)

	desc := "wager escrow for match #1"
	tx, err := txs.Create(ctx, 333, model.TxTypeWithdrawal, dec("-50.00"), dec("100.00"), dec("50.00"), &desc)
	require.NoError(t, err)
	assert.True(t, tx.Amount.Equal(dec("-50.00")))
	assert.True(t, tx.BalanceBefore.Equal(dec("100.00")))
	assert.True(t, tx.BalanceAfter.Equal(dec("50.00")))
	require.NotNil(t, tx.Description)
	assert.Equal(t, desc, *tx.Description)

	_, err = txs.Create(ctx, 333, model.TxTypeBetWin, dec("95.00"), dec("50.00"), dec("145.00"), nil)
	require.NoError(t, err)

	history, err := txs.GetByUserID(ctx, 333, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	// Newest first.
	assert.Equal(t, model.TxTypeBetWin, history[0].Type)
	assert.Equal(t, model.TxTypeWithdrawal, history[1].Type)
}

// ============================================================================
// MatchRepository Tests
// ============================================================================

func TestMatchRepository_Lifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserRepository(pool)
	matches := NewMatchRepository(pool)
	ctx := context.Background()

	_, err := users.Create(ctx, 101, "creator", 0)
	require.NoError(t, err)
	_, err = users.Create(ctx, 102, "opponent", 0)
	require.NoError(t, err)

	expires := time.Now().Add(15 * time.Minute)
	m, err := matches.Create(ctx, 101, model.GameCoinFlip, dec("50.00"), expires)
	require.NoError(t, err)
	assert.Equal(t, model.MatchWaiting, m.Status)
	assert.Nil(t, m.OpponentID)
	assert.True(t, m.BetAmount.Equal(dec("50.00")))
	require.NotNil(t, m.ExpiresAt)

	open, err := matches.FindAvailable(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)

	gt := model.GameDomino
	none, err := matches.FindAvailable(ctx, &gt, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	joined, err := matches.AttachOpponent(ctx, m.ID, 102)
	require.NoError(t, err)
	assert.Equal(t, model.MatchActive, joined.Status)
	require.NotNil(t, joined.OpponentID)
	assert.Equal(t, int64(102), *joined.OpponentID)
	assert.NotNil(t, joined.StartedAt)

	// A second join loses the race.
	_, err = matches.AttachOpponent(ctx, m.ID, 103)
	assert.ErrorIs(t, err, ErrMatchNotJoinable)

	require.NoError(t, matches.UpdateGameData(ctx, m.ID, []byte(`{"creator_choice":"heads"}`)))

	winnerID := int64(102)
	require.NoError(t, matches.Complete(ctx, m.ID, &winnerID, dec("95.00"), dec("5.00")))

	done, err := matches.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchCompleted, done.Status)
	require.NotNil(t, done.WinnerID)
	assert.Equal(t, winnerID, *done.WinnerID)
	require.NotNil(t, done.Prize)
	assert.True(t, done.Prize.Equal(dec("95.00")))
	require.NotNil(t, done.Rake)
	assert.True(t, done.Rake.Equal(dec("5.00")))
	assert.NotNil(t, done.CompletedAt)
	assert.JSONEq(t, `{"creator_choice":"heads"}`, string(done.GameData))
}

func TestMatchRepository_UnknownParticipant(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserRepository(pool)
	matches := NewMatchRepository(pool)
	ctx := context.Background()

	expires := time.Now().Add(15 * time.Minute)

	// Creating a match for a user that was never registered trips the
	// creator foreign key; the caller sees ErrUserNotFound rather than a
	// raw constraint error.
	_, err := matches.Create(ctx, 999, model.GameCoinFlip, dec("10.00"), expires)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = users.Create(ctx, 301, "frank", 0)
	require.NoError(t, err)

	m, err := matches.Create(ctx, 301, model.GameCoinFlip, dec("10.00"), expires)
	require.NoError(t, err)

	// Same for joining with an unregistered opponent. The match stays
	// joinable afterwards.
	_, err = matches.AttachOpponent(ctx, m.ID, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)

	got, err := matches.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchWaiting, got.Status)
	assert.Nil(t, got.OpponentID)
}

func TestMatchRepository_CountOpenByUser(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserRepository(pool)
	matches := NewMatchRepository(pool)
	ctx := context.Background()

	_, err := users.Create(ctx, 201, "eve", 0)
	require.NoError(t, err)

	count, err := matches.CountOpenByUser(ctx, 201)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	expires := time.Now().Add(15 * time.Minute)
	m1, err := matches.Create(ctx, 201, model.GameCoinFlip, dec("10.00"), expires)
	require.NoError(t, err)
	_, err = matches.Create(ctx, 201, model.GameDomino, dec("20.00"), expires)
	require.NoError(t, err)

	count, err = matches.CountOpenByUser(ctx, 201)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Cancelled matches stop counting.
	require.NoError(t, matches.UpdateStatus(ctx, m1.ID, model.MatchCancelled))
	count, err = matches.CountOpenByUser(ctx, 201)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = matches.GetByID(ctx, 424242)
	assert.ErrorIs(t, err, ErrMatchNotFound)
}
